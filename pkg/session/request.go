// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openetp/etp-go/pkg/datatypes"
	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/multipart"
	"github.com/openetp/etp-go/pkg/protoerr"
)

// partOverhead is reserved within each part for the header and the body's framing.
const partOverhead = 256

// Request is a completely received request, as passed to a HandlerFunc. Exactly one of the Respond methods might
// be called, from any Goroutine.
type Request struct {
	// Header of the request's first message, being the correlation target of each response.
	Header msgs.Header

	// Parts of the request in their order of arrival. Single-part requests have exactly one.
	Parts []msgs.Message

	Protocol *Protocol

	session   *Session
	ex        *exchange
	extension *msgs.Extension
}

// Body of the first part.
func (r *Request) Body() msgs.Body {
	return r.Parts[0].Body
}

// Bodies of all parts.
func (r *Request) Bodies() []msgs.Body {
	bodies := make([]msgs.Body, len(r.Parts))
	for i, part := range r.Parts {
		bodies[i] = part.Body
	}
	return bodies
}

// Session of this Request.
func (r *Request) Session() *Session {
	return r.session
}

// Context is canceled when the exchange is closed.
func (r *Request) Context() context.Context {
	return r.ex.ctx
}

// State of the underlying exchange.
func (r *Request) State() ExchangeState {
	r.ex.mutex.Lock()
	defer r.ex.mutex.Unlock()

	return r.ex.state
}

// SetExtension attaches a header extension to all response messages.
func (r *Request) SetExtension(ext *msgs.Extension) {
	r.extension = ext
}

// PartBudget is the available size for a response part's items.
func (r *Request) PartBudget() int {
	limits := r.session.Limits()

	budget := limits.MaxPartSize
	if limits.MaxMessagePayloadSize < budget {
		budget = limits.MaxMessagePayloadSize
	}
	budget -= partOverhead

	if r.extension != nil {
		for k, v := range r.extension.Fields {
			budget -= int64(len(k) + len(v) + 16)
		}
	}
	return int(budget)
}

// Respond with a single message.
func (r *Request) Respond(body msgs.Body) ([]msgs.Header, error) {
	return r.RespondParts([]msgs.Body{body})
}

// RespondParts responds with one or more messages. Multiple messages form a multi-part response.
//
// A response which cannot be sent, e.g., because a part exceeds the message size, leaves the exchange open. Thus,
// the application might still call RespondError.
func (r *Request) RespondParts(bodies []msgs.Body) ([]msgs.Header, error) {
	if len(bodies) == 0 {
		return nil, fmt.Errorf("a response needs at least one message")
	}

	ex := r.ex
	ex.mutex.Lock()
	defer ex.mutex.Unlock()

	if ex.route.Notification {
		return nil, fmt.Errorf("notification %v cannot be answered", r.Header.Key())
	}
	if ex.state != ExchangeDelivered {
		return nil, ErrExchangeClosed
	}

	for _, body := range bodies {
		if key := body.MessageKey(); key.Protocol != r.Header.Protocol && key.Protocol != msgs.ProtocolCore {
			return nil, fmt.Errorf("response %v does not belong to protocol %d", key, r.Header.Protocol)
		}
	}

	n := len(bodies)
	ex.state = ExchangeResponding

	batch := make([]outgoingMsg, n)
	for i, body := range bodies {
		batch[i] = outgoingMsg{
			header: msgs.Header{
				Protocol:      r.Header.Protocol,
				CorrelationID: r.Header.MessageID,
				Flags:         multipart.PartFlags(i, n),
				Extension:     r.extension,
			},
			body: body,
		}
	}

	headers, err := r.session.sendBatch(batch, false, nil)
	if err != nil && len(headers) == 0 && !errors.Is(err, ErrSessionClosed) {
		ex.state = ExchangeDelivered
		return nil, err
	}

	r.session.closeExchange(ex, "responded", nil)
	return headers, err
}

// RespondError closes the exchange with a correlated ProtocolException. Errors without an ETP error code are
// reported as EINTERNAL_ERROR.
func (r *Request) RespondError(err error) error {
	ex := r.ex
	ex.mutex.Lock()
	defer ex.mutex.Unlock()

	if ex.state == ExchangeClosed {
		return ErrExchangeClosed
	}

	err = protoerr.Application(err)
	r.session.sendError(r.Header, err)
	r.session.closeExchange(ex, "failed", err)
	return nil
}

// ItemSizer returns a function estimating an item's encoded size within the Request's Session.
func ItemSizer[T any, P datatypes.CborItem[T]](r *Request) func(T) int {
	if r.session.conf.Encoding == msgs.EncodingJSON {
		return func(item T) int {
			data, err := json.Marshal(item)
			if err != nil {
				return -1
			}
			return len(data) + 1
		}
	}
	return datatypes.CborSize[T, P]
}

// checkObjectSize fails if an item exceeds the negotiated MaxDataObjectSize.
func checkObjectSize[T any](r *Request, sizeOf func(T) int) func(T) int {
	maxSize := r.session.Limits().MaxDataObjectSize
	return func(item T) int {
		size := sizeOf(item)
		if maxSize > 0 && int64(size) > maxSize {
			return -1
		}
		return size
	}
}

func splitList[T any](r *Request, items []T, sizeOf func(T) int) ([][]T, error) {
	chunks, err := multipart.Split(items, r.PartBudget(), checkObjectSize(r, sizeOf))
	if protoerr.CodeOf(err) == protoerr.CodeInvalidArgument {
		return nil, protoerr.Limit(protoerr.CodeMaxSizeExceeded, "an item exceeds the maximum data object size")
	}
	return chunks, err
}

// RespondList splits items over as many response parts as needed, each fitting the negotiated part size. An empty
// list results in one single, empty response.
func RespondList[T any](r *Request, items []T, sizeOf func(T) int, build func([]T) msgs.Body) ([]msgs.Header, error) {
	chunks, err := splitList(r, items, sizeOf)
	if err != nil {
		return nil, err
	}

	bodies := make([]msgs.Body, len(chunks))
	for i, chunk := range chunks {
		bodies[i] = build(chunk)
	}
	return r.RespondParts(bodies)
}

// RespondDualList responds with two kinds of lists within one multi-part response, e.g., resources followed by
// edges. The second list's messages are only sent if it is not empty. Only the very last part is the final one.
func RespondDualList[A, B any](r *Request,
	as []A, sizeOfA func(A) int, buildA func([]A) msgs.Body,
	bs []B, sizeOfB func(B) int, buildB func([]B) msgs.Body,
) ([]msgs.Header, error) {
	chunksA, err := splitList(r, as, sizeOfA)
	if err != nil {
		return nil, err
	}

	var chunksB [][]B
	if len(bs) > 0 {
		if chunksB, err = splitList(r, bs, sizeOfB); err != nil {
			return nil, err
		}
	}

	bodies := make([]msgs.Body, 0, len(chunksA)+len(chunksB))
	for _, chunk := range chunksA {
		bodies = append(bodies, buildA(chunk))
	}
	for _, chunk := range chunksB {
		bodies = append(bodies, buildB(chunk))
	}
	return r.RespondParts(bodies)
}
