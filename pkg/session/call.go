// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/multipart"
	"github.com/openetp/etp-go/pkg/protoerr"
)

// ErrCallPending is returned by Call.Result before the response was received.
var ErrCallPending = errors.New("call is still pending")

// RequestOptions alter outgoing requests.
type RequestOptions struct {
	// Extension is attached to each message of the request.
	Extension *msgs.Extension

	// Acknowledge requests an Acknowledge from the peer for the first message.
	Acknowledge bool
}

// Call is an outgoing request awaiting its response.
type Call struct {
	// Header of the request's first message, being the correlation target of the response.
	Header msgs.Header

	done     chan struct{}
	doneOnce sync.Once

	parts []msgs.Message
	err   error

	acknowledged uint32
}

func newCall() *Call {
	return &Call{done: make(chan struct{})}
}

// Done is closed after the complete response was received or the Call failed.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Result returns the response's parts. A response ending with a ProtocolException results in a remote error,
// while the parts still contain everything received.
func (c *Call) Result() ([]msgs.Message, error) {
	select {
	case <-c.done:
		return c.parts, c.err
	default:
		return nil, ErrCallPending
	}
}

// Wait for the Call's Result or the context's end.
func (c *Call) Wait(ctx context.Context) ([]msgs.Message, error) {
	select {
	case <-c.done:
		return c.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Acknowledged is true after the peer acknowledged the request.
func (c *Call) Acknowledged() bool {
	return atomic.LoadUint32(&c.acknowledged) != 0
}

func (c *Call) finish(parts []msgs.Message, err error) {
	c.doneOnce.Do(func() {
		c.parts = parts
		c.err = err
		close(c.done)
	})
}

// checkProtocol fails for protocols which were not negotiated.
func (s *Session) checkProtocol(protocol int32) error {
	if !s.isNegotiated() {
		return ErrNotNegotiated
	}
	if _, ok := s.protocols[protocol]; !ok {
		return fmt.Errorf("%w: %d", ErrNotNegotiated, protocol)
	}
	return nil
}

// Request sends a single message and returns a Call for its response.
func (s *Session) Request(protocol int32, body msgs.Body) (*Call, error) {
	return s.RequestWithOptions(protocol, []msgs.Body{body}, RequestOptions{})
}

// RequestWithOptions sends a possibly multi-part request. All messages after the first one are correlated to the
// first message, which is the Call's Header.
func (s *Session) RequestWithOptions(protocol int32, bodies []msgs.Body, opts RequestOptions) (*Call, error) {
	if err := s.checkProtocol(protocol); err != nil {
		return nil, err
	}
	if len(bodies) == 0 {
		return nil, fmt.Errorf("a request needs at least one message")
	}

	n := len(bodies)
	batch := make([]outgoingMsg, n)
	for i, body := range bodies {
		flags := multipart.PartFlags(i, n)
		if opts.Acknowledge && i == 0 {
			flags |= msgs.FlagAcknowledge
		}
		batch[i] = outgoingMsg{
			header: msgs.Header{
				Protocol:  protocol,
				Flags:     flags,
				Extension: opts.Extension,
			},
			body: body,
		}
	}

	c := newCall()
	responseTimeout := s.Limits().ResponseTimeout

	_, err := s.sendBatch(batch, true, func(headers []msgs.Header) error {
		c.Header = headers[0]

		s.exMutex.Lock()
		defer s.exMutex.Unlock()

		if err := s.responses.Open(c.Header.MessageID, responseTimeout); err != nil {
			return err
		}
		s.calls[c.Header.MessageID] = c
		s.conf.Metrics.exchangeOpened()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Notify sends a single message without awaiting a response. Errors reported by the peer are available as
// ExchangeFailed Statuses.
func (s *Session) Notify(protocol int32, body msgs.Body) (msgs.Header, error) {
	if err := s.checkProtocol(protocol); err != nil {
		return msgs.Header{}, err
	}

	headers, err := s.sendBatch([]outgoingMsg{{
		header: msgs.Header{Protocol: protocol, Flags: msgs.FlagFinalPart},
		body:   body,
	}}, false, nil)
	if err != nil {
		return msgs.Header{}, err
	}
	return headers[0], nil
}

// takeCall removes and returns a pending Call.
func (s *Session) takeCall(id uint64) (*Call, bool) {
	s.exMutex.Lock()
	defer s.exMutex.Unlock()

	c, ok := s.calls[id]
	if ok {
		delete(s.calls, id)
	}
	return c, ok
}

func (s *Session) lookupCall(id uint64) (*Call, bool) {
	s.exMutex.Lock()
	defer s.exMutex.Unlock()

	c, ok := s.calls[id]
	return c, ok
}

// callTimedOut is called for a Call without a complete response in time.
func (s *Session) callTimedOut(key uint64, err error) {
	c, ok := s.takeCall(key)
	if !ok {
		return
	}

	c.finish(nil, err)
	s.conf.Metrics.exchangeClosed("timeout")
	s.report(Status{Type: ExchangeFailed, Session: s, Header: c.Header, Err: err})
}

// completeCall finishes a Call with its received parts.
func (s *Session) completeCall(c *Call, parts []msgs.Message) {
	var err error
	if last := parts[len(parts)-1]; last.Header.MessageType == msgs.MsgProtocolException {
		if pe, ok := last.Body.(*msgs.ProtocolException); ok {
			err = protoerr.Remote(protoerr.Code(pe.Code), pe.Message)
		}
	}

	s.takeCall(c.Header.MessageID)
	c.finish(parts, err)

	if err != nil {
		s.conf.Metrics.exchangeClosed("failed")
	} else {
		s.conf.Metrics.exchangeClosed("responded")
	}
}
