// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/protoerr"
)

// outgoingMsg is one message of a batch to be sent. Its MessageID is assigned while sending.
type outgoingMsg struct {
	header msgs.Header
	body   msgs.Body
}

// sendBatch assigns message IDs to a batch, serializes all messages and enqueues them afterwards.
//
// If one message fails to be serialized or exceeds the part or message size, nothing is sent and no message ID is
// consumed. Messages of the core protocol, e.g., ProtocolExceptions, are not bound by the part size.
// For chained batches, all messages after the first are correlated to the first one, as for multi-part requests.
// A batch is enqueued as a whole while holding sendMutex. Thus, outgoing multi-part messages never interleave and
// the peer has at most one of ours in progress, which satisfies every MaxConcurrentMultipart.
// The optional commit function is called with the final Headers before the first message is enqueued; its error
// aborts the batch as well.
//
// The returned Headers are those of the enqueued messages, which are less than the batch on a closed Session. Waiting
// for a stalled transport ends as soon as the Session is closing.
func (s *Session) sendBatch(batch []outgoingMsg, chained bool, commit func([]msgs.Header) error) ([]msgs.Header, error) {
	s.sendMutex.Lock()
	defer s.sendMutex.Unlock()

	select {
	case <-s.closeSyn:
		return nil, ErrSessionClosed
	case <-s.ctx.Done():
		return nil, ErrSessionClosed
	default:
	}

	var (
		id      = s.nextID
		headers = make([]msgs.Header, len(batch))
		packed  = make([][]byte, len(batch))
	)

	for i, om := range batch {
		h := om.header
		h.MessageID = id
		if chained && i > 0 {
			h.CorrelationID = headers[0].MessageID
		}
		if om.body != nil {
			key := om.body.MessageKey()
			h.MessageType = key.MessageType
		}

		if h.Extension != nil && s.isNegotiated() && !s.limits.SupportsMessageHeaderExtension {
			return nil, protoerr.Limit(protoerr.CodeNotSupported, "message header extensions were not negotiated")
		}

		data, err := msgs.Pack(h, om.body, s.conf.Encoding)
		if err != nil {
			return nil, err
		}
		size := int64(len(data))
		if size > s.limits.MaxMessagePayloadSize {
			return nil, protoerr.Limit(protoerr.CodeMaxSizeExceeded,
				"message %v of %d bytes exceeds the maximum message size of %d bytes", h.Key(), size, s.limits.MaxMessagePayloadSize)
		}
		if om.body != nil && om.body.MessageKey().Protocol != msgs.ProtocolCore && size > s.limits.MaxPartSize {
			return nil, protoerr.Limit(protoerr.CodeMaxSizeExceeded,
				"message %v of %d bytes exceeds the maximum part size of %d bytes", h.Key(), size, s.limits.MaxPartSize)
		}

		headers[i] = h
		packed[i] = data
		id += 2
	}

	if commit != nil {
		if err := commit(headers); err != nil {
			return nil, err
		}
	}
	s.nextID = id

	for i, data := range packed {
		select {
		case s.outgoing <- data:
			s.conf.Metrics.sent(headers[i].Protocol, headers[i].MessageType)
			atomic.StoreInt64(&s.lastSend, time.Now().UnixNano())

		case <-s.closeSyn:
			return headers[:i], ErrSessionClosed
		case <-s.ctx.Done():
			return headers[:i], ErrSessionClosed
		case <-s.messageSwitch.Done():
			return headers[:i], ErrSessionClosed
		}
	}

	if s.log().Logger.IsLevelEnabled(log.TraceLevel) {
		for _, h := range headers {
			s.log().WithField("header", h).Trace("Sent message")
		}
	}

	return headers, nil
}

// sendCore sends a single message of the core protocol or a ProtocolException or Acknowledge.
func (s *Session) sendCore(h msgs.Header, body msgs.Body) (msgs.Header, error) {
	h.Flags |= msgs.FlagFinalPart
	headers, err := s.sendBatch([]outgoingMsg{{header: h, body: body}}, false, nil)
	if err != nil {
		return msgs.Header{}, err
	}
	return headers[0], nil
}

// sendError sends a ProtocolException for err, correlated to the referenced message.
func (s *Session) sendError(ref msgs.Header, err error) {
	h := msgs.Header{
		Protocol:      ref.Protocol,
		MessageType:   msgs.MsgProtocolException,
		CorrelationID: ref.MessageID,
	}
	body := &msgs.ProtocolException{
		Code:    int32(protoerr.CodeOf(err)),
		Message: err.Error(),
	}

	if _, sendErr := s.sendCore(h, body); sendErr != nil {
		s.log().WithError(sendErr).WithField("header", ref).Warn("Sending ProtocolException failed")
	}
}

// sendAcknowledge sends an Acknowledge correlated to the referenced message.
func (s *Session) sendAcknowledge(ref msgs.Header) {
	h := msgs.Header{
		Protocol:      ref.Protocol,
		MessageType:   msgs.MsgAcknowledge,
		CorrelationID: ref.MessageID,
	}

	if _, err := s.sendCore(h, &msgs.Acknowledge{}); err != nil {
		s.log().WithError(err).WithField("header", ref).Warn("Sending Acknowledge failed")
	}
}
