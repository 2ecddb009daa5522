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

// unpack an incoming message's envelope. Failures are fatal for the session.
func (s *Session) unpack(data []byte) (msgs.Frame, error) {
	atomic.StoreInt64(&s.lastReceive, time.Now().UnixNano())

	f, err := msgs.Unpack(data, s.conf.Encoding, s.conf.maxIncomingSize())
	if err != nil {
		return f, err
	}
	if err := f.Header.CheckValid(); err != nil {
		return f, err
	}

	s.conf.Metrics.received(f.Header.Protocol, f.Header.MessageType)
	if s.log().Logger.IsLevelEnabled(log.TraceLevel) {
		s.log().WithField("header", f.Header).Trace("Received message")
	}
	return f, nil
}

// checkInboundID enforces the peer's message ID parity and strictly increasing IDs.
func (s *Session) checkInboundID(h msgs.Header) error {
	var parity uint64 = 1
	if !s.conf.ActivePeer {
		parity = 0
	}

	if h.MessageID%2 != parity {
		return protoerr.Violation(protoerr.CodeInvalidMessage, "message ID %d has the wrong parity", h.MessageID)
	}
	if h.MessageID <= s.lastInboundID {
		return protoerr.Violation(protoerr.CodeInvalidMessage,
			"message ID %d is not greater than the previous ID %d", h.MessageID, s.lastInboundID)
	}

	s.lastInboundID = h.MessageID
	return nil
}

// receive dispatches an incoming message within an established session. A returned error ends the session, while
// errors within an exchange are answered by correlated ProtocolExceptions.
func (s *Session) receive(data []byte) error {
	f, err := s.unpack(data)
	if err != nil {
		return err
	}

	h := f.Header
	if err := s.checkInboundID(h); err != nil {
		s.sendError(h, err)
		return nil
	}

	if h.IsAcknowledge() && h.MessageType != msgs.MsgAcknowledge {
		s.sendAcknowledge(h)
	}

	if h.IsCore() {
		return s.receiveCore(f)
	}

	if _, ok := s.protocols[h.Protocol]; !ok && !isAnswer(h) {
		s.sendError(h, protoerr.Violation(protoerr.CodeUnsupportedProtocol, "protocol %d was not negotiated", h.Protocol))
		return nil
	}

	if h.IsCorrelated() {
		s.receiveCorrelated(f)
	} else {
		s.receiveRequest(f)
	}
	return nil
}

// isAnswer checks for message types which must never be answered by a ProtocolException themselves.
func isAnswer(h msgs.Header) bool {
	return h.MessageType == msgs.MsgProtocolException || h.MessageType == msgs.MsgAcknowledge
}

func (s *Session) receiveCore(f msgs.Frame) error {
	h := f.Header

	switch h.MessageType {
	case msgs.MsgCloseSession:
		msg, err := f.Decode()
		if err == nil {
			s.log().WithField("reason", msg.Body.(*msgs.CloseSession).Reason).Info("Peer closed the session")
		}
		return errStageClose

	case msgs.MsgPing:
		_, err := s.sendCore(msgs.Header{Protocol: msgs.ProtocolCore, CorrelationID: h.MessageID},
			&msgs.Pong{CurrentDateTime: time.Now().UnixMicro()})
		return err

	case msgs.MsgPong:
		return nil

	case msgs.MsgProtocolException, msgs.MsgAcknowledge:
		s.receiveCorrelated(f)
		return nil

	case msgs.MsgRequestSession, msgs.MsgOpenSession:
		s.sendError(h, protoerr.Violation(protoerr.CodeInvalidState, "session is already established"))
		return nil

	default:
		s.sendError(h, protoerr.Violation(protoerr.CodeInvalidMessageType, "unknown core message type %d", h.MessageType))
		return nil
	}
}

// receiveCorrelated handles responses to Calls and continuation parts of multi-part requests.
func (s *Session) receiveCorrelated(f msgs.Frame) {
	h := f.Header

	if c, ok := s.lookupCall(h.CorrelationID); ok {
		s.receiveResponse(c, f)
		return
	}

	s.exMutex.Lock()
	asm := s.requestParts[h.Protocol]
	s.exMutex.Unlock()

	if asm != nil && asm.IsOpen(h.CorrelationID) {
		s.receiveRequestPart(f)
		return
	}

	if isAnswer(h) {
		var err error = protoerr.Violation(protoerr.CodeInvalidState, "peer answered an unknown message")
		if msg, decErr := f.Decode(); decErr == nil {
			if pe, ok := msg.Body.(*msgs.ProtocolException); ok {
				err = protoerr.Remote(protoerr.Code(pe.Code), pe.Message)
			} else {
				return
			}
		}

		s.log().WithError(err).WithField("header", h).Debug("Received answer for an uncorrelated message")
		s.report(Status{Type: ExchangeFailed, Session: s, Header: h, Err: err})
		return
	}

	s.sendError(h, protoerr.Violation(protoerr.CodeInvalidState,
		"correlation ID %d references no open exchange", h.CorrelationID))
}

// receiveResponse adds a part to a Call's response.
func (s *Session) receiveResponse(c *Call, f msgs.Frame) {
	h := f.Header

	if h.MessageType == msgs.MsgAcknowledge {
		atomic.StoreUint32(&c.acknowledged, 1)
		return
	}

	msg, err := f.Decode()
	if err != nil {
		s.responses.Cancel(c.Header.MessageID)
		s.takeCall(c.Header.MessageID)
		c.finish(nil, err)
		s.conf.Metrics.exchangeClosed("failed")
		s.sendError(h, err)
		return
	}

	// A ProtocolException always ends a response, even without a FinalPart flag.
	final := h.IsFinalPart() || h.MessageType == msgs.MsgProtocolException

	parts, done, err := s.responses.Add(c.Header.MessageID, msg, final)
	if err != nil {
		s.log().WithError(err).WithField("header", h).Debug("Dropping response part")
		return
	}
	if done {
		s.completeCall(c, parts)
	}
}

// receiveRequestPart adds a continuation part to an open multi-part request.
func (s *Session) receiveRequestPart(f msgs.Frame) {
	h := f.Header

	ex, ok := s.lookupExchange(h.CorrelationID)
	if !ok {
		return
	}

	body, err := ex.route.decode(f)
	if err != nil {
		s.requestParts[h.Protocol].Cancel(h.CorrelationID)
		s.failExchange(ex, "failed", err)
		return
	}

	parts, done, err := s.requestParts[h.Protocol].Add(h.CorrelationID, msgs.Message{Header: h, Body: body}, h.IsFinalPart())
	if err != nil {
		s.failExchange(ex, "failed", err)
		return
	}
	if done {
		s.deliver(ex, parts)
	}
}

// receiveRequest handles the first message of an incoming request or notification.
func (s *Session) receiveRequest(f msgs.Frame) {
	h := f.Header

	if isAnswer(h) {
		s.log().WithField("header", h).Debug("Ignoring uncorrelated answer")
		return
	}

	p := s.protocols[h.Protocol]
	route, ok := s.routes.lookup(h.Key(), p.Role)
	if !ok {
		s.sendError(h, protoerr.Violation(protoerr.CodeInvalidMessageType,
			"no handler for %v in the %s role", h.Key(), p.Role))
		return
	}

	body, err := route.decode(f)
	if err != nil {
		s.sendError(h, err)
		return
	}
	msg := msgs.Message{Header: h, Body: body}

	ex := s.openExchange(h, p, route)

	if h.IsMultiPart() && !h.IsFinalPart() {
		if _, _, err := s.requestParts[h.Protocol].Add(h.MessageID, msg, false); err != nil {
			s.failExchange(ex, "rejected", err)
		}
		return
	}

	s.deliver(ex, []msgs.Message{msg})
}
