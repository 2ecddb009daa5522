// SPDX-FileCopyrightText: 2020, 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/openetp/etp-go/pkg/capability"
	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/protoerr"
)

// supportedFormats are announced in the negotiation. Only the message encoding is used.
var supportedFormats = []string{"xml", "json"}

// negotiationStage exchanges RequestSession and OpenSession. The active peer sends RequestSession first, the passive
// one answers with OpenSession or a ProtocolException.
type negotiationStage struct {
	state     *state
	closeChan <-chan struct{}
}

func (ns *negotiationStage) handle(state *state, closeChan <-chan struct{}) {
	ns.state = state
	ns.closeChan = closeChan

	if state.session.conf.ActivePeer {
		state.stageError = ns.active()
	} else {
		state.stageError = ns.passive()
	}
}

func (ns *negotiationStage) log() *log.Entry {
	return ns.state.session.log().WithField("stage", "negotiation")
}

// receive the next message, bounded by a timeout.
func (ns *negotiationStage) receive(timeout time.Duration) (msgs.Frame, error) {
	s := ns.state.session

	select {
	case <-ns.closeChan:
		return msgs.Frame{}, errStageClose

	case <-time.After(timeout):
		return msgs.Frame{}, protoerr.Timeout("no session negotiation within %v", timeout)

	case data := <-ns.state.msgIn:
		return ns.frame(data)

	case <-s.messageSwitch.Done():
		select {
		case data := <-ns.state.msgIn:
			return ns.frame(data)
		default:
			return msgs.Frame{}, s.transportErr()
		}
	}
}

func (ns *negotiationStage) frame(data []byte) (msgs.Frame, error) {
	s := ns.state.session

	f, err := s.unpack(data)
	if err != nil {
		return f, err
	}
	if err := s.checkInboundID(f.Header); err != nil {
		s.sendError(f.Header, err)
		return f, err
	}
	return f, nil
}

// declared returns a snapshot of all declared protocols.
func (ns *negotiationStage) declared() map[int32]declaration {
	s := ns.state.session

	s.declMutex.Lock()
	defer s.declMutex.Unlock()

	decls := make(map[int32]declaration, len(s.declarations))
	for id, decl := range s.declarations {
		decls[id] = decl
	}
	return decls
}

// peerCapabilities checks the peer's endpoint capabilities. Unexpected kinds are only logged.
func (ns *negotiationStage) peerCapabilities(peer *capability.Set) {
	if err := capability.EndpointSchema.Check(peer); err != nil {
		ns.log().WithError(err).Warn("Peer sent unexpected endpoint capabilities")
	}
}

func (ns *negotiationStage) active() error {
	s := ns.state.session
	decls := ns.declared()

	rs := &msgs.RequestSession{
		ApplicationName:      s.conf.ApplicationName,
		ApplicationVersion:   s.conf.ApplicationVersion,
		ClientInstanceID:     s.instanceID.String(),
		SupportedFormats:     supportedFormats,
		SupportedCompression: supportedCompression(s.conf.Encoding),
		CurrentDateTime:      time.Now().UnixMicro(),
		EndpointCapabilities: s.local,
	}
	for _, decl := range decls {
		// The requested role is the one the passive peer must take.
		rs.RequestedProtocols = append(rs.RequestedProtocols, msgs.SupportedProtocol{
			Protocol:     decl.protocol,
			Version:      msgs.ProtocolVersion,
			Role:         msgs.Counterpart(decl.role),
			Capabilities: decl.caps,
		})
	}

	rsHeader, err := s.sendCore(msgs.Header{Protocol: msgs.ProtocolCore}, rs)
	if err != nil {
		return err
	}
	ns.log().WithField("protocols", len(rs.RequestedProtocols)).Debug("Sent RequestSession")

	f, err := ns.receive(s.conf.requestSessionTimeout())
	if err != nil {
		return err
	}

	switch {
	case f.Header.MessageType == msgs.MsgProtocolException && f.Header.CorrelationID == rsHeader.MessageID:
		msg, err := f.Decode()
		if err != nil {
			return err
		}
		pe := msg.Body.(*msgs.ProtocolException)
		return protoerr.Remote(protoerr.Code(pe.Code), pe.Message)

	case !f.Header.IsCore() || f.Header.MessageType != msgs.MsgOpenSession:
		err := protoerr.Violation(protoerr.CodeInvalidState, "expected OpenSession, got %v", f.Header.Key())
		s.sendError(f.Header, err)
		return err

	case f.Header.CorrelationID != rsHeader.MessageID:
		err := protoerr.Violation(protoerr.CodeInvalidState,
			"OpenSession is correlated to %d instead of %d", f.Header.CorrelationID, rsHeader.MessageID)
		s.sendError(f.Header, err)
		return err
	}

	msg, err := f.Decode()
	if err != nil {
		s.sendError(f.Header, err)
		return err
	}
	op := msg.Body.(*msgs.OpenSession)

	protocols := make(map[int32]*Protocol)
	for _, sp := range op.SupportedProtocols {
		decl, ok := decls[sp.Protocol]
		if !ok || sp.Role != msgs.Counterpart(decl.role) || sp.Version != msgs.ProtocolVersion {
			ns.log().WithField("protocol", sp).Debug("Ignoring unrequested protocol")
			continue
		}
		protocols[sp.Protocol] = &Protocol{
			ID:           sp.Protocol,
			Version:      sp.Version,
			Role:         decl.role,
			PeerRole:     sp.Role,
			Capabilities: capability.Negotiate(decl.caps, sp.Capabilities),
		}
	}
	if len(protocols) == 0 {
		return protoerr.Violation(protoerr.CodeNoSupportedProtocols, "OpenSession contains no requested protocol")
	}

	ns.peerCapabilities(op.EndpointCapabilities)

	ns.state.peerApplication = fmt.Sprintf("%s %s", op.ApplicationName, op.ApplicationVersion)
	ns.state.peerInstanceID = op.ServerInstanceID
	ns.state.sessionID = op.SessionID
	ns.state.endpoint = capability.Negotiate(s.local, op.EndpointCapabilities)
	ns.state.protocols = protocols
	return nil
}

func (ns *negotiationStage) passive() error {
	s := ns.state.session
	decls := ns.declared()

	f, err := ns.receive(s.conf.sessionEstablishmentTimeout())
	if err != nil {
		return err
	}

	if !f.Header.IsCore() || f.Header.MessageType != msgs.MsgRequestSession {
		err := protoerr.Violation(protoerr.CodeInvalidState,
			"expected RequestSession, got %v before the session was established", f.Header.Key())
		s.sendError(f.Header, err)
		return err
	}

	msg, err := f.Decode()
	if err != nil {
		s.sendError(f.Header, err)
		return err
	}
	rs := msg.Body.(*msgs.RequestSession)

	var (
		protocols = make(map[int32]*Protocol)
		accepted  []msgs.SupportedProtocol
	)
	for _, sp := range rs.RequestedProtocols {
		decl, ok := decls[sp.Protocol]
		if !ok || sp.Role != decl.role || sp.Version != msgs.ProtocolVersion {
			ns.log().WithField("protocol", sp).Debug("Rejecting requested protocol")
			continue
		}

		protocols[sp.Protocol] = &Protocol{
			ID:           sp.Protocol,
			Version:      sp.Version,
			Role:         decl.role,
			PeerRole:     msgs.Counterpart(decl.role),
			Capabilities: capability.Negotiate(decl.caps, sp.Capabilities),
		}
		accepted = append(accepted, msgs.SupportedProtocol{
			Protocol:     sp.Protocol,
			Version:      msgs.ProtocolVersion,
			Role:         decl.role,
			Capabilities: decl.caps,
		})
	}

	if len(accepted) == 0 {
		err := protoerr.Violation(protoerr.CodeNoSupportedProtocols, "none of the %d requested protocols is supported",
			len(rs.RequestedProtocols))
		s.sendError(f.Header, err)
		return err
	}

	ns.peerCapabilities(rs.EndpointCapabilities)

	sessionID := uuid.New().String()
	op := &msgs.OpenSession{
		ApplicationName:      s.conf.ApplicationName,
		ApplicationVersion:   s.conf.ApplicationVersion,
		ServerInstanceID:     s.instanceID.String(),
		SupportedProtocols:   accepted,
		SupportedFormats:     supportedFormats,
		SupportedCompression: supportedCompressionName(s.conf.Encoding),
		SessionID:            sessionID,
		CurrentDateTime:      time.Now().UnixMicro(),
		EndpointCapabilities: s.local,
	}
	if _, err := s.sendCore(msgs.Header{Protocol: msgs.ProtocolCore, CorrelationID: f.Header.MessageID}, op); err != nil {
		return err
	}
	ns.log().WithField("protocols", len(accepted)).Debug("Sent OpenSession")

	ns.state.peerApplication = fmt.Sprintf("%s %s", rs.ApplicationName, rs.ApplicationVersion)
	ns.state.peerInstanceID = rs.ClientInstanceID
	ns.state.sessionID = sessionID
	ns.state.endpoint = capability.Negotiate(s.local, rs.EndpointCapabilities)
	ns.state.protocols = protocols
	return nil
}

// supportedCompression lists the compression algorithms usable with an encoding.
func supportedCompression(enc msgs.Encoding) []string {
	if enc == msgs.EncodingBinary {
		return []string{msgs.CompressionXz}
	}
	return nil
}

func supportedCompressionName(enc msgs.Encoding) string {
	if enc == msgs.EncodingBinary {
		return msgs.CompressionXz
	}
	return ""
}
