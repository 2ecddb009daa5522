// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"

	"github.com/openetp/etp-go/internal/wire"
	"github.com/openetp/etp-go/pkg/capability"
)

// ProtocolCore is the session control protocol.
const ProtocolCore int32 = 0

// Message types of the core protocol. ProtocolException and Acknowledge are valid within every protocol.
const (
	MsgRequestSession    int32 = 1
	MsgOpenSession       int32 = 2
	MsgCloseSession      int32 = 5
	MsgPing              int32 = 8
	MsgPong              int32 = 9
	MsgProtocolException int32 = 1000
	MsgAcknowledge       int32 = 1001
)

// ProtocolVersion is the only supported version of all protocols.
const ProtocolVersion = "1.2"

func init() {
	RegisterBody(&RequestSession{})
	RegisterBody(&OpenSession{})
	RegisterBody(&CloseSession{})
	RegisterBody(&Ping{})
	RegisterBody(&Pong{})
	RegisterBody(&ProtocolException{})
	RegisterBody(&Acknowledge{})
}

func writeSet(s *capability.Set, w io.Writer) error {
	if s == nil {
		s = capability.NewSet()
	}
	return s.MarshalCbor(w)
}

func readSet(r io.Reader) (*capability.Set, error) {
	s := capability.NewSet()
	if err := s.UnmarshalCbor(r); err != nil {
		return nil, err
	}
	return s, nil
}

// SupportedProtocol is a protocol offered or accepted within the negotiation.
type SupportedProtocol struct {
	Protocol int32  `json:"protocol"`
	Version  string `json:"protocolVersion"`

	// Role is the role the passive peer plays for this protocol.
	Role string `json:"role"`

	Capabilities *capability.Set `json:"protocolCapabilities"`
}

func (sp SupportedProtocol) String() string {
	return fmt.Sprintf("%d(%s, %s)", sp.Protocol, sp.Version, sp.Role)
}

func (sp SupportedProtocol) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(4, w); err != nil {
		return err
	}
	if err := wire.WriteInt(int64(sp.Protocol), w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(sp.Version, w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(sp.Role, w); err != nil {
		return err
	}
	return writeSet(sp.Capabilities, w)
}

func (sp *SupportedProtocol) UnmarshalCbor(r io.Reader) (err error) {
	if err = wire.ExpectArrayLength(4, r); err != nil {
		return
	}

	protocol, err := wire.ReadInt(r)
	if err != nil {
		return
	}
	sp.Protocol = int32(protocol)

	if sp.Version, err = cboring.ReadTextString(r); err != nil {
		return
	}
	if sp.Role, err = cboring.ReadTextString(r); err != nil {
		return
	}
	sp.Capabilities, err = readSet(r)
	return
}

func writeProtocols(sps []SupportedProtocol, w io.Writer) error {
	if err := cboring.WriteArrayLength(uint64(len(sps)), w); err != nil {
		return err
	}
	for _, sp := range sps {
		if err := sp.MarshalCbor(w); err != nil {
			return err
		}
	}
	return nil
}

func readProtocols(r io.Reader) ([]SupportedProtocol, error) {
	l, err := cboring.ReadArrayLength(r)
	if err != nil {
		return nil, err
	}

	sps := make([]SupportedProtocol, 0, l)
	for i := uint64(0); i < l; i++ {
		var sp SupportedProtocol
		if err := sp.UnmarshalCbor(r); err != nil {
			return nil, err
		}
		sps = append(sps, sp)
	}
	return sps, nil
}

// RequestSession is the active peer's first message, offering protocols and capabilities.
type RequestSession struct {
	ApplicationName      string              `json:"applicationName"`
	ApplicationVersion   string              `json:"applicationVersion"`
	ClientInstanceID     string              `json:"clientInstanceId"`
	RequestedProtocols   []SupportedProtocol `json:"requestedProtocols"`
	SupportedFormats     []string            `json:"supportedFormats"`
	SupportedCompression []string            `json:"supportedCompression"`
	CurrentDateTime      int64               `json:"currentDateTime"`
	EndpointCapabilities *capability.Set     `json:"endpointCapabilities"`
}

func (*RequestSession) MessageKey() Key {
	return Key{Protocol: ProtocolCore, MessageType: MsgRequestSession}
}

func (rs *RequestSession) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(8, w); err != nil {
		return err
	}
	for _, s := range []string{rs.ApplicationName, rs.ApplicationVersion, rs.ClientInstanceID} {
		if err := cboring.WriteTextString(s, w); err != nil {
			return err
		}
	}
	if err := writeProtocols(rs.RequestedProtocols, w); err != nil {
		return err
	}
	if err := wire.WriteStrings(rs.SupportedFormats, w); err != nil {
		return err
	}
	if err := wire.WriteStrings(rs.SupportedCompression, w); err != nil {
		return err
	}
	if err := wire.WriteInt(rs.CurrentDateTime, w); err != nil {
		return err
	}
	return writeSet(rs.EndpointCapabilities, w)
}

func (rs *RequestSession) UnmarshalCbor(r io.Reader) (err error) {
	if err = wire.ExpectArrayLength(8, r); err != nil {
		return
	}
	for _, s := range []*string{&rs.ApplicationName, &rs.ApplicationVersion, &rs.ClientInstanceID} {
		if *s, err = cboring.ReadTextString(r); err != nil {
			return
		}
	}
	if rs.RequestedProtocols, err = readProtocols(r); err != nil {
		return
	}
	if rs.SupportedFormats, err = wire.ReadStrings(r); err != nil {
		return
	}
	if rs.SupportedCompression, err = wire.ReadStrings(r); err != nil {
		return
	}
	if rs.CurrentDateTime, err = wire.ReadInt(r); err != nil {
		return
	}
	rs.EndpointCapabilities, err = readSet(r)
	return
}

// OpenSession is the passive peer's answer to RequestSession.
type OpenSession struct {
	ApplicationName      string              `json:"applicationName"`
	ApplicationVersion   string              `json:"applicationVersion"`
	ServerInstanceID     string              `json:"serverInstanceId"`
	SupportedProtocols   []SupportedProtocol `json:"supportedProtocols"`
	SupportedFormats     []string            `json:"supportedFormats"`
	SupportedCompression string              `json:"supportedCompression"`
	SessionID            string              `json:"sessionId"`
	CurrentDateTime      int64               `json:"currentDateTime"`
	EndpointCapabilities *capability.Set     `json:"endpointCapabilities"`
}

func (*OpenSession) MessageKey() Key {
	return Key{Protocol: ProtocolCore, MessageType: MsgOpenSession}
}

func (op *OpenSession) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(9, w); err != nil {
		return err
	}
	for _, s := range []string{op.ApplicationName, op.ApplicationVersion, op.ServerInstanceID} {
		if err := cboring.WriteTextString(s, w); err != nil {
			return err
		}
	}
	if err := writeProtocols(op.SupportedProtocols, w); err != nil {
		return err
	}
	if err := wire.WriteStrings(op.SupportedFormats, w); err != nil {
		return err
	}
	for _, s := range []string{op.SupportedCompression, op.SessionID} {
		if err := cboring.WriteTextString(s, w); err != nil {
			return err
		}
	}
	if err := wire.WriteInt(op.CurrentDateTime, w); err != nil {
		return err
	}
	return writeSet(op.EndpointCapabilities, w)
}

func (op *OpenSession) UnmarshalCbor(r io.Reader) (err error) {
	if err = wire.ExpectArrayLength(9, r); err != nil {
		return
	}
	for _, s := range []*string{&op.ApplicationName, &op.ApplicationVersion, &op.ServerInstanceID} {
		if *s, err = cboring.ReadTextString(r); err != nil {
			return
		}
	}
	if op.SupportedProtocols, err = readProtocols(r); err != nil {
		return
	}
	if op.SupportedFormats, err = wire.ReadStrings(r); err != nil {
		return
	}
	for _, s := range []*string{&op.SupportedCompression, &op.SessionID} {
		if *s, err = cboring.ReadTextString(r); err != nil {
			return
		}
	}
	if op.CurrentDateTime, err = wire.ReadInt(r); err != nil {
		return
	}
	op.EndpointCapabilities, err = readSet(r)
	return
}

// CloseSession ends a session gracefully.
type CloseSession struct {
	Reason string `json:"reason"`
}

func (*CloseSession) MessageKey() Key {
	return Key{Protocol: ProtocolCore, MessageType: MsgCloseSession}
}

func (cs *CloseSession) MarshalCbor(w io.Writer) error {
	return cboring.WriteTextString(cs.Reason, w)
}

func (cs *CloseSession) UnmarshalCbor(r io.Reader) (err error) {
	cs.Reason, err = cboring.ReadTextString(r)
	return
}

// ProtocolException reports an error, correlated to the failed request if possible.
type ProtocolException struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

func (*ProtocolException) MessageKey() Key {
	return Key{Protocol: ProtocolCore, MessageType: MsgProtocolException}
}

func (pe *ProtocolException) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := wire.WriteInt(int64(pe.Code), w); err != nil {
		return err
	}
	return cboring.WriteTextString(pe.Message, w)
}

func (pe *ProtocolException) UnmarshalCbor(r io.Reader) error {
	if err := wire.ExpectArrayLength(2, r); err != nil {
		return err
	}
	code, err := wire.ReadInt(r)
	if err != nil {
		return err
	}
	pe.Code = int32(code)
	pe.Message, err = cboring.ReadTextString(r)
	return err
}

func (pe ProtocolException) String() string {
	return fmt.Sprintf("ProtocolException(%d: %s)", pe.Code, pe.Message)
}

// Acknowledge confirms a message sent with FlagAcknowledge.
type Acknowledge struct{}

func (*Acknowledge) MessageKey() Key {
	return Key{Protocol: ProtocolCore, MessageType: MsgAcknowledge}
}

func (*Acknowledge) MarshalCbor(w io.Writer) error {
	return cboring.WriteArrayLength(0, w)
}

func (*Acknowledge) UnmarshalCbor(r io.Reader) error {
	return wire.ExpectArrayLength(0, r)
}

// Ping checks the liveness of the peer, which answers with a correlated Pong.
type Ping struct {
	CurrentDateTime int64 `json:"currentDateTime"`
}

func (*Ping) MessageKey() Key {
	return Key{Protocol: ProtocolCore, MessageType: MsgPing}
}

func (p *Ping) MarshalCbor(w io.Writer) error {
	return wire.WriteInt(p.CurrentDateTime, w)
}

func (p *Ping) UnmarshalCbor(r io.Reader) (err error) {
	p.CurrentDateTime, err = wire.ReadInt(r)
	return
}

// Pong answers a Ping.
type Pong struct {
	CurrentDateTime int64 `json:"currentDateTime"`
}

func (*Pong) MessageKey() Key {
	return Key{Protocol: ProtocolCore, MessageType: MsgPong}
}

func (p *Pong) MarshalCbor(w io.Writer) error {
	return wire.WriteInt(p.CurrentDateTime, w)
}

func (p *Pong) UnmarshalCbor(r io.Reader) (err error) {
	p.CurrentDateTime, err = wire.ReadInt(r)
	return
}
