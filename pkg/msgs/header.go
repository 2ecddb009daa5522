// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"fmt"
	"io"
	"sort"

	"github.com/dtn7/cboring"

	"github.com/openetp/etp-go/internal/wire"
	"github.com/openetp/etp-go/pkg/protoerr"
)

// Header of each ETP message.
type Header struct {
	Protocol      int32  `json:"protocol"`
	MessageType   int32  `json:"messageType"`
	MessageID     uint64 `json:"messageId"`
	CorrelationID uint64 `json:"correlationId"`
	Flags         Flags  `json:"messageFlags"`

	// Extension is only transmitted if FlagHeaderExtension is set.
	Extension *Extension `json:"-"`
}

func (h Header) String() string {
	return fmt.Sprintf("Header(protocol=%d, type=%d, id=%d, correlation=%d, flags=%v)",
		h.Protocol, h.MessageType, h.MessageID, h.CorrelationID, h.Flags)
}

// Key of this Header's body type.
func (h Header) Key() Key {
	return Key{Protocol: h.Protocol, MessageType: h.MessageType}
}

func (h Header) IsMultiPart() bool       { return h.Flags.Has(FlagMultiPart) }
func (h Header) IsFinalPart() bool       { return h.Flags.Has(FlagFinalPart) }
func (h Header) IsNoData() bool          { return h.Flags.Has(FlagNoData) }
func (h Header) IsCompressed() bool      { return h.Flags.Has(FlagCompressed) }
func (h Header) IsAcknowledge() bool     { return h.Flags.Has(FlagAcknowledge) }
func (h Header) IsHistoricalRange() bool { return h.Flags.Has(FlagHistoricalRange) }
func (h Header) HasExtension() bool      { return h.Flags.Has(FlagHeaderExtension) }

// IsCorrelated checks if this message answers another message.
func (h Header) IsCorrelated() bool {
	return h.CorrelationID != 0
}

// IsCore checks if this message belongs to the core session protocol.
func (h Header) IsCore() bool {
	return h.Protocol == ProtocolCore
}

// MarshalCbor writes the Header as a CBOR array, excluding the Extension.
func (h Header) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(5, w); err != nil {
		return err
	}
	for _, n := range []int32{h.Protocol, h.MessageType} {
		if err := wire.WriteInt(int64(n), w); err != nil {
			return err
		}
	}
	for _, n := range []uint64{h.MessageID, h.CorrelationID, uint64(h.Flags)} {
		if err := cboring.WriteUInt(n, w); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalCbor reads a Header written by MarshalCbor.
func (h *Header) UnmarshalCbor(r io.Reader) error {
	if err := wire.ExpectArrayLength(5, r); err != nil {
		return err
	}

	for _, n := range []*int32{&h.Protocol, &h.MessageType} {
		v, err := wire.ReadInt(r)
		if err != nil {
			return err
		}
		if int64(int32(v)) != v {
			return fmt.Errorf("header field %d exceeds 32 bits", v)
		}
		*n = int32(v)
	}

	for _, n := range []*uint64{&h.MessageID, &h.CorrelationID} {
		v, err := cboring.ReadUInt(r)
		if err != nil {
			return err
		}
		*n = v
	}

	flags, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	if flags > 0xff {
		return fmt.Errorf("header flags %x exceed 8 bits", flags)
	}
	h.Flags = Flags(flags)

	return nil
}

// Extension is the optional header annex of a message. Its presence must be negotiated by the
// SupportsMessageHeaderExtension capability.
type Extension struct {
	Fields map[string]string `json:"extension"`
}

func (e Extension) MarshalCbor(w io.Writer) error {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if err := cboring.WriteMapPairLength(uint64(len(keys)), w); err != nil {
		return err
	}
	for _, k := range keys {
		if err := cboring.WriteTextString(k, w); err != nil {
			return err
		}
		if err := cboring.WriteTextString(e.Fields[k], w); err != nil {
			return err
		}
	}
	return nil
}

func (e *Extension) UnmarshalCbor(r io.Reader) error {
	l, err := cboring.ReadMapPairLength(r)
	if err != nil {
		return err
	}

	e.Fields = make(map[string]string, l)
	for i := uint64(0); i < l; i++ {
		k, err := cboring.ReadTextString(r)
		if err != nil {
			return err
		}
		v, err := cboring.ReadTextString(r)
		if err != nil {
			return err
		}
		e.Fields[k] = v
	}
	return nil
}

// CheckValid reports inconsistencies between the Header's flags and its fields.
func (h Header) CheckValid() error {
	if h.MessageID == 0 {
		return protoerr.Violation(protoerr.CodeInvalidMessage, "message id zero is reserved")
	}
	if h.HasExtension() != (h.Extension != nil) {
		return protoerr.Violation(protoerr.CodeInvalidMessage, "header extension flag mismatches extension")
	}
	return nil
}
