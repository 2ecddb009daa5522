// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dtn7/cboring"
	"github.com/ulikunitz/xz"

	"github.com/openetp/etp-go/pkg/protoerr"
)

// Encoding of the messages within a session.
type Encoding uint8

const (
	// EncodingBinary is a CBOR header followed by a CBOR body.
	EncodingBinary Encoding = iota

	// EncodingJSON is a JSON array of header, extension and body.
	EncodingJSON
)

// CompressionXz names the only supported body compression, used with FlagCompressed in the binary Encoding.
const CompressionXz = "xz"

func (e Encoding) String() string {
	switch e {
	case EncodingBinary:
		return "binary"
	case EncodingJSON:
		return "json"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(e))
	}
}

// ParseEncoding parses the name of an Encoding, as used in the configuration and the RequestSession message.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(name) {
	case "binary", "":
		return EncodingBinary, nil
	case "json":
		return EncodingJSON, nil
	default:
		return 0, fmt.Errorf("unknown encoding %q", name)
	}
}

// Frame is an unpacked message whose Body is not yet decoded.
type Frame struct {
	Header   Header
	Payload  []byte
	Encoding Encoding
}

// Pack serializes a Header and Body. FlagHeaderExtension is derived from the Header's Extension.
func Pack(h Header, body Body, enc Encoding) ([]byte, error) {
	if h.Extension != nil {
		h.Flags |= FlagHeaderExtension
	} else {
		h.Flags &^= FlagHeaderExtension
	}

	switch enc {
	case EncodingBinary:
		return packBinary(h, body)
	case EncodingJSON:
		return packJson(h, body)
	default:
		return nil, fmt.Errorf("unsupported encoding %v", enc)
	}
}

func packBinary(h Header, body Body) ([]byte, error) {
	buf := new(bytes.Buffer)

	if err := h.MarshalCbor(buf); err != nil {
		return nil, fmt.Errorf("marshalling header failed: %w", err)
	}
	if h.Extension != nil {
		if err := h.Extension.MarshalCbor(buf); err != nil {
			return nil, fmt.Errorf("marshalling header extension failed: %w", err)
		}
	}

	if !h.IsCompressed() {
		if err := body.MarshalCbor(buf); err != nil {
			return nil, fmt.Errorf("marshalling body %T failed: %w", body, err)
		}
		return buf.Bytes(), nil
	}

	xzw, err := xz.NewWriter(buf)
	if err != nil {
		return nil, err
	}
	if err := body.MarshalCbor(xzw); err != nil {
		return nil, fmt.Errorf("marshalling body %T failed: %w", body, err)
	}
	if err := xzw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func packJson(h Header, body Body) ([]byte, error) {
	if h.IsCompressed() {
		return nil, protoerr.Violation(protoerr.CodeCompressionNotSupport, "compression is not supported for JSON")
	}

	return json.Marshal([]interface{}{h, h.Extension, body})
}

// Unpack reads a Header and its optional Extension. The body stays encoded in the Frame's Payload. A compressed
// payload is decompressed, bounded by maxBody bytes unless maxBody is zero.
func Unpack(data []byte, enc Encoding, maxBody int64) (f Frame, err error) {
	f.Encoding = enc

	switch enc {
	case EncodingBinary:
		err = unpackBinary(data, maxBody, &f)
	case EncodingJSON:
		err = unpackJson(data, &f)
	default:
		err = fmt.Errorf("unsupported encoding %v", enc)
	}

	if err != nil {
		err = protoerr.DecodeWrap(err, "unpacking message")
	}
	return
}

func unpackBinary(data []byte, maxBody int64, f *Frame) error {
	r := bytes.NewReader(data)

	if err := f.Header.UnmarshalCbor(r); err != nil {
		return err
	}
	if f.Header.HasExtension() {
		f.Header.Extension = new(Extension)
		if err := f.Header.Extension.UnmarshalCbor(r); err != nil {
			return err
		}
	}

	if !f.Header.IsCompressed() {
		f.Payload = data[len(data)-r.Len():]
		return nil
	}

	xzr, err := xz.NewReader(r)
	if err != nil {
		return err
	}

	var src io.Reader = xzr
	if maxBody > 0 {
		src = io.LimitReader(xzr, maxBody+1)
	}
	payload, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	if maxBody > 0 && int64(len(payload)) > maxBody {
		return fmt.Errorf("decompressed body exceeds %d bytes", maxBody)
	}
	f.Payload = payload
	return nil
}

func unpackJson(data []byte, f *Frame) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 3 {
		return fmt.Errorf("JSON message has %d parts instead of 3", len(parts))
	}

	if err := json.Unmarshal(parts[0], &f.Header); err != nil {
		return err
	}
	if f.Header.IsCompressed() {
		return fmt.Errorf("compressed JSON messages are not supported")
	}
	if f.Header.HasExtension() {
		f.Header.Extension = new(Extension)
		if err := json.Unmarshal(parts[1], f.Header.Extension); err != nil {
			return err
		}
	}

	f.Payload = parts[2]
	return nil
}

// DecodeInto decodes the Frame's Payload into a Body.
func (f Frame) DecodeInto(body Body) error {
	var err error
	switch f.Encoding {
	case EncodingBinary:
		r := bytes.NewReader(f.Payload)
		if err = cboring.Unmarshal(body, r); err == nil && r.Len() != 0 {
			err = fmt.Errorf("%d trailing bytes", r.Len())
		}
	case EncodingJSON:
		err = json.Unmarshal(f.Payload, body)
	default:
		err = fmt.Errorf("unsupported encoding %v", f.Encoding)
	}

	if err != nil {
		return protoerr.DecodeWrap(err, "decoding body %v", f.Header.Key())
	}
	return nil
}

// Decode the Frame's Payload into the registered Body type.
func (f Frame) Decode() (Message, error) {
	body, err := NewBody(f.Header.Key())
	if err != nil {
		return Message{Header: f.Header}, err
	}
	if err := f.DecodeInto(body); err != nil {
		return Message{Header: f.Header}, err
	}
	return Message{Header: f.Header, Body: body}, nil
}
