// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datatypes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/dtn7/cboring"

	"github.com/openetp/etp-go/internal/wire"
	"github.com/openetp/etp-go/pkg/protoerr"
)

// IndexKind is the active variant of a StartIndex.
type IndexKind uint64

const (
	IndexAbsent IndexKind = 0
	IndexInt32  IndexKind = 1
	IndexInt64  IndexKind = 2
)

func (k IndexKind) String() string {
	switch k {
	case IndexAbsent:
		return "absent"
	case IndexInt32:
		return "int"
	case IndexInt64:
		return "long"
	default:
		return fmt.Sprintf("unknown(%d)", uint64(k))
	}
}

// StartIndex is either absent, a 32-bit or a 64-bit integer. The zero value is absent.
type StartIndex struct {
	Kind  IndexKind
	Value int64
}

// NoStartIndex is the absent StartIndex.
func NoStartIndex() StartIndex {
	return StartIndex{}
}

// Int32Index creates a 32-bit StartIndex.
func Int32Index(n int32) StartIndex {
	return StartIndex{Kind: IndexInt32, Value: int64(n)}
}

// Int64Index creates a 64-bit StartIndex.
func Int64Index(n int64) StartIndex {
	return StartIndex{Kind: IndexInt64, Value: n}
}

// IsAbsent checks if no index is set.
func (si StartIndex) IsAbsent() bool {
	return si.Kind == IndexAbsent
}

func (si StartIndex) String() string {
	if si.IsAbsent() {
		return "absent"
	}
	return fmt.Sprintf("%v(%d)", si.Kind, si.Value)
}

func (si StartIndex) check() error {
	switch si.Kind {
	case IndexAbsent:
		return nil
	case IndexInt32:
		if si.Value < math.MinInt32 || si.Value > math.MaxInt32 {
			return fmt.Errorf("value %d exceeds a 32-bit start index", si.Value)
		}
		return nil
	case IndexInt64:
		return nil
	default:
		return fmt.Errorf("unsupported start index variant %v", si.Kind)
	}
}

// classify picks the narrowest variant for a bare integer.
func classify(n int64) StartIndex {
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return Int32Index(int32(n))
	}
	return Int64Index(n)
}

// MarshalJSON always writes the tagged form, e.g., {"long":23}, or null if absent.
func (si StartIndex) MarshalJSON() ([]byte, error) {
	if err := si.check(); err != nil {
		return nil, err
	}

	switch si.Kind {
	case IndexInt32:
		return json.Marshal(map[string]int64{"int": si.Value})
	case IndexInt64:
		return json.Marshal(map[string]int64{"long": si.Value})
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, a bare number, a numeric string or an object with exactly one of the keys "int" or
// "long". Everything else results in a decoding error.
func (si *StartIndex) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return protoerr.Decode("empty start index")
	}

	switch data[0] {
	case 'n':
		if !bytes.Equal(data, []byte("null")) {
			return protoerr.Decode("unsupported data type %s", data)
		}
		*si = NoStartIndex()
		return nil

	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return protoerr.DecodeWrap(err, "start index string")
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return protoerr.DecodeWrap(err, "start index string %q is not an integer", s)
		}
		*si = classify(n)
		return nil

	case '{':
		return si.unmarshalTagged(data)

	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return protoerr.DecodeWrap(err, "start index number %s", data)
		}
		*si = classify(n)
		return nil

	default:
		return protoerr.Decode("unsupported data type %s", data)
	}
}

func (si *StartIndex) unmarshalTagged(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return protoerr.DecodeWrap(err, "start index object")
	}
	if len(tagged) != 1 {
		return protoerr.Decode("unsupported data type: start index object has %d keys", len(tagged))
	}

	for key, raw := range tagged {
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return protoerr.DecodeWrap(err, "start index %q value", key)
		}

		switch key {
		case "int":
			if n < math.MinInt32 || n > math.MaxInt32 {
				return protoerr.Decode("start index %d exceeds int", n)
			}
			*si = Int32Index(int32(n))
		case "long":
			*si = Int64Index(n)
		default:
			return protoerr.Decode("unsupported data type %q", key)
		}
	}
	return nil
}

// MarshalCbor writes the compact form, a CBOR array of the variant and the zigzag encoded value.
func (si StartIndex) MarshalCbor(w io.Writer) error {
	if err := si.check(); err != nil {
		return err
	}

	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(si.Kind), w); err != nil {
		return err
	}
	return wire.WriteInt(si.Value, w)
}

// UnmarshalCbor reads the compact form written by MarshalCbor.
func (si *StartIndex) UnmarshalCbor(r io.Reader) error {
	if err := wire.ExpectArrayLength(2, r); err != nil {
		return protoerr.DecodeWrap(err, "start index")
	}

	kind, err := cboring.ReadUInt(r)
	if err != nil {
		return protoerr.DecodeWrap(err, "start index variant")
	}
	n, err := wire.ReadInt(r)
	if err != nil {
		return protoerr.DecodeWrap(err, "start index value")
	}

	tmp := StartIndex{Kind: IndexKind(kind), Value: n}
	if tmp.Kind == IndexAbsent {
		tmp.Value = 0
	}
	if err := tmp.check(); err != nil {
		return protoerr.DecodeWrap(err, "start index")
	}

	*si = tmp
	return nil
}

// StreamingStartIndex wraps a StartIndex into an object with an "item" property, as used by the streaming
// protocol's ChannelStreamingInfo.
type StreamingStartIndex struct {
	Item StartIndex `json:"item"`
}

// UnmarshalJSON reads {"item": ...}. An index without the surrounding object is accepted as well.
func (ssi *StreamingStartIndex) UnmarshalJSON(data []byte) error {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err == nil {
		if item, ok := outer["item"]; ok {
			if len(outer) != 1 {
				return protoerr.Decode("unsupported data type: streaming start index has %d keys", len(outer))
			}
			return ssi.Item.UnmarshalJSON(item)
		}
	}

	return ssi.Item.UnmarshalJSON(data)
}

func (ssi StreamingStartIndex) MarshalCbor(w io.Writer) error {
	return ssi.Item.MarshalCbor(w)
}

func (ssi *StreamingStartIndex) UnmarshalCbor(r io.Reader) error {
	return ssi.Item.UnmarshalCbor(r)
}
