// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package capability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dtn7/cboring"

	"github.com/openetp/etp-go/internal/wire"
)

// Kind of a capability Value.
type Kind uint64

const (
	// KindAbsent is a capability which is not present. Absent is never equal to zero or false.
	KindAbsent Kind = iota

	// KindInt is a 64-bit integer, used for all periods in seconds and all sizes in bytes.
	KindInt

	// KindBool is a boolean feature flag.
	KindBool

	// KindStrings is a list of strings, e.g., AuthorizationDetails.
	KindStrings
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindInt:
		return "long"
	case KindBool:
		return "boolean"
	case KindStrings:
		return "ArrayOfString"
	default:
		return fmt.Sprintf("unknown(%d)", uint64(k))
	}
}

// Value is an optional capability value. The zero Value is absent.
type Value struct {
	kind Kind
	i    int64
	b    bool
	ss   []string
}

// Absent returns an absent Value.
func Absent() Value {
	return Value{}
}

// Int returns an integer Value.
func Int(n int64) Value {
	return Value{kind: KindInt, i: n}
}

// Bool returns a boolean Value.
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Strings returns a string list Value.
func Strings(ss ...string) Value {
	return Value{kind: KindStrings, ss: append([]string{}, ss...)}
}

// Kind of this Value.
func (v Value) Kind() Kind {
	return v.kind
}

// IsAbsent checks if this Value is absent.
func (v Value) IsAbsent() bool {
	return v.kind == KindAbsent
}

// AsInt returns the integer if this Value is an integer.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsBool returns the boolean if this Value is a boolean.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsStrings returns a copy of the string list if this Value is a string list.
func (v Value) AsStrings() ([]string, bool) {
	if v.kind != KindStrings {
		return nil, false
	}
	return append([]string{}, v.ss...), true
}

// Equal compares two Values by kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == o.i
	case KindBool:
		return v.b == o.b
	case KindStrings:
		if len(v.ss) != len(o.ss) {
			return false
		}
		for i := range v.ss {
			if v.ss[i] != o.ss[i] {
				return false
			}
		}
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindStrings:
		return fmt.Sprintf("%q", v.ss)
	default:
		return "absent"
	}
}

type arrayOfString struct {
	Values []string `json:"values"`
}

// MarshalJSON creates the DataValue form, e.g., {"item":{"long":4000000}}.
func (v Value) MarshalJSON() ([]byte, error) {
	var item interface{}
	switch v.kind {
	case KindAbsent:
		item = nil
	case KindInt:
		item = map[string]int64{"long": v.i}
	case KindBool:
		item = map[string]bool{"boolean": v.b}
	case KindStrings:
		ss := v.ss
		if ss == nil {
			ss = []string{}
		}
		item = map[string]arrayOfString{"ArrayOfString": {Values: ss}}
	default:
		return nil, fmt.Errorf("cannot encode capability value of kind %v", v.kind)
	}
	return json.Marshal(map[string]interface{}{"item": item})
}

// UnmarshalJSON reads a Value. Besides the DataValue form written by MarshalJSON, a bare item without the outer
// "item" object as well as the type tags "int" and "long" are accepted.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw json.RawMessage = data

	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err == nil {
		if item, ok := outer["item"]; ok && len(outer) == 1 {
			raw = item
		}
	}

	parsed, err := parseItem(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func parseItem(raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Absent(), nil
	}

	switch raw[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, err
		}
		return Bool(b), nil

	case '[':
		var ss []string
		if err := json.Unmarshal(raw, &ss); err != nil {
			return Value{}, err
		}
		return Strings(ss...), nil

	case '{':
		var tagged map[string]json.RawMessage
		if err := json.Unmarshal(raw, &tagged); err != nil {
			return Value{}, err
		}
		if len(tagged) != 1 {
			return Value{}, fmt.Errorf("capability value needs exactly one type tag, got %d", len(tagged))
		}
		for tag, inner := range tagged {
			switch tag {
			case "int", "long":
				var n int64
				if err := json.Unmarshal(inner, &n); err != nil {
					return Value{}, err
				}
				return Int(n), nil
			case "boolean":
				var b bool
				if err := json.Unmarshal(inner, &b); err != nil {
					return Value{}, err
				}
				return Bool(b), nil
			case "ArrayOfString":
				var aos arrayOfString
				if err := json.Unmarshal(inner, &aos); err != nil {
					return Value{}, err
				}
				return Strings(aos.Values...), nil
			default:
				return Value{}, fmt.Errorf("unsupported capability type %q", tag)
			}
		}

	default:
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return Value{}, err
		}
		return Int(n), nil
	}

	return Value{}, fmt.Errorf("unsupported capability value %s", raw)
}

// MarshalCbor writes this Value as a CBOR array of its kind and payload.
func (v Value) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(v.kind), w); err != nil {
		return err
	}

	switch v.kind {
	case KindAbsent:
		return cboring.WriteUInt(0, w)
	case KindInt:
		return wire.WriteInt(v.i, w)
	case KindBool:
		return cboring.WriteBoolean(v.b, w)
	case KindStrings:
		return wire.WriteStrings(v.ss, w)
	default:
		return fmt.Errorf("cannot encode capability value of kind %v", v.kind)
	}
}

// UnmarshalCbor reads a Value written by MarshalCbor.
func (v *Value) UnmarshalCbor(r io.Reader) error {
	if err := wire.ExpectArrayLength(2, r); err != nil {
		return err
	}

	kind, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}

	switch Kind(kind) {
	case KindAbsent:
		if _, err := cboring.ReadUInt(r); err != nil {
			return err
		}
		*v = Absent()
	case KindInt:
		n, err := wire.ReadInt(r)
		if err != nil {
			return err
		}
		*v = Int(n)
	case KindBool:
		b, err := cboring.ReadBoolean(r)
		if err != nil {
			return err
		}
		*v = Bool(b)
	case KindStrings:
		ss, err := wire.ReadStrings(r)
		if err != nil {
			return err
		}
		*v = Strings(ss...)
	default:
		return fmt.Errorf("unsupported capability kind %d", kind)
	}
	return nil
}
