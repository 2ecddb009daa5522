// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package capability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/dtn7/cboring"
)

func TestValueAccessorsFailClosed(t *testing.T) {
	v := Bool(true)

	if _, ok := v.AsInt(); ok {
		t.Fatal("boolean value returned an integer")
	}
	if _, ok := v.AsStrings(); ok {
		t.Fatal("boolean value returned strings")
	}
	if b, ok := v.AsBool(); !ok || !b {
		t.Fatalf("expected true, got %t %t", b, ok)
	}

	if !Absent().IsAbsent() {
		t.Fatal("absent value is not absent")
	}
	if Int(0).IsAbsent() {
		t.Fatal("zero is absent")
	}
}

func TestValueJson(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		json  string
	}{
		{"absent", Absent(), `{"item":null}`},
		{"long", Int(4000000), `{"item":{"long":4000000}}`},
		{"boolean", Bool(false), `{"item":{"boolean":false}}`},
		{"strings", Strings("a", "b"), `{"item":{"ArrayOfString":{"values":["a","b"]}}}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data, err := json.Marshal(test.value)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != test.json {
				t.Fatalf("expected %s, got %s", test.json, data)
			}

			var v Value
			if err := json.Unmarshal(data, &v); err != nil {
				t.Fatal(err)
			}
			if !v.Equal(test.value) {
				t.Fatalf("expected %v, got %v", test.value, v)
			}
		})
	}
}

func TestValueJsonPermissive(t *testing.T) {
	tests := []struct {
		json  string
		value Value
	}{
		{`23`, Int(23)},
		{`{"int":23}`, Int(23)},
		{`{"item":{"int":23}}`, Int(23)},
		{`{"item":23}`, Int(23)},
		{`true`, Bool(true)},
		{`["x"]`, Strings("x")},
		{`null`, Absent()},
	}

	for _, test := range tests {
		var v Value
		if err := json.Unmarshal([]byte(test.json), &v); err != nil {
			t.Fatalf("%s: %v", test.json, err)
		}
		if !v.Equal(test.value) {
			t.Fatalf("%s: expected %v, got %v", test.json, test.value, v)
		}
	}

	for _, invalid := range []string{`{"double":1.5}`, `{"int":1,"long":2}`, `"foo"`} {
		var v Value
		if err := json.Unmarshal([]byte(invalid), &v); err == nil {
			t.Fatalf("%s: expected an error, got %v", invalid, v)
		}
	}
}

func TestValueCbor(t *testing.T) {
	values := []Value{Absent(), Int(-7), Int(1 << 40), Bool(true), Strings(), Strings("a", "b")}

	for _, value := range values {
		var buf bytes.Buffer
		if err := value.MarshalCbor(&buf); err != nil {
			t.Fatal(err)
		}

		var v Value
		if err := cboring.Unmarshal(&v, &buf); err != nil {
			t.Fatal(err)
		}
		if !v.Equal(value) {
			t.Fatalf("expected %v, got %v", value, v)
		}
	}
}
