// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datatypes

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/openetp/etp-go/pkg/protoerr"
)

func TestStartIndexRoundTrip(t *testing.T) {
	indexes := []StartIndex{
		NoStartIndex(),
		Int32Index(0),
		Int32Index(-23),
		Int32Index(math.MaxInt32),
		Int64Index(42),
		Int64Index(math.MinInt64),
	}

	for _, si := range indexes {
		t.Run(si.String(), func(t *testing.T) {
			data, err := json.Marshal(StreamingStartIndex{Item: si})
			if err != nil {
				t.Fatal(err)
			}

			var ssi StreamingStartIndex
			if err := json.Unmarshal(data, &ssi); err != nil {
				t.Fatal(err)
			}
			if ssi.Item != si {
				t.Fatalf("json: expected %v, got %v from %s", si, ssi.Item, data)
			}

			var buf bytes.Buffer
			if err := si.MarshalCbor(&buf); err != nil {
				t.Fatal(err)
			}
			var si2 StartIndex
			if err := si2.UnmarshalCbor(&buf); err != nil {
				t.Fatal(err)
			}
			if si2 != si {
				t.Fatalf("cbor: expected %v, got %v", si, si2)
			}
		})
	}
}

func TestStartIndexEncodeTagged(t *testing.T) {
	tests := []struct {
		si   StartIndex
		json string
	}{
		{NoStartIndex(), `{"item":null}`},
		{Int32Index(7), `{"item":{"int":7}}`},
		{Int64Index(7), `{"item":{"long":7}}`},
	}

	for _, test := range tests {
		data, err := json.Marshal(StreamingStartIndex{Item: test.si})
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != test.json {
			t.Fatalf("expected %s, got %s", test.json, data)
		}
	}
}

func TestStartIndexDecodeBareAndTagged(t *testing.T) {
	tests := []struct {
		json string
		si   StartIndex
	}{
		{`{"item":5}`, Int32Index(5)},
		{`{"item":"5"}`, Int32Index(5)},
		{`{"item":{"int":5}}`, Int32Index(5)},
		{`{"item":{"long":5}}`, Int64Index(5)},
		{`{"item":8589934592}`, Int64Index(8589934592)},
		{`{"item":"-8589934592"}`, Int64Index(-8589934592)},
		{`{"item":null}`, NoStartIndex()},
		{`{"long":9}`, Int64Index(9)},
		{`9`, Int32Index(9)},
	}

	for _, test := range tests {
		var ssi StreamingStartIndex
		if err := json.Unmarshal([]byte(test.json), &ssi); err != nil {
			t.Fatalf("%s: %v", test.json, err)
		}
		if ssi.Item != test.si {
			t.Fatalf("%s: expected %v, got %v", test.json, test.si, ssi.Item)
		}
	}
}

func TestStartIndexDecodeErrors(t *testing.T) {
	invalid := []string{
		`{"item":{"double":5}}`,
		`{"item":{"int":5,"long":5}}`,
		`{"item":{}}`,
		`{"item":"five"}`,
		`{"item":""}`,
		`{"item":true}`,
		`{"item":1.5}`,
		`{"item":{"int":8589934592}}`,
		`{"item":5,"other":1}`,
	}

	for _, data := range invalid {
		var ssi StreamingStartIndex
		err := json.Unmarshal([]byte(data), &ssi)
		if err == nil {
			t.Fatalf("%s: expected an error, got %v", data, ssi.Item)
		}
		if !errors.Is(err, protoerr.ErrDecode) {
			t.Fatalf("%s: expected a decode error, got %v", data, err)
		}
	}
}

func TestStartIndexEncodeUnknownVariant(t *testing.T) {
	si := StartIndex{Kind: 9, Value: 1}

	if _, err := json.Marshal(si); err == nil {
		t.Fatal("unknown variant was encoded")
	}
	if err := si.MarshalCbor(new(bytes.Buffer)); err == nil {
		t.Fatal("unknown variant was encoded")
	}
}
