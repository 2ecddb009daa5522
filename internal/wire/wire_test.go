// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"bytes"
	"math"
	"reflect"
	"testing"
)

func TestZigZag(t *testing.T) {
	tests := []struct {
		n int64
		u uint64
	}{
		{0, 0},
		{-1, 1},
		{1, 2},
		{-2, 3},
		{math.MaxInt64, math.MaxUint64 - 1},
		{math.MinInt64, math.MaxUint64},
	}

	for _, test := range tests {
		if u := ZigZag(test.n); u != test.u {
			t.Fatalf("ZigZag(%d) = %d, expected %d", test.n, u, test.u)
		}
		if n := UnZigZag(test.u); n != test.n {
			t.Fatalf("UnZigZag(%d) = %d, expected %d", test.u, n, test.n)
		}
	}
}

func TestOptionalIntAndStrings(t *testing.T) {
	var buf bytes.Buffer
	n := int64(-42)

	if err := WriteOptionalInt(nil, &buf); err != nil {
		t.Fatal(err)
	}
	if err := WriteOptionalInt(&n, &buf); err != nil {
		t.Fatal(err)
	}
	if err := WriteStrings([]string{"a", "bc"}, &buf); err != nil {
		t.Fatal(err)
	}

	if v, err := ReadOptionalInt(&buf); err != nil {
		t.Fatal(err)
	} else if v != nil {
		t.Fatalf("expected nil, got %d", *v)
	}
	if v, err := ReadOptionalInt(&buf); err != nil {
		t.Fatal(err)
	} else if v == nil || *v != n {
		t.Fatalf("expected %d, got %v", n, v)
	}
	if ss, err := ReadStrings(&buf); err != nil {
		t.Fatal(err)
	} else if !reflect.DeepEqual(ss, []string{"a", "bc"}) {
		t.Fatalf("unexpected strings %v", ss)
	}
}
