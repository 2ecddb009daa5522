// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package capability

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestSetFreeze(t *testing.T) {
	s := NewSet()
	if err := s.Set(MaxPartSize, Int(1024)); err != nil {
		t.Fatal(err)
	}

	s.Freeze()
	if err := s.Set(MaxPartSize, Int(1)); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}
	if n, _ := s.Int(MaxPartSize); n != 1024 {
		t.Fatalf("frozen set changed to %d", n)
	}
}

func TestSetMerge(t *testing.T) {
	a := NewSet()
	_ = a.Set(MaxPartSize, Int(1024))
	_ = a.Set(SupportsMessageHeaderExtension, Bool(true))

	b := NewSet()
	_ = b.Set(MaxPartSize, Int(2048))
	_ = b.Set("Vendor", Strings("x"))

	m := a.Merge(b)
	if !m.Frozen() {
		t.Fatal("merged set is not frozen")
	}
	if n, _ := m.Int(MaxPartSize); n != 2048 {
		t.Fatalf("expected 2048, got %d", n)
	}
	if names := m.Names(); !reflect.DeepEqual(names, []string{MaxPartSize, SupportsMessageHeaderExtension, "Vendor"}) {
		t.Fatalf("unexpected names %v", names)
	}

	// The sources are untouched.
	if n, _ := a.Int(MaxPartSize); n != 1024 {
		t.Fatalf("source changed to %d", n)
	}
}

func TestSetAbsentRemoves(t *testing.T) {
	s := NewSet()
	_ = s.Set(MaxPartSize, Int(1))
	_ = s.Set(MaxPartSize, Absent())

	if s.Len() != 0 {
		t.Fatalf("expected an empty set, got %v", s)
	}
}

func TestSetEncodings(t *testing.T) {
	s := NewSet()
	_ = s.Set(MaxPartSize, Int(1024))
	_ = s.Set(SupportsAlternateRequestUris, Bool(false))
	_ = s.Set(AuthorizationDetails, Strings("Bearer"))

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	s2 := NewSet()
	if err := json.Unmarshal(data, s2); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := s.MarshalCbor(&buf); err != nil {
		t.Fatal(err)
	}
	s3 := NewSet()
	if err := s3.UnmarshalCbor(&buf); err != nil {
		t.Fatal(err)
	}

	for _, other := range []*Set{s2, s3} {
		for _, name := range s.Names() {
			if !s.Get(name).Equal(other.Get(name)) {
				t.Fatalf("%s: expected %v, got %v", name, s.Get(name), other.Get(name))
			}
		}
		if other.Len() != s.Len() {
			t.Fatalf("expected %d entries, got %d", s.Len(), other.Len())
		}
	}
}

func TestEndpointRoundTrip(t *testing.T) {
	partSize := int64(4096)
	ext := true

	e := Endpoint{
		MaxPartSize:                    &partSize,
		SupportsMessageHeaderExtension: &ext,
		AuthorizationDetails:           []string{"Bearer"},
		Other:                          map[string]Value{"Vendor": Int(1)},
	}

	s := e.ToSet()
	if s.Len() != 4 {
		t.Fatalf("expected 4 capabilities, got %v", s)
	}

	e2 := EndpointFromSet(s)
	if e2.MaxPartSize == nil || *e2.MaxPartSize != partSize {
		t.Fatalf("MaxPartSize got lost: %v", e2.MaxPartSize)
	}
	if e2.ResponseTimeoutPeriod != nil {
		t.Fatal("absent ResponseTimeoutPeriod became present")
	}
	if !e2.Other["Vendor"].Equal(Int(1)) {
		t.Fatalf("unknown capability got lost: %v", e2.Other)
	}
}

func TestSchemaCheck(t *testing.T) {
	s := NewSet()
	_ = s.Set(MaxPartSize, Bool(true))
	_ = s.Set(ResponseTimeoutPeriod, Int(-1))
	_ = s.Set("Vendor", Bool(true))

	err := EndpointSchema.Check(s)
	if err == nil {
		t.Fatal("expected errors")
	}

	type wrapped interface{ WrappedErrors() []error }
	if me, ok := err.(wrapped); !ok {
		t.Fatalf("expected a multierror, got %T", err)
	} else if l := len(me.WrappedErrors()); l != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", l, err)
	}

	// A mistyped capability reads as absent.
	if _, ok := s.Int(MaxPartSize); ok {
		t.Fatal("mistyped capability was returned")
	}
}
