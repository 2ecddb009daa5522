// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package multipart

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/openetp/etp-go/pkg/protoerr"
)

func TestAssemblerDelivery(t *testing.T) {
	a := NewAssembler[int](0, time.Second, nil)

	for i := 0; i < 3; i++ {
		if parts, done, err := a.Add(42, i, false); err != nil {
			t.Fatal(err)
		} else if done || parts != nil {
			t.Fatalf("delivered early: %v", parts)
		}
	}

	// Another exchange does not interfere.
	if parts, done, err := a.Add(23, 100, true); err != nil || !done || !reflect.DeepEqual(parts, []int{100}) {
		t.Fatalf("single part exchange failed: %v %t %v", parts, done, err)
	}

	parts, done, err := a.Add(42, 3, true)
	if err != nil {
		t.Fatal(err)
	}
	if !done || !reflect.DeepEqual(parts, []int{0, 1, 2, 3}) {
		t.Fatalf("expected ordered parts, got %v", parts)
	}
	if a.Len() != 0 {
		t.Fatalf("%d exchanges are still open", a.Len())
	}
}

func TestAssemblerTimeout(t *testing.T) {
	timeouts := make(chan error, 1)
	a := NewAssembler[int](0, 50*time.Millisecond, func(key uint64, err error) {
		if key != 7 {
			t.Errorf("timeout for unexpected key %d", key)
		}
		timeouts <- err
	})

	if _, _, err := a.Add(7, 1, false); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-timeouts:
		if !errors.Is(err, protoerr.ErrExchangeTimeout) {
			t.Fatalf("expected exchange timeout, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout was not reported")
	}

	// A late final part does not deliver the discarded partial data.
	parts, done, err := a.Add(7, 2, true)
	if err != nil {
		t.Fatal(err)
	}
	if !done || !reflect.DeepEqual(parts, []int{2}) {
		t.Fatalf("partial data leaked: %v", parts)
	}
}

func TestAssemblerOpenTimeout(t *testing.T) {
	timeouts := make(chan uint64, 1)
	a := NewAssembler[int](0, time.Hour, func(key uint64, _ error) { timeouts <- key })

	if err := a.Open(3, 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := a.Open(3, time.Second); err == nil {
		t.Fatal("opened an exchange twice")
	}

	select {
	case key := <-timeouts:
		if key != 3 {
			t.Fatalf("unexpected key %d", key)
		}
	case <-time.After(time.Second):
		t.Fatal("opened exchange did not time out")
	}
}

func TestAssemblerLimit(t *testing.T) {
	a := NewAssembler[int](2, time.Second, nil)

	for key := uint64(1); key <= 2; key++ {
		if _, _, err := a.Add(key, 0, false); err != nil {
			t.Fatal(err)
		}
	}

	if _, _, err := a.Add(3, 0, false); !errors.Is(err, protoerr.ErrCapabilityLimit) {
		t.Fatalf("expected capability limit error, got %v", err)
	}

	// Single part exchanges are not limited.
	if _, done, err := a.Add(4, 0, true); err != nil || !done {
		t.Fatalf("single part failed: %t %v", done, err)
	}

	if !a.Cancel(1) {
		t.Fatal("cancel of an open exchange failed")
	}
	if _, _, err := a.Add(3, 0, false); err != nil {
		t.Fatal(err)
	}
}

func TestAssemblerClose(t *testing.T) {
	timeouts := make(chan uint64, 1)
	a := NewAssembler[int](0, 20*time.Millisecond, func(key uint64, _ error) { timeouts <- key })

	if _, _, err := a.Add(1, 0, false); err != nil {
		t.Fatal(err)
	}

	if keys := a.Close(); !reflect.DeepEqual(keys, []uint64{1}) {
		t.Fatalf("unexpected keys %v", keys)
	}
	if _, _, err := a.Add(1, 1, true); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	select {
	case key := <-timeouts:
		t.Fatalf("closed exchange %d timed out", key)
	case <-time.After(100 * time.Millisecond):
	}
}
