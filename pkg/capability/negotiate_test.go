// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package capability

import (
	"math"
	"testing"
	"time"
)

func TestNegotiateEffective(t *testing.T) {
	local := NewSet()
	_ = local.Set(MaxPartSize, Int(4096))
	_ = local.Set(ResponseTimeoutPeriod, Int(10))
	_ = local.Set(SupportsMessageHeaderExtension, Bool(true))

	peer := NewSet()
	_ = peer.Set(MaxPartSize, Int(1024))
	_ = peer.Set(MaxConcurrentMultipart, Int(3))
	_ = peer.Set(SupportsMessageHeaderExtension, Bool(false))

	n := Negotiate(local, peer)

	tests := []struct {
		name     string
		value    Value
		expected Value
	}{
		{"minimum", n.EffectiveInt(MaxPartSize), Int(1024)},
		{"local only", n.EffectiveInt(ResponseTimeoutPeriod), Int(10)},
		{"peer only", n.EffectiveInt(MaxConcurrentMultipart), Int(3)},
		{"absent on both", n.EffectiveInt(MaxDataObjectSize), Absent()},
		{"conjunction", n.EffectiveBool(SupportsMessageHeaderExtension), Bool(false)},
		{"absent flag", n.EffectiveBool(SupportsAlternateRequestUris), Absent()},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if !test.value.Equal(test.expected) {
				t.Fatalf("expected %v, got %v", test.expected, test.value)
			}
		})
	}

	// Changes after the negotiation do not leak in.
	_ = local.Set(MaxPartSize, Int(1))
	if !n.EffectiveInt(MaxPartSize).Equal(Int(1024)) {
		t.Fatal("negotiated capabilities changed")
	}
	if !n.Local().Frozen() || !n.Peer().Frozen() {
		t.Fatal("negotiated sets are not frozen")
	}
}

func TestNegotiateLimits(t *testing.T) {
	peer := NewSet()
	_ = peer.Set(MultipartMessageTimeoutPeriod, Int(5))
	_ = peer.Set(MaxPartSize, Int(512))

	l := Negotiate(nil, peer).Limits()

	if l.MultipartTimeout != 5*time.Second {
		t.Fatalf("expected 5s, got %v", l.MultipartTimeout)
	}
	if l.MaxPartSize != 512 {
		t.Fatalf("expected 512, got %d", l.MaxPartSize)
	}
	if l.ResponseTimeout != DefaultResponseTimeout {
		t.Fatalf("expected default response timeout, got %v", l.ResponseTimeout)
	}
	if l.MaxConcurrentMultipart != int(DefaultMaxConcurrentMultipart) {
		t.Fatalf("expected default concurrency, got %d", l.MaxConcurrentMultipart)
	}
	if l.ActiveTimeout != 0 || l.SupportsMessageHeaderExtension {
		t.Fatalf("unexpected limits %+v", l)
	}
}

func TestNegotiateNonPositive(t *testing.T) {
	local := NewSet()
	_ = local.Set(MultipartMessageTimeoutPeriod, Int(10))
	_ = local.Set(MaxPartSize, Int(0))

	peer := NewSet()
	_ = peer.Set(ResponseTimeoutPeriod, Int(0))
	_ = peer.Set(MultipartMessageTimeoutPeriod, Int(-1))
	_ = peer.Set(SessionEstablishmentTimeoutPeriod, Int(math.MaxInt64))
	_ = peer.Set(MaxConcurrentMultipart, Int(-3))

	n := Negotiate(local, peer)
	limits := n.Limits()

	if limits.ResponseTimeout != DefaultResponseTimeout {
		t.Fatalf("zero response timeout resulted in %v", limits.ResponseTimeout)
	}
	if limits.MultipartTimeout != 10*time.Second {
		t.Fatalf("negative peer value resulted in %v", limits.MultipartTimeout)
	}
	if limits.SessionEstablishmentTimeout <= 0 {
		t.Fatalf("huge period overflowed to %v", limits.SessionEstablishmentTimeout)
	}
	if limits.MaxPartSize != DefaultMaxPartSize {
		t.Fatalf("zero part size resulted in %d", limits.MaxPartSize)
	}
	if limits.MaxConcurrentMultipart != int(DefaultMaxConcurrentMultipart) {
		t.Fatalf("negative concurrency resulted in %d", limits.MaxConcurrentMultipart)
	}

	// The effective values are still reported as exchanged.
	if v := n.EffectiveInt(ResponseTimeoutPeriod); !v.Equal(Int(0)) {
		t.Fatalf("expected the raw value 0, got %v", v)
	}
}
