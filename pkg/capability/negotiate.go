// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package capability

import (
	"math"
	"time"

	log "github.com/sirupsen/logrus"
)

// Default values for capabilities absent on both sides.
const (
	DefaultResponseTimeout             = 300 * time.Second
	DefaultMultipartTimeout            = 60 * time.Second
	DefaultSessionEstablishmentTimeout = 60 * time.Second
	DefaultRequestSessionTimeout       = 45 * time.Second

	DefaultMaxPartSize            int64 = 4_000_000
	DefaultMaxDataObjectSize      int64 = 100_000_000
	DefaultMaxFramePayloadSize    int64 = 4 * 1024 * 1024
	DefaultMaxMessagePayloadSize  int64 = 16 * 1024 * 1024
	DefaultMaxConcurrentMultipart int64 = 10
)

// Negotiated holds both sides' frozen capability Sets of a session or of a protocol within a session.
type Negotiated struct {
	local *Set
	peer  *Set
}

// Negotiate freezes copies of the local and the peer's Set. Later changes to the arguments do not affect the result.
func Negotiate(local, peer *Set) *Negotiated {
	l, p := local.Clone(), peer.Clone()
	l.Freeze()
	p.Freeze()

	return &Negotiated{local: l, peer: p}
}

// Local capabilities, as sent to the peer.
func (n *Negotiated) Local() *Set {
	return n.local
}

// Peer capabilities, as received.
func (n *Negotiated) Peer() *Set {
	return n.peer
}

// EffectiveInt is the minimum of both sides' values if both are present, otherwise the present one. If neither
// side has the capability, the result is absent.
func (n *Negotiated) EffectiveInt(name string) Value {
	l, lOk := n.local.Int(name)
	p, pOk := n.peer.Int(name)

	switch {
	case lOk && pOk:
		if p < l {
			return Int(p)
		}
		return Int(l)
	case lOk:
		return Int(l)
	case pOk:
		return Int(p)
	default:
		return Absent()
	}
}

// EffectiveBool is the conjunction of both sides' values if both are present, otherwise the present one. If
// neither side has the capability, the result is absent.
func (n *Negotiated) EffectiveBool(name string) Value {
	l, lOk := n.local.Bool(name)
	p, pOk := n.peer.Bool(name)

	switch {
	case lOk && pOk:
		return Bool(l && p)
	case lOk:
		return Bool(l)
	case pOk:
		return Bool(p)
	default:
		return Absent()
	}
}

// Limits are the resolved, concrete operating limits of a session.
type Limits struct {
	ResponseTimeout             time.Duration
	MultipartTimeout            time.Duration
	SessionEstablishmentTimeout time.Duration
	RequestSessionTimeout       time.Duration

	// ActiveTimeout is zero if neither side requested one.
	ActiveTimeout time.Duration

	MaxPartSize            int64
	MaxDataObjectSize      int64
	MaxFramePayloadSize    int64
	MaxMessagePayloadSize  int64
	MaxConcurrentMultipart int

	SupportsMessageHeaderExtension bool
	SupportsAlternateRequestUris   bool
}

// DefaultLimits are the Limits if no capabilities were exchanged at all.
func DefaultLimits() Limits {
	return Negotiate(nil, nil).Limits()
}

// maxSeconds is the largest amount of seconds representable as a time.Duration.
const maxSeconds = int64(math.MaxInt64 / int64(time.Second))

// positive is the minimum of both sides' values, like EffectiveInt. Non-positive values are ignored as if they were
// absent, since a zero timeout or size would break each exchange.
func (n *Negotiated) positive(name string) (v int64, ok bool) {
	for _, set := range []*Set{n.local, n.peer} {
		x, present := set.Int(name)
		if !present {
			continue
		}
		if x <= 0 {
			log.WithFields(log.Fields{
				"capability": name,
				"value":      x,
			}).Warn("Ignoring non-positive capability")
			continue
		}
		if !ok || x < v {
			v, ok = x, true
		}
	}
	return
}

func (n *Negotiated) seconds(name string, def time.Duration) time.Duration {
	s, ok := n.positive(name)
	if !ok {
		return def
	}
	if s > maxSeconds {
		s = maxSeconds
	}
	return time.Duration(s) * time.Second
}

func (n *Negotiated) size(name string, def int64) int64 {
	if s, ok := n.positive(name); ok {
		return s
	}
	return def
}

func (n *Negotiated) flag(name string) bool {
	b, _ := n.EffectiveBool(name).AsBool()
	return b
}

// Limits resolves the effective capabilities, falling back to the defaults for absent or non-positive ones.
func (n *Negotiated) Limits() Limits {
	return Limits{
		ResponseTimeout:             n.seconds(ResponseTimeoutPeriod, DefaultResponseTimeout),
		MultipartTimeout:            n.seconds(MultipartMessageTimeoutPeriod, DefaultMultipartTimeout),
		SessionEstablishmentTimeout: n.seconds(SessionEstablishmentTimeoutPeriod, DefaultSessionEstablishmentTimeout),
		RequestSessionTimeout:       n.seconds(RequestSessionTimeoutPeriod, DefaultRequestSessionTimeout),
		ActiveTimeout:               n.seconds(ActiveTimeoutPeriod, 0),

		MaxPartSize:            n.size(MaxPartSize, DefaultMaxPartSize),
		MaxDataObjectSize:      n.size(MaxDataObjectSize, DefaultMaxDataObjectSize),
		MaxFramePayloadSize:    n.size(MaxWebSocketFramePayloadSize, DefaultMaxFramePayloadSize),
		MaxMessagePayloadSize:  n.size(MaxWebSocketMessagePayloadSize, DefaultMaxMessagePayloadSize),
		MaxConcurrentMultipart: int(n.size(MaxConcurrentMultipart, DefaultMaxConcurrentMultipart)),

		SupportsMessageHeaderExtension: n.flag(SupportsMessageHeaderExtension),
		SupportsAlternateRequestUris:   n.flag(SupportsAlternateRequestUris),
	}
}
