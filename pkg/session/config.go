// SPDX-FileCopyrightText: 2020, 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/openetp/etp-go/pkg/capability"
	"github.com/openetp/etp-go/pkg/msgs"
)

// Configuration of a Session.
type Configuration struct {
	// ActivePeer indicates if this peer is the "active" entity in the session, i.e., the one sending RequestSession.
	ActivePeer bool

	// ApplicationName and ApplicationVersion are announced to the peer.
	ApplicationName    string
	ApplicationVersion string

	// InstanceID identifies this application instance. A zero value results in a random UUID.
	InstanceID uuid.UUID

	// Encoding of all messages within this session.
	Encoding msgs.Encoding

	// Capabilities are this endpoint's capabilities, sent to the peer during the negotiation.
	Capabilities capability.Endpoint

	// HandlerTimeout is the time budget for an application to respond to a delivered request. A zero value uses the
	// negotiated ResponseTimeoutPeriod.
	HandlerTimeout time.Duration

	// Metrics are optional.
	Metrics *Metrics
}

// requestSessionTimeout is the active peer's time to wait for OpenSession.
func (conf Configuration) requestSessionTimeout() time.Duration {
	if p := conf.Capabilities.RequestSessionTimeoutPeriod; p != nil && *p > 0 {
		return time.Duration(*p) * time.Second
	}
	return capability.DefaultRequestSessionTimeout
}

// sessionEstablishmentTimeout is the passive peer's time to wait for RequestSession.
func (conf Configuration) sessionEstablishmentTimeout() time.Duration {
	if p := conf.Capabilities.SessionEstablishmentTimeoutPeriod; p != nil && *p > 0 {
		return time.Duration(*p) * time.Second
	}
	return capability.DefaultSessionEstablishmentTimeout
}

// maxIncomingSize bounds a single incoming message, including decompression.
func (conf Configuration) maxIncomingSize() int64 {
	if p := conf.Capabilities.MaxWebSocketMessagePayloadSize; p != nil && *p > 0 {
		return *p
	}
	return capability.DefaultMaxMessagePayloadSize
}

// maxFrameBuffer is the largest write buffer and thus outgoing WebSocket frame payload, as gorilla's default.
const maxFrameBuffer = 4096

// frameSize is the payload size of outgoing WebSocket frames. Larger messages are fragmented into multiple frames.
// A local MaxWebSocketFramePayloadSize below maxFrameBuffer shrinks the frames.
func (conf Configuration) frameSize() int {
	if p := conf.Capabilities.MaxWebSocketFramePayloadSize; p != nil && *p > 0 && *p < maxFrameBuffer {
		return int(*p)
	}
	return maxFrameBuffer
}
