// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"fmt"
	"sync"

	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/protoerr"
)

// HandlerFunc is notified about a completely received request. Returning an error closes the exchange with a
// correlated ProtocolException. Returning nil without a response leaves the exchange open for an asynchronous
// response, bounded by the HandlerTimeout.
type HandlerFunc func(req *Request) error

// DecodeFunc decodes a message's body.
type DecodeFunc func(f msgs.Frame) (msgs.Body, error)

// Route binds a handler to a message type of a protocol for one role.
type Route struct {
	Protocol    int32
	MessageType int32

	// Role of this endpoint in which the handler answers, e.g., "store".
	Role string

	// Decode is optional and defaults to the registered msgs.Body.
	Decode DecodeFunc

	Handle HandlerFunc

	// Notification marks messages without any response, e.g., streamed data.
	Notification bool
}

func (r Route) key() msgs.Key {
	return msgs.Key{Protocol: r.Protocol, MessageType: r.MessageType}
}

func (r Route) decode(f msgs.Frame) (msgs.Body, error) {
	if r.Decode != nil {
		return r.Decode(f)
	}

	msg, err := f.Decode()
	return msg.Body, err
}

// routeTable is a registry of Routes.
type routeTable struct {
	mutex  sync.RWMutex
	routes map[msgs.Key]map[string]Route
}

func newRouteTable() *routeTable {
	return &routeTable{routes: make(map[msgs.Key]map[string]Route)}
}

func (rt *routeTable) register(r Route) error {
	if r.Handle == nil {
		return fmt.Errorf("route %v has no handler", r.key())
	}
	if r.Role == "" || msgs.Counterpart(r.Role) == "" {
		return fmt.Errorf("route %v has an unknown role %q", r.key(), r.Role)
	}

	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	byRole, ok := rt.routes[r.key()]
	if !ok {
		byRole = make(map[string]Route)
		rt.routes[r.key()] = byRole
	}
	if _, exists := byRole[r.Role]; exists {
		return protoerr.Violation(protoerr.CodeInvalidState, "a handler for %v as %s is already registered", r.key(), r.Role)
	}
	byRole[r.Role] = r
	return nil
}

func (rt *routeTable) lookup(key msgs.Key, role string) (Route, bool) {
	rt.mutex.RLock()
	defer rt.mutex.RUnlock()

	r, ok := rt.routes[key][role]
	return r, ok
}
