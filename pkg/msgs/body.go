// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/dtn7/cboring"

	"github.com/openetp/etp-go/pkg/protoerr"
)

// Key identifies a body type by its protocol and message type.
type Key struct {
	Protocol    int32
	MessageType int32
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.Protocol, k.MessageType)
}

// Body of an ETP message. Each Body must also be serializable as JSON.
type Body interface {
	cboring.CborMarshaler

	// MessageKey of this Body's type. Bodies allowed within each protocol, e.g., ProtocolException, use
	// ProtocolCore.
	MessageKey() Key
}

// Message is a Header together with its decoded Body.
type Message struct {
	Header Header
	Body   Body
}

func (m Message) String() string {
	return fmt.Sprintf("%v %T", m.Header, m.Body)
}

var (
	bodiesMutex sync.RWMutex
	bodies      = make(map[Key]reflect.Type)
)

// RegisterBody makes a Body type known for decoding. The Body must be a pointer; its zero value is used as a
// template. Registering the same Key twice panics, as this is a programming error.
func RegisterBody(template Body) {
	t := reflect.TypeOf(template)
	if t.Kind() != reflect.Ptr {
		panic(fmt.Sprintf("body template %T is not a pointer", template))
	}

	bodiesMutex.Lock()
	defer bodiesMutex.Unlock()

	key := template.MessageKey()
	if prev, exists := bodies[key]; exists {
		panic(fmt.Sprintf("body %v is already registered as %v", key, prev))
	}
	bodies[key] = t.Elem()
}

// lookupKey maps the protocol independent message types onto the core protocol.
func lookupKey(key Key) Key {
	if key.MessageType == MsgProtocolException || key.MessageType == MsgAcknowledge {
		return Key{Protocol: ProtocolCore, MessageType: key.MessageType}
	}
	return key
}

// NewBody creates an empty Body for a Key.
func NewBody(key Key) (Body, error) {
	bodiesMutex.RLock()
	t, exists := bodies[lookupKey(key)]
	bodiesMutex.RUnlock()

	if !exists {
		return nil, protoerr.Violation(protoerr.CodeInvalidMessageType, "no body registered for message type %v", key)
	}
	return reflect.New(t).Interface().(Body), nil
}

// IsRegistered checks if a Body type is known for the Key.
func IsRegistered(key Key) bool {
	bodiesMutex.RLock()
	defer bodiesMutex.RUnlock()

	_, exists := bodies[lookupKey(key)]
	return exists
}
