// SPDX-FileCopyrightText: 2020, 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package transport moves opaque, already encoded ETP messages between channels and an underlying connection.
//
// A MessageSwitch runs one reader and one writer Goroutine. Thus, all outgoing messages of a session are written by
// a single writer in the order they were put into the outgoing channel.
package transport

import (
	"errors"
	"io"
	"time"
)

// flushTimeout bounds writing the still queued outgoing messages while closing.
const flushTimeout = time.Second

// ErrFinished is returned when closing an already finished MessageSwitch.
var ErrFinished = errors.New("message switch has already finished")

// MessageSwitch is the interface for an exchange between encoded messages from channels and an underlying layer.
//
// Closing a MessageSwitch writes all still queued outgoing messages, bounded by a timeout. The underlying layer is
// not closed.
type MessageSwitch interface {
	io.Closer

	// Exchange channels to be serialized.
	//
	// 	* incoming is a "receive only" channel for incoming messages.
	//	* outgoing is a "send only" channel for outgoing messages.
	//	* errChan is another "receive only" channel to propagate errors. Only one error will be sent.
	Exchange() (incoming <-chan []byte, outgoing chan<- []byte, errChan <-chan error)

	// Done is closed after the MessageSwitch finished, either by Close or by an error. An error is available in
	// errChan before Done is closed. Messages received before are still available in incoming.
	Done() <-chan struct{}
}
