// SPDX-FileCopyrightText: 2020, 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// MessageSwitchWebSocket exchanges messages from a *websocket.Conn to channels. Each ETP message is exactly one
// WebSocket message.
type MessageSwitchWebSocket struct {
	conn        *websocket.Conn
	messageType int

	inChan  chan []byte
	outChan chan []byte
	errChan chan error

	// finished is accessed by sync.atomic functions; zero means running, everything else indicates a finished state
	finished  uint32
	done      chan struct{}
	outDone   chan struct{}
	closeOnce sync.Once
}

// NewMessageSwitchWebSocket for a *websocket.Conn. The messageType is either websocket.BinaryMessage or
// websocket.TextMessage, depending on the session's encoding. Incoming messages larger than maxSize bytes close
// the connection; a zero maxSize disables this check.
func NewMessageSwitchWebSocket(conn *websocket.Conn, messageType int, maxSize int64) (ms *MessageSwitchWebSocket) {
	if maxSize > 0 {
		conn.SetReadLimit(maxSize)
	}

	ms = &MessageSwitchWebSocket{
		conn:        conn,
		messageType: messageType,

		inChan:  make(chan []byte, 32),
		outChan: make(chan []byte, 32),
		errChan: make(chan error, 1),

		done:    make(chan struct{}),
		outDone: make(chan struct{}),
	}

	go ms.handleIn()
	go ms.handleOut()

	return
}

// finish this MessageSwitchWebSocket once. An error is made available before done is closed.
func (ms *MessageSwitchWebSocket) finish(err error) bool {
	if !atomic.CompareAndSwapUint32(&ms.finished, 0, 1) {
		return false
	}
	if err != nil {
		ms.errChan <- err
	}
	ms.closeOnce.Do(func() { close(ms.done) })
	return true
}

func (ms *MessageSwitchWebSocket) sendErr(err error) {
	ms.finish(err)
}

func (ms *MessageSwitchWebSocket) handleIn() {
	for {
		if atomic.LoadUint32(&ms.finished) != 0 {
			return
		}

		mt, r, err := ms.conn.NextReader()
		if err != nil {
			ms.sendErr(err)
			return
		} else if mt != ms.messageType {
			ms.sendErr(fmt.Errorf("expected message type %d instead of %d", ms.messageType, mt))
			return
		}

		data, err := io.ReadAll(r)
		if err != nil {
			ms.sendErr(err)
			return
		}

		select {
		case ms.inChan <- data:
		case <-ms.done:
			return
		}
	}
}

func (ms *MessageSwitchWebSocket) handleOut() {
	defer close(ms.outDone)

	for {
		var data []byte
		select {
		case data = <-ms.outChan:
		case <-ms.done:
			ms.flush()
			return
		}

		if err := ms.write(data); err != nil {
			ms.sendErr(err)
			return
		}
	}
}

func (ms *MessageSwitchWebSocket) write(data []byte) error {
	wc, err := ms.conn.NextWriter(ms.messageType)
	if err != nil {
		return err
	}
	if _, err := wc.Write(data); err != nil {
		return err
	}
	return wc.Close()
}

// flush writes all still queued messages after the MessageSwitchWebSocket was closed.
func (ms *MessageSwitchWebSocket) flush() {
	for {
		select {
		case data := <-ms.outChan:
			if err := ms.write(data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Close the MessageSwitchWebSocket. The underlying connection is not closed. An error might be returned if the
// internal state is already finished.
func (ms *MessageSwitchWebSocket) Close() (err error) {
	if !ms.finish(nil) {
		err = ErrFinished
		return
	}

	select {
	case <-ms.outDone:
	case <-time.After(flushTimeout):
	}
	return
}

// Exchange channels to be serialized.
func (ms *MessageSwitchWebSocket) Exchange() (incoming <-chan []byte, outgoing chan<- []byte, errChan <-chan error) {
	incoming = ms.inChan
	outgoing = ms.outChan
	errChan = ms.errChan
	return
}

// Done is closed after the MessageSwitchWebSocket finished.
func (ms *MessageSwitchWebSocket) Done() <-chan struct{} {
	return ms.done
}
