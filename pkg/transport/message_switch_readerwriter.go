// SPDX-FileCopyrightText: 2020, 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// MessageSwitchReaderWriter exchanges length prefixed messages from an io.Reader and io.Writer to channels. If one
// of the io.Reader or the io.Writer is closeable, closing should be performed after the MessageSwitch has finished.
type MessageSwitchReaderWriter struct {
	in  io.Reader
	out io.Writer

	maxSize uint32

	inChan  chan []byte
	outChan chan []byte
	errChan chan error

	// finished is accessed by sync.atomic functions; zero means running, everything else indicates a finished state
	finished  uint32
	done      chan struct{}
	outDone   chan struct{}
	closeOnce sync.Once
}

// NewMessageSwitchReaderWriter for an io.Reader and io.Writer. Incoming messages larger than maxSize bytes are
// an error; a zero maxSize disables this check.
func NewMessageSwitchReaderWriter(in io.Reader, out io.Writer, maxSize uint32) (ms *MessageSwitchReaderWriter) {
	ms = &MessageSwitchReaderWriter{
		in:  in,
		out: out,

		maxSize: maxSize,

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

// finish this MessageSwitchReaderWriter once. An error is made available before done is closed.
func (ms *MessageSwitchReaderWriter) finish(err error) bool {
	if !atomic.CompareAndSwapUint32(&ms.finished, 0, 1) {
		return false
	}
	if err != nil {
		ms.errChan <- err
	}
	ms.closeOnce.Do(func() { close(ms.done) })
	return true
}

func (ms *MessageSwitchReaderWriter) sendErr(err error) {
	ms.finish(err)
}

func (ms *MessageSwitchReaderWriter) handleIn() {
	in := bufio.NewReader(ms.in)

	for {
		if atomic.LoadUint32(&ms.finished) != 0 {
			return
		}

		var l uint32
		if err := binary.Read(in, binary.BigEndian, &l); err != nil {
			ms.sendErr(err)
			return
		}
		if ms.maxSize > 0 && l > ms.maxSize {
			ms.sendErr(fmt.Errorf("incoming message of %d bytes exceeds %d bytes", l, ms.maxSize))
			return
		}

		data := make([]byte, l)
		if _, err := io.ReadFull(in, data); err != nil {
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

func (ms *MessageSwitchReaderWriter) handleOut() {
	defer close(ms.outDone)

	out := bufio.NewWriter(ms.out)

	for {
		var data []byte
		select {
		case data = <-ms.outChan:
		case <-ms.done:
			ms.flush(out)
			return
		}

		if err := ms.write(out, data); err != nil {
			ms.sendErr(err)
			return
		}
	}
}

func (ms *MessageSwitchReaderWriter) write(out *bufio.Writer, data []byte) error {
	if err := binary.Write(out, binary.BigEndian, uint32(len(data))); err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		return err
	}
	return out.Flush()
}

// flush writes all still queued messages after the MessageSwitchReaderWriter was closed.
func (ms *MessageSwitchReaderWriter) flush(out *bufio.Writer) {
	for {
		select {
		case data := <-ms.outChan:
			if err := ms.write(out, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Close the MessageSwitchReaderWriter. An error might be returned if the internal state is already finished.
func (ms *MessageSwitchReaderWriter) Close() (err error) {
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
func (ms *MessageSwitchReaderWriter) Exchange() (incoming <-chan []byte, outgoing chan<- []byte, errChan <-chan error) {
	incoming = ms.inChan
	outgoing = ms.outChan
	errChan = ms.errChan
	return
}

// Done is closed after the MessageSwitchReaderWriter finished.
func (ms *MessageSwitchReaderWriter) Done() <-chan struct{} {
	return ms.done
}
