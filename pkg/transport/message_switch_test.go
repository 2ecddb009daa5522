// SPDX-FileCopyrightText: 2020, 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"
)

func TestMessageSwitchSimple(t *testing.T) {
	const sends = 1000

	in, out := io.Pipe()
	ms := NewMessageSwitchReaderWriter(in, out, 0)
	incoming, outgoing, errChan := ms.Exchange()

	go func() {
		for i := 0; i < sends; i++ {
			outgoing <- []byte(fmt.Sprintf("message %d", i))
		}
	}()

	for i := 0; i < sends; i++ {
		select {
		case err := <-errChan:
			t.Fatal(err)

		case data := <-incoming:
			if expected := fmt.Sprintf("message %d", i); string(data) != expected {
				t.Fatalf("expected %q, got %q", expected, data)
			}

		case <-time.After(250 * time.Millisecond):
			t.Fatal("timeout")
		}
	}

	if err := ms.Close(); err != nil {
		t.Fatal(err)
	}
	if err := ms.Close(); !errors.Is(err, ErrFinished) {
		t.Fatalf("expected ErrFinished, got %v", err)
	}

	select {
	case <-ms.Done():
	default:
		t.Fatal("done channel is still open")
	}
}

func TestMessageSwitchMaxSize(t *testing.T) {
	in, out := io.Pipe()
	ms := NewMessageSwitchReaderWriter(in, out, 4)
	_, outgoing, errChan := ms.Exchange()

	outgoing <- bytes.Repeat([]byte{0x42}, 5)

	select {
	case err := <-errChan:
		if err == nil {
			t.Fatal("expected an error")
		}
	case <-time.After(250 * time.Millisecond):
		t.Fatal("oversized message was accepted")
	}
}

func TestMessageSwitchFlushOnClose(t *testing.T) {
	const sends = 10

	in, out := io.Pipe()
	idleIn, idleOut := io.Pipe()
	defer idleOut.Close()

	sender := NewMessageSwitchReaderWriter(idleIn, out, 0)
	receiver := NewMessageSwitchReaderWriter(in, io.Discard, 0)

	_, outgoing, _ := sender.Exchange()
	for i := 0; i < sends; i++ {
		outgoing <- []byte{byte(i)}
	}

	closed := make(chan error, 1)
	go func() { closed <- sender.Close() }()

	incoming, _, _ := receiver.Exchange()
	for i := 0; i < sends; i++ {
		select {
		case data := <-incoming:
			if data[0] != byte(i) {
				t.Fatalf("expected message %d, got %d", i, data[0])
			}
		case <-time.After(time.Second):
			t.Fatalf("message %d was not flushed", i)
		}
	}

	if err := <-closed; err != nil {
		t.Fatal(err)
	}
	_ = out.Close()
	_ = receiver.Close()
}
