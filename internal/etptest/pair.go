// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package etptest connects Sessions over in-memory pipes for protocol tests.
package etptest

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/session"
	"github.com/openetp/etp-go/pkg/transport"
)

type pipeCloser struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (pc pipeCloser) Close() error {
	_ = pc.w.Close()
	return pc.r.Close()
}

// Conf is a minimal Configuration for an encoding.
func Conf(enc msgs.Encoding) session.Configuration {
	return session.Configuration{
		ApplicationName:    "etp-test",
		ApplicationVersion: "0.0.0",
		Encoding:           enc,
	}
}

// Setup prepares a Session before its start, e.g., by declaring protocols.
type Setup func(s *session.Session) error

// Pair creates two connected Sessions, applies the Setups and starts both. The Sessions are closed on the test's
// cleanup.
func Pair(t *testing.T, activeConf, passiveConf session.Configuration, activeSetup, passiveSetup Setup) (
	active, passive *session.Session,
) {
	t.Helper()

	activeIn, passiveOut := io.Pipe()
	passiveIn, activeOut := io.Pipe()

	activeConf.ActivePeer = true
	passiveConf.ActivePeer = false

	active = session.NewSession("active", transport.NewMessageSwitchReaderWriter(activeIn, activeOut, 0),
		pipeCloser{activeIn, activeOut}, activeConf)
	passive = session.NewSession("passive", transport.NewMessageSwitchReaderWriter(passiveIn, passiveOut, 0),
		pipeCloser{passiveIn, passiveOut}, passiveConf)

	t.Cleanup(func() {
		_ = active.Close()
		_ = passive.Close()
	})

	if err := activeSetup(active); err != nil {
		t.Fatal(err)
	}
	if err := passiveSetup(passive); err != nil {
		t.Fatal(err)
	}

	activeChan := make(chan error, 1)
	passiveChan := make(chan error, 1)
	go func() { activeChan <- active.Start(context.Background()) }()
	go func() { passiveChan <- passive.Start(context.Background()) }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-activeChan:
			if err != nil {
				t.Fatalf("starting active session failed: %v", err)
			}
		case err := <-passiveChan:
			if err != nil {
				t.Fatalf("starting passive session failed: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timeout while starting sessions")
		}
	}
	return
}

// Context with a test deadline.
func Context(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
