// SPDX-FileCopyrightText: 2020, 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openetp/etp-go/pkg/capability"
	"github.com/openetp/etp-go/pkg/msgs"
)

func randomPort(t *testing.T) (port int) {
	if addr, err := net.ResolveTCPAddr("tcp", "localhost:0"); err != nil {
		t.Fatal(err)
	} else if l, err := net.ListenTCP("tcp", addr); err != nil {
		t.Fatal(err)
	} else {
		port = l.Addr().(*net.TCPAddr).Port
		_ = l.Close()
	}
	return
}

// isAddrReachable checks if a TCP address - like localhost:2342 - is reachable.
func isAddrReachable(addr string) (open bool) {
	if conn, err := net.DialTimeout("tcp", addr, time.Second); err != nil {
		open = false
	} else {
		open = true
		_ = conn.Close()
	}
	return
}

// serveListener starts a HTTP server for the WebSocketListener and returns its WebSocket URL.
func serveListener(t *testing.T, listener *WebSocketListener) string {
	addr := fmt.Sprintf("localhost:%d", randomPort(t))

	httpMux := http.NewServeMux()
	httpMux.Handle("/etp", listener)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: httpMux,
	}
	go func() { _ = httpServer.ListenAndServe() }()
	t.Cleanup(func() { _ = httpServer.Close() })

	for i := 1; ; i++ {
		if isAddrReachable(addr) {
			break
		} else if i == 10 {
			t.Fatal("WebSocketListener seems to be unreachable")
		}
		time.Sleep(50 * time.Millisecond)
	}

	u := url.URL{
		Scheme: "ws",
		Host:   addr,
		Path:   "/etp",
	}
	return u.String()
}

func storeSetup(s *Session) error {
	if err := s.Declare(testProtocol, msgs.RoleStore, capability.NewSet()); err != nil {
		return err
	}
	r := echoRoute
	r.Protocol = testProtocol
	r.Role = msgs.RoleStore
	return s.Register(r)
}

func customerSetup(s *Session) error {
	return s.Declare(testProtocol, msgs.RoleCustomer, capability.NewSet())
}

func TestWebSocketSession(t *testing.T) {
	for _, enc := range []msgs.Encoding{msgs.EncodingBinary, msgs.EncodingJSON} {
		t.Run(enc.String(), func(t *testing.T) {
			manager := NewManager(capability.Endpoint{})
			defer manager.Close()

			url := serveListener(t, ListenWebSocket(testConf(msgs.EncodingBinary), manager, storeSetup))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			customer, err := DialWebSocket(ctx, url, testConf(enc), customerSetup)
			if err != nil {
				t.Fatal(err)
			}
			defer customer.Close()

			c, err := customer.Request(testProtocol, &echoRequest{echo{Text: "via websocket"}})
			if err != nil {
				t.Fatal(err)
			}
			parts, err := waitCall(t, c)
			if err != nil {
				t.Fatal(err)
			}
			if text := parts[0].Body.(*echoResponse).Text; text != "via websocket" {
				t.Fatalf("unexpected response %q", text)
			}

			select {
			case st := <-manager.Channel():
				if st.Type != SessionOpened {
					t.Fatalf("expected an opened session, got %v", st)
				}
			case <-time.After(time.Second):
				t.Fatal("manager reported no status")
			}
		})
	}
}

func TestWebSocketSessionLimit(t *testing.T) {
	limit := int64(1)
	manager := NewManager(capability.Endpoint{MaxSessionGlobalCount: &limit})
	defer manager.Close()

	url := serveListener(t, ListenWebSocket(testConf(msgs.EncodingBinary), manager, storeSetup))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := DialWebSocket(ctx, url, testConf(msgs.EncodingBinary), customerSetup)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := DialWebSocket(ctx, url, testConf(msgs.EncodingBinary), customerSetup); !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("expected a refused handshake, got %v", err)
	}

	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	// The slot is released after the first session ended.
	deadline := time.Now().Add(5 * time.Second)
	for len(manager.Sessions()) > 0 {
		if time.Now().After(deadline) {
			t.Fatal("session was not released")
		}
		time.Sleep(10 * time.Millisecond)
	}

	second, err := DialWebSocket(ctx, url, testConf(msgs.EncodingBinary), customerSetup)
	if err != nil {
		t.Fatal(err)
	}
	_ = second.Close()
}

func TestConfigurationFrameSize(t *testing.T) {
	tests := []struct {
		name     string
		limit    *int64
		expected int
	}{
		{"absent", nil, maxFrameBuffer},
		{"smaller", int64Ptr(512), 512},
		{"zero", int64Ptr(0), maxFrameBuffer},
		{"negative", int64Ptr(-1), maxFrameBuffer},
		{"larger", int64Ptr(1 << 20), maxFrameBuffer},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			conf := testConf(msgs.EncodingBinary)
			conf.Capabilities.MaxWebSocketFramePayloadSize = test.limit
			if size := conf.frameSize(); size != test.expected {
				t.Fatalf("expected %d, got %d", test.expected, size)
			}
		})
	}
}

func TestWebSocketSessionSmallFrames(t *testing.T) {
	conf := testConf(msgs.EncodingBinary)
	conf.Capabilities.MaxWebSocketFramePayloadSize = int64Ptr(512)

	manager := NewManager(capability.Endpoint{})
	defer manager.Close()

	url := serveListener(t, ListenWebSocket(conf, manager, storeSetup))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	customer, err := DialWebSocket(ctx, url, conf, customerSetup)
	if err != nil {
		t.Fatal(err)
	}
	defer customer.Close()

	if size := customer.Limits().MaxFramePayloadSize; size != 512 {
		t.Fatalf("expected a frame payload size of 512, got %d", size)
	}

	// The message spans multiple frames.
	text := strings.Repeat("frame", 1000)
	c, err := customer.Request(testProtocol, &echoRequest{echo{Text: text}})
	if err != nil {
		t.Fatal(err)
	}
	parts, err := waitCall(t, c)
	if err != nil {
		t.Fatal(err)
	}
	if parts[0].Body.(*echoResponse).Text != text {
		t.Fatal("response differs from the request")
	}
}
