// SPDX-FileCopyrightText: 2020, 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/transport"
)

const (
	// Subprotocol of the WebSocket handshake.
	Subprotocol = "etp12.energistics.org"

	// EncodingHeader selects the message encoding during the WebSocket handshake.
	EncodingHeader = "etp-encoding"
)

// SetupFunc prepares a new Session before its start, e.g., by declaring protocols and registering handlers.
type SetupFunc func(s *Session) error

// webSocketMessageType maps an Encoding to the WebSocket message type.
func webSocketMessageType(enc msgs.Encoding) int {
	if enc == msgs.EncodingJSON {
		return websocket.TextMessage
	}
	return websocket.BinaryMessage
}

// WebSocketListener is a http.Handler accepting ETP sessions via WebSockets. Each accepted Session is passed to
// the setup function and supervised by the Manager afterwards.
type WebSocketListener struct {
	conf    Configuration
	manager *Manager
	setup   SetupFunc

	upgrader websocket.Upgrader
}

// ListenWebSocket creates a new WebSocketListener for passive Sessions.
func ListenWebSocket(conf Configuration, manager *Manager, setup SetupFunc) *WebSocketListener {
	conf.ActivePeer = false

	return &WebSocketListener{
		conf:    conf,
		manager: manager,
		setup:   setup,
		upgrader: websocket.Upgrader{
			Subprotocols:    []string{Subprotocol},
			WriteBufferSize: conf.frameSize(),
		},
	}
}

// ServeHTTP upgrades a HTTP connection to a WebSocket connection which is used for ETP.
func (listener *WebSocketListener) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	logger := log.WithField("remote", request.RemoteAddr)

	conf := listener.conf
	if name := request.Header.Get(EncodingHeader); name != "" {
		enc, err := msgs.ParseEncoding(name)
		if err != nil {
			http.Error(writer, err.Error(), http.StatusBadRequest)
			return
		}
		conf.Encoding = enc
	}

	release, err := listener.manager.Reserve(request.RemoteAddr)
	if err != nil {
		logger.WithError(err).Info("Refusing session")
		http.Error(writer, err.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := listener.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		logger.WithError(err).Warn("Upgrading connection errored")
		release()
		return
	}

	ms := transport.NewMessageSwitchWebSocket(conn, webSocketMessageType(conf.Encoding), conf.maxIncomingSize())
	s := NewSession(conn.RemoteAddr().String(), ms, conn, conf)

	if listener.setup != nil {
		if err := listener.setup(s); err != nil {
			logger.WithError(err).Warn("Session setup errored")
			_ = ms.Close()
			_ = conn.Close()
			release()
			return
		}
	}

	listener.manager.Register(s, release)
}

// DialWebSocket establishes an active Session to a remote WebSocketListener. The Session is negotiated when this
// function returns without an error.
func DialWebSocket(ctx context.Context, url string, conf Configuration, setup SetupFunc) (*Session, error) {
	conf.ActivePeer = true

	dialer := websocket.Dialer{
		Proxy:           http.ProxyFromEnvironment,
		Subprotocols:    []string{Subprotocol},
		WriteBufferSize: conf.frameSize(),
	}
	header := http.Header{}
	header.Set(EncodingHeader, conf.Encoding.String())

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}

	ms := transport.NewMessageSwitchWebSocket(conn, webSocketMessageType(conf.Encoding), conf.maxIncomingSize())
	s := NewSession(url, ms, conn, conf)
	s.log().Debug("Dialed successfully")

	if setup != nil {
		if err := setup(s); err != nil {
			_ = ms.Close()
			_ = conn.Close()
			return nil, err
		}
	}

	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}
