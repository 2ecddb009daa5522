// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/openetp/etp-go/pkg/capability"
	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/protocol/discovery"
	"github.com/openetp/etp-go/pkg/protocol/streaming"
	"github.com/openetp/etp-go/pkg/session"
	"github.com/openetp/etp-go/pkg/storage"
)

const (
	applicationVersion = "0.1.0"

	// serverCapabilitiesPath is the well-known location of the server capabilities document.
	serverCapabilitiesPath = "/.well-known/etp-server-capabilities"

	purgeInterval = time.Hour
)

// serverCapabilities is the JSON document describing this server before any WebSocket connection.
type serverCapabilities struct {
	ApplicationName      string                   `json:"applicationName"`
	ApplicationVersion   string                   `json:"applicationVersion"`
	SupportedCompression []string                 `json:"supportedCompression"`
	SupportedEncodings   []string                 `json:"supportedEncodings"`
	SupportedFormats     []string                 `json:"supportedFormats"`
	SupportedProtocols   []msgs.SupportedProtocol `json:"supportedProtocols"`
	EndpointCapabilities *capability.Set          `json:"endpointCapabilities"`
}

// daemon bundles all components of etpd.
type daemon struct {
	store   *storage.Store
	manager *session.Manager
	hub     *hub
	catalog *catalogWatcher

	httpServer *http.Server
	caps       serverCapabilities
	setups     []session.SetupFunc

	tombstoneRetention time.Duration

	stopSyn chan struct{}
	stopAck chan struct{}
}

// newDaemon creates all components based on the configuration and starts serving.
func newDaemon(conf tomlConfig) (d *daemon, err error) {
	d = &daemon{
		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}

	if d.tombstoneRetention, err = parseDuration(conf.Catalog.TombstoneRetention, 7*24*time.Hour); err != nil {
		return nil, err
	}
	handlerTimeout, err := parseDuration(conf.Core.HandlerTimeout, 0)
	if err != nil {
		return nil, err
	}

	if d.store, err = storage.NewStore(conf.Core.Store); err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics, err := session.NewMetrics(registry)
	if err != nil {
		_ = d.store.Close()
		return nil, err
	}

	sessConf := session.Configuration{
		ApplicationName:    conf.Core.ApplicationName,
		ApplicationVersion: applicationVersion,
		Capabilities:       conf.Capabilities,
		HandlerTimeout:     handlerTimeout,
		Metrics:            metrics,
	}
	if conf.Core.Encoding != "" {
		sessConf.Encoding, _ = msgs.ParseEncoding(conf.Core.Encoding)
	}

	d.caps = serverCapabilities{
		ApplicationName:      sessConf.ApplicationName,
		ApplicationVersion:   applicationVersion,
		SupportedCompression: []string{msgs.CompressionXz},
		SupportedEncodings:   []string{msgs.EncodingBinary.String(), msgs.EncodingJSON.String()},
		SupportedFormats:     []string{"xml", "json"},
		EndpointCapabilities: conf.Capabilities.ToSet(),
	}

	for _, pc := range conf.Protocol {
		switch pc.Name {
		case "discovery":
			ds := discovery.NewStore(d.store, pc.MaxResponseCount)
			d.setups = append(d.setups, ds.Attach)
			d.caps.SupportedProtocols = append(d.caps.SupportedProtocols, msgs.SupportedProtocol{
				Protocol:     discovery.Protocol,
				Version:      msgs.ProtocolVersion,
				Role:         msgs.RoleStore,
				Capabilities: ds.Capabilities(),
			})

		case "streaming":
			d.hub = newHub(pc.SimpleStreamer)
			d.setups = append(d.setups, d.hub.attach)
			d.caps.SupportedProtocols = append(d.caps.SupportedProtocols, msgs.SupportedProtocol{
				Protocol:     streaming.Protocol,
				Version:      msgs.ProtocolVersion,
				Role:         msgs.RoleProducer,
				Capabilities: streaming.NewProducer(pc.SimpleStreamer).Capabilities(),
			})
		}
	}

	d.manager = session.NewManager(conf.Capabilities)

	router := mux.NewRouter()
	router.Handle(conf.Listen.Path, session.ListenWebSocket(sessConf, d.manager, d.setup))
	router.HandleFunc(serverCapabilitiesPath, d.handleServerCapabilities).Methods(http.MethodGet)
	if conf.Listen.Metrics {
		router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	d.httpServer = &http.Server{
		Addr:    conf.Listen.Address,
		Handler: router,
	}

	if conf.Catalog.Import != "" {
		if d.catalog, err = newCatalogWatcher(conf.Catalog.Import, d.store, d.hub); err != nil {
			_ = d.manager.Close()
			_ = d.store.Close()
			return nil, err
		}
	}

	startupErr := make(chan error)
	go func() {
		if err := d.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			startupErr <- err
		}

		close(startupErr)
	}()

	select {
	case err = <-startupErr:
		_ = d.close()
		return nil, err
	case <-time.After(100 * time.Millisecond):
		go d.handler()
	}

	d.log().Info("Started etpd")
	return d, nil
}

func (d *daemon) log() *log.Entry {
	return log.WithField("etpd", d.httpServer.Addr)
}

// setup a new Session with all configured protocols.
func (d *daemon) setup(s *session.Session) error {
	for _, setup := range d.setups {
		if err := setup(s); err != nil {
			return err
		}
	}
	return nil
}

func (d *daemon) handleServerCapabilities(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(d.caps); err != nil {
		d.log().WithError(err).Warn("Failed to write server capabilities")
	}
}

// handler logs the Sessions' statuses and purges outdated tombstones.
func (d *daemon) handler() {
	defer close(d.stopAck)

	purgeTicker := time.NewTicker(purgeInterval)
	defer purgeTicker.Stop()

	for {
		select {
		case <-d.stopSyn:
			return

		case st := <-d.manager.Channel():
			logger := d.log().WithField("session", st.Session)
			switch st.Type {
			case session.SessionOpened:
				logger.WithField("peer", st.Session.PeerApplication()).Info("Session opened")
			case session.SessionClosed:
				if d.hub != nil {
					d.hub.remove(st.Session)
				}
				logger.WithError(st.Err).Info("Session closed")
			default:
				logger.WithField("status", st).Debug("Session reported status")
			}

		case <-purgeTicker.C:
			d.store.PurgeTombstones(time.Now().Add(-d.tombstoneRetention))
		}
	}
}

// close all components without waiting for the handler.
func (d *daemon) close() (err error) {
	if d.catalog != nil {
		d.catalog.close()
	}
	if shutdownErr := d.httpServer.Close(); shutdownErr != nil {
		err = multierror.Append(err, shutdownErr)
	}
	if managerErr := d.manager.Close(); managerErr != nil {
		err = multierror.Append(err, managerErr)
	}
	if storeErr := d.store.Close(); storeErr != nil {
		err = multierror.Append(err, storeErr)
	}
	return
}

// Close the daemon.
func (d *daemon) Close() error {
	close(d.stopSyn)
	<-d.stopAck

	return d.close()
}
