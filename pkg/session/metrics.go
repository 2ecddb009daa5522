// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics of one or more Sessions. A nil *Metrics is valid and records nothing.
type Metrics struct {
	messagesIn    *prometheus.CounterVec
	messagesOut   *prometheus.CounterVec
	exchanges     *prometheus.CounterVec
	openExchanges prometheus.Gauge
	sessions      prometheus.Gauge
}

// NewMetrics creates and registers the Metrics at a prometheus.Registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messagesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "etp",
			Name:      "messages_received_total",
			Help:      "Received messages by protocol and message type.",
		}, []string{"protocol", "type"}),
		messagesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "etp",
			Name:      "messages_sent_total",
			Help:      "Sent messages by protocol and message type.",
		}, []string{"protocol", "type"}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "etp",
			Name:      "exchanges_total",
			Help:      "Closed exchanges by their outcome.",
		}, []string{"outcome"}),
		openExchanges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "etp",
			Name:      "exchanges_open",
			Help:      "Currently open exchanges.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "etp",
			Name:      "sessions_open",
			Help:      "Currently established sessions.",
		}),
	}

	for _, c := range []prometheus.Collector{m.messagesIn, m.messagesOut, m.exchanges, m.openExchanges, m.sessions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func labels(protocol, messageType int32) prometheus.Labels {
	return prometheus.Labels{
		"protocol": strconv.Itoa(int(protocol)),
		"type":     strconv.Itoa(int(messageType)),
	}
}

func (m *Metrics) received(protocol, messageType int32) {
	if m != nil {
		m.messagesIn.With(labels(protocol, messageType)).Inc()
	}
}

func (m *Metrics) sent(protocol, messageType int32) {
	if m != nil {
		m.messagesOut.With(labels(protocol, messageType)).Inc()
	}
}

func (m *Metrics) exchangeOpened() {
	if m != nil {
		m.openExchanges.Inc()
	}
}

func (m *Metrics) exchangeClosed(outcome string) {
	if m != nil {
		m.openExchanges.Dec()
		m.exchanges.With(prometheus.Labels{"outcome": outcome}).Inc()
	}
}

func (m *Metrics) sessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) sessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}
