// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/openetp/etp-go/pkg/datatypes"
	"github.com/openetp/etp-go/pkg/protocol/streaming"
	"github.com/openetp/etp-go/pkg/session"
)

// hub distributes imported channel data to the streaming producers of all sessions.
type hub struct {
	simple bool

	mutex     sync.Mutex
	producers map[*session.Session]*streaming.Producer
}

func newHub(simple bool) *hub {
	return &hub{
		simple:    simple,
		producers: make(map[*session.Session]*streaming.Producer),
	}
}

// attach a new producer to a not yet started Session.
func (h *hub) attach(s *session.Session) error {
	p := streaming.NewProducer(h.simple)
	if err := p.Attach(s); err != nil {
		return err
	}

	h.mutex.Lock()
	h.producers[s] = p
	h.mutex.Unlock()
	return nil
}

// remove a closed Session.
func (h *hub) remove(s *session.Session) {
	h.mutex.Lock()
	delete(h.producers, s)
	h.mutex.Unlock()
}

// publish items to each producer.
func (h *hub) publish(items []datatypes.DataItem) {
	h.mutex.Lock()
	producers := make(map[*session.Session]*streaming.Producer, len(h.producers))
	for s, p := range h.producers {
		producers[s] = p
	}
	h.mutex.Unlock()

	for s, p := range producers {
		if n, err := p.Publish(items...); err != nil {
			log.WithError(err).WithField("session", s).Warn("Publishing channel data errored")
		} else if n > 0 {
			log.WithFields(log.Fields{
				"session": s,
				"items":   n,
			}).Debug("Published channel data")
		}
	}
}
