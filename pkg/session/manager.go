// SPDX-FileCopyrightText: 2019, 2020, 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/openetp/etp-go/pkg/capability"
	"github.com/openetp/etp-go/pkg/protoerr"
)

// Manager supervises multiple Sessions, enforces the session count limits and forwards all Statuses through one
// channel. The Channel must always be read, otherwise Statuses are dropped.
type Manager struct {
	maxGlobal    int
	maxPerClient int

	mutex     sync.Mutex
	sessions  map[*Session]struct{}
	global    int
	perClient map[string]int

	statusChan chan Status

	stopSyn  chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a Manager, bounded by the MaxSessionGlobalCount and MaxSessionClientCount capabilities. Absent
// capabilities do not limit.
func NewManager(caps capability.Endpoint) *Manager {
	manager := &Manager{
		sessions:   make(map[*Session]struct{}),
		perClient:  make(map[string]int),
		statusChan: make(chan Status, 100),
		stopSyn:    make(chan struct{}),
	}

	if caps.MaxSessionGlobalCount != nil {
		manager.maxGlobal = int(*caps.MaxSessionGlobalCount)
	}
	if caps.MaxSessionClientCount != nil {
		manager.maxPerClient = int(*caps.MaxSessionClientCount)
	}

	return manager
}

// clientKey identifies a client by its host, ignoring the port.
func clientKey(address string) string {
	if host, _, err := net.SplitHostPort(address); err == nil {
		return host
	}
	return address
}

// Reserve a slot for a new Session from a client's address. The returned release function must be called if the
// slot is not passed to Register.
func (manager *Manager) Reserve(address string) (release func(), err error) {
	client := clientKey(address)

	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	select {
	case <-manager.stopSyn:
		return nil, ErrSessionClosed
	default:
	}

	if manager.maxGlobal > 0 && manager.global >= manager.maxGlobal {
		return nil, protoerr.Limit(protoerr.CodeLimitExceeded, "maximum of %d sessions reached", manager.maxGlobal)
	}
	if manager.maxPerClient > 0 && manager.perClient[client] >= manager.maxPerClient {
		return nil, protoerr.Limit(protoerr.CodeLimitExceeded,
			"maximum of %d sessions for client %s reached", manager.maxPerClient, client)
	}

	manager.global++
	manager.perClient[client]++

	var once sync.Once
	release = func() {
		once.Do(func() {
			manager.mutex.Lock()
			defer manager.mutex.Unlock()

			manager.global--
			if manager.perClient[client]--; manager.perClient[client] <= 0 {
				delete(manager.perClient, client)
			}
		})
	}
	return release, nil
}

// Register a Session and start it in the background. The release function of a Reserve call is executed after the
// Session ended.
func (manager *Manager) Register(s *Session, release func()) {
	manager.mutex.Lock()
	manager.sessions[s] = struct{}{}
	manager.mutex.Unlock()

	manager.wg.Add(1)
	go manager.supervise(s, release)
}

func (manager *Manager) supervise(s *Session, release func()) {
	defer manager.wg.Done()
	defer func() {
		manager.mutex.Lock()
		delete(manager.sessions, s)
		manager.mutex.Unlock()

		if release != nil {
			release()
		}
	}()

	go func() {
		if err := s.Start(context.Background()); err != nil {
			s.log().WithError(err).Info("Starting session failed")
		}
	}()

	for {
		select {
		case <-manager.stopSyn:
			_ = s.Close()
			return

		case st := <-s.Status():
			manager.forward(st)

		case <-s.Done():
			for {
				select {
				case st := <-s.Status():
					manager.forward(st)
				default:
					return
				}
			}
		}
	}
}

func (manager *Manager) forward(st Status) {
	select {
	case manager.statusChan <- st:
	default:
		log.WithField("status", st).Warn("Session Manager dropped status, channel is full")
	}
}

// Channel of all supervised Sessions' Statuses.
func (manager *Manager) Channel() <-chan Status {
	return manager.statusChan
}

// Sessions currently supervised.
func (manager *Manager) Sessions() (sessions []*Session) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	for s := range manager.sessions {
		sessions = append(sessions, s)
	}
	return
}

// Close the Manager and all supervised Sessions.
func (manager *Manager) Close() error {
	manager.stopOnce.Do(func() {
		manager.mutex.Lock()
		close(manager.stopSyn)
		manager.mutex.Unlock()
	})

	manager.wg.Wait()
	return nil
}
