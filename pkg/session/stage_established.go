// SPDX-FileCopyrightText: 2020, 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/protoerr"
)

// establishedStage dispatches incoming messages until the session ends. If an ActiveTimeoutPeriod was negotiated,
// idle sessions are kept alive by Pings and stalled ones are terminated.
type establishedStage struct {
	state     *state
	closeChan <-chan struct{}
}

func (es *establishedStage) handle(state *state, closeChan <-chan struct{}) {
	es.state = state
	es.closeChan = closeChan

	s := state.session
	activeTimeout := s.Limits().ActiveTimeout

	var activityChan <-chan time.Time
	if activeTimeout > 0 {
		ticker := time.NewTicker(activeTimeout / 2)
		defer ticker.Stop()
		activityChan = ticker.C
	}

	for {
		var err error

		select {
		case <-closeChan:
			err = errStageClose

		case <-activityChan:
			err = es.handleActivity(activeTimeout)

		case data := <-state.msgIn:
			err = s.receive(data)

		case <-s.messageSwitch.Done():
			err = es.drain()
		}

		if err != nil {
			state.stageError = err
			return
		}
	}
}

// drain the already received messages of a finished transport.
func (es *establishedStage) drain() error {
	s := es.state.session

	for {
		select {
		case data := <-es.state.msgIn:
			if err := s.receive(data); err != nil {
				return err
			}
		default:
			return s.transportErr()
		}
	}
}

func (es *establishedStage) handleActivity(activeTimeout time.Duration) error {
	s := es.state.session

	lastReceive := time.Unix(0, atomic.LoadInt64(&s.lastReceive))
	if idle := time.Since(lastReceive); idle > activeTimeout {
		return protoerr.Timeout("no message received for %v, exceeding the active timeout of %v", idle, activeTimeout)
	}

	lastSend := time.Unix(0, atomic.LoadInt64(&s.lastSend))
	if time.Since(lastSend) < activeTimeout/2 {
		return nil
	}

	s.log().WithField("stage", "established").Debug("Sending Ping to keep the session alive")
	_, err := s.sendCore(msgs.Header{Protocol: msgs.ProtocolCore}, &msgs.Ping{CurrentDateTime: time.Now().UnixMicro()})
	if err != nil {
		s.log().WithError(err).WithFields(log.Fields{"stage": "established"}).Warn("Sending Ping failed")
	}
	return err
}
