// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/protoerr"
)

// ErrExchangeClosed is returned when responding to an already answered, failed or timed out exchange.
var ErrExchangeClosed = errors.New("exchange is closed")

// ExchangeState of an incoming request.
type ExchangeState uint8

const (
	// ExchangeOpen exchanges are still receiving parts of a multi-part request.
	ExchangeOpen ExchangeState = iota

	// ExchangeDelivered exchanges were passed to their handler and await a response.
	ExchangeDelivered

	// ExchangeResponding exchanges are currently sending their response.
	ExchangeResponding

	// ExchangeClosed exchanges are finished, successfully or not.
	ExchangeClosed
)

func (es ExchangeState) String() string {
	switch es {
	case ExchangeOpen:
		return "open"
	case ExchangeDelivered:
		return "delivered"
	case ExchangeResponding:
		return "responding"
	case ExchangeClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// exchange tracks one incoming request, keyed by its first message's ID.
type exchange struct {
	mutex sync.Mutex
	state ExchangeState

	header   msgs.Header
	protocol *Protocol
	route    Route

	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer
}

// release frees the exchange's resources. The mutex must be held.
func (ex *exchange) release() {
	ex.cancel()
	if ex.timer != nil {
		ex.timer.Stop()
	}
}

// openExchange registers a new exchange in the ExchangeOpen state.
func (s *Session) openExchange(h msgs.Header, p *Protocol, r Route) *exchange {
	ctx, cancel := context.WithCancel(s.ctx)
	ex := &exchange{
		state:    ExchangeOpen,
		header:   h,
		protocol: p,
		route:    r,
		ctx:      ctx,
		cancel:   cancel,
	}

	s.exMutex.Lock()
	s.exchanges[h.MessageID] = ex
	s.exMutex.Unlock()

	s.conf.Metrics.exchangeOpened()
	return ex
}

func (s *Session) lookupExchange(id uint64) (*exchange, bool) {
	s.exMutex.Lock()
	defer s.exMutex.Unlock()

	ex, ok := s.exchanges[id]
	return ex, ok
}

// closeExchange finishes an exchange. A non-nil err is reported as an ExchangeFailed Status. The mutex must be held.
func (s *Session) closeExchange(ex *exchange, outcome string, err error) {
	if ex.state == ExchangeClosed {
		return
	}
	ex.state = ExchangeClosed
	ex.release()

	s.exMutex.Lock()
	delete(s.exchanges, ex.header.MessageID)
	s.exMutex.Unlock()

	s.conf.Metrics.exchangeClosed(outcome)

	if err != nil {
		s.log().WithError(err).WithFields(log.Fields{
			"header":  ex.header,
			"outcome": outcome,
		}).Info("Exchange failed")
		s.report(Status{Type: ExchangeFailed, Session: s, Header: ex.header, Err: err})
	}
}

// failExchange answers an exchange with a ProtocolException and closes it.
func (s *Session) failExchange(ex *exchange, outcome string, err error) {
	ex.mutex.Lock()
	defer ex.mutex.Unlock()

	if ex.state == ExchangeClosed {
		return
	}
	s.sendError(ex.header, err)
	s.closeExchange(ex, outcome, err)
}

// deliver passes a completely received request to its handler within the protocol's worker.
func (s *Session) deliver(ex *exchange, parts []msgs.Message) {
	ex.mutex.Lock()
	if ex.state != ExchangeOpen {
		ex.mutex.Unlock()
		return
	}
	ex.state = ExchangeDelivered
	if !ex.route.Notification {
		ex.timer = time.AfterFunc(s.handlerTimeout, func() { s.handlerTimedOut(ex) })
	}
	ex.mutex.Unlock()

	req := &Request{
		Header:   ex.header,
		Parts:    parts,
		Protocol: ex.protocol,
		session:  s,
		ex:       ex,
	}

	s.exMutex.Lock()
	w := s.workers[ex.protocol.ID]
	s.exMutex.Unlock()

	w.enqueue(func() { s.runHandler(req) })
}

func (s *Session) runHandler(req *Request) {
	ex := req.ex

	err := ex.route.Handle(req)
	if err != nil {
		err = protoerr.Application(err)
		if ex.route.Notification {
			ex.mutex.Lock()
			s.sendError(ex.header, err)
			s.closeExchange(ex, "failed", err)
			ex.mutex.Unlock()
			return
		}
		if respErr := req.RespondError(err); respErr != nil && !errors.Is(respErr, ErrExchangeClosed) {
			s.log().WithError(respErr).Warn("Responding with an error failed")
		}
		return
	}

	if ex.route.Notification {
		ex.mutex.Lock()
		s.closeExchange(ex, "notified", nil)
		ex.mutex.Unlock()
	}
}

// handlerTimedOut closes an exchange whose handler did not respond in time.
func (s *Session) handlerTimedOut(ex *exchange) {
	ex.mutex.Lock()
	defer ex.mutex.Unlock()

	if ex.state != ExchangeDelivered {
		return
	}

	err := protoerr.Timeout("no response for %v within %v", ex.header.Key(), s.handlerTimeout)
	s.sendError(ex.header, err)
	s.closeExchange(ex, "timeout", err)
}

// requestTimedOut is called for a multi-part request which did not receive its final part in time.
func (s *Session) requestTimedOut(protocol int32, key uint64, err error) {
	ex, ok := s.lookupExchange(key)
	if !ok {
		return
	}

	s.log().WithFields(log.Fields{
		"protocol": protocol,
		"request":  key,
	}).Debug("Multi-part request timed out")
	s.failExchange(ex, "timeout", err)
}
