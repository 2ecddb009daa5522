// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package multipart

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openetp/etp-go/pkg/protoerr"
)

// ErrClosed is returned by a closed Assembler.
var ErrClosed = errors.New("assembler was closed")

// TimeoutFunc is called for each abandoned exchange with its key and an ExchangeTimeout error. The partial data
// was already discarded.
type TimeoutFunc func(key uint64, err error)

// pending is an open exchange's accumulation buffer.
type pending[P any] struct {
	parts []P
	timer *time.Timer
}

// Assembler accumulates parts sharing a key, e.g., a correlation id, until a final part arrives. Each open exchange
// is abandoned if no further part arrives within its timeout. An Assembler is safe for concurrent use.
type Assembler[P any] struct {
	mutex sync.Mutex
	open  map[uint64]*pending[P]

	limit     int
	timeout   time.Duration
	onTimeout TimeoutFunc

	closed bool
}

// NewAssembler creates an Assembler with at most limit concurrently open exchanges and an inter-part timeout. A
// limit of zero disables the admission check.
func NewAssembler[P any](limit int, timeout time.Duration, onTimeout TimeoutFunc) *Assembler[P] {
	return &Assembler[P]{
		open:      make(map[uint64]*pending[P]),
		limit:     limit,
		timeout:   timeout,
		onTimeout: onTimeout,
	}
}

func (a *Assembler[P]) String() string {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return fmt.Sprintf("Assembler(open=%d, limit=%d, timeout=%v)", len(a.open), a.limit, a.timeout)
}

// openLocked starts a new exchange. The mutex must be held.
func (a *Assembler[P]) openLocked(key uint64, timeout time.Duration) (*pending[P], error) {
	if a.closed {
		return nil, ErrClosed
	}
	if _, exists := a.open[key]; exists {
		return nil, protoerr.Violation(protoerr.CodeInvalidState, "exchange %d is already open", key)
	}
	if a.limit > 0 && len(a.open) >= a.limit {
		return nil, protoerr.Limit(protoerr.CodeLimitExceeded,
			"exchange %d exceeds the limit of %d concurrent multi-part exchanges", key, a.limit)
	}

	p := &pending[P]{}
	p.timer = time.AfterFunc(timeout, func() { a.expire(key, p) })
	a.open[key] = p
	return p, nil
}

// Open an exchange before its first part arrives, e.g., for an outgoing request awaiting its response. The first
// part must arrive within the given timeout, later parts within the Assembler's timeout.
func (a *Assembler[P]) Open(key uint64, timeout time.Duration) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	_, err := a.openLocked(key, timeout)
	return err
}

// IsOpen checks if an exchange is currently accumulating.
func (a *Assembler[P]) IsOpen(key uint64) bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	_, exists := a.open[key]
	return exists
}

// Add a part. For a final part the whole ordered sequence is returned with done set and the exchange is discarded.
// A non-final part for an unknown key opens a new exchange, subject to the admission limit.
func (a *Assembler[P]) Add(key uint64, part P, final bool) (parts []P, done bool, err error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.closed {
		err = ErrClosed
		return
	}

	p, exists := a.open[key]
	if !exists {
		if final {
			return []P{part}, true, nil
		}
		if p, err = a.openLocked(key, a.timeout); err != nil {
			return
		}
	}

	p.parts = append(p.parts, part)

	if final {
		p.timer.Stop()
		delete(a.open, key)
		return p.parts, true, nil
	}

	p.timer.Reset(a.timeout)
	return nil, false, nil
}

// expire is called from an exchange's timer.
func (a *Assembler[P]) expire(key uint64, p *pending[P]) {
	a.mutex.Lock()
	current, exists := a.open[key]
	if !exists || current != p {
		a.mutex.Unlock()
		return
	}
	delete(a.open, key)
	parts := len(p.parts)
	a.mutex.Unlock()

	if a.onTimeout != nil {
		a.onTimeout(key, protoerr.Timeout("exchange %d received no final part, discarded %d parts", key, parts))
	}
}

// Cancel an open exchange and discard its parts. Returns true if the exchange was open.
func (a *Assembler[P]) Cancel(key uint64) bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	p, exists := a.open[key]
	if exists {
		p.timer.Stop()
		delete(a.open, key)
	}
	return exists
}

// Len is the amount of open exchanges.
func (a *Assembler[P]) Len() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return len(a.open)
}

// Close discards all open exchanges and returns their keys. Afterwards, all calls to Add and Open fail.
func (a *Assembler[P]) Close() (keys []uint64) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.closed = true
	for key, p := range a.open {
		p.timer.Stop()
		keys = append(keys, key)
	}
	a.open = make(map[uint64]*pending[P])
	return
}
