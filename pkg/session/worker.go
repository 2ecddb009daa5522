// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"sync"
)

// worker executes queued functions one after another in a Goroutine. Queueing never blocks, thus the read path
// never waits for an application's handler. One worker exists per protocol, keeping the order within a protocol.
type worker struct {
	mutex  sync.Mutex
	queue  []func()
	signal chan struct{}
	done   <-chan struct{}
}

func newWorker(done <-chan struct{}) *worker {
	w := &worker{
		signal: make(chan struct{}, 1),
		done:   done,
	}

	go w.run()
	return w
}

func (w *worker) enqueue(f func()) {
	w.mutex.Lock()
	w.queue = append(w.queue, f)
	w.mutex.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *worker) run() {
	for {
		select {
		case <-w.done:
			return
		case <-w.signal:
		}

		for {
			w.mutex.Lock()
			if len(w.queue) == 0 {
				w.mutex.Unlock()
				break
			}
			f := w.queue[0]
			w.queue[0] = nil
			w.queue = w.queue[1:]
			w.mutex.Unlock()

			f()
		}
	}
}
