// SPDX-FileCopyrightText: 2020, 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"sync"
)

// stageSetup wraps a stage with two possible hooks (pre and post) to be used within the stageHandler.
type stageSetup struct {
	// stage to be executed.
	stage stage

	// preHook will be executed before starting the stage, if not nil.
	preHook func(*stageHandler, *state) error
	// postHook will be executed after a finished stage, if not nil.
	postHook func(*stageHandler, *state) error
}

// stageHandler executes a sequence of stages and passes the state from one stage to another. Errors might be
// propagated back through the error method.
type stageHandler struct {
	stages []stageSetup
	state  *state

	errChan   chan error
	closeChan chan struct{}
	closeOnce sync.Once
}

// newStageHandler for a slice of stages and the incoming message channel.
func newStageHandler(stages []stageSetup, s *Session, msgIn <-chan []byte) (sh *stageHandler) {
	sh = &stageHandler{
		stages: stages,
		state: &state{
			session: s,
			msgIn:   msgIn,
		},

		errChan:   make(chan error, 1),
		closeChan: make(chan struct{}),
	}

	go sh.handler()

	return
}

func (sh *stageHandler) handler() {
	defer close(sh.errChan)

	for _, setup := range sh.stages {
		if setup.preHook != nil {
			if err := setup.preHook(sh, sh.state); err != nil {
				sh.errChan <- err
				return
			}
		}

		setup.stage.handle(sh.state, sh.closeChan)
		if err := sh.state.stageError; err != nil {
			sh.errChan <- err
			return
		}

		if setup.postHook != nil {
			if err := setup.postHook(sh, sh.state); err != nil {
				sh.errChan <- err
				return
			}
		}
	}
}

// errs might return errors risen in a stage. The channel is closed after the last stage.
func (sh *stageHandler) errs() <-chan error {
	return sh.errChan
}

// close this stageHandler and the current stage.
func (sh *stageHandler) close() {
	sh.closeOnce.Do(func() { close(sh.closeChan) })
}
