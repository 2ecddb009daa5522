// SPDX-FileCopyrightText: 2020, 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"errors"

	"github.com/openetp/etp-go/pkg/capability"
)

// errStageClose signals a closed stage, after calling the close method.
var errStageClose = errors.New("stage closed down")

// Protocol is a negotiated protocol within a Session.
type Protocol struct {
	ID      int32
	Version string

	// Role of this endpoint, e.g., "customer".
	Role string

	// PeerRole is the counterpart of Role.
	PeerRole string

	Capabilities *capability.Negotiated
}

// state for stages, both used as input and as an altered output.
type state struct {
	// session to send messages and to dispatch incoming ones.
	session *Session

	// msgIn is the channel of incoming encoded messages of the underlying transport.MessageSwitch.
	msgIn <-chan []byte

	// stageError reports back the failure of a stage.
	stageError error

	// NEGOTIATION STAGE
	// peerApplication names the peer's application and version.
	peerApplication string
	// peerInstanceID is the peer's instance UUID.
	peerInstanceID string
	// sessionID was chosen by the passive peer.
	sessionID string
	// endpoint are both sides' endpoint capabilities.
	endpoint *capability.Negotiated
	// protocols maps the negotiated protocols' IDs to their roles and capabilities.
	protocols map[int32]*Protocol
	// NEGOTIATION STAGE END
}

// stage described by this interface.
type stage interface {
	// handle this stage's action based on the previous stage's state and the stageHandler's close channel.
	handle(state *state, closeChan <-chan struct{})
}
