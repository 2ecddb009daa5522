// SPDX-FileCopyrightText: 2019, 2020, 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"fmt"

	"github.com/openetp/etp-go/pkg/msgs"
)

// StatusType indicates the kind of a Status.
type StatusType uint

const (
	_ StatusType = iota

	// SessionOpened shows a successfully negotiated Session.
	SessionOpened

	// SessionClosed shows the end of a Session. Err is set if the Session failed.
	SessionClosed

	// ExchangeFailed shows an exchange which was closed by an error, e.g., an ExchangeTimeout. Header references the
	// exchange's request.
	ExchangeFailed
)

func (st StatusType) String() string {
	switch st {
	case SessionOpened:
		return "Session Opened"
	case SessionClosed:
		return "Session Closed"
	case ExchangeFailed:
		return "Exchange Failed"
	default:
		return "Unknown"
	}
}

// Status is reported by a Session through its Status channel.
type Status struct {
	Type    StatusType
	Session *Session
	Header  msgs.Header
	Err     error
}

func (s Status) String() string {
	switch s.Type {
	case ExchangeFailed:
		return fmt.Sprintf("%v: %v, %v", s.Type, s.Header, s.Err)
	case SessionClosed:
		if s.Err != nil {
			return fmt.Sprintf("%v: %v", s.Type, s.Err)
		}
		fallthrough
	default:
		return s.Type.String()
	}
}
