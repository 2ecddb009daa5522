// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package protoerr holds the error taxonomy shared by the ETP engine's packages.
//
// Every error raised by the engine for a protocol reason is an *Error with a Kind. The Kind decides how a session
// reacts, e.g., by sending a correlated ProtocolException or by closing down. The Code is the ETP error code which is
// put on the wire.
package protoerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind uint8

const (
	_ Kind = iota

	// KindDecode is a malformed envelope, body or polymorphic value.
	KindDecode

	// KindProtocolViolation is a message which is not allowed in the current state, e.g., an unknown message type.
	KindProtocolViolation

	// KindCapabilityLimit is a payload or concurrency exceeding a negotiated capability.
	KindCapabilityLimit

	// KindExchangeTimeout is an exchange without a FinalPart before its deadline.
	KindExchangeTimeout

	// KindApplicationFailure is a handler failing to produce a valid response.
	KindApplicationFailure
)

func (k Kind) String() string {
	switch k {
	case KindDecode:
		return "DecodeError"
	case KindProtocolViolation:
		return "ProtocolViolation"
	case KindCapabilityLimit:
		return "CapabilityLimitExceeded"
	case KindExchangeTimeout:
		return "ExchangeTimeout"
	case KindApplicationFailure:
		return "ApplicationFailure"
	default:
		return "Unknown"
	}
}

// Error is a classified ETP engine error.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v(%v): %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%v(%v): %s", e.Kind, e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a target *Error by its Kind if the target carries neither a Code nor a Message. This allows
// errors.Is(err, ErrDecode) for every decoding error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == 0 && t.Message == "" {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Code == t.Code && e.Message == t.Message
}

// Sentinels, only usable for errors.Is.
var (
	ErrDecode             = &Error{Kind: KindDecode}
	ErrProtocolViolation  = &Error{Kind: KindProtocolViolation}
	ErrCapabilityLimit    = &Error{Kind: KindCapabilityLimit}
	ErrExchangeTimeout    = &Error{Kind: KindExchangeTimeout}
	ErrApplicationFailure = &Error{Kind: KindApplicationFailure}
)

func newError(kind Kind, code Code, err error, format string, a ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: fmt.Sprintf(format, a...),
		Err:     err,
	}
}

// Decode creates a KindDecode Error with the EINVALID_MESSAGE code.
func Decode(format string, a ...interface{}) *Error {
	return newError(KindDecode, CodeInvalidMessage, nil, format, a...)
}

// DecodeWrap wraps a cause into a KindDecode Error.
func DecodeWrap(err error, format string, a ...interface{}) *Error {
	return newError(KindDecode, CodeInvalidMessage, err, format, a...)
}

// Violation creates a KindProtocolViolation Error with the given code.
func Violation(code Code, format string, a ...interface{}) *Error {
	return newError(KindProtocolViolation, code, nil, format, a...)
}

// Limit creates a KindCapabilityLimit Error with the given code.
func Limit(code Code, format string, a ...interface{}) *Error {
	return newError(KindCapabilityLimit, code, nil, format, a...)
}

// Timeout creates a KindExchangeTimeout Error.
func Timeout(format string, a ...interface{}) *Error {
	return newError(KindExchangeTimeout, CodeTimedOut, nil, format, a...)
}

// Application wraps an application's error into a KindApplicationFailure Error. An already classified error is
// returned unchanged.
func Application(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return newError(KindApplicationFailure, CodeInternalError, err, "handler failed")
}

// Remote creates an Error for a ProtocolException received from the peer.
func Remote(code Code, message string) *Error {
	return &Error{
		Kind:    KindApplicationFailure,
		Code:    code,
		Message: message,
	}
}

// CodeOf extracts the ETP error code of err. Unclassified errors map to EINTERNAL_ERROR.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) && pe.Code != 0 {
		return pe.Code
	}
	return CodeInternalError
}

// KindOf extracts the Kind of err or zero for unclassified errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}
