// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package protoerr

import "fmt"

// Code is an ETP error code as transmitted in a ProtocolException.
type Code int32

const (
	CodeNoRole                Code = 2
	CodeNoSupportedProtocols  Code = 3
	CodeInvalidMessageType    Code = 4
	CodeUnsupportedProtocol   Code = 5
	CodeInvalidArgument       Code = 6
	CodeRequestDenied         Code = 7
	CodeNotSupported          Code = 8
	CodeInvalidState          Code = 9
	CodeNotFound              Code = 11
	CodeLimitExceeded         Code = 12
	CodeCompressionNotSupport Code = 13
	CodeMaxTransactions       Code = 15
	CodeMaxSizeExceeded       Code = 17
	CodeMultipartCancelled    Code = 18
	CodeInvalidMessage        Code = 19
	CodeTimedOut              Code = 26
	CodeResponseCountExceeded Code = 30
	CodeInternalError         Code = 1
)

var codeNames = map[Code]string{
	CodeNoRole:                "ENOROLE",
	CodeNoSupportedProtocols:  "ENOSUPPORTEDPROTOCOLS",
	CodeInvalidMessageType:    "EINVALID_MESSAGETYPE",
	CodeUnsupportedProtocol:   "EUNSUPPORTED_PROTOCOL",
	CodeInvalidArgument:       "EINVALID_ARGUMENT",
	CodeRequestDenied:         "EREQUEST_DENIED",
	CodeNotSupported:          "ENOTSUPPORTED",
	CodeInvalidState:          "EINVALID_STATE",
	CodeNotFound:              "ENOT_FOUND",
	CodeLimitExceeded:         "ELIMIT_EXCEEDED",
	CodeCompressionNotSupport: "ECOMPRESSION_NOTSUPPORTED",
	CodeMaxTransactions:       "EMAX_TRANSACTIONS_EXCEEDED",
	CodeMaxSizeExceeded:       "EMAXSIZE_EXCEEDED",
	CodeMultipartCancelled:    "EMULTIPART_CANCELLED",
	CodeInvalidMessage:        "EINVALID_MESSAGE",
	CodeTimedOut:              "ETIMED_OUT",
	CodeResponseCountExceeded: "ERESPONSECOUNT_EXCEEDED",
	CodeInternalError:         "EINTERNAL_ERROR",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("E%d", int32(c))
}
