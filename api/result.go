// Package api defines the public surface of RingSocket-Go: the callback
// ABI, the frozen configuration structure, structured errors, and the
// wire-level identifiers applications are allowed to see.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package api

import "fmt"

// Result is the four-valued interior status code every non-blocking
// operation in the core reduces to. It mirrors RingSocket's rs_ret enum.
type Result int

const (
	// OK: the operation completed.
	OK Result = iota
	// Again: the operation would block; resume on the next readiness event.
	Again
	// ClosePeer: drop this peer (malformed framing, reset, protocol
	// violation, unexpected EOF outside shutdown).
	ClosePeer
	// Fatal: unrecoverable condition (allocation failure, clock failure,
	// ring-queue overflow, failed shutdown() on a healthy socket). It does
	// not exit the process: an app loop whose hook returns Fatal stops and
	// its Run returns an error, while a worker logs it and continues.
	Fatal
)

func (r Result) String() string {
	switch r {
	case OK:
		return "OK"
	case Again:
		return "AGAIN"
	case ClosePeer:
		return "CLOSE_PEER"
	case Fatal:
		return "FATAL"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// CloseCode is a WebSocket close status code. Codes in [4000,4899] are
// available to applications; [4900,4999] are reserved for internal use.
type CloseCode uint16

const (
	CloseNormal           CloseCode = 1000
	CloseGoingAway        CloseCode = 1001
	CloseProtocolError    CloseCode = 1002
	CloseUnsupportedData  CloseCode = 1003
	CloseInvalidPayload   CloseCode = 1007
	ClosePolicyViolation  CloseCode = 1008
	CloseMessageTooBig    CloseCode = 1009
	AppCloseCodeMin       CloseCode = 4000
	AppCloseCodeMax       CloseCode = 4899
	InternalCloseCodeMin  CloseCode = 4900
	InternalCloseCodeMax  CloseCode = 4999
)

// InternalCloseShutdown is used when the server itself initiates a
// graceful shutdown of a peer, as opposed to an application decision.
const InternalCloseShutdown CloseCode = 4900

// IsAppCode reports whether c is in the application-reserved range.
func (c CloseCode) IsAppCode() bool {
	return c >= AppCloseCodeMin && c <= AppCloseCodeMax
}

// IsInternalCode reports whether c is in the internally-reserved range.
func (c CloseCode) IsInternalCode() bool {
	return c >= InternalCloseCodeMin && c <= InternalCloseCodeMax
}
