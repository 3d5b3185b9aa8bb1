package transport

import "errors"

// Domain errors for the transport package.
var (
	// ErrWouldBlock indicates a receive or send could not make progress
	// right now. It is a transient condition, not a failure: retry after
	// the next readiness wait.
	ErrWouldBlock = errors.New("transport: operation would block")

	// ErrClosed is returned when an operation is attempted on a closed
	// connection.
	ErrClosed = errors.New("transport: connection closed")

	// ErrDialFailed is returned when a connection attempt fails.
	ErrDialFailed = errors.New("transport: dial failed")

	// ErrNotPollable is returned by a Waiter given a connection it cannot
	// observe for readiness.
	ErrNotPollable = errors.New("transport: connection is not pollable")
)
