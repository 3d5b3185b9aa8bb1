package transport

import "context"

// Conn is a non-blocking byte-stream endpoint.
//
// Receive and Send never block: when no progress is possible they return
// ErrWouldBlock and the caller waits for readiness through a Waiter.
type Conn interface {
	// Receive reads up to len(p) bytes into p. It returns io.EOF once the
	// peer has closed its side, ErrWouldBlock when no data is available,
	// and any other error on connection failure.
	Receive(p []byte) (int, error)

	// Send writes bytes from p and returns how many the transport accepted.
	// Partial sends are normal; the caller keeps the unsent suffix. It
	// returns ErrWouldBlock when the transport cannot accept any bytes.
	Send(p []byte) (int, error)

	// Close releases the endpoint. It is idempotent: closing an already
	// closed connection returns nil.
	Close() error
}

// Dialer opens a connection to a local endpoint identified by a filesystem
// path (socket file, serial device).
type Dialer interface {
	Dial(ctx context.Context, path string) (Conn, error)
}

// Waiter is a readiness multiplexer over a set of connections.
//
// Wait blocks until at least one connection in the read set is readable or
// one in the write set is writable, then reports which. It observes ctx at
// every suspension point and returns ctx.Err() once the context is done.
type Waiter interface {
	Wait(ctx context.Context, read, write []Conn) (readable, writable []Conn, err error)
}
