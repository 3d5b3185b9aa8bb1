package tunnel

import (
	"context"
	"errors"
	"io"

	"github.com/TristanIsrael/mqtt-tunnels/internal/transport"
)

// defaultChunkSize is how many bytes a single read may pull off a socket.
const defaultChunkSize = 4096

// Reason classifies how a relay session ended.
type Reason string

const (
	// ReasonPeerClosed means one side closed its connection. This is the
	// normal end of a session, not an error.
	ReasonPeerClosed Reason = "peer_closed"

	// ReasonError means an I/O error occurred on either side.
	ReasonError Reason = "io_error"

	// ReasonCancelled means the context was cancelled during the session.
	ReasonCancelled Reason = "cancelled"
)

// Result summarises a completed relay session.
type Result struct {
	Reason Reason

	// Err is the underlying error for ReasonError and ReasonCancelled.
	Err error

	// BytesAToB and BytesBToA count bytes delivered per direction.
	BytesAToB uint64
	BytesBToA uint64
}

// RelayConfig configures one relay session.
type RelayConfig struct {
	// Waiter is the readiness multiplexer. Required.
	Waiter transport.Waiter

	// ChunkSize is the per-read buffer size. Zero means defaultChunkSize.
	ChunkSize int

	// Trace, when set, receives every forwarded chunk. Direction is
	// "a_to_b" or "b_to_a". Used for debug hex dumps.
	Trace func(direction string, data []byte)
}

// Relay forwards bytes between a and b until one side closes, an I/O error
// occurs, or ctx is cancelled. It blocks the calling goroutine for the
// duration of the session.
//
// Each pass waits for readiness on both connections, reads whatever is
// available into the opposite direction's outbound buffer, and sends as many
// buffered bytes as each transport accepts. A partial send keeps the
// remainder buffered for the next pass; per-direction byte order is
// preserved exactly and no byte is duplicated or lost. Would-block
// conditions are skipped, never treated as failures.
//
// Relay does not close the connections; teardown belongs to the caller.
func Relay(ctx context.Context, a, b transport.Conn, cfg RelayConfig) Result {
	if cfg.Waiter == nil {
		return Result{Reason: ReasonError, Err: ErrMissingWaiter}
	}

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	var (
		aToB  []byte // bytes received from a, awaiting delivery to b
		bToA  []byte // bytes received from b, awaiting delivery to a
		chunk = make([]byte, chunkSize)
		res   Result
	)

	for {
		read := []transport.Conn{a, b}
		var write []transport.Conn
		if len(aToB) > 0 {
			write = append(write, b)
		}
		if len(bToA) > 0 {
			write = append(write, a)
		}

		readable, writable, err := cfg.Waiter.Wait(ctx, read, write)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				res.Reason = ReasonCancelled
			} else {
				res.Reason = ReasonError
			}
			res.Err = err
			return res
		}

		if hasConn(readable, a) {
			data, err := receiveChunk(a, chunk)
			if err != nil {
				return finish(&res, err)
			}
			aToB = append(aToB, data...)
		}

		if hasConn(readable, b) {
			data, err := receiveChunk(b, chunk)
			if err != nil {
				return finish(&res, err)
			}
			bToA = append(bToA, data...)
		}

		if hasConn(writable, b) && len(aToB) > 0 {
			n, err := sendBuffered(b, aToB)
			if err != nil {
				return finish(&res, err)
			}
			if n > 0 {
				if cfg.Trace != nil {
					cfg.Trace("a_to_b", aToB[:n])
				}
				res.BytesAToB += uint64(n)
				aToB = aToB[n:]
			}
		}

		if hasConn(writable, a) && len(bToA) > 0 {
			n, err := sendBuffered(a, bToA)
			if err != nil {
				return finish(&res, err)
			}
			if n > 0 {
				if cfg.Trace != nil {
					cfg.Trace("b_to_a", bToA[:n])
				}
				res.BytesBToA += uint64(n)
				bToA = bToA[n:]
			}
		}
	}
}

// receiveChunk reads one chunk from c. It returns nil data on a would-block
// condition and a non-nil error only when the session must end.
func receiveChunk(c transport.Conn, chunk []byte) ([]byte, error) {
	n, err := c.Receive(chunk)
	switch {
	case err == nil:
		return chunk[:n], nil
	case errors.Is(err, transport.ErrWouldBlock):
		// Readiness was spurious; retry on the next pass.
		return nil, nil
	default:
		return nil, err
	}
}

// sendBuffered sends as many buffered bytes as the transport accepts.
// A would-block condition sends nothing and is not an error.
func sendBuffered(c transport.Conn, buf []byte) (int, error) {
	n, err := c.Send(buf)
	if err != nil {
		if errors.Is(err, transport.ErrWouldBlock) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// finish classifies a terminal session error into the result.
func finish(res *Result, err error) Result {
	if errors.Is(err, io.EOF) {
		res.Reason = ReasonPeerClosed
	} else {
		res.Reason = ReasonError
		res.Err = err
	}
	return *res
}

func hasConn(set []transport.Conn, c transport.Conn) bool {
	for _, s := range set {
		if s == c {
			return true
		}
	}
	return false
}
