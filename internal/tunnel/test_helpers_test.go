package tunnel

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/TristanIsrael/mqtt-tunnels/internal/transport"
)

// fakeConn is an in-memory transport endpoint with scriptable behavior:
// bytes to deliver, per-call send limits, would-block and error injection.
type fakeConn struct {
	mu sync.Mutex

	inbound    []byte // bytes the conn will deliver via Receive
	peerClosed bool   // report io.EOF once inbound is drained
	recvErr    error  // terminal receive error once inbound is drained

	sent        []byte // everything accepted by Send
	sendLimit   int    // max bytes accepted per Send call (0 = unlimited)
	sendBlocked bool   // Send reports would-block while set
	sendErr     error  // terminal send error

	closed     bool
	closeCount int
}

func (c *fakeConn) Receive(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, transport.ErrClosed
	}
	if len(c.inbound) == 0 {
		if c.recvErr != nil {
			return 0, c.recvErr
		}
		if c.peerClosed {
			return 0, io.EOF
		}
		return 0, transport.ErrWouldBlock
	}

	n := copy(p, c.inbound)
	c.inbound = c.inbound[n:]
	return n, nil
}

func (c *fakeConn) Send(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, transport.ErrClosed
	}
	if c.sendErr != nil {
		return 0, c.sendErr
	}
	if c.sendBlocked {
		return 0, transport.ErrWouldBlock
	}

	n := len(p)
	if c.sendLimit > 0 && n > c.sendLimit {
		n = c.sendLimit
	}
	c.sent = append(c.sent, p[:n]...)
	return n, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeCount++
	return nil
}

func (c *fakeConn) feed(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbound = append(c.inbound, data...)
}

func (c *fakeConn) closePeer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peerClosed = true
}

func (c *fakeConn) setSendBlocked(blocked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendBlocked = blocked
}

func (c *fakeConn) sentBytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCount
}

func (c *fakeConn) readReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || len(c.inbound) > 0 || c.peerClosed || c.recvErr != nil
}

func (c *fakeConn) writeReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.sendBlocked
}

// fakeWaiter reports readiness by inspecting fake connections directly.
type fakeWaiter struct{}

func (fakeWaiter) Wait(ctx context.Context, read, write []transport.Conn) ([]transport.Conn, []transport.Conn, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		var readable, writable []transport.Conn
		for _, c := range read {
			if c.(*fakeConn).readReady() {
				readable = append(readable, c)
			}
		}
		for _, c := range write {
			if c.(*fakeConn).writeReady() {
				writable = append(writable, c)
			}
		}

		if len(readable) > 0 || len(writable) > 0 {
			return readable, writable, nil
		}
		time.Sleep(time.Millisecond)
	}
}

// fakeDialer hands out scripted connections per path, recording every dial.
type fakeDialer struct {
	mu    sync.Mutex
	conns map[string][]*fakeConn
	errs  map[string]error
	dials map[string][]time.Time
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		conns: make(map[string][]*fakeConn),
		errs:  make(map[string]error),
		dials: make(map[string][]time.Time),
	}
}

func (d *fakeDialer) Dial(_ context.Context, path string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials[path] = append(d.dials[path], time.Now())

	if err := d.errs[path]; err != nil {
		return nil, err
	}

	queue := d.conns[path]
	if len(queue) == 0 {
		return nil, fmt.Errorf("%w: no scripted conn for %s", transport.ErrDialFailed, path)
	}
	conn := queue[0]
	d.conns[path] = queue[1:]
	return conn, nil
}

func (d *fakeDialer) queue(path string, conn *fakeConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns[path] = append(d.conns[path], conn)
}

func (d *fakeDialer) failWith(path string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs[path] = err
}

func (d *fakeDialer) dialTimes(path string) []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]time.Time, len(d.dials[path]))
	copy(out, d.dials[path])
	return out
}

// fakeRecorder collects session records.
type fakeRecorder struct {
	mu      sync.Mutex
	records []SessionRecord
}

func (r *fakeRecorder) RecordSession(_ context.Context, rec SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeRecorder) all() []SessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SessionRecord, len(r.records))
	copy(out, r.records)
	return out
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
