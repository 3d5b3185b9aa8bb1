package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.bug.st/serial"
)

// defaultBaudRate matches the broker-side serial line configuration.
const defaultBaudRate = 115200

// serialReceiveTimeout bounds a Receive call so it reports ErrWouldBlock
// instead of blocking forever on an idle line.
const serialReceiveTimeout = 50 * time.Millisecond

// SerialDialer opens serial line connections.
type SerialDialer struct {
	// BaudRate for the line. Zero means defaultBaudRate.
	BaudRate int
}

// Dial opens the serial device at path and flushes any stale bytes from
// both directions.
func (d SerialDialer) Dial(ctx context.Context, path string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	baud := d.BaudRate
	if baud <= 0 {
		baud = defaultBaudRate
	}

	port, err := serial.Open(path, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrDialFailed, path, err)
	}

	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: reset input %s: %w", ErrDialFailed, path, err)
	}
	if err := port.ResetOutputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: reset output %s: %w", ErrDialFailed, path, err)
	}

	return &SerialConn{port: port, path: path}, nil
}

// SerialConn is an open serial line.
//
// It implements both the transport capability set and net.Conn, so the same
// endpoint serves the tunnel core and MQTT clients that expect a network
// connection.
type SerialConn struct {
	port serial.Port
	path string

	mu     sync.Mutex
	closed bool
}

// Receive reads available bytes from the line. An idle line reports
// ErrWouldBlock after a short internal timeout.
func (c *SerialConn) Receive(p []byte) (int, error) {
	if c.isClosed() {
		return 0, ErrClosed
	}

	if err := c.port.SetReadTimeout(serialReceiveTimeout); err != nil {
		return 0, fmt.Errorf("set read timeout %s: %w", c.path, err)
	}

	n, err := c.port.Read(p)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", c.path, err)
	}
	if n == 0 {
		// Timed out with no data.
		return 0, ErrWouldBlock
	}
	return n, nil
}

// Send writes bytes to the line.
func (c *SerialConn) Send(p []byte) (int, error) {
	if c.isClosed() {
		return 0, ErrClosed
	}

	n, err := c.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", c.path, err)
	}
	return n, nil
}

// Close flushes and closes the line. Closing twice is a no-op.
func (c *SerialConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	// Best effort: stale bytes must not leak into the next session.
	_ = c.port.ResetInputBuffer()
	_ = c.port.ResetOutputBuffer()

	if err := c.port.Close(); err != nil {
		return fmt.Errorf("close %s: %w", c.path, err)
	}
	return nil
}

func (c *SerialConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Read implements net.Conn with blocking semantics for MQTT clients.
func (c *SerialConn) Read(p []byte) (int, error) {
	if c.isClosed() {
		return 0, ErrClosed
	}
	if err := c.port.SetReadTimeout(serial.NoTimeout); err != nil {
		return 0, fmt.Errorf("set read timeout %s: %w", c.path, err)
	}
	return c.port.Read(p)
}

// Write implements net.Conn.
func (c *SerialConn) Write(p []byte) (int, error) {
	return c.Send(p)
}

// LocalAddr implements net.Conn.
func (c *SerialConn) LocalAddr() net.Addr { return serialAddr(c.path) }

// RemoteAddr implements net.Conn.
func (c *SerialConn) RemoteAddr() net.Addr { return serialAddr(c.path) }

// SetDeadline implements net.Conn. Write deadlines are not supported by the
// underlying line; only the read side is bounded.
func (c *SerialConn) SetDeadline(t time.Time) error {
	return c.SetReadDeadline(t)
}

// SetReadDeadline implements net.Conn.
func (c *SerialConn) SetReadDeadline(t time.Time) error {
	if t.IsZero() {
		return c.port.SetReadTimeout(serial.NoTimeout)
	}
	d := time.Until(t)
	if d < 0 {
		d = 0
	}
	return c.port.SetReadTimeout(d)
}

// SetWriteDeadline implements net.Conn. Not supported; reported as nil so
// MQTT clients that set deadlines unconditionally keep working.
func (c *SerialConn) SetWriteDeadline(time.Time) error { return nil }

var _ net.Conn = (*SerialConn)(nil)

// serialAddr is the net.Addr of a serial line.
type serialAddr string

func (a serialAddr) Network() string { return "serial" }
func (a serialAddr) String() string  { return string(a) }
