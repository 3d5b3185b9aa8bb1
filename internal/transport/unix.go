package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// defaultPollInterval bounds a single poll(2) call so that context
// cancellation is observed even when no socket ever becomes ready.
const defaultPollInterval = 500 * time.Millisecond

// UnixDialer opens Unix domain stream socket connections.
type UnixDialer struct{}

// Dial connects to the Unix socket at path and switches the descriptor to
// non-blocking mode. Connection refusal and missing socket files are
// reported as ErrDialFailed; the caller's retry loop handles them.
func (UnixDialer) Dial(ctx context.Context, path string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: socket: %w", ErrDialFailed, err)
	}

	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: connect %s: %w", ErrDialFailed, path, err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: set nonblock: %w", ErrDialFailed, err)
	}

	return &UnixConn{fd: fd, path: path}, nil
}

// UnixConn is a connected, non-blocking Unix domain stream socket.
type UnixConn struct {
	path string

	mu     sync.Mutex
	fd     int
	closed bool
}

// Receive reads up to len(p) bytes from the socket.
func (c *UnixConn) Receive(p []byte) (int, error) {
	fd, ok := c.descriptor()
	if !ok {
		return 0, ErrClosed
	}

	for {
		n, err := unix.Read(fd, p)
		switch err {
		case nil:
			if n == 0 {
				// Zero-length read on a stream socket: peer closed.
				return 0, io.EOF
			}
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, ErrWouldBlock
		default:
			return 0, fmt.Errorf("read %s: %w", c.path, err)
		}
	}
}

// Send writes bytes from p and returns how many the kernel accepted.
func (c *UnixConn) Send(p []byte) (int, error) {
	fd, ok := c.descriptor()
	if !ok {
		return 0, ErrClosed
	}

	for {
		n, err := unix.Write(fd, p)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, ErrWouldBlock
		default:
			return 0, fmt.Errorf("write %s: %w", c.path, err)
		}
	}
}

// Close closes the socket. Closing an already closed connection is a no-op.
func (c *UnixConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	fd := c.fd
	c.fd = -1
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close %s: %w", c.path, err)
	}
	return nil
}

// Path returns the socket path this connection was dialed to.
func (c *UnixConn) Path() string {
	return c.path
}

// descriptor returns the current file descriptor, or ok=false when closed.
func (c *UnixConn) descriptor() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return -1, false
	}
	return c.fd, true
}

// PollWaiter multiplexes readiness over Unix socket connections using poll(2).
//
// Waits are sliced into bounded poll calls so the context is checked
// periodically; the caller still observes an unbounded wait when the context
// is never cancelled.
type PollWaiter struct {
	// Interval bounds a single poll(2) call. Zero means defaultPollInterval.
	Interval time.Duration
}

// Wait blocks until a connection in the read set is readable or one in the
// write set is writable. Hang-ups and socket errors are reported through the
// read set, where the following Receive surfaces io.EOF or the error itself.
func (w PollWaiter) Wait(ctx context.Context, read, write []Conn) ([]Conn, []Conn, error) {
	interval := w.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	type slot struct {
		conn  Conn
		write bool
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		fds := make([]unix.PollFd, 0, len(read)+len(write))
		slots := make([]slot, 0, len(read)+len(write))
		var readable, writable []Conn

		for _, c := range read {
			fd, err := pollDescriptor(c)
			if err != nil {
				return nil, nil, err
			}
			if fd < 0 {
				// Closed connection: report readable so the caller's
				// Receive surfaces the terminal error.
				readable = append(readable, c)
				continue
			}
			fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
			slots = append(slots, slot{conn: c})
		}
		for _, c := range write {
			fd, err := pollDescriptor(c)
			if err != nil {
				return nil, nil, err
			}
			if fd < 0 {
				writable = append(writable, c)
				continue
			}
			fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLOUT})
			slots = append(slots, slot{conn: c, write: true})
		}

		if len(readable) > 0 || len(writable) > 0 {
			return readable, writable, nil
		}

		n, err := unix.Poll(fds, int(interval.Milliseconds()))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, nil, fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			continue
		}

		for i, pfd := range fds {
			revents := pfd.Revents
			if revents == 0 {
				continue
			}
			if slots[i].write {
				if revents&(unix.POLLOUT|unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
					writable = append(writable, slots[i].conn)
				}
			} else {
				if revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
					readable = append(readable, slots[i].conn)
				}
			}
		}

		if len(readable) > 0 || len(writable) > 0 {
			return readable, writable, nil
		}
	}
}

// pollDescriptor extracts the poll(2) descriptor from a connection.
// A closed connection yields -1; a non-socket connection is an error.
func pollDescriptor(c Conn) (int, error) {
	uc, ok := c.(*UnixConn)
	if !ok {
		return -1, fmt.Errorf("%w: %T", ErrNotPollable, c)
	}
	fd, ok := uc.descriptor()
	if !ok {
		return -1, nil
	}
	return fd, nil
}
