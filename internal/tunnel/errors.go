package tunnel

import "errors"

// Domain errors for the tunnel package.
var (
	// ErrMissingDialer is returned when a worker is created without a dialer.
	ErrMissingDialer = errors.New("tunnel: dialer is required")

	// ErrMissingWaiter is returned when a worker or relay is created without
	// a readiness waiter.
	ErrMissingWaiter = errors.New("tunnel: waiter is required")
)
