package discovery

import (
	"context"
	"os"
	"time"
)

// WaitForBrokerSockets blocks until the broker socket directory contains at
// least one entry, polling on the given interval. Discovery of messaging
// sockets must not start before a broker is listening.
//
// It returns ctx.Err() when the context ends first.
func WaitForBrokerSockets(ctx context.Context, dir string, interval time.Duration, log Logger) error {
	if interval <= 0 {
		interval = time.Second
	}

	announced := false
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		entries, err := os.ReadDir(dir)
		if err == nil && len(entries) > 0 {
			if log != nil {
				log.Info("broker sockets present", "dir", dir, "count", len(entries))
			}
			return nil
		}

		if !announced && log != nil {
			log.Info("waiting for broker sockets", "dir", dir)
			announced = true
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
