package discovery

import (
	"fmt"
	"path/filepath"
)

// BrokerSocketPath derives the broker-side socket path for a slot. The
// template carries a single integer verb (for example "mosquitto_%d.sock")
// and is joined onto the broker socket directory, which is authoritative.
//
// The function is pure and does not check that the path exists; a missing
// broker socket surfaces as a connect failure in the worker's retry loop.
func BrokerSocketPath(dir, template string, slotID int) string {
	return filepath.Join(dir, fmt.Sprintf(template, slotID))
}
