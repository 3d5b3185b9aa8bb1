package tunnel

import "fmt"

// Spec identifies one tunnel: the client socket it serves and the broker
// slot it consumes. A Spec is immutable once created; it is built at
// discovery time and lives for the lifetime of its worker.
type Spec struct {
	// ClientSocketPath is the messaging client socket discovered on disk.
	ClientSocketPath string

	// SlotID is the discovery sequence number. It is assigned exactly once
	// per discovered client socket and never reused within a run.
	SlotID int

	// BrokerSocketPath is the broker-side socket derived from SlotID.
	BrokerSocketPath string
}

func (s Spec) String() string {
	return fmt.Sprintf("slot %d: %s <-> %s", s.SlotID, s.ClientSocketPath, s.BrokerSocketPath)
}
