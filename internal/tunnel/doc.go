// Package tunnel implements the bidirectional socket tunnel core.
//
// A tunnel connects one messaging client socket to one broker socket and
// forwards bytes in both directions without interpreting them. The package
// has two layers:
//
//   - Relay: the event-driven byte forwarder between two already-connected
//     endpoints. It multiplexes readiness over both sockets, buffers each
//     direction independently, and preserves byte order exactly under
//     partial reads and partial writes.
//   - Worker: the per-tunnel lifecycle. It drives an infinite self-healing
//     cycle of connect → relay → teardown → backoff, re-creating the session
//     after every failure. A worker only exits when its context is cancelled.
//
// Payloads are opaque: any framing (such as the MQTT protocol running over
// the tunnel) is the responsibility of the endpoints.
package tunnel
