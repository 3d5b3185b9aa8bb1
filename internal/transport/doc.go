// Package transport provides the byte-stream endpoints the tunnel core runs on.
//
// Every transport kind implements the same small capability set: dial,
// non-blocking receive, non-blocking send, close. Readiness is observed
// through a Waiter, the multiplexer the relay engine blocks on. The tunnel
// core composes these capabilities; it never depends on a concrete transport.
//
// Two implementations are provided:
//
//   - Unix domain stream sockets (UnixDialer, PollWaiter), built on raw file
//     descriptors and poll(2). This is the transport the tunnel daemon uses.
//   - Serial lines (SerialDialer), built on go.bug.st/serial. Serial endpoints
//     additionally satisfy net.Conn so they can be handed to an MQTT client
//     as a custom connection.
//
// Would-block conditions are reported as ErrWouldBlock and are never fatal;
// callers retry after the next readiness wait. A peer close is reported as
// io.EOF from Receive.
package transport
