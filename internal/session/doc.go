// Package session persists tunnel session history.
//
// Every completed or failed tunnel session becomes one row: which client
// socket, which slot, when it ran, why it ended, how many bytes moved in
// each direction. Capacity rejections are kept in a separate table so an
// operator can see which client sockets never got a tunnel.
//
// History is best effort. The tunnel worker logs a failed write and moves
// on; it never blocks or aborts relaying because the store misbehaved.
package session
