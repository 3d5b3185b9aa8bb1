// Package discovery watches the messaging socket directory and turns every
// newly appeared client socket into a running tunnel.
//
// The watcher owns the discovery set and the slot counter exclusively. Names
// are added to the set the first time they are seen and never removed, so a
// deleted and recreated socket with the same name is never tunnelled twice.
// Slot identifiers increase monotonically across the life of the process.
//
// Two discovery modes exist. Poll mode lists the directory on a fixed
// interval. Notify mode reacts to filesystem events and keeps the interval
// poll as a safety net; when the event watch cannot be established the
// watcher degrades to poll mode on its own.
package discovery
