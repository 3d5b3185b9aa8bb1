package tunnel

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/TristanIsrael/mqtt-tunnels/internal/transport"
)

// defaultBackoff is the fixed delay between tunnel attempts.
const defaultBackoff = time.Second

// State is the current phase of a worker's lifecycle.
type State string

const (
	// StateWaitingForClient: connecting to the client socket and waiting
	// for its first byte of readiness signal.
	StateWaitingForClient State = "waiting_for_client"

	// StateConnectingBroker: connecting to the allocated broker socket.
	StateConnectingBroker State = "connecting_broker"

	// StateRelaying: forwarding bytes between both sides.
	StateRelaying State = "relaying"

	// StateTearDown: closing both sides before the backoff sleep.
	StateTearDown State = "tear_down"
)

// Session close reasons beyond the relay's own, recorded in history.
const (
	reasonBrokerUnavailable = "broker_unavailable"
)

// Logger is the narrow logging interface the worker needs.
// Compatible with logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SessionRecord describes one completed (or failed) tunnel session.
type SessionRecord struct {
	ClientSocketPath    string
	SlotID              int
	BrokerSocketPath    string
	StartedAt           time.Time
	EndedAt             time.Time
	Reason              string
	BytesClientToBroker uint64
	BytesBrokerToClient uint64
}

// Recorder persists session records. Implemented by the session history
// repository; optional.
type Recorder interface {
	RecordSession(ctx context.Context, rec SessionRecord) error
}

// Telemetry receives session metrics. Implemented by the InfluxDB telemetry
// adapter; optional.
type Telemetry interface {
	SessionClosed(slotID int, reason string, clientToBroker, brokerToClient uint64, duration time.Duration)
}

// WorkerStats holds a worker's operational counters.
type WorkerStats struct {
	Sessions            uint64
	BytesClientToBroker uint64
	BytesBrokerToClient uint64
}

// WorkerConfig configures one tunnel worker.
type WorkerConfig struct {
	// Spec identifies the tunnel. Required.
	Spec Spec

	// Dialer opens both sides of the tunnel. Required.
	Dialer transport.Dialer

	// Waiter is the readiness multiplexer shared with the relay. Required.
	Waiter transport.Waiter

	// Backoff is the fixed sleep after every teardown. Zero means one second.
	Backoff time.Duration

	// ChunkSize is the relay read chunk size. Zero means the relay default.
	ChunkSize int

	// Logger is optional; a nil logger disables worker logging.
	Logger Logger

	// Recorder is optional session history persistence.
	Recorder Recorder

	// Telemetry is optional session metrics.
	Telemetry Telemetry
}

// Worker owns one client/broker socket pair and keeps its tunnel alive.
//
// Run drives an infinite cycle: connect to the client socket, wait for its
// first byte, connect to the broker socket, relay until the session ends,
// tear down, back off, repeat. No failure is fatal; the worker only returns
// when its context is cancelled.
type Worker struct {
	cfg WorkerConfig

	state atomic.Value // State

	sessions            atomic.Uint64
	bytesClientToBroker atomic.Uint64
	bytesBrokerToClient atomic.Uint64
}

// NewWorker validates the configuration and applies defaults.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Dialer == nil {
		return nil, ErrMissingDialer
	}
	if cfg.Waiter == nil {
		return nil, ErrMissingWaiter
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}

	w := &Worker{cfg: cfg}
	w.state.Store(StateWaitingForClient)
	return w, nil
}

// Run blocks until ctx is cancelled, re-creating the tunnel session as many
// times as necessary to stay alive.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		w.session(ctx)

		if !sleepContext(ctx, w.cfg.Backoff) {
			return
		}
	}
}

// State returns the worker's current lifecycle phase.
func (w *Worker) State() State {
	return w.state.Load().(State)
}

// Stats returns the worker's operational counters.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Sessions:            w.sessions.Load(),
		BytesClientToBroker: w.bytesClientToBroker.Load(),
		BytesBrokerToClient: w.bytesBrokerToClient.Load(),
	}
}

// session runs one connect → relay → teardown attempt. Every exit path
// leaves both sockets closed.
func (w *Worker) session(ctx context.Context) {
	spec := w.cfg.Spec

	w.setState(StateWaitingForClient)
	client, err := w.cfg.Dialer.Dial(ctx, spec.ClientSocketPath)
	if err != nil {
		if ctx.Err() == nil {
			w.logWarn("client socket connect failed", "error", err)
		}
		return
	}

	w.logDebug("connected to client socket, waiting for first byte")
	if err := w.waitForClientData(ctx, client); err != nil {
		client.Close()
		if ctx.Err() == nil {
			w.logWarn("waiting for client data failed", "error", err)
		}
		return
	}
	w.logDebug("client sent its first byte")

	w.setState(StateConnectingBroker)
	started := time.Now()
	broker, err := w.cfg.Dialer.Dial(ctx, spec.BrokerSocketPath)
	if err != nil {
		client.Close()
		if ctx.Err() == nil {
			w.logWarn("broker socket connect failed", "error", err)
			w.record(ctx, started, reasonBrokerUnavailable, 0, 0)
		}
		return
	}

	w.setState(StateRelaying)
	w.sessions.Add(1)
	w.logInfo("relaying")

	res := Relay(ctx, client, broker, RelayConfig{
		Waiter:    w.cfg.Waiter,
		ChunkSize: w.cfg.ChunkSize,
		Trace:     w.trace(),
	})

	w.setState(StateTearDown)
	client.Close()
	broker.Close()

	w.bytesClientToBroker.Add(res.BytesAToB)
	w.bytesBrokerToClient.Add(res.BytesBToA)

	switch res.Reason {
	case ReasonPeerClosed:
		w.logInfo("session ended, peer closed",
			"client_to_broker_bytes", res.BytesAToB,
			"broker_to_client_bytes", res.BytesBToA,
		)
	case ReasonCancelled:
		w.logInfo("session cancelled")
	default:
		w.logWarn("session failed", "error", res.Err)
	}

	if res.Reason != ReasonCancelled {
		w.record(ctx, started, string(res.Reason), res.BytesAToB, res.BytesBToA)
		if w.cfg.Telemetry != nil {
			w.cfg.Telemetry.SessionClosed(spec.SlotID, string(res.Reason),
				res.BytesAToB, res.BytesBToA, time.Since(started))
		}
	}
}

// waitForClientData blocks until the client socket is readable, meaning the
// remote has sent at least one byte. The byte is left unread for the relay.
// This keeps the tunnel from forwarding on a connection the remote opened
// but never intends to use.
func (w *Worker) waitForClientData(ctx context.Context, client transport.Conn) error {
	for {
		readable, _, err := w.cfg.Waiter.Wait(ctx, []transport.Conn{client}, nil)
		if err != nil {
			return err
		}
		if hasConn(readable, client) {
			return nil
		}
	}
}

func (w *Worker) record(ctx context.Context, started time.Time, reason string, c2b, b2c uint64) {
	if w.cfg.Recorder == nil {
		return
	}

	rec := SessionRecord{
		ClientSocketPath:    w.cfg.Spec.ClientSocketPath,
		SlotID:              w.cfg.Spec.SlotID,
		BrokerSocketPath:    w.cfg.Spec.BrokerSocketPath,
		StartedAt:           started,
		EndedAt:             time.Now(),
		Reason:              reason,
		BytesClientToBroker: c2b,
		BytesBrokerToClient: b2c,
	}
	if err := w.cfg.Recorder.RecordSession(ctx, rec); err != nil {
		w.logError("recording session failed", "error", err)
	}
}

// trace returns a relay trace callback when debug logging is active.
func (w *Worker) trace() func(direction string, data []byte) {
	type debugChecker interface{ DebugEnabled() bool }

	if w.cfg.Logger == nil {
		return nil
	}
	if dc, ok := w.cfg.Logger.(debugChecker); ok && !dc.DebugEnabled() {
		return nil
	}

	return func(direction string, data []byte) {
		w.cfg.Logger.Debug("relay chunk",
			"direction", direction,
			"bytes", len(data),
			"dump", Hexdump(data),
		)
	}
}

func (w *Worker) setState(s State) {
	w.state.Store(s)
}

func (w *Worker) logDebug(msg string, args ...any) {
	if w.cfg.Logger != nil {
		w.cfg.Logger.Debug(msg, args...)
	}
}

func (w *Worker) logInfo(msg string, args ...any) {
	if w.cfg.Logger != nil {
		w.cfg.Logger.Info(msg, args...)
	}
}

func (w *Worker) logWarn(msg string, args ...any) {
	if w.cfg.Logger != nil {
		w.cfg.Logger.Warn(msg, args...)
	}
}

func (w *Worker) logError(msg string, args ...any) {
	if w.cfg.Logger != nil {
		w.cfg.Logger.Error(msg, args...)
	}
}

// sleepContext sleeps for d or until ctx is done. It reports false when the
// context ended the sleep.
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
