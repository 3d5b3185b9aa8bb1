package discovery

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/TristanIsrael/mqtt-tunnels/internal/tunnel"
)

// Discovery modes. Poll lists the directory on a fixed interval; notify
// reacts to filesystem create events with the interval poll kept as a
// safety net.
const (
	ModePoll   = "poll"
	ModeNotify = "notify"
)

const defaultPollInterval = time.Second

// Logger is the narrow logging interface the watcher needs.
// Compatible with logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Spawn starts a tunnel worker for the given spec. The watcher fires and
// forgets; worker supervision is the caller's concern.
type Spawn func(spec tunnel.Spec)

// RejectionRecorder persists capacity rejections. Optional.
type RejectionRecorder interface {
	RecordRejection(ctx context.Context, socketName string) error
}

// WatcherStats holds the watcher's operational counters.
type WatcherStats struct {
	Discovered uint64
	Spawned    uint64
	Rejected   uint64
}

// WatcherConfig configures the discovery watcher.
type WatcherConfig struct {
	// Directory is the messaging socket directory to watch. Required.
	Directory string

	// Filter is a filename match pattern. Empty means match everything.
	Filter string

	// BrokerDir and BrokerTemplate derive each slot's broker socket path.
	// BrokerDir is required.
	BrokerDir      string
	BrokerTemplate string

	// PollInterval is the listing interval. Zero means one second.
	PollInterval time.Duration

	// MaxTunnels caps how many workers the watcher will ever spawn.
	// Zero means unlimited.
	MaxTunnels int

	// Mode selects poll or notify discovery. Empty means poll.
	Mode string

	// Spawn starts a worker for a new tunnel spec. Required.
	Spawn Spawn

	// Rejections is optional persistence for capacity rejections.
	Rejections RejectionRecorder

	// Logger is optional; a nil logger disables watcher logging.
	Logger Logger
}

// Watcher discovers client sockets and allocates broker slots.
//
// The discovery set and slot counter are touched only from Run's goroutine.
type Watcher struct {
	cfg WatcherConfig

	seen     map[string]struct{}
	nextSlot int

	discovered atomic.Uint64
	spawned    atomic.Uint64
	rejected   atomic.Uint64
}

// NewWatcher validates the configuration and applies defaults.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Spawn == nil {
		return nil, ErrMissingSpawn
	}
	if cfg.Directory == "" {
		return nil, ErrMissingDirectory
	}
	if cfg.BrokerDir == "" {
		return nil, ErrMissingBrokerDirectory
	}
	if cfg.Filter == "" {
		cfg.Filter = "*"
	}
	if cfg.BrokerTemplate == "" {
		cfg.BrokerTemplate = "mosquitto_%d.sock"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Mode == "" {
		cfg.Mode = ModePoll
	}

	return &Watcher{
		cfg:      cfg,
		seen:     make(map[string]struct{}),
		nextSlot: 1,
	}, nil
}

// Stats returns the watcher's operational counters.
func (w *Watcher) Stats() WatcherStats {
	return WatcherStats{
		Discovered: w.discovered.Load(),
		Spawned:    w.spawned.Load(),
		Rejected:   w.rejected.Load(),
	}
}

// Run blocks until ctx is cancelled, spawning a worker for every new client
// socket that appears in the watched directory.
func (w *Watcher) Run(ctx context.Context) error {
	w.logInfo("discovery started",
		"dir", w.cfg.Directory,
		"filter", w.cfg.Filter,
		"mode", w.cfg.Mode,
	)
	if w.cfg.MaxTunnels == 0 {
		w.logWarn("tunnel capacity is unlimited")
	}

	if w.cfg.Mode == ModeNotify {
		if err := w.runNotify(ctx); err == nil || ctx.Err() != nil {
			return ctx.Err()
		}
		w.logWarn("event watch unavailable, falling back to polling")
	}

	return w.runPoll(ctx)
}

func (w *Watcher) runPoll(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		w.scan(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runNotify drives discovery from filesystem events, retaining the interval
// poll so a missed event can only delay a tunnel, never lose it. A non-nil
// return other than ctx.Err() means the event watch could not be
// established and the caller should poll instead.
func (w *Watcher) runNotify(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.cfg.Directory); err != nil {
		return err
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		w.scan(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case ev, ok := <-fw.Events:
			if !ok {
				return ctx.Err()
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return ctx.Err()
			}
			w.logWarn("event watch error", "error", err)
		}
	}
}

// scan performs one discovery pass: list, diff against the seen set, spawn.
// Listing failures are treated as an empty directory and retried next pass.
func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.Directory)
	if err != nil {
		w.logDebug("listing messaging sockets failed", "error", err)
		return
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matched, err := path.Match(w.cfg.Filter, entry.Name())
		if err != nil || !matched {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if _, ok := w.seen[name]; ok {
			continue
		}
		w.seen[name] = struct{}{}
		w.discovered.Add(1)
		w.admit(ctx, name)
	}
}

// admit allocates a slot for a newly discovered socket, or rejects it when
// the capacity cap is reached. Either way the name stays in the seen set.
func (w *Watcher) admit(ctx context.Context, name string) {
	if w.cfg.MaxTunnels > 0 && int(w.spawned.Load()) >= w.cfg.MaxTunnels {
		w.rejected.Add(1)
		w.logWarn("tunnel capacity reached, rejecting client socket",
			"socket", name,
			"max_tunnels", w.cfg.MaxTunnels,
		)
		if w.cfg.Rejections != nil {
			if err := w.cfg.Rejections.RecordRejection(ctx, name); err != nil {
				w.logError("recording rejection failed", "error", err)
			}
		}
		return
	}

	slot := w.nextSlot
	w.nextSlot++

	spec := tunnel.Spec{
		ClientSocketPath: filepath.Join(w.cfg.Directory, name),
		SlotID:           slot,
		BrokerSocketPath: BrokerSocketPath(w.cfg.BrokerDir, w.cfg.BrokerTemplate, slot),
	}

	w.spawned.Add(1)
	w.logInfo("new client socket discovered",
		"socket", name,
		"slot", slot,
		"broker_socket", spec.BrokerSocketPath,
	)

	// Unlimited capacity: slots past the broker pool size still get a
	// worker, its broker connects just retry until a listener appears.
	if w.cfg.MaxTunnels == 0 {
		if entries, err := os.ReadDir(w.cfg.BrokerDir); err == nil && slot > len(entries) {
			w.logWarn("slot exceeds broker socket count",
				"slot", slot,
				"broker_sockets", len(entries),
			)
		}
	}

	w.cfg.Spawn(spec)
}

func (w *Watcher) logDebug(msg string, args ...any) {
	if w.cfg.Logger != nil {
		w.cfg.Logger.Debug(msg, args...)
	}
}

func (w *Watcher) logInfo(msg string, args ...any) {
	if w.cfg.Logger != nil {
		w.cfg.Logger.Info(msg, args...)
	}
}

func (w *Watcher) logWarn(msg string, args ...any) {
	if w.cfg.Logger != nil {
		w.cfg.Logger.Warn(msg, args...)
	}
}

func (w *Watcher) logError(msg string, args ...any) {
	if w.cfg.Logger != nil {
		w.cfg.Logger.Error(msg, args...)
	}
}
