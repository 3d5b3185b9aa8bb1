// mqtt-tunnels - Unix socket tunnel daemon
//
// mqtt-tunnels bridges short-lived messaging client sockets to a pool of
// MQTT broker listener sockets. It watches a messaging directory for new
// client socket files, allocates a broker slot for each one and keeps a
// self-healing byte relay running between the pair until shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/TristanIsrael/mqtt-tunnels/migrations"

	"github.com/TristanIsrael/mqtt-tunnels/internal/discovery"
	"github.com/TristanIsrael/mqtt-tunnels/internal/infrastructure/config"
	"github.com/TristanIsrael/mqtt-tunnels/internal/infrastructure/database"
	"github.com/TristanIsrael/mqtt-tunnels/internal/infrastructure/influxdb"
	"github.com/TristanIsrael/mqtt-tunnels/internal/infrastructure/logging"
	"github.com/TristanIsrael/mqtt-tunnels/internal/session"
	"github.com/TristanIsrael/mqtt-tunnels/internal/transport"
	"github.com/TristanIsrael/mqtt-tunnels/internal/tunnel"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context, args []string) error {
	// Use default logger until config is loaded; its default attrs carry
	// the version field.
	log := logging.Default()
	log.Info("starting mqtt-tunnels",
		"commit", commit,
		"build_date", date,
	)

	flags := flag.NewFlagSet("mqtt-tunnels", flag.ContinueOnError)
	configFlag := flags.String("config", "", "configuration file path")
	brokerPath := flags.String("broker-path", "", "broker sockets directory")
	messagingPath := flags.String("messaging-path", "", "messaging sockets directory")
	messagingFilter := flags.String("messaging-filter", "", "messaging socket filename filter (eg app_*.sock)")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

	// Load configuration. A missing file at the implicit default path is
	// fine; the daemon then runs on defaults, env and flags. An explicitly
	// requested file must exist.
	configPath, explicit := getConfigPath(*configFlag)
	var (
		cfg *config.Config
		err error
	)
	if explicit {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadOrDefaults(configPath)
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Command-line flags win over file and environment values
	if *brokerPath != "" {
		cfg.Tunnels.BrokerSocketsPath = *brokerPath
	}
	if *messagingPath != "" {
		cfg.Tunnels.MessagingSocketsPath = *messagingPath
	}
	if *messagingFilter != "" {
		cfg.Tunnels.MessagingFilter = *messagingFilter
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open session history database (optional)
	var repo *session.SQLiteRepository
	var db *database.DB
	if cfg.History.Enabled {
		db, err = database.Open(database.Config{
			Path:        cfg.History.Path,
			WALMode:     cfg.History.WALMode,
			BusyTimeout: cfg.History.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening history database: %w", err)
		}
		defer func() {
			log.Info("closing history database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing history database", "error", closeErr)
			}
		}()
		log.Info("history database connected", "path", cfg.History.Path)

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("history migrations complete")

		repo = session.NewSQLiteRepository(db.DB)
	} else {
		log.Info("session history disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.Telemetry.Enabled {
		influxClient, err = influxdb.Connect(cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.Telemetry.URL,
			"org", cfg.Telemetry.Org,
			"bucket", cfg.Telemetry.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("telemetry disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// The broker pool is provisioned out of band; hold startup until at
	// least one broker listener socket exists.
	if err := discovery.WaitForBrokerSockets(ctx, cfg.Tunnels.BrokerSocketsPath, cfg.GetPollInterval(), log); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("waiting for broker sockets: %w", err)
	}

	dialer := transport.UnixDialer{}
	waiter := transport.PollWaiter{}

	// Each discovered client socket gets its own worker goroutine. Workers
	// only return on context cancellation, so the WaitGroup drains at
	// shutdown.
	var wg sync.WaitGroup
	spawn := func(spec tunnel.Spec) {
		workerCfg := tunnel.WorkerConfig{
			Spec:      spec,
			Dialer:    dialer,
			Waiter:    waiter,
			Backoff:   cfg.GetRetryBackoff(),
			ChunkSize: cfg.Tunnels.BufferSize,
			Logger:    log,
		}
		if repo != nil {
			workerCfg.Recorder = repo
		}
		if influxClient != nil {
			workerCfg.Telemetry = influxClient
		}

		worker, workerErr := tunnel.NewWorker(workerCfg)
		if workerErr != nil {
			log.Error("creating tunnel worker", "tunnel", spec.String(), "error", workerErr)
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}

	watcherCfg := discovery.WatcherConfig{
		Directory:      cfg.Tunnels.MessagingSocketsPath,
		Filter:         cfg.Tunnels.MessagingFilter,
		BrokerDir:      cfg.Tunnels.BrokerSocketsPath,
		BrokerTemplate: cfg.Tunnels.BrokerSocketTemplate,
		PollInterval:   cfg.GetPollInterval(),
		MaxTunnels:     cfg.Tunnels.MaxTunnels,
		Mode:           cfg.Tunnels.DiscoveryMode,
		Spawn:          spawn,
		Logger:         log,
	}
	if repo != nil {
		watcherCfg.Rejections = repo
	}

	watcher, err := discovery.NewWatcher(watcherCfg)
	if err != nil {
		return fmt.Errorf("creating discovery watcher: %w", err)
	}

	log.Info("initialisation complete, watching for client sockets",
		"messaging_dir", cfg.Tunnels.MessagingSocketsPath,
		"broker_dir", cfg.Tunnels.BrokerSocketsPath,
	)

	// Blocks until the shutdown signal cancels the context
	watchErr := watcher.Run(ctx)

	log.Info("shutdown signal received, waiting for tunnels to stop")
	wg.Wait()

	stats := watcher.Stats()
	log.Info("mqtt-tunnels stopped",
		"discovered", stats.Discovered,
		"spawned", stats.Spawned,
		"rejected", stats.Rejected,
	)

	if watchErr != nil && !errors.Is(watchErr, context.Canceled) {
		return fmt.Errorf("discovery: %w", watchErr)
	}
	return nil
}

// getConfigPath returns the configuration file path and whether it was
// requested explicitly rather than implied by the default.
// Precedence: -config flag, MQTTTUNNELS_CONFIG environment variable, default.
func getConfigPath(flagValue string) (string, bool) {
	if flagValue != "" {
		return flagValue, true
	}
	if path := os.Getenv("MQTTTUNNELS_CONFIG"); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// healthCheck verifies the optional infrastructure connections are healthy.
// Either client may be nil when its subsystem is disabled.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
