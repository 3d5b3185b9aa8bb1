package config

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the tunnel daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Tunnels   TunnelsConfig   `yaml:"tunnels"`
	History   HistoryConfig   `yaml:"history"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServiceConfig contains service identification settings.
type ServiceConfig struct {
	ID string `yaml:"id"`
}

// TunnelsConfig contains the tunneling subsystem settings.
type TunnelsConfig struct {
	// BrokerSocketsPath is the directory containing the broker-side Unix sockets.
	// This directory is authoritative: per-slot socket paths are derived by joining
	// it with BrokerSocketTemplate.
	BrokerSocketsPath string `yaml:"broker_sockets_path"`

	// MessagingSocketsPath is the directory watched for client socket files.
	MessagingSocketsPath string `yaml:"messaging_sockets_path"`

	// MessagingFilter is a glob pattern applied to file names in the messaging
	// directory (path.Match syntax). Default: "*".
	MessagingFilter string `yaml:"messaging_filter"`

	// BrokerSocketTemplate is the per-slot socket file name, with a single %d
	// verb for the slot number. Default: "mosquitto_%d.sock".
	BrokerSocketTemplate string `yaml:"broker_socket_template"`

	// MaxTunnels caps how many tunnels may be created in one run.
	// 0 means unlimited: slots keep being allocated and broker connects
	// simply retry forever when the pool is exhausted.
	MaxTunnels int `yaml:"max_tunnels"`

	// PollInterval is the discovery poll interval in seconds. Default: 1.
	PollInterval int `yaml:"poll_interval"`

	// RetryBackoff is the per-tunnel reconnect backoff in seconds. Default: 1.
	RetryBackoff int `yaml:"retry_backoff"`

	// BufferSize is the relay read chunk size in bytes. Default: 4096.
	BufferSize int `yaml:"buffer_size"`

	// DiscoveryMode selects how new client sockets are detected:
	// "poll" (directory listing on a fixed interval) or "notify"
	// (filesystem notification with a polling safety net). Default: "poll".
	DiscoveryMode string `yaml:"discovery_mode"`
}

// HistoryConfig contains the SQLite session history settings.
type HistoryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// TelemetryConfig contains InfluxDB telemetry settings.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MQTTTUNNELS_SECTION_KEY
// For example: MQTTTUNNELS_TUNNELS_BROKER_PATH, MQTTTUNNELS_TELEMETRY_TOKEN
func Load(path string) (*Config, error) {
	return load(path, false)
}

// LoadOrDefaults behaves like Load except that a missing file is not an
// error: defaults plus environment overrides are used instead. Intended for
// the implicit default config path, where running without a file at all is
// normal (the daemon can be driven entirely by command-line flags).
func LoadOrDefaults(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, optional bool) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case optional && os.IsNotExist(err):
		// Defaults only.
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID: "mqtt-tunnels",
		},
		Tunnels: TunnelsConfig{
			BrokerSocketsPath:    "/var/run/mosquitto",
			MessagingSocketsPath: "/var/run/messaging",
			MessagingFilter:      "*",
			BrokerSocketTemplate: "mosquitto_%d.sock",
			MaxTunnels:           0,
			PollInterval:         1,
			RetryBackoff:         1,
			BufferSize:           4096,
			DiscoveryMode:        "poll",
		},
		History: HistoryConfig{
			Enabled:     false,
			Path:        "./data/mqtt-tunnels.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MQTTTUNNELS_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Tunnels
	if v := os.Getenv("MQTTTUNNELS_TUNNELS_BROKER_PATH"); v != "" {
		cfg.Tunnels.BrokerSocketsPath = v
	}
	if v := os.Getenv("MQTTTUNNELS_TUNNELS_MESSAGING_PATH"); v != "" {
		cfg.Tunnels.MessagingSocketsPath = v
	}
	if v := os.Getenv("MQTTTUNNELS_TUNNELS_MESSAGING_FILTER"); v != "" {
		cfg.Tunnels.MessagingFilter = v
	}
	if v := os.Getenv("MQTTTUNNELS_TUNNELS_MAX_TUNNELS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tunnels.MaxTunnels = n
		}
	}

	// History
	if v := os.Getenv("MQTTTUNNELS_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}

	// Telemetry
	if v := os.Getenv("MQTTTUNNELS_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}

	// Logging
	if v := os.Getenv("MQTTTUNNELS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	if c.Tunnels.BrokerSocketsPath == "" {
		errs = append(errs, "tunnels.broker_sockets_path is required")
	}
	if c.Tunnels.MessagingSocketsPath == "" {
		errs = append(errs, "tunnels.messaging_sockets_path is required")
	}

	// The filter must be a valid path.Match pattern. Matching against a probe
	// name surfaces pattern syntax errors only.
	if _, err := path.Match(c.Tunnels.MessagingFilter, "probe"); err != nil {
		errs = append(errs, fmt.Sprintf("tunnels.messaging_filter is not a valid pattern: %v", err))
	}

	// The template must carry exactly one %d verb and nothing else.
	tmpl := c.Tunnels.BrokerSocketTemplate
	if strings.Count(tmpl, "%d") != 1 || strings.Count(strings.ReplaceAll(tmpl, "%d", ""), "%") != 0 {
		errs = append(errs, "tunnels.broker_socket_template must contain exactly one %d verb")
	}

	if c.Tunnels.MaxTunnels < 0 {
		errs = append(errs, "tunnels.max_tunnels must not be negative")
	}
	if c.Tunnels.PollInterval < 1 {
		errs = append(errs, "tunnels.poll_interval must be at least 1 second")
	}
	if c.Tunnels.RetryBackoff < 1 {
		errs = append(errs, "tunnels.retry_backoff must be at least 1 second")
	}
	if c.Tunnels.BufferSize < 1 {
		errs = append(errs, "tunnels.buffer_size must be positive")
	}

	switch c.Tunnels.DiscoveryMode {
	case "poll", "notify":
	default:
		errs = append(errs, `tunnels.discovery_mode must be "poll" or "notify"`)
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.URL == "" {
			errs = append(errs, "telemetry.url is required when telemetry is enabled")
		}
		if c.Telemetry.Bucket == "" {
			errs = append(errs, "telemetry.bucket is required when telemetry is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetPollInterval returns the discovery poll interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Tunnels.PollInterval) * time.Second
}

// GetRetryBackoff returns the per-tunnel retry backoff as a Duration.
func (c *Config) GetRetryBackoff() time.Duration {
	return time.Duration(c.Tunnels.RetryBackoff) * time.Second
}
