// Package config loads enginekit configuration from TOML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/discoverlab/enginekit/channel"
	"github.com/discoverlab/enginekit/logging"
)

// Config holds the runtime configuration for an enginekit session.
type Config struct {
	// Channel selects and parameterizes the transport realization.
	Channel channel.Config `toml:"channel"`

	// DefaultTimeoutSeconds bounds each send unless the caller overrides
	// it (0 = the built-in 10s default).
	DefaultTimeoutSeconds int `toml:"default_timeout_seconds"`

	// StorePath is the bbolt database file for the discovery managers.
	// Empty selects the in-memory store.
	StorePath string `toml:"store_path"`

	// LogLevel is the minimum console log level.
	LogLevel logging.Level `toml:"log_level"`

	// FeedPageSize is the default feed batch size.
	FeedPageSize int `toml:"feed_page_size"`

	// SearchPageSize is the default search page size.
	SearchPageSize int `toml:"search_page_size"`

	// Telemetry configures span export for the session. Disabled, the
	// boundary spans stay noop.
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// TelemetryConfig is the TOML surface for the OTLP trace exporter.
type TelemetryConfig struct {
	// Enabled turns span export on.
	Enabled bool `toml:"enabled"`

	// Endpoint is the collector address, e.g. "localhost:4317".
	Endpoint string `toml:"endpoint"`

	// Protocol is "grpc" (default) or "http".
	Protocol string `toml:"protocol"`

	// Insecure disables TLS toward the collector.
	Insecure bool `toml:"insecure"`
}

// Default returns the configuration used when no file is present: memory
// platform, 10s timeout, in-memory store.
func Default() Config {
	return Config{
		Channel:               channel.DefaultConfig(),
		DefaultTimeoutSeconds: 10,
		LogLevel:              logging.LevelInfo,
		FeedPageSize:          10,
		SearchPageSize:        10,
	}
}

// Timeout returns the default send deadline as a duration.
func (c *Config) Timeout() time.Duration {
	if c.DefaultTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.DefaultTimeoutSeconds) * time.Second
}

// StandardPaths returns the config file locations in order of priority.
func StandardPaths() []string {
	paths := []string{"enginekit.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "enginekit", "config.toml"))
	}
	return paths
}

// Load loads configuration from the first available standard location,
// falling back to Default when no file is found.
func Load() (Config, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadFile(path)
			return cfg, path, err
		}
	}
	return Default(), "", nil
}

// LoadFile loads configuration from a specific path, layered over Default.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	switch c.Channel.Platform {
	case channel.PlatformMemory, channel.PlatformProcess, channel.PlatformNATS, "":
	default:
		return fmt.Errorf("unknown platform %q", c.Channel.Platform)
	}
	if c.Channel.Platform == channel.PlatformProcess && len(c.Channel.WorkerCommand) == 0 {
		return fmt.Errorf("process platform requires worker_command")
	}
	if c.Channel.Platform == channel.PlatformNATS && c.Channel.NATS.Subject == "" {
		return fmt.Errorf("nats platform requires a subject")
	}
	if c.DefaultTimeoutSeconds < 0 {
		return fmt.Errorf("default_timeout_seconds must not be negative")
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("unknown telemetry protocol %q", c.Telemetry.Protocol)
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry requires an endpoint")
	}
	return nil
}
