// Package config holds the configuration types and loading logic for the
// spoolq CLI and for programs that configure queues from files or option
// maps.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/snehjoshi/spoolq/internal/envelope"
	"github.com/snehjoshi/spoolq/internal/types"
)

// Config is the root configuration.
type Config struct {
	// Dir is the parent of queue directories for queues that set none.
	// Empty means a queue's directory defaults to its name.
	Dir     string         `yaml:"dir"`
	Log     LogConfig      `yaml:"log"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Poll    PollConfig     `yaml:"poll"`
	Queues  []QueueOptions `yaml:"queues"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// PollConfig tunes consumer.Poller.
type PollConfig struct {
	// Interval is the idle wait between empty pulls.
	Interval time.Duration `yaml:"interval"`
	// Rate caps pulls per second; Burst allows short spikes above it.
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
	// UseFsnotify wakes the poller early when a file is created.
	UseFsnotify bool `yaml:"use_fsnotify"`
	// Journal is the path of the redelivery journal. Empty disables it.
	Journal string `yaml:"journal"`
}

// Default returns a Config populated with safe, sensible defaults.
// It is the canonical source of truth for default values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Poll: PollConfig{
			Interval:    500 * time.Millisecond,
			Rate:        1000,
			Burst:       100,
			UseFsnotify: true,
		},
	}
}

// Load reads a YAML config file at path and overlays it on top of Default().
// If the file does not exist the default config is returned without error.
// Unknown keys anywhere in the file are rejected.
//
// After loading the file, environment variables are applied as overrides:
//
//	SPOOLQ_DIR           sets dir
//	SPOOLQ_LOG_LEVEL     sets log.level
//	SPOOLQ_METRICS_ADDR  sets metrics.addr and enables metrics
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &types.Error{Kind: types.KindConfig, Path: path, Err: err}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays environment variable overrides onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SPOOLQ_DIR"); v != "" {
		cfg.Dir = v
	}
	if v := os.Getenv("SPOOLQ_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SPOOLQ_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
}

// Validate checks that the config values are consistent and within acceptable
// ranges. It returns the first error found.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return errors.New(`log.format must be one of "json", "text"`)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("metrics.addr must not be empty when metrics are enabled")
	}
	if c.Poll.Interval <= 0 {
		return errors.New("poll.interval must be positive")
	}
	if c.Poll.Rate <= 0 {
		return errors.New("poll.rate must be positive")
	}
	if c.Poll.Burst < 1 {
		return errors.New("poll.burst must be at least 1")
	}

	seen := make(map[string]bool, len(c.Queues))
	for i, q := range c.Queues {
		if _, err := q.QueueConfig(); err != nil {
			return fmt.Errorf("queues[%d]: %w", i, err)
		}
		if _, err := envelope.NewCodec(q.Codec, q.Compression); err != nil {
			return fmt.Errorf("queues[%d]: %w", i, types.WithQueue(err, q.QueueName))
		}
		if seen[q.QueueName] {
			return fmt.Errorf("queues[%d]: duplicate queue %q", i, q.QueueName)
		}
		seen[q.QueueName] = true
	}
	return nil
}

// Queue returns the options of the named queue with the default directory
// applied.
func (c *Config) Queue(name string) (QueueOptions, bool) {
	for _, q := range c.Queues {
		if q.QueueName == name {
			if q.Directory == "" && c.Dir != "" {
				q.Directory = filepath.Join(c.Dir, q.QueueName)
			}
			return q, true
		}
	}
	return QueueOptions{}, false
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}
