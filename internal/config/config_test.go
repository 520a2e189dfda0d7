package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/snehjoshi/spoolq/internal/config"
	"github.com/snehjoshi/spoolq/internal/types"
)

func TestDefault_HasSensibleValues(t *testing.T) {
	cfg := config.Default()

	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("expected info/json logging, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics must be disabled by default")
	}
	if cfg.Poll.Interval != 500*time.Millisecond {
		t.Errorf("expected 500ms poll interval, got %s", cfg.Poll.Interval)
	}
	if len(cfg.Queues) != 0 {
		t.Errorf("expected no queues, got %d", len(cfg.Queues))
	}
}

func TestLoad_MissingFile_ReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if cfg.Poll.Burst != 100 {
		t.Errorf("expected default burst for missing file, got %d", cfg.Poll.Burst)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	yaml := `
dir: /var/spool/app
log:
  level: debug
poll:
  interval: 2s
  journal: /var/lib/app/journal.db
queues:
  - queueName: orders
    queueType: PRIO
    returnChunkSize: 50
    compression: zstd
  - queueName: audit
    directory: /srv/audit
`
	path := writeTempYAML(t, yaml)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug, got %s", cfg.Log.Level)
	}
	if cfg.Poll.Interval != 2*time.Second || cfg.Poll.Journal != "/var/lib/app/journal.db" {
		t.Errorf("poll: %+v", cfg.Poll)
	}
	// Unset fields keep their defaults.
	if cfg.Log.Format != "json" || cfg.Poll.Burst != 100 {
		t.Errorf("defaults lost: %+v %+v", cfg.Log, cfg.Poll)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	orders, ok := cfg.Queue("orders")
	if !ok {
		t.Fatal("queue orders not found")
	}
	if orders.Directory != "/var/spool/app/orders" {
		t.Errorf("default directory: got %s", orders.Directory)
	}
	qc, err := orders.QueueConfig()
	if err != nil {
		t.Fatalf("QueueConfig: %v", err)
	}
	if qc.Discipline != types.PRIO || qc.ReturnChunkSize != 50 || qc.Compression != "zstd" {
		t.Errorf("queue config: %+v", qc)
	}
	if audit, _ := cfg.Queue("audit"); audit.Directory != "/srv/audit" {
		t.Errorf("explicit directory overridden: %s", audit.Directory)
	}
}

func TestLoad_UnknownKeysRejected(t *testing.T) {
	for name, content := range map[string]string{
		"top level": "colour: blue\n",
		"nested":    "poll:\n  intervall: 1s\n",
		"queue":     "queues:\n  - queueName: a\n    queueTyp: LIFO\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeTempYAML(t, content))
			if !errors.Is(err, types.ErrConfig) {
				t.Fatalf("want ErrConfig, got %v", err)
			}
		})
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := config.Load(writeTempYAML(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty file should give valid defaults: %v", err)
	}
}

func TestLoad_InvalidYAML_ReturnsError(t *testing.T) {
	path := writeTempYAML(t, "log: [invalid: yaml: {{{}}")
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SPOOLQ_DIR", "/data/q")
	t.Setenv("SPOOLQ_LOG_LEVEL", "warn")
	t.Setenv("SPOOLQ_METRICS_ADDR", "127.0.0.1:9100")

	cfg, err := config.Load(writeTempYAML(t, "log:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dir != "/data/q" || cfg.Log.Level != "warn" {
		t.Errorf("env overrides not applied: dir=%s level=%s", cfg.Dir, cfg.Log.Level)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "127.0.0.1:9100" {
		t.Errorf("metrics: %+v", cfg.Metrics)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*config.Config){
		"bad level":       func(c *config.Config) { c.Log.Level = "loud" },
		"bad format":      func(c *config.Config) { c.Log.Format = "xml" },
		"metrics no addr": func(c *config.Config) { c.Metrics.Enabled, c.Metrics.Addr = true, "" },
		"zero interval":   func(c *config.Config) { c.Poll.Interval = 0 },
		"zero rate":       func(c *config.Config) { c.Poll.Rate = 0 },
		"zero burst":      func(c *config.Config) { c.Poll.Burst = 0 },
		"nameless queue":  func(c *config.Config) { c.Queues = []config.QueueOptions{{}} },
		"bad queue type": func(c *config.Config) {
			c.Queues = []config.QueueOptions{{QueueName: "a", QueueType: "RANDOM"}}
		},
		"bad codec": func(c *config.Config) {
			c.Queues = []config.QueueOptions{{QueueName: "a", Codec: "xml"}}
		},
		"duplicate queue": func(c *config.Config) {
			c.Queues = []config.QueueOptions{{QueueName: "a"}, {QueueName: "a"}}
		},
	}
	if err := config.Default().Validate(); err != nil {
		t.Fatalf("Default config should be valid, got: %v", err)
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	l, err := config.ParseLevel("WARN")
	if err != nil || l != slog.LevelWarn {
		t.Errorf("ParseLevel(WARN): %v, %v", l, err)
	}
	if _, err := config.ParseLevel("chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
}

// writeTempYAML writes content to a temp file and returns its path.
func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writeTempYAML: %v", err)
	}
	return path
}
