package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/croft/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Listen != config.DefaultListenAddress {
		t.Errorf("Listen = %q, want %q", cfg.Listen, config.DefaultListenAddress)
	}
	if cfg.Database.Driver != "duckdb" {
		t.Errorf("Database.Driver = %q, want duckdb", cfg.Database.Driver)
	}
	if cfg.Workers.Count != config.DefaultWorkerCount {
		t.Errorf("Workers.Count = %d, want %d", cfg.Workers.Count, config.DefaultWorkerCount)
	}
	if got := cfg.Retention.MaxAge.Duration(); got != 90*24*time.Hour {
		t.Errorf("Retention.MaxAge = %v, want %v", got, 90*24*time.Hour)
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("default config must validate, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
listen: "127.0.0.1:9000"
database:
  driver: duckdb
  path: /tmp/croft-test.db
broker:
  addr: "redis:6379"
  task_state_ttl: 1h
workers:
  count: 8
retention:
  max_age: 720h
  cleanup_hour: 3
analytics:
  percentiles: true
  sketch_accuracy: 0.02
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Listen != "127.0.0.1:9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Broker.Addr != "redis:6379" {
		t.Errorf("Broker.Addr = %q", cfg.Broker.Addr)
	}
	if got := cfg.Broker.TaskStateTTL.Duration(); got != time.Hour {
		t.Errorf("TaskStateTTL = %v, want 1h", got)
	}
	if cfg.Workers.Count != 8 {
		t.Errorf("Workers.Count = %d, want 8", cfg.Workers.Count)
	}
	if got := cfg.Retention.MaxAge.Duration(); got != 720*time.Hour {
		t.Errorf("Retention.MaxAge = %v, want 720h", got)
	}
	if !cfg.Analytics.Percentiles {
		t.Error("Analytics.Percentiles not set")
	}

	// Fields absent from the file keep their defaults.
	if cfg.Broker.QueueKey != config.DefaultQueueKey {
		t.Errorf("QueueKey = %q, want default", cfg.Broker.QueueKey)
	}
	if cfg.Rollup.Hour != config.DefaultRollupHour {
		t.Errorf("Rollup.Hour = %d, want default", cfg.Rollup.Hour)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("CROFT_TEST_REDIS", "envhost:6380")

	path := writeConfig(t, "broker:\n  addr: ${CROFT_TEST_REDIS}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Broker.Addr != "envhost:6380" {
		t.Errorf("Broker.Addr = %q, want envhost:6380", cfg.Broker.Addr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !os.IsNotExist(errUnwrapAll(err)) {
		t.Errorf("want os.IsNotExist-compatible error, got %v", err)
	}
}

func errUnwrapAll(err error) error {
	for {
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		err = u.Unwrap()
	}
}

func TestLoadDurationAsSeconds(t *testing.T) {
	path := writeConfig(t, "broker:\n  task_state_ttl: 90\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Broker.TaskStateTTL.Duration(); got != 90*time.Second {
		t.Errorf("TaskStateTTL = %v, want 90s", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"empty listen", func(c *Config) { c.Listen = "" }, true},
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }, true},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, true},
		{"postgres with dsn", func(c *Config) {
			c.Database.Driver = "postgres"
			c.Database.DSN = "postgres://localhost/croft"
		}, false},
		{"duckdb in-memory", func(c *Config) { c.Database.Path = "" }, false},
		{"zero workers", func(c *Config) { c.Workers.Count = 0 }, true},
		{"empty broker addr", func(c *Config) { c.Broker.Addr = "" }, true},
		{"negative retention", func(c *Config) { c.Retention.MaxAge = Duration(-time.Hour) }, true},
		{"cleanup hour out of range", func(c *Config) { c.Retention.CleanupHour = 24 }, true},
		{"rollup hour out of range", func(c *Config) { c.Rollup.Hour = -1 }, true},
		{"archive enabled without dir", func(c *Config) {
			c.Retention.Archive.Enabled = true
			c.Retention.Archive.Dir = ""
		}, true},
		{"sketch accuracy too large", func(c *Config) { c.Analytics.SketchAccuracy = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
