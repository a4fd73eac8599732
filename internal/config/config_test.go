package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
name = "Wardstone EU"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Name != "Wardstone EU" {
		t.Fatalf("server name = %q, want %q", cfg.Server.Name, "Wardstone EU")
	}
	if cfg.Server.ID != 1 {
		t.Fatalf("server id = %d, want default 1", cfg.Server.ID)
	}
	if cfg.Gateway.OutQueueSize != 256 {
		t.Fatalf("out queue = %d, want default 256", cfg.Gateway.OutQueueSize)
	}
	if cfg.World.SweepInterval != time.Hour {
		t.Fatalf("sweep interval = %v, want default 1h", cfg.World.SweepInterval)
	}
	if cfg.World.FlushInterval != 30*time.Second {
		t.Fatalf("flush interval = %v, want default 30s", cfg.World.FlushInterval)
	}
	if !cfg.Journal.Enabled || cfg.Journal.Dir != "logs/events" {
		t.Fatalf("journal = %+v, want enabled with default dir", cfg.Journal)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Fatalf("logging = %+v, want info/console defaults", cfg.Logging)
	}
	if cfg.Server.StartTime == 0 {
		t.Fatalf("start time not stamped at load")
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
name = "Testbed"
id = 7

[database]
dsn = "postgres://t:t@db:5432/t"
max_open_conns = 4

[gateway]
bind_address = "127.0.0.1:9000"
read_timeout = "45s"
events_per_second = 10
max_message_bytes = 1024

[world]
sweep_interval = "5m"
flush_interval = "2s"

[journal]
enabled = false

[metrics]
enabled = false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ID != 7 {
		t.Fatalf("server id = %d, want 7", cfg.Server.ID)
	}
	if cfg.Database.DSN != "postgres://t:t@db:5432/t" || cfg.Database.MaxOpenConns != 4 {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Database.MaxIdleConns != 5 {
		t.Fatalf("max idle = %d, want untouched default 5", cfg.Database.MaxIdleConns)
	}
	if cfg.Gateway.BindAddress != "127.0.0.1:9000" {
		t.Fatalf("bind = %q", cfg.Gateway.BindAddress)
	}
	if cfg.Gateway.ReadTimeout != 45*time.Second {
		t.Fatalf("read timeout = %v, want 45s", cfg.Gateway.ReadTimeout)
	}
	if cfg.Gateway.EventsPerSecond != 10 || cfg.Gateway.MaxMessageBytes != 1024 {
		t.Fatalf("gateway = %+v", cfg.Gateway)
	}
	if cfg.World.SweepInterval != 5*time.Minute || cfg.World.FlushInterval != 2*time.Second {
		t.Fatalf("world = %+v", cfg.World)
	}
	if cfg.Journal.Enabled {
		t.Fatalf("journal should be disabled")
	}
	if cfg.Metrics.Enabled {
		t.Fatalf("metrics should be disabled")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := writeConfig(t, `[server`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
