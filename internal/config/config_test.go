package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"arena-service/internal/config"
)

const sampleYAML = `
server:
  port: "9090"
  mode: release
database:
  driver: sqlite
  dsn: "file:arena.db"
jwt:
  secret: s3cret
venue:
  timezone: UTC
  timeSlots:
    - {id: slot-1, start: "10:00", end: "11:00"}
    - {id: slot-2, start: "11:00", end: "12:30"}
  stations:
    - {id: pool-1, gameType: pool, name: "Pool Table 1", capacity: 4}
    - {id: ps5-1, gameType: ps5, name: "PS5 #1", capacity: 2}
queue:
  entryTTL: 90m
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Server.Mode != "release" {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("expected sqlite driver, got %q", cfg.Database.Driver)
	}
	if len(cfg.Venue.TimeSlots) != 2 || cfg.Venue.TimeSlots[1].End != "12:30" {
		t.Fatalf("unexpected slots: %+v", cfg.Venue.TimeSlots)
	}
	if len(cfg.Venue.Stations) != 2 || cfg.Venue.Stations[0].Capacity != 4 {
		t.Fatalf("unexpected stations: %+v", cfg.Venue.Stations)
	}
	if cfg.Queue.EntryTTL != 90*time.Minute {
		t.Fatalf("expected entryTTL 90m, got %v", cfg.Queue.EntryTTL)
	}
	if cfg.Queue.LockWait != 2*time.Second {
		t.Fatalf("expected default lockWait 2s, got %v", cfg.Queue.LockWait)
	}
	if config.GlobalConfig != cfg {
		t.Fatalf("expected GlobalConfig to be set")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("ARENA_SERVER_PORT", "7070")
	cfg, err := config.LoadConfig(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Fatalf("expected env override, got %q", cfg.Server.Port)
	}
}

func TestLoadConfigRejectsUnknownTimezone(t *testing.T) {
	_, err := config.LoadConfig(writeConfig(t, "venue:\n  timezone: Mars/Olympus\n"))
	if err == nil {
		t.Fatalf("expected timezone error")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := config.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
