package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL != "http://localhost:8000" {
		t.Errorf("api base url = %q", cfg.APIBaseURL)
	}
	if cfg.SyncPath != "/api/ws" {
		t.Errorf("sync path = %q", cfg.SyncPath)
	}
	if cfg.BackoffInitial != time.Second {
		t.Errorf("backoff initial = %v", cfg.BackoffInitial)
	}
	if cfg.BackoffCap != 30*time.Second {
		t.Errorf("backoff cap = %v", cfg.BackoffCap)
	}
	if cfg.JitterPercent != 20 {
		t.Errorf("jitter = %d", cfg.JitterPercent)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TRACKER_API_URL", "https://api.tracker.example")
	t.Setenv("TRACKER_HOUSEHOLD_ID", "hh-42")
	t.Setenv("TRACKER_BACKOFF_INITIAL", "250ms")
	t.Setenv("TRACKER_BACKOFF_JITTER_PCT", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL != "https://api.tracker.example" {
		t.Errorf("api base url = %q", cfg.APIBaseURL)
	}
	if cfg.HouseholdID != "hh-42" {
		t.Errorf("household id = %q", cfg.HouseholdID)
	}
	if cfg.BackoffInitial != 250*time.Millisecond {
		t.Errorf("backoff initial = %v", cfg.BackoffInitial)
	}
	if cfg.JitterPercent != 0 {
		t.Errorf("jitter = %d", cfg.JitterPercent)
	}
}

func TestLoadBadDuration(t *testing.T) {
	t.Setenv("TRACKER_BACKOFF_INITIAL", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}
