// Package config loads runtime settings from TRACKER_* environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration for the client core.
type Config struct {
	// APIBaseURL is the backend's HTTP base; the event channel derives its
	// ws/wss address from it.
	APIBaseURL string `env:"TRACKER_API_URL" envDefault:"http://localhost:8000"`
	SyncPath   string `env:"TRACKER_SYNC_PATH" envDefault:"/api/ws"`

	HouseholdID string `env:"TRACKER_HOUSEHOLD_ID"`

	// Token is used directly when set; otherwise TokenFile (encrypted with
	// TokenPassphrase) is consulted.
	Token           string `env:"TRACKER_TOKEN"`
	TokenFile       string `env:"TRACKER_TOKEN_FILE"`
	TokenPassphrase string `env:"TRACKER_TOKEN_PASSPHRASE"`

	CacheDBPath string `env:"TRACKER_CACHE_DB" envDefault:"tracker-cache.db"`
	LogLevel    string `env:"TRACKER_LOG_LEVEL" envDefault:"info"`

	BackoffInitial time.Duration `env:"TRACKER_BACKOFF_INITIAL" envDefault:"1s"`
	BackoffCap     time.Duration `env:"TRACKER_BACKOFF_CAP" envDefault:"30s"`
	JitterPercent  uint64        `env:"TRACKER_BACKOFF_JITTER_PCT" envDefault:"20"`

	// RelaySecret signs tokens accepted by the local relay (dev mode only).
	RelaySecret string `env:"TRACKER_RELAY_SECRET"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
