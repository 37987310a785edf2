// Package config loads toolkit configuration from the environment.
//
// Connection settings are never module-level mutable state: Load builds an
// explicit Config that callers pass into the API client at construction.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// DefaultOfflineGroup is the sentinel group that marks decommissioned
// hosts. Membership in it is cleared when a host is restored to a real
// group.
const DefaultOfflineGroup = "Decommissioned"

// Config holds all toolkit configuration.
type Config struct {
	// Zabbix connection
	URL      string
	Username string
	Password string
	Timeout  time.Duration

	// Reconciliation
	OfflineGroup string

	// Reports
	OutputDir string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, with .env overrides for
// development.
func Load() (*Config, error) {
	// Load .env from the current directory if present (development convenience)
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded configuration from .env in current directory")
	}

	cfg := &Config{
		Timeout:      30 * time.Second,
		OfflineGroup: DefaultOfflineGroup,
		OutputDir:    "./output",
		LogLevel:     "info",
		LogFormat:    "auto",
	}

	cfg.URL = os.Getenv("ZBX_URL")
	cfg.Username = os.Getenv("ZBX_USER")
	cfg.Password = os.Getenv("ZBX_PASSWORD")

	if v := os.Getenv("ZBX_TIMEOUT"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("invalid ZBX_TIMEOUT %q: expected positive seconds", v)
		}
		cfg.Timeout = time.Duration(seconds) * time.Second
	}
	if v := os.Getenv("ZBX_OFFLINE_GROUP"); v != "" {
		cfg.OfflineGroup = v
	}
	if v := os.Getenv("ZBX_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("ZBX_URL is required")
	}
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("ZBX_USER and ZBX_PASSWORD are required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.OfflineGroup == "" {
		return fmt.Errorf("offline group name must not be empty")
	}
	return nil
}
