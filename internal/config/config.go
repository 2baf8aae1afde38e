// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	// ResponseWindow is the default per-round submission window for
	// scenes that do not declare their own.
	ResponseWindow time.Duration
	// JoinTimeout is how long a pending session may wait for players.
	JoinTimeout time.Duration
	// SweepInterval is the background deadline sweep cadence.
	SweepInterval time.Duration

	// SeedDevAgents creates demo agents with logged API keys at
	// startup. Development convenience only.
	SeedDevAgents bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/agora.db"),
		ResponseWindow: getEnvSeconds("PLAYGROUND_RESPONSE_WINDOW_SEC", 60),
		JoinTimeout:    getEnvSeconds("PLAYGROUND_JOIN_TIMEOUT_SEC", 600),
		SweepInterval:  getEnvSeconds("PLAYGROUND_SWEEP_INTERVAL_SEC", 30),
		SeedDevAgents:  getEnvBool("SEED_DEV_AGENTS", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.ResponseWindow <= 0 {
		return fmt.Errorf("PLAYGROUND_RESPONSE_WINDOW_SEC must be > 0")
	}
	if c.JoinTimeout <= 0 {
		return fmt.Errorf("PLAYGROUND_JOIN_TIMEOUT_SEC must be > 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("PLAYGROUND_SWEEP_INTERVAL_SEC must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvSeconds(key string, fallbackSec int) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return time.Duration(fallbackSec) * time.Second
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return time.Duration(fallbackSec) * time.Second
	}
	return time.Duration(n) * time.Second
}
