// Package config loads layered ingestion configuration: built-in defaults,
// then an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, first match wins.
var DefaultConfigPaths = []string{
	"ingest.yaml",
	"ingest.yml",
	"/etc/kalshi-ingest/ingest.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "INGEST_CONFIG_PATH"

// APIConfig addresses the upstream API.
type APIConfig struct {
	BaseURL            string        `koanf:"base_url"`
	UserAgent          string        `koanf:"user_agent"`
	InsecureSkipVerify bool          `koanf:"insecure_skip_verify"`
	AttemptTimeout     time.Duration `koanf:"attempt_timeout"`
}

// PacingConfig tunes the request governor.
type PacingConfig struct {
	RequestsPerMinute int           `koanf:"requests_per_minute"`
	Cooldown          time.Duration `koanf:"cooldown"`
	InitialDelay      time.Duration `koanf:"initial_delay"`
	MinDelay          time.Duration `koanf:"min_delay"`
	MaxDelay          time.Duration `koanf:"max_delay"`
}

// RetryConfig tunes the short retry tier.
type RetryConfig struct {
	MaxAttempts int `koanf:"max_attempts"`
}

// RecoveryConfig tunes the extended outage recovery tier.
type RecoveryConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	WaitBase    time.Duration `koanf:"wait_base"`
}

// SessionConfig controls bulk session behavior.
type SessionConfig struct {
	OutputRoot   string `koanf:"output_root"`
	DiscoveryDir string `koanf:"discovery_dir"`
	Parallel     bool   `koanf:"parallel"`
	Workers      int    `koanf:"workers"`
}

// CacheConfig enables the optional Redis page cache.
type CacheConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	TTL      time.Duration `koanf:"ttl"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

// Config is the complete ingestion configuration.
type Config struct {
	API      APIConfig      `koanf:"api"`
	Pacing   PacingConfig   `koanf:"pacing"`
	Retry    RetryConfig    `koanf:"retry"`
	Recovery RecoveryConfig `koanf:"recovery"`
	Session  SessionConfig  `koanf:"session"`
	Cache    CacheConfig    `koanf:"cache"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// Default returns the built-in defaults, matching the tuning the engine
// ships with.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "https://api.elections.kalshi.com/trade-api/v2",
			UserAgent:      "kalshi-ingest/1.0",
			AttemptTimeout: 30 * time.Second,
		},
		Pacing: PacingConfig{
			RequestsPerMinute: 50,
			Cooldown:          time.Second,
			InitialDelay:      100 * time.Millisecond,
			MinDelay:          50 * time.Millisecond,
			MaxDelay:          2 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
		},
		Recovery: RecoveryConfig{
			MaxAttempts: 10,
			WaitBase:    60 * time.Second,
		},
		Session: SessionConfig{
			OutputRoot:   ".",
			DiscoveryDir: ".",
			Parallel:     false,
			Workers:      10,
		},
		Cache: CacheConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
			TTL:     time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// INGEST_* environment variables, in increasing precedence.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile behaves like Load but reads a specific config file.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("INGEST_", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.UserAgent == "" {
		return fmt.Errorf("api.user_agent is required")
	}
	if c.Pacing.RequestsPerMinute <= 0 {
		return fmt.Errorf("pacing.requests_per_minute must be positive, got %d", c.Pacing.RequestsPerMinute)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Recovery.MaxAttempts <= 0 {
		return fmt.Errorf("recovery.max_attempts must be positive, got %d", c.Recovery.MaxAttempts)
	}
	if c.Session.Workers <= 0 {
		return fmt.Errorf("session.workers must be positive, got %d", c.Session.Workers)
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache.addr is required when cache is enabled")
	}
	return nil
}

// findConfigFile returns the first config file that exists, honoring the
// path override variable.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps INGEST_* environment variables to config paths:
// INGEST_API_BASE_URL -> api.base_url, INGEST_SESSION_WORKERS ->
// session.workers.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "INGEST_"))

	sections := []string{"api", "pacing", "retry", "recovery", "session", "cache", "logging"}
	for _, section := range sections {
		if strings.HasPrefix(key, section+"_") {
			return section + "." + strings.TrimPrefix(key, section+"_")
		}
	}

	// Unmapped variables are skipped so unrelated INGEST_ vars cannot
	// pollute the config.
	return ""
}
