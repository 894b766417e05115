// Funnelgrid - Multi-Tenant Web Analytics and Lead Capture
// Copyright 2026 Funnelgrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/funnelgrid/funnelgrid

// Package config loads Funnelgrid configuration via Koanf v2 with layered
// sources (highest priority wins): environment variables, an optional YAML
// config file, and built-in defaults. Every tunable the core consumes
// (session inactivity, heuristic link window, rollup batch size, ...)
// lives here and is passed into component constructors explicitly - no
// package reads ambient configuration at call time.
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

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/funnelgrid/config.yaml",
	"/etc/funnelgrid/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "FUNNELGRID_CONFIG"

// envPrefix is stripped from environment variables before mapping them to
// koanf paths: FUNNELGRID_ATTRIBUTION_SESSION_INACTIVITY_MINUTES ->
// attribution.session_inactivity_minutes.
const envPrefix = "FUNNELGRID_"

// Config is the root configuration tree.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Privacy     PrivacyConfig     `koanf:"privacy"`
	Attribution AttributionConfig `koanf:"attribution"`
	Identity    IdentityConfig    `koanf:"identity"`
	Rollup      RollupConfig      `koanf:"rollup"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig holds the HTTP boundary settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout"`
	DefaultTenantID string        `koanf:"default_tenant_id"`
	// AdminKeyHash is the bcrypt hash of the admin API key. Empty disables
	// every /admin route.
	AdminKeyHash    string        `koanf:"admin_key_hash"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// PrivacyConfig governs fingerprint hashing and retention.
type PrivacyConfig struct {
	// HashSalt is mixed into the IP/UA hashes. Must be set in production;
	// rotating it unlinks all previously derived fingerprints.
	HashSalt      string `koanf:"hash_salt"`
	RetentionDays int    `koanf:"retention_days" validate:"min=1"`
}

// AttributionConfig holds the session-boundary knobs.
type AttributionConfig struct {
	SessionInactivityMinutes int `koanf:"session_inactivity_minutes" validate:"min=1"`
}

// SessionInactivity returns the inactivity threshold as a duration.
func (c AttributionConfig) SessionInactivity() time.Duration {
	return time.Duration(c.SessionInactivityMinutes) * time.Minute
}

// IdentityConfig holds the heuristic-linking knobs.
type IdentityConfig struct {
	HeuristicLinkingEnabled bool `koanf:"heuristic_linking_enabled"`
	HeuristicWindowMinutes  int  `koanf:"heuristic_window_minutes" validate:"min=1"`
	HeuristicMaxCandidates  int  `koanf:"heuristic_max_candidates" validate:"min=1"`
}

// HeuristicWindow returns the linking window as a duration.
func (c IdentityConfig) HeuristicWindow() time.Duration {
	return time.Duration(c.HeuristicWindowMinutes) * time.Minute
}

// RollupConfig holds the batch aggregation knobs.
type RollupConfig struct {
	BatchDays         int           `koanf:"batch_days" validate:"min=1"`
	DefaultPropertyID string        `koanf:"default_property_id"`
	ScheduleInterval  time.Duration `koanf:"schedule_interval"`
	ScheduleEnabled   bool          `koanf:"schedule_enabled"`
}

// LoggingConfig mirrors logging.Config for the koanf layer.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, applied before file and env
// layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8732,
			Timeout:         30 * time.Second,
			DefaultTenantID: "",
			AdminKeyHash:    "",
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
		},
		Database: DatabaseConfig{
			Path:      "/data/funnelgrid.duckdb",
			MaxMemory: "2GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Privacy: PrivacyConfig{
			HashSalt:      "",
			RetentionDays: 395,
		},
		Attribution: AttributionConfig{
			SessionInactivityMinutes: 30,
		},
		Identity: IdentityConfig{
			HeuristicLinkingEnabled: true,
			HeuristicWindowMinutes:  15,
			HeuristicMaxCandidates:  20,
		},
		Rollup: RollupConfig{
			BatchDays:         7,
			DefaultPropertyID: "default",
			ScheduleInterval:  time.Hour,
			ScheduleEnabled:   true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from defaults, an optional config file and
// FUNNELGRID_-prefixed environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
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

// envTransform maps FUNNELGRID_SECTION_SOME_KEY to section.some_key.
// Only the first underscore separates the section; the rest of the name is
// the key, so FUNNELGRID_ROLLUP_BATCH_DAYS -> rollup.batch_days.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return s
	}
	return parts[0] + "." + parts[1]
}
