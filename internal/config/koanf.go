// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

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

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/anidex/config.yaml",
	"/etc/anidex/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. These are
// loaded first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Jikan: JikanConfig{
			BaseURL:        "https://api.jikan.moe/v4",
			Timeout:        30 * time.Second,
			RetryTimes:     3,
			RetryBaseSleep: 500 * time.Millisecond,
			UserAgent:      "anidex/1.0 (+https://github.com/kitsunebi-dev/anidex)",
			ExtraHeaders:   map[string]string{},
			// Jikan's public deployment allows 3 req/s with short bursts;
			// stay under it fleet-wide by default.
			MaxConcurrency:     2,
			SlotTTL:            2 * time.Minute,
			LockWait:           5 * time.Second,
			MinInterval:        400 * time.Millisecond,
			PaceLockTTL:        10 * time.Second,
			SlotPolicy:         SlotPolicyFailOpen,
			LocalRatePerSecond: 3,
		},
		Ingest: IngestConfig{
			Enabled:            true,
			DefaultDailyBudget: 10000,
			BudgetPause:        30 * time.Minute,
			LeaseDuration:      10 * time.Minute,
			Interval:           1 * time.Minute,
			BatchSize:          50,
			Workers:            4,
		},
		Database: DatabaseConfig{
			Path:      "/data/anidex.duckdb",
			MaxMemory: "2GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		NATS: NATSConfig{
			Enabled:        true,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			StoreDir:       "/data/nats/jetstream",
			EventsEnabled:  true,
			EventsSubject:  "catalog.entity.ingested",
		},
		Server: ServerConfig{
			Port:    8994,
			Host:    "0.0.0.0",
			Timeout: 30 * time.Second,
		},
		API: APIConfig{
			DefaultPageSize: 24,
			MaxPageSize:     100,
			RateLimitReqs:   100,
			RateLimitWindow: 1 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Slot policy names accepted by jikan.slot_policy.
const (
	SlotPolicyFailOpen = "failopen"
	SlotPolicyStrict   = "strict"
)

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config File: optional YAML config file (if exists)
//  3. Environment Variables: override any setting
//
// Precedence: ENV > File > Defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// JIKAN_BASE_URL -> jikan.base_url, DUCKDB_PATH -> database.path
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processHeaderFields(k); err != nil {
		return nil, fmt.Errorf("failed to process header fields: %w", err)
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

// findConfigFile searches for a config file in the default paths.
// Returns the first file found, or empty string if none exists.
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

// processHeaderFields converts the JIKAN_EXTRA_HEADERS env value
// ("Key1: v1,Key2: v2") into a map, since env vars arrive as strings but
// the config expects map[string]string. YAML-sourced maps pass through.
func processHeaderFields(k *koanf.Koanf) error {
	const path = "jikan.extra_headers"
	val := k.Get(path)
	if val == nil {
		return nil
	}
	strVal, ok := val.(string)
	if !ok || strVal == "" {
		return nil
	}

	headers := map[string]string{}
	for _, pair := range strings.Split(strVal, ",") {
		name, value, found := strings.Cut(pair, ":")
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if !found || name == "" {
			continue
		}
		headers[name] = value
	}
	if err := k.Set(path, headers); err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped keys return "" and are skipped, so unrelated environment
// variables never leak into the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Jikan client mappings
		"jikan_base_url":         "jikan.base_url",
		"jikan_timeout":          "jikan.timeout",
		"jikan_retry_times":      "jikan.retry_times",
		"jikan_retry_base_sleep": "jikan.retry_base_sleep",
		"jikan_user_agent":       "jikan.user_agent",
		"jikan_extra_headers":    "jikan.extra_headers",
		"jikan_max_concurrency":  "jikan.max_concurrency",
		"jikan_slot_ttl":         "jikan.slot_ttl",
		"jikan_lock_wait":        "jikan.lock_wait",
		"jikan_min_interval":     "jikan.min_interval",
		"jikan_pace_lock_ttl":    "jikan.pace_lock_ttl",
		"jikan_slot_policy":      "jikan.slot_policy",
		"jikan_local_rate":       "jikan.local_rate_per_second",

		// Ingest mappings
		"ingest_enabled":              "ingest.enabled",
		"ingest_default_daily_budget": "ingest.default_daily_budget",
		"ingest_budget_pause":         "ingest.budget_pause",
		"ingest_lease_duration":       "ingest.lease_duration",
		"ingest_interval":             "ingest.interval",
		"ingest_batch_size":           "ingest.batch_size",
		"ingest_workers":              "ingest.workers",

		// Database mappings
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// NATS mappings
		"nats_enabled":        "nats.enabled",
		"nats_url":            "nats.url",
		"nats_embedded":       "nats.embedded_server",
		"nats_store_dir":      "nats.store_dir",
		"nats_events":         "nats.events_enabled",
		"nats_events_subject": "nats.events_subject",

		// Server mappings
		"http_port":    "server.port",
		"http_host":    "server.host",
		"http_timeout": "server.timeout",

		// API mappings
		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",
		"rate_limit_requests":   "api.rate_limit_reqs",
		"rate_limit_window":     "api.rate_limit_window",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
