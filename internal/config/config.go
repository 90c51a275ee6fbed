// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

// Package config provides layered configuration for Anidex.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in sensible defaults for all settings
//  2. Config File: optional YAML config file (config.yaml)
//  3. Environment Variables: override any setting
//
// Categories:
//   - Jikan: upstream API client, rate gating and retry behavior
//   - Ingest: daily budgets, entity leases, refresh scheduler
//   - Database: DuckDB configuration (path, memory, threads)
//   - NATS: shared lock/KV service and ingest event stream
//   - Server / API: HTTP server and pagination limits
//   - Logging: log level and output format
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration loaded from defaults, an
// optional YAML file and environment variables.
type Config struct {
	Jikan    JikanConfig    `koanf:"jikan"`
	Ingest   IngestConfig   `koanf:"ingest"`
	Database DatabaseConfig `koanf:"database"`
	NATS     NATSConfig     `koanf:"nats"`
	Server   ServerConfig   `koanf:"server"`
	API      APIConfig      `koanf:"api"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// JikanConfig configures the upstream Jikan client, including the
// cross-process rate gate and the retrying transport.
type JikanConfig struct {
	// BaseURL is the Jikan API root, without a trailing slash.
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// Timeout bounds each HTTP request. A hung call is only bounded by
	// this timeout, after which it counts as a transport failure.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// RetryTimes is the number of retries after the first attempt.
	RetryTimes int `koanf:"retry_times" validate:"gte=0"`

	// RetryBaseSleep is the base backoff delay; attempt n sleeps
	// base * 2^(n-1) plus up to 200ms of jitter.
	RetryBaseSleep time.Duration `koanf:"retry_base_sleep" validate:"gt=0"`

	UserAgent    string            `koanf:"user_agent"`
	ExtraHeaders map[string]string `koanf:"extra_headers"`

	// MaxConcurrency is the global in-flight request cap across all
	// worker processes. Zero or negative disables slot gating.
	MaxConcurrency int `koanf:"max_concurrency"`

	// SlotTTL bounds how long a crashed holder can wedge a slot.
	SlotTTL time.Duration `koanf:"slot_ttl" validate:"gt=0"`

	// LockWait is the total window spent scanning for a free slot
	// before the configured SlotPolicy applies.
	LockWait time.Duration `koanf:"lock_wait" validate:"gt=0"`

	// MinInterval is the minimum spacing between successive dispatches
	// as observed through the shared timestamp. Zero disables pacing.
	MinInterval time.Duration `koanf:"min_interval"`

	// PaceLockTTL bounds the pacing critical section lock.
	PaceLockTTL time.Duration `koanf:"pace_lock_ttl" validate:"gt=0"`

	// SlotPolicy selects what happens when no slot is obtained within
	// LockWait: "failopen" proceeds without a slot (logged), "strict"
	// fails the request.
	SlotPolicy string `koanf:"slot_policy" validate:"oneof=failopen strict"`

	// LocalRatePerSecond is an in-process pre-limiter applied before
	// the shared gate; it spares the lock service under a burst from a
	// single worker. Zero disables it.
	LocalRatePerSecond float64 `koanf:"local_rate_per_second"`
}

// IngestConfig configures daily budgets, entity leases and the refresh
// scheduler.
type IngestConfig struct {
	Enabled bool `koanf:"enabled"`

	// DefaultDailyBudget is the limit assigned when a (bucket, day)
	// budget row is lazily created.
	DefaultDailyBudget int `koanf:"default_daily_budget" validate:"gt=0"`

	// BudgetPause is how long the scheduler pauses after a budget
	// denial before consulting the budget again.
	BudgetPause time.Duration `koanf:"budget_pause" validate:"gt=0"`

	// LeaseDuration is the per-entity lease TTL taken around a fetch.
	LeaseDuration time.Duration `koanf:"lease_duration" validate:"gt=0"`

	// Interval is the scheduler poll interval for due entities.
	Interval time.Duration `koanf:"interval" validate:"gt=0"`

	// BatchSize caps the number of due entities claimed per poll.
	BatchSize int `koanf:"batch_size" validate:"gt=0"`

	// Workers is the number of concurrent refresh workers per process.
	Workers int `koanf:"workers" validate:"gt=0"`
}

// DatabaseConfig configures the DuckDB store.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// NATSConfig configures the shared lock/KV service and ingest event stream.
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`

	// EventsEnabled controls publication of entity-ingested events.
	EventsEnabled bool   `koanf:"events_enabled"`
	EventsSubject string `koanf:"events_subject"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port    int           `koanf:"port" validate:"gt=0,lte=65535"`
	Host    string        `koanf:"host"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// APIConfig configures pagination and API rate limits.
type APIConfig struct {
	DefaultPageSize int           `koanf:"default_page_size" validate:"gt=0"`
	MaxPageSize     int           `koanf:"max_page_size" validate:"gt=0"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gt=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks structural constraints via validator tags plus the
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.API.DefaultPageSize > c.API.MaxPageSize {
		return fmt.Errorf("api.default_page_size (%d) exceeds api.max_page_size (%d)",
			c.API.DefaultPageSize, c.API.MaxPageSize)
	}
	if c.Ingest.Enabled && !c.NATS.Enabled {
		return fmt.Errorf("ingest requires the NATS lock service: set nats.enabled=true or ingest.enabled=false")
	}
	if c.Jikan.MaxConcurrency > 0 && c.Jikan.SlotTTL < c.Jikan.Timeout {
		return fmt.Errorf("jikan.slot_ttl (%s) must cover jikan.timeout (%s) or slots expire mid-request",
			c.Jikan.SlotTTL, c.Jikan.Timeout)
	}
	return nil
}
