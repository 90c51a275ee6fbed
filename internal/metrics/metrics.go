// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

// Package metrics provides Prometheus instrumentation for Anidex:
// upstream Jikan requests, rate gate behavior, ingest budgets and leases,
// catalog upserts, and API latency.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upstream client metrics
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jikan_request_duration_seconds",
			Help:    "Duration of upstream Jikan requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)

	UpstreamRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jikan_request_errors_total",
			Help: "Total upstream request failures after retry exhaustion",
		},
		[]string{"endpoint"},
	)

	UpstreamRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jikan_request_retries_total",
			Help: "Total retry attempts by trigger (status code or transport error)",
		},
		[]string{"trigger"},
	)

	// Rate gate metrics
	RateSlotWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rategate_slot_wait_seconds",
			Help:    "Time spent waiting for a concurrency slot",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	RateSlotFailOpen = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rategate_slot_failopen_total",
			Help: "Requests that proceeded without a slot after the wait window elapsed",
		},
	)

	RateSlotRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rategate_slot_rejected_total",
			Help: "Requests rejected under the strict slot policy",
		},
	)

	RatePaceSleep = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rategate_pace_sleep_seconds",
			Help:    "Sleep applied to honor the minimum inter-request interval",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	RatePaceFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rategate_pace_fallbacks_total",
			Help: "Pacing lock contention fallbacks (full-interval sleeps)",
		},
	)

	// Ingest metrics
	BudgetDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_budget_denials_total",
			Help: "Fetches denied because the daily budget was exhausted",
		},
		[]string{"bucket"},
	)

	BudgetUsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingest_budget_used",
			Help: "Requests consumed from today's budget per bucket",
		},
		[]string{"bucket"},
	)

	LeaseContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_lease_contention_total",
			Help: "Lease acquisitions refused because another worker held the entity",
		},
		[]string{"entity_type"},
	)

	EntityUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_entity_upserts_total",
			Help: "Catalog entity upserts by entity type",
		},
		[]string{"entity_type"},
	)

	EntityUpsertErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_entity_upsert_errors_total",
			Help: "Failed catalog entity upserts by entity type",
		},
		[]string{"entity_type"},
	)

	SchedulerRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_scheduler_runs_total",
			Help: "Refresh scheduler poll iterations",
		},
	)

	SchedulerEntitiesDue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_scheduler_entities_due",
			Help: "Entities due for refresh at the last scheduler poll",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// API metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// Event publishing metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_published_total",
			Help: "Entity-ingested events published to JetStream",
		},
		[]string{"entity_type"},
	)

	EventPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_event_publish_errors_total",
			Help: "Failed event publications",
		},
	)
)

// ObserveUpstreamRequest records one upstream request outcome.
func ObserveUpstreamRequest(endpoint string, status int, duration time.Duration) {
	UpstreamRequestDuration.WithLabelValues(endpoint, strconv.Itoa(status)).Observe(duration.Seconds())
}

// ObserveAPIRequest records one API request outcome.
func ObserveAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}
