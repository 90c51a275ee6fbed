// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

// Package database provides the DuckDB-backed catalog store for Anidex.
//
// # Overview
//
// This package is the data layer between the application and DuckDB. It
// owns three tables:
//
//   - catalog_entities: one row per (entity_type, mal_id) with denormalized
//     indexable columns plus the raw upstream payload as JSON text
//   - ingest_budgets: daily request budget counters per (bucket, day)
//   - entity_leases: time-bounded fetch leases per (entity_type, mal_id)
//
// # Architecture
//
//   - database.go: connection lifecycle, pool configuration, error classes
//   - schema.go: table and index creation
//   - migrations.go: versioned schema migration tracking
//   - catalog.go: entity upsert, reads, pagination, due-for-refresh scans
//   - budget.go: atomic daily budget check-and-increment
//   - lease.go: entity lease acquisition and release
//
// # Concurrency
//
// All exported methods are safe for concurrent use. DuckDB has no row-level
// lock primitive, so the budget and lease operations run their
// read-modify-write inside short transactions and retry on the driver's
// transaction conflict errors with exponential backoff. Under optimistic
// concurrency this yields the same effective serialization as a row lock.
//
// # Error Handling
//
// Errors are wrapped with context via fmt.Errorf %w. Transaction conflicts
// are retried internally; everything else propagates to the caller.
package database
