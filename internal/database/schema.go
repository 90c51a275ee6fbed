// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

/*
schema.go - Database Schema Management

Tables:
  - catalog_entities: one row per (entity_type, mal_id); denormalized
    indexable columns for querying plus the raw upstream payload as JSON
    text (payload from the base endpoint, payload_full from the /full
    endpoint when fetched)
  - ingest_budgets: daily request budget counters keyed by (bucket, day)
  - entity_leases: fetch leases keyed by (entity_type, mal_id); an entity
    is leased while lease_expires_at is non-null and in the future

Index Strategy:
Indexes cover the catalog read paths (type + status, type + score for
top-rated listings) and the scheduler's due scan (next_refresh_at).
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS catalog_entities (
			entity_type TEXT NOT NULL,
			mal_id INTEGER NOT NULL,
			title TEXT,
			title_english TEXT,
			title_japanese TEXT,
			media_type TEXT,
			status TEXT,
			season TEXT,
			year INTEGER,
			episodes INTEGER,
			chapters INTEGER,
			volumes INTEGER,
			score DOUBLE,
			scored_by INTEGER,
			rank INTEGER,
			popularity INTEGER,
			members INTEGER,
			synopsis TEXT,
			image_url TEXT,
			trailer_url TEXT,
			external_links TEXT,
			payload TEXT NOT NULL,
			payload_full TEXT,
			last_fetched_at TIMESTAMP,
			next_refresh_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (entity_type, mal_id)
		)`,

		`CREATE TABLE IF NOT EXISTS ingest_budgets (
			bucket TEXT NOT NULL,
			day DATE NOT NULL,
			limit_total INTEGER NOT NULL,
			used INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (bucket, day)
		)`,

		`CREATE TABLE IF NOT EXISTS entity_leases (
			entity_type TEXT NOT NULL,
			mal_id INTEGER NOT NULL,
			lease_expires_at TIMESTAMP,
			locked_at TIMESTAMP,
			locked_by TEXT,
			PRIMARY KEY (entity_type, mal_id)
		)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

// createIndexes creates indexes for the catalog read and scan paths
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_entities_type_status ON catalog_entities (entity_type, status)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_type_score ON catalog_entities (entity_type, score)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_next_refresh ON catalog_entities (next_refresh_at)`,
		`CREATE INDEX IF NOT EXISTS idx_leases_expiry ON entity_leases (lease_expires_at)`,
	}

	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}

	return nil
}
