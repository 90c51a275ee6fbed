// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package database

import (
	"context"
	"testing"
	"time"

	"github.com/kitsunebi-dev/anidex/internal/config"
	"github.com/kitsunebi-dev/anidex/internal/models"
)

// testDBSemaphore limits concurrent in-memory DuckDB instances; parallel
// CGO-heavy opens under resource pressure can wedge the test binary.
var testDBSemaphore = make(chan struct{}, 4)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	cfg := &config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "1GB",
	}

	db, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

func testEntity(entityType string, malID int, title string) *models.CatalogEntity {
	now := time.Now().UTC()
	return &models.CatalogEntity{
		EntityType:    entityType,
		MalID:         malID,
		Title:         title,
		Payload:       `{"mal_id":` + "1" + `}`,
		LastFetchedAt: now,
		NextRefreshAt: now.Add(24 * time.Hour),
	}
}

func TestNew_InitializesSchema(t *testing.T) {
	db := setupTestDB(t)

	ctx := context.Background()
	if err := db.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	// All three tables must exist and be empty.
	for _, table := range []string{"catalog_entities", "ingest_budgets", "entity_leases"} {
		var count int
		if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s not queryable: %v", table, err)
		} else if count != 0 {
			t.Errorf("table %s not empty after init: %d rows", table, count)
		}
	}
}

func TestMigrations_RunOnce(t *testing.T) {
	db := setupTestDB(t)

	// Re-running against an initialized schema must be a no-op.
	if err := db.runVersionedMigrations(); err != nil {
		t.Fatalf("second migration run failed: %v", err)
	}

	applied, err := db.getAppliedMigrations(context.Background())
	if err != nil {
		t.Fatalf("getAppliedMigrations failed: %v", err)
	}
	if len(applied) != len(db.getMigrations()) {
		t.Errorf("applied %d migrations, want %d", len(applied), len(db.getMigrations()))
	}
}

func TestCheckpoint(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Checkpoint(context.Background()); err != nil {
		t.Errorf("Checkpoint failed: %v", err)
	}
}

func TestIsTransactionConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"conflict", errTransactionConflict, true},
		{"other", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransactionConflict(tt.err); got != tt.want {
				t.Errorf("isTransactionConflict(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

type fakeError string

func (e fakeError) Error() string { return string(e) }

var errTransactionConflict = fakeError("TransactionContext Error: Transaction conflict on row")
