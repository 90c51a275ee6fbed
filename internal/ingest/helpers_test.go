// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package ingest

import (
	"testing"
	"time"

	"github.com/kitsunebi-dev/anidex/internal/config"
	"github.com/kitsunebi-dev/anidex/internal/database"
)

// testDBSemaphore limits concurrent in-memory DuckDB instances; parallel
// CGO-heavy opens under resource pressure can wedge the test binary.
var testDBSemaphore = make(chan struct{}, 4)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	db, err := database.New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "1GB",
	})
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

func testIngestConfig() *config.IngestConfig {
	return &config.IngestConfig{
		Enabled:            true,
		DefaultDailyBudget: 100,
		BudgetPause:        time.Millisecond,
		LeaseDuration:      time.Minute,
		Interval:           time.Hour,
		BatchSize:          50,
		Workers:            2,
	}
}

func strPtr(s string) *string { return &s }
