// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/kitsunebi-dev/anidex/internal/models"
)

func TestLeaseManager_AcquireBlocksSecondWorker(t *testing.T) {
	db := setupTestDB(t)
	cfg := testIngestConfig()
	ctx := context.Background()

	first := NewLeaseManager(cfg, db)
	first.lockedBy = "worker-a"
	second := NewLeaseManager(cfg, db)
	second.lockedBy = "worker-b"

	ok, err := first.Acquire(ctx, models.EntityAnime, 1)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !ok {
		t.Fatal("first acquire should succeed")
	}

	ok, err = second.Acquire(ctx, models.EntityAnime, 1)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if ok {
		t.Error("second worker should not take a live lease")
	}

	first.Release(ctx, models.EntityAnime, 1)

	ok, err = second.Acquire(ctx, models.EntityAnime, 1)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !ok {
		t.Error("released lease should be takeable")
	}
}

func TestLeaseManager_ExpiredLeaseIsTakeable(t *testing.T) {
	db := setupTestDB(t)
	cfg := testIngestConfig()
	cfg.LeaseDuration = time.Minute
	ctx := context.Background()

	crashed := NewLeaseManager(cfg, db)
	crashed.lockedBy = "crashed-worker"
	crashed.now = func() time.Time {
		return time.Now().Add(-2 * time.Minute)
	}

	ok, err := crashed.Acquire(ctx, models.EntityManga, 7)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !ok {
		t.Fatal("acquire in the past should succeed")
	}

	// No release happened, but the TTL has passed by current time.
	fresh := NewLeaseManager(cfg, db)
	fresh.lockedBy = "fresh-worker"

	ok, err = fresh.Acquire(ctx, models.EntityManga, 7)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !ok {
		t.Error("expired lease should be takeable without a release")
	}
}

func TestLeaseManager_IndependentEntities(t *testing.T) {
	db := setupTestDB(t)
	m := NewLeaseManager(testIngestConfig(), db)
	ctx := context.Background()

	for _, target := range []struct {
		entityType string
		malID      int
	}{
		{models.EntityAnime, 1},
		{models.EntityManga, 1},
		{models.EntityAnime, 2},
	} {
		ok, err := m.Acquire(ctx, target.entityType, target.malID)
		if err != nil {
			t.Fatalf("Acquire(%s, %d) failed: %v", target.entityType, target.malID, err)
		}
		if !ok {
			t.Errorf("lease on (%s, %d) should not contend with other entities", target.entityType, target.malID)
		}
	}
}
