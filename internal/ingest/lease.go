// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package ingest

import (
	"context"
	"os"
	"time"

	"github.com/kitsunebi-dev/anidex/internal/config"
	"github.com/kitsunebi-dev/anidex/internal/database"
	"github.com/kitsunebi-dev/anidex/internal/logging"
)

// LeaseManager hands out time-bounded per-entity fetch leases so only one
// worker processes a given entity at a time. Expiry is the safety net: a
// crashed holder's lease becomes takeable once its TTL passes.
type LeaseManager struct {
	db       *database.DB
	duration time.Duration
	lockedBy string

	now func() time.Time
}

// NewLeaseManager creates a lease manager identifying this worker by
// hostname.
func NewLeaseManager(cfg *config.IngestConfig, db *database.DB) *LeaseManager {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "anidex-worker"
	}
	return &LeaseManager{
		db:       db,
		duration: cfg.LeaseDuration,
		lockedBy: hostname,
		now:      time.Now,
	}
}

// Acquire claims the entity's lease for the configured duration. False
// means another worker holds a live lease; the caller must skip the
// entity, never fetch without holding the lease.
func (m *LeaseManager) Acquire(ctx context.Context, entityType string, malID int) (bool, error) {
	now := m.now().UTC()
	ok, err := m.db.AcquireLease(ctx, entityType, malID, now, now.Add(m.duration), m.lockedBy)
	if err != nil {
		return false, err
	}
	if !ok {
		logging.Debug().
			Str("entity_type", entityType).
			Int("mal_id", malID).
			Msg("Entity lease held by another worker, skipping")
	}
	return ok, nil
}

// Release clears the entity's lease. The release is unconditional: it
// does not verify that this worker is the current holder, so a delayed
// release can shorten a newer holder's lease. The lease is an efficiency
// guard against duplicate fetches, not a correctness boundary, and the
// upsert write path is idempotent, so the cheaper contract stands.
// Failures are logged and swallowed; TTL expiry provides eventual safety.
func (m *LeaseManager) Release(ctx context.Context, entityType string, malID int) {
	if err := m.db.ReleaseLease(ctx, entityType, malID); err != nil {
		logging.Debug().
			Str("entity_type", entityType).
			Int("mal_id", malID).
			Err(err).
			Msg("Failed to release entity lease")
	}
}
