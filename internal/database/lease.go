// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kitsunebi-dev/anidex/internal/metrics"
	"github.com/kitsunebi-dev/anidex/internal/models"
)

// leaseMaxRetries bounds transaction-conflict retries on a lease row.
const leaseMaxRetries = 5

// AcquireLease claims the (entityType, malID) lease until expiresAt.
// Returns false without mutation when another holder's lease is still in
// the future; otherwise upserts the row with the new expiry and holder.
//
// Serialized per row via optimistic transactions with conflict retry, the
// same discipline as ConsumeBudget.
func (db *DB) AcquireLease(ctx context.Context, entityType string, malID int, now, expiresAt time.Time, lockedBy string) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < leaseMaxRetries; attempt++ {
		ok, err := db.doAcquireLease(ctx, entityType, malID, now, expiresAt, lockedBy)
		if err == nil {
			if !ok {
				metrics.LeaseContention.WithLabelValues(entityType).Inc()
			}
			return ok, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return false, fmt.Errorf("lease acquire timed out or canceled: %w", ctx.Err())
		}
		if !isTransactionConflict(err) {
			return false, err
		}

		backoff := time.Millisecond * time.Duration(1<<uint(attempt))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	return false, fmt.Errorf("lease acquire exceeded %d retries: %w", leaseMaxRetries, lastErr)
}

// doAcquireLease runs one check-and-claim transaction.
func (db *DB) doAcquireLease(ctx context.Context, entityType string, malID int, now, expiresAt time.Time, lockedBy string) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin lease transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	var current sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT lease_expires_at FROM entity_leases WHERE entity_type = ? AND mal_id = ?`,
		entityType, malID).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to read lease row: %w", err)
	}

	// Held iff the expiry is set and strictly in the future.
	if current.Valid && current.Time.After(now) {
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("failed to commit lease transaction: %w", err)
		}
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entity_leases (entity_type, mal_id, lease_expires_at, locked_at, locked_by)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (entity_type, mal_id) DO UPDATE SET
			lease_expires_at = EXCLUDED.lease_expires_at,
			locked_at = EXCLUDED.locked_at,
			locked_by = EXCLUDED.locked_by`,
		entityType, malID, expiresAt, now, lockedBy); err != nil {
		return false, fmt.Errorf("failed to claim lease: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit lease transaction: %w", err)
	}
	return true, nil
}

// ReleaseLease unconditionally clears the lease expiry. It does not check
// that the caller is the current holder; a delayed release can therefore
// shorten a newer holder's lease (see the ingest package for discussion).
func (db *DB) ReleaseLease(ctx context.Context, entityType string, malID int) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`UPDATE entity_leases SET lease_expires_at = NULL WHERE entity_type = ? AND mal_id = ?`,
		entityType, malID)
	if err != nil {
		return fmt.Errorf("failed to release lease %s/%d: %w", entityType, malID, err)
	}
	return nil
}

// GetLease returns the lease row, or nil when none exists.
func (db *DB) GetLease(ctx context.Context, entityType string, malID int) (*models.EntityLeaseRow, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := models.EntityLeaseRow{EntityType: entityType, MalID: malID}
	var expires, lockedAt sql.NullTime
	var lockedBy sql.NullString

	err := db.conn.QueryRowContext(ctx,
		`SELECT lease_expires_at, locked_at, locked_by FROM entity_leases WHERE entity_type = ? AND mal_id = ?`,
		entityType, malID).Scan(&expires, &lockedAt, &lockedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lease row: %w", err)
	}

	if expires.Valid {
		row.LeaseExpiresAt = &expires.Time
	}
	if lockedAt.Valid {
		row.LockedAt = &lockedAt.Time
	}
	if lockedBy.Valid {
		row.LockedBy = &lockedBy.String
	}
	return &row, nil
}
