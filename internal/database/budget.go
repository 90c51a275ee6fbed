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

	"github.com/kitsunebi-dev/anidex/internal/models"
)

// budgetMaxRetries bounds transaction-conflict retries on the budget row.
const budgetMaxRetries = 5

// ConsumeBudget atomically checks and increments the (bucket, day) budget
// counter. The row is lazily created with defaultLimit and zero used in
// the same transaction, so two racing first callers cannot both observe
// "no row" and double-create: the loser's insert conflicts and retries.
//
// Returns true and increments used by cost when used+cost <= limit;
// returns false without mutation when the budget is exhausted.
//
// DuckDB has no SELECT FOR UPDATE; optimistic transactions plus conflict
// retry serialize concurrent callers on the same row instead.
func (db *DB) ConsumeBudget(ctx context.Context, bucket string, day time.Time, cost, defaultLimit int) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	dayDate := day.UTC().Truncate(24 * time.Hour)

	var lastErr error
	for attempt := 0; attempt < budgetMaxRetries; attempt++ {
		ok, err := db.doConsumeBudget(ctx, bucket, dayDate, cost, defaultLimit)
		if err == nil {
			return ok, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return false, fmt.Errorf("budget check timed out or canceled: %w", ctx.Err())
		}
		if !isTransactionConflict(err) {
			return false, err
		}

		backoff := time.Millisecond * time.Duration(1<<uint(attempt)) // 1ms..16ms
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	return false, fmt.Errorf("budget check exceeded %d retries: %w", budgetMaxRetries, lastErr)
}

// doConsumeBudget runs one check-and-increment transaction.
func (db *DB) doConsumeBudget(ctx context.Context, bucket string, day time.Time, cost, defaultLimit int) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin budget transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	var limitTotal, used int
	err = tx.QueryRowContext(ctx,
		`SELECT limit_total, used FROM ingest_budgets WHERE bucket = ? AND day = ?`,
		bucket, day).Scan(&limitTotal, &used)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Lazy creation: the new row is the current state, no re-read.
		limitTotal, used = defaultLimit, 0
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ingest_budgets (bucket, day, limit_total, used) VALUES (?, ?, ?, 0)`,
			bucket, day, defaultLimit); err != nil {
			return false, fmt.Errorf("failed to create budget row: %w", err)
		}
	case err != nil:
		return false, fmt.Errorf("failed to read budget row: %w", err)
	}

	if used+cost > limitTotal {
		// Exhausted: commit without mutation so the lazy insert (if any)
		// still lands.
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("failed to commit budget transaction: %w", err)
		}
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE ingest_budgets SET used = used + ? WHERE bucket = ? AND day = ?`,
		cost, bucket, day); err != nil {
		return false, fmt.Errorf("failed to increment budget: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit budget transaction: %w", err)
	}
	return true, nil
}

// GetBudget returns the (bucket, day) row, or nil when none exists yet.
func (db *DB) GetBudget(ctx context.Context, bucket string, day time.Time) (*models.IngestBudgetRow, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := models.IngestBudgetRow{Bucket: bucket}
	err := db.conn.QueryRowContext(ctx,
		`SELECT day, limit_total, used FROM ingest_budgets WHERE bucket = ? AND day = ?`,
		bucket, day.UTC().Truncate(24*time.Hour)).Scan(&row.Day, &row.LimitTotal, &row.Used)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read budget row: %w", err)
	}
	return &row, nil
}
