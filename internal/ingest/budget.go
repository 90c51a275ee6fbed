// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package ingest

import (
	"context"
	"time"

	"github.com/kitsunebi-dev/anidex/internal/config"
	"github.com/kitsunebi-dev/anidex/internal/database"
	"github.com/kitsunebi-dev/anidex/internal/logging"
	"github.com/kitsunebi-dev/anidex/internal/metrics"
)

// Budget enforces a per-bucket daily request budget on top of the
// persisted (bucket, day) counters. Safe for concurrent use across
// processes; atomicity lives in the database layer.
type Budget struct {
	db           *database.DB
	defaultLimit int

	// now is injectable so day-rollover behavior is testable.
	now func() time.Time
}

// NewBudget creates a budget keeper with the configured default daily limit.
func NewBudget(cfg *config.IngestConfig, db *database.DB) *Budget {
	return &Budget{
		db:           db,
		defaultLimit: cfg.DefaultDailyBudget,
		now:          time.Now,
	}
}

// WithinBudget checks and consumes cost units from the bucket's budget
// for the current day. False means exhausted: nothing was consumed and
// the caller should pause ingestion rather than retry immediately.
func (b *Budget) WithinBudget(ctx context.Context, bucket string, cost int) (bool, error) {
	if cost <= 0 {
		cost = 1
	}

	day := b.now().UTC()
	ok, err := b.db.ConsumeBudget(ctx, bucket, day, cost, b.defaultLimit)
	if err != nil {
		return false, err
	}

	if !ok {
		metrics.BudgetDenials.WithLabelValues(bucket).Inc()
		logging.Warn().
			Str("bucket", bucket).
			Int("cost", cost).
			Msg("Daily ingest budget exhausted")
		return false, nil
	}

	if row, err := b.db.GetBudget(ctx, bucket, day); err == nil && row != nil {
		metrics.BudgetUsed.WithLabelValues(bucket).Set(float64(row.Used))
	}
	return true, nil
}

// Usage returns today's (used, limit) for the bucket; (0, defaultLimit)
// when no row exists yet.
func (b *Budget) Usage(ctx context.Context, bucket string) (int, int, error) {
	row, err := b.db.GetBudget(ctx, bucket, b.now().UTC())
	if err != nil {
		return 0, 0, err
	}
	if row == nil {
		return 0, b.defaultLimit, nil
	}
	return row.Used, row.LimitTotal, nil
}
