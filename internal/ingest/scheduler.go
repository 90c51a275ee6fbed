// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

/*
scheduler.go - Refresh Scheduler

The scheduler keeps the catalog current. Each poll it selects entities
whose next_refresh_at has passed and, per entity:

 1. consumes one unit of the daily budget (denial pauses the whole pass)
 2. acquires the entity's fetch lease (contention skips the entity)
 3. fetches the upstream document
 4. maps and upserts it, which also computes the new next_refresh_at
 5. publishes an entity-ingested event
 6. releases the lease

Fetches run on a bounded worker pool. Multiple scheduler processes can
run concurrently: budgets, leases and the rate gate all coordinate
through shared state.
*/

//nolint:staticcheck // File documentation, not package doc
package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kitsunebi-dev/anidex/internal/config"
	"github.com/kitsunebi-dev/anidex/internal/database"
	"github.com/kitsunebi-dev/anidex/internal/jikan"
	"github.com/kitsunebi-dev/anidex/internal/logging"
	"github.com/kitsunebi-dev/anidex/internal/metrics"
	"github.com/kitsunebi-dev/anidex/internal/models"
	jikanmodels "github.com/kitsunebi-dev/anidex/internal/models/jikan"
)

// refreshBucket is the budget bucket charged by the refresh scheduler.
const refreshBucket = "daily-refresh"

// notFoundPostpone is how far a vanished upstream entity is pushed out
// before the next attempt.
const notFoundPostpone = 30 * 24 * time.Hour

// ErrBudgetExhausted is returned by on-demand refreshes when the daily
// budget denies the request.
var ErrBudgetExhausted = errors.New("daily ingest budget exhausted")

// Fetcher is the upstream surface the scheduler needs. Satisfied by
// jikan.CircuitBreakerClient.
type Fetcher interface {
	GetAnimeFull(ctx context.Context, malID int) (*jikanmodels.Anime, error)
	GetMangaFull(ctx context.Context, malID int) (*jikanmodels.Manga, error)
	GetCharacter(ctx context.Context, malID int) (*jikanmodels.Character, error)
	GetPerson(ctx context.Context, malID int) (*jikanmodels.Person, error)
	GetProducer(ctx context.Context, malID int) (*jikanmodels.Producer, error)
	GetAnimeGenres(ctx context.Context) ([]jikanmodels.Genre, error)
	GetMangaGenres(ctx context.Context) ([]jikanmodels.Genre, error)
}

// EventPublisher emits entity-ingested events. A nil publisher disables
// events.
type EventPublisher interface {
	PublishEntityIngested(ctx context.Context, entityType string, malID int, title string) error
}

// Scheduler polls for due entities and refreshes them under budget,
// lease and rate-gate control.
type Scheduler struct {
	db       *database.DB
	fetch    Fetcher
	budget   *Budget
	leases   *LeaseManager
	ingestor *Ingestor
	events   EventPublisher

	interval    time.Duration
	batchSize   int
	workers     int
	budgetPause time.Duration

	now func() time.Time
}

// NewScheduler wires the refresh scheduler. events may be nil.
func NewScheduler(cfg *config.IngestConfig, db *database.DB, fetch Fetcher, budget *Budget, leases *LeaseManager, ingestor *Ingestor, events EventPublisher) *Scheduler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{
		db:          db,
		fetch:       fetch,
		budget:      budget,
		leases:      leases,
		ingestor:    ingestor,
		events:      events,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		workers:     workers,
		budgetPause: cfg.BudgetPause,
		now:         time.Now,
	}
}

// Serve runs the poll loop until the context is cancelled. Implements
// the suture service contract.
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", s.interval).
		Int("batch_size", s.batchSize).
		Int("workers", s.workers).
		Msg("Refresh scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Refresh scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runOnce(ctx); err != nil && ctx.Err() == nil {
				logging.Error().Err(err).Msg("Scheduler pass failed")
			}
		}
	}
}

// runOnce executes one scheduler pass.
func (s *Scheduler) runOnce(ctx context.Context) error {
	metrics.SchedulerRuns.Inc()

	due, err := s.db.DueForRefresh(ctx, s.now().UTC(), s.batchSize)
	if err != nil {
		return err
	}
	metrics.SchedulerEntitiesDue.Set(float64(len(due)))
	if len(due) == 0 {
		return nil
	}

	logging.Debug().Int("due", len(due)).Msg("Scheduler pass selected due entities")

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	genresSynced := false

dispatch:
	for _, entity := range due {
		select {
		case <-ctx.Done():
			break dispatch
		default:
		}

		// Genre rows refresh as one batch per pass: the list endpoints
		// return every genre in a single request.
		if entity.EntityType == models.EntityGenre {
			if !genresSynced {
				genresSynced = true
				if err := s.SyncGenres(ctx); err != nil {
					logging.Warn().Err(err).Msg("Genre sync failed")
				}
			}
			continue
		}

		// Budget is charged before dispatch so a denial stops the pass
		// instead of racing workers into it.
		ok, err := s.budget.WithinBudget(ctx, refreshBucket, 1)
		if err != nil {
			return err
		}
		if !ok {
			logging.Warn().
				Dur("pause", s.budgetPause).
				Msg("Budget exhausted, pausing refresh pass")
			if err := sleepCtx(ctx, s.budgetPause); err != nil {
				break dispatch
			}
			break dispatch
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(e *models.CatalogEntity) {
			defer wg.Done()
			defer func() { <-sem }()
			s.refreshEntity(logging.ContextWithWorkerID(ctx, logging.GenerateRequestID()), e)
		}(entity)
	}

	wg.Wait()
	return nil
}

// refreshEntity fetches and upserts one entity under its lease.
func (s *Scheduler) refreshEntity(ctx context.Context, e *models.CatalogEntity) {
	held, err := s.leases.Acquire(ctx, e.EntityType, e.MalID)
	if err != nil {
		logging.Error().
			Str("entity_type", e.EntityType).
			Int("mal_id", e.MalID).
			Err(err).
			Msg("Lease acquisition failed")
		return
	}
	if !held {
		return
	}
	defer s.leases.Release(ctx, e.EntityType, e.MalID)

	title, err := s.fetchAndUpsert(ctx, e.EntityType, e.MalID)
	if err != nil {
		if jikan.IsNotFound(err) {
			logging.Warn().
				Str("entity_type", e.EntityType).
				Int("mal_id", e.MalID).
				Msg("Entity gone upstream, postponing refresh")
			if perr := s.db.PostponeRefresh(ctx, e.EntityType, e.MalID, s.now().UTC().Add(notFoundPostpone)); perr != nil {
				logging.Error().Err(perr).Msg("Failed to postpone refresh")
			}
			return
		}
		logging.Error().
			Str("entity_type", e.EntityType).
			Int("mal_id", e.MalID).
			Err(err).
			Msg("Entity refresh failed")
		return
	}

	logging.Ctx(ctx).Debug().
		Str("entity_type", e.EntityType).
		Int("mal_id", e.MalID).
		Str("title", title).
		Msg("Entity refreshed")

	s.publish(ctx, e.EntityType, e.MalID, title)
}

// fetchAndUpsert performs the type-specific fetch, mapping and upsert.
// Returns the entity title for logging and events.
func (s *Scheduler) fetchAndUpsert(ctx context.Context, entityType string, malID int) (string, error) {
	switch entityType {
	case models.EntityAnime:
		a, err := s.fetch.GetAnimeFull(ctx, malID)
		if err != nil {
			return "", err
		}
		idx, status := MapAnime(a)
		return a.Title, s.ingestor.UpsertEntity(ctx, entityType, malID, a, idx, status, a)

	case models.EntityManga:
		m, err := s.fetch.GetMangaFull(ctx, malID)
		if err != nil {
			return "", err
		}
		idx, status := MapManga(m)
		return m.Title, s.ingestor.UpsertEntity(ctx, entityType, malID, m, idx, status, m)

	case models.EntityCharacter:
		c, err := s.fetch.GetCharacter(ctx, malID)
		if err != nil {
			return "", err
		}
		return c.Name, s.ingestor.UpsertEntity(ctx, entityType, malID, c, MapCharacter(c), nil, nil)

	case models.EntityPerson:
		p, err := s.fetch.GetPerson(ctx, malID)
		if err != nil {
			return "", err
		}
		return p.Name, s.ingestor.UpsertEntity(ctx, entityType, malID, p, MapPerson(p), nil, nil)

	case models.EntityProducer:
		p, err := s.fetch.GetProducer(ctx, malID)
		if err != nil {
			return "", err
		}
		idx := MapProducer(p)
		return idx.Title, s.ingestor.UpsertEntity(ctx, entityType, malID, p, idx, nil, nil)

	default:
		logging.Warn().Str("entity_type", entityType).Msg("Unknown entity type, skipping")
		return "", nil
	}
}

// RefreshNow runs the full budget, lease, fetch, upsert pipeline for a
// single entity on demand. Used by the admin API; the budget and lease
// rules are the same ones the periodic pass enforces.
func (s *Scheduler) RefreshNow(ctx context.Context, entityType string, malID int) error {
	ok, err := s.budget.WithinBudget(ctx, refreshBucket, 1)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBudgetExhausted
	}
	s.refreshEntity(ctx, &models.CatalogEntity{EntityType: entityType, MalID: malID})
	return nil
}

// SyncGenres fetches both genre lists and upserts every entry. Two
// upstream requests total, charged against the budget.
func (s *Scheduler) SyncGenres(ctx context.Context) error {
	ok, err := s.budget.WithinBudget(ctx, refreshBucket, 2)
	if err != nil {
		return err
	}
	if !ok {
		logging.Warn().Msg("Budget exhausted, skipping genre sync")
		return nil
	}

	animeGenres, err := s.fetch.GetAnimeGenres(ctx)
	if err != nil {
		return err
	}
	mangaGenres, err := s.fetch.GetMangaGenres(ctx)
	if err != nil {
		return err
	}

	// One genre ID can appear in both lists; the second upsert wins,
	// which is fine since both carry the same name.
	count := 0
	for _, lists := range [][]jikanmodels.Genre{animeGenres, mangaGenres} {
		for i := range lists {
			g := lists[i]
			if err := s.ingestor.UpsertEntity(ctx, models.EntityGenre, g.MalID, g, MapGenre(&g), nil, nil); err != nil {
				return err
			}
			count++
		}
	}

	logging.Info().Int("genres", count).Msg("Genre catalog synced")
	return nil
}

// publish emits the entity-ingested event when a publisher is wired.
func (s *Scheduler) publish(ctx context.Context, entityType string, malID int, title string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEntityIngested(ctx, entityType, malID, title); err != nil {
		metrics.EventPublishErrors.Inc()
		logging.Warn().
			Str("entity_type", entityType).
			Int("mal_id", malID).
			Err(err).
			Msg("Failed to publish entity-ingested event")
	}
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
