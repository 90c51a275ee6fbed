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
	"strings"
	"time"

	"github.com/kitsunebi-dev/anidex/internal/metrics"
	"github.com/kitsunebi-dev/anidex/internal/models"
)

// ErrEntityNotFound is returned when no catalog row exists for the key.
var ErrEntityNotFound = errors.New("catalog entity not found")

// entityColumns is the scan order shared by every catalog read.
const entityColumns = `entity_type, mal_id, title, title_english, title_japanese,
	media_type, status, season, year, episodes, chapters, volumes,
	score, scored_by, rank, popularity, members, synopsis,
	image_url, trailer_url, external_links, payload, payload_full,
	last_fetched_at, next_refresh_at, created_at, updated_at`

// UpsertCatalogEntity inserts or fully replaces the row for the entity's
// (entity_type, mal_id) key. The second write for a key supersedes the
// first: every provided column is overwritten, none are merged.
// Retries transaction conflicts with exponential backoff.
func (db *DB) UpsertCatalogEntity(ctx context.Context, e *models.CatalogEntity) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	const maxRetries = 3
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := db.doUpsertCatalogEntity(ctx, e)
		if err == nil {
			metrics.EntityUpserts.WithLabelValues(e.EntityType).Inc()
			return nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("operation timed out or canceled: %w", ctx.Err())
		}

		if isTransactionConflict(err) {
			if attempt < maxRetries-1 {
				backoff := time.Millisecond * time.Duration(1<<uint(attempt)) // 1ms, 2ms, 4ms
				select {
				case <-time.After(backoff):
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}

		metrics.EntityUpsertErrors.WithLabelValues(e.EntityType).Inc()
		return err
	}

	metrics.EntityUpsertErrors.WithLabelValues(e.EntityType).Inc()
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doUpsertCatalogEntity performs the actual upsert operation (internal helper)
func (db *DB) doUpsertCatalogEntity(ctx context.Context, e *models.CatalogEntity) error {
	query := `INSERT INTO catalog_entities (
		entity_type, mal_id, title, title_english, title_japanese,
		media_type, status, season, year, episodes, chapters, volumes,
		score, scored_by, rank, popularity, members, synopsis,
		image_url, trailer_url, external_links, payload, payload_full,
		last_fetched_at, next_refresh_at, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (entity_type, mal_id) DO UPDATE SET
		title = EXCLUDED.title,
		title_english = EXCLUDED.title_english,
		title_japanese = EXCLUDED.title_japanese,
		media_type = EXCLUDED.media_type,
		status = EXCLUDED.status,
		season = EXCLUDED.season,
		year = EXCLUDED.year,
		episodes = EXCLUDED.episodes,
		chapters = EXCLUDED.chapters,
		volumes = EXCLUDED.volumes,
		score = EXCLUDED.score,
		scored_by = EXCLUDED.scored_by,
		rank = EXCLUDED.rank,
		popularity = EXCLUDED.popularity,
		members = EXCLUDED.members,
		synopsis = EXCLUDED.synopsis,
		image_url = EXCLUDED.image_url,
		trailer_url = EXCLUDED.trailer_url,
		external_links = EXCLUDED.external_links,
		payload = EXCLUDED.payload,
		payload_full = EXCLUDED.payload_full,
		last_fetched_at = EXCLUDED.last_fetched_at,
		next_refresh_at = EXCLUDED.next_refresh_at,
		updated_at = EXCLUDED.updated_at`

	now := time.Now().UTC()
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := e.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	_, err := db.conn.ExecContext(ctx, query,
		e.EntityType, e.MalID, e.Title, e.TitleEnglish, e.TitleJapanese,
		e.MediaType, e.Status, e.Season, e.Year, e.Episodes, e.Chapters, e.Volumes,
		e.Score, e.ScoredBy, e.Rank, e.Popularity, e.Members, e.Synopsis,
		e.ImageURL, e.TrailerURL, e.ExternalLinks, e.Payload, e.PayloadFull,
		nullTime(e.LastFetchedAt), nullTime(e.NextRefreshAt), createdAt, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert catalog entity %s/%d: %w", e.EntityType, e.MalID, err)
	}
	return nil
}

// GetCatalogEntity fetches one row or ErrEntityNotFound.
func (db *DB) GetCatalogEntity(ctx context.Context, entityType string, malID int) (*models.CatalogEntity, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + entityColumns + ` FROM catalog_entities WHERE entity_type = ? AND mal_id = ?`
	row := db.conn.QueryRowContext(ctx, query, entityType, malID)

	e, err := scanCatalogEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog entity %s/%d: %w", entityType, malID, err)
	}
	return e, nil
}

// CatalogFilter narrows ListCatalogEntities. Zero values mean "no
// constraint"; Page is 1-based.
type CatalogFilter struct {
	EntityType string
	Status     string
	Season     string
	Year       int
	MinScore   float64
	OrderBy    string // "score", "rank", "popularity", "title", "mal_id" (default)
	Page       int
	PageSize   int
}

// orderColumn maps the requested sort to a whitelisted column. Anything
// unknown falls back to mal_id so a query parameter can never inject SQL.
func (f CatalogFilter) orderColumn() string {
	switch f.OrderBy {
	case "score":
		return "score DESC NULLS LAST"
	case "rank":
		return "rank ASC NULLS LAST"
	case "popularity":
		return "popularity ASC NULLS LAST"
	case "title":
		return "title ASC"
	default:
		return "mal_id ASC"
	}
}

// ListCatalogEntities returns one page of matching rows plus the total
// match count for pagination.
func (db *DB) ListCatalogEntities(ctx context.Context, filter CatalogFilter) ([]*models.CatalogEntity, int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var conditions []string
	var args []interface{}

	if filter.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.Status != "" {
		conditions = append(conditions, "LOWER(status) = LOWER(?)")
		args = append(args, filter.Status)
	}
	if filter.Season != "" {
		conditions = append(conditions, "LOWER(season) = LOWER(?)")
		args = append(args, filter.Season)
	}
	if filter.Year > 0 {
		conditions = append(conditions, "year = ?")
		args = append(args, filter.Year)
	}
	if filter.MinScore > 0 {
		conditions = append(conditions, "score >= ?")
		args = append(args, filter.MinScore)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM catalog_entities" + where
	if err := db.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count catalog entities: %w", err)
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	query := "SELECT " + entityColumns + " FROM catalog_entities" + where +
		" ORDER BY " + filter.orderColumn() + " LIMIT ? OFFSET ?"
	args = append(args, pageSize, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list catalog entities: %w", err)
	}
	defer rows.Close()

	var entities []*models.CatalogEntity
	for rows.Next() {
		e, err := scanCatalogEntity(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan catalog entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, total, rows.Err()
}

// DueForRefresh returns up to limit entities whose next_refresh_at has
// passed, oldest first. Rows never fetched (null next_refresh_at) do not
// appear; they enter the catalog through seeding, which sets the column.
func (db *DB) DueForRefresh(ctx context.Context, now time.Time, limit int) ([]*models.CatalogEntity, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + entityColumns + ` FROM catalog_entities
		WHERE next_refresh_at IS NOT NULL AND next_refresh_at <= ?
		ORDER BY next_refresh_at ASC
		LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due entities: %w", err)
	}
	defer rows.Close()

	var entities []*models.CatalogEntity
	for rows.Next() {
		e, err := scanCatalogEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// PostponeRefresh pushes the entity's next_refresh_at to until without
// touching any other column. Used when a fetch cannot succeed right now
// (entity deleted upstream) so the scheduler stops re-selecting the row
// every pass.
func (db *DB) PostponeRefresh(ctx context.Context, entityType string, malID int, until time.Time) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`UPDATE catalog_entities SET next_refresh_at = ?, updated_at = ? WHERE entity_type = ? AND mal_id = ?`,
		until, time.Now().UTC(), entityType, malID)
	if err != nil {
		return fmt.Errorf("failed to postpone refresh for %s/%d: %w", entityType, malID, err)
	}
	return nil
}

// CatalogStats summarizes the catalog for the stats endpoint.
type CatalogStats struct {
	Total        int            `json:"total"`
	ByEntityType map[string]int `json:"by_entity_type"`
	DueNow       int            `json:"due_now"`
}

// GetCatalogStats returns per-type row counts and the current refresh
// backlog size.
func (db *DB) GetCatalogStats(ctx context.Context) (*CatalogStats, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	stats := &CatalogStats{ByEntityType: make(map[string]int)}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT entity_type, COUNT(*) FROM catalog_entities GROUP BY entity_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entityType string
		var count int
		if err := rows.Scan(&entityType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan catalog stats: %w", err)
		}
		stats.ByEntityType[entityType] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM catalog_entities WHERE next_refresh_at IS NOT NULL AND next_refresh_at <= ?`,
		time.Now().UTC()).Scan(&stats.DueNow)
	if err != nil {
		return nil, fmt.Errorf("failed to count due entities: %w", err)
	}

	return stats, nil
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// scanner abstracts sql.Row and sql.Rows for shared scan code.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanCatalogEntity scans one row in entityColumns order.
func scanCatalogEntity(s scanner) (*models.CatalogEntity, error) {
	var e models.CatalogEntity
	var lastFetched, nextRefresh sql.NullTime

	err := s.Scan(
		&e.EntityType, &e.MalID, &e.Title, &e.TitleEnglish, &e.TitleJapanese,
		&e.MediaType, &e.Status, &e.Season, &e.Year, &e.Episodes, &e.Chapters, &e.Volumes,
		&e.Score, &e.ScoredBy, &e.Rank, &e.Popularity, &e.Members, &e.Synopsis,
		&e.ImageURL, &e.TrailerURL, &e.ExternalLinks, &e.Payload, &e.PayloadFull,
		&lastFetched, &nextRefresh, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastFetched.Valid {
		e.LastFetchedAt = lastFetched.Time
	}
	if nextRefresh.Valid {
		e.NextRefreshAt = nextRefresh.Time
	}
	return &e, nil
}
