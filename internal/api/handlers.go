// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/kitsunebi-dev/anidex/internal/config"
	"github.com/kitsunebi-dev/anidex/internal/database"
	"github.com/kitsunebi-dev/anidex/internal/ingest"
	"github.com/kitsunebi-dev/anidex/internal/models"
)

// refreshBucket mirrors the scheduler's budget bucket for the stats view.
const refreshBucket = "daily-refresh"

// Refresher is the on-demand ingest surface the admin endpoints use.
// Satisfied by ingest.Scheduler; nil when ingestion is disabled.
type Refresher interface {
	RefreshNow(ctx context.Context, entityType string, malID int) error
	SyncGenres(ctx context.Context) error
}

// Handler serves all API endpoints from the local catalog.
type Handler struct {
	db        *database.DB
	budget    *ingest.Budget
	refresher Refresher
	cfg       *config.APIConfig
	startTime time.Time
}

// NewHandler creates the API handler. refresher and budget may be nil
// when ingestion is disabled; the admin and budget endpoints then answer
// 503.
func NewHandler(db *database.DB, budget *ingest.Budget, refresher Refresher, cfg *config.APIConfig) *Handler {
	return &Handler{
		db:        db,
		budget:    budget,
		refresher: refresher,
		cfg:       cfg,
		startTime: time.Now(),
	}
}

// adminEntityTypes are the entity types accepted by the admin refresh
// trigger. Genres refresh through the batch sync endpoint instead.
var adminEntityTypes = map[string]bool{
	models.EntityAnime:     true,
	models.EntityManga:     true,
	models.EntityCharacter: true,
	models.EntityPerson:    true,
	models.EntityProducer:  true,
}

// healthResponse is the body of /api/v1/health.
type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Database      string `json:"database"`
}

// Health reports liveness plus a database ping.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Database:      "ok",
	}
	if err := h.db.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Database = err.Error()
	}
	rw.Success(resp)
}

// HealthLive always answers 200; used by container liveness probes.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "ok"})
}

// HealthReady answers 200 once the database accepts queries.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if err := h.db.Ping(r.Context()); err != nil {
		rw.ServiceUnavailable("database not ready")
		return
	}
	rw.Success(map[string]string{"status": "ready"})
}

// ListEntities returns a catalog page for the route's entity type,
// filtered and ordered by query parameters.
func (h *Handler) ListEntities(entityType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rw := NewResponseWriter(w, r)

		filter, ok := h.parseFilter(rw, r, entityType)
		if !ok {
			return
		}

		entities, total, err := h.db.ListCatalogEntities(r.Context(), filter)
		if err != nil {
			rw.InternalError(err)
			return
		}

		rw.SuccessWithPagination(entities, &PaginationMeta{
			Total:    total,
			Count:    len(entities),
			Page:     filter.Page,
			PageSize: filter.PageSize,
			HasMore:  filter.Page*filter.PageSize < total,
		})
	}
}

// entityDetail is the body of the entity detail endpoints: the indexed
// columns plus the stored upstream documents as raw JSON.
type entityDetail struct {
	*models.CatalogEntity
	Payload     json.RawMessage `json:"payload"`
	PayloadFull json.RawMessage `json:"payload_full,omitempty"`
}

// GetEntity returns one entity with its stored payload.
func (h *Handler) GetEntity(entityType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rw := NewResponseWriter(w, r)

		malID, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil || malID <= 0 {
			rw.BadRequest("id must be a positive integer")
			return
		}

		entity, err := h.db.GetCatalogEntity(r.Context(), entityType, malID)
		if err != nil {
			if errors.Is(err, database.ErrEntityNotFound) {
				rw.NotFound("entity not found")
				return
			}
			rw.InternalError(err)
			return
		}

		detail := entityDetail{
			CatalogEntity: entity,
			Payload:       json.RawMessage(entity.Payload),
		}
		if entity.PayloadFull != nil {
			detail.PayloadFull = json.RawMessage(*entity.PayloadFull)
		}
		rw.Success(detail)
	}
}

// statsResponse is the body of /api/v1/catalog/stats.
type statsResponse struct {
	Catalog *database.CatalogStats `json:"catalog"`
	Budget  *budgetStats           `json:"budget,omitempty"`
}

type budgetStats struct {
	Bucket string `json:"bucket"`
	Used   int    `json:"used"`
	Limit  int    `json:"limit"`
}

// Stats reports catalog row counts, the refresh backlog and today's
// budget usage.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	catalog, err := h.db.GetCatalogStats(r.Context())
	if err != nil {
		rw.InternalError(err)
		return
	}

	resp := statsResponse{Catalog: catalog}
	if h.budget != nil {
		used, limit, err := h.budget.Usage(r.Context(), refreshBucket)
		if err == nil {
			resp.Budget = &budgetStats{Bucket: refreshBucket, Used: used, Limit: limit}
		}
	}
	rw.Success(resp)
}

// AdminRefresh triggers an on-demand refresh of one entity through the
// regular budget and lease pipeline.
func (h *Handler) AdminRefresh(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.refresher == nil {
		rw.ServiceUnavailable("ingestion is disabled")
		return
	}

	entityType := chi.URLParam(r, "type")
	if !adminEntityTypes[entityType] {
		rw.BadRequest("unknown entity type")
		return
	}
	malID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || malID <= 0 {
		rw.BadRequest("id must be a positive integer")
		return
	}

	if err := h.refresher.RefreshNow(r.Context(), entityType, malID); err != nil {
		if errors.Is(err, ingest.ErrBudgetExhausted) {
			rw.TooManyRequests(ErrCodeBudgetExhausted, "daily ingest budget exhausted")
			return
		}
		rw.InternalError(err)
		return
	}

	rw.Accepted(map[string]interface{}{
		"entity_type": entityType,
		"mal_id":      malID,
	})
}

// AdminSyncGenres triggers a full genre catalog sync.
func (h *Handler) AdminSyncGenres(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.refresher == nil {
		rw.ServiceUnavailable("ingestion is disabled")
		return
	}
	if err := h.refresher.SyncGenres(r.Context()); err != nil {
		rw.InternalError(err)
		return
	}
	rw.Accepted(map[string]string{"status": "synced"})
}

// parseFilter reads list query parameters, clamping pagination to the
// configured bounds. Invalid numeric parameters answer 400 and return
// ok=false.
func (h *Handler) parseFilter(rw *ResponseWriter, r *http.Request, entityType string) (database.CatalogFilter, bool) {
	q := r.URL.Query()
	filter := database.CatalogFilter{
		EntityType: entityType,
		Status:     q.Get("status"),
		Season:     q.Get("season"),
		OrderBy:    q.Get("order_by"),
		Page:       1,
		PageSize:   h.cfg.DefaultPageSize,
	}

	if v := q.Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			rw.BadRequest("year must be an integer")
			return filter, false
		}
		filter.Year = year
	}
	if v := q.Get("min_score"); v != "" {
		score, err := strconv.ParseFloat(v, 64)
		if err != nil {
			rw.BadRequest("min_score must be a number")
			return filter, false
		}
		filter.MinScore = score
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			rw.BadRequest("page must be a positive integer")
			return filter, false
		}
		filter.Page = page
	}
	if v := q.Get("page_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size < 1 {
			rw.BadRequest("page_size must be a positive integer")
			return filter, false
		}
		filter.PageSize = size
	}
	if filter.PageSize > h.cfg.MaxPageSize {
		filter.PageSize = h.cfg.MaxPageSize
	}
	return filter, true
}
