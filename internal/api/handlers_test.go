// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/kitsunebi-dev/anidex/internal/config"
	"github.com/kitsunebi-dev/anidex/internal/database"
	"github.com/kitsunebi-dev/anidex/internal/ingest"
	"github.com/kitsunebi-dev/anidex/internal/models"
)

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

func testAPIConfig() *config.APIConfig {
	return &config.APIConfig{
		DefaultPageSize: 25,
		MaxPageSize:     50,
		RateLimitReqs:   1000,
		RateLimitWindow: time.Minute,
	}
}

// fakeRefresher records admin trigger calls and returns scripted errors.
type fakeRefresher struct {
	refreshErr error
	syncErr    error
	refreshed  []string
	synced     int
}

func (f *fakeRefresher) RefreshNow(_ context.Context, entityType string, malID int) error {
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.refreshed = append(f.refreshed, entityType+"/"+strconv.Itoa(malID))
	return nil
}

func (f *fakeRefresher) SyncGenres(_ context.Context) error {
	if f.syncErr != nil {
		return f.syncErr
	}
	f.synced++
	return nil
}

func newTestServer(t *testing.T, db *database.DB, refresher Refresher) *httptest.Server {
	t.Helper()

	cfg := testAPIConfig()
	handler := NewHandler(db, nil, refresher, cfg)
	server := httptest.NewServer(NewRouter(handler, cfg).Setup())
	t.Cleanup(server.Close)
	return server
}

func seedEntity(t *testing.T, db *database.DB, entityType string, malID int, title string, score float64) {
	t.Helper()

	now := time.Now().UTC()
	e := &models.CatalogEntity{
		EntityType:    entityType,
		MalID:         malID,
		Title:         title,
		Payload:       `{"mal_id":` + strconv.Itoa(malID) + `,"title":"` + title + `"}`,
		LastFetchedAt: now,
		NextRefreshAt: now.Add(24 * time.Hour),
	}
	if score > 0 {
		e.Score = &score
	}
	if err := db.UpsertCatalogEntity(context.Background(), e); err != nil {
		t.Fatalf("failed to seed entity: %v", err)
	}
}

// decodeResponse unmarshals the envelope, leaving data raw.
func decodeResponse(t *testing.T, resp *http.Response) (APIResponse, json.RawMessage) {
	t.Helper()
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *APIError       `json:"error"`
		Meta    *APIMeta        `json:"meta"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return APIResponse{
		Success: envelope.Success,
		Error:   envelope.Error,
		Meta:    envelope.Meta,
	}, envelope.Data
}

func TestHealthEndpoints(t *testing.T) {
	db := setupTestDB(t)
	server := newTestServer(t, db, nil)

	for _, path := range []string{"/api/v1/health", "/api/v1/health/live", "/api/v1/health/ready"} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		envelope, _ := decodeResponse(t, resp)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
		if !envelope.Success {
			t.Errorf("GET %s returned success=false", path)
		}
	}
}

func TestListEntities_FiltersByType(t *testing.T) {
	db := setupTestDB(t)
	seedEntity(t, db, models.EntityAnime, 1, "Cowboy Bebop", 8.75)
	seedEntity(t, db, models.EntityAnime, 5, "Trigun", 8.2)
	seedEntity(t, db, models.EntityManga, 2, "Berserk", 9.4)
	server := newTestServer(t, db, nil)

	resp, err := http.Get(server.URL + "/api/v1/anime?order_by=score")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	envelope, data := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var entities []models.CatalogEntity
	if err := json.Unmarshal(data, &entities); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("got %d anime, want 2", len(entities))
	}
	if entities[0].Title != "Cowboy Bebop" {
		t.Errorf("first by score = %s, want Cowboy Bebop", entities[0].Title)
	}

	p := envelope.Meta.Pagination
	if p == nil || p.Total != 2 || p.Count != 2 || p.HasMore {
		t.Errorf("pagination meta wrong: %+v", p)
	}
}

func TestListEntities_PageSizeClamped(t *testing.T) {
	db := setupTestDB(t)
	seedEntity(t, db, models.EntityAnime, 1, "One", 0)
	server := newTestServer(t, db, nil)

	resp, err := http.Get(server.URL + "/api/v1/anime?page_size=10000")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	envelope, _ := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if envelope.Meta.Pagination.PageSize != testAPIConfig().MaxPageSize {
		t.Errorf("page_size = %d, want clamped to %d",
			envelope.Meta.Pagination.PageSize, testAPIConfig().MaxPageSize)
	}
}

func TestListEntities_BadQueryParam(t *testing.T) {
	db := setupTestDB(t)
	server := newTestServer(t, db, nil)

	resp, err := http.Get(server.URL + "/api/v1/anime?year=not-a-year")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	envelope, _ := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeBadRequest {
		t.Errorf("error = %+v, want code %s", envelope.Error, ErrCodeBadRequest)
	}
}

func TestGetEntity_ReturnsPayload(t *testing.T) {
	db := setupTestDB(t)
	seedEntity(t, db, models.EntityAnime, 1, "Cowboy Bebop", 8.75)
	server := newTestServer(t, db, nil)

	resp, err := http.Get(server.URL + "/api/v1/anime/1")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	_, data := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(data), `"payload"`) {
		t.Errorf("detail missing raw payload: %s", data)
	}
}

func TestGetEntity_NotFound(t *testing.T) {
	db := setupTestDB(t)
	server := newTestServer(t, db, nil)

	resp, err := http.Get(server.URL + "/api/v1/anime/99999")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	envelope, _ := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeNotFound {
		t.Errorf("error = %+v, want code %s", envelope.Error, ErrCodeNotFound)
	}
}

func TestGetEntity_InvalidID(t *testing.T) {
	db := setupTestDB(t)
	server := newTestServer(t, db, nil)

	resp, err := http.Get(server.URL + "/api/v1/anime/zero")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStats(t *testing.T) {
	db := setupTestDB(t)
	seedEntity(t, db, models.EntityAnime, 1, "One", 0)
	seedEntity(t, db, models.EntityManga, 2, "Two", 0)
	server := newTestServer(t, db, nil)

	resp, err := http.Get(server.URL + "/api/v1/catalog/stats")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	_, data := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var stats statsResponse
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.Catalog == nil || stats.Catalog.Total != 2 {
		t.Errorf("catalog stats wrong: %+v", stats.Catalog)
	}
}

func TestAdminRefresh(t *testing.T) {
	db := setupTestDB(t)
	refresher := &fakeRefresher{}
	server := newTestServer(t, db, refresher)

	resp, err := http.Post(server.URL+"/api/v1/admin/refresh/anime/1", "", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
	if len(refresher.refreshed) != 1 || refresher.refreshed[0] != "anime/1" {
		t.Errorf("refresher calls = %v, want [anime/1]", refresher.refreshed)
	}
}

func TestAdminRefresh_Validation(t *testing.T) {
	db := setupTestDB(t)
	server := newTestServer(t, db, &fakeRefresher{})

	for _, path := range []string{
		"/api/v1/admin/refresh/genre/1",  // genres sync as a batch
		"/api/v1/admin/refresh/anime/-3", // non-positive id
		"/api/v1/admin/refresh/anime/x",  // non-numeric id
	} {
		resp, err := http.Post(server.URL+path, "", nil)
		if err != nil {
			t.Fatalf("POST %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("POST %s = %d, want 400", path, resp.StatusCode)
		}
	}
}

func TestAdminRefresh_BudgetExhausted(t *testing.T) {
	db := setupTestDB(t)
	server := newTestServer(t, db, &fakeRefresher{refreshErr: ingest.ErrBudgetExhausted})

	resp, err := http.Post(server.URL+"/api/v1/admin/refresh/anime/1", "", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	envelope, _ := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeBudgetExhausted {
		t.Errorf("error = %+v, want code %s", envelope.Error, ErrCodeBudgetExhausted)
	}
}

func TestAdminEndpoints_IngestDisabled(t *testing.T) {
	db := setupTestDB(t)
	server := newTestServer(t, db, nil)

	for _, path := range []string{
		"/api/v1/admin/refresh/anime/1",
		"/api/v1/admin/sync-genres",
	} {
		resp, err := http.Post(server.URL+path, "", nil)
		if err != nil {
			t.Fatalf("POST %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("POST %s = %d, want 503", path, resp.StatusCode)
		}
	}
}

func TestAdminSyncGenres(t *testing.T) {
	db := setupTestDB(t)
	refresher := &fakeRefresher{}
	server := newTestServer(t, db, refresher)

	resp, err := http.Post(server.URL+"/api/v1/admin/sync-genres", "", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
	if refresher.synced != 1 {
		t.Errorf("synced %d times, want 1", refresher.synced)
	}
}

func TestResponses_CarryRequestID(t *testing.T) {
	db := setupTestDB(t)
	server := newTestServer(t, db, nil)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/v1/health", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("X-Request-ID", "trace-me-1234")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	envelope, _ := decodeResponse(t, resp)

	if got := resp.Header.Get("X-Request-ID"); got != "trace-me-1234" {
		t.Errorf("X-Request-ID header = %q, want trace-me-1234", got)
	}
	if envelope.Meta == nil || envelope.Meta.RequestID != "trace-me-1234" {
		t.Errorf("meta request_id = %+v, want trace-me-1234", envelope.Meta)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	db := setupTestDB(t)
	server := newTestServer(t, db, nil)

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
