// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package ingest

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/kitsunebi-dev/anidex/internal/database"
	"github.com/kitsunebi-dev/anidex/internal/jikan"
	"github.com/kitsunebi-dev/anidex/internal/models"
	jikanmodels "github.com/kitsunebi-dev/anidex/internal/models/jikan"
)

// fakeFetcher serves scripted documents and records fetch counts per
// (entityType, malID).
type fakeFetcher struct {
	mu      sync.Mutex
	fetches map[string]int

	anime      map[int]*jikanmodels.Anime
	manga      map[int]*jikanmodels.Manga
	characters map[int]*jikanmodels.Character
	people     map[int]*jikanmodels.Person
	producers  map[int]*jikanmodels.Producer

	animeGenres []jikanmodels.Genre
	mangaGenres []jikanmodels.Genre
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		fetches:    make(map[string]int),
		anime:      make(map[int]*jikanmodels.Anime),
		manga:      make(map[int]*jikanmodels.Manga),
		characters: make(map[int]*jikanmodels.Character),
		people:     make(map[int]*jikanmodels.Person),
		producers:  make(map[int]*jikanmodels.Producer),
	}
}

func (f *fakeFetcher) record(entityType string, malID int) {
	f.mu.Lock()
	f.fetches[entityType+":"+strconv.Itoa(malID)]++
	f.mu.Unlock()
}

func (f *fakeFetcher) count(entityType string, malID int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[entityType+":"+strconv.Itoa(malID)]
}

func notFound(path string) error {
	return &jikan.StatusError{Status: http.StatusNotFound, Path: path}
}

func (f *fakeFetcher) GetAnimeFull(_ context.Context, malID int) (*jikanmodels.Anime, error) {
	f.record(models.EntityAnime, malID)
	if a, ok := f.anime[malID]; ok {
		return a, nil
	}
	return nil, notFound("/anime")
}

func (f *fakeFetcher) GetMangaFull(_ context.Context, malID int) (*jikanmodels.Manga, error) {
	f.record(models.EntityManga, malID)
	if m, ok := f.manga[malID]; ok {
		return m, nil
	}
	return nil, notFound("/manga")
}

func (f *fakeFetcher) GetCharacter(_ context.Context, malID int) (*jikanmodels.Character, error) {
	f.record(models.EntityCharacter, malID)
	if c, ok := f.characters[malID]; ok {
		return c, nil
	}
	return nil, notFound("/characters")
}

func (f *fakeFetcher) GetPerson(_ context.Context, malID int) (*jikanmodels.Person, error) {
	f.record(models.EntityPerson, malID)
	if p, ok := f.people[malID]; ok {
		return p, nil
	}
	return nil, notFound("/people")
}

func (f *fakeFetcher) GetProducer(_ context.Context, malID int) (*jikanmodels.Producer, error) {
	f.record(models.EntityProducer, malID)
	if p, ok := f.producers[malID]; ok {
		return p, nil
	}
	return nil, notFound("/producers")
}

func (f *fakeFetcher) GetAnimeGenres(_ context.Context) ([]jikanmodels.Genre, error) {
	f.record(models.EntityGenre, 0)
	return f.animeGenres, nil
}

func (f *fakeFetcher) GetMangaGenres(_ context.Context) ([]jikanmodels.Genre, error) {
	f.record(models.EntityGenre, 0)
	return f.mangaGenres, nil
}

type fakeEvents struct {
	mu        sync.Mutex
	published []string
}

func (f *fakeEvents) PublishEntityIngested(_ context.Context, entityType string, malID int, title string) error {
	f.mu.Lock()
	f.published = append(f.published, entityType+":"+strconv.Itoa(malID)+":"+title)
	f.mu.Unlock()
	return nil
}

func (f *fakeEvents) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func newTestScheduler(t *testing.T, db *database.DB, cfg *testSchedulerConfig) (*Scheduler, *fakeFetcher, *fakeEvents) {
	t.Helper()

	ic := testIngestConfig()
	if cfg != nil && cfg.dailyBudget > 0 {
		ic.DefaultDailyBudget = cfg.dailyBudget
	}

	fetcher := newFakeFetcher()
	events := &fakeEvents{}
	s := NewScheduler(ic, db, fetcher, NewBudget(ic, db), NewLeaseManager(ic, db), NewIngestor(db), events)
	return s, fetcher, events
}

type testSchedulerConfig struct {
	dailyBudget int
}

// seedDue inserts a minimal catalog row whose refresh is already due.
func seedDue(t *testing.T, db *database.DB, entityType string, malID int, title string) {
	t.Helper()

	past := time.Now().UTC().Add(-time.Hour)
	err := db.UpsertCatalogEntity(context.Background(), &models.CatalogEntity{
		EntityType:    entityType,
		MalID:         malID,
		Title:         title,
		Payload:       `{"stale":true}`,
		LastFetchedAt: past.Add(-24 * time.Hour),
		NextRefreshAt: past,
	})
	if err != nil {
		t.Fatalf("failed to seed entity (%s, %d): %v", entityType, malID, err)
	}
}

func TestScheduler_RefreshesDueEntities(t *testing.T) {
	db := setupTestDB(t)
	s, fetcher, events := newTestScheduler(t, db, nil)
	ctx := context.Background()

	seedDue(t, db, models.EntityAnime, 1, "Cowboy Bebop")
	seedDue(t, db, models.EntityManga, 2, "Berserk")

	status := "Finished Airing"
	syn := "Space bounty hunters."
	fetcher.anime[1] = &jikanmodels.Anime{MalID: 1, Title: "Cowboy Bebop", Status: status, Synopsis: &syn}
	fetcher.manga[2] = &jikanmodels.Manga{MalID: 2, Title: "Berserk", Status: "Publishing"}

	if err := s.runOnce(ctx); err != nil {
		t.Fatalf("runOnce failed: %v", err)
	}

	if got := fetcher.count(models.EntityAnime, 1); got != 1 {
		t.Errorf("anime 1 fetched %d times, want 1", got)
	}
	if got := fetcher.count(models.EntityManga, 2); got != 1 {
		t.Errorf("manga 2 fetched %d times, want 1", got)
	}

	got, err := db.GetCatalogEntity(ctx, models.EntityAnime, 1)
	if err != nil {
		t.Fatalf("GetCatalogEntity failed: %v", err)
	}
	if got.Status == nil || *got.Status != status {
		t.Errorf("anime status not refreshed: %v", got.Status)
	}
	if !got.NextRefreshAt.After(time.Now().UTC().Add(29 * 24 * time.Hour)) {
		t.Errorf("finished anime not moved to the 30-day cadence: %v", got.NextRefreshAt)
	}

	if events.count() != 2 {
		t.Errorf("published %d events, want 2", events.count())
	}
}

func TestScheduler_BudgetDenialStopsPass(t *testing.T) {
	db := setupTestDB(t)
	s, fetcher, _ := newTestScheduler(t, db, &testSchedulerConfig{dailyBudget: 2})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		seedDue(t, db, models.EntityAnime, i, "Entry")
		fetcher.anime[i] = &jikanmodels.Anime{MalID: i, Title: "Entry", Status: "Currently Airing"}
	}

	if err := s.runOnce(ctx); err != nil {
		t.Fatalf("runOnce failed: %v", err)
	}

	total := 0
	for i := 1; i <= 5; i++ {
		total += fetcher.count(models.EntityAnime, i)
	}
	if total != 2 {
		t.Errorf("fetched %d entities with budget 2, want 2", total)
	}
}

func TestScheduler_SkipsLeasedEntity(t *testing.T) {
	db := setupTestDB(t)
	s, fetcher, _ := newTestScheduler(t, db, nil)
	ctx := context.Background()

	seedDue(t, db, models.EntityAnime, 1, "Held Elsewhere")
	fetcher.anime[1] = &jikanmodels.Anime{MalID: 1, Title: "Held Elsewhere", Status: "Currently Airing"}

	// Another worker holds a live lease.
	now := time.Now().UTC()
	ok, err := db.AcquireLease(ctx, models.EntityAnime, 1, now, now.Add(time.Hour), "other-worker")
	if err != nil || !ok {
		t.Fatalf("failed to seed foreign lease: ok=%v err=%v", ok, err)
	}

	if err := s.runOnce(ctx); err != nil {
		t.Fatalf("runOnce failed: %v", err)
	}

	if got := fetcher.count(models.EntityAnime, 1); got != 0 {
		t.Errorf("leased entity fetched %d times, want 0", got)
	}

	lease, err := db.GetLease(ctx, models.EntityAnime, 1)
	if err != nil {
		t.Fatalf("GetLease failed: %v", err)
	}
	if lease == nil || lease.LockedBy == nil || *lease.LockedBy != "other-worker" {
		t.Errorf("foreign lease disturbed: %+v", lease)
	}
}

func TestScheduler_GoneEntityPostponed(t *testing.T) {
	db := setupTestDB(t)
	s, fetcher, events := newTestScheduler(t, db, nil)
	ctx := context.Background()

	seedDue(t, db, models.EntityAnime, 404, "Deleted Upstream")
	// No scripted response: the fake returns a 404 status error.

	if err := s.runOnce(ctx); err != nil {
		t.Fatalf("runOnce failed: %v", err)
	}

	if got := fetcher.count(models.EntityAnime, 404); got != 1 {
		t.Fatalf("entity fetched %d times, want 1", got)
	}

	got, err := db.GetCatalogEntity(ctx, models.EntityAnime, 404)
	if err != nil {
		t.Fatalf("GetCatalogEntity failed: %v", err)
	}
	if !got.NextRefreshAt.After(time.Now().UTC().Add(29 * 24 * time.Hour)) {
		t.Errorf("gone entity not postponed: %v", got.NextRefreshAt)
	}
	if got.Payload != `{"stale":true}` {
		t.Errorf("stale payload should be preserved, got %s", got.Payload)
	}
	if events.count() != 0 {
		t.Errorf("published %d events for a failed refresh, want 0", events.count())
	}
}

func TestScheduler_GenresSyncAsOneBatch(t *testing.T) {
	db := setupTestDB(t)
	s, fetcher, _ := newTestScheduler(t, db, nil)
	ctx := context.Background()

	// Several due genre rows must trigger exactly one sync pass.
	seedDue(t, db, models.EntityGenre, 1, "Action")
	seedDue(t, db, models.EntityGenre, 2, "Adventure")
	seedDue(t, db, models.EntityGenre, 4, "Comedy")

	fetcher.animeGenres = []jikanmodels.Genre{
		{MalID: 1, Name: "Action", Count: 5000},
		{MalID: 2, Name: "Adventure", Count: 3000},
	}
	fetcher.mangaGenres = []jikanmodels.Genre{
		{MalID: 1, Name: "Action", Count: 6000},
		{MalID: 4, Name: "Comedy", Count: 4000},
	}

	if err := s.runOnce(ctx); err != nil {
		t.Fatalf("runOnce failed: %v", err)
	}

	// Both list endpoints hit once each.
	if got := fetcher.count(models.EntityGenre, 0); got != 2 {
		t.Errorf("genre list endpoints hit %d times, want 2", got)
	}

	for _, id := range []int{1, 2, 4} {
		got, err := db.GetCatalogEntity(ctx, models.EntityGenre, id)
		if err != nil {
			t.Errorf("genre %d not upserted: %v", id, err)
			continue
		}
		if got.NextRefreshAt.Before(time.Now().UTC().Add(13 * 24 * time.Hour)) {
			t.Errorf("genre %d not on the biweekly cadence: %v", id, got.NextRefreshAt)
		}
	}
}

func TestScheduler_ServeStopsOnCancel(t *testing.T) {
	db := setupTestDB(t)
	s, _, _ := newTestScheduler(t, db, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancellation")
	}
}
