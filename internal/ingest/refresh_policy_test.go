// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package ingest

import (
	"testing"
	"time"

	"github.com/kitsunebi-dev/anidex/internal/models"
)

func TestNextRefreshAt(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := base.Add(48 * time.Hour)

	status := func(s string) *string { return &s }

	tests := []struct {
		name       string
		entityType string
		status     *string
		want       time.Time
	}{
		{"anime finished", models.EntityAnime, status("Finished Airing"), base.Add(30 * 24 * time.Hour)},
		{"anime airing", models.EntityAnime, status("Currently Airing"), base.Add(24 * time.Hour)},
		{"anime airing lowercase", models.EntityAnime, status("currently airing"), base.Add(24 * time.Hour)},
		{"anime not yet aired", models.EntityAnime, status("Not yet aired"), base.Add(7 * 24 * time.Hour)},
		{"anime nil status", models.EntityAnime, nil, base.Add(7 * 24 * time.Hour)},
		{"anime empty status", models.EntityAnime, status(""), base.Add(7 * 24 * time.Hour)},
		{"manga publishing", models.EntityManga, status("Publishing"), base.Add(24 * time.Hour)},
		{"manga publishing synonym", models.EntityManga, status("Currently Publishing"), base.Add(24 * time.Hour)},
		{"manga complete synonym", models.EntityManga, status("Complete"), base.Add(30 * 24 * time.Hour)},
		{"manga finished", models.EntityManga, status("Finished"), base.Add(30 * 24 * time.Hour)},
		{"manga discontinued", models.EntityManga, status("Discontinued"), base.Add(30 * 24 * time.Hour)},
		{"manga hiatus", models.EntityManga, status("On Hiatus"), base.Add(7 * 24 * time.Hour)},
		{"producer ignores status", models.EntityProducer, nil, base.Add(14 * 24 * time.Hour)},
		{"producer with status still biweekly", models.EntityProducer, status("Currently Airing"), base.Add(14 * 24 * time.Hour)},
		{"character", models.EntityCharacter, nil, base.Add(14 * 24 * time.Hour)},
		{"genre", models.EntityGenre, nil, base.Add(14 * 24 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextRefreshAt(tt.entityType, tt.status, base, now)
			if !got.Equal(tt.want) {
				t.Errorf("NextRefreshAt(%s, %v) = %v, want %v", tt.entityType, tt.status, got, tt.want)
			}
		})
	}
}

func TestNextRefreshAt_ZeroFetchTimeUsesNow(t *testing.T) {
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	got := NextRefreshAt(models.EntityAnime, nil, time.Time{}, now)
	want := now.Add(7 * 24 * time.Hour)
	if !got.Equal(want) {
		t.Errorf("NextRefreshAt with zero base = %v, want %v", got, want)
	}
}
