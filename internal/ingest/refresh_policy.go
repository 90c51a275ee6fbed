// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package ingest

import (
	"strings"
	"time"

	"github.com/kitsunebi-dev/anidex/internal/models"
)

// Refresh cadences. Actively-updating media needs near-daily refresh,
// completed media rarely changes, and everything else gets a conservative
// default.
const (
	refreshActive    = 24 * time.Hour
	refreshFinished  = 30 * 24 * time.Hour
	refreshUnknown   = 7 * 24 * time.Hour
	refreshAuxiliary = 14 * 24 * time.Hour
)

// Substrings matched case-insensitively against the upstream status.
// MAL localizes manga statuses ("Publishing" vs "Currently Publishing",
// "Finished" vs "Complete"), so these are substring sets, not exact
// values. Finished wins over active: "Finished Airing" contains both.
var (
	finishedStatuses = []string{"finished", "complete", "discontinued"}
	activeStatuses   = []string{"airing", "publishing", "releasing"}
)

// NextRefreshAt computes when the entity should next be fetched.
//
// Base time is lastFetchedAt, or now when the entity has never been
// fetched. Anime and manga refresh on a status-sensitive cadence; every
// other entity type (characters, people, producers, genres) refreshes
// biweekly regardless of status.
func NextRefreshAt(entityType string, status *string, lastFetchedAt, now time.Time) time.Time {
	base := lastFetchedAt
	if base.IsZero() {
		base = now
	}

	if entityType != models.EntityAnime && entityType != models.EntityManga {
		return base.Add(refreshAuxiliary)
	}

	if status == nil || *status == "" {
		return base.Add(refreshUnknown)
	}

	s := strings.ToLower(*status)
	for _, needle := range finishedStatuses {
		if strings.Contains(s, needle) {
			return base.Add(refreshFinished)
		}
	}
	for _, needle := range activeStatuses {
		if strings.Contains(s, needle) {
			return base.Add(refreshActive)
		}
	}
	return base.Add(refreshUnknown)
}
