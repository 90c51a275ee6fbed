// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

// Package models defines the persisted domain types shared across Anidex.
package models

import "time"

// Entity type names used as the entity_type discriminator throughout the
// catalog and the ingestion pipeline. The set mirrors the Jikan resources
// Anidex ingests.
const (
	EntityAnime     = "anime"
	EntityManga     = "manga"
	EntityCharacter = "character"
	EntityPerson    = "person"
	EntityProducer  = "producer"
	EntityGenre     = "genre"
)

// CatalogEntity is one row of the catalog_entities table, keyed by
// (entity_type, mal_id). Indexable columns are denormalized from the
// upstream payload for filtering; the payload columns hold the serialized
// upstream document.
type CatalogEntity struct {
	EntityType string `json:"entity_type"`
	MalID      int    `json:"mal_id"`

	// Denormalized indexable columns.
	Title         string   `json:"title"`
	TitleEnglish  *string  `json:"title_english,omitempty"`
	TitleJapanese *string  `json:"title_japanese,omitempty"`
	MediaType     *string  `json:"media_type,omitempty"`
	Status        *string  `json:"status,omitempty"`
	Season        *string  `json:"season,omitempty"`
	Year          *int     `json:"year,omitempty"`
	Episodes      *int     `json:"episodes,omitempty"`
	Chapters      *int     `json:"chapters,omitempty"`
	Volumes       *int     `json:"volumes,omitempty"`
	Score         *float64 `json:"score,omitempty"`
	ScoredBy      *int     `json:"scored_by,omitempty"`
	Rank          *int     `json:"rank,omitempty"`
	Popularity    *int     `json:"popularity,omitempty"`
	Members       *int     `json:"members,omitempty"`
	Synopsis      *string  `json:"synopsis,omitempty"`
	ImageURL      *string  `json:"image_url,omitempty"`
	TrailerURL    *string  `json:"trailer_url,omitempty"`
	ExternalLinks *string  `json:"external_links,omitempty"`

	// Serialized JSON documents. Payload is the mapped subset used to
	// render catalog pages; PayloadFull is the raw /full fetch when one
	// was performed.
	Payload     string  `json:"-"`
	PayloadFull *string `json:"-"`

	LastFetchedAt time.Time `json:"last_fetched_at"`
	NextRefreshAt time.Time `json:"next_refresh_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IngestBudgetRow is one row of the ingest_budgets table, unique per
// (bucket, day). Used never decreases within a day and never exceeds
// LimitTotal after a successful check-and-increment.
type IngestBudgetRow struct {
	Bucket     string    `json:"bucket"`
	Day        time.Time `json:"day"`
	LimitTotal int       `json:"limit_total"`
	Used       int       `json:"used"`
}

// EntityLeaseRow is one row of the entity_leases table, unique per
// (entity_type, mal_id). A lease is held iff LeaseExpiresAt is set and in
// the future.
type EntityLeaseRow struct {
	EntityType     string     `json:"entity_type"`
	MalID          int        `json:"mal_id"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
	LockedAt       *time.Time `json:"locked_at,omitempty"`
	LockedBy       *string    `json:"locked_by,omitempty"`
}
