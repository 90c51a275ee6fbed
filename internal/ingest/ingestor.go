// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package ingest

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/kitsunebi-dev/anidex/internal/database"
	"github.com/kitsunebi-dev/anidex/internal/logging"
	"github.com/kitsunebi-dev/anidex/internal/models"
)

// sentinelPayload is stored in place of a payload that failed to encode,
// so one malformed field never blocks storing the rest of the entity.
const sentinelPayload = `{"error":"payload encoding failed"}`

// Indexable carries the denormalized columns extracted from an upstream
// payload. ImageURL, Trailer and ExternalLinks accept either an
// already-serialized string or a still-structured value; structured
// values are serialized to JSON text individually at upsert time.
type Indexable struct {
	Title         string
	TitleEnglish  *string
	TitleJapanese *string
	MediaType     *string
	Season        *string
	Year          *int
	Episodes      *int
	Chapters      *int
	Volumes       *int
	Score         *float64
	ScoredBy      *int
	Rank          *int
	Popularity    *int
	Members       *int
	Synopsis      *string

	ImageURL      interface{}
	Trailer       interface{}
	ExternalLinks interface{}
}

// Ingestor is the sole writer of entity payload and refresh metadata.
// All catalog writes funnel through UpsertEntity; atomicity comes from
// the database upsert primitive, so no read-modify-write races exist.
type Ingestor struct {
	db *database.DB

	now func() time.Time
}

// NewIngestor creates the catalog write entry point.
func NewIngestor(db *database.DB) *Ingestor {
	return &Ingestor{
		db:  db,
		now: time.Now,
	}
}

// UpsertEntity serializes the payloads and writes the full row for
// (entityType, malID), superseding any previous state. next_refresh_at
// is computed from entityType and status with this call's time as the
// fetch timestamp.
//
// Payload and payloadFull encode independently: a failure in either
// substitutes the sentinel for that column only.
func (ing *Ingestor) UpsertEntity(ctx context.Context, entityType string, malID int, payload interface{}, idx Indexable, status *string, payloadFull interface{}) error {
	now := ing.now().UTC()

	e := &models.CatalogEntity{
		EntityType:    entityType,
		MalID:         malID,
		Title:         idx.Title,
		TitleEnglish:  idx.TitleEnglish,
		TitleJapanese: idx.TitleJapanese,
		MediaType:     idx.MediaType,
		Status:        status,
		Season:        idx.Season,
		Year:          idx.Year,
		Episodes:      idx.Episodes,
		Chapters:      idx.Chapters,
		Volumes:       idx.Volumes,
		Score:         idx.Score,
		ScoredBy:      idx.ScoredBy,
		Rank:          idx.Rank,
		Popularity:    idx.Popularity,
		Members:       idx.Members,
		Synopsis:      idx.Synopsis,
		ImageURL:      serializeField(entityType, malID, "image_url", idx.ImageURL),
		TrailerURL:    serializeField(entityType, malID, "trailer", idx.Trailer),
		ExternalLinks: serializeField(entityType, malID, "external_links", idx.ExternalLinks),
		Payload:       encodePayload(entityType, malID, "payload", payload),
		LastFetchedAt: now,
		NextRefreshAt: NextRefreshAt(entityType, status, now, now),
	}

	if payloadFull != nil {
		full := encodePayload(entityType, malID, "payload_full", payloadFull)
		e.PayloadFull = &full
	}

	return ing.db.UpsertCatalogEntity(ctx, e)
}

// encodePayload serializes v to JSON text, preserving non-ASCII
// characters and unescaped separators. Encode failures substitute the
// sentinel rather than failing the ingest.
func encodePayload(entityType string, malID int, column string, v interface{}) string {
	text, err := encodeJSON(v)
	if err != nil {
		logging.Error().
			Str("entity_type", entityType).
			Int("mal_id", malID).
			Str("column", column).
			Err(err).
			Msg("Payload encoding failed, storing sentinel")
		return sentinelPayload
	}
	return text
}

// serializeField handles the pass-through-or-serialize contract of the
// structured Indexable sub-fields.
func serializeField(entityType string, malID int, column string, v interface{}) *string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if val == "" {
			return nil
		}
		return &val
	case *string:
		return val
	default:
		text := encodePayload(entityType, malID, column, v)
		return &text
	}
}

// encodeJSON marshals without HTML escaping so URLs and CJK text land in
// the database as written.
func encodeJSON(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
