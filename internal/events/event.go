// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package events

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// SchemaVersion is the current entity-ingested event schema version.
// Increment on breaking changes to EntityIngestedEvent.
const SchemaVersion = 1

// EntityIngestedEvent is emitted after a catalog entity is written. The
// EventID doubles as the NATS message ID for JetStream deduplication.
type EntityIngestedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventID       string    `json:"event_id"`
	EntityType    string    `json:"entity_type"`
	MalID         int       `json:"mal_id"`
	Title         string    `json:"title"`
	IngestedAt    time.Time `json:"ingested_at"`
}

// SerializeEvent encodes the event for the wire.
func SerializeEvent(e *EntityIngestedEvent) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event %s: %w", e.EventID, err)
	}
	return data, nil
}

// DeserializeEvent decodes a wire payload back into an event.
func DeserializeEvent(data []byte) (*EntityIngestedEvent, error) {
	var e EntityIngestedEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to deserialize event: %w", err)
	}
	return &e, nil
}
