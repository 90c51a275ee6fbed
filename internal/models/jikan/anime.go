// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package jikan

// Anime represents a Jikan v4 anime entry (/anime/{id} and /anime/{id}/full).
// The /full endpoint additionally populates Relations, External and Streaming.
type Anime struct {
	MalID         int       `json:"mal_id"`
	URL           string    `json:"url"`
	Images        Images    `json:"images"`
	Trailer       Trailer   `json:"trailer"`
	Approved      bool      `json:"approved"`
	Titles        []Title   `json:"titles"`
	Title         string    `json:"title"`
	TitleEnglish  *string   `json:"title_english"`
	TitleJapanese *string   `json:"title_japanese"`
	Type          string    `json:"type"`
	Source        string    `json:"source"`
	Episodes      *int      `json:"episodes"`
	Status        string    `json:"status"`
	Airing        bool      `json:"airing"`
	Aired         DateRange `json:"aired"`
	Duration      string    `json:"duration"`
	Rating        string    `json:"rating"`
	Score         *float64  `json:"score"`
	ScoredBy      *int      `json:"scored_by"`
	Rank          *int      `json:"rank"`
	Popularity    *int      `json:"popularity"`
	Members       *int      `json:"members"`
	Favorites     *int      `json:"favorites"`
	Synopsis      *string   `json:"synopsis"`
	Background    *string   `json:"background"`
	Season        *string   `json:"season"`
	Year          *int      `json:"year"`

	Producers    []MALItem `json:"producers"`
	Licensors    []MALItem `json:"licensors"`
	Studios      []MALItem `json:"studios"`
	Genres       []MALItem `json:"genres"`
	Themes       []MALItem `json:"themes"`
	Demographics []MALItem `json:"demographics"`

	// Populated only by /anime/{id}/full.
	Relations []Relation     `json:"relations,omitempty"`
	External  []ExternalLink `json:"external,omitempty"`
	Streaming []ExternalLink `json:"streaming,omitempty"`
}

// Relation links an entity to related entries (sequels, adaptations, ...).
type Relation struct {
	Relation string    `json:"relation"`
	Entry    []MALItem `json:"entry"`
}
