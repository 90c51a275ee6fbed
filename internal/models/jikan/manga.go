// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package jikan

// Manga represents a Jikan v4 manga entry (/manga/{id} and /manga/{id}/full).
type Manga struct {
	MalID         int       `json:"mal_id"`
	URL           string    `json:"url"`
	Images        Images    `json:"images"`
	Approved      bool      `json:"approved"`
	Titles        []Title   `json:"titles"`
	Title         string    `json:"title"`
	TitleEnglish  *string   `json:"title_english"`
	TitleJapanese *string   `json:"title_japanese"`
	Type          string    `json:"type"`
	Chapters      *int      `json:"chapters"`
	Volumes       *int      `json:"volumes"`
	Status        string    `json:"status"`
	Publishing    bool      `json:"publishing"`
	Published     DateRange `json:"published"`
	Score         *float64  `json:"score"`
	ScoredBy      *int      `json:"scored_by"`
	Rank          *int      `json:"rank"`
	Popularity    *int      `json:"popularity"`
	Members       *int      `json:"members"`
	Favorites     *int      `json:"favorites"`
	Synopsis      *string   `json:"synopsis"`
	Background    *string   `json:"background"`

	Authors        []MALItem `json:"authors"`
	Serializations []MALItem `json:"serializations"`
	Genres         []MALItem `json:"genres"`
	Themes         []MALItem `json:"themes"`
	Demographics   []MALItem `json:"demographics"`

	// Populated only by /manga/{id}/full.
	Relations []Relation     `json:"relations,omitempty"`
	External  []ExternalLink `json:"external,omitempty"`
}

// Character represents a Jikan v4 character entry (/characters/{id}).
type Character struct {
	MalID     int      `json:"mal_id"`
	URL       string   `json:"url"`
	Images    Images   `json:"images"`
	Name      string   `json:"name"`
	NameKanji *string  `json:"name_kanji"`
	Nicknames []string `json:"nicknames"`
	Favorites int      `json:"favorites"`
	About     *string  `json:"about"`
}

// Person represents a Jikan v4 person entry (/people/{id}).
type Person struct {
	MalID          int      `json:"mal_id"`
	URL            string   `json:"url"`
	WebsiteURL     *string  `json:"website_url"`
	Images         Images   `json:"images"`
	Name           string   `json:"name"`
	GivenName      *string  `json:"given_name"`
	FamilyName     *string  `json:"family_name"`
	AlternateNames []string `json:"alternate_names"`
	Birthday       *string  `json:"birthday"`
	Favorites      int      `json:"favorites"`
	About          *string  `json:"about"`
}

// Producer represents a Jikan v4 producer/studio entry (/producers/{id}).
type Producer struct {
	MalID       int            `json:"mal_id"`
	URL         string         `json:"url"`
	Titles      []Title        `json:"titles"`
	Images      Images         `json:"images"`
	Favorites   int            `json:"favorites"`
	Established *string        `json:"established"`
	About       *string        `json:"about"`
	Count       int            `json:"count"`
	External    []ExternalLink `json:"external,omitempty"`
}

// Genre represents an entry of /genres/anime or /genres/manga.
type Genre struct {
	MalID int    `json:"mal_id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Count int    `json:"count"`
}
