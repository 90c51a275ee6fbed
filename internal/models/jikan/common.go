// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package jikan

// Envelope is the common Jikan v4 response wrapper.
// Single-entity endpoints carry only Data; list endpoints also carry
// Pagination.
type Envelope[T any] struct {
	Data       T           `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination describes page metadata on Jikan list endpoints.
type Pagination struct {
	LastVisiblePage int  `json:"last_visible_page"`
	HasNextPage     bool `json:"has_next_page"`
	CurrentPage     int  `json:"current_page"`
	Items           struct {
		Count   int `json:"count"`
		Total   int `json:"total"`
		PerPage int `json:"per_page"`
	} `json:"items"`
}

// Images holds the jpg/webp image URL variants Jikan returns for every entity.
type Images struct {
	JPG  ImageSet `json:"jpg"`
	WebP ImageSet `json:"webp,omitempty"`
}

// ImageSet is one image format's size variants.
type ImageSet struct {
	ImageURL      string `json:"image_url"`
	SmallImageURL string `json:"small_image_url,omitempty"`
	LargeImageURL string `json:"large_image_url,omitempty"`
}

// Trailer is the promotional video reference on anime entries.
type Trailer struct {
	YoutubeID string `json:"youtube_id"`
	URL       string `json:"url"`
	EmbedURL  string `json:"embed_url"`
}

// DateRange is the aired/published from-to pair. Dates are ISO8601 strings;
// Jikan leaves them null for unknown bounds so pointers are used.
type DateRange struct {
	From *string `json:"from"`
	To   *string `json:"to"`
}

// MALItem is the compact reference Jikan uses for related entities
// (producers, studios, genres, authors, serializations).
type MALItem struct {
	MalID int    `json:"mal_id"`
	Type  string `json:"type"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

// ExternalLink is one entry of the "external" / "streaming" arrays on
// the /full endpoints.
type ExternalLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Title is one entry of the "titles" array (type: Default, Synonym,
// Japanese, English, ...).
type Title struct {
	Type  string `json:"type"`
	Title string `json:"title"`
}
