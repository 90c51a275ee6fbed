// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

// Package jikan provides data models for Jikan API v4 responses.
//
// This package contains Go struct definitions for the Jikan (MyAnimeList)
// endpoints consumed by the Anidex ingestion pipeline. Each struct matches
// the Jikan v4 response format with appropriate JSON tags.
//
// Response envelope:
//   - Envelope[T]: the common {"data": ..., "pagination": ...} wrapper
//   - Pagination: page metadata for list endpoints
//
// Entity types:
//   - Anime: full anime metadata (/anime/{id}, /anime/{id}/full)
//   - Manga: full manga metadata (/manga/{id}, /manga/{id}/full)
//   - Character, Person, Producer, Genre: secondary catalog entities
//
// Shared fragments:
//   - Images, Trailer, DateRange, MALItem, ExternalLink
package jikan
