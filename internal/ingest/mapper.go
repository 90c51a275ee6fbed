// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package ingest

import (
	jikanmodels "github.com/kitsunebi-dev/anidex/internal/models/jikan"
)

// Mapping from upstream Jikan documents to the denormalized Indexable
// columns. The structured sub-fields (images, trailer, external links)
// are handed over still structured; the ingestor serializes them.

// MapAnime extracts indexable columns from an anime document.
func MapAnime(a *jikanmodels.Anime) (Indexable, *string) {
	idx := Indexable{
		Title:         a.Title,
		TitleEnglish:  a.TitleEnglish,
		TitleJapanese: a.TitleJapanese,
		MediaType:     nonEmpty(a.Type),
		Season:        a.Season,
		Year:          a.Year,
		Episodes:      a.Episodes,
		Score:         a.Score,
		ScoredBy:      a.ScoredBy,
		Rank:          a.Rank,
		Popularity:    a.Popularity,
		Members:       a.Members,
		Synopsis:      a.Synopsis,
		ImageURL:      bestImageURL(a.Images),
	}
	if a.Trailer.URL != "" || a.Trailer.YoutubeID != "" {
		idx.Trailer = a.Trailer
	}
	if len(a.External) > 0 {
		idx.ExternalLinks = a.External
	}
	return idx, nonEmpty(a.Status)
}

// MapManga extracts indexable columns from a manga document.
func MapManga(m *jikanmodels.Manga) (Indexable, *string) {
	idx := Indexable{
		Title:         m.Title,
		TitleEnglish:  m.TitleEnglish,
		TitleJapanese: m.TitleJapanese,
		MediaType:     nonEmpty(m.Type),
		Chapters:      m.Chapters,
		Volumes:       m.Volumes,
		Score:         m.Score,
		ScoredBy:      m.ScoredBy,
		Rank:          m.Rank,
		Popularity:    m.Popularity,
		Members:       m.Members,
		Synopsis:      m.Synopsis,
		ImageURL:      bestImageURL(m.Images),
	}
	if len(m.External) > 0 {
		idx.ExternalLinks = m.External
	}
	return idx, nonEmpty(m.Status)
}

// MapCharacter extracts indexable columns from a character document.
func MapCharacter(c *jikanmodels.Character) Indexable {
	return Indexable{
		Title:         c.Name,
		TitleJapanese: c.NameKanji,
		Synopsis:      c.About,
		ImageURL:      bestImageURL(c.Images),
	}
}

// MapPerson extracts indexable columns from a person document.
func MapPerson(p *jikanmodels.Person) Indexable {
	return Indexable{
		Title:    p.Name,
		Synopsis: p.About,
		ImageURL: bestImageURL(p.Images),
	}
}

// MapProducer extracts indexable columns from a producer document.
func MapProducer(p *jikanmodels.Producer) Indexable {
	idx := Indexable{
		Title:    producerTitle(p),
		Synopsis: p.About,
		ImageURL: bestImageURL(p.Images),
	}
	if len(p.External) > 0 {
		idx.ExternalLinks = p.External
	}
	return idx
}

// MapGenre extracts indexable columns from a genre document.
func MapGenre(g *jikanmodels.Genre) Indexable {
	return Indexable{Title: g.Name}
}

// producerTitle picks the default title entry, falling back to the first.
func producerTitle(p *jikanmodels.Producer) string {
	for _, t := range p.Titles {
		if t.Type == "Default" {
			return t.Title
		}
	}
	if len(p.Titles) > 0 {
		return p.Titles[0].Title
	}
	return ""
}

// bestImageURL prefers the large JPG variant, then the plain one. The
// string result passes through the ingestor unserialized.
func bestImageURL(images jikanmodels.Images) interface{} {
	if images.JPG.LargeImageURL != "" {
		return images.JPG.LargeImageURL
	}
	if images.JPG.ImageURL != "" {
		return images.JPG.ImageURL
	}
	if images.WebP.ImageURL != "" {
		return images.WebP.ImageURL
	}
	return nil
}

// nonEmpty maps "" to nil so empty upstream strings become SQL NULLs.
func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
