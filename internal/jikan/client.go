// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

/*
client.go - Core Jikan API Client

This file provides the Client struct and HTTP communication layer for the
Jikan (MyAnimeList) REST API.

Client Features:
  - HTTP client with configurable timeout
  - Configurable user agent and extra headers (proxy deployments)
  - Fleet-wide rate gating via Transport/RateGate
  - Bounded retries with exponential backoff on 429/5xx
  - JSON response parsing with generic envelope support
  - Context support for cancellation and timeouts

All methods are safe for concurrent use; each request builds its own
http.Request.
*/

//nolint:staticcheck // File documentation, not package doc
package jikan

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/kitsunebi-dev/anidex/internal/config"
	jikanmodels "github.com/kitsunebi-dev/anidex/internal/models/jikan"
)

// maxErrorBodySize limits how much of an error response body is read for
// diagnostics, preventing unbounded allocation on large error pages.
const maxErrorBodySize = 64 * 1024 // 64KB

// StatusError is returned for terminal non-2xx responses. Callers branch
// on Status to distinguish "entity gone" (404) from other failures.
type StatusError struct {
	Status int
	Path   string
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("jikan: %s returned status %d: %s", e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("jikan: %s returned status %d", e.Path, e.Status)
}

// IsNotFound reports whether err is a StatusError with status 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return asStatusError(err, &se) && se.Status == http.StatusNotFound
}

// asStatusError is a small UnwrapAs helper kept separate for testability.
func asStatusError(err error, target **StatusError) bool {
	for err != nil {
		if se, ok := err.(*StatusError); ok { //nolint:errorlint // manual unwrap loop
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Client talks to the Jikan API through the retrying, rate-gated
// transport.
type Client struct {
	baseURL      string
	userAgent    string
	extraHeaders map[string]string
	httpClient   *http.Client
	transport    *Transport
}

// NewClient creates a Jikan API client. The transport carries the rate
// gate shared with every other worker process.
func NewClient(cfg *config.JikanConfig, transport *Transport) *Client {
	return &Client{
		baseURL:      cfg.BaseURL,
		userAgent:    cfg.UserAgent,
		extraHeaders: cfg.ExtraHeaders,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		transport: transport,
	}
}

// get fetches path with query parameters and decodes the JSON body into
// result (a pointer to an Envelope type).
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	resp, err := c.transport.Send(ctx, path, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		for name, value := range c.extraHeaders {
			req.Header.Set(name, value)
		}
		return c.httpClient.Do(req)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{
			Status: resp.StatusCode,
			Path:   path,
			Detail: string(readBodyForError(resp.Body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// readBodyForError reads at most maxErrorBodySize of a response body for
// error reporting.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("... (truncated)")...)
	}
	return body
}

// GetAnime fetches /anime/{id}.
func (c *Client) GetAnime(ctx context.Context, malID int) (*jikanmodels.Anime, error) {
	var env jikanmodels.Envelope[jikanmodels.Anime]
	if err := c.get(ctx, "/anime/"+strconv.Itoa(malID), nil, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// GetAnimeFull fetches /anime/{id}/full, which additionally carries
// relations, external links and streaming platforms.
func (c *Client) GetAnimeFull(ctx context.Context, malID int) (*jikanmodels.Anime, error) {
	var env jikanmodels.Envelope[jikanmodels.Anime]
	if err := c.get(ctx, "/anime/"+strconv.Itoa(malID)+"/full", nil, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// GetManga fetches /manga/{id}.
func (c *Client) GetManga(ctx context.Context, malID int) (*jikanmodels.Manga, error) {
	var env jikanmodels.Envelope[jikanmodels.Manga]
	if err := c.get(ctx, "/manga/"+strconv.Itoa(malID), nil, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// GetMangaFull fetches /manga/{id}/full.
func (c *Client) GetMangaFull(ctx context.Context, malID int) (*jikanmodels.Manga, error) {
	var env jikanmodels.Envelope[jikanmodels.Manga]
	if err := c.get(ctx, "/manga/"+strconv.Itoa(malID)+"/full", nil, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// GetCharacter fetches /characters/{id}.
func (c *Client) GetCharacter(ctx context.Context, malID int) (*jikanmodels.Character, error) {
	var env jikanmodels.Envelope[jikanmodels.Character]
	if err := c.get(ctx, "/characters/"+strconv.Itoa(malID), nil, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// GetPerson fetches /people/{id}.
func (c *Client) GetPerson(ctx context.Context, malID int) (*jikanmodels.Person, error) {
	var env jikanmodels.Envelope[jikanmodels.Person]
	if err := c.get(ctx, "/people/"+strconv.Itoa(malID), nil, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// GetProducer fetches /producers/{id}/full for the external links.
func (c *Client) GetProducer(ctx context.Context, malID int) (*jikanmodels.Producer, error) {
	var env jikanmodels.Envelope[jikanmodels.Producer]
	if err := c.get(ctx, "/producers/"+strconv.Itoa(malID)+"/full", nil, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// GetAnimeGenres fetches /genres/anime.
func (c *Client) GetAnimeGenres(ctx context.Context) ([]jikanmodels.Genre, error) {
	var env jikanmodels.Envelope[[]jikanmodels.Genre]
	if err := c.get(ctx, "/genres/anime", nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// GetMangaGenres fetches /genres/manga.
func (c *Client) GetMangaGenres(ctx context.Context) ([]jikanmodels.Genre, error) {
	var env jikanmodels.Envelope[[]jikanmodels.Genre]
	if err := c.get(ctx, "/genres/manga", nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// SearchAnime fetches one page of /anime search results.
func (c *Client) SearchAnime(ctx context.Context, query string, page int) ([]jikanmodels.Anime, *jikanmodels.Pagination, error) {
	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}

	var env jikanmodels.Envelope[[]jikanmodels.Anime]
	if err := c.get(ctx, "/anime", params, &env); err != nil {
		return nil, nil, err
	}
	return env.Data, env.Pagination, nil
}

// SearchManga fetches one page of /manga search results.
func (c *Client) SearchManga(ctx context.Context, query string, page int) ([]jikanmodels.Manga, *jikanmodels.Pagination, error) {
	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}

	var env jikanmodels.Envelope[[]jikanmodels.Manga]
	if err := c.get(ctx, "/manga", params, &env); err != nil {
		return nil, nil, err
	}
	return env.Data, env.Pagination, nil
}
