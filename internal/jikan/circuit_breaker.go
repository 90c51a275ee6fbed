// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package jikan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/kitsunebi-dev/anidex/internal/logging"
	"github.com/kitsunebi-dev/anidex/internal/metrics"
	jikanmodels "github.com/kitsunebi-dev/anidex/internal/models/jikan"
)

// CircuitBreakerClient wraps Client with the circuit breaker pattern to
// stop hammering the upstream API during sustained outages.
//
// DETERMINISM NOTE: The circuit breaker uses real time (via sony/gobreaker)
// for its interval and timeout calculations. The timing determines when to
// recover from failures, not data integrity; unit tests should exercise the
// wrapped client directly.
type CircuitBreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewCircuitBreakerClient creates a Jikan client with circuit breaker.
// Circuit breaker configuration:
// - Max 3 concurrent requests in half-open state
// - 1 minute measurement window
// - 2 minute timeout before attempting recovery
// - Opens after 60% failure rate with minimum 10 requests
func NewCircuitBreakerClient(client *Client) *CircuitBreakerClient {
	cbName := "jikan-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		// Opens when failure rate >= 60% with minimum 10 requests
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6

			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}

			return shouldTrip
		},

		// IsSuccessful keeps entity-level 404s from tripping the breaker.
		// A deleted MAL entry is not an upstream outage.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var se *StatusError
			return asStatusError(err, &se) && se.Status == http.StatusNotFound
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &CircuitBreakerClient{
		client: client,
		cb:     cb,
		name:   cbName,
	}
}

// execute wraps a Jikan API call with circuit breaker protection
func (cbc *CircuitBreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := cbc.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		}
		return nil, err
	}
	return result, nil
}

// castResult safely type-casts the circuit breaker result with error checking
func castResult[T any](result interface{}, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// GetAnime fetches /anime/{id} with circuit breaker protection
func (cbc *CircuitBreakerClient) GetAnime(ctx context.Context, malID int) (*jikanmodels.Anime, error) {
	return castResult[jikanmodels.Anime](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetAnime(ctx, malID)
	}))
}

// GetAnimeFull fetches /anime/{id}/full with circuit breaker protection
func (cbc *CircuitBreakerClient) GetAnimeFull(ctx context.Context, malID int) (*jikanmodels.Anime, error) {
	return castResult[jikanmodels.Anime](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetAnimeFull(ctx, malID)
	}))
}

// GetManga fetches /manga/{id} with circuit breaker protection
func (cbc *CircuitBreakerClient) GetManga(ctx context.Context, malID int) (*jikanmodels.Manga, error) {
	return castResult[jikanmodels.Manga](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetManga(ctx, malID)
	}))
}

// GetMangaFull fetches /manga/{id}/full with circuit breaker protection
func (cbc *CircuitBreakerClient) GetMangaFull(ctx context.Context, malID int) (*jikanmodels.Manga, error) {
	return castResult[jikanmodels.Manga](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetMangaFull(ctx, malID)
	}))
}

// GetCharacter fetches /characters/{id} with circuit breaker protection
func (cbc *CircuitBreakerClient) GetCharacter(ctx context.Context, malID int) (*jikanmodels.Character, error) {
	return castResult[jikanmodels.Character](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetCharacter(ctx, malID)
	}))
}

// GetPerson fetches /people/{id} with circuit breaker protection
func (cbc *CircuitBreakerClient) GetPerson(ctx context.Context, malID int) (*jikanmodels.Person, error) {
	return castResult[jikanmodels.Person](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetPerson(ctx, malID)
	}))
}

// GetProducer fetches /producers/{id}/full with circuit breaker protection
func (cbc *CircuitBreakerClient) GetProducer(ctx context.Context, malID int) (*jikanmodels.Producer, error) {
	return castResult[jikanmodels.Producer](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetProducer(ctx, malID)
	}))
}

// GetAnimeGenres fetches /genres/anime with circuit breaker protection
func (cbc *CircuitBreakerClient) GetAnimeGenres(ctx context.Context) ([]jikanmodels.Genre, error) {
	result, err := cbc.execute(func() (interface{}, error) {
		return cbc.client.GetAnimeGenres(ctx)
	})
	if err != nil {
		return nil, err
	}
	genres, ok := result.([]jikanmodels.Genre)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return genres, nil
}

// GetMangaGenres fetches /genres/manga with circuit breaker protection
func (cbc *CircuitBreakerClient) GetMangaGenres(ctx context.Context) ([]jikanmodels.Genre, error) {
	result, err := cbc.execute(func() (interface{}, error) {
		return cbc.client.GetMangaGenres(ctx)
	})
	if err != nil {
		return nil, err
	}
	genres, ok := result.([]jikanmodels.Genre)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return genres, nil
}
