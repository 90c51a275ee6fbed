// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package jikan

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/kitsunebi-dev/anidex/internal/config"
	"github.com/kitsunebi-dev/anidex/internal/logging"
	"github.com/kitsunebi-dev/anidex/internal/metrics"
)

// maxJitter is the upper bound of the random component added to every
// backoff delay, spreading out retries from concurrent workers.
const maxJitter = 200 * time.Millisecond

// RequestFunc performs one HTTP attempt. It is invoked once per attempt
// so each retry builds a fresh request.
type RequestFunc func(ctx context.Context) (*http.Response, error)

// Transport wraps a single outbound call with the rate gate and bounded
// retries.
//
// Per attempt: acquire a concurrency slot, pace, invoke the request.
// Transport errors and retryable statuses (429, 5xx) back off
// exponentially with jitter and retry while attempts remain; any other
// response is returned as-is, including non-429 4xx, which are permanent
// for that attempt. The slot is always released before sleeping so a
// waiting worker can use the capacity.
type Transport struct {
	gate       *RateGate
	retryTimes int
	baseSleep  time.Duration

	// local is an in-process pre-limiter crossed before the shared
	// gate; it spares the lock store when one worker bursts.
	local *rate.Limiter
}

// NewTransport creates a retrying transport over the given rate gate.
func NewTransport(cfg *config.JikanConfig, gate *RateGate) *Transport {
	var local *rate.Limiter
	if cfg.LocalRatePerSecond > 0 {
		local = rate.NewLimiter(rate.Limit(cfg.LocalRatePerSecond), 1)
	}
	return &Transport{
		gate:       gate,
		retryTimes: cfg.RetryTimes,
		baseSleep:  cfg.RetryBaseSleep,
		local:      local,
	}
}

// Send performs the request with retry, backoff and rate gating. The
// endpoint string is used only for logging and metrics.
//
// The response body is open on return; the caller owns closing it. After
// exhausting attempts the last transport error is returned.
func (t *Transport) Send(ctx context.Context, endpoint string, do RequestFunc) (*http.Response, error) {
	attempts := t.retryTimes + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if t.local != nil {
			if err := t.local.Wait(ctx); err != nil {
				return nil, err
			}
		}

		slot, err := t.gate.AcquireSlot(ctx)
		if err != nil {
			return nil, err
		}
		if err := t.gate.Pace(ctx); err != nil {
			t.gate.Release(ctx, slot)
			return nil, err
		}

		start := time.Now()
		resp, err := do(ctx)
		t.gate.Release(ctx, slot)

		if err != nil {
			lastErr = err
			if attempt == attempts {
				metrics.UpstreamRequestErrors.WithLabelValues(endpoint).Inc()
				logging.Error().
					Str("endpoint", endpoint).
					Int("attempts", attempts).
					Err(err).
					Msg("Upstream request failed after retries")
				return nil, fmt.Errorf("request to %s failed after %d attempts: %w", endpoint, attempts, err)
			}
			metrics.UpstreamRetries.WithLabelValues("transport").Inc()
			if serr := t.backoff(ctx, attempt); serr != nil {
				return nil, serr
			}
			continue
		}

		metrics.ObserveUpstreamRequest(endpoint, resp.StatusCode, time.Since(start))

		if retryableStatus(resp.StatusCode) && attempt < attempts {
			_ = resp.Body.Close()
			metrics.UpstreamRetries.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
			logging.Debug().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Int("attempt", attempt).
				Msg("Retryable upstream status, backing off")
			if serr := t.backoff(ctx, attempt); serr != nil {
				return nil, serr
			}
			continue
		}

		// Terminal for this call: success, non-retryable error status,
		// or a retryable status on the final attempt.
		return resp, nil
	}

	return nil, lastErr
}

// backoff sleeps base * 2^(attempt-1) plus up to 200ms of jitter.
func (t *Transport) backoff(ctx context.Context, attempt int) error {
	delay := t.baseSleep * time.Duration(1<<uint(attempt-1))
	delay += time.Duration(rand.Int63n(int64(maxJitter))) //nolint:gosec // jitter needs no crypto rand
	return sleepCtx(ctx, delay)
}

// retryableStatus reports whether a response status warrants another
// attempt: 429 and all 5xx. Other 4xx are permanent failures; retrying
// them wastes budget and rate-limit headroom.
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
