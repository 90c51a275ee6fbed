// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package jikan

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kitsunebi-dev/anidex/internal/config"
	"github.com/kitsunebi-dev/anidex/internal/lockstore"
)

func newTestTransport(retryTimes int, baseSleep time.Duration) *Transport {
	store := lockstore.NewMemoryStore()
	gateCfg := &config.JikanConfig{
		MaxConcurrency: 1,
		SlotTTL:        time.Minute,
		LockWait:       10 * time.Second,
		PaceLockTTL:    10 * time.Second,
		SlotPolicy:     config.SlotPolicyStrict,
	}
	cfg := &config.JikanConfig{
		RetryTimes:     retryTimes,
		RetryBaseSleep: baseSleep,
	}
	return NewTransport(cfg, NewRateGate(gateCfg, store))
}

func httpGet(url string) RequestFunc {
	return func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return nil, err
		}
		return http.DefaultClient.Do(req)
	}
}

func TestTransport_RetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"mal_id":1}}`))
	}))
	defer server.Close()

	transport := newTestTransport(2, 5*time.Millisecond)
	resp, err := transport.Send(context.Background(), "/anime/1", httpGet(server.URL))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d requests, want 3 (two 503 retries then success)", got)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if !strings.Contains(string(body), `"mal_id":1`) {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestTransport_RetriesTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := newTestTransport(1, time.Millisecond)
	resp, err := transport.Send(context.Background(), "/anime/1", httpGet(server.URL))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}
}

func TestTransport_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	transport := newTestTransport(3, time.Millisecond)
	resp, err := transport.Send(context.Background(), "/anime/999999", httpGet(server.URL))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1 (4xx is permanent)", got)
	}
}

func TestTransport_ExhaustedRetriesReturnLastStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	transport := newTestTransport(1, time.Millisecond)
	resp, err := transport.Send(context.Background(), "/anime/1", httpGet(server.URL))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 on the final attempt", resp.StatusCode)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d requests, want 2 (retry_times=1)", got)
	}
}

func TestTransport_TransportErrorRetriedThenWrapped(t *testing.T) {
	var calls atomic.Int32
	failure := errors.New("connection refused")

	transport := newTestTransport(1, time.Millisecond)
	_, err := transport.Send(context.Background(), "/anime/1", func(ctx context.Context) (*http.Response, error) {
		calls.Add(1)
		return nil, failure
	})

	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !errors.Is(err, failure) {
		t.Errorf("error does not wrap the transport failure: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("request func called %d times, want 2", got)
	}
}

func TestTransport_BackoffGrows(t *testing.T) {
	var times []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		times = append(times, time.Now())
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	// With jitter bounded at 200ms, a 300ms base guarantees the second
	// gap (600ms floor) exceeds the first gap's 500ms ceiling.
	transport := newTestTransport(2, 300*time.Millisecond)
	resp, err := transport.Send(context.Background(), "/anime/1", httpGet(server.URL))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	resp.Body.Close()

	if len(times) != 3 {
		t.Fatalf("server saw %d requests, want 3", len(times))
	}
	gap1 := times[1].Sub(times[0])
	gap2 := times[2].Sub(times[1])
	if gap1 < 300*time.Millisecond {
		t.Errorf("first backoff %v, want >= base 300ms", gap1)
	}
	if gap2 < 600*time.Millisecond {
		t.Errorf("second backoff %v, want >= doubled base 600ms", gap2)
	}
}

func TestTransport_CancellationDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	transport := newTestTransport(5, time.Second)
	_, err := transport.Send(ctx, "/anime/1", httpGet(server.URL))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded during backoff, got %v", err)
	}
}
