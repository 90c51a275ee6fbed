// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package supervisor

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kitsunebi-dev/anidex/internal/config"
)

// countingService counts (re)starts and blocks until cancelled,
// optionally failing the first N serves.
type countingService struct {
	starts   atomic.Int64
	failures int64
}

func (s *countingService) Serve(ctx context.Context) error {
	n := s.starts.Add(1)
	if n <= s.failures {
		return context.DeadlineExceeded
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestTree_RestartsFailedService(t *testing.T) {
	tree := NewTree(TreeConfig{
		FailureThreshold: 100, // never back off during the test
		FailureBackoff:   time.Millisecond,
	})

	svc := &countingService{failures: 2}
	tree.AddIngestService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.After(5 * time.Second)
	for svc.starts.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("service restarted %d times, want 3 starts", svc.starts.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop after cancellation")
	}
}

func TestTree_LayersAreIsolated(t *testing.T) {
	tree := NewTree(TreeConfig{
		FailureThreshold: 100,
		FailureBackoff:   time.Millisecond,
	})

	flaky := &countingService{failures: 1}
	steady := &countingService{}
	tree.AddIngestService(flaky)
	tree.AddAPIService(steady)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.After(5 * time.Second)
	for flaky.starts.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("flaky service never restarted")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The API layer service must not have been restarted by the ingest
	// layer's failure.
	if got := steady.starts.Load(); got != 1 {
		t.Errorf("steady service started %d times, want 1", got)
	}

	cancel()
	<-errCh
}

func TestHTTPService_ServesAndDrains(t *testing.T) {
	svc := NewHTTPService(&config.ServerConfig{
		Host:    "127.0.0.1",
		Port:    0,
		Timeout: 5 * time.Second,
	}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	// Port 0 makes ListenAndServe pick a free port; we only verify the
	// lifecycle here, not reachability.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Serve(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("HTTP service did not stop after cancellation")
	}
}

func TestHTTPService_ListenFailure(t *testing.T) {
	// Two services on the same fixed port: the second must fail fast.
	cfg := &config.ServerConfig{Host: "127.0.0.1", Port: 39181, Timeout: 5 * time.Second}
	first := NewHTTPService(cfg, http.NotFoundHandler())
	second := NewHTTPService(cfg, http.NotFoundHandler())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firstDone := make(chan error, 1)
	go func() { firstDone <- first.Serve(ctx) }()
	time.Sleep(100 * time.Millisecond)

	secondDone := make(chan error, 1)
	go func() { secondDone <- second.Serve(ctx) }()

	select {
	case err := <-secondDone:
		if err == nil {
			t.Error("second bind on the same port should fail")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second service did not fail")
	}

	cancel()
	<-firstDone
}
