// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	// requestIDKey is the context key for HTTP request IDs.
	requestIDKey contextKey = "request_id"

	// workerIDKey is the context key for ingest worker identities.
	workerIDKey contextKey = "worker_id"
)

// GenerateRequestID creates a new unique request ID.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithRequestID returns a new context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext retrieves the request ID from context, or "" if
// not present.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithWorkerID returns a new context carrying an ingest worker
// identity (the same value written to entity_leases.locked_by).
func ContextWithWorkerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workerIDKey, id)
}

// WorkerIDFromContext retrieves the worker ID from context, or "" if not
// present.
func WorkerIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(workerIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns a logger with context values (request_id, worker_id)
// automatically added. This is the recommended way to log inside handlers
// and ingest workers.
//
//	logging.Ctx(ctx).Info().Msg("Processing request")
func Ctx(ctx context.Context) *zerolog.Logger {
	logger := Logger()
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		logger = logger.With().Str("request_id", requestID).Logger()
	}
	if workerID := WorkerIDFromContext(ctx); workerID != "" {
		logger = logger.With().Str("worker_id", workerID).Logger()
	}
	return &logger
}
