// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/kitsunebi-dev/anidex/internal/config"
	"github.com/kitsunebi-dev/anidex/internal/logging"
	"github.com/kitsunebi-dev/anidex/internal/metrics"
)

// RequestIDWithLogging assigns an X-Request-ID and threads it through
// the logging context, so every log line of a request carries the same
// ID as its response envelope.
func RequestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		chiRequestID := chimiddleware.RequestID(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = logging.GenerateRequestID()
				r.Header.Set("X-Request-ID", requestID)
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			chiRequestID.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit limits requests per client IP using the configured window.
func RateLimit(cfg *config.APIConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RateLimitReqs,
		cfg.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
}

// CORS allows cross-origin reads of the catalog. The API is read-only
// for anonymous clients, so a permissive GET policy is acceptable.
func CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	})
}

// PrometheusMetrics records per-route request durations. Route patterns
// come from the Chi context so path parameters do not explode the label
// cardinality.
func PrometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveAPIRequest(r.Method, route, ww.Status(), time.Since(start))
	})
}
