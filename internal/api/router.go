// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kitsunebi-dev/anidex/internal/config"
	"github.com/kitsunebi-dev/anidex/internal/models"
)

// Router assembles the HTTP surface.
type Router struct {
	handler *Handler
	cfg     *config.APIConfig
}

// NewRouter creates the router around the given handler.
func NewRouter(handler *Handler, cfg *config.APIConfig) *Router {
	return &Router{handler: handler, cfg: cfg}
}

// Setup wires all routes and middleware and returns the root handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5, "application/json"))
	r.Use(CORS())

	// Health endpoints skip rate limiting so probes never get throttled.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimit(router.cfg))
		r.Use(PrometheusMetrics)

		for _, et := range []struct {
			route      string
			entityType string
		}{
			{"/anime", models.EntityAnime},
			{"/manga", models.EntityManga},
			{"/characters", models.EntityCharacter},
			{"/people", models.EntityPerson},
			{"/producers", models.EntityProducer},
			{"/genres", models.EntityGenre},
		} {
			r.Get(et.route, router.handler.ListEntities(et.entityType))
			r.Get(et.route+"/{id}", router.handler.GetEntity(et.entityType))
		}

		r.Get("/catalog/stats", router.handler.Stats)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/refresh/{type}/{id}", router.handler.AdminRefresh)
			r.Post("/sync-genres", router.handler.AdminSyncGenres)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
