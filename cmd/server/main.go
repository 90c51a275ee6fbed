// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

// Package main is the entry point for the Anidex server.
//
// Anidex mirrors a slice of the MyAnimeList catalog through the Jikan
// API into a local DuckDB store and serves it over a JSON read API.
// Ingestion is strictly rate-disciplined: a cross-process rate gate
// paces upstream requests, a daily budget caps them, and per-entity
// leases prevent duplicate fetches across workers.
//
// Startup order:
//
//  1. Configuration (koanf: env over config file over defaults)
//  2. DuckDB catalog store
//  3. NATS (optional): embedded or external, backing the shared rate
//     gate state and the ingest event stream
//  4. Jikan client stack: rate gate, retrying transport, circuit breaker
//  5. Ingest pipeline: budget, leases, ingestor, refresh scheduler
//  6. HTTP API
//  7. Supervision tree (suture) running scheduler and HTTP server
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP
// server drains, the scheduler finishes its in-flight entities, and the
// database checkpoints before closing.
package main

import (
	"context"
	"os/signal"
	"syscall"

	natsgo "github.com/nats-io/nats.go"

	"github.com/kitsunebi-dev/anidex/internal/api"
	"github.com/kitsunebi-dev/anidex/internal/config"
	"github.com/kitsunebi-dev/anidex/internal/database"
	"github.com/kitsunebi-dev/anidex/internal/events"
	"github.com/kitsunebi-dev/anidex/internal/ingest"
	"github.com/kitsunebi-dev/anidex/internal/jikan"
	"github.com/kitsunebi-dev/anidex/internal/lockstore"
	"github.com/kitsunebi-dev/anidex/internal/logging"
	"github.com/kitsunebi-dev/anidex/internal/supervisor"
)

// rateBucket is the KV bucket holding rate gate slots and pacing state.
const rateBucket = "anidex-rate"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("jikan_base_url", cfg.Jikan.BaseURL).
		Bool("ingest_enabled", cfg.Ingest.Enabled).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Msg("Starting Anidex")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Rate gate state lives in NATS KV when available so multiple worker
	// processes share one upstream rate discipline. Without NATS the
	// in-memory store still disciplines this process.
	var store lockstore.Store = lockstore.NewMemoryStore()
	var natsConn *natsgo.Conn
	var embedded *events.EmbeddedServer

	if cfg.NATS.Enabled {
		natsURL := cfg.NATS.URL
		if cfg.NATS.EmbeddedServer {
			embedded, err = events.NewEmbeddedServer(&cfg.NATS)
			if err != nil {
				logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
			}
			defer embedded.Shutdown()
			natsURL = embedded.ClientURL()
		}

		natsConn, err = natsgo.Connect(natsURL, natsgo.Name("anidex-server"))
		if err != nil {
			logging.Fatal().Err(err).Str("url", natsURL).Msg("Failed to connect to NATS")
		}
		defer natsConn.Close()

		natsStore, err := lockstore.NewNATSStore(ctx, natsConn, rateBucket)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create rate coordination bucket")
		}
		store = natsStore
		logging.Info().Str("url", natsURL).Msg("NATS connected, rate gate state is shared")
	}

	// Upstream client stack: every request passes the rate gate and the
	// retrying transport; the circuit breaker sits on top.
	gate := jikan.NewRateGate(&cfg.Jikan, store)
	transport := jikan.NewTransport(&cfg.Jikan, gate)
	client := jikan.NewCircuitBreakerClient(jikan.NewClient(&cfg.Jikan, transport))

	var scheduler *ingest.Scheduler
	var budget *ingest.Budget
	var refresher api.Refresher

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())

	if cfg.Ingest.Enabled {
		budget = ingest.NewBudget(&cfg.Ingest, db)
		leases := ingest.NewLeaseManager(&cfg.Ingest, db)
		ingestor := ingest.NewIngestor(db)

		var publisher ingest.EventPublisher
		if cfg.NATS.Enabled && cfg.NATS.EventsEnabled {
			p, err := events.NewPublisher(&cfg.NATS, natsConn.ConnectedUrl())
			if err != nil {
				logging.Fatal().Err(err).Msg("Failed to create event publisher")
			}
			defer func() {
				if err := p.Close(); err != nil {
					logging.Error().Err(err).Msg("Error closing event publisher")
				}
			}()
			publisher = p
		}

		scheduler = ingest.NewScheduler(&cfg.Ingest, db, client, budget, leases, ingestor, publisher)
		refresher = scheduler
		tree.AddIngestService(scheduler)
		logging.Info().
			Dur("interval", cfg.Ingest.Interval).
			Int("workers", cfg.Ingest.Workers).
			Msg("Refresh scheduler enabled")
	} else {
		logging.Info().Msg("Ingestion disabled, serving catalog read-only")
	}

	handler := api.NewHandler(db, budget, refresher, &cfg.API)
	router := api.NewRouter(handler, &cfg.API)
	httpService := supervisor.NewHTTPService(&cfg.Server, router.Setup())
	tree.AddAPIService(httpService)

	logging.Info().Str("addr", httpService.Addr()).Msg("Anidex ready")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("Supervisor tree exited")
	}

	logging.Info().Msg("Anidex stopped")
}
