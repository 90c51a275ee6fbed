// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

// Package ingest implements the controlled write path into the catalog:
// daily request budgets, per-entity fetch leases, the refresh cadence
// policy, the payload-serializing ingestor, and the scheduler that ties
// them to the upstream client.
//
// Control-flow signals (budget exhausted, lease contended) are boolean
// returns, not errors; only genuine failures (database, final-attempt
// transport) propagate as errors. Callers branch on the booleans as part
// of normal operation.
package ingest
