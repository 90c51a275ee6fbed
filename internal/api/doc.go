// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

// Package api serves the catalog read API and the admin ingest triggers
// over a Chi router.
//
// All endpoints answer from the local DuckDB catalog; no request path
// ever calls the upstream API synchronously. The admin refresh trigger
// goes through the same budget and lease pipeline as the periodic
// scheduler, so manual refreshes cannot bypass the daily budget.
//
// Responses use a uniform envelope (see response.go) with a
// machine-readable error code and the request ID for tracing.
package api
