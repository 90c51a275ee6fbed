// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

// Package events publishes entity-ingested notifications over NATS
// JetStream via Watermill. Downstream consumers (cache invalidation,
// search indexing, webhooks) subscribe to the configured subject; the
// catalog itself never depends on event delivery, so publishing is
// strictly fire-and-forget from the ingest path's perspective.
//
// The package also hosts the optional embedded NATS server used by
// single-process deployments, where the same JetStream instance backs
// both the event stream and the rate-coordination KV bucket.
package events
