// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

// Package lockstore abstracts the shared lock/key-value service that
// coordinates rate limiting across independent worker processes.
//
// Two capabilities are required by the rate gate:
//   - acquire-exclusive-with-TTL: named mutual-exclusion locks whose
//     holder crash cannot wedge the fleet (expiry self-heals)
//   - get/put-with-TTL: a small shared value (the last-dispatch timestamp)
//
// The production implementation runs on NATS JetStream KV; an in-memory
// implementation backs tests and single-process deployments without NATS.
package lockstore

import (
	"context"
	"time"
)

// Store is the shared lock/key-value service contract.
//
// All methods must be safe for concurrent use from multiple goroutines and
// (for distributed implementations) multiple processes.
type Store interface {
	// AcquireLock attempts to take the named exclusive lock for ttl.
	// Returns (true, nil) when the lock was obtained, (false, nil) when
	// another holder currently owns it. An expired lock counts as free
	// and may be taken over.
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)

	// ReleaseLock releases the named lock. Releasing a lock that is not
	// held (or already expired) is not an error.
	ReleaseLock(ctx context.Context, name string) error

	// Get reads the value stored at key. The second return is false when
	// the key is absent or its TTL has lapsed.
	Get(ctx context.Context, key string) (string, bool, error)

	// Put stores value at key with the given TTL. A ttl of zero stores
	// without expiry.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
}
