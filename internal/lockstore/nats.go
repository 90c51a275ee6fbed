// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package lockstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/kitsunebi-dev/anidex/internal/logging"
)

// bucketTTL is the JetStream bucket-level expiry backstop. Per-entry TTLs
// are encoded in the stored values; the bucket TTL only guarantees that
// entries from long-dead processes are eventually purged.
const bucketTTL = 24 * time.Hour

// NATSStore implements Store on a NATS JetStream key-value bucket.
//
// Lock semantics build on the KV bucket's compare-and-set primitives:
// acquisition is a Create (atomic first-writer-wins), takeover of an
// expired lock is an Update conditioned on the observed revision. Both
// lose cleanly when another process races them, so at most one caller can
// ever believe it holds a given lock.
//
// Entry values carry their own expiry deadline (unix milliseconds) since
// bucket TTLs apply per-bucket, not per-entry.
type NATSStore struct {
	kv jetstream.KeyValue
}

// NewNATSStore creates a Store backed by the named KV bucket, creating the
// bucket if it does not exist.
func NewNATSStore(ctx context.Context, nc *nats.Conn, bucket string) (*NATSStore, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "anidex rate coordination locks and pacing state",
		TTL:         bucketTTL,
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create KV bucket %s: %w", bucket, err)
	}

	return &NATSStore{kv: kv}, nil
}

// AcquireLock attempts an atomic Create of the lock entry; on conflict it
// checks whether the current holder's deadline has lapsed and, if so,
// takes the lock over with a revision-guarded Update.
func (s *NATSStore) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	key := sanitizeKey(name)
	deadline := encodeDeadline(time.Now().Add(ttl))

	_, err := s.kv.Create(ctx, key, []byte(deadline))
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, jetstream.ErrKeyExists) {
		return false, fmt.Errorf("failed to create lock %s: %w", name, err)
	}

	// Key exists: either a live holder or a stale entry from a crashed one.
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			// Released between Create and Get; treat as contention, the
			// caller rescans shortly anyway.
			return false, nil
		}
		return false, fmt.Errorf("failed to read lock %s: %w", name, err)
	}

	if !deadlinePassed(string(entry.Value())) {
		return false, nil
	}

	// Expired: take over, guarded by the revision we read. A racing
	// process doing the same loses with ErrKeyExists semantics.
	_, err = s.kv.Update(ctx, key, []byte(deadline), entry.Revision())
	if err != nil {
		logging.Debug().Str("lock", name).Err(err).Msg("Lost expired-lock takeover race")
		return false, nil
	}
	return true, nil
}

// ReleaseLock deletes the lock entry. Missing entries are ignored: the
// lock may have expired and been taken over already.
func (s *NATSStore) ReleaseLock(ctx context.Context, name string) error {
	err := s.kv.Delete(ctx, sanitizeKey(name))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}
	return nil
}

// Get reads a value, treating entries past their embedded deadline as
// absent.
func (s *NATSStore) Get(ctx context.Context, key string) (string, bool, error) {
	entry, err := s.kv.Get(ctx, sanitizeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	deadline, value := splitValue(string(entry.Value()))
	if deadline != "" && deadlinePassed(deadline) {
		return "", false, nil
	}
	return value, true, nil
}

// Put stores a value with its expiry deadline prepended.
func (s *NATSStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	var stored string
	if ttl > 0 {
		stored = encodeDeadline(time.Now().Add(ttl)) + "|" + value
	} else {
		stored = "|" + value
	}
	if _, err := s.kv.Put(ctx, sanitizeKey(key), []byte(stored)); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// sanitizeKey maps lock names to the NATS KV key character set
// (colons are not permitted in KV keys).
func sanitizeKey(name string) string {
	return strings.ReplaceAll(name, ":", ".")
}

// encodeDeadline renders a deadline as unix milliseconds.
func encodeDeadline(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// deadlinePassed reports whether an encoded deadline is in the past.
// Unparseable deadlines count as passed so that corrupt entries never
// wedge a lock.
func deadlinePassed(encoded string) bool {
	ms, err := strconv.ParseInt(encoded, 10, 64)
	if err != nil {
		return true
	}
	return time.Now().UnixMilli() >= ms
}

// splitValue separates a stored "deadline|value" pair. Values stored
// without TTL have an empty deadline segment.
func splitValue(stored string) (deadline, value string) {
	deadline, value, found := strings.Cut(stored, "|")
	if !found {
		return "", stored
	}
	return deadline, value
}
