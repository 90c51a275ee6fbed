// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package lockstore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with process-local state. It provides the
// same TTL and mutual-exclusion semantics as the NATS implementation but
// coordinates only within one process; use it for tests and for
// deployments that run a single worker without NATS.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// now is injectable for deterministic TTL tests.
	now func() time.Time
}

type memoryEntry struct {
	value    string
	deadline time.Time // zero means no expiry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// SetClock replaces the time source. Test use only.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AcquireLock takes the named lock unless a live holder exists.
func (s *MemoryStore) AcquireLock(_ context.Context, name string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[name]; ok && !e.deadline.IsZero() && s.now().Before(e.deadline) {
		return false, nil
	}
	s.entries[name] = memoryEntry{value: "locked", deadline: s.now().Add(ttl)}
	return true, nil
}

// ReleaseLock drops the named lock if present.
func (s *MemoryStore) ReleaseLock(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
	return nil
}

// Get returns the value at key, honoring expiry.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if !e.deadline.IsZero() && !s.now().Before(e.deadline) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Put stores value at key with an optional TTL.
func (s *MemoryStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.deadline = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// HeldLocks returns the names of currently live locks. Test helper.
func (s *MemoryStore) HeldLocks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var held []string
	for name, e := range s.entries {
		if !e.deadline.IsZero() && s.now().Before(e.deadline) {
			held = append(held, name)
		}
	}
	return held
}
