// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

/*
rate_gate.go - Fleet-Wide Concurrency Cap and Request Pacing

The rate gate coordinates every Anidex worker process that talks to the
upstream API. Two independent mechanisms run on the shared lock store:

Concurrency slots:
  - N named TTL-bounded locks (slot:0..N-1), N = configured max concurrency
  - a request holds exactly one slot while in flight
  - slot acquisition scans all N slots, sleeping 100ms between scans,
    bounded by the configured wait window
  - when the window elapses the configured policy applies: fail-open
    (proceed without a slot, logged and counted) or strict (reject)

Pacing:
  - a single shared last-dispatch timestamp guards minimum spacing
  - the read-compute-sleep-write critical section is serialized under a
    dedicated pacing lock so timestamp updates cannot race
  - a process that cannot obtain the pacing lock sleeps the full minimum
    interval as a conservative fallback

Slot and pacing locks carry TTLs so a crashed holder cannot permanently
wedge the fleet; the cost is a short window of over-concurrency or
under-pacing after a crash.
*/

//nolint:staticcheck // File documentation, not package doc
package jikan

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kitsunebi-dev/anidex/internal/config"
	"github.com/kitsunebi-dev/anidex/internal/lockstore"
	"github.com/kitsunebi-dev/anidex/internal/logging"
	"github.com/kitsunebi-dev/anidex/internal/metrics"
)

const (
	// slotScanInterval is the sleep between full slot scans.
	slotScanInterval = 100 * time.Millisecond

	// paceLockName guards the pacing critical section.
	paceLockName = "rate-lock"

	// lastDispatchKey stores the last dispatch time in unix milliseconds.
	lastDispatchKey = "rate:last-request"

	// lastDispatchTTL bounds staleness of the shared timestamp. After
	// this long without traffic the pacing state resets, which is
	// harmless: a fresh dispatch needs no spacing against silence.
	lastDispatchTTL = time.Minute
)

// ErrNoSlot is returned under the strict slot policy when no concurrency
// slot could be obtained within the wait window.
var ErrNoSlot = errors.New("jikan: no concurrency slot available within wait window")

// SlotHandle identifies a held concurrency slot. The zero handle means no
// slot is held (gating disabled or fail-open).
type SlotHandle struct {
	name string
}

// Held reports whether the handle refers to an actual slot lock.
func (h SlotHandle) Held() bool { return h.name != "" }

// RateGate enforces the fleet-wide concurrency cap and minimum request
// spacing through the shared lock store. Safe for concurrent use.
type RateGate struct {
	store          lockstore.Store
	maxConcurrency int
	slotTTL        time.Duration
	lockWait       time.Duration
	minInterval    time.Duration
	paceLockTTL    time.Duration
	strict         bool

	// now is injectable for deterministic pacing tests.
	now func() time.Time
}

// NewRateGate creates a rate gate from the client configuration.
func NewRateGate(cfg *config.JikanConfig, store lockstore.Store) *RateGate {
	return &RateGate{
		store:          store,
		maxConcurrency: cfg.MaxConcurrency,
		slotTTL:        cfg.SlotTTL,
		lockWait:       cfg.LockWait,
		minInterval:    cfg.MinInterval,
		paceLockTTL:    cfg.PaceLockTTL,
		strict:         cfg.SlotPolicy == config.SlotPolicyStrict,
		now:            time.Now,
	}
}

// AcquireSlot obtains one concurrency slot, scanning all slot locks and
// sleeping between scans until the wait window elapses.
//
// With gating disabled (max concurrency <= 0) it succeeds immediately
// with a zero handle. When the window elapses, the fail-open policy
// returns a zero handle and lets the request proceed (best-effort cap);
// the strict policy returns ErrNoSlot.
func (g *RateGate) AcquireSlot(ctx context.Context) (SlotHandle, error) {
	if g.maxConcurrency <= 0 {
		return SlotHandle{}, nil
	}

	start := g.now()
	deadline := start.Add(g.lockWait)

	for {
		for i := 0; i < g.maxConcurrency; i++ {
			name := "slot:" + strconv.Itoa(i)
			ok, err := g.store.AcquireLock(ctx, name, g.slotTTL)
			if err != nil {
				return SlotHandle{}, fmt.Errorf("slot scan failed: %w", err)
			}
			if ok {
				metrics.RateSlotWaitDuration.Observe(g.now().Sub(start).Seconds())
				return SlotHandle{name: name}, nil
			}
		}

		if !g.now().Add(slotScanInterval).Before(deadline) {
			break
		}
		if err := sleepCtx(ctx, slotScanInterval); err != nil {
			return SlotHandle{}, err
		}
	}

	if g.strict {
		metrics.RateSlotRejected.Inc()
		return SlotHandle{}, ErrNoSlot
	}

	metrics.RateSlotFailOpen.Inc()
	logging.Warn().
		Dur("waited", g.now().Sub(start)).
		Int("max_concurrency", g.maxConcurrency).
		Msg("No concurrency slot within wait window, proceeding without one")
	return SlotHandle{}, nil
}

// Release frees a held slot. Release failures are swallowed (logged at
// debug level): the slot TTL provides the safety net.
func (g *RateGate) Release(ctx context.Context, h SlotHandle) {
	if !h.Held() {
		return
	}
	if err := g.store.ReleaseLock(ctx, h.name); err != nil {
		logging.Debug().Str("slot", h.name).Err(err).Msg("Failed to release slot lock")
	}
}

// Pace blocks until the minimum inter-request interval has elapsed since
// the last dispatch observed fleet-wide, then records this dispatch.
//
// The read-compute-sleep-write section runs under the pacing lock. If the
// lock is contended, the caller sleeps the full minimum interval instead:
// conservative, but it never lets two dispatches race the timestamp.
func (g *RateGate) Pace(ctx context.Context) error {
	if g.minInterval <= 0 {
		return nil
	}

	ok, err := g.store.AcquireLock(ctx, paceLockName, g.paceLockTTL)
	if err != nil {
		return fmt.Errorf("pace lock failed: %w", err)
	}
	if !ok {
		metrics.RatePaceFallbacks.Inc()
		metrics.RatePaceSleep.Observe(g.minInterval.Seconds())
		return sleepCtx(ctx, g.minInterval)
	}
	defer func() {
		if err := g.store.ReleaseLock(ctx, paceLockName); err != nil {
			logging.Debug().Err(err).Msg("Failed to release pacing lock")
		}
	}()

	if val, found, err := g.store.Get(ctx, lastDispatchKey); err != nil {
		return fmt.Errorf("failed to read last dispatch: %w", err)
	} else if found {
		if lastMs, perr := strconv.ParseInt(val, 10, 64); perr == nil {
			elapsed := g.now().Sub(time.UnixMilli(lastMs))
			if deficit := g.minInterval - elapsed; deficit > 0 {
				metrics.RatePaceSleep.Observe(deficit.Seconds())
				if err := sleepCtx(ctx, deficit); err != nil {
					return err
				}
			}
		}
	}

	nowMs := strconv.FormatInt(g.now().UnixMilli(), 10)
	if err := g.store.Put(ctx, lastDispatchKey, nowMs, lastDispatchTTL); err != nil {
		return fmt.Errorf("failed to record dispatch time: %w", err)
	}
	return nil
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
