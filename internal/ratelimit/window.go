// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window stores expiring call counters. kvstore.Store is the production
// implementation; MemoryWindow serves tests and single-shot tools.
type Window interface {
	// Increment adds one to key, (re)setting its expiry to ttl from now,
	// and returns the new value.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Get returns the value at key, zero when absent or expired.
	Get(ctx context.Context, key string) (int64, error)
}

type memoryEntry struct {
	n       int64
	expires time.Time
}

// MemoryWindow is an in-process Window whose expiry follows a Clock.
type MemoryWindow struct {
	mu      sync.Mutex
	clock   Clock
	entries map[string]memoryEntry
}

// NewMemoryWindow returns an empty MemoryWindow.
func NewMemoryWindow(clock Clock) *MemoryWindow {
	if clock == nil {
		clock = RealClock()
	}
	return &MemoryWindow{clock: clock, entries: make(map[string]memoryEntry)}
}

// Increment implements Window.
func (w *MemoryWindow) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	e := w.entries[key]
	if !e.expires.IsZero() && !now.Before(e.expires) {
		e = memoryEntry{}
	}
	e.n++
	e.expires = now.Add(ttl)
	w.entries[key] = e
	return e.n, nil
}

// Get implements Window.
func (w *MemoryWindow) Get(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries[key]
	if !ok {
		return 0, nil
	}
	if !w.clock.Now().Before(e.expires) {
		delete(w.entries, key)
		return 0, nil
	}
	return e.n, nil
}
