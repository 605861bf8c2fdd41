// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package services

import (
	"context"
	"time"

	"github.com/tomtom215/adsync/internal/logging"
)

// GarbageCollector reclaims storage on demand. *kvstore.Store implements it.
type GarbageCollector interface {
	RunGC() error
}

// GCService runs periodic value log garbage collection on the key-value
// store that backs rate counters and sync locks. GC errors are logged and
// do not restart the service.
type GCService struct {
	store    GarbageCollector
	interval time.Duration
}

// NewGCService creates a GC service. A non-positive interval falls back to
// ten minutes.
func NewGCService(store GarbageCollector, interval time.Duration) *GCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &GCService{store: store, interval: interval}
}

// Serve implements suture.Service.
func (g *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := g.store.RunGC(); err != nil {
				logging.Ctx(ctx).Warn().Err(err).Msg("Key-value store GC failed")
			}
		}
	}
}

// String implements fmt.Stringer for suture's logs.
func (g *GCService) String() string {
	return "kv-gc"
}
