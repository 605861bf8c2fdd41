// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/adsync/internal/config"
	"github.com/tomtom215/adsync/internal/logging"
	"github.com/tomtom215/adsync/internal/models"
)

// Syncer runs one sync request. *Manager implements it.
type Syncer interface {
	Run(ctx context.Context, req models.SyncRequest) (*Report, error)
}

// Scheduler runs the configured syncs every interval.
type Scheduler struct {
	syncer Syncer
	cfg    config.SyncConfig

	mu       sync.Mutex
	running  bool
	lastRun  time.Time
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler returns a scheduler for cfg.PageIDs, or for every visible
// page when none are configured.
func NewScheduler(syncer Syncer, cfg config.SyncConfig) *Scheduler {
	return &Scheduler{syncer: syncer, cfg: cfg}
}

// Start launches the schedule loop. A zero interval leaves only the
// optional startup run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sync scheduler is already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	logging.Info().
		Dur("interval", s.cfg.Interval).
		Strs("page_ids", s.cfg.PageIDs).
		Bool("job_chaining", s.cfg.UseJobChaining).
		Bool("run_on_startup", s.cfg.RunOnStartup).
		Msg("Starting sync scheduler")

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop ends the loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("sync scheduler is not running")
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	logging.Info().Msg("Sync scheduler stopped")
	return nil
}

// LastRun is when the last scheduled pass started.
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	if s.cfg.RunOnStartup {
		s.RunOnce(ctx)
	}
	if s.cfg.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one scheduled pass over the configured pages.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()

	pages := s.cfg.PageIDs
	if len(pages) == 0 {
		pages = []string{""}
	}
	for _, pageID := range pages {
		if ctx.Err() != nil {
			return
		}
		runCtx := logging.ContextWithNewCorrelationID(ctx)
		_, err := s.syncer.Run(runCtx, models.SyncRequest{
			PageID:         pageID,
			UserID:         s.cfg.UserID,
			UseJobChaining: s.cfg.UseJobChaining,
		})
		if err != nil {
			logging.Ctx(runCtx).Warn().Err(err).Str("page_id", pageID).Msg("Scheduled sync failed (will retry next interval)")
		}
	}
}
