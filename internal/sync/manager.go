// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/adsync/internal/config"
	"github.com/tomtom215/adsync/internal/credentials"
	"github.com/tomtom215/adsync/internal/events"
	"github.com/tomtom215/adsync/internal/graph"
	"github.com/tomtom215/adsync/internal/logging"
	"github.com/tomtom215/adsync/internal/metrics"
	"github.com/tomtom215/adsync/internal/models"
	"github.com/tomtom215/adsync/internal/ratelimit"
	"github.com/tomtom215/adsync/internal/validation"
)

// ErrJobsUnavailable is returned for a job-chained request when no job
// runner is configured.
var ErrJobsUnavailable = errors.New("job chaining is not configured")

// ManagerDeps are the collaborators of a Manager. Jobs and Emitter may be nil.
type ManagerDeps struct {
	Credentials credentials.Provider
	Sources     SourceFactory
	Locks       Locker
	Inline      Runner
	Jobs        Runner
	Emitter     events.Emitter
	Clock       ratelimit.Clock
}

// Manager is the entry point for hierarchy syncs.
type Manager struct {
	deps    ManagerDeps
	lockTTL time.Duration
}

// NewManager returns a manager.
func NewManager(deps ManagerDeps, cfg config.SyncConfig) *Manager {
	if deps.Clock == nil {
		deps.Clock = ratelimit.RealClock()
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Manager{deps: deps, lockTTL: ttl}
}

// CredentialScope names the rate budget a credential's calls count against.
func CredentialScope(userID string) string {
	if userID == "" {
		return credentials.RolePrivileged
	}
	return "user:" + userID
}

// Run syncs the hierarchy under req.PageID, or under every page the
// credential can see when it is empty. A run that finds the page already
// being synced returns a skipped report and no error.
//
// The returned report is non-nil whenever the request was valid. A non-nil
// error alongside it means the run stopped early.
func (m *Manager) Run(ctx context.Context, req models.SyncRequest) (*Report, error) {
	if err := validation.ValidateStruct(req); err != nil {
		return nil, err
	}
	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx)

	runner := m.deps.Inline
	if req.UseJobChaining {
		if m.deps.Jobs == nil {
			return nil, ErrJobsUnavailable
		}
		runner = m.deps.Jobs
	}

	rep := newReport(logging.CorrelationIDFromContext(ctx), runner.Name(), m.deps.Clock.Now())
	if req.PageID != "" {
		rep.PageIDs = []string{req.PageID}
	}

	scope := CredentialScope(req.UserID)
	token, err := m.deps.Credentials.Token(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve credential for %s: %w", scope, err)
	}
	s := &Session{
		RunID:  rep.RunID,
		UserID: req.UserID,
		Scope:  scope,
		Source: m.deps.Sources(token, scope),
	}

	lockKey := "sync:" + req.PageID
	if req.PageID == "" {
		lockKey = "sync:*" + scope
	}
	lock, err := m.deps.Locks.TryLock(ctx, lockKey, m.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if lock == nil {
		rep.Skipped = true
		rep.finish(m.deps.Clock.Now())
		metrics.RecordSyncRun(runner.Name(), OutcomeSkipped, 0)
		log.Info().Str("lock", lockKey).Msg("Sync already in progress, skipping")
		return rep, nil
	}
	defer lock.Release()

	log.Info().
		Str("strategy", runner.Name()).
		Str("scope", scope).
		Str("page_id", req.PageID).
		Msg("Starting hierarchy sync")

	runErr := m.walk(ctx, s, req.PageID, runner, rep)
	m.complete(ctx, rep)
	return rep, runErr
}

func (m *Manager) walk(ctx context.Context, s *Session, pageID string, runner Runner, rep *Report) error {
	pageIDs := []string{pageID}
	if pageID == "" {
		pages, err := s.Source.ListPages(ctx)
		if err != nil {
			rep.stepFailed(Step{Kind: StepPage, Target: "*"}, err)
			return fmt.Errorf("list pages: %w", err)
		}
		pageIDs = pageIDs[:0]
		for _, p := range pages {
			pageIDs = append(pageIDs, p.ID)
		}
		rep.PageIDs = pageIDs
	}

	for _, id := range pageIDs {
		pctx := logging.ContextWithSyncRun(ctx, id)
		err := runner.Walk(pctx, s, Step{Kind: StepPage, Target: id, PageID: id}, rep)
		if err == nil {
			continue
		}
		if ctx.Err() != nil || errors.Is(err, graph.ErrInvalidCredentials) {
			return err
		}
		logging.Ctx(pctx).Error().Err(err).Msg("Page sync failed, continuing with next page")
	}
	return nil
}

func (m *Manager) complete(ctx context.Context, rep *Report) {
	rep.finish(m.deps.Clock.Now())
	outcome := rep.Outcome()
	metrics.RecordSyncRun(rep.Strategy, outcome, rep.Duration)

	created, updated := rep.Totals()
	errCount := rep.ErrorCount()
	events.EmitQuietly(ctx, m.deps.Emitter, events.SyncCompleted{
		Type:         "hierarchy",
		CreatedCount: created,
		UpdatedCount: updated,
		ErrorCount:   errCount,
		DurationMs:   rep.DurationMs,
	})
	if outcome == OutcomeFailed {
		events.EmitQuietly(ctx, m.deps.Emitter, events.ErrorOccurred{
			Type:     "sync_run",
			Severity: events.SeverityError,
			Message:  fmt.Sprintf("sync run %s failed with %d errors", rep.RunID, errCount),
		})
	}

	logging.Ctx(ctx).Info().
		Str("outcome", outcome).
		Int("created", created).
		Int("updated", updated).
		Int("errors", errCount).
		Int("enqueued", rep.Enqueued).
		Int64("duration_ms", rep.DurationMs).
		Msg("Hierarchy sync finished: " + rep.String())
}
