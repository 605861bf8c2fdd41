// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package sync

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/adsync/internal/config"
	"github.com/tomtom215/adsync/internal/graph"
	"github.com/tomtom215/adsync/internal/logging"
	"github.com/tomtom215/adsync/internal/ratelimit"
)

// Strategy names.
const (
	StrategyInline = "inline"
	StrategyJobs   = "jobs"
)

// Session is the per-run context a runner needs beyond the step itself.
type Session struct {
	RunID  string
	UserID string
	Scope  string
	Source Source
}

// Runner executes a step and everything below it.
type Runner interface {
	Name() string
	Walk(ctx context.Context, s *Session, root Step, rep *Report) error
}

// InlineRunner walks the hierarchy depth-first in the calling goroutine.
type InlineRunner struct {
	exec  *Executor
	clock ratelimit.Clock

	interCampaignDelay time.Duration
	interAdSetDelay    time.Duration
	throttleCooldown   time.Duration
}

// NewInlineRunner returns a runner pausing as cfg asks. Every pause goes
// through clock.
func NewInlineRunner(exec *Executor, clock ratelimit.Clock, cfg config.SyncConfig) *InlineRunner {
	if clock == nil {
		clock = ratelimit.RealClock()
	}
	return &InlineRunner{
		exec:               exec,
		clock:              clock,
		interCampaignDelay: cfg.InterCampaignDelay,
		interAdSetDelay:    cfg.InterAdSetDelay,
		throttleCooldown:   cfg.ThrottleCooldown,
	}
}

// Name implements Runner.
func (r *InlineRunner) Name() string { return StrategyInline }

// Walk implements Runner. It returns early only when ctx ends or the
// credential is rejected; every other failure is recorded in rep and the
// walk continues with the next sibling.
func (r *InlineRunner) Walk(ctx context.Context, s *Session, root Step, rep *Report) error {
	return r.walk(ctx, s, root, rep)
}

func (r *InlineRunner) walk(ctx context.Context, s *Session, step Step, rep *Report) error {
	if err := r.pause(ctx, r.delayBefore(step.Kind)); err != nil {
		return err
	}

	res, err := r.exec.Execute(ctx, s.Source, step, rep)
	if err != nil {
		return r.stepFailed(ctx, step, err, rep)
	}

	for _, child := range res.Children {
		if err := r.walk(ctx, s, child, rep); err != nil {
			return err
		}
	}
	return nil
}

// delayBefore is the pause ahead of a step: one inter-campaign delay before
// each ad set fetch and one inter-adset delay before each ad fetch.
func (r *InlineRunner) delayBefore(kind StepKind) time.Duration {
	switch kind {
	case StepAdSets:
		return r.interCampaignDelay
	case StepAds:
		return r.interAdSetDelay
	}
	return 0
}

func (r *InlineRunner) stepFailed(ctx context.Context, step Step, err error, rep *Report) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, graph.ErrInvalidCredentials) {
		rep.stepFailed(step, err)
		return err
	}

	rep.stepFailed(step, err)
	log := logging.Ctx(ctx)
	log.Error().Err(err).Str("step", step.String()).Msg("Sync step failed, continuing with siblings")

	if errors.Is(err, graph.ErrThrottled) {
		rep.throttled()
		log.Warn().Dur("cooldown", r.throttleCooldown).Msg("Remote API throttled, cooling down before continuing")
		return r.pause(ctx, r.throttleCooldown)
	}
	return nil
}

func (r *InlineRunner) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return r.clock.Sleep(ctx, d)
}
