// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

// Package ratelimit enforces the remote API call budget.
//
// The Governor keeps two counters per scope, one for the current calendar
// minute and one for the current hour. Acquire blocks while either counter
// is at its ceiling and re-checks once the window rolls over; Record counts
// a call against both. The throttle is advisory and per process: callers on
// different hosts do not see each other's counters unless they share a
// Window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/adsync/internal/config"
	"github.com/tomtom215/adsync/internal/logging"
	"github.com/tomtom215/adsync/internal/metrics"
)

// Limits is the call budget of one scope.
type Limits struct {
	PerMinute int
	PerHour   int
}

// LimitsFromConfig converts the rate_limit config section.
func LimitsFromConfig(cfg config.RateLimitConfig) Limits {
	return Limits{PerMinute: cfg.PerMinute, PerHour: cfg.PerHour}
}

// Governor gates remote calls for one scope (typically one remote account).
type Governor struct {
	window Window
	clock  Clock
	limits Limits
	scope  string
}

// NewGovernor returns a governor over window. A zero limit disables that window.
func NewGovernor(window Window, clock Clock, limits Limits, scope string) *Governor {
	if clock == nil {
		clock = RealClock()
	}
	if scope == "" {
		scope = "default"
	}
	return &Governor{window: window, clock: clock, limits: limits, scope: scope}
}

// WithScope returns a governor sharing storage and limits but counting
// against a separate scope.
func (g *Governor) WithScope(scope string) *Governor {
	return NewGovernor(g.window, g.clock, g.limits, scope)
}

// Scope returns the counter scope.
func (g *Governor) Scope() string { return g.scope }

// Clock returns the governor's time source.
func (g *Governor) Clock() Clock { return g.clock }

func (g *Governor) minuteKey(now time.Time) string {
	return g.scope + ":minute:" + now.UTC().Format("200601021504")
}

func (g *Governor) hourKey(now time.Time) string {
	return g.scope + ":hour:" + now.UTC().Format("2006010215")
}

// Acquire blocks until both windows have room for one more call.
func (g *Governor) Acquire(ctx context.Context) error {
	for {
		now := g.clock.Now().UTC()

		if g.limits.PerMinute > 0 {
			used, err := g.window.Get(ctx, g.minuteKey(now))
			if err != nil {
				return fmt.Errorf("read minute counter: %w", err)
			}
			if used >= int64(g.limits.PerMinute) {
				if err := g.block(ctx, "minute", used, g.limits.PerMinute, untilNext(now, time.Minute)); err != nil {
					return err
				}
				continue
			}
		}

		if g.limits.PerHour > 0 {
			used, err := g.window.Get(ctx, g.hourKey(now))
			if err != nil {
				return fmt.Errorf("read hour counter: %w", err)
			}
			if used >= int64(g.limits.PerHour) {
				if err := g.block(ctx, "hour", used, g.limits.PerHour, untilNext(now, time.Hour)); err != nil {
					return err
				}
				continue
			}
		}
		return nil
	}
}

func (g *Governor) block(ctx context.Context, window string, used int64, limit int, wait time.Duration) error {
	logging.Warn().
		Str("scope", g.scope).
		Str("window", window).
		Int64("used", used).
		Int("limit", limit).
		Dur("wait", wait).
		Msg("Rate budget exhausted, waiting for window to roll over")
	metrics.RecordGovernorBlock(window, wait)
	return g.clock.Sleep(ctx, wait)
}

// Record counts one call against both windows. Each counter expires at the
// end of its window.
func (g *Governor) Record(ctx context.Context) error {
	now := g.clock.Now().UTC()
	if _, err := g.window.Increment(ctx, g.minuteKey(now), untilNext(now, time.Minute)); err != nil {
		return fmt.Errorf("record minute counter: %w", err)
	}
	if _, err := g.window.Increment(ctx, g.hourKey(now), untilNext(now, time.Hour)); err != nil {
		return fmt.Errorf("record hour counter: %w", err)
	}
	return nil
}

// Usage reports the calls counted in the current minute and hour.
func (g *Governor) Usage(ctx context.Context) (minute, hour int64, err error) {
	now := g.clock.Now().UTC()
	if minute, err = g.window.Get(ctx, g.minuteKey(now)); err != nil {
		return 0, 0, err
	}
	if hour, err = g.window.Get(ctx, g.hourKey(now)); err != nil {
		return 0, 0, err
	}
	return minute, hour, nil
}

// untilNext is the time from now to the next boundary of size, never less
// than a second so that badger TTLs stay meaningful.
func untilNext(now time.Time, size time.Duration) time.Duration {
	d := now.Truncate(size).Add(size).Sub(now)
	if d < time.Second {
		d = time.Second
	}
	return d
}
