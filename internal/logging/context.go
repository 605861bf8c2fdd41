// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	syncRunKey       contextKey = "sync_run"
)

// GenerateCorrelationID returns the first 8 characters of a fresh UUID.
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// ContextWithCorrelationID returns a new context carrying the correlation ID.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextWithNewCorrelationID returns a context with a newly generated correlation ID,
// unless ctx already carries one.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	if CorrelationIDFromContext(ctx) != "" {
		return ctx
	}
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

// CorrelationIDFromContext retrieves the correlation ID, or "" if absent.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithSyncRun tags ctx with the page (or account) a sync run is walking.
// Every log line written through Ctx then carries a "sync_run" field.
func ContextWithSyncRun(ctx context.Context, target string) context.Context {
	return context.WithValue(ctx, syncRunKey, target)
}

// SyncRunFromContext returns the sync run target, or "" if absent.
func SyncRunFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(syncRunKey).(string); ok {
		return v
	}
	return ""
}

// Ctx returns the global logger enriched with the context's correlation ID
// and sync run target.
//
//	logging.Ctx(ctx).Info().Msg("Ad sets synced")
func Ctx(ctx context.Context) *zerolog.Logger {
	logCtx := Logger().With()
	if id := CorrelationIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("correlation_id", id)
	}
	if run := SyncRunFromContext(ctx); run != "" {
		logCtx = logCtx.Str("sync_run", run)
	}
	l := logCtx.Logger()
	return &l
}
