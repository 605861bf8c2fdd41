// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/adsync/internal/audit"
	"github.com/tomtom215/adsync/internal/logging"
)

// EventLog reads the stored event trail. *audit.DuckDBStore implements it.
type EventLog interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Entry, error)
}

// WithEventLog enables GET /api/v1/events.
func (h *Handler) WithEventLog(l EventLog) *Handler {
	h.eventLog = l
	return h
}

// WithEventStream enables GET /api/v1/events/stream, served by stream.
func (h *Handler) WithEventStream(stream http.Handler) *Handler {
	h.stream = stream
	return h
}

// ListEvents handles GET /api/v1/events. Query parameters: topic,
// correlation_id, severity, since (RFC 3339) and limit.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	q := r.URL.Query()

	filter := audit.QueryFilter{
		Topic:         q.Get("topic"),
		CorrelationID: q.Get("correlation_id"),
		Severity:      q.Get("severity"),
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			rw.BadRequest("since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > audit.MaxQueryLimit {
			rw.BadRequest("limit must be between 1 and " + strconv.Itoa(audit.MaxQueryLimit))
			return
		}
		filter.Limit = n
	}

	entries, err := h.eventLog.Query(r.Context(), filter)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Event log query failed")
		rw.InternalError("Failed to read event log")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	rw.Success(entries)
}
