// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package api

import (
	"context"
	"errors"
	"net/http"
	gosync "sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/adsync/internal/credentials"
	"github.com/tomtom215/adsync/internal/graph"
	"github.com/tomtom215/adsync/internal/logging"
	"github.com/tomtom215/adsync/internal/models"
	"github.com/tomtom215/adsync/internal/sync"
	"github.com/tomtom215/adsync/internal/validation"
)

const maxRequestBody = 1 << 20

// Syncer starts hierarchy syncs. *sync.Manager implements it.
type Syncer interface {
	Run(ctx context.Context, req models.SyncRequest) (*sync.Report, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck is one named dependency probed by /healthz.
type HealthCheck struct {
	Name   string
	Pinger Pinger
}

// Handler serves the operator API.
type Handler struct {
	syncer   Syncer
	checks   []HealthCheck
	version  string
	eventLog EventLog
	stream   http.Handler

	// baseCtx parents background runs, so that shutdown cancels them.
	baseCtx context.Context
	wg      gosync.WaitGroup
}

// NewHandler returns a handler. baseCtx may be nil.
func NewHandler(baseCtx context.Context, syncer Syncer, version string, checks ...HealthCheck) *Handler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Handler{syncer: syncer, checks: checks, version: version, baseCtx: baseCtx}
}

// Wait blocks until background sync runs have returned.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// SyncAccepted is the response to a sync started in the background.
type SyncAccepted struct {
	RunID  string `json:"runId"`
	PageID string `json:"pageId,omitempty"`
	Status string `json:"status"`
}

// TriggerSync handles POST /api/v1/sync. With ?wait=true the run completes
// before the response and the report is returned; otherwise the run
// continues in the background and 202 carries its run id.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req models.SyncRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		rw.BadRequest("Invalid JSON body")
		return
	}
	if err := validation.ValidateStruct(req); err != nil {
		var verr *validation.RequestValidationError
		if errors.As(err, &verr) {
			rw.ValidationError("Invalid sync request", verr.Fields)
			return
		}
		rw.BadRequest(err.Error())
		return
	}

	runID := logging.CorrelationIDFromContext(r.Context())
	if r.URL.Query().Get("wait") == "true" {
		rep, err := h.syncer.Run(r.Context(), req)
		h.writeReport(rw, rep, err)
		return
	}

	ctx := logging.ContextWithCorrelationID(h.baseCtx, runID)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if _, err := h.syncer.Run(ctx, req); err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("page_id", req.PageID).Msg("Background sync failed")
		}
	}()

	rw.Status(http.StatusAccepted, SyncAccepted{RunID: runID, PageID: req.PageID, Status: "started"})
}

func (h *Handler) writeReport(rw *ResponseWriter, rep *sync.Report, err error) {
	switch {
	case err == nil && rep != nil && rep.Skipped:
		rw.ErrorWithDetails(http.StatusConflict, ErrCodeConflict, "A sync of this target is already running", rep)
	case err == nil:
		rw.Success(rep)
	case errors.Is(err, sync.ErrJobsUnavailable):
		rw.BadRequest("Job chaining is not enabled on this server")
	case errors.Is(err, credentials.ErrNoCredential):
		rw.BadRequest("No credential is stored for this user")
	case errors.Is(err, graph.ErrInvalidCredentials), errors.Is(err, graph.ErrThrottled), errors.Is(err, graph.ErrRemote), errors.Is(err, graph.ErrTransport):
		rw.ExternalServiceError("graph", err, rep)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Sync interrupted")
	default:
		logging.Ctx(rw.r.Context()).Error().Err(err).Msg("Sync failed")
		rw.InternalError("Sync failed")
	}
}

// HealthStatus is the body of /healthz.
type HealthStatus struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := HealthStatus{Status: "ok", Version: h.version, Checks: make(map[string]string, len(h.checks))}
	code := http.StatusOK
	for _, c := range h.checks {
		if err := c.Pinger.Ping(ctx); err != nil {
			status.Status = "degraded"
			status.Checks[c.Name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		status.Checks[c.Name] = "ok"
	}
	NewResponseWriter(w, r).Status(code, status)
}
