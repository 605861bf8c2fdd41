// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/adsync/internal/middleware"
)

// NewRouter wires the operator API.
func NewRouter(h *Handler, mw *ChiMiddleware) http.Handler {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS()) // global, for OPTIONS preflight

	r.Group(func(r chi.Router) {
		r.Use(mw.RateLimitHealth())
		r.Get("/healthz", h.Health)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.Use(mw.RequireAPIKey())

		r.Post("/sync", h.TriggerSync)
		if h.eventLog != nil {
			r.Get("/events", h.ListEvents)
		}
		if h.stream != nil {
			r.Method(http.MethodGet, "/events/stream", h.stream)
		}
	})

	return r
}
