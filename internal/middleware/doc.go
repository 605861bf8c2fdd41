// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

/*
Package middleware provides the infrastructure middleware of the operator API.

  - RequestID: assigns X-Request-ID and uses it as the correlation id for
    logging, so a sync started over HTTP logs under the caller's id.
  - PrometheusMetrics: request count, latency and in-flight gauge, labelled by
    chi route pattern.

Both are plain func(http.Handler) http.Handler and compose with chi's r.Use:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
