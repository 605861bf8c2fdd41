// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

/*
Package api is the operator HTTP surface.

Routes:

	GET  /healthz                dependency probes (DuckDB, badger)
	GET  /metrics                Prometheus exposition
	POST /api/v1/sync            start a hierarchy sync
	GET  /api/v1/events          event log, newest first (when audit is enabled)
	GET  /api/v1/events/stream   live events over a websocket (when enabled)

The sync endpoint takes the JSON form of models.SyncRequest:

	{"pageId": "1234", "userId": "", "useJobChaining": false}

Without ?wait=true the run continues in the background and the response is
202 with the run id, which is also the correlation id of every event the run
emits. GET /api/v1/events?correlation_id=<run id> then lists them.

Every /api/v1 route is rate limited per client IP (go-chi/httprate) and, when server.api_key
is set, requires the key as a bearer token or X-API-Key header.
*/
package api
