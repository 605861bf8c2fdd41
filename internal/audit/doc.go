// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

// Package audit keeps a queryable trail of domain events in DuckDB.
//
// A Consumer subscribes to the event bus topics (sync completed, lead
// processed, error occurred) and stores every delivery as an Entry. Entries
// carry the correlation id of the run that produced them, so the events of a
// sync started in the background can be looked up by its run id:
//
//	GET /api/v1/events?correlation_id=<runId>
//
// Entries older than the configured retention are pruned periodically.
package audit
