// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

/*
Package sync walks the remote advertising hierarchy and mirrors it locally.

A run starts at one or more pages and descends:

	page -> ad accounts -> campaigns -> ad sets -> ads
	page -> lead forms  -> leads

Each level is a Step. The Executor owns what a step does (fetch, upsert,
derive child steps); a Runner decides how the children execute:

  - InlineRunner walks children immediately in the calling goroutine,
    pausing between campaigns and between ad sets, and cooling down after a
    throttle error. Failures are recorded and never abort siblings.
  - JobRunner turns children into jobs on the internal/jobs queue. Each job
    holds a SyncLock on its target, verifies its parent is stored, and lets
    the queue's backoff schedule retry it.

A leads step only asks for submissions created since the form's cursor, the
newest submission already committed. The cursor lives in DuckDB and moves
over the leading run of committed submissions, so a failed submission is
fetched again by the next sync and an unchanged form yields no lead actions.

Manager.Run is the entry point for the scheduler and the operator API. It
validates the request, resolves the access token through an injected
credentials.Provider, takes a page-level SyncLock, and returns a Report.
A request for a page that is already syncing returns a skipped Report.

Remote calls go through one rate-governed graph client per credential scope,
so concurrent runs for different credentials never share a budget.
*/
package sync
