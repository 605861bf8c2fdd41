// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

/*
Command server runs adsync: a rate-limited mirror of a page's ad hierarchy
(campaigns, ad sets, ads) with lead identity resolution.

# Process Layout

	adsync (root)
	├── data-layer
	│   └── kv-gc            badger value log GC
	├── messaging-layer
	│   ├── job-queue          Watermill router for chained sync jobs
	│   ├── sync-scheduler     interval runs of the configured pages
	│   ├── event-log          bus events into DuckDB (AUDIT_ENABLED)
	│   └── websocket-bridge   bus events to the hub (EVENT_STREAM)
	└── api-layer
	    ├── http-server        /api/v1/sync, /api/v1/events, /healthz, /metrics
	    └── websocket-hub      /api/v1/events/stream clients

Components are opened in this order: DuckDB, badger, event bus (in-process
GoChannel, or NATS JetStream when NATS_ENABLED=true), then the remote API
client with its rate governor and the sync manager.

# Configuration

Koanf v2 layers, highest priority first: environment variables, config.yaml,
built-in defaults.

	GRAPH_ACCESS_TOKEN=<token>        # privileged credential
	RATE_LIMIT_PER_MINUTE=5
	RATE_LIMIT_PER_HOUR=150
	SYNC_INTERVAL=1h                  # 0 disables scheduled runs
	SYNC_PAGE_IDS=123,456
	SYNC_USE_JOB_CHAINING=true
	SYNC_LEADS=true
	NATS_ENABLED=true
	NATS_EMBEDDED=true
	OPERATOR_API_KEY=<key>            # protects /api/v1
	AUDIT_RETENTION=720h              # event log pruning, 0 keeps forever
	EVENT_STREAM=false                # disables the websocket feed
	SUPERVISOR_SHUTDOWN_TIMEOUT=10s

# Signals

SIGINT and SIGTERM cancel the root context. The HTTP server drains for up to
the supervisor shutdown timeout and websocket clients get a going-away close.
Background sync runs and pending job retries are awaited before the bus and
both stores are closed.
*/
package main
