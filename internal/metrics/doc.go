// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

/*
Package metrics provides Prometheus instrumentation for Adsync.

All collectors are registered on the default registry through promauto and
exposed by the operator API at /metrics:

	curl http://localhost:8088/metrics

# Available Metrics

Remote API:
  - graph_calls_total{endpoint, outcome}
  - graph_call_duration_seconds{endpoint}
  - graph_throttle_waits_total{code}, graph_throttle_wait_seconds_total
  - graph_transient_retries_total

Rate governor:
  - rate_governor_blocks_total{window}
  - rate_governor_block_duration_seconds

Circuit breaker:
  - circuit_breaker_state{name} (0=closed, 1=half-open, 2=open)
  - circuit_breaker_requests_total{name, result}
  - circuit_breaker_state_transitions_total{name, from, to}

Sync and leads:
  - upsert_actions_total{entity, action}
  - lead_actions_total{action}, lead_errors_total
  - sync_job_attempts_total{kind, outcome}, sync_jobs_enqueued_total{kind}
  - sync_duration_seconds{strategy}, sync_runs_total{outcome}
  - sync_last_success_timestamp
  - sync_lock_contention_total{scope}
  - events_published_total{topic, outcome}

Operator API:
  - api_requests_total{method, endpoint, status}
  - api_request_duration_seconds{method, endpoint}

Endpoint labels are reduced to the edge name (campaigns, adsets, ads, ...)
so that object ids never become label values.
*/
package metrics
