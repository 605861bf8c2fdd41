// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package metrics

import (
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Remote API Metrics
	GraphCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_calls_total",
			Help: "Total number of remote ads API calls",
		},
		[]string{"endpoint", "outcome"}, // outcome: success, throttled, invalid_credentials, invalid_parameter, remote_error, transport_error
	)

	GraphCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graph_call_duration_seconds",
			Help:    "Duration of remote ads API calls in seconds, excluding governor and throttle waits",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	GraphThrottleWaitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_throttle_waits_total",
			Help: "Number of waits caused by remote throttling errors",
		},
		[]string{"code"},
	)

	GraphThrottleWaitSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graph_throttle_wait_seconds_total",
			Help: "Total time spent waiting after remote throttling errors",
		},
	)

	GraphTransientRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graph_transient_retries_total",
			Help: "Number of retries after transport failures or 5xx responses",
		},
	)

	// Rate Governor Metrics
	GovernorBlocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_governor_blocks_total",
			Help: "Number of times the rate governor blocked a caller",
		},
		[]string{"window"}, // minute, hour
	)

	GovernorBlockDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rate_governor_block_duration_seconds",
			Help:    "Time callers spent blocked by the rate governor",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Requests passed through a circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Upsert Metrics
	UpsertActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upsert_actions_total",
			Help: "Remote entities written to the local store",
		},
		[]string{"entity", "action"}, // action: created, updated, error
	)

	// Lead Metrics
	LeadActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_actions_total",
			Help: "Inbound leads by merge outcome",
		},
		[]string{"action"},
	)

	LeadErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lead_errors_total",
			Help: "Inbound leads that could not be processed",
		},
	)

	// Job Metrics
	JobAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_job_attempts_total",
			Help: "Sync job executions by kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: success, retry, failed, skipped_locked
	)

	JobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_jobs_enqueued_total",
			Help: "Sync jobs enqueued by kind",
		},
		[]string{"kind"},
	)

	// Sync Metrics
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Duration of hierarchy sync runs in seconds",
			Buckets: []float64{1, 10, 30, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"strategy"},
	)

	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Hierarchy sync runs by outcome",
		},
		[]string{"outcome"}, // success, partial, failed, skipped
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp",
			Help: "Unix timestamp of the last sync run without errors",
		},
	)

	SyncLockContentionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_lock_contention_total",
			Help: "Sync lock acquisitions refused because the unit was already locked",
		},
		[]string{"scope"},
	)

	// Event Metrics
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Domain events published to the event bus",
		},
		[]string{"topic", "outcome"},
	)

	// Operator API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of operator API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Operator API request latency in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Operator API requests currently in flight",
		},
	)

	// Application Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application build information",
		},
		[]string{"version", "go_version"},
	)
)

// Circuit breaker state values for CircuitBreakerState.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// RecordGraphCall records one remote API call.
func RecordGraphCall(endpoint, outcome string, duration time.Duration) {
	GraphCallsTotal.WithLabelValues(endpoint, outcome).Inc()
	GraphCallDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordThrottleWait records a wait after a throttling error with the given code.
func RecordThrottleWait(code int, wait time.Duration) {
	GraphThrottleWaitsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
	GraphThrottleWaitSeconds.Add(wait.Seconds())
}

// RecordGovernorBlock records the governor blocking on window.
func RecordGovernorBlock(window string, wait time.Duration) {
	GovernorBlocksTotal.WithLabelValues(window).Inc()
	GovernorBlockDuration.Observe(wait.Seconds())
}

// RecordUpsert records a remote entity write. err takes precedence over action.
func RecordUpsert(entity, action string, err error) {
	if err != nil {
		action = "error"
	}
	UpsertActionsTotal.WithLabelValues(entity, action).Inc()
}

// RecordLeadAction records the outcome of one inbound lead.
func RecordLeadAction(action string) {
	LeadActionsTotal.WithLabelValues(action).Inc()
}

// RecordJobAttempt records one job execution.
func RecordJobAttempt(kind, outcome string) {
	JobAttemptsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordSyncRun records a finished sync run. outcome is one of success,
// partial, failed, skipped.
func RecordSyncRun(strategy, outcome string, duration time.Duration) {
	SyncRunsTotal.WithLabelValues(outcome).Inc()
	if outcome == "skipped" {
		return
	}
	SyncDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	if outcome == "success" {
		SyncLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordEventPublish records a publish attempt on topic.
func RecordEventPublish(topic string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	EventsPublishedTotal.WithLabelValues(topic, outcome).Inc()
}

// RecordAPIRequest records an operator API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest moves the in-flight request gauge.
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
		return
	}
	APIActiveRequests.Dec()
}

// SetAppInfo publishes the build version.
func SetAppInfo(version string) {
	AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
}
