// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package graph

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/adsync/internal/logging"
	"github.com/tomtom215/adsync/internal/metrics"
)

// CircuitBreakerClient wraps a Caller with a circuit breaker. Only transport
// failures count against the breaker; classified API errors (throttling,
// bad token, bad parameter) mean the remote is up and answering.
//
// The breaker runs on real time regardless of the client's Clock.
type CircuitBreakerClient struct {
	next Caller
	cb   *gobreaker.CircuitBreaker[Payload]
	name string
}

// NewBreaker builds the shared breaker for the remote API:
//   - 3 trial requests in half-open state
//   - counts reset every minute while closed
//   - 2 minutes open before half-open
//   - trips at >= 60% failures over at least 10 requests
func NewBreaker(name string) *gobreaker.CircuitBreaker[Payload] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(metrics.BreakerClosed)

	return gobreaker.NewCircuitBreaker[Payload](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= 0.6 {
				logging.Warn().
					Str("breaker", name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", ratio*100).
					Msg("Opening circuit breaker")
				return true
			}
			return false
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrTransport)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
}

// NewCircuitBreakerClient wraps next with cb. Several clients (one per
// token) may share one breaker.
func NewCircuitBreakerClient(next Caller, cb *gobreaker.CircuitBreaker[Payload]) *CircuitBreakerClient {
	return &CircuitBreakerClient{next: next, cb: cb, name: cb.Name()}
}

// Call implements Caller.
func (c *CircuitBreakerClient) Call(ctx context.Context, method, endpoint string, params Params) (Payload, error) {
	payload, err := c.cb.Execute(func() (Payload, error) {
		return c.next.Call(ctx, method, endpoint, params)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(c.name, "rejected").Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("endpoint", endpointLabel(endpoint)).Msg("Circuit breaker rejected remote call")
		return nil, errors.Join(ErrTransport, err)
	case err != nil && errors.Is(err, ErrTransport):
		metrics.CircuitBreakerRequests.WithLabelValues(c.name, "failure").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(c.name, "success").Inc()
	}
	return payload, err
}

// State returns the breaker state.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.cb.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return metrics.BreakerClosed
	case gobreaker.StateHalfOpen:
		return metrics.BreakerHalfOpen
	case gobreaker.StateOpen:
		return metrics.BreakerOpen
	default:
		return -1
	}
}
