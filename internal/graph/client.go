// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

// Package graph is the client for the Graph-style ads API.
//
// Every call goes through the rate governor (Acquire before, Record after),
// classifies the remote error envelope, waits out throttling with a long
// linear backoff, and retries transport failures with a short exponential
// one. All waits block the calling goroutine through the injected Clock; the
// context only cuts them short on shutdown.
package graph

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/adsync/internal/config"
	"github.com/tomtom215/adsync/internal/logging"
	"github.com/tomtom215/adsync/internal/metrics"
	"github.com/tomtom215/adsync/internal/ratelimit"
)

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 16 << 20

// Params are query (GET) or form (POST) parameters of a call.
type Params map[string]string

// Payload is the raw JSON body of a successful call.
type Payload []byte

// Decode unmarshals the payload into v.
func (p Payload) Decode(v any) error {
	if err := json.Unmarshal(p, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// Caller performs one remote call. Client and CircuitBreakerClient implement it.
type Caller interface {
	Call(ctx context.Context, method, endpoint string, params Params) (Payload, error)
}

// RetryPolicy holds the throttle and transient retry settings.
type RetryPolicy struct {
	ThrottleBase      time.Duration
	ThrottleStep      time.Duration
	ThrottleEscalated time.Duration
	ThrottleRetries   int

	TransientBase    time.Duration
	TransientCap     time.Duration
	TransientRetries int
}

// PolicyFromConfig converts the throttle config section.
func PolicyFromConfig(cfg config.ThrottleConfig) RetryPolicy {
	return RetryPolicy{
		ThrottleBase:      cfg.BaseDelay,
		ThrottleStep:      cfg.StepDelay,
		ThrottleEscalated: cfg.EscalatedDelay,
		ThrottleRetries:   cfg.MaxRetries,
		TransientBase:     cfg.TransientBase,
		TransientCap:      cfg.TransientCap,
		TransientRetries:  cfg.TransientRetries,
	}
}

// throttleDelay is base + attempt*step, or escalated + attempt*step for the
// escalated subcode. attempt counts from zero.
func (p RetryPolicy) throttleDelay(subcode, attempt int) time.Duration {
	base := p.ThrottleBase
	if subcode == SubcodeEscalatedThrottle {
		base = p.ThrottleEscalated
	}
	return base + time.Duration(attempt)*p.ThrottleStep
}

// transientDelay is min(base*2^(attempt-1), cap). attempt counts from one.
func (p RetryPolicy) transientDelay(attempt int) time.Duration {
	d := p.TransientBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.TransientCap > 0 && d >= p.TransientCap {
			return p.TransientCap
		}
	}
	if p.TransientCap > 0 && d > p.TransientCap {
		return p.TransientCap
	}
	return d
}

// Client is the rate-governed HTTP client. It is safe for concurrent use,
// but the governor serializes callers sharing a scope only by budget, not by
// order; run one walker per account.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	token          string
	governor       *ratelimit.Governor
	clock          ratelimit.Clock
	policy         RetryPolicy
	interCallDelay time.Duration
}

// NewClient builds a client for the versioned API root in cfg. The governor
// may be shared; its clock is used for every wait.
func NewClient(cfg config.GraphConfig, throttle config.ThrottleConfig, governor *ratelimit.Governor) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        strings.TrimRight(cfg.GraphEndpoint(), "/"),
		token:          cfg.AccessToken,
		governor:       governor,
		clock:          governor.Clock(),
		policy:         PolicyFromConfig(throttle),
		interCallDelay: cfg.InterCallDelay,
	}
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// WithGovernor returns a copy of c counting calls against g.
func (c *Client) WithGovernor(g *ratelimit.Governor) *Client {
	cp := *c
	cp.governor = g
	cp.clock = g.Clock()
	return &cp
}

// WithHTTPClient returns a copy of c using hc for transport.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	cp := *c
	cp.httpClient = hc
	return &cp
}

// Call performs one logical remote call, retrying as the error policy allows.
func (c *Client) Call(ctx context.Context, method, endpoint string, params Params) (Payload, error) {
	label := endpointLabel(endpoint)
	log := logging.Ctx(ctx)

	throttleAttempt := 0
	transientAttempt := 0

	for {
		if err := c.governor.Acquire(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		status, body, err := c.do(ctx, method, endpoint, params)
		elapsed := time.Since(start)

		if recErr := c.governor.Record(ctx); recErr != nil {
			log.Warn().Err(recErr).Msg("Failed to record remote call against rate budget")
		}

		var apiErr *APIError
		if err == nil {
			apiErr = decodeEnvelope(status, body)
		}

		switch {
		case apiErr != nil && apiErr.Throttled():
			metrics.RecordGraphCall(label, outcomeThrottled, elapsed)
			if throttleAttempt >= c.policy.ThrottleRetries {
				log.Error().
					Int("code", apiErr.Code).
					Int("subcode", apiErr.Subcode).
					Int("retries", throttleAttempt).
					Str("endpoint", label).
					Msg("Remote throttling persisted past retry budget")
				return nil, fmt.Errorf("%s %s: %w", method, label, apiErr)
			}
			wait := c.policy.throttleDelay(apiErr.Subcode, throttleAttempt)
			throttleAttempt++
			log.Warn().
				Int("code", apiErr.Code).
				Int("subcode", apiErr.Subcode).
				Str("trace_id", apiErr.TraceID).
				Int("attempt", throttleAttempt).
				Dur("wait", wait).
				Str("endpoint", label).
				Msg("Remote API throttled, backing off")
			metrics.RecordThrottleWait(apiErr.Code, wait)
			if err := c.clock.Sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue

		case apiErr != nil:
			metrics.RecordGraphCall(label, apiErr.outcome(), elapsed)
			ev := log.Error().
				Int("code", apiErr.Code).
				Int("subcode", apiErr.Subcode).
				Str("type", apiErr.Type).
				Str("trace_id", apiErr.TraceID).
				Str("endpoint", label)
			if apiErr.Code == CodeInvalidParameter {
				ev = ev.Interface("params", logging.RedactParams(params))
			}
			ev.Msg(apiErr.Message)
			return nil, fmt.Errorf("%s %s: %w", method, label, apiErr)
		}

		if err == nil && (status >= 500 || !json.Valid(body)) {
			err = fmt.Errorf("unexpected response: status %d, %d bytes", status, len(body))
		} else if err == nil && (status < 200 || status > 299) {
			metrics.RecordGraphCall(label, outcomeRemoteError, elapsed)
			return nil, fmt.Errorf("%s %s: status %d: %w", method, label, status, ErrRemote)
		}

		if err != nil {
			metrics.RecordGraphCall(label, outcomeTransportError, elapsed)
			transientAttempt++
			if transientAttempt > c.policy.TransientRetries {
				log.Error().Err(err).Str("endpoint", label).Int("retries", transientAttempt-1).
					Msg("Remote call failed after transient retries")
				return nil, fmt.Errorf("%s %s: %w: %v", method, label, ErrTransport, err)
			}
			wait := c.policy.transientDelay(transientAttempt)
			log.Warn().Err(err).Str("endpoint", label).Int("attempt", transientAttempt).Dur("wait", wait).
				Msg("Transient remote failure, retrying")
			metrics.GraphTransientRetriesTotal.Inc()
			if err := c.clock.Sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		metrics.RecordGraphCall(label, outcomeSuccess, elapsed)
		if c.interCallDelay > 0 {
			// A cancelled context surfaces on the next Acquire.
			_ = c.clock.Sleep(ctx, c.interCallDelay)
		}
		return Payload(body), nil
	}
}

// do sends one HTTP request. A non-nil error means no usable response.
func (c *Client) do(ctx context.Context, method, endpoint string, params Params) (int, []byte, error) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	values.Set("access_token", c.token)

	reqURL := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")

	var (
		req *http.Request
		err error
	)
	if method == http.MethodGet || method == http.MethodDelete {
		req, err = http.NewRequestWithContext(ctx, method, reqURL+"?"+values.Encode(), http.NoBody)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, reqURL, bytes.NewBufferString(values.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// decodeEnvelope returns the error envelope of body, or nil when there is none.
func decodeEnvelope(status int, body []byte) *APIError {
	if !bytes.Contains(body, []byte(`"error"`)) {
		return nil
	}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return nil
	}
	if env.Error.Code == 0 && env.Error.Message == "" {
		return nil
	}
	env.Error.StatusCode = status
	return env.Error
}

// endpointLabel reduces an endpoint path to its edge so ids never reach
// metric labels: "act_1/campaigns" -> "campaigns", "123" -> "object".
func endpointLabel(endpoint string) string {
	endpoint = strings.Trim(endpoint, "/")
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	parts := strings.Split(endpoint, "/")
	if len(parts) < 2 {
		return "object"
	}
	return parts[len(parts)-1]
}
