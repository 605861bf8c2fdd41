// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package graph

import (
	"errors"
	"fmt"
)

// Error codes returned in the remote error envelope.
const (
	CodeApplicationLimit     = 4
	CodeUserRequestLimit     = 17
	CodeInvalidParameter     = 100
	CodeInvalidAccessToken   = 190
	SubcodeEscalatedThrottle = 2446079
)

// Outcome labels for metrics.
const (
	outcomeSuccess            = "success"
	outcomeThrottled          = "throttled"
	outcomeInvalidCredentials = "invalid_credentials"
	outcomeInvalidParameter   = "invalid_parameter"
	outcomeRemoteError        = "remote_error"
	outcomeTransportError     = "transport_error"
)

var (
	// ErrThrottled is returned once throttling persists past the retry budget.
	ErrThrottled = errors.New("remote API throttled")

	// ErrInvalidCredentials means the access token was rejected (code 190).
	ErrInvalidCredentials = errors.New("invalid remote API credentials")

	// ErrInvalidParameter means the request was malformed (code 100).
	ErrInvalidParameter = errors.New("invalid remote API parameter")

	// ErrRemote is any other error envelope.
	ErrRemote = errors.New("remote API error")

	// ErrTransport covers network failures, 5xx without an error envelope and
	// undecodable bodies, after transient retries are exhausted.
	ErrTransport = errors.New("remote API transport failure")
)

// APIError is the decoded error envelope:
//
//	{"error":{"message":"...","type":"OAuthException","code":190,"error_subcode":460,"fbtrace_id":"..."}}
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	if e.Subcode != 0 {
		return fmt.Sprintf("remote API error %d/%d (%s): %s", e.Code, e.Subcode, e.Type, e.Message)
	}
	return fmt.Sprintf("remote API error %d (%s): %s", e.Code, e.Type, e.Message)
}

// Is maps the error code onto the sentinel taxonomy so callers can use
// errors.Is(err, graph.ErrThrottled) and friends.
func (e *APIError) Is(target error) bool {
	return e.kind() == target
}

// Throttled reports codes 4 and 17.
func (e *APIError) Throttled() bool {
	return e.Code == CodeApplicationLimit || e.Code == CodeUserRequestLimit
}

func (e *APIError) kind() error {
	switch {
	case e.Throttled():
		return ErrThrottled
	case e.Code == CodeInvalidAccessToken:
		return ErrInvalidCredentials
	case e.Code == CodeInvalidParameter:
		return ErrInvalidParameter
	default:
		return ErrRemote
	}
}

func (e *APIError) outcome() string {
	switch e.kind() {
	case ErrThrottled:
		return outcomeThrottled
	case ErrInvalidCredentials:
		return outcomeInvalidCredentials
	case ErrInvalidParameter:
		return outcomeInvalidParameter
	default:
		return outcomeRemoteError
	}
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

// IsFatal reports whether retrying err at a higher level is pointless.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrInvalidParameter)
}
