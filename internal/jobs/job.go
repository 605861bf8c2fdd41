// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package jobs

import (
	"context"
	"errors"
	"time"
)

// Kind names the unit of sync work a job performs.
type Kind string

const (
	KindCampaigns Kind = "campaigns_for_page"
	KindAdSets    Kind = "adsets_for_campaign"
	KindAds       Kind = "ads_for_adset"
	KindLeads     Kind = "leads_for_form"
)

// Job is one independently retryable sync step.
type Job struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	Target string `json:"target"`

	// Params carries the context the step needs beyond its target, such as
	// the owning page or campaign.
	Params map[string]string `json:"params,omitempty"`

	// Attempt counts previous executions, starting at 0.
	Attempt int `json:"attempt"`

	EnqueuedAt    time.Time `json:"enqueued_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// Param returns a named parameter or "".
func (j Job) Param(name string) string {
	return j.Params[name]
}

// Handler executes one job. Returning an error schedules a retry unless the
// error is Permanent, the schedule is exhausted, or the job is past its
// deadline.
type Handler func(ctx context.Context, job Job) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
