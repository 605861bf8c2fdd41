// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package sync

import (
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/adsync/internal/leads"
	"github.com/tomtom215/adsync/internal/models"
)

// Run outcomes, as recorded in metrics.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Report summarizes one sync run. It is safe for concurrent updates.
type Report struct {
	mu sync.Mutex

	RunID    string   `json:"runId"`
	PageIDs  []string `json:"pageIds"`
	Strategy string   `json:"strategy"`
	Skipped  bool     `json:"skipped"`

	Campaigns models.BatchResult `json:"campaigns"`
	AdSets    models.BatchResult `json:"adSets"`
	Ads       models.BatchResult `json:"ads"`
	Leads     leads.BatchSummary `json:"leads"`

	// StepErrors are failures of whole steps, such as a list call that
	// never succeeded.
	StepErrors []models.ItemError `json:"stepErrors,omitempty"`
	Throttled  int                `json:"throttled"`
	Enqueued   int                `json:"enqueued"`

	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
	DurationMs int64         `json:"durationMs"`
}

func newReport(runID, strategy string, started time.Time) *Report {
	return &Report{
		RunID:     runID,
		Strategy:  strategy,
		StartedAt: started,
		Leads:     leads.BatchSummary{Actions: make(map[models.LeadAction]int)},
	}
}

func (r *Report) addBatch(kind StepKind, b models.BatchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch kind {
	case StepCampaigns:
		r.Campaigns.Merge(b)
	case StepAdSets:
		r.AdSets.Merge(b)
	case StepAds:
		r.Ads.Merge(b)
	}
}

func (r *Report) addLeads(s leads.BatchSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Leads.Add(s)
}

func (r *Report) stepFailed(step Step, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StepErrors = append(r.StepErrors, models.ItemError{ID: step.String(), Message: err.Error()})
}

func (r *Report) throttled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Throttled++
}

func (r *Report) enqueued() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Enqueued++
}

func (r *Report) finish(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Duration = now.Sub(r.StartedAt)
	r.DurationMs = r.Duration.Milliseconds()
}

// Totals sums created and updated entities across the three levels.
func (r *Report) Totals() (created, updated int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	created = r.Campaigns.Created + r.AdSets.Created + r.Ads.Created
	updated = r.Campaigns.Updated + r.AdSets.Updated + r.Ads.Updated
	return created, updated
}

// ErrorCount is the number of failed items and steps.
func (r *Report) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Campaigns.Errors) + len(r.AdSets.Errors) + len(r.Ads.Errors) +
		len(r.Leads.Errors) + len(r.StepErrors)
}

// Outcome classifies the run.
func (r *Report) Outcome() string {
	if r.Skipped {
		return OutcomeSkipped
	}
	errs := r.ErrorCount()
	r.mu.Lock()
	written := r.Campaigns.Created + r.Campaigns.Updated + r.AdSets.Created + r.AdSets.Updated +
		r.Ads.Created + r.Ads.Updated + r.Enqueued
	for _, n := range r.Leads.Actions {
		written += n
	}
	r.mu.Unlock()

	switch {
	case errs == 0:
		return OutcomeSuccess
	case written > 0:
		return OutcomePartial
	default:
		return OutcomeFailed
	}
}

func (r *Report) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("campaigns %d/%d ad sets %d/%d ads %d/%d (created/updated), %d step errors",
		r.Campaigns.Created, r.Campaigns.Updated,
		r.AdSets.Created, r.AdSets.Updated,
		r.Ads.Created, r.Ads.Updated,
		len(r.StepErrors))
}
