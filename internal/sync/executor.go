// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/tomtom215/adsync/internal/leads"
	"github.com/tomtom215/adsync/internal/logging"
	"github.com/tomtom215/adsync/internal/models"
	"github.com/tomtom215/adsync/internal/upsert"
)

// ErrDependencyNotReady means a step's parent entity is not stored locally
// yet. A job-chained step retries in the expectation that the parent's own
// sync completes meanwhile.
var ErrDependencyNotReady = errors.New("parent entity not synced yet")

// StepKind is one level of the hierarchy walk.
type StepKind string

const (
	StepPage      StepKind = "page"       // target: page id
	StepCampaigns StepKind = "campaigns"  // target: ad account id
	StepAdSets    StepKind = "adsets"     // target: campaign id
	StepAds       StepKind = "ads"        // target: ad set or campaign id
	StepLeadForms StepKind = "lead_forms" // target: page id
	StepLeads     StepKind = "leads"      // target: lead form id
)

// Step is one unit of the walk.
type Step struct {
	Kind   StepKind
	Target string
	PageID string

	// Name is the form name of a leads step.
	Name string

	// Parent is the kind of Target for an ads step: campaign or ad set.
	Parent models.EntityKind
}

func (s Step) String() string {
	return string(s.Kind) + ":" + s.Target
}

// StepResult is what executing a step produced.
type StepResult struct {
	Children []Step
	Batch    models.BatchResult
}

// Parents reports whether parent entities are stored. *database.DB
// implements it.
type Parents interface {
	CampaignExists(ctx context.Context, externalID string) (bool, error)
	AdSetExists(ctx context.Context, externalID string) (bool, error)
}

// LeadCursors stores the per-form high-water marks of lead syncs.
type LeadCursors interface {
	LeadCursor(ctx context.Context, formID string) (models.LeadCursor, error)
	SaveLeadCursor(ctx context.Context, formID string, c models.LeadCursor) error
}

// Store is the local state steps consult. *database.DB implements it.
type Store interface {
	Parents
	LeadCursors
}

// Executor performs individual steps. It is shared by both runners.
type Executor struct {
	upserter *upsert.Upserter
	store    Store
	leads    *leads.Processor
}

// NewExecutor returns an executor. processor may be nil, which turns lead
// steps into no-ops.
func NewExecutor(upserter *upsert.Upserter, store Store, processor *leads.Processor) *Executor {
	return &Executor{upserter: upserter, store: store, leads: processor}
}

// SyncsLeads reports whether lead steps do anything.
func (e *Executor) SyncsLeads() bool {
	return e.leads != nil
}

// Execute fetches and stores step and returns the steps below it. Item
// failures are recorded in the result and the report; only a failure of the
// step as a whole is returned as an error.
func (e *Executor) Execute(ctx context.Context, src Source, step Step, rep *Report) (StepResult, error) {
	switch step.Kind {
	case StepPage:
		return e.page(ctx, src, step)
	case StepCampaigns:
		return e.campaigns(ctx, src, step, rep)
	case StepAdSets:
		return e.adSets(ctx, src, step, rep)
	case StepAds:
		return e.ads(ctx, src, step, rep)
	case StepLeadForms:
		return e.leadForms(ctx, src, step)
	case StepLeads:
		return e.leadBatch(ctx, src, step, rep)
	default:
		return StepResult{}, fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

func (e *Executor) page(ctx context.Context, src Source, step Step) (StepResult, error) {
	accounts, err := src.ListAdAccounts(ctx, step.Target)
	if err != nil {
		return StepResult{}, fmt.Errorf("list ad accounts of page %s: %w", step.Target, err)
	}

	var res StepResult
	for _, acct := range accounts {
		res.Children = append(res.Children, Step{Kind: StepCampaigns, Target: acct.ID, PageID: step.Target})
	}
	if e.SyncsLeads() {
		res.Children = append(res.Children, Step{Kind: StepLeadForms, Target: step.Target, PageID: step.Target})
	}

	logging.Ctx(ctx).Debug().Str("page_id", step.Target).Int("accounts", len(accounts)).Msg("Listed ad accounts")
	return res, nil
}

func (e *Executor) campaigns(ctx context.Context, src Source, step Step, rep *Report) (StepResult, error) {
	items, err := src.ListCampaigns(ctx, step.Target)
	if err != nil {
		return StepResult{}, fmt.Errorf("list campaigns of %s: %w", step.Target, err)
	}

	batch := e.upserter.Campaigns(ctx, items, step.PageID)
	rep.addBatch(StepCampaigns, batch)

	failed := failedIDs(batch)
	res := StepResult{Batch: batch}
	for _, c := range items {
		if !failed[c.ID] {
			res.Children = append(res.Children, Step{Kind: StepAdSets, Target: c.ID, PageID: step.PageID})
		}
	}
	return res, nil
}

func (e *Executor) adSets(ctx context.Context, src Source, step Step, rep *Report) (StepResult, error) {
	if err := e.requireParent(ctx, models.KindCampaign, step.Target); err != nil {
		return StepResult{}, err
	}

	items, err := src.ListAdSets(ctx, step.Target)
	if err != nil {
		return StepResult{}, fmt.Errorf("list ad sets of campaign %s: %w", step.Target, err)
	}

	batch := e.upserter.AdSets(ctx, items)
	rep.addBatch(StepAdSets, batch)

	failed := failedIDs(batch)
	res := StepResult{Batch: batch}
	for _, s := range items {
		if !failed[s.ID] {
			res.Children = append(res.Children, Step{Kind: StepAds, Target: s.ID, PageID: step.PageID, Parent: models.KindAdSet})
		}
	}
	return res, nil
}

func (e *Executor) ads(ctx context.Context, src Source, step Step, rep *Report) (StepResult, error) {
	parent := step.Parent
	if parent == "" {
		parent = models.KindAdSet
	}
	if err := e.requireParent(ctx, parent, step.Target); err != nil {
		return StepResult{}, err
	}

	items, err := src.ListAds(ctx, step.Target)
	if err != nil {
		return StepResult{}, fmt.Errorf("list ads of %s %s: %w", parent, step.Target, err)
	}

	batch := e.upserter.Ads(ctx, items)
	rep.addBatch(StepAds, batch)
	return StepResult{Batch: batch}, nil
}

func (e *Executor) leadForms(ctx context.Context, src Source, step Step) (StepResult, error) {
	if !e.SyncsLeads() {
		return StepResult{}, nil
	}
	forms, err := src.ListLeadForms(ctx, step.Target)
	if err != nil {
		return StepResult{}, fmt.Errorf("list lead forms of page %s: %w", step.Target, err)
	}

	var res StepResult
	for _, f := range forms {
		res.Children = append(res.Children, Step{Kind: StepLeads, Target: f.ID, PageID: step.PageID, Name: f.Name})
	}
	return res, nil
}

// leadBatch processes the submissions of one form that arrived since the
// form's cursor. The cursor advances over the leading run of committed
// submissions, so a failed one is fetched again by the next sync.
func (e *Executor) leadBatch(ctx context.Context, src Source, step Step, rep *Report) (StepResult, error) {
	if !e.SyncsLeads() {
		return StepResult{}, nil
	}
	cursor, err := e.store.LeadCursor(ctx, step.Target)
	if err != nil {
		return StepResult{}, err
	}
	payloads, err := src.ListLeads(ctx, step.Target, cursor.CreatedAt)
	if err != nil {
		return StepResult{}, fmt.Errorf("list leads of form %s: %w", step.Target, err)
	}

	batch := make([]models.InboundLead, 0, len(payloads))
	for _, p := range payloads {
		in := p.Inbound(step.Target, step.Name)
		if cursor.Covers(in.ExternalID, in.CreatedTime) {
			continue
		}
		batch = append(batch, in)
	}
	slices.SortStableFunc(batch, func(a, b models.InboundLead) int {
		return a.CreatedTime.Compare(b.CreatedTime)
	})

	summary := e.leads.ProcessBatch(ctx, batch)
	rep.addLeads(summary)

	next := cursor.Advance(committedPrefix(batch, summary.Errors))
	if !next.Equal(cursor) {
		if err := e.store.SaveLeadCursor(ctx, step.Target, next); err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("form_id", step.Target).Msg("Failed to advance lead cursor")
		}
	}

	logging.Ctx(ctx).Info().
		Str("form_id", step.Target).
		Str("form_name", step.Name).
		Int("fetched", len(payloads)).
		Int("leads", len(batch)).
		Int("errors", len(summary.Errors)).
		Time("cursor", next.CreatedAt).
		Msg("Lead form synced")
	return StepResult{}, nil
}

// committedPrefix returns the submissions before the first failed one.
func committedPrefix(batch []models.InboundLead, errs []models.ItemError) []models.InboundLead {
	if len(errs) == 0 {
		return batch
	}
	failed := make(map[string]bool, len(errs))
	for _, e := range errs {
		failed[e.ID] = true
	}
	for i, in := range batch {
		if failed[in.ExternalID] {
			return batch[:i]
		}
	}
	return batch
}

func (e *Executor) requireParent(ctx context.Context, kind models.EntityKind, id string) error {
	var (
		ok  bool
		err error
	)
	switch kind {
	case models.KindCampaign:
		ok, err = e.store.CampaignExists(ctx, id)
	case models.KindAdSet:
		ok, err = e.store.AdSetExists(ctx, id)
	default:
		return fmt.Errorf("unsupported parent kind %q", kind)
	}
	if err != nil {
		return fmt.Errorf("check %s %s: %w", kind, id, err)
	}
	if !ok {
		return fmt.Errorf("%s %s: %w", kind, id, ErrDependencyNotReady)
	}
	return nil
}

func failedIDs(b models.BatchResult) map[string]bool {
	if len(b.Errors) == 0 {
		return nil
	}
	out := make(map[string]bool, len(b.Errors))
	for _, e := range b.Errors {
		out[e.ID] = true
	}
	return out
}
