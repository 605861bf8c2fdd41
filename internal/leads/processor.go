// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

// Package leads resolves inbound lead-form submissions against existing leads
// and applies the merge policy.
//
// Resolution and merge for one submission run in a single database
// transaction. Events are published only after the transaction commits.
package leads

import (
	"context"
	"fmt"

	"github.com/tomtom215/adsync/internal/database"
	"github.com/tomtom215/adsync/internal/events"
	"github.com/tomtom215/adsync/internal/logging"
	"github.com/tomtom215/adsync/internal/metrics"
	"github.com/tomtom215/adsync/internal/models"
)

// TxRunner opens lead transactions. *database.DB implements it.
type TxRunner interface {
	InLeadTx(ctx context.Context, fn func(tx *database.LeadTx) error) error
}

// BatchSummary counts the outcome of a batch.
type BatchSummary struct {
	Actions map[models.LeadAction]int `json:"actions"`
	Errors  []models.ItemError        `json:"errors,omitempty"`
}

// Add folds other into s.
func (s *BatchSummary) Add(other BatchSummary) {
	if s.Actions == nil {
		s.Actions = make(map[models.LeadAction]int)
	}
	for action, n := range other.Actions {
		s.Actions[action] += n
	}
	s.Errors = append(s.Errors, other.Errors...)
}

// Processor runs resolution and merge for inbound leads.
type Processor struct {
	db      TxRunner
	engine  *Engine
	emitter events.Emitter
}

// NewProcessor returns a processor writing through db. emitter may be nil.
func NewProcessor(db TxRunner, engine *Engine, emitter events.Emitter) *Processor {
	return &Processor{db: db, engine: engine, emitter: emitter}
}

// Process resolves and merges one inbound lead atomically.
func (p *Processor) Process(ctx context.Context, in models.InboundLead) (Outcome, error) {
	var out Outcome
	err := p.db.InLeadTx(ctx, func(tx *database.LeadTx) error {
		match, err := Resolve(ctx, tx, &in)
		if err != nil {
			return err
		}
		out, err = p.engine.Apply(ctx, tx, match, &in)
		return err
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("process lead %s: %w", in.ExternalID, err)
	}

	metrics.RecordLeadAction(string(out.Action))
	logging.Ctx(ctx).Debug().
		Str("external_id", in.ExternalID).
		Str("lead_id", out.LeadID.String()).
		Str("action", string(out.Action)).
		Str("match", string(out.MatchKind)).
		Msg("Lead processed")

	if out.Action != models.LeadDuplicateSkipped {
		events.EmitQuietly(ctx, p.emitter, events.LeadProcessed{
			Action:         out.Action,
			LeadID:         out.LeadID.String(),
			ExternalLeadID: in.ExternalID,
			FormName:       in.FormName,
		})
	}
	return out, nil
}

// ProcessBatch processes every lead in order. A failed lead is logged,
// reported as an error-occurred event and skipped.
func (p *Processor) ProcessBatch(ctx context.Context, batch []models.InboundLead) BatchSummary {
	summary := BatchSummary{Actions: make(map[models.LeadAction]int)}

	for _, in := range batch {
		out, err := p.Process(ctx, in)
		if err != nil {
			metrics.LeadErrorsTotal.Inc()
			logging.Ctx(ctx).Error().Err(err).Str("external_id", in.ExternalID).Str("form_id", in.FormExternalID).
				Msg("Failed to process lead")
			summary.Errors = append(summary.Errors, models.ItemError{ID: in.ExternalID, Message: err.Error()})
			events.EmitQuietly(ctx, p.emitter, events.ErrorOccurred{
				Type:     "lead_processing",
				Severity: events.SeverityError,
				Message:  err.Error(),
			})
			continue
		}
		summary.Actions[out.Action]++
	}
	return summary
}
