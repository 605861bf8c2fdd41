// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package leads

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/adsync/internal/models"
)

// DefaultSourceName is the lead source attached to created leads.
const DefaultSourceName = "Facebook Lead Ads"

// Store is the transactional view the merge engine writes through.
// *database.LeadTx implements it.
type Store interface {
	Finder
	Now() time.Time
	InsertLead(ctx context.Context, l *models.Lead) error
	UpdateLead(ctx context.Context, l *models.Lead) error
	GetOrCreateLeadSource(ctx context.Context, name string) (*models.LeadSource, error)
}

// Outcome is what the engine did with one inbound lead.
type Outcome struct {
	Action    models.LeadAction
	LeadID    uuid.UUID
	MatchKind models.MatchKind // empty for created leads
}

// Engine applies the merge policy for a resolved (or unresolved) lead.
type Engine struct {
	sourceName string
}

// NewEngine returns an engine attaching sourceName to created leads.
func NewEngine(sourceName string) *Engine {
	if sourceName == "" {
		sourceName = DefaultSourceName
	}
	return &Engine{sourceName: sourceName}
}

// Apply creates, updates or skips according to how the lead was matched.
// It must run inside the same transaction as Resolve.
func (e *Engine) Apply(ctx context.Context, tx Store, match *Match, in *models.InboundLead) (Outcome, error) {
	if match == nil {
		return e.create(ctx, tx, in)
	}

	existing := match.Lead
	out := Outcome{LeadID: existing.ID, MatchKind: match.Kind}

	switch match.Kind {
	case models.MatchExternalID:
		if !existing.Status.IsWorked() {
			out.Action = models.LeadDuplicateSkipped
			return out, nil
		}
		existing.Tags = existing.Tags.Add(models.TagContactedAgain, in.FormName)
		existing.LastActivityAt = tx.Now()
		out.Action = models.LeadMarkedContactedAgain

	default:
		if existing.ExternalID == "" {
			existing.ExternalID = in.ExternalID
			existing.FormExternalID = in.FormExternalID
			existing.FormName = in.FormName
			existing.AdExternalID = in.AdExternalID
			existing.CampaignExternalID = in.CampaignExternalID
			existing.IsOrganic = in.IsOrganic
		}
		existing.Tags = existing.Tags.
			Add(models.TagMultiChannel, string(match.Kind)).
			Add(models.TagFacebookLead, in.FormName)
		if existing.Status.IsWorked() {
			existing.Tags = existing.Tags.Add(models.TagContactedAgain, in.FormName)
		}
		existing.LastActivityAt = tx.Now()
		out.Action = models.LeadMergedWithExisting
	}

	if err := tx.UpdateLead(ctx, existing); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

func (e *Engine) create(ctx context.Context, tx Store, in *models.InboundLead) (Outcome, error) {
	lead := MapInbound(in)
	lead.ExternalID = in.ExternalID
	lead.FormExternalID = in.FormExternalID
	lead.FormName = in.FormName
	lead.AdExternalID = in.AdExternalID
	lead.CampaignExternalID = in.CampaignExternalID
	lead.IsOrganic = in.IsOrganic
	lead.Status = models.InquiryNew

	src, err := tx.GetOrCreateLeadSource(ctx, e.sourceName)
	if err != nil {
		return Outcome{}, err
	}
	lead.LeadSourceID = &src.ID

	lead.Tags = lead.Tags.Add(models.TagFacebookLead, in.FormName)
	if in.IsOrganic {
		lead.Tags = lead.Tags.Add(models.TagOrganic, "true")
	}
	lead.Score = Score(lead)

	if !in.CreatedTime.IsZero() {
		lead.CreatedAt = in.CreatedTime
	}
	lead.LastActivityAt = tx.Now()

	if err := tx.InsertLead(ctx, lead); err != nil {
		return Outcome{}, fmt.Errorf("create lead for %s: %w", in.ExternalID, err)
	}
	return Outcome{Action: models.LeadCreated, LeadID: lead.ID}, nil
}
