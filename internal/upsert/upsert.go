// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

// Package upsert converts remote ad payloads into local records and writes
// them, one item at a time, keyed by external id.
//
// Money fields arrive in minor units (cents) and are stored in major units.
// A failed item is recorded in the batch result and never aborts the batch.
// Every batch publishes a sync-completed event.
package upsert

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/adsync/internal/database"
	"github.com/tomtom215/adsync/internal/events"
	"github.com/tomtom215/adsync/internal/graph"
	"github.com/tomtom215/adsync/internal/logging"
	"github.com/tomtom215/adsync/internal/metrics"
	"github.com/tomtom215/adsync/internal/models"
)

// Store is the persistence the upserter writes to. *database.DB implements it.
type Store interface {
	UpsertCampaign(ctx context.Context, c *models.Campaign) (models.UpsertAction, error)
	UpsertAdSet(ctx context.Context, a *models.AdSet) (models.UpsertAction, error)
	UpsertAd(ctx context.Context, ad *models.Ad) (models.UpsertAction, error)
}

// Upserter writes remote entities through a Store.
type Upserter struct {
	store   Store
	emitter events.Emitter
}

// New returns an Upserter. emitter may be nil.
func New(store Store, emitter events.Emitter) *Upserter {
	return &Upserter{store: store, emitter: emitter}
}

// Campaign writes one campaign. A malformed money field rejects it with
// graph.ErrInvalidAmount.
func (u *Upserter) Campaign(ctx context.Context, p graph.CampaignPayload, pageID string) (models.UpsertAction, error) {
	if err := p.Validate(); err != nil {
		metrics.RecordUpsert(string(models.KindCampaign), "", err)
		return "", err
	}
	action, err := u.store.UpsertCampaign(ctx, CampaignFromPayload(p, pageID))
	metrics.RecordUpsert(string(models.KindCampaign), string(action), err)
	return action, err
}

// AdSet writes one ad set.
func (u *Upserter) AdSet(ctx context.Context, p graph.AdSetPayload) (models.UpsertAction, error) {
	if err := p.Validate(); err != nil {
		metrics.RecordUpsert(string(models.KindAdSet), "", err)
		return "", err
	}
	action, err := u.store.UpsertAdSet(ctx, AdSetFromPayload(p))
	metrics.RecordUpsert(string(models.KindAdSet), string(action), err)
	return action, err
}

// Ad writes one ad.
func (u *Upserter) Ad(ctx context.Context, p graph.AdPayload) (models.UpsertAction, error) {
	action, err := u.store.UpsertAd(ctx, AdFromPayload(p))
	metrics.RecordUpsert(string(models.KindAd), string(action), err)
	return action, err
}

// Campaigns writes a batch of campaigns found under pageID.
func (u *Upserter) Campaigns(ctx context.Context, items []graph.CampaignPayload, pageID string) models.BatchResult {
	return runBatch(ctx, u, "campaigns", items,
		func(p graph.CampaignPayload) string { return p.ID },
		func(ctx context.Context, p graph.CampaignPayload) (models.UpsertAction, error) {
			return u.Campaign(ctx, p, pageID)
		})
}

// AdSets writes a batch of ad sets.
func (u *Upserter) AdSets(ctx context.Context, items []graph.AdSetPayload) models.BatchResult {
	return runBatch(ctx, u, "adsets", items,
		func(p graph.AdSetPayload) string { return p.ID },
		u.AdSet)
}

// Ads writes a batch of ads.
func (u *Upserter) Ads(ctx context.Context, items []graph.AdPayload) models.BatchResult {
	return runBatch(ctx, u, "ads", items,
		func(p graph.AdPayload) string { return p.ID },
		u.Ad)
}

func runBatch[T any](
	ctx context.Context,
	u *Upserter,
	kind string,
	items []T,
	id func(T) string,
	write func(context.Context, T) (models.UpsertAction, error),
) models.BatchResult {
	start := time.Now()
	var result models.BatchResult

	for _, item := range items {
		action, err := write(ctx, item)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("kind", kind).Str("external_id", id(item)).Msg("Failed to upsert item")
			result.Fail(id(item), err)
			result.Errors[len(result.Errors)-1].MissingParent = errors.Is(err, database.ErrMissingParent)
			continue
		}
		result.Record(action)
	}

	logging.Ctx(ctx).Debug().
		Str("kind", kind).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("errors", len(result.Errors)).
		Msg("Upsert batch complete")

	events.EmitQuietly(ctx, u.emitter, events.SyncCompleted{
		Type:         kind,
		CreatedCount: result.Created,
		UpdatedCount: result.Updated,
		ErrorCount:   len(result.Errors),
		DurationMs:   time.Since(start).Milliseconds(),
	})
	return result
}

// CampaignFromPayload maps a remote campaign. pageID may be empty.
func CampaignFromPayload(p graph.CampaignPayload, pageID string) *models.Campaign {
	return &models.Campaign{
		ExternalID:      p.ID,
		AccountID:       p.AccountID,
		PageID:          pageID,
		Name:            p.Name,
		Objective:       p.Objective,
		Status:          models.NormalizeStatus(p.Status),
		DailyBudget:     MinorToMajor(p.DailyBudget),
		LifetimeBudget:  MinorToMajor(p.LifetimeBudget),
		BudgetRemaining: MinorToMajor(p.BudgetRemaining),
		StartTime:       graph.ParseTime(p.StartTime),
		StopTime:        graph.ParseTime(p.StopTime),
	}
}

// AdSetFromPayload maps a remote ad set.
func AdSetFromPayload(p graph.AdSetPayload) *models.AdSet {
	return &models.AdSet{
		ExternalID:         p.ID,
		CampaignExternalID: p.CampaignID,
		Name:               p.Name,
		Status:             models.NormalizeStatus(p.Status),
		DailyBudget:        MinorToMajor(p.DailyBudget),
		LifetimeBudget:     MinorToMajor(p.LifetimeBudget),
		BudgetRemaining:    MinorToMajor(p.BudgetRemaining),
		BidAmount:          MinorToMajor(p.BidAmount),
		BillingEvent:       p.BillingEvent,
		OptimizationGoal:   p.OptimizationGoal,
		StartTime:          graph.ParseTime(p.StartTime),
		EndTime:            graph.ParseTime(p.EndTime),
	}
}

// AdFromPayload maps a remote ad.
func AdFromPayload(p graph.AdPayload) *models.Ad {
	return &models.Ad{
		ExternalID:         p.ID,
		CampaignExternalID: p.CampaignID,
		AdSetExternalID:    p.AdSetID,
		Name:               p.Name,
		Status:             models.NormalizeStatus(p.Status),
		CreativeID:         p.Creative.ID,
	}
}

// MinorToMajor converts a minor-unit amount to major units (12345 -> 123.45).
// Unset and malformed amounts stay nil.
func MinorToMajor(a graph.Amount) *float64 {
	if !a.Valid {
		return nil
	}
	v := float64(a.Minor) / 100
	return &v
}
