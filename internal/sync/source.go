// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package sync

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/adsync/internal/graph"
	"github.com/tomtom215/adsync/internal/ratelimit"
)

// Source lists the remote hierarchy. *graph.API implements it.
type Source interface {
	ListPages(ctx context.Context) ([]graph.Page, error)
	ListAdAccounts(ctx context.Context, pageID string) ([]graph.AdAccount, error)
	ListCampaigns(ctx context.Context, accountID string) ([]graph.CampaignPayload, error)
	ListAdSets(ctx context.Context, campaignID string) ([]graph.AdSetPayload, error)
	ListAds(ctx context.Context, parentID string) ([]graph.AdPayload, error)
	ListLeadForms(ctx context.Context, pageID string) ([]graph.LeadForm, error)
	ListLeads(ctx context.Context, formID string, since time.Time) ([]graph.LeadPayload, error)
}

// SourceFactory returns a Source authenticated with token whose calls count
// against the rate budget of scope.
type SourceFactory func(token, scope string) Source

// NewGraphSourceFactory builds sources over client. Every source shares
// governor storage and limits but counts calls under its own scope. breaker
// may be nil.
func NewGraphSourceFactory(
	client *graph.Client,
	governor *ratelimit.Governor,
	breaker *gobreaker.CircuitBreaker[graph.Payload],
	pageSize int,
) SourceFactory {
	return func(token, scope string) Source {
		c := client.WithToken(token).WithGovernor(governor.WithScope(scope))
		var caller graph.Caller = c
		if breaker != nil {
			caller = graph.NewCircuitBreakerClient(c, breaker)
		}
		return graph.NewAPI(caller, pageSize)
	}
}
