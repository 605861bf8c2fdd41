// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package graph

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Requested fields per edge.
const (
	pageFields      = "id,name,access_token"
	adAccountFields = "id,account_id,name,currency,account_status"
	campaignFields  = "id,account_id,name,objective,status,daily_budget,lifetime_budget,budget_remaining,start_time,stop_time"
	adSetFields     = "id,campaign_id,name,status,daily_budget,lifetime_budget,budget_remaining,bid_amount,billing_event,optimization_goal,start_time,end_time"
	adFields        = "id,adset_id,campaign_id,name,status,creative{id}"
	leadFormFields  = "id,name,status,leads_count"
	leadFields      = "id,created_time,ad_id,campaign_id,form_id,is_organic,field_data"
)

// maxPages stops a runaway cursor loop.
const maxPages = 1000

// API exposes the typed edges the sync walks, over any Caller.
type API struct {
	caller   Caller
	pageSize int
}

// NewAPI returns typed helpers over caller. pageSize is the per-request limit.
func NewAPI(caller Caller, pageSize int) *API {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &API{caller: caller, pageSize: pageSize}
}

// Call passes through to the underlying caller.
func (a *API) Call(ctx context.Context, method, endpoint string, params Params) (Payload, error) {
	return a.caller.Call(ctx, method, endpoint, params)
}

// ListPages lists the pages the credential manages (me/accounts).
func (a *API) ListPages(ctx context.Context) ([]Page, error) {
	return listAll[Page](ctx, a, "me/accounts", pageFields, nil)
}

// ListAdAccounts lists the ad accounts reachable from a page.
func (a *API) ListAdAccounts(ctx context.Context, pageID string) ([]AdAccount, error) {
	return listAll[AdAccount](ctx, a, pageID+"/adaccounts", adAccountFields, nil)
}

// ListCampaigns lists the campaigns of an ad account.
func (a *API) ListCampaigns(ctx context.Context, accountID string) ([]CampaignPayload, error) {
	return listAll[CampaignPayload](ctx, a, accountID+"/campaigns", campaignFields, nil)
}

// ListAdSets lists the ad sets of a campaign.
func (a *API) ListAdSets(ctx context.Context, campaignID string) ([]AdSetPayload, error) {
	return listAll[AdSetPayload](ctx, a, campaignID+"/adsets", adSetFields, nil)
}

// ListAds lists the ads under an ad set or a campaign.
func (a *API) ListAds(ctx context.Context, parentID string) ([]AdPayload, error) {
	return listAll[AdPayload](ctx, a, parentID+"/ads", adFields, nil)
}

// ListLeadForms lists the lead forms of a page.
func (a *API) ListLeadForms(ctx context.Context, pageID string) ([]LeadForm, error) {
	return listAll[LeadForm](ctx, a, pageID+"/leadgen_forms", leadFormFields, nil)
}

// ListLeads lists the submissions of a lead form. A non-zero since asks the
// API for submissions created in or after that second only.
func (a *API) ListLeads(ctx context.Context, formID string, since time.Time) ([]LeadPayload, error) {
	var extra Params
	if !since.IsZero() {
		filter, err := leadsSinceFilter(since)
		if err != nil {
			return nil, err
		}
		extra = Params{"filtering": filter}
	}
	return listAll[LeadPayload](ctx, a, formID+"/leads", leadFields, extra)
}

type filterClause struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    int64  `json:"value"`
}

// leadsSinceFilter keeps the boundary second itself: submissions sharing it
// are told apart by id on our side.
func leadsSinceFilter(since time.Time) (string, error) {
	b, err := json.Marshal([]filterClause{{
		Field:    "time_created",
		Operator: "GREATER_THAN",
		Value:    since.Unix() - 1,
	}})
	if err != nil {
		return "", fmt.Errorf("encode leads filter: %w", err)
	}
	return string(b), nil
}

// listAll follows paging.cursors.after until the API stops returning a next link.
func listAll[T any](ctx context.Context, a *API, endpoint, fields string, extra Params) ([]T, error) {
	params := Params{
		"fields": fields,
		"limit":  strconv.Itoa(a.pageSize),
	}
	for k, v := range extra {
		params[k] = v
	}

	var out []T
	for page := 0; page < maxPages; page++ {
		payload, err := a.caller.Call(ctx, http.MethodGet, endpoint, params)
		if err != nil {
			return out, err
		}
		var resp listResponse[T]
		if err := payload.Decode(&resp); err != nil {
			return out, fmt.Errorf("%s: %w", endpointLabel(endpoint), err)
		}
		out = append(out, resp.Data...)

		after := resp.Paging.Cursors.After
		if resp.Paging.Next == "" || after == "" || after == params["after"] {
			return out, nil
		}
		params["after"] = after
	}
	return out, fmt.Errorf("%s: more than %d pages", endpointLabel(endpoint), maxPages)
}
