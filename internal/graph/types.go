// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package graph

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/adsync/internal/models"
)

// timeLayout is the remote timestamp format, e.g. 2026-03-01T10:00:00+0000.
const timeLayout = "2006-01-02T15:04:05-0700"

// ErrInvalidAmount marks a money field the API sent in an unexpected form.
var ErrInvalidAmount = errors.New("invalid amount")

// Amount is a money value in minor units (cents). The API sends these as
// decimal strings, occasionally as bare numbers, and omits them when unset.
// A value that does not parse is kept in Raw so the item carrying it can be
// rejected on its own instead of failing the whole listing.
type Amount struct {
	Minor int64
	Valid bool
	Raw   string
}

// UnmarshalJSON accepts "12345", 12345, "" and null. Anything else is kept
// in Raw.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = Amount{}
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*a = Amount{}
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		*a = Amount{Raw: s}
		return nil
	}
	*a = Amount{Minor: n, Valid: true}
	return nil
}

// Err returns ErrInvalidAmount, with the raw text, when a did not parse.
func (a Amount) Err() error {
	if a.Raw == "" {
		return nil
	}
	return fmt.Errorf("%w %q", ErrInvalidAmount, a.Raw)
}

// amountsErr reports the first malformed amount, naming its field.
func amountsErr(names []string, amounts ...Amount) error {
	for i, a := range amounts {
		if err := a.Err(); err != nil {
			return fmt.Errorf("%s: %w", names[i], err)
		}
	}
	return nil
}

var (
	campaignAmountFields = []string{"daily_budget", "lifetime_budget", "budget_remaining"}
	adSetAmountFields    = []string{"daily_budget", "lifetime_budget", "budget_remaining", "bid_amount"}
)

// Page is a page the credential manages.
type Page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token,omitempty"`
}

// AdAccount is an advertising account reachable from a page.
type AdAccount struct {
	ID            string `json:"id"` // act_<account_id>
	AccountID     string `json:"account_id"`
	Name          string `json:"name"`
	Currency      string `json:"currency"`
	AccountStatus int    `json:"account_status"`
}

// CampaignPayload is a campaign as returned by {account}/campaigns.
type CampaignPayload struct {
	ID              string `json:"id"`
	AccountID       string `json:"account_id"`
	Name            string `json:"name"`
	Objective       string `json:"objective"`
	Status          string `json:"status"`
	DailyBudget     Amount `json:"daily_budget"`
	LifetimeBudget  Amount `json:"lifetime_budget"`
	BudgetRemaining Amount `json:"budget_remaining"`
	StartTime       string `json:"start_time"`
	StopTime        string `json:"stop_time"`
}

// Validate reports a malformed money field.
func (p CampaignPayload) Validate() error {
	return amountsErr(campaignAmountFields, p.DailyBudget, p.LifetimeBudget, p.BudgetRemaining)
}

// AdSetPayload is an ad set as returned by {campaign}/adsets.
type AdSetPayload struct {
	ID               string `json:"id"`
	CampaignID       string `json:"campaign_id"`
	Name             string `json:"name"`
	Status           string `json:"status"`
	DailyBudget      Amount `json:"daily_budget"`
	LifetimeBudget   Amount `json:"lifetime_budget"`
	BudgetRemaining  Amount `json:"budget_remaining"`
	BidAmount        Amount `json:"bid_amount"`
	BillingEvent     string `json:"billing_event"`
	OptimizationGoal string `json:"optimization_goal"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
}

// Validate reports a malformed money field.
func (p AdSetPayload) Validate() error {
	return amountsErr(adSetAmountFields, p.DailyBudget, p.LifetimeBudget, p.BudgetRemaining, p.BidAmount)
}

// AdPayload is an ad as returned by {adset}/ads.
type AdPayload struct {
	ID         string `json:"id"`
	AdSetID    string `json:"adset_id"`
	CampaignID string `json:"campaign_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Creative   struct {
		ID string `json:"id"`
	} `json:"creative"`
}

// LeadForm is a lead generation form on a page.
type LeadForm struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	LeadsCount int    `json:"leads_count"`
}

// LeadPayload is one submission as returned by {form}/leads.
type LeadPayload struct {
	ID          string              `json:"id"`
	CreatedTime string              `json:"created_time"`
	AdID        string              `json:"ad_id"`
	CampaignID  string              `json:"campaign_id"`
	FormID      string              `json:"form_id"`
	IsOrganic   bool                `json:"is_organic"`
	FieldData   []models.FieldValue `json:"field_data"`
}

// Inbound converts the payload for the lead resolver. formName is taken from
// the form the lead was listed under.
func (l LeadPayload) Inbound(formID, formName string) models.InboundLead {
	in := models.InboundLead{
		ExternalID:         l.ID,
		FormExternalID:     l.FormID,
		FormName:           formName,
		AdExternalID:       l.AdID,
		CampaignExternalID: l.CampaignID,
		IsOrganic:          l.IsOrganic,
		Fields:             l.FieldData,
	}
	if in.FormExternalID == "" {
		in.FormExternalID = formID
	}
	if t := ParseTime(l.CreatedTime); t != nil {
		in.CreatedTime = *t
	}
	return in
}

// ParseTime parses a remote timestamp, returning nil for empty or
// unparseable input.
func ParseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{timeLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// listResponse is one page of an edge listing.
type listResponse[T any] struct {
	Data   []T `json:"data"`
	Paging struct {
		Cursors struct {
			Before string `json:"before"`
			After  string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}
