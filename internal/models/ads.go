// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

// Package models defines the data structures shared across Adsync: the
// advertising hierarchy (Campaign, AdSet, Ad), leads and their sources, and
// the results reported by a sync run.
package models

import (
	"strings"
	"time"
)

// EntityStatus is the delivery status the ads platform reports for a
// campaign, ad set or ad. Unknown values are kept verbatim (upper-cased).
type EntityStatus string

const (
	StatusActive     EntityStatus = "ACTIVE"
	StatusPaused     EntityStatus = "PAUSED"
	StatusDeleted    EntityStatus = "DELETED"
	StatusArchived   EntityStatus = "ARCHIVED"
	StatusInProcess  EntityStatus = "IN_PROCESS"
	StatusWithIssues EntityStatus = "WITH_ISSUES"
)

// NormalizeStatus upper-cases and trims a remote status value.
func NormalizeStatus(s string) EntityStatus {
	return EntityStatus(strings.ToUpper(strings.TrimSpace(s)))
}

// EntityKind names a level of the ad hierarchy.
type EntityKind string

const (
	KindCampaign EntityKind = "campaign"
	KindAdSet    EntityKind = "adset"
	KindAd       EntityKind = "ad"
	KindLead     EntityKind = "lead"
)

// Campaign is the top level of the ad hierarchy.
//
// Money fields are stored in major currency units. The remote API reports
// them in minor units (cents); conversion happens in the upsert layer.
type Campaign struct {
	ExternalID      string       `json:"external_id"`
	AccountID       string       `json:"account_id,omitempty"`
	PageID          string       `json:"page_id,omitempty"`
	Name            string       `json:"name"`
	Objective       string       `json:"objective,omitempty"`
	Status          EntityStatus `json:"status"`
	DailyBudget     *float64     `json:"daily_budget,omitempty"`
	LifetimeBudget  *float64     `json:"lifetime_budget,omitempty"`
	BudgetRemaining *float64     `json:"budget_remaining,omitempty"`
	StartTime       *time.Time   `json:"start_time,omitempty"`
	StopTime        *time.Time   `json:"stop_time,omitempty"`
	LastSynced      time.Time    `json:"last_synced"`
}

// AdSet belongs to exactly one Campaign.
type AdSet struct {
	ExternalID         string       `json:"external_id"`
	CampaignExternalID string       `json:"campaign_external_id"`
	Name               string       `json:"name"`
	Status             EntityStatus `json:"status"`
	DailyBudget        *float64     `json:"daily_budget,omitempty"`
	LifetimeBudget     *float64     `json:"lifetime_budget,omitempty"`
	BudgetRemaining    *float64     `json:"budget_remaining,omitempty"`
	BidAmount          *float64     `json:"bid_amount,omitempty"`
	BillingEvent       string       `json:"billing_event,omitempty"`
	OptimizationGoal   string       `json:"optimization_goal,omitempty"`
	StartTime          *time.Time   `json:"start_time,omitempty"`
	EndTime            *time.Time   `json:"end_time,omitempty"`
	LastSynced         time.Time    `json:"last_synced"`
}

// Ad belongs to one AdSet and, through it, one Campaign.
type Ad struct {
	ExternalID         string       `json:"external_id"`
	CampaignExternalID string       `json:"campaign_external_id"`
	AdSetExternalID    string       `json:"adset_external_id"`
	Name               string       `json:"name"`
	Status             EntityStatus `json:"status"`
	CreativeID         string       `json:"creative_id,omitempty"`
	LastSynced         time.Time    `json:"last_synced"`
}
