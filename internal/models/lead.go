// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// InquiryStatus is a lead's position in the sales pipeline.
type InquiryStatus string

const (
	InquiryNew       InquiryStatus = "new"
	InquiryContacted InquiryStatus = "contacted"
	InquiryQualified InquiryStatus = "qualified"
	InquiryProposal  InquiryStatus = "proposal"
	InquiryWon       InquiryStatus = "won"
	InquiryLost      InquiryStatus = "lost"
	InquiryNurturing InquiryStatus = "nurturing"
)

// IsWorked reports whether a salesperson has already engaged the lead.
func (s InquiryStatus) IsWorked() bool {
	switch s {
	case InquiryContacted, InquiryQualified, InquiryProposal, InquiryWon:
		return true
	}
	return false
}

// Well-known tag labels applied by the merge engine.
const (
	TagFacebookLead   = "Facebook Lead"
	TagOrganic        = "Organic"
	TagContactedAgain = "Contacted Again"
	TagMultiChannel   = "Multi-Channel Lead"
)

// Tag is a label/value pair attached to a lead.
type Tag struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Tags is an insertion-ordered set of tags, unique by Label.
type Tags []Tag

// Has reports whether a tag with label is present.
func (t Tags) Has(label string) bool {
	for _, tag := range t {
		if tag.Label == label {
			return true
		}
	}
	return false
}

// Add returns t with the tag appended unless the label already exists.
func (t Tags) Add(label, value string) Tags {
	if t.Has(label) {
		return t
	}
	return append(t, Tag{Label: label, Value: value})
}

// Lead is a prospective customer. At most one Lead should exist per human;
// this is maintained by the identity resolver, not by a database constraint.
type Lead struct {
	ID uuid.UUID `json:"id"`

	// Remote identifiers. Empty when the lead did not come from the ads platform.
	ExternalID         string `json:"external_id,omitempty"`
	FormExternalID     string `json:"form_external_id,omitempty"`
	FormName           string `json:"form_name,omitempty"`
	AdExternalID       string `json:"ad_external_id,omitempty"`
	CampaignExternalID string `json:"campaign_external_id,omitempty"`

	Name            string `json:"name"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	PhoneNormalized string `json:"-"`
	City            string `json:"city,omitempty"`
	Country         string `json:"country,omitempty"`
	Occupation      string `json:"occupation,omitempty"`
	Address         string `json:"address,omitempty"`
	Detail          string `json:"detail,omitempty"`

	Status       InquiryStatus     `json:"inquiry_status"`
	Tags         Tags              `json:"tags"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`

	BudgetAmount   *float64 `json:"budget_amount,omitempty"`
	BudgetCurrency string   `json:"budget_currency,omitempty"`
	BudgetRaw      string   `json:"budget_raw,omitempty"`

	Score        int        `json:"score"`
	LeadSourceID *uuid.UUID `json:"lead_source_id,omitempty"`
	IsOrganic    bool       `json:"is_organic"`

	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LeadSource names where leads come from, e.g. "Facebook Lead Ads".
type LeadSource struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// FieldValue is one question/answer pair from a lead form submission.
type FieldValue struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// First returns the first non-blank value.
func (f FieldValue) First() string {
	for _, v := range f.Values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// InboundLead is a lead submission as received from the ads platform.
type InboundLead struct {
	ExternalID         string       `json:"id"`
	FormExternalID     string       `json:"form_id,omitempty"`
	FormName           string       `json:"form_name,omitempty"`
	AdExternalID       string       `json:"ad_id,omitempty"`
	CampaignExternalID string       `json:"campaign_id,omitempty"`
	IsOrganic          bool         `json:"is_organic"`
	CreatedTime        time.Time    `json:"created_time"`
	Fields             []FieldValue `json:"field_data"`
}

// Field returns the first non-blank answer among the given field names,
// compared case-insensitively, in the order the names are given.
func (l *InboundLead) Field(names ...string) string {
	for _, name := range names {
		for _, f := range l.Fields {
			if strings.EqualFold(f.Name, name) {
				if v := f.First(); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

// MatchKind records which identity rule matched an inbound lead.
type MatchKind string

const (
	MatchExternalID MatchKind = "external_id"
	MatchPhone      MatchKind = "phone_match"
	MatchEmail      MatchKind = "email_match"
)

// LeadAction is the outcome of processing one inbound lead.
type LeadAction string

const (
	LeadCreated              LeadAction = "created"
	LeadMarkedContactedAgain LeadAction = "marked_contacted_again"
	LeadDuplicateSkipped     LeadAction = "duplicate_skipped"
	LeadMergedWithExisting   LeadAction = "merged_with_existing"
)
