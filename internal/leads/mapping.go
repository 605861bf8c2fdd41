// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package leads

import (
	"strings"

	"github.com/tomtom215/adsync/internal/models"
	"github.com/tomtom215/adsync/internal/validation"
)

type target int

const (
	targetFullName target = iota
	targetFirstName
	targetLastName
	targetEmail
	targetPhone
	targetOccupation
	targetCompany
	targetBudget
	targetAddress
	targetCity
	targetCountry
	targetDetail
)

// CustomFieldCompany is the custom field holding the company name.
const CustomFieldCompany = "company"

type rule struct {
	target target
	match  func(key string) bool
}

func named(names ...string) func(string) bool {
	return func(key string) bool {
		for _, n := range names {
			if key == n {
				return true
			}
		}
		return false
	}
}

func containing(parts ...string) func(string) bool {
	return func(key string) bool {
		for _, p := range parts {
			if strings.Contains(key, p) {
				return true
			}
		}
		return false
	}
}

// mappingRules are tried in order; the first rule whose predicate accepts a
// field key decides where the answer goes. Unclaimed fields become custom
// fields under their original name.
var mappingRules = []rule{
	{targetFullName, named("full_name", "fullname", "name", "your_name", "contact_name")},
	{targetFirstName, named("first_name", "firstname", "given_name")},
	{targetLastName, named("last_name", "lastname", "surname", "family_name")},
	{targetEmail, named("email", "email_address", "work_email", "business_email")},
	{targetPhone, named(append([]string{"phone_no", "mobile_number", "contact_number", "whatsapp_number"}, PhoneFields...)...)},
	{targetOccupation, named("job_title", "jobtitle", "occupation", "profession", "designation", "title", "role")},
	{targetCompany, named("company", "company_name", "business_name", "organization", "organisation")},
	{targetBudget, containing("budget")},
	{targetAddress, named("address", "street_address", "full_address")},
	{targetCity, named("city", "town")},
	{targetCountry, named("country")},
	{targetDetail, containing("message", "comment", "description", "details", "question", "requirement", "inquiry", "enquiry")},
}

// fieldKey normalizes a form field name for rule matching.
func fieldKey(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(key)
}

func ruleFor(name string) (target, bool) {
	key := fieldKey(name)
	for _, r := range mappingRules {
		if r.match(key) {
			return r.target, true
		}
	}
	return 0, false
}

// keepExtraAnswers stores every answer of a multi-value field as a custom
// field once its first answer went to a contact column.
func keepExtraAnswers(lead *models.Lead, f models.FieldValue, joined string) {
	if joined != f.First() {
		lead.CustomFields[f.Name] = joined
	}
}

// MapInbound builds a new lead from a form submission. Remote ids, status,
// tags, source and score are left to the caller.
func MapInbound(in *models.InboundLead) *models.Lead {
	lead := &models.Lead{CustomFields: map[string]string{}}
	var first, last string
	var details []string

	setOnce := func(dst *string, v, original string) {
		if *dst == "" {
			*dst = v
			return
		}
		lead.CustomFields[original] = v
	}

	for _, f := range in.Fields {
		value := strings.TrimSpace(strings.Join(f.Values, ", "))
		if value == "" {
			continue
		}
		t, ok := ruleFor(f.Name)
		if !ok {
			lead.CustomFields[f.Name] = value
			continue
		}

		switch t {
		case targetFullName:
			setOnce(&lead.Name, value, f.Name)
		case targetFirstName:
			setOnce(&first, value, f.Name)
		case targetLastName:
			setOnce(&last, value, f.Name)
		case targetEmail:
			// Resolve matches on the first answer, so the same one is stored.
			if email := strings.ToLower(f.First()); lead.Email == "" && validation.IsEmail(email) {
				lead.Email = email
				keepExtraAnswers(lead, f, value)
			} else {
				lead.CustomFields[f.Name] = value
			}
		case targetPhone:
			if lead.Phone != "" {
				lead.CustomFields[f.Name] = value
				continue
			}
			lead.Phone = f.First()
			if digits, ok := NormalizePhone(lead.Phone); ok {
				lead.PhoneNormalized = digits
			}
			keepExtraAnswers(lead, f, value)
		case targetOccupation:
			setOnce(&lead.Occupation, value, f.Name)
		case targetCompany:
			if _, taken := lead.CustomFields[CustomFieldCompany]; taken {
				lead.CustomFields[f.Name] = value
			} else {
				lead.CustomFields[CustomFieldCompany] = value
			}
		case targetBudget:
			if lead.BudgetRaw != "" {
				lead.CustomFields[f.Name] = value
				continue
			}
			lead.BudgetRaw = value
			if b, ok := ParseBudget(value); ok {
				amount := b.Amount
				lead.BudgetAmount = &amount
				lead.BudgetCurrency = b.Currency
			}
		case targetAddress:
			setOnce(&lead.Address, value, f.Name)
		case targetCity:
			setOnce(&lead.City, value, f.Name)
		case targetCountry:
			setOnce(&lead.Country, value, f.Name)
		case targetDetail:
			details = append(details, value)
		}
	}

	if lead.Name == "" {
		lead.Name = strings.TrimSpace(first + " " + last)
	} else {
		if first != "" {
			lead.CustomFields["first_name"] = first
		}
		if last != "" {
			lead.CustomFields["last_name"] = last
		}
	}
	lead.Detail = strings.Join(details, "\n")
	return lead
}

// Score rates how complete and actionable a lead is, from 0 to 100.
func Score(l *models.Lead) int {
	score := 10
	if validation.IsEmail(l.Email) {
		score += 20
	}
	if _, ok := NormalizePhone(l.Phone); ok {
		score += 20
	}
	if l.Name != "" {
		score += 10
	}
	if l.BudgetAmount != nil {
		score += 15
	}
	if l.Detail != "" {
		score += 10
	}
	if l.Occupation != "" {
		score += 5
	}
	if l.City != "" || l.Country != "" {
		score += 5
	}
	if l.CustomFields[CustomFieldCompany] != "" {
		score += 5
	}
	if l.IsOrganic {
		score -= 5
	}
	return min(max(score, 0), 100)
}
