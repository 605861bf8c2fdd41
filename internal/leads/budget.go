// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package leads

import (
	"regexp"
	"strconv"
	"strings"
)

// Budget is a parsed budget answer.
type Budget struct {
	Amount   float64
	Currency string // ISO 4217 code, empty when the answer named none
}

// budgetPattern accepts an optional currency before and/or after an amount
// with optional thousands separators and decimals:
//
//	"USD 5,000"  "5000.50 eur"  "$1,250"  "PKR 150,000.00"  "2500"
var budgetPattern = regexp.MustCompile(
	`^\s*([A-Za-z]{3}|[$€£₹])?\s*((?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?)\s*([A-Za-z]{3}|[$€£₹])?\s*$`)

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"₹": "INR",
}

// ParseBudget parses a free-text budget. Ranges, words and anything else the
// pattern does not cover report false; callers keep the raw text.
func ParseBudget(raw string) (Budget, bool) {
	m := budgetPattern.FindStringSubmatch(raw)
	if m == nil {
		return Budget{}, false
	}

	amount, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
	if err != nil {
		return Budget{}, false
	}

	currency := m[1]
	if currency == "" {
		currency = m[3]
	} else if m[3] != "" && currencyCode(m[3]) != currencyCode(currency) {
		return Budget{}, false
	}
	return Budget{Amount: amount, Currency: currencyCode(currency)}, true
}

func currencyCode(s string) string {
	if code, ok := currencySymbols[s]; ok {
		return code
	}
	return strings.ToUpper(s)
}
