// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package leads

import "strings"

// PhoneFields are the form fields read as the phone number, in priority order.
var PhoneFields = []string{"phone", "phone_number", "mobile", "telephone"}

// countryPrefixes are stripped once, in this order, when the remainder keeps
// at least ten digits.
var countryPrefixes = []string{"92", "91", "44", "61", "1"}

const (
	minPhoneDigits    = 7
	phoneSuffixDigits = 10
)

// NormalizePhone reduces a phone number to its national digits. It reports
// false when fewer than seven digits remain.
//
//	"+1 (234) 567-8901" -> "2345678901"
//	"+92 300 1234567"   -> "3001234567"
func NormalizePhone(raw string) (string, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	} else {
		for _, prefix := range countryPrefixes {
			if strings.HasPrefix(digits, prefix) && len(digits)-len(prefix) >= phoneSuffixDigits {
				digits = digits[len(prefix):]
				break
			}
		}
	}

	if len(digits) < minPhoneDigits {
		return "", false
	}
	return digits, true
}

// phoneSuffix returns the trailing ten digits, or "" for shorter numbers.
func phoneSuffix(digits string) string {
	if len(digits) < phoneSuffixDigits {
		return ""
	}
	return digits[len(digits)-phoneSuffixDigits:]
}
