// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package logging

import (
	"strings"
)

var sensitiveParams = map[string]bool{
	"access_token":    true,
	"appsecret_proof": true,
	"client_secret":   true,
	"token":           true,
}

// MaskToken keeps the first and last 4 characters of a credential.
//
//	MaskToken("EAAGm0PX4ZCpsBA...ZD") -> "EAAG...ZCZD"
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// MaskEmail keeps the first two characters of the local part.
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "***"
	}
	if at <= 2 {
		return "***" + email[at:]
	}
	return email[:2] + "***" + email[at:]
}

// MaskPhone keeps only the last four digits.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "***"
	}
	return "***" + phone[len(phone)-4:]
}

// RedactParams returns a copy of remote API query parameters that is safe to log.
func RedactParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if sensitiveParams[strings.ToLower(k)] {
			out[k] = MaskToken(v)
			continue
		}
		out[k] = v
	}
	return out
}
