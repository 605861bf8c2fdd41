// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package database

import (
	"errors"
	"io"
)

var (
	// ErrMissingParent is the integrity violation raised when an ad set or ad
	// is written before its parent exists locally. Callers treat it as
	// retryable: the parent is usually still being synced.
	ErrMissingParent = errors.New("parent entity not synced yet")

	// ErrNotFound is returned by single-row lookups with no match.
	ErrNotFound = errors.New("not found")
)

// closeQuietly closes a resource on an error path where Close errors are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
