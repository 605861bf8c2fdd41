// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package models

import (
	"slices"
	"time"
)

// LeadCursor is the high-water mark of a lead form. CreatedAt is the newest
// processed submission time, truncated to the second the API reports.
// ExternalIDs lists the submissions processed at exactly that second, so a
// later submission in the same second is still picked up.
type LeadCursor struct {
	CreatedAt   time.Time
	ExternalIDs []string
}

// IsZero reports whether the form was never synced.
func (c LeadCursor) IsZero() bool {
	return c.CreatedAt.IsZero()
}

// Covers reports whether the submission was processed by an earlier sync.
// Submissions without a creation time are never covered.
func (c LeadCursor) Covers(externalID string, created time.Time) bool {
	if c.IsZero() || created.IsZero() {
		return false
	}
	created = created.UTC().Truncate(time.Second)
	switch {
	case created.Before(c.CreatedAt):
		return true
	case created.Equal(c.CreatedAt):
		return slices.Contains(c.ExternalIDs, externalID)
	default:
		return false
	}
}

// Advance returns the cursor moved over committed, which must be ordered
// oldest first. The cursor never moves backwards.
func (c LeadCursor) Advance(committed []InboundLead) LeadCursor {
	next := LeadCursor{CreatedAt: c.CreatedAt, ExternalIDs: slices.Clone(c.ExternalIDs)}
	for _, in := range committed {
		if in.CreatedTime.IsZero() {
			continue
		}
		t := in.CreatedTime.UTC().Truncate(time.Second)
		switch {
		case t.Before(next.CreatedAt):
			continue
		case t.After(next.CreatedAt):
			next.CreatedAt = t
			next.ExternalIDs = nil
		}
		if !slices.Contains(next.ExternalIDs, in.ExternalID) {
			next.ExternalIDs = append(next.ExternalIDs, in.ExternalID)
		}
	}
	return next
}

// Equal reports whether two cursors mark the same position.
func (c LeadCursor) Equal(other LeadCursor) bool {
	return c.CreatedAt.Equal(other.CreatedAt) && slices.Equal(c.ExternalIDs, other.ExternalIDs)
}
