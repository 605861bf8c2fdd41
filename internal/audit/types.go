// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Severity levels. Events without a severity are stored as SeverityInfo.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Entry is one stored event delivery.
type Entry struct {
	// ID is the Watermill message UUID, so redeliveries collapse.
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Topic     string    `json:"topic"`

	// Subject is the event's own classifier: the sync type, lead action or
	// error type.
	Subject  string `json:"subject,omitempty"`
	Severity string `json:"severity"`

	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// QueryFilter selects entries. Zero fields do not filter.
type QueryFilter struct {
	Topic         string
	CorrelationID string
	Severity      string
	Since         time.Time
	Limit         int
}

// DefaultQueryLimit applies when QueryFilter.Limit is zero.
const DefaultQueryLimit = 100

// MaxQueryLimit caps QueryFilter.Limit.
const MaxQueryLimit = 1000

// Store persists entries.
type Store interface {
	Save(ctx context.Context, e *Entry) error
	Query(ctx context.Context, filter QueryFilter) ([]Entry, error)
	Count(ctx context.Context, filter QueryFilter) (int64, error)
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}
