// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

// Package events publishes domain events (sync completed, lead processed,
// error occurred) as JSON Watermill messages.
//
// The bus is either an in-process Watermill GoChannel or NATS JetStream
// (embedded or external) through watermill-nats. Publishing is best effort:
// callers log a failed publish and carry on.
package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/adsync/internal/logging"
	"github.com/tomtom215/adsync/internal/models"
)

// Topics. All of them fall under the adsync.> JetStream stream.
const (
	TopicSyncCompleted = "adsync.sync.completed"
	TopicLeadProcessed = "adsync.lead.processed"
	TopicErrorOccurred = "adsync.error.occurred"
)

// SchemaVersion is stamped on every message as metadata.
const SchemaVersion = "1"

// Metadata keys.
const (
	MetaEventType     = "event_type"
	MetaSchemaVersion = "schema_version"
	MetaCorrelationID = "correlation_id"
)

// Event is anything that can be published.
type Event interface {
	Topic() string
}

// Emitter publishes events.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// SyncCompleted is emitted after every upsert batch and every sync run.
type SyncCompleted struct {
	Type         string `json:"type"`
	CreatedCount int    `json:"createdCount"`
	UpdatedCount int    `json:"updatedCount"`
	ErrorCount   int    `json:"errorCount"`
	DurationMs   int64  `json:"durationMs"`
}

func (SyncCompleted) Topic() string { return TopicSyncCompleted }

// LeadProcessed is emitted after a lead merge commits, except for skipped duplicates.
type LeadProcessed struct {
	Action         models.LeadAction `json:"action"`
	LeadID         string            `json:"leadId"`
	ExternalLeadID string            `json:"externalLeadId"`
	FormName       string            `json:"formName,omitempty"`
}

func (LeadProcessed) Topic() string { return TopicLeadProcessed }

// Severity grades an ErrorOccurred event.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ErrorOccurred reports a failure that did not stop the surrounding batch or
// a job that exhausted its retries.
type ErrorOccurred struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

func (ErrorOccurred) Topic() string { return TopicErrorOccurred }

// Decode unmarshals a message payload into v.
func Decode(msg *message.Message, v any) error {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("decode %s event: %w", msg.Metadata.Get(MetaEventType), err)
	}
	return nil
}

// EmitQuietly publishes ev and logs, rather than returns, a failure.
// A nil emitter is a no-op.
func EmitQuietly(ctx context.Context, em Emitter, ev Event) {
	if em == nil {
		return
	}
	if err := em.Emit(ctx, ev); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("topic", ev.Topic()).Msg("Failed to publish event")
	}
}
