// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"

	"github.com/tomtom215/adsync/internal/config"
	"github.com/tomtom215/adsync/internal/events"
	"github.com/tomtom215/adsync/internal/logging"
)

// Topics recorded by the consumer.
var Topics = []string{
	events.TopicSyncCompleted,
	events.TopicLeadProcessed,
	events.TopicErrorOccurred,
}

// Consumer writes bus events to a Store and prunes old entries.
type Consumer struct {
	sub    message.Subscriber
	store  Store
	logger watermill.LoggerAdapter
	cfg    config.AuditConfig
	now    func() time.Time

	running     chan struct{}
	runningOnce sync.Once
}

// NewConsumer returns a consumer reading from sub. logger may be nil.
func NewConsumer(sub message.Subscriber, store Store, cfg config.AuditConfig, logger watermill.LoggerAdapter) *Consumer {
	if logger == nil {
		logger = watermill.NewSlogLogger(logging.NewSlogLoggerFor("audit"))
	}
	return &Consumer{
		sub:     sub,
		store:   store,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		running: make(chan struct{}),
	}
}

// Running is closed once every topic is subscribed.
func (c *Consumer) Running() <-chan struct{} {
	return c.running
}

// Run consumes until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, c.logger)
	if err != nil {
		return fmt.Errorf("create event log router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)
	for _, topic := range Topics {
		router.AddConsumerHandler("event-log-"+topic, topic, c.sub, c.handle)
	}

	go func() {
		select {
		case <-router.Running():
			c.runningOnce.Do(func() { close(c.running) })
		case <-ctx.Done():
		}
	}()
	go c.prune(ctx)

	if err := router.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("event log router: %w", err)
	}
	return nil
}

// handle stores one delivery. Store failures are logged and the message is
// acknowledged; the trail is best effort.
func (c *Consumer) handle(msg *message.Message) error {
	entry, err := c.entryFromMessage(msg)
	if err != nil {
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Skipping undecodable event")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.store.Save(ctx, entry); err != nil {
		logging.Error().Err(err).Str("topic", entry.Topic).Msg("Failed to save event log entry")
	}
	return nil
}

// eventFields are the classifier fields shared by the event payloads.
type eventFields struct {
	Type     string `json:"type"`
	Action   string `json:"action"`
	Severity string `json:"severity"`
}

func (c *Consumer) entryFromMessage(msg *message.Message) (*Entry, error) {
	var f eventFields
	if err := json.Unmarshal(msg.Payload, &f); err != nil {
		return nil, fmt.Errorf("decode event payload: %w", err)
	}

	subject := f.Type
	if subject == "" {
		subject = f.Action
	}
	severity := f.Severity
	if severity == "" {
		severity = SeverityInfo
	}
	return &Entry{
		ID:            msg.UUID,
		Timestamp:     c.now(),
		Topic:         msg.Metadata.Get(events.MetaEventType),
		Subject:       subject,
		Severity:      severity,
		CorrelationID: msg.Metadata.Get(events.MetaCorrelationID),
		Payload:       json.RawMessage(msg.Payload),
	}, nil
}

func (c *Consumer) prune(ctx context.Context) {
	if c.cfg.Retention <= 0 || c.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.store.Delete(ctx, c.now().Add(-c.cfg.Retention)); err != nil {
				logging.Warn().Err(err).Msg("Event log pruning failed")
			}
		}
	}
}
