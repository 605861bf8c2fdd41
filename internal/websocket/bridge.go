// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package websocket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"

	"github.com/tomtom215/adsync/internal/events"
	"github.com/tomtom215/adsync/internal/logging"
)

// topicPrefix is trimmed from topics to form message types.
const topicPrefix = "adsync."

// Topics forwarded to clients.
var Topics = []string{
	events.TopicSyncCompleted,
	events.TopicLeadProcessed,
	events.TopicErrorOccurred,
}

// Bridge forwards bus events to a Hub.
type Bridge struct {
	sub    message.Subscriber
	hub    *Hub
	logger watermill.LoggerAdapter

	running     chan struct{}
	runningOnce sync.Once
}

// NewBridge returns a bridge reading from sub. logger may be nil.
func NewBridge(sub message.Subscriber, hub *Hub, logger watermill.LoggerAdapter) *Bridge {
	if logger == nil {
		logger = watermill.NewSlogLogger(logging.NewSlogLoggerFor("websocket"))
	}
	return &Bridge{sub: sub, hub: hub, logger: logger, running: make(chan struct{})}
}

// Running is closed once every topic is subscribed.
func (b *Bridge) Running() <-chan struct{} {
	return b.running
}

// Run subscribes to Topics and forwards deliveries until ctx ends.
func (b *Bridge) Run(ctx context.Context) error {
	router, err := message.NewRouter(message.RouterConfig{}, b.logger)
	if err != nil {
		return fmt.Errorf("create websocket bridge router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)
	for _, topic := range Topics {
		router.AddConsumerHandler("websocket-"+topic, topic, b.sub, b.forward)
	}

	go func() {
		select {
		case <-router.Running():
			b.runningOnce.Do(func() { close(b.running) })
		case <-ctx.Done():
		}
	}()

	if err := router.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("websocket bridge router: %w", err)
	}
	return nil
}

// forward never fails the delivery; a dropped frame is not redelivered.
func (b *Bridge) forward(msg *message.Message) error {
	b.hub.Broadcast(messageFromEvent(msg))
	return nil
}

func messageFromEvent(msg *message.Message) Message {
	out := Message{
		Type:          strings.TrimPrefix(msg.Metadata.Get(events.MetaEventType), topicPrefix),
		CorrelationID: msg.Metadata.Get(events.MetaCorrelationID),
	}
	if json.Valid(msg.Payload) {
		out.Data = append([]byte(nil), msg.Payload...)
	}
	return out
}
