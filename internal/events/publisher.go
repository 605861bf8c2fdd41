// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/adsync/internal/logging"
	"github.com/tomtom215/adsync/internal/metrics"
)

// ErrPublisherClosed is returned by Emit after Close.
var ErrPublisherClosed = errors.New("event publisher is closed")

// Publisher serializes events and publishes them on a Watermill publisher
// behind a circuit breaker. Five consecutive failures open the breaker for
// 30 seconds.
type Publisher struct {
	pub message.Publisher
	cb  *gobreaker.CircuitBreaker[struct{}]

	mu     sync.RWMutex
	closed bool
}

// NewPublisher wraps pub. The caller keeps ownership of pub.
func NewPublisher(pub message.Publisher) *Publisher {
	const name = "event-publisher"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(metrics.BreakerClosed)

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Event publisher circuit breaker state transition")
			var v float64
			switch to {
			case gobreaker.StateHalfOpen:
				v = metrics.BreakerHalfOpen
			case gobreaker.StateOpen:
				v = metrics.BreakerOpen
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(v)
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &Publisher{pub: pub, cb: cb}
}

// Emit implements Emitter.
func (p *Publisher) Emit(ctx context.Context, ev Event) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrPublisherClosed
	}

	topic := ev.Topic()
	msg, err := newMessage(ctx, ev)
	if err != nil {
		return err
	}

	_, err = p.cb.Execute(func() (struct{}, error) {
		return struct{}{}, p.pub.Publish(topic, msg)
	})
	metrics.RecordEventPublish(topic, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close stops further publishing. It does not close the underlying publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func newMessage(ctx context.Context, ev Event) (*message.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("serialize %s event: %w", ev.Topic(), err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(MetaEventType, ev.Topic())
	msg.Metadata.Set(MetaSchemaVersion, SchemaVersion)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set(MetaCorrelationID, id)
	}
	// JetStream de-duplicates on this header; other transports ignore it.
	msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	msg.SetContext(ctx)
	return msg, nil
}
