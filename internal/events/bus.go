// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package events

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/adsync/internal/config"
	"github.com/tomtom215/adsync/internal/logging"
)

// StreamName is the JetStream stream holding every adsync.> subject.
const StreamName = "ADSYNC"

// Bus owns the transport shared by the event publisher and the job queue.
type Bus struct {
	publisher message.Publisher
	logger    watermill.LoggerAdapter

	// In-process mode: one GoChannel serves both directions.
	channel *gochannel.GoChannel

	// NATS mode.
	url         string
	cfg         config.NATSConfig
	server      *EmbeddedServer
	mu          sync.Mutex
	subscribers []message.Subscriber
}

// NewInProcessBus returns a bus backed by a Watermill GoChannel. Messages
// published while nobody is subscribed are dropped, and nothing survives a
// restart.
func NewInProcessBus() *Bus {
	logger := watermill.NewSlogLogger(logging.NewSlogLoggerFor("watermill"))
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 1024,
	}, logger)
	return &Bus{publisher: ch, channel: ch, logger: logger}
}

// NewBus builds the bus cfg asks for: GoChannel when NATS is disabled,
// otherwise JetStream on an external or embedded server.
func NewBus(ctx context.Context, cfg config.NATSConfig) (*Bus, error) {
	if !cfg.Enabled {
		return NewInProcessBus(), nil
	}

	logger := watermill.NewSlogLogger(logging.NewSlogLoggerFor("watermill"))
	b := &Bus{cfg: cfg, url: cfg.URL, logger: logger}

	if cfg.EmbeddedServer {
		srv, err := StartEmbeddedServer(cfg)
		if err != nil {
			return nil, err
		}
		b.server = srv
		b.url = srv.ClientURL()
	}

	if err := EnsureStream(ctx, b.url); err != nil {
		b.shutdownServer()
		return nil, err
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         b.url,
		NatsOptions: b.natsOptions("adsync-publisher"),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		b.shutdownServer()
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}
	b.publisher = pub

	logging.Info().Str("url", b.url).Bool("embedded", cfg.EmbeddedServer).Msg("Event bus connected to NATS JetStream")
	return b, nil
}

// Publisher returns the raw Watermill publisher.
func (b *Bus) Publisher() message.Publisher {
	return b.publisher
}

// Subscriber returns a subscriber for a named consumer. In NATS mode each
// name gets its own durable consumer in the shared queue group.
func (b *Bus) Subscriber(name string) (message.Subscriber, error) {
	if b.channel != nil {
		return b.channel, nil
	}

	subOpts := []natsgo.SubOpt{
		natsgo.BindStream(StreamName),
		natsgo.AckWait(b.cfg.AckWait),
		natsgo.DeliverAll(),
	}
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              b.url,
		QueueGroupPrefix: b.cfg.QueueGroup,
		SubscribersCount: b.cfg.SubscribersCount,
		AckWaitTimeout:   b.cfg.AckWait,
		CloseTimeout:     30 * time.Second,
		NatsOptions:      b.natsOptions("adsync-" + name),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision:    false,
			AckAsync:         false,
			SubscribeOptions: subOpts,
			DurablePrefix:    b.cfg.DurablePrefix + "-" + name,
		},
	}, b.logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS subscriber %s: %w", name, err)
	}

	b.mu.Lock()
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()
	return sub, nil
}

// Logger returns the Watermill logger adapter of the bus.
func (b *Bus) Logger() watermill.LoggerAdapter {
	return b.logger
}

// Close closes subscribers, the publisher and the embedded server.
func (b *Bus) Close() error {
	if b.channel != nil {
		return b.channel.Close()
	}

	var errs []error
	b.mu.Lock()
	for _, sub := range b.subscribers {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.subscribers = nil
	b.mu.Unlock()

	if b.publisher != nil {
		if err := b.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.shutdownServer()
	return errors.Join(errs...)
}

func (b *Bus) shutdownServer() {
	if b.server != nil {
		b.server.Shutdown()
		b.server = nil
	}
}

func (b *Bus) natsOptions(name string) []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name(name),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Str("client", name).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("client", name).Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
}

// EnsureStream creates or updates the ADSYNC stream covering adsync.>.
func EnsureStream(ctx context.Context, natsURL string) error {
	nc, err := natsgo.Connect(natsURL, natsgo.Timeout(10*time.Second))
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{"adsync.>"},
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     7 * 24 * time.Hour,
		Duplicates: 2 * time.Minute,
		Storage:    jetstream.FileStorage,
		Discard:    jetstream.DiscardOld,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", StreamName, err)
	}
	return nil
}

// EmbeddedServer is an in-process NATS server with JetStream enabled.
type EmbeddedServer struct {
	server *server.Server
}

// StartEmbeddedServer starts a NATS server listening on the host and port of
// cfg.URL and waits for it to accept connections.
func StartEmbeddedServer(cfg config.NATSConfig) (*EmbeddedServer, error) {
	host, port := "127.0.0.1", 4222
	if u, err := url.Parse(cfg.URL); err == nil && u.Host != "" {
		if h := u.Hostname(); h != "" {
			host = h
		}
		if p, err := strconv.Atoi(u.Port()); err == nil {
			port = p
		}
	}

	opts := &server.Options{
		ServerName:         "adsync",
		Host:               host,
		Port:               port,
		JetStream:          true,
		StoreDir:           cfg.StoreDir,
		JetStreamMaxMemory: cfg.MaxMemory,
		JetStreamMaxStore:  cfg.MaxStore,
		MaxPayload:         8 * 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}
	ns.ConfigureLogger()
	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("embedded NATS server not ready within 30s")
	}
	logging.Info().Str("url", ns.ClientURL()).Str("store_dir", cfg.StoreDir).Msg("Embedded NATS server started")
	return &EmbeddedServer{server: ns}, nil
}

// ClientURL returns the connection URL for clients.
func (s *EmbeddedServer) ClientURL() string {
	return s.server.ClientURL()
}

// Shutdown stops the server and waits for it to exit.
func (s *EmbeddedServer) Shutdown() {
	s.server.Shutdown()
	s.server.WaitForShutdown()
}
