// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

// Package jobs is the retrying work queue used when hierarchy sync runs in
// job-chaining mode.
//
// Jobs travel as JSON Watermill messages on a single topic, so the same
// queue runs over the in-process GoChannel or NATS JetStream. A failed job
// is acknowledged and re-published after the next delay of the backoff
// schedule; delayed retries live in memory until they are published.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tomtom215/adsync/internal/config"
	"github.com/tomtom215/adsync/internal/events"
	"github.com/tomtom215/adsync/internal/logging"
	"github.com/tomtom215/adsync/internal/metrics"
	"github.com/tomtom215/adsync/internal/ratelimit"
)

// Message metadata keys.
const (
	MetaKind    = "job_kind"
	MetaAttempt = "job_attempt"
)

// ErrNoHandler is returned by Enqueue for a kind nobody handles.
var ErrNoHandler = errors.New("no handler registered for job kind")

// Options holds the optional collaborators of a Queue.
type Options struct {
	Clock   ratelimit.Clock
	Emitter events.Emitter
	Logger  watermill.LoggerAdapter
}

// Queue dispatches jobs to their handlers and applies the retry schedule.
type Queue struct {
	pub     message.Publisher
	sub     message.Subscriber
	topic   string
	backoff []time.Duration

	pageDeadline  time.Duration
	childDeadline time.Duration

	clock   ratelimit.Clock
	emitter events.Emitter
	logger  watermill.LoggerAdapter
	limiter *rate.Limiter

	mu       sync.RWMutex
	handlers map[Kind]Handler

	running     chan struct{}
	runningOnce sync.Once
	pending     sync.WaitGroup
}

// New returns a queue publishing to pub and consuming from sub on
// cfg.Topic.
func New(pub message.Publisher, sub message.Subscriber, cfg config.JobsConfig, opts Options) *Queue {
	if opts.Clock == nil {
		opts.Clock = ratelimit.RealClock()
	}
	if opts.Logger == nil {
		opts.Logger = watermill.NewSlogLogger(logging.NewSlogLoggerFor("jobs"))
	}
	limit := rate.Inf
	if cfg.DispatchPerSecond > 0 {
		limit = rate.Limit(cfg.DispatchPerSecond)
	}
	topic := cfg.Topic
	if topic == "" {
		topic = "adsync.jobs"
	}

	return &Queue{
		pub:           pub,
		sub:           sub,
		topic:         topic,
		backoff:       cfg.Backoff,
		pageDeadline:  cfg.PageDeadline,
		childDeadline: cfg.ChildDeadline,
		clock:         opts.Clock,
		emitter:       opts.Emitter,
		logger:        opts.Logger,
		limiter:       rate.NewLimiter(limit, 1),
		handlers:      make(map[Kind]Handler),
		running:       make(chan struct{}),
	}
}

// Handle registers h for kind. It must be called before Run.
func (q *Queue) Handle(kind Kind, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = h
}

func (q *Queue) handler(kind Kind) (Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[kind]
	return h, ok
}

// Enqueue publishes job. ID, EnqueuedAt and CorrelationID are filled in
// when empty.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if _, ok := q.handler(job.Kind); !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, job.Kind)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = q.clock.Now()
	}
	if job.CorrelationID == "" {
		job.CorrelationID = logging.CorrelationIDFromContext(ctx)
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetaKind, string(job.Kind))
	msg.Metadata.Set(MetaAttempt, strconv.Itoa(job.Attempt))
	msg.SetContext(ctx)

	if err := q.pub.Publish(q.topic, msg); err != nil {
		return fmt.Errorf("publish job %s: %w", job.Kind, err)
	}
	metrics.JobsEnqueuedTotal.WithLabelValues(string(job.Kind)).Inc()
	return nil
}

// Running is closed once the consumer is subscribed.
func (q *Queue) Running() <-chan struct{} {
	return q.running
}

// Run consumes jobs until ctx is canceled, then waits for the router to
// close and for delayed retries to give up.
func (q *Queue) Run(ctx context.Context) error {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 30 * time.Second}, q.logger)
	if err != nil {
		return fmt.Errorf("create job router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)
	router.AddConsumerHandler("adsync-jobs", q.topic, q.sub, func(msg *message.Message) error {
		return q.handle(ctx, msg)
	})

	go func() {
		select {
		case <-router.Running():
			// Run is restarted by the supervisor after a failure.
			q.runningOnce.Do(func() { close(q.running) })
		case <-ctx.Done():
		}
	}()

	err = router.Run(ctx)
	q.pending.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("job router: %w", err)
	}
	return nil
}

// handle runs one delivery. Every outcome acknowledges the message; retries
// are new messages.
func (q *Queue) handle(runCtx context.Context, msg *message.Message) error {
	var job Job
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		logging.Error().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping undecodable job")
		return nil
	}

	ctx := logging.ContextWithCorrelationID(msg.Context(), job.CorrelationID)
	log := logging.Ctx(ctx).With().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Str("target", job.Target).
		Int("attempt", job.Attempt).
		Logger()

	h, ok := q.handler(job.Kind)
	if !ok {
		log.Error().Msg("Dropping job with no handler")
		return nil
	}

	if err := q.limiter.Wait(ctx); err != nil {
		return err
	}

	err := h(ctx, job)
	if err == nil {
		metrics.RecordJobAttempt(string(job.Kind), "success")
		return nil
	}

	if reason := q.giveUpReason(job, err); reason != "" {
		metrics.RecordJobAttempt(string(job.Kind), "failed")
		q.fail(ctx, job, err, reason)
		return nil
	}

	delay := q.backoff[job.Attempt]
	metrics.RecordJobAttempt(string(job.Kind), "retry")
	log.Warn().Err(err).Dur("retry_in", delay).Msg("Sync job failed, retrying")

	next := job
	next.Attempt++
	q.pending.Add(1)
	go func() {
		defer q.pending.Done()
		if err := q.clock.Sleep(runCtx, delay); err != nil {
			log.Warn().Msg("Queue stopped before job retry was published")
			return
		}
		retryCtx := logging.ContextWithCorrelationID(context.WithoutCancel(runCtx), next.CorrelationID)
		if err := q.Enqueue(retryCtx, next); err != nil {
			log.Error().Err(err).Msg("Failed to publish job retry")
			q.fail(ctx, next, err, "retry publish failed")
		}
	}()
	return nil
}

// giveUpReason returns why job will not be retried after err, or "".
func (q *Queue) giveUpReason(job Job, err error) string {
	switch {
	case IsPermanent(err):
		return "permanent error"
	case job.Attempt >= len(q.backoff):
		return "retries exhausted"
	}
	if deadline := q.deadline(job.Kind); deadline > 0 {
		elapsed := q.clock.Now().Add(q.backoff[job.Attempt]).Sub(job.EnqueuedAt)
		if elapsed > deadline {
			return "deadline exceeded"
		}
	}
	return ""
}

func (q *Queue) deadline(kind Kind) time.Duration {
	if kind == KindCampaigns {
		return q.pageDeadline
	}
	return q.childDeadline
}

// fail is the terminal hook for a job that will not run again.
func (q *Queue) fail(ctx context.Context, job Job, err error, reason string) {
	logging.Ctx(ctx).Error().Err(err).
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Str("target", job.Target).
		Int("attempts", job.Attempt+1).
		Str("reason", reason).
		Msg("Sync job failed")

	events.EmitQuietly(ctx, q.emitter, events.ErrorOccurred{
		Type:     "sync_job",
		Severity: events.SeverityCritical,
		Message:  fmt.Sprintf("%s %s failed after %d attempt(s) (%s): %v", job.Kind, job.Target, job.Attempt+1, reason, err),
	})
}

// Wait blocks until every delayed retry scheduled so far has been published
// or dropped.
func (q *Queue) Wait() {
	q.pending.Wait()
}
