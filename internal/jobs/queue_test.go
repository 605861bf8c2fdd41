// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/adsync/internal/config"
	"github.com/tomtom215/adsync/internal/events"
	"github.com/tomtom215/adsync/internal/logging"
	"github.com/tomtom215/adsync/internal/ratelimit"
)

var testStart = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	queue    *Queue
	clock    *ratelimit.FakeClock
	recorder *events.Recorder
	cancel   context.CancelFunc
	done     chan error
}

func newHarness(t *testing.T, cfg config.JobsConfig, handlers map[Kind]Handler) *harness {
	t.Helper()

	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	clock := ratelimit.NewFakeClock(testStart)
	rec := &events.Recorder{}
	q := New(ch, ch, cfg, Options{Clock: clock, Emitter: rec, Logger: watermill.NopLogger{}})
	for kind, h := range handlers {
		q.Handle(kind, h)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{queue: q, clock: clock, recorder: rec, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- q.Run(ctx) }()

	select {
	case <-q.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("job router did not start")
	}

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-h.done:
			if err != nil {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(35 * time.Second):
			t.Error("Run did not return after cancel")
		}
		_ = ch.Close()
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type attemptLog struct {
	mu   sync.Mutex
	jobs []Job
}

func (a *attemptLog) add(j Job) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.jobs = append(a.jobs, j)
	return len(a.jobs)
}

func (a *attemptLog) snapshot() []Job {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Job(nil), a.jobs...)
}

func testConfig() config.JobsConfig {
	return config.JobsConfig{
		Backoff:       []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second, 300 * time.Second, 600 * time.Second},
		PageDeadline:  2 * time.Hour,
		ChildDeadline: 30 * time.Minute,
		Topic:         "adsync.jobs.test",
	}
}

func TestQueue_RetriesWithBackoffUntilSuccess(t *testing.T) {
	var log attemptLog
	h := newHarness(t, testConfig(), map[Kind]Handler{
		KindAdSets: func(_ context.Context, job Job) error {
			if log.add(job) < 3 {
				return errors.New("missing parent")
			}
			return nil
		},
	})

	ctx := logging.ContextWithCorrelationID(context.Background(), "corr-1")
	if err := h.queue.Enqueue(ctx, Job{Kind: KindAdSets, Target: "c1", Params: map[string]string{"page_id": "p1"}}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	waitFor(t, "three attempts", func() bool { return len(log.snapshot()) == 3 })
	h.queue.Wait()

	got := log.snapshot()
	for i, job := range got {
		if job.Attempt != i {
			t.Errorf("attempt %d carried Attempt=%d", i, job.Attempt)
		}
		if job.Target != "c1" || job.Param("page_id") != "p1" || job.CorrelationID != "corr-1" {
			t.Errorf("attempt %d lost job data: %+v", i, job)
		}
		if job.ID != got[0].ID || !job.EnqueuedAt.Equal(testStart) {
			t.Errorf("attempt %d changed identity: %+v", i, job)
		}
	}

	sleeps := h.clock.Sleeps()
	want := []time.Duration{30 * time.Second, 60 * time.Second}
	if len(sleeps) != len(want) || sleeps[0] != want[0] || sleeps[1] != want[1] {
		t.Errorf("retry delays = %v, want %v", sleeps, want)
	}
	if evs := h.recorder.Topic(events.TopicErrorOccurred); len(evs) != 0 {
		t.Errorf("successful job emitted %d error events", len(evs))
	}
}

func TestQueue_PermanentErrorFailsImmediately(t *testing.T) {
	var log attemptLog
	h := newHarness(t, testConfig(), map[Kind]Handler{
		KindAds: func(_ context.Context, job Job) error {
			log.add(job)
			return Permanent(errors.New("invalid token"))
		},
	})

	if err := h.queue.Enqueue(context.Background(), Job{Kind: KindAds, Target: "s1"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	waitFor(t, "failure event", func() bool { return len(h.recorder.Topic(events.TopicErrorOccurred)) == 1 })
	h.queue.Wait()

	if n := len(log.snapshot()); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
	ev := h.recorder.Topic(events.TopicErrorOccurred)[0].(events.ErrorOccurred)
	if ev.Severity != events.SeverityCritical || ev.Type != "sync_job" {
		t.Errorf("event = %+v", ev)
	}
	if !strings.Contains(ev.Message, "invalid token") || !strings.Contains(ev.Message, "permanent") {
		t.Errorf("event message = %q", ev.Message)
	}
}

func TestQueue_GivesUpWhenScheduleExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.Backoff = []time.Duration{time.Second, 2 * time.Second}

	var log attemptLog
	h := newHarness(t, cfg, map[Kind]Handler{
		KindLeads: func(_ context.Context, job Job) error {
			log.add(job)
			return errors.New("remote unavailable")
		},
	})

	if err := h.queue.Enqueue(context.Background(), Job{Kind: KindLeads, Target: "f1"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	waitFor(t, "failure event", func() bool { return len(h.recorder.Topic(events.TopicErrorOccurred)) == 1 })
	h.queue.Wait()

	if n := len(log.snapshot()); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
	ev := h.recorder.Topic(events.TopicErrorOccurred)[0].(events.ErrorOccurred)
	if !strings.Contains(ev.Message, "retries exhausted") {
		t.Errorf("event message = %q", ev.Message)
	}
}

func TestQueue_GivesUpPastDeadline(t *testing.T) {
	var log attemptLog
	var clock *ratelimit.FakeClock
	h := newHarness(t, testConfig(), map[Kind]Handler{
		KindAds: func(_ context.Context, job Job) error {
			log.add(job)
			clock.Advance(29*time.Minute + 45*time.Second)
			return errors.New("still failing")
		},
	})
	clock = h.clock

	if err := h.queue.Enqueue(context.Background(), Job{Kind: KindAds, Target: "s1"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	waitFor(t, "failure event", func() bool { return len(h.recorder.Topic(events.TopicErrorOccurred)) == 1 })
	h.queue.Wait()

	if n := len(log.snapshot()); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
	ev := h.recorder.Topic(events.TopicErrorOccurred)[0].(events.ErrorOccurred)
	if !strings.Contains(ev.Message, "deadline exceeded") {
		t.Errorf("event message = %q", ev.Message)
	}
}

func TestQueue_PageJobsUseLongerDeadline(t *testing.T) {
	q := New(nil, nil, testConfig(), Options{Clock: ratelimit.NewFakeClock(testStart)})

	job := Job{Kind: KindCampaigns, EnqueuedAt: testStart.Add(-time.Hour)}
	if reason := q.giveUpReason(job, errors.New("x")); reason != "" {
		t.Errorf("page job after 1h gave up: %q", reason)
	}
	job.Kind = KindAdSets
	if reason := q.giveUpReason(job, errors.New("x")); reason != "deadline exceeded" {
		t.Errorf("child job after 1h: reason = %q", reason)
	}
}

func TestQueue_EnqueueUnknownKind(t *testing.T) {
	t.Parallel()

	q := New(nil, nil, testConfig(), Options{})
	err := q.Enqueue(context.Background(), Job{Kind: "nope"})
	if !errors.Is(err, ErrNoHandler) {
		t.Errorf("Enqueue error = %v, want ErrNoHandler", err)
	}
}

func TestQueue_RecoversFromPanickingHandler(t *testing.T) {
	var log attemptLog
	h := newHarness(t, testConfig(), map[Kind]Handler{
		KindAdSets: func(_ context.Context, job Job) error {
			if log.add(job) == 1 {
				panic("boom")
			}
			return nil
		},
	})

	if err := h.queue.Enqueue(context.Background(), Job{Kind: KindAdSets, Target: "c9"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	waitFor(t, "redelivery after panic", func() bool { return len(log.snapshot()) >= 2 })
}

func TestPermanent(t *testing.T) {
	t.Parallel()

	base := errors.New("bad request")
	err := Permanent(base)
	if !IsPermanent(err) || !errors.Is(err, base) {
		t.Errorf("Permanent(%v) lost identity", base)
	}
	if IsPermanent(base) {
		t.Error("plain error reported permanent")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
