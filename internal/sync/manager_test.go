// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package sync

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/tomtom215/adsync/internal/credentials"
	"github.com/tomtom215/adsync/internal/events"
	"github.com/tomtom215/adsync/internal/graph"
	"github.com/tomtom215/adsync/internal/models"
)

func newTestManager(f *fixture, creds credentials.Provider) *Manager {
	return NewManager(ManagerDeps{
		Credentials: creds,
		Sources:     staticFactory(f.src),
		Locks:       f.store,
		Inline:      NewInlineRunner(f.exec, f.clock, testSyncConfig()),
		Emitter:     f.recorder,
		Clock:       f.clock,
	}, testSyncConfig())
}

func hierarchyEvents(rec *events.Recorder) []events.SyncCompleted {
	var out []events.SyncCompleted
	for _, ev := range rec.Topic(events.TopicSyncCompleted) {
		if sc, ok := ev.(events.SyncCompleted); ok && sc.Type == "hierarchy" {
			out = append(out, sc)
		}
	}
	return out
}

func TestManager_RunInline(t *testing.T) {
	f := newFixture(t, false)
	m := newTestManager(f, credentials.NewStatic("tok"))

	rep, err := m.Run(context.Background(), models.SyncRequest{PageID: "p1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.RunID == "" {
		t.Error("RunID is empty")
	}
	if rep.Strategy != StrategyInline || !reflect.DeepEqual(rep.PageIDs, []string{"p1"}) {
		t.Errorf("report = strategy %q pages %v", rep.Strategy, rep.PageIDs)
	}
	if rep.Outcome() != OutcomeSuccess {
		t.Errorf("Outcome = %q, want success", rep.Outcome())
	}
	// Four inter-step pauses.
	if rep.Duration != 6*time.Second {
		t.Errorf("Duration = %v, want 6s", rep.Duration)
	}

	evs := hierarchyEvents(f.recorder)
	if len(evs) != 1 {
		t.Fatalf("hierarchy events = %d, want 1", len(evs))
	}
	if evs[0].CreatedCount != 7 || evs[0].ErrorCount != 0 || evs[0].DurationMs != 6000 {
		t.Errorf("event = %+v", evs[0])
	}
}

func TestManager_SkipsLockedPage(t *testing.T) {
	f := newFixture(t, false)
	m := newTestManager(f, credentials.NewStatic("tok"))
	ctx := context.Background()

	held, err := f.store.TryLock(ctx, "sync:p1", time.Minute)
	if err != nil || held == nil {
		t.Fatalf("TryLock = %v, %v", held, err)
	}
	defer held.Release()

	rep, err := m.Run(ctx, models.SyncRequest{PageID: "p1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Skipped || rep.Outcome() != OutcomeSkipped {
		t.Errorf("report = skipped %v outcome %q", rep.Skipped, rep.Outcome())
	}
	if n := f.src.callCount("accounts:p1"); n != 0 {
		t.Errorf("locked run fetched accounts %d times", n)
	}
	if len(hierarchyEvents(f.recorder)) != 0 {
		t.Error("skipped run emitted a completion event")
	}
}

func TestManager_ReleasesPageLock(t *testing.T) {
	f := newFixture(t, false)
	m := newTestManager(f, credentials.NewStatic("tok"))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		rep, err := m.Run(ctx, models.SyncRequest{PageID: "p1"})
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if rep.Skipped {
			t.Fatalf("run %d skipped", i)
		}
	}
}

func TestManager_AllVisiblePages(t *testing.T) {
	f := newFixture(t, false)
	f.src.pages = append(f.src.pages, graph.Page{ID: "p2", Name: "Second"})
	m := newTestManager(f, credentials.NewStatic("tok"))

	rep, err := m.Run(context.Background(), models.SyncRequest{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(rep.PageIDs, []string{"p1", "p2"}) {
		t.Errorf("PageIDs = %v", rep.PageIDs)
	}
	if f.src.callCount("accounts:p2") != 1 {
		t.Error("p2 was not walked")
	}
}

func TestManager_ListPagesFails(t *testing.T) {
	f := newFixture(t, false)
	f.src.setErr("pages:me", errors.New("unreachable"))
	m := newTestManager(f, credentials.NewStatic("tok"))

	rep, err := m.Run(context.Background(), models.SyncRequest{})
	if err == nil {
		t.Fatal("Run succeeded, want error")
	}
	if rep == nil || rep.Outcome() != OutcomeFailed {
		t.Fatalf("report = %+v", rep)
	}
	if n := len(f.recorder.Topic(events.TopicErrorOccurred)); n != 1 {
		t.Errorf("error events = %d, want 1", n)
	}
}

func TestManager_RejectsRequest(t *testing.T) {
	f := newFixture(t, false)

	tests := []struct {
		name  string
		m     *Manager
		req   models.SyncRequest
		check func(error) bool
	}{
		{
			name:  "invalid page id",
			m:     newTestManager(f, credentials.NewStatic("tok")),
			req:   models.SyncRequest{PageID: "p 1; drop"},
			check: func(err error) bool { return err != nil },
		},
		{
			name:  "job chaining unavailable",
			m:     newTestManager(f, credentials.NewStatic("tok")),
			req:   models.SyncRequest{PageID: "p1", UseJobChaining: true},
			check: func(err error) bool { return errors.Is(err, ErrJobsUnavailable) },
		},
		{
			name:  "no credential",
			m:     newTestManager(f, credentials.NewStatic("")),
			req:   models.SyncRequest{PageID: "p1"},
			check: func(err error) bool { return errors.Is(err, credentials.ErrNoCredential) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep, err := tt.m.Run(context.Background(), tt.req)
			if !tt.check(err) {
				t.Errorf("err = %v", err)
			}
			if rep != nil {
				t.Errorf("report = %+v, want nil", rep)
			}
		})
	}
	if n := f.src.callCount("accounts:p1"); n != 0 {
		t.Errorf("rejected requests fetched accounts %d times", n)
	}
}

func TestCredentialScope(t *testing.T) {
	t.Parallel()

	if got := CredentialScope(""); got != credentials.RolePrivileged {
		t.Errorf("CredentialScope(\"\") = %q", got)
	}
	if got := CredentialScope("42"); got != "user:42" {
		t.Errorf("CredentialScope(42) = %q", got)
	}
}
