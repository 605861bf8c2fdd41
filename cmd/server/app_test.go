// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/tomtom215/adsync/internal/config"
	"github.com/tomtom215/adsync/internal/supervisor"
)

func testConfig() *config.Config {
	return &config.Config{
		Graph: config.GraphConfig{
			BaseURL:        "http://127.0.0.1:1",
			Version:        "v19.0",
			AccessToken:    "test-token",
			RequestTimeout: time.Second,
			PageSize:       25,
		},
		RateLimit: config.RateLimitConfig{PerMinute: 5, PerHour: 200},
		Sync:      config.SyncConfig{LockTTL: time.Minute},
		Jobs: config.JobsConfig{
			Backoff:       []time.Duration{time.Second},
			PageDeadline:  time.Hour,
			ChildDeadline: time.Minute,
		},
		Database: config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 1},
		Store:    config.StoreConfig{InMemory: true},
		Audit:    config.AuditConfig{Enabled: true, Retention: time.Hour, CleanupInterval: time.Hour},
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 0, Timeout: 5 * time.Second, RateLimitReqs: 30, RateLimitWindow: time.Minute, EventStream: true},
	}
}

func TestNewApp_ServesHealth(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApp(ctx, testConfig())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer app.Close()

	rec := httptest.NewRecorder()
	app.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, body %s", rec.Code, rec.Body.String())
	}
	for _, name := range []string{"database", "store"} {
		if !strings.Contains(rec.Body.String(), name) {
			t.Errorf("health body missing %q: %s", name, rec.Body.String())
		}
	}
}

func TestNewApp_EventLogRoute(t *testing.T) {
	tests := []struct {
		name     string
		enabled  bool
		wantCode int
	}{
		{"enabled", true, http.StatusOK},
		{"disabled", false, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Audit.Enabled = tt.enabled

			app, err := newApp(context.Background(), cfg)
			if err != nil {
				t.Fatalf("newApp: %v", err)
			}
			defer app.Close()

			if (app.eventLog != nil) != tt.enabled {
				t.Errorf("event log consumer present = %v, want %v", app.eventLog != nil, tt.enabled)
			}
			rec := httptest.NewRecorder()
			app.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
			if rec.Code != tt.wantCode {
				t.Errorf("GET /api/v1/events = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestNewApp_EventStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApp(ctx, testConfig())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer app.Close()
	go func() { _ = app.hub.Run(ctx) }()

	server := httptest.NewServer(app.server.Handler)
	defer server.Close()

	conn, resp, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/v1/events/stream", nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial event stream: %v", err)
	}
	_ = conn.Close()
}

func TestNewApp_UnknownCredentialStore(t *testing.T) {
	cfg := testConfig()
	cfg.Security.CredentialStore = "vault"

	if app, err := newApp(context.Background(), cfg); err == nil {
		app.Close()
		t.Fatal("newApp succeeded with an unknown credential store")
	}
}

func TestApp_SuperviseAndStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApp(ctx, testConfig())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer app.Close()

	tree, err := supervisor.NewSupervisorTree(quietLogger(), supervisor.TreeConfig{ShutdownTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewSupervisorTree: %v", err)
	}
	app.Supervise(tree)
	errCh := tree.ServeBackground(ctx)

	select {
	case <-app.queue.Running():
	case <-time.After(10 * time.Second):
		t.Fatal("job queue did not start under the supervisor")
	}
	select {
	case <-app.eventLog.Running():
	case <-time.After(10 * time.Second):
		t.Fatal("event log did not start under the supervisor")
	}
	select {
	case <-app.bridge.Running():
	case <-time.After(10 * time.Second):
		t.Fatal("websocket bridge did not start under the supervisor")
	}
	cancel()

	select {
	case <-errCh:
	case <-time.After(40 * time.Second):
		t.Fatal("supervisor tree did not stop")
	}
	if report, _ := tree.UnstoppedServiceReport(); len(report) != 0 {
		t.Errorf("unstopped services: %v", report)
	}
}
