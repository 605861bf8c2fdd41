// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/adsync/internal/api"
	"github.com/tomtom215/adsync/internal/audit"
	"github.com/tomtom215/adsync/internal/config"
	"github.com/tomtom215/adsync/internal/credentials"
	"github.com/tomtom215/adsync/internal/database"
	"github.com/tomtom215/adsync/internal/events"
	"github.com/tomtom215/adsync/internal/graph"
	"github.com/tomtom215/adsync/internal/jobs"
	"github.com/tomtom215/adsync/internal/kvstore"
	"github.com/tomtom215/adsync/internal/leads"
	"github.com/tomtom215/adsync/internal/logging"
	"github.com/tomtom215/adsync/internal/ratelimit"
	"github.com/tomtom215/adsync/internal/supervisor"
	"github.com/tomtom215/adsync/internal/supervisor/services"
	"github.com/tomtom215/adsync/internal/sync"
	"github.com/tomtom215/adsync/internal/upsert"
	"github.com/tomtom215/adsync/internal/websocket"
)

// App holds every long-lived component. Fields are set in dependency order
// by newApp and torn down in reverse by Close.
type App struct {
	cfg *config.Config

	db        *database.DB
	store     *kvstore.Store
	bus       *events.Bus
	publisher *events.Publisher

	queue     *jobs.Queue
	eventLog  *audit.Consumer
	hub       *websocket.Hub
	bridge    *websocket.Bridge
	manager   *sync.Manager
	scheduler *sync.Scheduler
	handler   *api.Handler
	server    *http.Server
}

// newApp opens storage and the event bus and wires the sync pipeline.
// On error every component opened so far is closed.
//
//nolint:gocyclo // sequential wiring
func newApp(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	app := &App{cfg: cfg}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	app.db, err = database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.Store.InMemory {
		app.store, err = kvstore.OpenInMemory()
	} else {
		app.store, err = kvstore.Open(&cfg.Store)
	}
	if err != nil {
		return nil, fmt.Errorf("open key-value store: %w", err)
	}

	app.bus, err = events.NewBus(ctx, cfg.NATS)
	if err != nil {
		return nil, fmt.Errorf("open event bus: %w", err)
	}
	app.publisher = events.NewPublisher(app.bus.Publisher())

	creds, err := credentials.FromConfig(cfg, app.db)
	if err != nil {
		return nil, err
	}

	clock := ratelimit.RealClock()
	governor := ratelimit.NewGovernor(app.store, clock, ratelimit.LimitsFromConfig(cfg.RateLimit), credentials.RolePrivileged)
	client := graph.NewClient(cfg.Graph, cfg.Throttle, governor)

	var breaker *gobreaker.CircuitBreaker[graph.Payload]
	if cfg.Graph.CircuitBreaker {
		breaker = graph.NewBreaker("graph")
	}
	sources := sync.NewGraphSourceFactory(client, governor, breaker, cfg.Graph.PageSize)

	var processor *leads.Processor
	if cfg.Sync.SyncLeads {
		processor = leads.NewProcessor(app.db, leads.NewEngine(cfg.Leads.SourceName), app.publisher)
	}
	exec := sync.NewExecutor(upsert.New(app.db, app.publisher), app.db, processor)

	deps := sync.ManagerDeps{
		Credentials: creds,
		Sources:     sources,
		Locks:       app.store,
		Inline:      sync.NewInlineRunner(exec, clock, cfg.Sync),
		Emitter:     app.publisher,
		Clock:       clock,
	}

	sub, err := app.bus.Subscriber("jobs")
	if err != nil {
		return nil, err
	}
	app.queue = jobs.New(app.bus.Publisher(), sub, cfg.Jobs, jobs.Options{
		Clock:   clock,
		Emitter: app.publisher,
		Logger:  app.bus.Logger(),
	})
	deps.Jobs = sync.NewJobRunner(app.queue, exec, app.store, creds, sources, clock, cfg.Sync, cfg.Jobs)

	app.manager = sync.NewManager(deps, cfg.Sync)
	app.scheduler = sync.NewScheduler(app.manager, cfg.Sync)

	app.handler = api.NewHandler(ctx, app.manager, version,
		api.HealthCheck{Name: "database", Pinger: app.db},
		api.HealthCheck{Name: "store", Pinger: app.store},
	)
	if cfg.Audit.Enabled {
		store := audit.NewDuckDBStore(app.db.Conn())
		if err = store.CreateTable(ctx); err != nil {
			return nil, fmt.Errorf("create event log: %w", err)
		}
		logSub, err := app.bus.Subscriber("event-log")
		if err != nil {
			return nil, err
		}
		app.eventLog = audit.NewConsumer(logSub, store, cfg.Audit, app.bus.Logger())
		app.handler.WithEventLog(store)
	}

	if cfg.Server.EventStream {
		streamSub, err := app.bus.Subscriber("websocket")
		if err != nil {
			return nil, err
		}
		app.hub = websocket.NewHub(0)
		app.bridge = websocket.NewBridge(streamSub, app.hub, app.bus.Logger())
		app.handler.WithEventStream(websocket.NewHandler(app.hub, cfg.Server.CORSOrigins))
	}

	router := api.NewRouter(app.handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFromServer(cfg.Server)))
	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}
	return app, nil
}

// Supervise adds the app's services to tree.
func (a *App) Supervise(tree *supervisor.SupervisorTree) {
	if a.cfg.Store.GCInterval > 0 && !a.cfg.Store.InMemory {
		tree.Add(supervisor.LayerData, services.NewGCService(a.store, a.cfg.Store.GCInterval))
	}
	tree.Add(supervisor.LayerMessaging, services.NewRunnerService("job-queue", a.queue))
	tree.Add(supervisor.LayerMessaging, services.NewLifecycleService("sync-scheduler", a.scheduler))
	if a.eventLog != nil {
		tree.Add(supervisor.LayerMessaging, services.NewRunnerService("event-log", a.eventLog))
	}
	if a.hub != nil {
		tree.Add(supervisor.LayerAPI, services.NewRunnerService("websocket-hub", a.hub))
		tree.Add(supervisor.LayerMessaging, services.NewRunnerService("websocket-bridge", a.bridge))
	}
	if a.cfg.Server.Enabled {
		tree.Add(supervisor.LayerAPI, services.NewHTTPServerService(a.server, a.cfg.Supervisor.ShutdownTimeout))
		logging.Info().Str("addr", a.server.Addr).Msg("HTTP server service added")
	}
}

// Close waits for background API runs and in-flight job retries, then
// closes the bus and storage.
func (a *App) Close() {
	if a.handler != nil {
		a.handler.Wait()
	}
	if a.queue != nil {
		a.queue.Wait()
	}
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing key-value store")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}
}
