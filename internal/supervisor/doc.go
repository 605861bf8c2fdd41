// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

/*
Package supervisor runs adsync's long-lived services under a suture v4 tree.

	adsync (root)
	├── data-layer        badger value log GC
	├── messaging-layer   job queue, sync scheduler, event log, websocket bridge
	└── api-layer         operator HTTP server, websocket hub

Restart thresholds come from the supervisor config section
(SUPERVISOR_FAILURE_THRESHOLD, SUPERVISOR_FAILURE_DECAY,
SUPERVISOR_FAILURE_BACKOFF, SUPERVISOR_SHUTDOWN_TIMEOUT).

Supervisor events (restarts, backoff, timeouts) are logged through
sutureslog into the zerolog bridge from internal/logging.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLoggerFor("supervisor"),
		supervisor.TreeConfigFrom(cfg.Supervisor))
	tree.Add(supervisor.LayerMessaging, services.NewRunnerService("job-queue", queue))
	tree.Add(supervisor.LayerAPI, services.NewHTTPServerService(server, 10*time.Second))
	err = tree.Serve(ctx)

Service adapters live in the services subpackage.
*/
package supervisor
