// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

// Package testinfra starts Docker containers for integration tests with
// testcontainers-go.
//
// Everything here is behind the integration build tag:
//
//	go test -tags integration ./internal/testinfra/...
//
// NewNATSContainer runs a JetStream-enabled NATS server so the event bus and
// the durable job queue can be exercised against a real broker instead of
// the in-process GoChannel. Tests call SkipIfNoDocker first so the suite
// still passes on machines without Docker.
package testinfra
