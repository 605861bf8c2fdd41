// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

// Package services adapts adsync components to suture.Service.
//
//   - HTTPServerService: ListenAndServe/Shutdown (operator API)
//   - RunnerService: blocking Run(ctx) (job queue router)
//   - LifecycleService: Start/Stop (sync scheduler)
//   - GCService: periodic badger value log GC
package services
