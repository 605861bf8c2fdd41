// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package services

import (
	"context"
	"fmt"
)

// StartStopper is a component with its own goroutines behind Start and Stop,
// such as the sync scheduler.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop() error
}

// LifecycleService adapts a StartStopper to suture's Serve pattern.
//
// Serve calls Start, blocks until ctx is canceled, then calls Stop. A failed
// Start is returned so suture restarts the service with backoff.
type LifecycleService struct {
	component StartStopper
	name      string
}

// NewLifecycleService wraps component under the given service name.
//
//	scheduler := sync.NewScheduler(manager, cfg.Sync)
//	tree.Add(supervisor.LayerMessaging, services.NewLifecycleService("sync-scheduler", scheduler))
func NewLifecycleService(name string, component StartStopper) *LifecycleService {
	return &LifecycleService{component: component, name: name}
}

// Serve implements suture.Service.
func (s *LifecycleService) Serve(ctx context.Context) error {
	if err := s.component.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}

	<-ctx.Done()

	if err := s.component.Stop(); err != nil {
		return fmt.Errorf("%s stop failed: %w", s.name, err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for suture's logs.
func (s *LifecycleService) String() string {
	return s.name
}
