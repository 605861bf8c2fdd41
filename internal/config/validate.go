// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Credential store modes.
const (
	CredentialStoreConfig   = "config"
	CredentialStoreDatabase = "database"
)

// Validate checks that required configuration is present and coherent.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateGraph,
		c.validateRateLimit,
		c.validateThrottle,
		c.validateSync,
		c.validateJobs,
		c.validateStorage,
		c.validateAudit,
		c.validateNATS,
		c.validateServer,
		c.validateSecurity,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateGraph() error {
	u, err := url.Parse(c.Graph.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("GRAPH_BASE_URL must be an absolute URL, got %q", c.Graph.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("GRAPH_BASE_URL must use http or https, got %q", u.Scheme)
	}
	if c.Graph.RequestTimeout <= 0 {
		return errors.New("GRAPH_REQUEST_TIMEOUT must be positive")
	}
	if c.Graph.InterCallDelay < 0 {
		return errors.New("GRAPH_INTER_CALL must not be negative")
	}
	if c.Graph.PageSize < 1 || c.Graph.PageSize > 500 {
		return fmt.Errorf("GRAPH_PAGE_SIZE must be between 1 and 500, got %d", c.Graph.PageSize)
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if c.RateLimit.PerMinute < 1 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be at least 1, got %d", c.RateLimit.PerMinute)
	}
	if c.RateLimit.PerHour < c.RateLimit.PerMinute {
		return fmt.Errorf("RATE_LIMIT_PER_HOUR (%d) must be >= RATE_LIMIT_PER_MINUTE (%d)",
			c.RateLimit.PerHour, c.RateLimit.PerMinute)
	}
	return nil
}

func (c *Config) validateThrottle() error {
	t := c.Throttle
	if t.BaseDelay <= 0 || t.EscalatedDelay <= 0 {
		return errors.New("throttle base and escalated delays must be positive")
	}
	if t.StepDelay < 0 {
		return errors.New("THROTTLE_STEP_DELAY must not be negative")
	}
	if t.MaxRetries < 0 || t.TransientRetries < 0 {
		return errors.New("throttle retry counts must not be negative")
	}
	if t.TransientBase <= 0 || t.TransientCap < t.TransientBase {
		return fmt.Errorf("THROTTLE_TRANSIENT_CAP (%v) must be >= THROTTLE_TRANSIENT_BASE (%v) > 0",
			t.TransientCap, t.TransientBase)
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.Interval < 0 {
		return errors.New("SYNC_INTERVAL must not be negative")
	}
	if c.Sync.LockTTL <= 0 {
		return errors.New("SYNC_LOCK_TTL must be positive")
	}
	if c.Sync.InterCampaignDelay < 0 || c.Sync.InterAdSetDelay < 0 || c.Sync.ThrottleCooldown < 0 {
		return errors.New("sync delays must not be negative")
	}
	for _, id := range c.Sync.PageIDs {
		if strings.ContainsAny(id, "/?# ") {
			return fmt.Errorf("SYNC_PAGE_IDS contains an invalid id %q", id)
		}
	}
	return nil
}

func (c *Config) validateJobs() error {
	if len(c.Jobs.Backoff) == 0 {
		return errors.New("JOBS_BACKOFF must list at least one delay")
	}
	for i, d := range c.Jobs.Backoff {
		if d <= 0 {
			return fmt.Errorf("JOBS_BACKOFF[%d] must be positive, got %v", i, d)
		}
	}
	if c.Jobs.PageDeadline <= 0 || c.Jobs.ChildDeadline <= 0 {
		return errors.New("job deadlines must be positive")
	}
	if c.Jobs.MaxDependencyAttempts < 1 {
		return errors.New("JOBS_MAX_DEPENDENCY_ATTEMPTS must be at least 1")
	}
	if c.Jobs.DispatchPerSecond <= 0 {
		return errors.New("JOBS_DISPATCH_PER_SECOND must be positive")
	}
	if c.Jobs.Topic == "" {
		return errors.New("JOBS_TOPIC is required")
	}
	return nil
}

func (c *Config) validateAudit() error {
	if !c.Audit.Enabled {
		return nil
	}
	if c.Audit.Retention < 0 {
		return errors.New("AUDIT_RETENTION must not be negative")
	}
	if c.Audit.Retention > 0 && c.Audit.CleanupInterval <= 0 {
		return errors.New("AUDIT_CLEANUP_INTERVAL must be positive when retention is set")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Database.Path == "" {
		return errors.New("DUCKDB_PATH is required")
	}
	if c.Store.Path == "" && !c.Store.InMemory {
		return errors.New("KV_STORE_PATH is required unless KV_STORE_IN_MEMORY=true")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if !c.NATS.EmbeddedServer && c.NATS.URL == "" {
		return errors.New("NATS_URL is required when NATS_EMBEDDED=false")
	}
	if c.NATS.EmbeddedServer && c.NATS.StoreDir == "" {
		return errors.New("NATS_STORE_DIR is required for the embedded server")
	}
	if c.NATS.SubscribersCount < 1 {
		return errors.New("NATS_SUBSCRIBERS must be at least 1")
	}
	return nil
}

func (c *Config) validateServer() error {
	if !c.Server.Enabled {
		return nil
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitReqs < 1 || c.Server.RateLimitWindow <= 0 {
		return errors.New("operator API rate limit must be positive")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	switch c.Security.CredentialStore {
	case CredentialStoreConfig:
		if c.Graph.AccessToken == "" {
			return errors.New("GRAPH_ACCESS_TOKEN is required when CREDENTIAL_STORE=config")
		}
	case CredentialStoreDatabase:
		if len(c.Security.EncryptionSecret) < 32 {
			return errors.New("ENCRYPTION_SECRET must be at least 32 characters when CREDENTIAL_STORE=database")
		}
	default:
		return fmt.Errorf("CREDENTIAL_STORE must be 'config' or 'database', got %q", c.Security.CredentialStore)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
