// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

// Package config loads and validates Adsync configuration.
//
// Configuration is layered with Koanf v2: built-in defaults, then an optional
// YAML file, then environment variables. See LoadWithKoanf.
package config

import (
	"time"
)

// Config is the complete process configuration.
type Config struct {
	Graph     GraphConfig     `koanf:"graph"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Throttle  ThrottleConfig  `koanf:"throttle"`
	Sync      SyncConfig      `koanf:"sync"`
	Jobs      JobsConfig      `koanf:"jobs"`
	Leads     LeadsConfig     `koanf:"leads"`
	Audit     AuditConfig     `koanf:"audit"`
	Database  DatabaseConfig  `koanf:"database"`
	Store     StoreConfig     `koanf:"store"`
	NATS      NATSConfig      `koanf:"nats"`
	Server    ServerConfig    `koanf:"server"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`

	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// GraphConfig configures the remote ads API client.
type GraphConfig struct {
	BaseURL string `koanf:"base_url"`
	Version string `koanf:"version"`

	// AccessToken is the privileged token used when no per-user credential
	// is stored. Never logged in clear.
	AccessToken string `koanf:"access_token"`

	RequestTimeout time.Duration `koanf:"request_timeout"`

	// InterCallDelay is slept after every successful call.
	InterCallDelay time.Duration `koanf:"inter_call_delay"`

	PageSize int `koanf:"page_size"`

	// CircuitBreaker wraps the client with gobreaker when true.
	CircuitBreaker bool `koanf:"circuit_breaker"`
}

// RateLimitConfig holds the call budget enforced by the rate governor.
type RateLimitConfig struct {
	PerMinute int `koanf:"per_minute"`
	PerHour   int `koanf:"per_hour"`
}

// ThrottleConfig holds the remote throttling and transient retry policy.
type ThrottleConfig struct {
	BaseDelay      time.Duration `koanf:"base_delay"`      // codes 4 and 17
	StepDelay      time.Duration `koanf:"step_delay"`      // added per attempt
	EscalatedDelay time.Duration `koanf:"escalated_delay"` // subcode 2446079
	MaxRetries     int           `koanf:"max_retries"`

	TransientBase    time.Duration `koanf:"transient_base"`
	TransientCap     time.Duration `koanf:"transient_cap"`
	TransientRetries int           `koanf:"transient_retries"`
}

// SyncConfig holds hierarchy walk settings.
type SyncConfig struct {
	// Interval between scheduled runs. Zero disables the scheduler.
	Interval time.Duration `koanf:"interval"`

	// PageIDs are synced on every scheduled run. Empty means "every page
	// the credential can see".
	PageIDs []string `koanf:"page_ids"`

	// UserID selects a stored credential for scheduled runs. Empty uses the
	// privileged account.
	UserID string `koanf:"user_id"`

	UseJobChaining bool `koanf:"use_job_chaining"`
	SyncLeads      bool `koanf:"sync_leads"`
	RunOnStartup   bool `koanf:"run_on_startup"`

	InterCampaignDelay time.Duration `koanf:"inter_campaign_delay"`
	InterAdSetDelay    time.Duration `koanf:"inter_adset_delay"`
	ThrottleCooldown   time.Duration `koanf:"throttle_cooldown"`
	LockTTL            time.Duration `koanf:"lock_ttl"`
}

// JobsConfig holds job-chaining queue settings.
type JobsConfig struct {
	Backoff               []time.Duration `koanf:"backoff"`
	PageDeadline          time.Duration   `koanf:"page_deadline"`
	ChildDeadline         time.Duration   `koanf:"child_deadline"`
	MaxDependencyAttempts int             `koanf:"max_dependency_attempts"`
	DispatchPerSecond     float64         `koanf:"dispatch_per_second"`
	Topic                 string          `koanf:"topic"`
}

// LeadsConfig holds lead ingestion settings.
type LeadsConfig struct {
	SourceName string `koanf:"source_name"`
}

// AuditConfig holds the event log kept in DuckDB.
type AuditConfig struct {
	Enabled bool `koanf:"enabled"`

	// Retention is how long entries are kept. Zero keeps them forever.
	Retention       time.Duration `koanf:"retention"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// StoreConfig holds the badger key-value store used for rate counters and sync locks.
type StoreConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`

	// GCInterval between value log GC passes. Zero disables GC.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// NATSConfig holds event bus and durable job queue settings.
type NATSConfig struct {
	// Enabled selects NATS JetStream. When false an in-process
	// Watermill GoChannel is used and jobs do not survive restarts.
	Enabled bool `koanf:"enabled"`

	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`

	DurablePrefix    string        `koanf:"durable_prefix"`
	QueueGroup       string        `koanf:"queue_group"`
	SubscribersCount int           `koanf:"subscribers_count"`
	AckWait          time.Duration `koanf:"ack_wait"`
}

// ServerConfig holds the operator HTTP surface settings.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	APIKey          string        `koanf:"api_key"`
	// EventStream serves bus events over a websocket at /api/v1/events/stream.
	EventStream bool `koanf:"event_stream"`
}

// SecurityConfig holds credential storage settings.
type SecurityConfig struct {
	// CredentialStore is "config" (single privileged token from graph.access_token)
	// or "database" (encrypted per-user tokens).
	CredentialStore  string `koanf:"credential_store"`
	EncryptionSecret string `koanf:"encryption_secret"`
}

// SupervisorConfig tunes restart behaviour of the service tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// GraphEndpoint returns the versioned API root, e.g. https://graph.facebook.com/v19.0.
func (g GraphConfig) GraphEndpoint() string {
	if g.Version == "" {
		return g.BaseURL
	}
	return g.BaseURL + "/" + g.Version
}
