// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations, first match wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/adsync/config.yaml",
	"/etc/adsync/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultJobBackoff is the retry schedule applied to failed sync jobs.
var DefaultJobBackoff = []time.Duration{
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	300 * time.Second,
	600 * time.Second,
}

func defaultConfig() *Config {
	return &Config{
		Graph: GraphConfig{
			BaseURL:        "https://graph.facebook.com",
			Version:        "v19.0",
			RequestTimeout: 30 * time.Second,
			InterCallDelay: 1 * time.Second,
			PageSize:       100,
			CircuitBreaker: true,
		},
		RateLimit: RateLimitConfig{
			PerMinute: 5,
			PerHour:   150,
		},
		Throttle: ThrottleConfig{
			BaseDelay:        300 * time.Second,
			StepDelay:        180 * time.Second,
			EscalatedDelay:   900 * time.Second,
			MaxRetries:       5,
			TransientBase:    2 * time.Second,
			TransientCap:     60 * time.Second,
			TransientRetries: 3,
		},
		Sync: SyncConfig{
			Interval:           6 * time.Hour,
			UseJobChaining:     false,
			SyncLeads:          true,
			RunOnStartup:       false,
			InterCampaignDelay: 2 * time.Second,
			InterAdSetDelay:    1 * time.Second,
			ThrottleCooldown:   15 * time.Minute,
			LockTTL:            5 * time.Minute,
		},
		Jobs: JobsConfig{
			Backoff:               DefaultJobBackoff,
			PageDeadline:          2 * time.Hour,
			ChildDeadline:         30 * time.Minute,
			MaxDependencyAttempts: 2,
			DispatchPerSecond:     1,
			Topic:                 "adsync.jobs",
		},
		Leads: LeadsConfig{
			SourceName: "Facebook Lead Ads",
		},
		Audit: AuditConfig{
			Enabled:         true,
			Retention:       30 * 24 * time.Hour,
			CleanupInterval: 24 * time.Hour,
		},
		Database: DatabaseConfig{
			Path:      "/data/adsync.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Store: StoreConfig{
			Path:       "/data/kv",
			GCInterval: 10 * time.Minute,
		},
		NATS: NATSConfig{
			Enabled:          false,
			URL:              "nats://127.0.0.1:4222",
			EmbeddedServer:   true,
			StoreDir:         "/data/nats/jetstream",
			MaxMemory:        256 << 20,
			MaxStore:         1 << 30,
			DurablePrefix:    "adsync",
			QueueGroup:       "adsync-workers",
			SubscribersCount: 1,
			AckWait:          30 * time.Minute,
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "0.0.0.0",
			Port:            8088,
			Timeout:         30 * time.Second,
			RateLimitReqs:   10,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
			EventStream:     true,
		},
		Security: SecurityConfig{
			CredentialStore: "config",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// LoadWithKoanf loads configuration from, in increasing priority:
//  1. built-in defaults
//  2. the first YAML file found (CONFIG_PATH, then DefaultConfigPaths)
//  3. environment variables (see envTransformFunc)
//
// The result is validated before it is returned.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{
	"sync.page_ids",
	"jobs.backoff",
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"graph_base_url":        "graph.base_url",
	"graph_api_version":     "graph.version",
	"graph_access_token":    "graph.access_token",
	"graph_request_timeout": "graph.request_timeout",
	"graph_inter_call":      "graph.inter_call_delay",
	"graph_page_size":       "graph.page_size",
	"graph_circuit_breaker": "graph.circuit_breaker",

	"rate_limit_per_minute": "rate_limit.per_minute",
	"rate_limit_per_hour":   "rate_limit.per_hour",

	"throttle_base_delay":        "throttle.base_delay",
	"throttle_step_delay":        "throttle.step_delay",
	"throttle_escalated_delay":   "throttle.escalated_delay",
	"throttle_max_retries":       "throttle.max_retries",
	"throttle_transient_base":    "throttle.transient_base",
	"throttle_transient_cap":     "throttle.transient_cap",
	"throttle_transient_retries": "throttle.transient_retries",

	"sync_interval":             "sync.interval",
	"sync_page_ids":             "sync.page_ids",
	"sync_user_id":              "sync.user_id",
	"sync_use_job_chaining":     "sync.use_job_chaining",
	"sync_leads":                "sync.sync_leads",
	"sync_run_on_startup":       "sync.run_on_startup",
	"sync_inter_campaign_delay": "sync.inter_campaign_delay",
	"sync_inter_adset_delay":    "sync.inter_adset_delay",
	"sync_throttle_cooldown":    "sync.throttle_cooldown",
	"sync_lock_ttl":             "sync.lock_ttl",

	"jobs_backoff":                 "jobs.backoff",
	"jobs_page_deadline":           "jobs.page_deadline",
	"jobs_child_deadline":          "jobs.child_deadline",
	"jobs_max_dependency_attempts": "jobs.max_dependency_attempts",
	"jobs_dispatch_per_second":     "jobs.dispatch_per_second",
	"jobs_topic":                   "jobs.topic",

	"lead_source_name": "leads.source_name",

	"audit_enabled":          "audit.enabled",
	"audit_retention":        "audit.retention",
	"audit_cleanup_interval": "audit.cleanup_interval",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"kv_store_path":      "store.path",
	"kv_store_in_memory": "store.in_memory",
	"kv_gc_interval":     "store.gc_interval",

	"nats_enabled":        "nats.enabled",
	"nats_url":            "nats.url",
	"nats_embedded":       "nats.embedded_server",
	"nats_store_dir":      "nats.store_dir",
	"nats_max_memory":     "nats.max_memory",
	"nats_max_store":      "nats.max_store",
	"nats_durable_prefix": "nats.durable_prefix",
	"nats_queue_group":    "nats.queue_group",
	"nats_subscribers":    "nats.subscribers_count",
	"nats_ack_wait":       "nats.ack_wait",

	"http_enabled":        "server.enabled",
	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_timeout":        "server.timeout",
	"rate_limit_requests": "server.rate_limit_reqs",
	"rate_limit_window":   "server.rate_limit_window",
	"cors_origins":        "server.cors_origins",
	"operator_api_key":    "server.api_key",
	"event_stream":        "server.event_stream",

	"credential_store":  "security.credential_store",
	"encryption_secret": "security.encryption_secret",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc maps an environment variable name to its koanf path.
//
//	GRAPH_ACCESS_TOKEN -> graph.access_token
//	SYNC_PAGE_IDS      -> sync.page_ids
//	DUCKDB_PATH        -> database.path
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
