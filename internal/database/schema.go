// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext bounds DDL statements during startup.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// Parent/child links are not declared as foreign keys: DuckDB rejects
// updates to a referenced row, and every sync rewrites parents. The upsert
// path checks parents explicitly and returns ErrMissingParent instead.
func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS campaigns (
			external_id TEXT PRIMARY KEY,
			account_id TEXT,
			page_id TEXT,
			name TEXT NOT NULL DEFAULT '',
			objective TEXT,
			status TEXT NOT NULL,
			daily_budget DOUBLE,
			lifetime_budget DOUBLE,
			budget_remaining DOUBLE,
			start_time TIMESTAMP,
			stop_time TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			last_synced TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ad_sets (
			external_id TEXT PRIMARY KEY,
			campaign_external_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			daily_budget DOUBLE,
			lifetime_budget DOUBLE,
			budget_remaining DOUBLE,
			bid_amount DOUBLE,
			billing_event TEXT,
			optimization_goal TEXT,
			start_time TIMESTAMP,
			end_time TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			last_synced TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ads (
			external_id TEXT PRIMARY KEY,
			campaign_external_id TEXT NOT NULL,
			adset_external_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			creative_id TEXT,
			created_at TIMESTAMP NOT NULL,
			last_synced TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS lead_sources (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL
		);`,
		// tags and custom_fields hold JSON documents.
		`CREATE TABLE IF NOT EXISTS leads (
			id TEXT PRIMARY KEY,
			external_id TEXT,
			form_external_id TEXT,
			ad_external_id TEXT,
			campaign_external_id TEXT,
			name TEXT NOT NULL DEFAULT '',
			email TEXT,
			phone TEXT,
			phone_normalized TEXT,
			city TEXT,
			country TEXT,
			occupation TEXT,
			address TEXT,
			detail TEXT,
			inquiry_status TEXT NOT NULL DEFAULT 'new',
			tags TEXT NOT NULL DEFAULT '[]',
			custom_fields TEXT NOT NULL DEFAULT '{}',
			budget_amount DOUBLE,
			budget_currency TEXT,
			budget_raw TEXT,
			score INTEGER NOT NULL DEFAULT 0,
			lead_source_id TEXT,
			is_organic BOOLEAN NOT NULL DEFAULT false,
			last_activity_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS access_credentials (
			user_id TEXT PRIMARY KEY,
			role TEXT NOT NULL,
			token_encrypted TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
	}
}

func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, q := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}
