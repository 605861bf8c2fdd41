// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/adsync/internal/logging"
)

// ErrNilEntry is returned by Save for a nil entry.
var ErrNilEntry = errors.New("entry cannot be nil")

// DuckDBStore stores entries in the event_log table.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore returns a store over db. Call CreateTable before use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates event_log and its indexes if they do not exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS event_log (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			topic TEXT NOT NULL,
			subject TEXT,
			severity TEXT NOT NULL,
			correlation_id TEXT,
			payload JSON NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_event_log_timestamp ON event_log(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_event_log_correlation_id ON event_log(correlation_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute event log schema statement: %w", err)
		}
	}
	return nil
}

// Save inserts e. Saving an id that already exists is a no-op.
func (s *DuckDBStore) Save(ctx context.Context, e *Entry) error {
	if e == nil {
		return ErrNilEntry
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_log (id, timestamp, topic, subject, severity, correlation_id, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.Timestamp.UTC(), e.Topic, nullString(e.Subject), e.Severity,
		nullString(e.CorrelationID), string(e.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save event log entry: %w", err)
	}
	return nil
}

// Query returns matching entries, newest first.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	where, args := buildWhere(filter)
	query := `
		SELECT id, timestamp, topic, COALESCE(subject, ''), severity,
			COALESCE(correlation_id, ''), CAST(payload AS VARCHAR)
		FROM event_log` + where + `
		ORDER BY timestamp DESC, id
		LIMIT ?`
	args = append(args, clampLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var payload string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Topic, &e.Subject, &e.Severity, &e.CorrelationID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event log entry: %w", err)
		}
		e.Payload = []byte(payload)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event log: %w", err)
	}
	return entries, nil
}

// Count returns the number of matching entries, ignoring Limit.
func (s *DuckDBStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	where, args := buildWhere(filter)
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM event_log"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count event log: %w", err)
	}
	return n, nil
}

// Delete removes entries older than olderThan.
func (s *DuckDBStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM event_log WHERE timestamp < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old event log entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}
	if n > 0 {
		logging.Info().Int64("deleted", n).Time("older_than", olderThan).Msg("Pruned event log")
	}
	return n, nil
}

func buildWhere(f QueryFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		conds = append(conds, cond)
		args = append(args, v)
	}
	if f.Topic != "" {
		add("topic = ?", f.Topic)
	}
	if f.CorrelationID != "" {
		add("correlation_id = ?", f.CorrelationID)
	}
	if f.Severity != "" {
		add("severity = ?", f.Severity)
	}
	if !f.Since.IsZero() {
		add("timestamp >= ?", f.Since.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultQueryLimit
	case n > MaxQueryLimit:
		return MaxQueryLimit
	default:
		return n
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
