// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/adsync/internal/models"
)

// LeadCursor returns the high-water mark of a lead form. A form that was
// never synced has a zero cursor.
func (db *DB) LeadCursor(ctx context.Context, formID string) (models.LeadCursor, error) {
	var (
		at  time.Time
		ids string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT last_created_at, boundary_ids FROM lead_form_cursors WHERE form_external_id = ?`, formID).
		Scan(&at, &ids)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LeadCursor{}, nil
	}
	if err != nil {
		return models.LeadCursor{}, fmt.Errorf("failed to load lead cursor of form %s: %w", formID, err)
	}

	c := models.LeadCursor{CreatedAt: at.UTC()}
	if err := json.Unmarshal([]byte(ids), &c.ExternalIDs); err != nil {
		return models.LeadCursor{}, fmt.Errorf("failed to decode lead cursor of form %s: %w", formID, err)
	}
	return c, nil
}

// SaveLeadCursor stores the high-water mark of a lead form.
func (db *DB) SaveLeadCursor(ctx context.Context, formID string, c models.LeadCursor) error {
	ids := c.ExternalIDs
	if ids == nil {
		ids = []string{}
	}
	doc, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode lead cursor of form %s: %w", formID, err)
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		now := db.now()
		exists, err := rowExists(ctx, tx, `SELECT 1 FROM lead_form_cursors WHERE form_external_id = ?`, formID)
		if err != nil {
			return err
		}
		if exists {
			_, err = tx.ExecContext(ctx,
				`UPDATE lead_form_cursors SET last_created_at = ?, boundary_ids = ?, updated_at = ? WHERE form_external_id = ?`,
				c.CreatedAt.UTC(), string(doc), now, formID)
		} else {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO lead_form_cursors (form_external_id, last_created_at, boundary_ids, updated_at) VALUES (?, ?, ?, ?)`,
				formID, c.CreatedAt.UTC(), string(doc), now)
		}
		if err != nil {
			return fmt.Errorf("failed to save lead cursor of form %s: %w", formID, err)
		}
		return nil
	})
}
