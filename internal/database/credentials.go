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
)

// StoredCredential is an access token as persisted: the token is sealed by
// config.CredentialEncryptor before it reaches this package.
type StoredCredential struct {
	UserID         string
	Role           string
	TokenEncrypted string
	UpdatedAt      time.Time
}

// SaveCredential inserts or replaces the sealed token for a user.
func (db *DB) SaveCredential(ctx context.Context, c StoredCredential) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		now := db.now()
		exists, err := rowExists(ctx, tx, `SELECT 1 FROM access_credentials WHERE user_id = ?`, c.UserID)
		if err != nil {
			return err
		}
		if exists {
			_, err = tx.ExecContext(ctx,
				`UPDATE access_credentials SET role = ?, token_encrypted = ?, updated_at = ? WHERE user_id = ?`,
				c.Role, c.TokenEncrypted, now, c.UserID)
		} else {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO access_credentials (user_id, role, token_encrypted, updated_at) VALUES (?, ?, ?, ?)`,
				c.UserID, c.Role, c.TokenEncrypted, now)
		}
		if err != nil {
			return fmt.Errorf("failed to save credential for %s: %w", c.UserID, err)
		}
		return nil
	})
}

// GetCredential returns the sealed token of a user, or ErrNotFound.
func (db *DB) GetCredential(ctx context.Context, userID string) (*StoredCredential, error) {
	return db.queryCredential(ctx, `WHERE user_id = ?`, userID)
}

// GetCredentialByRole returns the most recently updated credential holding
// role, or ErrNotFound.
func (db *DB) GetCredentialByRole(ctx context.Context, role string) (*StoredCredential, error) {
	return db.queryCredential(ctx, `WHERE role = ? ORDER BY updated_at DESC`, role)
}

func (db *DB) queryCredential(ctx context.Context, clause string, arg any) (*StoredCredential, error) {
	var c StoredCredential
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id, role, token_encrypted, updated_at FROM access_credentials `+clause+` LIMIT 1`, arg).
		Scan(&c.UserID, &c.Role, &c.TokenEncrypted, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	return &c, nil
}
