// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

// Package credentials resolves the access token a sync run authenticates
// with. The token source is injected into the orchestrator; nothing here is
// global.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/adsync/internal/config"
	"github.com/tomtom215/adsync/internal/database"
	"github.com/tomtom215/adsync/internal/logging"
)

// RolePrivileged tags the account whose token is used when a run names no user.
const RolePrivileged = "privileged"

// ErrNoCredential means no token is available for the requested user.
var ErrNoCredential = errors.New("no access credential available")

// Provider returns the access token for userID. An empty userID asks for
// the privileged account.
type Provider interface {
	Token(ctx context.Context, userID string) (string, error)
}

// Static serves the single token from configuration for every user.
type Static struct {
	token string
}

// NewStatic returns a provider for a configured token.
func NewStatic(token string) *Static {
	return &Static{token: token}
}

// Token implements Provider.
func (s *Static) Token(_ context.Context, _ string) (string, error) {
	if s.token == "" {
		return "", ErrNoCredential
	}
	return s.token, nil
}

// Store is the persistence the database provider needs. *database.DB
// implements it.
type Store interface {
	SaveCredential(ctx context.Context, c database.StoredCredential) error
	GetCredential(ctx context.Context, userID string) (*database.StoredCredential, error)
	GetCredentialByRole(ctx context.Context, role string) (*database.StoredCredential, error)
}

// Database serves per-user tokens sealed with a CredentialEncryptor.
type Database struct {
	store Store
	enc   *config.CredentialEncryptor
}

// NewDatabase returns a provider reading sealed tokens from store.
func NewDatabase(store Store, enc *config.CredentialEncryptor) *Database {
	return &Database{store: store, enc: enc}
}

// Token implements Provider.
func (d *Database) Token(ctx context.Context, userID string) (string, error) {
	var (
		cred *database.StoredCredential
		err  error
	)
	if userID == "" {
		cred, err = d.store.GetCredentialByRole(ctx, RolePrivileged)
	} else {
		cred, err = d.store.GetCredential(ctx, userID)
	}
	if errors.Is(err, database.ErrNotFound) {
		who := userID
		if who == "" {
			who = RolePrivileged + " account"
		}
		return "", fmt.Errorf("%w for %s", ErrNoCredential, who)
	}
	if err != nil {
		return "", err
	}

	token, err := d.enc.Decrypt(cred.TokenEncrypted)
	if err != nil {
		return "", fmt.Errorf("decrypt credential for %s: %w", cred.UserID, err)
	}
	return token, nil
}

// Save seals token and stores it for userID under role.
func (d *Database) Save(ctx context.Context, userID, role, token string) error {
	sealed, err := d.enc.Encrypt(token)
	if err != nil {
		return fmt.Errorf("encrypt credential for %s: %w", userID, err)
	}
	if err := d.store.SaveCredential(ctx, database.StoredCredential{
		UserID:         userID,
		Role:           role,
		TokenEncrypted: sealed,
	}); err != nil {
		return err
	}
	logging.Ctx(ctx).Info().Str("user_id", userID).Str("role", role).
		Str("token", logging.MaskToken(token)).Msg("Stored access credential")
	return nil
}

// FromConfig builds the provider selected by security.credential_store.
func FromConfig(cfg *config.Config, store Store) (Provider, error) {
	switch cfg.Security.CredentialStore {
	case "", "config":
		return NewStatic(cfg.Graph.AccessToken), nil
	case "database":
		enc, err := config.NewCredentialEncryptor(cfg.Security.EncryptionSecret)
		if err != nil {
			return nil, fmt.Errorf("credential encryptor: %w", err)
		}
		return NewDatabase(store, enc), nil
	default:
		return nil, fmt.Errorf("unknown credential store %q", cfg.Security.CredentialStore)
	}
}
