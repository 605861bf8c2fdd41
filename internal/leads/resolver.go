// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/adsync/internal/database"
	"github.com/tomtom215/adsync/internal/models"
	"github.com/tomtom215/adsync/internal/validation"
)

// Finder looks leads up by identity. *database.LeadTx implements it; each
// method returns database.ErrNotFound when nothing matches.
type Finder interface {
	FindLeadByExternalID(ctx context.Context, externalID string) (*models.Lead, error)
	FindLeadByPhone(ctx context.Context, phone string) (*models.Lead, error)
	FindLeadByNormalizedPhone(ctx context.Context, digits string) (*models.Lead, error)
	FindLeadByPhoneSuffix(ctx context.Context, last10 string) (*models.Lead, error)
	FindLeadByEmail(ctx context.Context, email string) (*models.Lead, error)
}

// Match is an existing lead found for an inbound submission.
type Match struct {
	Lead *models.Lead
	Kind models.MatchKind
}

// Resolve finds the existing lead an inbound submission belongs to. Rules run
// in order and the first hit wins: remote lead id, then phone (exact,
// normalized, trailing ten digits), then email. It returns nil when no rule
// matches.
func Resolve(ctx context.Context, f Finder, in *models.InboundLead) (*Match, error) {
	if in.ExternalID != "" {
		lead, err := found(f.FindLeadByExternalID(ctx, in.ExternalID))
		if err != nil {
			return nil, fmt.Errorf("resolve by external id: %w", err)
		}
		if lead != nil {
			return &Match{Lead: lead, Kind: models.MatchExternalID}, nil
		}
	}

	if lead, err := resolvePhone(ctx, f, in.Field(PhoneFields...)); err != nil {
		return nil, fmt.Errorf("resolve by phone: %w", err)
	} else if lead != nil {
		return &Match{Lead: lead, Kind: models.MatchPhone}, nil
	}

	if email := strings.TrimSpace(in.Field("email")); validation.IsEmail(email) {
		lead, err := found(f.FindLeadByEmail(ctx, email))
		if err != nil {
			return nil, fmt.Errorf("resolve by email: %w", err)
		}
		if lead != nil {
			return &Match{Lead: lead, Kind: models.MatchEmail}, nil
		}
	}

	return nil, nil
}

func resolvePhone(ctx context.Context, f Finder, raw string) (*models.Lead, error) {
	raw = strings.TrimSpace(raw)
	digits, ok := NormalizePhone(raw)
	if !ok {
		return nil, nil
	}

	if lead, err := found(f.FindLeadByPhone(ctx, raw)); lead != nil || err != nil {
		return lead, err
	}
	if lead, err := found(f.FindLeadByNormalizedPhone(ctx, digits)); lead != nil || err != nil {
		return lead, err
	}
	if suffix := phoneSuffix(digits); suffix != "" {
		return found(f.FindLeadByPhoneSuffix(ctx, suffix))
	}
	return nil, nil
}

// found turns ErrNotFound into a nil lead.
func found(lead *models.Lead, err error) (*models.Lead, error) {
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	return lead, err
}
