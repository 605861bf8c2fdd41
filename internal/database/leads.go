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
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/adsync/internal/models"
)

const leadColumns = `id, external_id, form_external_id, form_name, ad_external_id, campaign_external_id,
	name, email, phone, phone_normalized, city, country, occupation, address, detail,
	inquiry_status, tags, custom_fields, budget_amount, budget_currency, budget_raw,
	score, lead_source_id, is_organic, last_activity_at, created_at, updated_at`

// LeadTx is one transaction over the lead tables. Identity resolution and
// the merge that follows run inside the same LeadTx so that a failure at any
// point leaves no partial write.
type LeadTx struct {
	tx  *sql.Tx
	now time.Time
}

// InLeadTx runs fn inside a transaction. fn may be invoked more than once if
// DuckDB reports a write conflict, so it must not have side effects outside
// the transaction.
func (db *DB) InLeadTx(ctx context.Context, fn func(tx *LeadTx) error) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&LeadTx{tx: tx, now: db.now()})
	})
}

// Now is the timestamp used for every write in this transaction.
func (t *LeadTx) Now() time.Time {
	return t.now
}

// FindLeadByExternalID returns the lead carrying the remote lead id.
func (t *LeadTx) FindLeadByExternalID(ctx context.Context, externalID string) (*models.Lead, error) {
	return t.findOne(ctx, `external_id = ?`, externalID)
}

// FindLeadByPhone matches the stored phone string exactly.
func (t *LeadTx) FindLeadByPhone(ctx context.Context, phone string) (*models.Lead, error) {
	return t.findOne(ctx, `phone = ?`, phone)
}

// FindLeadByNormalizedPhone matches the stored normalized digits.
func (t *LeadTx) FindLeadByNormalizedPhone(ctx context.Context, digits string) (*models.Lead, error) {
	return t.findOne(ctx, `phone_normalized = ?`, digits)
}

// FindLeadByPhoneSuffix matches on the trailing 10 normalized digits.
func (t *LeadTx) FindLeadByPhoneSuffix(ctx context.Context, last10 string) (*models.Lead, error) {
	return t.findOne(ctx, `length(phone_normalized) >= 10 AND right(phone_normalized, 10) = ?`, last10)
}

// FindLeadByEmail matches case-insensitively.
func (t *LeadTx) FindLeadByEmail(ctx context.Context, email string) (*models.Lead, error) {
	return t.findOne(ctx, `lower(email) = ?`, strings.ToLower(email))
}

// findOne returns the oldest lead satisfying where, or ErrNotFound.
func (t *LeadTx) findOne(ctx context.Context, where string, arg any) (*models.Lead, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE `+where+` ORDER BY created_at, id LIMIT 1`, arg)
	lead, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query lead: %w", err)
	}
	return lead, nil
}

// InsertLead writes a new lead. ID and timestamps are filled when empty.
func (t *LeadTx) InsertLead(ctx context.Context, l *models.Lead) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = t.now
	}
	if l.LastActivityAt.IsZero() {
		l.LastActivityAt = t.now
	}
	l.UpdatedAt = t.now
	if l.Status == "" {
		l.Status = models.InquiryNew
	}

	tags, custom, err := encodeLeadDocs(l)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(ctx, `INSERT INTO leads (`+leadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID.String(), nullString(l.ExternalID), nullString(l.FormExternalID), nullString(l.FormName),
		nullString(l.AdExternalID), nullString(l.CampaignExternalID),
		l.Name, nullString(l.Email), nullString(l.Phone), nullString(l.PhoneNormalized),
		nullString(l.City), nullString(l.Country), nullString(l.Occupation), nullString(l.Address), nullString(l.Detail),
		string(l.Status), tags, custom, nullFloat(l.BudgetAmount), nullString(l.BudgetCurrency), nullString(l.BudgetRaw),
		l.Score, nullUUID(l.LeadSourceID), l.IsOrganic, l.LastActivityAt, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert lead %s: %w", l.ID, err)
	}
	return nil
}

// UpdateLead rewrites every mutable column of an existing lead.
func (t *LeadTx) UpdateLead(ctx context.Context, l *models.Lead) error {
	l.UpdatedAt = t.now

	tags, custom, err := encodeLeadDocs(l)
	if err != nil {
		return err
	}

	res, err := t.tx.ExecContext(ctx, `UPDATE leads SET
		external_id = ?, form_external_id = ?, form_name = ?, ad_external_id = ?, campaign_external_id = ?,
		name = ?, email = ?, phone = ?, phone_normalized = ?, city = ?, country = ?,
		occupation = ?, address = ?, detail = ?, inquiry_status = ?, tags = ?, custom_fields = ?,
		budget_amount = ?, budget_currency = ?, budget_raw = ?, score = ?, lead_source_id = ?,
		is_organic = ?, last_activity_at = ?, updated_at = ?
		WHERE id = ?`,
		nullString(l.ExternalID), nullString(l.FormExternalID), nullString(l.FormName),
		nullString(l.AdExternalID), nullString(l.CampaignExternalID),
		l.Name, nullString(l.Email), nullString(l.Phone), nullString(l.PhoneNormalized),
		nullString(l.City), nullString(l.Country),
		nullString(l.Occupation), nullString(l.Address), nullString(l.Detail), string(l.Status), tags, custom,
		nullFloat(l.BudgetAmount), nullString(l.BudgetCurrency), nullString(l.BudgetRaw), l.Score, nullUUID(l.LeadSourceID),
		l.IsOrganic, l.LastActivityAt, l.UpdatedAt,
		l.ID.String())
	if err != nil {
		return fmt.Errorf("failed to update lead %s: %w", l.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("lead %s: %w", l.ID, ErrNotFound)
	}
	return nil
}

// GetOrCreateLeadSource returns the source with the given name, creating it
// on first use.
func (t *LeadTx) GetOrCreateLeadSource(ctx context.Context, name string) (*models.LeadSource, error) {
	var (
		src models.LeadSource
		id  string
	)
	err := t.tx.QueryRowContext(ctx, `SELECT id, name, created_at FROM lead_sources WHERE name = ?`, name).
		Scan(&id, &src.Name, &src.CreatedAt)
	switch {
	case err == nil:
		parsed, perr := uuid.Parse(id)
		if perr != nil {
			return nil, fmt.Errorf("lead source %q has invalid id %q: %w", name, id, perr)
		}
		src.ID = parsed
		return &src, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to query lead source %q: %w", name, err)
	}

	src = models.LeadSource{ID: uuid.New(), Name: name, CreatedAt: t.now}
	if _, err := t.tx.ExecContext(ctx, `INSERT INTO lead_sources (id, name, created_at) VALUES (?, ?, ?)`,
		src.ID.String(), src.Name, src.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to create lead source %q: %w", name, err)
	}
	return &src, nil
}

// GetLead loads a lead by local id, or ErrNotFound.
func (db *DB) GetLead(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id.String())
	lead, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lead %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lead %s: %w", id, err)
	}
	return lead, nil
}

// CountLeads returns the number of stored leads.
func (db *DB) CountLeads(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count leads: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*models.Lead, error) {
	var (
		l                                              models.Lead
		id, status, tags, custom                       string
		externalID, formID, formName, adID, campaignID sql.NullString
		email, phone, phoneNorm, city, country         sql.NullString
		occupation, address, detail                    sql.NullString
		budgetCurrency, budgetRaw, sourceID            sql.NullString
		budgetAmount                                   sql.NullFloat64
	)
	err := row.Scan(&id, &externalID, &formID, &formName, &adID, &campaignID,
		&l.Name, &email, &phone, &phoneNorm, &city, &country, &occupation, &address, &detail,
		&status, &tags, &custom, &budgetAmount, &budgetCurrency, &budgetRaw,
		&l.Score, &sourceID, &l.IsOrganic, &l.LastActivityAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if l.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid lead id %q: %w", id, err)
	}
	l.ExternalID, l.FormExternalID, l.FormName = externalID.String, formID.String, formName.String
	l.AdExternalID, l.CampaignExternalID = adID.String, campaignID.String
	l.Email, l.Phone, l.PhoneNormalized = email.String, phone.String, phoneNorm.String
	l.City, l.Country = city.String, country.String
	l.Occupation, l.Address, l.Detail = occupation.String, address.String, detail.String
	l.Status = models.InquiryStatus(status)
	l.BudgetAmount = floatPtr(budgetAmount)
	l.BudgetCurrency, l.BudgetRaw = budgetCurrency.String, budgetRaw.String

	if sourceID.Valid {
		sid, err := uuid.Parse(sourceID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid lead source id %q: %w", sourceID.String, err)
		}
		l.LeadSourceID = &sid
	}
	if err := json.Unmarshal([]byte(tags), &l.Tags); err != nil {
		return nil, fmt.Errorf("invalid tags on lead %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(custom), &l.CustomFields); err != nil {
		return nil, fmt.Errorf("invalid custom fields on lead %s: %w", id, err)
	}
	return &l, nil
}

func encodeLeadDocs(l *models.Lead) (tags, custom string, err error) {
	t := l.Tags
	if t == nil {
		t = models.Tags{}
	}
	tb, err := json.Marshal(t)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode tags: %w", err)
	}
	c := l.CustomFields
	if c == nil {
		c = map[string]string{}
	}
	cb, err := json.Marshal(c)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode custom fields: %w", err)
	}
	return string(tb), string(cb), nil
}

func nullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
