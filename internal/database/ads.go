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

	"github.com/tomtom215/adsync/internal/models"
)

// UpsertCampaign inserts or updates a campaign keyed by its external id and
// bumps last_synced. c.LastSynced is set to the written value.
func (db *DB) UpsertCampaign(ctx context.Context, c *models.Campaign) (models.UpsertAction, error) {
	var action models.UpsertAction
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		now := db.now()
		exists, err := rowExists(ctx, tx, `SELECT 1 FROM campaigns WHERE external_id = ?`, c.ExternalID)
		if err != nil {
			return err
		}

		if exists {
			_, err = tx.ExecContext(ctx, `UPDATE campaigns SET
				account_id = ?, page_id = ?, name = ?, objective = ?, status = ?,
				daily_budget = ?, lifetime_budget = ?, budget_remaining = ?,
				start_time = ?, stop_time = ?, last_synced = ?
				WHERE external_id = ?`,
				nullString(c.AccountID), nullString(c.PageID), c.Name, nullString(c.Objective), string(c.Status),
				nullFloat(c.DailyBudget), nullFloat(c.LifetimeBudget), nullFloat(c.BudgetRemaining),
				nullTime(c.StartTime), nullTime(c.StopTime), now,
				c.ExternalID)
			action = models.ActionUpdated
		} else {
			_, err = tx.ExecContext(ctx, `INSERT INTO campaigns (
				external_id, account_id, page_id, name, objective, status,
				daily_budget, lifetime_budget, budget_remaining,
				start_time, stop_time, created_at, last_synced
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				c.ExternalID, nullString(c.AccountID), nullString(c.PageID), c.Name, nullString(c.Objective), string(c.Status),
				nullFloat(c.DailyBudget), nullFloat(c.LifetimeBudget), nullFloat(c.BudgetRemaining),
				nullTime(c.StartTime), nullTime(c.StopTime), now, now)
			action = models.ActionCreated
		}
		if err != nil {
			return fmt.Errorf("failed to write campaign %s: %w", c.ExternalID, err)
		}
		c.LastSynced = now
		return nil
	})
	return action, err
}

// UpsertAdSet writes an ad set. The parent campaign must already exist,
// otherwise ErrMissingParent is returned and nothing is written.
func (db *DB) UpsertAdSet(ctx context.Context, a *models.AdSet) (models.UpsertAction, error) {
	var action models.UpsertAction
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		parent, err := rowExists(ctx, tx, `SELECT 1 FROM campaigns WHERE external_id = ?`, a.CampaignExternalID)
		if err != nil {
			return err
		}
		if !parent {
			return fmt.Errorf("ad set %s references campaign %s: %w", a.ExternalID, a.CampaignExternalID, ErrMissingParent)
		}

		now := db.now()
		exists, err := rowExists(ctx, tx, `SELECT 1 FROM ad_sets WHERE external_id = ?`, a.ExternalID)
		if err != nil {
			return err
		}

		if exists {
			_, err = tx.ExecContext(ctx, `UPDATE ad_sets SET
				campaign_external_id = ?, name = ?, status = ?,
				daily_budget = ?, lifetime_budget = ?, budget_remaining = ?, bid_amount = ?,
				billing_event = ?, optimization_goal = ?, start_time = ?, end_time = ?, last_synced = ?
				WHERE external_id = ?`,
				a.CampaignExternalID, a.Name, string(a.Status),
				nullFloat(a.DailyBudget), nullFloat(a.LifetimeBudget), nullFloat(a.BudgetRemaining), nullFloat(a.BidAmount),
				nullString(a.BillingEvent), nullString(a.OptimizationGoal), nullTime(a.StartTime), nullTime(a.EndTime), now,
				a.ExternalID)
			action = models.ActionUpdated
		} else {
			_, err = tx.ExecContext(ctx, `INSERT INTO ad_sets (
				external_id, campaign_external_id, name, status,
				daily_budget, lifetime_budget, budget_remaining, bid_amount,
				billing_event, optimization_goal, start_time, end_time, created_at, last_synced
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				a.ExternalID, a.CampaignExternalID, a.Name, string(a.Status),
				nullFloat(a.DailyBudget), nullFloat(a.LifetimeBudget), nullFloat(a.BudgetRemaining), nullFloat(a.BidAmount),
				nullString(a.BillingEvent), nullString(a.OptimizationGoal), nullTime(a.StartTime), nullTime(a.EndTime), now, now)
			action = models.ActionCreated
		}
		if err != nil {
			return fmt.Errorf("failed to write ad set %s: %w", a.ExternalID, err)
		}
		a.LastSynced = now
		return nil
	})
	return action, err
}

// UpsertAd writes an ad. Its ad set must already exist. When the payload did
// not carry a campaign id, it is taken from the ad set.
func (db *DB) UpsertAd(ctx context.Context, ad *models.Ad) (models.UpsertAction, error) {
	var action models.UpsertAction
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var parentCampaign string
		err := tx.QueryRowContext(ctx, `SELECT campaign_external_id FROM ad_sets WHERE external_id = ?`,
			ad.AdSetExternalID).Scan(&parentCampaign)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("ad %s references ad set %s: %w", ad.ExternalID, ad.AdSetExternalID, ErrMissingParent)
		}
		if err != nil {
			return fmt.Errorf("failed to look up ad set %s: %w", ad.AdSetExternalID, err)
		}
		if ad.CampaignExternalID == "" {
			ad.CampaignExternalID = parentCampaign
		}

		now := db.now()
		exists, err := rowExists(ctx, tx, `SELECT 1 FROM ads WHERE external_id = ?`, ad.ExternalID)
		if err != nil {
			return err
		}

		if exists {
			_, err = tx.ExecContext(ctx, `UPDATE ads SET
				campaign_external_id = ?, adset_external_id = ?, name = ?, status = ?, creative_id = ?, last_synced = ?
				WHERE external_id = ?`,
				ad.CampaignExternalID, ad.AdSetExternalID, ad.Name, string(ad.Status), nullString(ad.CreativeID), now,
				ad.ExternalID)
			action = models.ActionUpdated
		} else {
			_, err = tx.ExecContext(ctx, `INSERT INTO ads (
				external_id, campaign_external_id, adset_external_id, name, status, creative_id, created_at, last_synced
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				ad.ExternalID, ad.CampaignExternalID, ad.AdSetExternalID, ad.Name, string(ad.Status), nullString(ad.CreativeID), now, now)
			action = models.ActionCreated
		}
		if err != nil {
			return fmt.Errorf("failed to write ad %s: %w", ad.ExternalID, err)
		}
		ad.LastSynced = now
		return nil
	})
	return action, err
}

// CampaignExists reports whether a campaign has been synced locally.
func (db *DB) CampaignExists(ctx context.Context, externalID string) (bool, error) {
	return rowExists(ctx, db.conn, `SELECT 1 FROM campaigns WHERE external_id = ?`, externalID)
}

// AdSetExists reports whether an ad set has been synced locally.
func (db *DB) AdSetExists(ctx context.Context, externalID string) (bool, error) {
	return rowExists(ctx, db.conn, `SELECT 1 FROM ad_sets WHERE external_id = ?`, externalID)
}

// GetCampaign loads one campaign, or ErrNotFound.
func (db *DB) GetCampaign(ctx context.Context, externalID string) (*models.Campaign, error) {
	var (
		c                            models.Campaign
		accountID, pageID, objective sql.NullString
		status                       string
		daily, lifetime, remaining   sql.NullFloat64
		start, stop                  sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx, `SELECT external_id, account_id, page_id, name, objective, status,
		daily_budget, lifetime_budget, budget_remaining, start_time, stop_time, last_synced
		FROM campaigns WHERE external_id = ?`, externalID).Scan(
		&c.ExternalID, &accountID, &pageID, &c.Name, &objective, &status,
		&daily, &lifetime, &remaining, &start, &stop, &c.LastSynced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("campaign %s: %w", externalID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign %s: %w", externalID, err)
	}
	c.AccountID, c.PageID, c.Objective = accountID.String, pageID.String, objective.String
	c.Status = models.EntityStatus(status)
	c.DailyBudget, c.LifetimeBudget, c.BudgetRemaining = floatPtr(daily), floatPtr(lifetime), floatPtr(remaining)
	c.StartTime, c.StopTime = timePtr(start), timePtr(stop)
	return &c, nil
}

// GetAdSet loads one ad set, or ErrNotFound.
func (db *DB) GetAdSet(ctx context.Context, externalID string) (*models.AdSet, error) {
	var (
		a                               models.AdSet
		status                          string
		daily, lifetime, remaining, bid sql.NullFloat64
		billing, goal                   sql.NullString
		start, end                      sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx, `SELECT external_id, campaign_external_id, name, status,
		daily_budget, lifetime_budget, budget_remaining, bid_amount, billing_event, optimization_goal,
		start_time, end_time, last_synced
		FROM ad_sets WHERE external_id = ?`, externalID).Scan(
		&a.ExternalID, &a.CampaignExternalID, &a.Name, &status,
		&daily, &lifetime, &remaining, &bid, &billing, &goal,
		&start, &end, &a.LastSynced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ad set %s: %w", externalID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ad set %s: %w", externalID, err)
	}
	a.Status = models.EntityStatus(status)
	a.DailyBudget, a.LifetimeBudget, a.BudgetRemaining, a.BidAmount = floatPtr(daily), floatPtr(lifetime), floatPtr(remaining), floatPtr(bid)
	a.BillingEvent, a.OptimizationGoal = billing.String, goal.String
	a.StartTime, a.EndTime = timePtr(start), timePtr(end)
	return &a, nil
}

// GetAd loads one ad, or ErrNotFound.
func (db *DB) GetAd(ctx context.Context, externalID string) (*models.Ad, error) {
	var (
		ad       models.Ad
		status   string
		creative sql.NullString
	)
	err := db.conn.QueryRowContext(ctx, `SELECT external_id, campaign_external_id, adset_external_id, name, status, creative_id, last_synced
		FROM ads WHERE external_id = ?`, externalID).Scan(
		&ad.ExternalID, &ad.CampaignExternalID, &ad.AdSetExternalID, &ad.Name, &status, &creative, &ad.LastSynced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ad %s: %w", externalID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ad %s: %w", externalID, err)
	}
	ad.Status = models.EntityStatus(status)
	ad.CreativeID = creative.String
	return &ad, nil
}

// Stats counts the rows of each synced table.
type Stats struct {
	Campaigns int       `json:"campaigns"`
	AdSets    int       `json:"ad_sets"`
	Ads       int       `json:"ads"`
	Leads     int       `json:"leads"`
	LastSync  time.Time `json:"last_sync,omitempty"`
}

// GetStats returns row counts and the most recent last_synced across the hierarchy.
func (db *DB) GetStats(ctx context.Context) (Stats, error) {
	var (
		s    Stats
		last sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM campaigns),
		(SELECT COUNT(*) FROM ad_sets),
		(SELECT COUNT(*) FROM ads),
		(SELECT COUNT(*) FROM leads),
		(SELECT MAX(last_synced) FROM campaigns)`).Scan(&s.Campaigns, &s.AdSets, &s.Ads, &s.Leads, &last)
	if err != nil {
		return s, fmt.Errorf("failed to query stats: %w", err)
	}
	if last.Valid {
		s.LastSync = last.Time
	}
	return s, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func rowExists(ctx context.Context, q queryer, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("existence check failed: %w", err)
	}
	return true, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}
