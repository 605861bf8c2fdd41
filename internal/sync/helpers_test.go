// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/adsync/internal/config"
	"github.com/tomtom215/adsync/internal/database"
	"github.com/tomtom215/adsync/internal/events"
	"github.com/tomtom215/adsync/internal/graph"
	"github.com/tomtom215/adsync/internal/kvstore"
	"github.com/tomtom215/adsync/internal/leads"
	"github.com/tomtom215/adsync/internal/models"
	"github.com/tomtom215/adsync/internal/ratelimit"
	"github.com/tomtom215/adsync/internal/upsert"
)

var testStart = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 2})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setupTestStore(t *testing.T) *kvstore.Store {
	t.Helper()
	store, err := kvstore.OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		InterCampaignDelay: 2 * time.Second,
		InterAdSetDelay:    time.Second,
		ThrottleCooldown:   15 * time.Minute,
		LockTTL:            5 * time.Minute,
	}
}

// fakeSource serves a fixed hierarchy and counts calls per method.
type fakeSource struct {
	mu sync.Mutex

	pages     []graph.Page
	accounts  map[string][]graph.AdAccount
	campaigns map[string][]graph.CampaignPayload
	adSets    map[string][]graph.AdSetPayload
	ads       map[string][]graph.AdPayload
	forms     map[string][]graph.LeadForm
	leads     map[string][]graph.LeadPayload

	// errs fails a call, keyed "method:id".
	errs  map[string]error
	calls map[string]int

	// leadsSince records the since argument of every ListLeads call.
	leadsSince []time.Time

	// onListAdSets runs before ListAdSets answers.
	onListAdSets func(campaignID string)
}

// newFakeSource returns page p1 with account act_1, campaigns c1 and c2,
// ad sets s1 (c1) and s2 (c2), and ads a1, a2 (s1) and a3 (s2).
func newFakeSource() *fakeSource {
	return &fakeSource{
		pages:    []graph.Page{{ID: "p1", Name: "Main Page"}},
		accounts: map[string][]graph.AdAccount{"p1": {{ID: "act_1", AccountID: "1"}}},
		campaigns: map[string][]graph.CampaignPayload{"act_1": {
			{ID: "c1", AccountID: "1", Name: "Spring", Status: "ACTIVE"},
			{ID: "c2", AccountID: "1", Name: "Summer", Status: "PAUSED"},
		}},
		adSets: map[string][]graph.AdSetPayload{
			"c1": {{ID: "s1", CampaignID: "c1", Name: "Set 1", Status: "ACTIVE"}},
			"c2": {{ID: "s2", CampaignID: "c2", Name: "Set 2", Status: "ACTIVE"}},
		},
		ads: map[string][]graph.AdPayload{
			"s1": {
				{ID: "a1", AdSetID: "s1", CampaignID: "c1", Name: "Ad 1", Status: "ACTIVE"},
				{ID: "a2", AdSetID: "s1", CampaignID: "c1", Name: "Ad 2", Status: "ACTIVE"},
			},
			"s2": {{ID: "a3", AdSetID: "s2", CampaignID: "c2", Name: "Ad 3", Status: "ACTIVE"}},
		},
		forms: map[string][]graph.LeadForm{},
		leads: map[string][]graph.LeadPayload{},
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

func (f *fakeSource) record(method, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method+":"+id]++
	return f.errs[method+":"+id]
}

func (f *fakeSource) setErr(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[key] = err
}

func (f *fakeSource) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeSource) ListPages(_ context.Context) ([]graph.Page, error) {
	if err := f.record("pages", "me"); err != nil {
		return nil, err
	}
	return f.pages, nil
}

func (f *fakeSource) ListAdAccounts(_ context.Context, pageID string) ([]graph.AdAccount, error) {
	if err := f.record("accounts", pageID); err != nil {
		return nil, err
	}
	return f.accounts[pageID], nil
}

func (f *fakeSource) ListCampaigns(_ context.Context, accountID string) ([]graph.CampaignPayload, error) {
	if err := f.record("campaigns", accountID); err != nil {
		return nil, err
	}
	return f.campaigns[accountID], nil
}

func (f *fakeSource) ListAdSets(_ context.Context, campaignID string) ([]graph.AdSetPayload, error) {
	if f.onListAdSets != nil {
		f.onListAdSets(campaignID)
	}
	if err := f.record("adsets", campaignID); err != nil {
		return nil, err
	}
	return f.adSets[campaignID], nil
}

func (f *fakeSource) ListAds(_ context.Context, parentID string) ([]graph.AdPayload, error) {
	if err := f.record("ads", parentID); err != nil {
		return nil, err
	}
	return f.ads[parentID], nil
}

func (f *fakeSource) ListLeadForms(_ context.Context, pageID string) ([]graph.LeadForm, error) {
	if err := f.record("forms", pageID); err != nil {
		return nil, err
	}
	return f.forms[pageID], nil
}

// ListLeads applies the time_created filter the way the API does: only
// submissions in or after the second of since.
func (f *fakeSource) ListLeads(_ context.Context, formID string, since time.Time) ([]graph.LeadPayload, error) {
	if err := f.record("leads", formID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leadsSince = append(f.leadsSince, since)

	var out []graph.LeadPayload
	for _, p := range f.leads[formID] {
		created := graph.ParseTime(p.CreatedTime)
		if !since.IsZero() && created != nil && created.Unix() <= since.Unix()-1 {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func staticFactory(src Source) SourceFactory {
	return func(_, _ string) Source { return src }
}

func field(name, value string) models.FieldValue {
	return models.FieldValue{Name: name, Values: []string{value}}
}

type fixture struct {
	db       *database.DB
	store    *kvstore.Store
	clock    *ratelimit.FakeClock
	recorder *events.Recorder
	src      *fakeSource
	exec     *Executor
}

func newFixture(t *testing.T, withLeads bool) *fixture {
	t.Helper()

	db := setupTestDB(t)
	db.SetClockForTesting(func() time.Time { return testStart })
	rec := &events.Recorder{}

	var processor *leads.Processor
	if withLeads {
		processor = leads.NewProcessor(db, leads.NewEngine(""), rec)
	}
	return &fixture{
		db:       db,
		store:    setupTestStore(t),
		clock:    ratelimit.NewFakeClock(testStart),
		recorder: rec,
		src:      newFakeSource(),
		exec:     NewExecutor(upsert.New(db, rec), db, processor),
	}
}

func pageStep(id string) Step {
	return Step{Kind: StepPage, Target: id, PageID: id}
}

func testSession(src Source) *Session {
	return &Session{RunID: "run-1", Scope: CredentialScope(""), Source: src}
}
