// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package leads

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tomtom215/adsync/internal/config"
	"github.com/tomtom215/adsync/internal/database"
	"github.com/tomtom215/adsync/internal/events"
	"github.com/tomtom215/adsync/internal/models"
)

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

var testNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func newTestProcessor(t *testing.T) (*Processor, *database.DB, *events.Recorder) {
	t.Helper()
	db := setupTestDB(t)
	db.SetClockForTesting(func() time.Time { return testNow })
	rec := &events.Recorder{}
	return NewProcessor(db, NewEngine(""), rec), db, rec
}

func seedLead(t *testing.T, db *database.DB, l *models.Lead) *models.Lead {
	t.Helper()
	err := db.InLeadTx(context.Background(), func(tx *database.LeadTx) error {
		return tx.InsertLead(context.Background(), l)
	})
	if err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	return l
}

func inbound(externalID string, pairs ...string) models.InboundLead {
	return models.InboundLead{
		ExternalID:     externalID,
		FormExternalID: "form-1",
		FormName:       "Spring Form",
		AdExternalID:   "ad-1",
		Fields:         fields(pairs...),
	}
}

func countLeads(t *testing.T, db *database.DB) int {
	t.Helper()
	n, err := db.CountLeads(context.Background())
	if err != nil {
		t.Fatalf("CountLeads: %v", err)
	}
	return n
}

func TestProcess_CreatesNewLead(t *testing.T) {
	p, db, rec := newTestProcessor(t)
	ctx := context.Background()

	in := inbound("L1",
		"full_name", "Ada Lovelace",
		"email", "ada@example.com",
		"phone_number", "+1 (234) 567-8901",
	)
	in.CreatedTime = testNow.Add(-time.Hour)

	out, err := p.Process(ctx, in)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Action != models.LeadCreated {
		t.Fatalf("action = %q, want created", out.Action)
	}

	lead, err := db.GetLead(ctx, out.LeadID)
	if err != nil {
		t.Fatalf("GetLead: %v", err)
	}
	if lead.ExternalID != "L1" || lead.FormName != "Spring Form" || lead.AdExternalID != "ad-1" {
		t.Errorf("remote ids not stored: %+v", lead)
	}
	if lead.PhoneNormalized != "2345678901" {
		t.Errorf("phone_normalized = %q", lead.PhoneNormalized)
	}
	if lead.Status != models.InquiryNew {
		t.Errorf("status = %q", lead.Status)
	}
	if !lead.Tags.Has(models.TagFacebookLead) || lead.Tags.Has(models.TagOrganic) {
		t.Errorf("tags = %+v", lead.Tags)
	}
	if lead.Score != 60 {
		t.Errorf("score = %d, want 60", lead.Score)
	}
	if lead.LeadSourceID == nil {
		t.Error("lead source not attached")
	}
	if !lead.CreatedAt.Equal(in.CreatedTime) {
		t.Errorf("created_at = %v, want remote created time %v", lead.CreatedAt, in.CreatedTime)
	}

	got := rec.Topic(events.TopicLeadProcessed)
	if len(got) != 1 {
		t.Fatalf("lead processed events = %d, want 1", len(got))
	}
	ev := got[0].(events.LeadProcessed)
	if ev.Action != models.LeadCreated || ev.ExternalLeadID != "L1" || ev.LeadID != out.LeadID.String() {
		t.Errorf("event = %+v", ev)
	}
}

func TestProcess_OrganicLeadTagged(t *testing.T) {
	p, db, _ := newTestProcessor(t)
	ctx := context.Background()

	in := inbound("L-org", "full_name", "Organic Person")
	in.IsOrganic = true

	out, err := p.Process(ctx, in)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	lead, err := db.GetLead(ctx, out.LeadID)
	if err != nil {
		t.Fatalf("GetLead: %v", err)
	}
	if !lead.IsOrganic || !lead.Tags.Has(models.TagOrganic) {
		t.Errorf("organic lead: is_organic=%v tags=%+v", lead.IsOrganic, lead.Tags)
	}
	if lead.Score != 15 {
		t.Errorf("score = %d, want 15", lead.Score)
	}
}

func TestProcess_ResubmittedWorkedLeadMarkedContactedAgain(t *testing.T) {
	p, db, rec := newTestProcessor(t)
	ctx := context.Background()

	existing := seedLead(t, db, &models.Lead{
		ExternalID:     "L1",
		Name:           "Ada",
		Status:         models.InquiryQualified,
		LastActivityAt: testNow.Add(-48 * time.Hour),
	})

	out, err := p.Process(ctx, inbound("L1", "full_name", "Ada Lovelace"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Action != models.LeadMarkedContactedAgain || out.LeadID != existing.ID {
		t.Fatalf("outcome = %+v", out)
	}
	if n := countLeads(t, db); n != 1 {
		t.Errorf("lead count = %d, want 1", n)
	}

	lead, err := db.GetLead(ctx, existing.ID)
	if err != nil {
		t.Fatalf("GetLead: %v", err)
	}
	if !lead.Tags.Has(models.TagContactedAgain) {
		t.Errorf("tags = %+v", lead.Tags)
	}
	if !lead.LastActivityAt.Equal(testNow) {
		t.Errorf("last_activity_at = %v, want %v", lead.LastActivityAt, testNow)
	}
	if lead.Name != "Ada" {
		t.Errorf("name overwritten: %q", lead.Name)
	}
	if len(rec.Topic(events.TopicLeadProcessed)) != 1 {
		t.Error("expected one lead processed event")
	}
}

func TestProcess_ResubmittedNewLeadSkipped(t *testing.T) {
	p, db, rec := newTestProcessor(t)
	ctx := context.Background()

	before := testNow.Add(-48 * time.Hour)
	existing := seedLead(t, db, &models.Lead{
		ExternalID:     "L2",
		Name:           "Bob",
		Status:         models.InquiryNew,
		LastActivityAt: before,
	})

	out, err := p.Process(ctx, inbound("L2", "full_name", "Bob"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Action != models.LeadDuplicateSkipped {
		t.Fatalf("action = %q, want duplicate_skipped", out.Action)
	}

	lead, err := db.GetLead(ctx, existing.ID)
	if err != nil {
		t.Fatalf("GetLead: %v", err)
	}
	if !lead.LastActivityAt.Equal(before) || len(lead.Tags) != 0 {
		t.Errorf("skipped lead was modified: %+v", lead)
	}
	if evs := rec.Events(); len(evs) != 0 {
		t.Errorf("duplicate_skipped must not emit, got %d events", len(evs))
	}
}

func TestProcess_PhoneMatchMergesIntoExisting(t *testing.T) {
	p, db, _ := newTestProcessor(t)
	ctx := context.Background()

	existing := seedLead(t, db, &models.Lead{
		Name:            "Walk-in Customer",
		Phone:           "2345678901",
		PhoneNormalized: "2345678901",
		Status:          models.InquiryNew,
	})

	out, err := p.Process(ctx, inbound("L3",
		"full_name", "Someone Else",
		"phone_number", "+1 (234) 567-8901",
	))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Action != models.LeadMergedWithExisting || out.MatchKind != models.MatchPhone {
		t.Fatalf("outcome = %+v", out)
	}
	if n := countLeads(t, db); n != 1 {
		t.Errorf("lead count = %d, want 1", n)
	}

	lead, err := db.GetLead(ctx, existing.ID)
	if err != nil {
		t.Fatalf("GetLead: %v", err)
	}
	if lead.ExternalID != "L3" || lead.FormExternalID != "form-1" {
		t.Errorf("remote ids not attached: %+v", lead)
	}
	if lead.Name != "Walk-in Customer" {
		t.Errorf("name overwritten: %q", lead.Name)
	}
	if !lead.Tags.Has(models.TagMultiChannel) || !lead.Tags.Has(models.TagFacebookLead) {
		t.Errorf("tags = %+v", lead.Tags)
	}
	if lead.Tags.Has(models.TagContactedAgain) {
		t.Error("new lead must not be tagged contacted again")
	}
}

func TestProcess_MergeKeepsExistingRemoteIDs(t *testing.T) {
	p, db, _ := newTestProcessor(t)
	ctx := context.Background()

	existing := seedLead(t, db, &models.Lead{
		ExternalID: "L-old",
		Name:       "Carol",
		Email:      "carol@example.com",
		Status:     models.InquiryContacted,
	})

	out, err := p.Process(ctx, inbound("L-new", "email", "Carol@Example.com"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Action != models.LeadMergedWithExisting || out.MatchKind != models.MatchEmail {
		t.Fatalf("outcome = %+v", out)
	}

	lead, err := db.GetLead(ctx, existing.ID)
	if err != nil {
		t.Fatalf("GetLead: %v", err)
	}
	if lead.ExternalID != "L-old" {
		t.Errorf("external id replaced: %q", lead.ExternalID)
	}
	if !lead.Tags.Has(models.TagContactedAgain) {
		t.Errorf("worked lead should be tagged contacted again: %+v", lead.Tags)
	}
}

func TestResolve_PhoneVariants(t *testing.T) {
	_, db, _ := newTestProcessor(t)
	ctx := context.Background()

	exact := seedLead(t, db, &models.Lead{Name: "Exact", Phone: "0300-1112223"})
	suffix := seedLead(t, db, &models.Lead{Name: "Suffix", Phone: "0092 321 4445556", PhoneNormalized: "00923214445556"})

	tests := []struct {
		name  string
		phone string
		want  *models.Lead
	}{
		{"exact string", "0300-1112223", exact},
		{"trailing ten digits", "+92 321 4445556", suffix},
	}
	for _, tt := range tests {
		var match *Match
		err := db.InLeadTx(ctx, func(tx *database.LeadTx) error {
			in := inbound("", "phone", tt.phone)
			var err error
			match, err = Resolve(ctx, tx, &in)
			return err
		})
		if err != nil {
			t.Fatalf("%s: Resolve failed: %v", tt.name, err)
		}
		if match == nil || match.Lead.ID != tt.want.ID || match.Kind != models.MatchPhone {
			t.Errorf("%s: match = %+v, want lead %s", tt.name, match, tt.want.ID)
		}
	}
}

func resolveIn(t *testing.T, db *database.DB, in models.InboundLead) *Match {
	t.Helper()
	ctx := context.Background()
	var match *Match
	err := db.InLeadTx(ctx, func(tx *database.LeadTx) error {
		var err error
		match, err = Resolve(ctx, tx, &in)
		return err
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	return match
}

func TestResolve_PhoneFormsMatchEachOther(t *testing.T) {
	forms := []string{"+1 (234) 567-8901", "12345678901", "2345678901"}

	for i, stored := range forms {
		t.Run(stored, func(t *testing.T) {
			p, db, _ := newTestProcessor(t)

			created, err := p.Process(context.Background(), inbound(fmt.Sprintf("L%d", i), "phone_number", stored))
			if err != nil || created.Action != models.LeadCreated {
				t.Fatalf("seed Process = %+v, %v", created, err)
			}

			for j, other := range forms {
				if j == i {
					continue
				}
				match := resolveIn(t, db, inbound("", "Mobile", other))
				if match == nil || match.Lead.ID != created.LeadID || match.Kind != models.MatchPhone {
					t.Errorf("%q vs stored %q: match = %+v, want phone match on %s", other, stored, match, created.LeadID)
				}
			}
		})
	}
}

func TestProcess_MultiValuePhoneStoresFirstAnswer(t *testing.T) {
	p, db, _ := newTestProcessor(t)
	ctx := context.Background()

	in := inbound("L1")
	in.Fields = []models.FieldValue{{Name: "phone_number", Values: []string{"+1 (234) 567-8901", "+44 20 7946 0958"}}}
	out, err := p.Process(ctx, in)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	lead, err := db.GetLead(ctx, out.LeadID)
	if err != nil {
		t.Fatalf("GetLead: %v", err)
	}
	if lead.Phone != "+1 (234) 567-8901" || lead.PhoneNormalized != "2345678901" {
		t.Errorf("phone = %q normalized = %q, want the first answer", lead.Phone, lead.PhoneNormalized)
	}
	if got := lead.CustomFields["phone_number"]; got != "+1 (234) 567-8901, +44 20 7946 0958" {
		t.Errorf("all answers custom field = %q", got)
	}

	match := resolveIn(t, db, inbound("", "phone", "2345678901"))
	if match == nil || match.Lead.ID != out.LeadID {
		t.Errorf("first answer does not resolve to the stored lead: %+v", match)
	}
}

func TestResolve_NoMatch(t *testing.T) {
	_, db, _ := newTestProcessor(t)
	ctx := context.Background()

	seedLead(t, db, &models.Lead{Name: "Other", Email: "other@example.com", PhoneNormalized: "9998887777"})

	err := db.InLeadTx(ctx, func(tx *database.LeadTx) error {
		in := inbound("L9", "email", "nobody@example.com", "phone", "123")
		match, err := Resolve(ctx, tx, &in)
		if match != nil {
			t.Errorf("unexpected match %+v", match)
		}
		return err
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
}

// flakyRunner fails the nth transaction and delegates the rest.
type flakyRunner struct {
	next  TxRunner
	failN int
	calls int
}

func (f *flakyRunner) InLeadTx(ctx context.Context, fn func(tx *database.LeadTx) error) error {
	f.calls++
	if f.calls == f.failN {
		return errors.New("connection reset")
	}
	return f.next.InLeadTx(ctx, fn)
}

func TestProcessBatch_ContinuesPastErrors(t *testing.T) {
	db := setupTestDB(t)
	rec := &events.Recorder{}
	p := NewProcessor(&flakyRunner{next: db, failN: 2}, NewEngine("Test Source"), rec)

	summary := p.ProcessBatch(context.Background(), []models.InboundLead{
		inbound("B1", "full_name", "One"),
		inbound("B2", "full_name", "Two"),
		inbound("B3", "full_name", "Three"),
	})

	if summary.Actions[models.LeadCreated] != 2 {
		t.Errorf("created = %d, want 2", summary.Actions[models.LeadCreated])
	}
	if len(summary.Errors) != 1 || summary.Errors[0].ID != "B2" {
		t.Fatalf("errors = %+v", summary.Errors)
	}
	if n := countLeads(t, db); n != 2 {
		t.Errorf("lead count = %d, want 2", n)
	}

	errs := rec.Topic(events.TopicErrorOccurred)
	if len(errs) != 1 {
		t.Fatalf("error events = %d, want 1", len(errs))
	}
	if ev := errs[0].(events.ErrorOccurred); ev.Type != "lead_processing" || ev.Severity != events.SeverityError {
		t.Errorf("error event = %+v", ev)
	}
	if len(rec.Topic(events.TopicLeadProcessed)) != 2 {
		t.Error("expected two lead processed events")
	}
}

func TestBatchSummary_Add(t *testing.T) {
	t.Parallel()

	var s BatchSummary
	s.Add(BatchSummary{Actions: map[models.LeadAction]int{models.LeadCreated: 2}})
	s.Add(BatchSummary{
		Actions: map[models.LeadAction]int{models.LeadCreated: 1, models.LeadDuplicateSkipped: 1},
		Errors:  []models.ItemError{{ID: "x"}},
	})
	if s.Actions[models.LeadCreated] != 3 || s.Actions[models.LeadDuplicateSkipped] != 1 || len(s.Errors) != 1 {
		t.Errorf("summary = %+v", s)
	}
}
