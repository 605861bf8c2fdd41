// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/tomtom215/adsync/internal/database"
	"github.com/tomtom215/adsync/internal/events"
	"github.com/tomtom215/adsync/internal/graph"
	"github.com/tomtom215/adsync/internal/models"
)

func runInline(t *testing.T, f *fixture) (*Report, error) {
	t.Helper()
	runner := NewInlineRunner(f.exec, f.clock, testSyncConfig())
	rep := newReport("run-1", runner.Name(), f.clock.Now())
	err := runner.Walk(context.Background(), testSession(f.src), pageStep("p1"), rep)
	rep.finish(f.clock.Now())
	return rep, err
}

func TestInlineRunner_WalksHierarchy(t *testing.T) {
	f := newFixture(t, false)

	rep, err := runInline(t, f)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if rep.Campaigns.Created != 2 || rep.AdSets.Created != 2 || rep.Ads.Created != 3 {
		t.Errorf("created = %d/%d/%d, want 2/2/3", rep.Campaigns.Created, rep.AdSets.Created, rep.Ads.Created)
	}
	if rep.ErrorCount() != 0 {
		t.Errorf("ErrorCount = %d, want 0", rep.ErrorCount())
	}
	if got := rep.Outcome(); got != OutcomeSuccess {
		t.Errorf("Outcome = %q, want %q", got, OutcomeSuccess)
	}

	want := []time.Duration{2 * time.Second, time.Second, 2 * time.Second, time.Second}
	if got := f.clock.Sleeps(); !reflect.DeepEqual(got, want) {
		t.Errorf("sleeps = %v, want %v", got, want)
	}

	stats, err := f.db.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Campaigns != 2 || stats.AdSets != 2 || stats.Ads != 3 {
		t.Errorf("stored = %+v", stats)
	}
}

func TestInlineRunner_SecondPassUpdates(t *testing.T) {
	f := newFixture(t, false)

	if _, err := runInline(t, f); err != nil {
		t.Fatalf("first Walk: %v", err)
	}
	rep, err := runInline(t, f)
	if err != nil {
		t.Fatalf("second Walk: %v", err)
	}
	created, updated := rep.Totals()
	if created != 0 || updated != 7 {
		t.Errorf("Totals = %d created, %d updated, want 0, 7", created, updated)
	}
}

func TestInlineRunner_ThrottleCoolsDownAndContinues(t *testing.T) {
	f := newFixture(t, false)
	f.src.setErr("adsets:c1", fmt.Errorf("list ad sets: %w", graph.ErrThrottled))

	rep, err := runInline(t, f)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	want := []time.Duration{2 * time.Second, 15 * time.Minute, 2 * time.Second, time.Second}
	if got := f.clock.Sleeps(); !reflect.DeepEqual(got, want) {
		t.Errorf("sleeps = %v, want %v", got, want)
	}
	if rep.Throttled != 1 {
		t.Errorf("Throttled = %d, want 1", rep.Throttled)
	}
	if len(rep.StepErrors) != 1 || rep.StepErrors[0].ID != "adsets:c1" {
		t.Errorf("StepErrors = %+v", rep.StepErrors)
	}
	if rep.AdSets.Created != 1 || rep.Ads.Created != 1 {
		t.Errorf("sibling not synced: ad sets %d, ads %d", rep.AdSets.Created, rep.Ads.Created)
	}
	if got := rep.Outcome(); got != OutcomePartial {
		t.Errorf("Outcome = %q, want %q", got, OutcomePartial)
	}
}

func TestInlineRunner_StepErrorDoesNotAbortSiblings(t *testing.T) {
	f := newFixture(t, false)
	f.src.setErr("adsets:c1", errors.New("boom"))

	rep, err := runInline(t, f)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := []time.Duration{2 * time.Second, 2 * time.Second, time.Second}
	if got := f.clock.Sleeps(); !reflect.DeepEqual(got, want) {
		t.Errorf("sleeps = %v, want %v (no cooldown)", got, want)
	}
	if rep.Throttled != 0 {
		t.Errorf("Throttled = %d, want 0", rep.Throttled)
	}
	if f.src.callCount("adsets:c2") != 1 {
		t.Error("c2 ad sets were not fetched")
	}
}

func TestInlineRunner_InvalidCredentialsAborts(t *testing.T) {
	f := newFixture(t, false)
	f.src.setErr("campaigns:act_1", fmt.Errorf("list campaigns: %w", graph.ErrInvalidCredentials))

	rep, err := runInline(t, f)
	if !errors.Is(err, graph.ErrInvalidCredentials) {
		t.Fatalf("Walk error = %v, want ErrInvalidCredentials", err)
	}
	if len(rep.StepErrors) != 1 {
		t.Errorf("StepErrors = %+v", rep.StepErrors)
	}
	if rep.Outcome() != OutcomeFailed {
		t.Errorf("Outcome = %q, want %q", rep.Outcome(), OutcomeFailed)
	}
}

func TestInlineRunner_CanceledContext(t *testing.T) {
	f := newFixture(t, false)
	runner := NewInlineRunner(f.exec, f.clock, testSyncConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := newReport("run-1", runner.Name(), f.clock.Now())
	if err := runner.Walk(ctx, testSession(f.src), pageStep("p1"), rep); !errors.Is(err, context.Canceled) {
		t.Fatalf("Walk error = %v, want context.Canceled", err)
	}
	if f.src.callCount("accounts:p1") != 0 {
		t.Error("walk fetched after cancellation")
	}
}

func TestInlineRunner_SyncsLeadForms(t *testing.T) {
	f := newFixture(t, true)
	f.src.forms["p1"] = []graph.LeadForm{{ID: "f1", Name: "Spring Form"}}
	f.src.leads["f1"] = []graph.LeadPayload{
		{
			ID:          "L1",
			CreatedTime: "2026-05-30T10:00:00+0000",
			FieldData: []models.FieldValue{
				field("full_name", "Ada Lovelace"),
				field("email", "ada@example.com"),
				field("phone_number", "+1 (234) 567-8901"),
			},
		},
		{
			ID:          "L2",
			CreatedTime: "2026-05-30T11:00:00+0000",
			FieldData: []models.FieldValue{
				field("full_name", "Grace Hopper"),
				field("email", "grace@example.com"),
			},
		},
	}

	rep, err := runInline(t, f)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if got := rep.Leads.Actions[models.LeadCreated]; got != 2 {
		t.Errorf("created leads = %d, want 2 (actions %v, errors %v)", got, rep.Leads.Actions, rep.Leads.Errors)
	}
	n, err := f.db.CountLeads(context.Background())
	if err != nil {
		t.Fatalf("CountLeads: %v", err)
	}
	if n != 2 {
		t.Errorf("stored leads = %d, want 2", n)
	}
}

func leadActionCount(rep *Report) int {
	n := 0
	for _, c := range rep.Leads.Actions {
		n += c
	}
	return n
}

func TestInlineRunner_UnchangedResyncProcessesNoLeads(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.src.forms["p1"] = []graph.LeadForm{{ID: "f1", Name: "Spring Form"}}
	f.src.leads["f1"] = []graph.LeadPayload{
		{ID: "L2", CreatedTime: "2026-05-30T11:00:00+0000", FieldData: []models.FieldValue{field("email", "grace@example.com")}},
		{ID: "L1", CreatedTime: "2026-05-30T10:00:00+0000", FieldData: []models.FieldValue{field("email", "ada@example.com")}},
	}

	rep, err := runInline(t, f)
	if err != nil {
		t.Fatalf("first Walk: %v", err)
	}
	if got := rep.Leads.Actions[models.LeadCreated]; got != 2 {
		t.Fatalf("first sync created %d leads, want 2", got)
	}

	err = f.db.InLeadTx(ctx, func(tx *database.LeadTx) error {
		lead, err := tx.FindLeadByExternalID(ctx, "L1")
		if err != nil {
			return err
		}
		lead.Status = models.InquiryQualified
		return tx.UpdateLead(ctx, lead)
	})
	if err != nil {
		t.Fatalf("qualify L1: %v", err)
	}
	f.recorder.Reset()

	for run := 2; run <= 3; run++ {
		rep, err := runInline(t, f)
		if err != nil {
			t.Fatalf("Walk %d: %v", run, err)
		}
		if n := leadActionCount(rep); n != 0 {
			t.Errorf("run %d: lead actions %v, want none", run, rep.Leads.Actions)
		}
	}
	if evs := f.recorder.Topic(events.TopicLeadProcessed); len(evs) != 0 {
		t.Errorf("unchanged re-syncs emitted %d lead-processed events, want 0", len(evs))
	}
	since := f.src.leadsSince[len(f.src.leadsSince)-1]
	if want := time.Date(2026, 5, 30, 11, 0, 0, 0, time.UTC); !since.Equal(want) {
		t.Errorf("re-sync asked for leads since %v, want %v", since, want)
	}

	f.src.leads["f1"] = append(f.src.leads["f1"],
		graph.LeadPayload{ID: "L3", CreatedTime: "2026-05-30T11:00:00+0000", FieldData: []models.FieldValue{field("email", "alan@example.com")}},
		graph.LeadPayload{ID: "L4", CreatedTime: "2026-05-30T12:00:00+0000", FieldData: []models.FieldValue{field("email", "edsger@example.com")}},
	)
	rep, err = runInline(t, f)
	if err != nil {
		t.Fatalf("Walk after new submissions: %v", err)
	}
	if got := rep.Leads.Actions[models.LeadCreated]; got != 2 || leadActionCount(rep) != 2 {
		t.Errorf("new submissions: actions %v, want created:2", rep.Leads.Actions)
	}
}

func TestCommittedPrefix(t *testing.T) {
	t.Parallel()

	batch := []models.InboundLead{{ExternalID: "L1"}, {ExternalID: "L2"}, {ExternalID: "L3"}}
	tests := []struct {
		name string
		errs []models.ItemError
		want int
	}{
		{"all committed", nil, 3},
		{"middle failed", []models.ItemError{{ID: "L2"}}, 1},
		{"first failed", []models.ItemError{{ID: "L1"}, {ID: "L3"}}, 0},
		{"unknown id", []models.ItemError{{ID: "L9"}}, 3},
	}
	for _, tt := range tests {
		if got := committedPrefix(batch, tt.errs); len(got) != tt.want {
			t.Errorf("%s: committed %d, want %d", tt.name, len(got), tt.want)
		}
	}
}

func TestInlineRunner_MalformedBudgetSkipsOnlyThatCampaign(t *testing.T) {
	f := newFixture(t, false)
	f.src.campaigns["act_1"][1].DailyBudget = graph.Amount{Raw: "12.50"}

	rep, err := runInline(t, f)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if rep.Campaigns.Created != 1 || len(rep.Campaigns.Errors) != 1 || rep.Campaigns.Errors[0].ID != "c2" {
		t.Errorf("campaigns = %+v, want c1 created and c2 rejected", rep.Campaigns)
	}
	if rep.AdSets.Created != 1 || rep.Ads.Created != 2 {
		t.Errorf("ad sets/ads created = %d/%d, want 1/2 under c1", rep.AdSets.Created, rep.Ads.Created)
	}
	if n := f.src.callCount("adsets:c2"); n != 0 {
		t.Errorf("ad sets of the rejected campaign listed %d times", n)
	}
}

func TestInlineRunner_LeadStepsDisabled(t *testing.T) {
	f := newFixture(t, false)
	f.src.forms["p1"] = []graph.LeadForm{{ID: "f1", Name: "Spring Form"}}

	if _, err := runInline(t, f); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if f.src.callCount("forms:p1") != 0 {
		t.Error("lead forms listed although lead sync is disabled")
	}
}

func TestExecutor_AdsUnderCampaign(t *testing.T) {
	f := newFixture(t, false)
	if _, err := runInline(t, f); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	f.src.ads["c1"] = []graph.AdPayload{{ID: "a9", AdSetID: "s1", CampaignID: "c1", Name: "Ad 9"}}
	rep := newReport("run-2", StrategyInline, f.clock.Now())
	step := Step{Kind: StepAds, Target: "c1", PageID: "p1", Parent: models.KindCampaign}
	res, err := f.exec.Execute(context.Background(), f.src, step, rep)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Batch.Created != 1 {
		t.Errorf("Batch = %+v, want one created ad", res.Batch)
	}

	step.Target = "c404"
	if _, err := f.exec.Execute(context.Background(), f.src, step, rep); !errors.Is(err, ErrDependencyNotReady) {
		t.Errorf("unknown campaign: err = %v, want ErrDependencyNotReady", err)
	}
}
