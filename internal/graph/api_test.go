// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestAPI_ListCampaignsFollowsCursor(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var afterSeen []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/act_42/campaigns") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "2" {
			t.Errorf("limit = %q, want 2", r.URL.Query().Get("limit"))
		}
		after := r.URL.Query().Get("after")
		afterSeen = append(afterSeen, after)

		switch after {
		case "":
			fmt.Fprint(w, `{"data":[
				{"id":"c1","account_id":"42","name":"One","status":"ACTIVE","daily_budget":"12345","start_time":"2026-03-01T10:00:00+0000"},
				{"id":"c2","account_id":"42","name":"Two","status":"PAUSED","lifetime_budget":5000}
			],"paging":{"cursors":{"before":"b1","after":"cur1"},"next":"https://example/next"}}`)
		case "cur1":
			fmt.Fprint(w, `{"data":[{"id":"c3","name":"Three","status":"ACTIVE","daily_budget":""}],
				"paging":{"cursors":{"before":"cur1","after":"cur2"}}}`)
		default:
			t.Errorf("unexpected cursor %q", after)
			fmt.Fprint(w, `{"data":[]}`)
		}
	})

	api := NewAPI(client, 2)
	campaigns, err := api.ListCampaigns(context.Background(), "act_42")
	if err != nil {
		t.Fatalf("ListCampaigns failed: %v", err)
	}
	if len(campaigns) != 3 {
		t.Fatalf("got %d campaigns, want 3", len(campaigns))
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if len(afterSeen) != 2 || afterSeen[1] != "cur1" {
		t.Errorf("cursors = %v", afterSeen)
	}

	c1 := campaigns[0]
	if !c1.DailyBudget.Valid || c1.DailyBudget.Minor != 12345 {
		t.Errorf("c1 daily budget = %+v", c1.DailyBudget)
	}
	if c1.LifetimeBudget.Valid {
		t.Errorf("c1 lifetime budget should be unset: %+v", c1.LifetimeBudget)
	}
	if got := campaigns[1].LifetimeBudget; !got.Valid || got.Minor != 5000 {
		t.Errorf("c2 lifetime budget from a bare number = %+v", got)
	}
	if campaigns[2].DailyBudget.Valid {
		t.Errorf("empty string budget should be unset")
	}
}

func TestAPI_StopsOnRepeatedCursor(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"data":[{"id":"1"}],"paging":{"cursors":{"after":"same"},"next":"https://example/next"}}`)
	})

	forms, err := NewAPI(client, 0).ListLeadForms(context.Background(), "page1")
	if err != nil {
		t.Fatalf("ListLeadForms failed: %v", err)
	}
	if calls.Load() != 2 || len(forms) != 2 {
		t.Errorf("calls = %d forms = %d, want the loop to stop on the second page", calls.Load(), len(forms))
	}
}

func TestAPI_ListLeadsConvertsToInbound(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("filtering") {
			t.Errorf("filtering sent for a first sync: %q", r.URL.Query().Get("filtering"))
		}
		fmt.Fprint(w, `{"data":[{
			"id":"L1","created_time":"2026-03-01T10:00:00+0200","ad_id":"a1","campaign_id":"c1","is_organic":true,
			"field_data":[{"name":"full_name","values":["Ada Lovelace"]},{"name":"phone_number","values":["+1 (234) 567-8901"]}]
		}]}`)
	})

	leads, err := NewAPI(client, 25).ListLeads(context.Background(), "form9", time.Time{})
	if err != nil {
		t.Fatalf("ListLeads failed: %v", err)
	}
	if len(leads) != 1 {
		t.Fatalf("got %d leads", len(leads))
	}

	in := leads[0].Inbound("form9", "Spring Promo")
	if in.ExternalID != "L1" || in.FormExternalID != "form9" || in.FormName != "Spring Promo" {
		t.Errorf("inbound ids = %+v", in)
	}
	if !in.IsOrganic || in.AdExternalID != "a1" || in.CampaignExternalID != "c1" {
		t.Errorf("inbound attribution = %+v", in)
	}
	if want := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC); !in.CreatedTime.Equal(want) {
		t.Errorf("created = %v, want %v", in.CreatedTime, want)
	}
	if got := in.Field("PHONE_NUMBER"); got != "+1 (234) 567-8901" {
		t.Errorf("phone field = %q", got)
	}
}

func TestAPI_ListLeadsSinceSendsFilter(t *testing.T) {
	t.Parallel()

	var filtering string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		filtering = r.URL.Query().Get("filtering")
		fmt.Fprint(w, `{"data":[]}`)
	})

	since := time.Date(2026, 5, 30, 10, 0, 0, 0, time.UTC)
	if _, err := NewAPI(client, 25).ListLeads(context.Background(), "form9", since); err != nil {
		t.Fatalf("ListLeads failed: %v", err)
	}

	var clauses []filterClause
	if err := json.Unmarshal([]byte(filtering), &clauses); err != nil {
		t.Fatalf("filtering %q is not JSON: %v", filtering, err)
	}
	want := filterClause{Field: "time_created", Operator: "GREATER_THAN", Value: since.Unix() - 1}
	if len(clauses) != 1 || clauses[0] != want {
		t.Errorf("filtering = %+v, want [%+v]", clauses, want)
	}
}

func TestAmount_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Amount
		wantErr bool
	}{
		{`"12345"`, Amount{Minor: 12345, Valid: true}, false},
		{`12345`, Amount{Minor: 12345, Valid: true}, false},
		{`"0"`, Amount{Minor: 0, Valid: true}, false},
		{`""`, Amount{}, false},
		{`null`, Amount{}, false},
		{`"12.5"`, Amount{Raw: "12.5"}, true},
		{`"ten dollars"`, Amount{Raw: "ten dollars"}, true},
	}
	for _, tt := range tests {
		var got Amount
		if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
			t.Errorf("Unmarshal(%s) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Unmarshal(%s) = %+v, want %+v", tt.in, got, tt.want)
		}
		if err := got.Err(); (err != nil) != tt.wantErr || (err != nil && !errors.Is(err, ErrInvalidAmount)) {
			t.Errorf("Unmarshal(%s).Err() = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestAPI_MalformedBudgetDoesNotFailListing(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"id":"c1","name":"One","status":"ACTIVE","daily_budget":"12.50"},
			{"id":"c2","name":"Two","status":"ACTIVE","daily_budget":"2500"}
		]}`)
	})

	campaigns, err := NewAPI(client, 25).ListCampaigns(context.Background(), "act_1")
	if err != nil {
		t.Fatalf("ListCampaigns failed: %v", err)
	}
	if len(campaigns) != 2 {
		t.Fatalf("got %d campaigns, want 2", len(campaigns))
	}
	err = campaigns[0].Validate()
	if !errors.Is(err, ErrInvalidAmount) || !strings.Contains(err.Error(), "daily_budget") {
		t.Errorf("c1 Validate() = %v, want invalid daily_budget", err)
	}
	if err := campaigns[1].Validate(); err != nil {
		t.Errorf("c2 Validate() = %v", err)
	}
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	if ParseTime("") != nil {
		t.Error("empty input should be nil")
	}
	if ParseTime("yesterday") != nil {
		t.Error("garbage input should be nil")
	}
	got := ParseTime("2026-03-01T10:00:00-0500")
	if got == nil || !got.Equal(time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)) {
		t.Errorf("ParseTime = %v", got)
	}
	if got.Location() != time.UTC {
		t.Errorf("location = %v, want UTC", got.Location())
	}
	if ParseTime("2026-03-01T10:00:00Z") == nil {
		t.Error("RFC 3339 input should parse")
	}
}
