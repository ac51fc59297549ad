package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWorkdayFetchPostings_Pages(t *testing.T) {
	var offsets []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/wday/cxs/acme/External/jobs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body workdayListingRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		offsets = append(offsets, body.Offset)

		resp := workdayListingResponse{Total: 25}
		if body.Offset == 0 {
			for i := 0; i < 20; i++ {
				resp.JobPostings = append(resp.JobPostings, workdayListing{
					Title:         "Engineer",
					ExternalPath:  "/job/Pune/Engineer_R" + string(rune('A'+i)),
					LocationsText: "India, Pune",
					PostedOn:      "Posted Today",
				})
			}
		} else {
			resp.JobPostings = []workdayListing{{
				Title:         "Staff Engineer",
				ExternalPath:  "/job/Remote/Staff_R99",
				LocationsText: "3 Locations",
				PostedOn:      "Posted 30+ Days Ago",
				BulletFields:  []string{"R99"},
			}}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := NewWorkdayAdapter(srv.URL+"/wday/cxs/acme/External", "", "Acme", srv.Client())
	a.now = func() time.Time { return time.Date(2026, 2, 20, 15, 0, 0, 0, time.UTC) }

	postings, err := a.FetchPostings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(postings) != 21 {
		t.Fatalf("expected 21 postings, got %d", len(postings))
	}
	if len(offsets) != 2 || offsets[1] != 20 {
		t.Errorf("unexpected paging offsets %v", offsets)
	}

	last := postings[20]
	if last.URL != srv.URL+"/External/job/Remote/Staff_R99" {
		t.Errorf("unexpected public URL %q", last.URL)
	}
	if last.Location != "" {
		t.Errorf("ambiguous location should be blanked, got %q", last.Location)
	}
	if last.PostedAt == nil || last.PostedAt.Day() != 21 || last.PostedAt.Month() != 1 {
		t.Errorf("expected 30 days before Feb 20, got %v", last.PostedAt)
	}
	if postings[0].PostedAt == nil || postings[0].PostedAt.Day() != 20 {
		t.Errorf("expected today, got %v", postings[0].PostedAt)
	}
}

func TestWorkdayFetchPostings_MaxPagesBounds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		resp := workdayListingResponse{Total: 10000}
		for i := 0; i < 20; i++ {
			resp.JobPostings = append(resp.JobPostings, workdayListing{Title: "x", ExternalPath: "/job/x"})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := NewWorkdayAdapter(srv.URL+"/wday/cxs/acme/Site", "", "Acme", srv.Client())
	a.maxPages = 3
	if _, err := a.FetchPostings(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 page requests, got %d", calls)
	}
}

func TestParsePostedOn(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		in      string
		wantDay int
		wantNil bool
	}{
		{"Posted Today", 10, false},
		{"Posted Yesterday", 9, false},
		{"Posted 3 Days Ago", 7, false},
		{"Posted 1 Day Ago", 9, false},
		{"sometime", 0, true},
	}
	for _, tt := range tests {
		got := parsePostedOn(tt.in, now)
		if tt.wantNil {
			if got != nil {
				t.Errorf("parsePostedOn(%q) = %v, want nil", tt.in, got)
			}
			continue
		}
		if got == nil || got.Day() != tt.wantDay {
			t.Errorf("parsePostedOn(%q) = %v, want day %d", tt.in, got, tt.wantDay)
		}
	}
}
