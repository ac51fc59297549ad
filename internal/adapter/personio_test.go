package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amishk599/jobdigest/internal/model"
)

const personioFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<workzag-jobs>
  <position>
    <id>1456</id>
    <office>Munich</office>
    <additionalOffices><office>Berlin</office><office>Munich</office></additionalOffices>
    <department>Engineering</department>
    <recruitingCategory>Software</recruitingCategory>
    <name>Backend Engineer (Go)</name>
    <jobDescriptions>
      <jobDescription><name>Your tasks</name><value><![CDATA[<p>Build services</p>]]></value></jobDescription>
      <jobDescription><name>Your profile</name><value><![CDATA[<p>Go, Postgres</p>]]></value></jobDescription>
    </jobDescriptions>
    <employmentType>permanent</employmentType>
    <seniority>experienced</seniority>
    <keywords>go, kubernetes</keywords>
    <createdAt>2026-01-05T10:00:00+00:00</createdAt>
  </position>
</workzag-jobs>`

func TestPersonioFetchPostings_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Host != "acme.jobs.personio.com" || r.URL.Path != "/xml" {
			t.Errorf("unexpected request %s%s", r.Host, r.URL.Path)
		}
		if got := r.URL.Query().Get("language"); got != "en" {
			t.Errorf("language = %q, want en", got)
		}
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(personioFeedXML))
	}))
	defer srv.Close()

	a := NewPersonioAdapter("acme", "Acme GmbH", "en", redirectClient(srv))
	postings, err := a.FetchPostings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(postings) != 1 {
		t.Fatalf("expected 1 posting, got %d", len(postings))
	}

	p := postings[0]
	if p.Key() != "personio:1456" {
		t.Errorf("unexpected key %s", p.Key())
	}
	if p.URL != "https://acme.jobs.personio.com/job/1456" {
		t.Errorf("unexpected url %s", p.URL)
	}
	if p.Location != "Munich, Berlin" {
		t.Errorf("unexpected location %q", p.Location)
	}
	if !strings.Contains(p.Description, "Build services") || !strings.Contains(p.Description, "Go, Postgres") {
		t.Errorf("unexpected description %q", p.Description)
	}
	if strings.Join(p.Tags, ",") != "Engineering,Software,permanent,experienced,go,kubernetes" {
		t.Errorf("unexpected tags %v", p.Tags)
	}
	if p.PostedAt == nil || p.PostedAt.Year() != 2026 {
		t.Errorf("unexpected PostedAt %v", p.PostedAt)
	}
}

func TestPersonioFetchPostings_BadXMLIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>Maintenance"))
	}))
	defer srv.Close()

	_, err := NewPersonioAdapter("acme", "Acme", "", redirectClient(srv)).FetchPostings(context.Background())
	if !errors.Is(err, model.ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}
