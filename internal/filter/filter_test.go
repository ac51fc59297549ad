package filter

import (
	"testing"
	"time"

	"github.com/amishk599/jobdigest/internal/model"
)

func posting(id, title string) model.Posting {
	return model.Posting{
		SourceID:   "src",
		Provider:   "greenhouse",
		ExternalID: id,
		Title:      title,
		Company:    "Acme",
		URL:        "https://example.com/jobs/" + id,
		RemoteMode: model.RemoteUnknown,
	}
}

func keys(rs []Ranked) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Posting.ExternalID
	}
	return out
}

func TestRank_KeywordMatching(t *testing.T) {
	tests := []struct {
		name    string
		keyword string
		title   string
		desc    string
		want    bool
	}{
		{"exact phrase", "backend engineer", "Senior Backend Engineer", "", true},
		{"case insensitive", "GOLANG", "golang developer", "", true},
		{"whole token only", "java", "JavaScript Engineer", "", false},
		{"comma alternatives", "rust, golang", "Go Engineer", "We write golang.", true},
		{"no match", "rust", "Python Engineer", "", false},
		{"developer alias engineer", "developer", "Software Engineer", "", true},
		{"developer alias sde", "developer", "SDE II", "", true},
		{"x developer as x engineer", "backend developer", "Backend Engineer", "", true},
		{"x developer as software x engineer", "backend developer", "Software Backend Engineer", "", true},
		{"x developer as x software engineer", "backend developer", "Backend Software Engineer", "", true},
		{"token fallback any order", "platform engineer", "Engineer, Platform", "", true},
		{"repeated words treated as bag", "engineer engineer data", "Data Scientist", "", true},
		{"description match", "kubernetes", "Platform Engineer", "Runs Kubernetes clusters", true},
		{"c++ token", "c++", "C++ Engineer", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := posting("1", tt.title)
			p.Description = tt.desc
			got := Rank([]model.Posting{p}, model.Preference{Keyword: tt.keyword}, nil)
			if (len(got) == 1) != tt.want {
				t.Errorf("Rank(%q, title=%q) matched=%v, want %v", tt.keyword, tt.title, len(got) == 1, tt.want)
			}
		})
	}
}

func TestRank_EmptyPreferenceMatchesAll(t *testing.T) {
	ps := []model.Posting{posting("1", "Chef"), posting("2", "Pilot")}
	got := Rank(ps, model.Preference{}, nil)
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
}

func TestRank_NegativeKeywordsExclude(t *testing.T) {
	a := posting("1", "Backend Engineer")
	b := posting("2", "Backend Engineer")
	b.Description = "Must hold an active clearance"
	c := posting("3", "Backend Engineer, Contract")

	pref := model.Preference{Keyword: "backend", NegativeKeywords: []string{"clearance", "contract"}}
	got := keys(Rank([]model.Posting{a, b, c}, pref, nil))
	if len(got) != 1 || got[0] != "1" {
		t.Errorf("got %v, want [1]", got)
	}
}

func TestRank_NegativeKeywordWholeToken(t *testing.T) {
	p := posting("1", "Contractor Relations Engineer")
	pref := model.Preference{Keyword: "engineer", NegativeKeywords: []string{"contract"}}
	if got := Rank([]model.Posting{p}, pref, nil); len(got) != 1 {
		t.Errorf("negative keyword should not match a longer word")
	}
}

func TestRank_StrictSeniorOnly(t *testing.T) {
	ps := []model.Posting{
		posting("1", "Junior Backend Engineer"),
		posting("2", "Senior Backend Engineer"),
		posting("3", "Backend Engineer Intern"),
		posting("4", "Backend Engineer"),
	}
	pref := model.Preference{Keyword: "backend", StrictSeniorOnly: true}
	got := keys(Rank(ps, pref, nil))
	want := []string{"2", "4"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestRank_RemoteOnly(t *testing.T) {
	remote := posting("1", "Engineer")
	remote.RemoteMode = model.RemoteFull
	hybrid := posting("2", "Engineer")
	hybrid.RemoteMode = model.RemoteHybrid
	onsite := posting("3", "Engineer")
	onsite.RemoteMode = model.RemoteOnsite
	unknown := posting("4", "Engineer")

	pref := model.Preference{Keyword: "engineer", RemoteOnly: true}
	got := keys(Rank([]model.Posting{remote, hybrid, onsite, unknown}, pref, nil))
	want := []string{"1", "4"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRank_TitleBeatsDescription(t *testing.T) {
	inDesc := posting("1", "Platform Engineer")
	inDesc.Description = "Some golang work"
	inTitle := posting("2", "Golang Engineer")

	got := Rank([]model.Posting{inDesc, inTitle}, model.Preference{Keyword: "golang"}, nil)
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].Posting.ExternalID != "2" || !got[0].TitleMatch {
		t.Errorf("title match should rank first, got %v", keys(got))
	}
	if got[1].TitleMatch {
		t.Error("description-only match flagged as title match")
	}
}

func TestRank_RolesAndTags(t *testing.T) {
	a := posting("1", "Site Reliability Engineer")
	a.Tags = []string{"kubernetes"}
	b := posting("2", "Go Engineer")
	c := posting("3", "Accountant")

	pref := model.Preference{
		TargetRoles:   []string{"site reliability engineer"},
		TechStackTags: []string{"go", "kubernetes"},
	}
	got := Rank([]model.Posting{a, b, c}, pref, nil)
	if len(got) != 2 {
		t.Fatalf("got %v, want two matches", keys(got))
	}
	// role in title (4) + tag in body (2) beats tag in title (3)
	if got[0].Posting.ExternalID != "1" || got[0].Score != 6 {
		t.Errorf("got first=%s score=%d, want 1 with 6", got[0].Posting.ExternalID, got[0].Score)
	}
}

func TestRank_ExperienceBias(t *testing.T) {
	senior := posting("1", "Senior Engineer")
	junior := posting("2", "Junior Engineer")

	got := Rank([]model.Posting{junior, senior}, model.Preference{Keyword: "engineer", ExperienceLevel: "senior"}, nil)
	if got[0].Posting.ExternalID != "1" {
		t.Errorf("senior preference: got %v", keys(got))
	}

	got = Rank([]model.Posting{senior, junior}, model.Preference{Keyword: "engineer", ExperienceLevel: "entry"}, nil)
	if got[0].Posting.ExternalID != "2" {
		t.Errorf("entry preference: got %v", keys(got))
	}
}

func TestRank_TieBreaks(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	lowPrio := posting("a", "Engineer")
	lowPrio.SourceID = "low"
	lowPrio.PostedAt = &newer

	old := posting("b", "Engineer")
	old.PostedAt = &older

	fresh := posting("c", "Engineer")
	fresh.PostedAt = &newer

	undated := posting("d", "Engineer")

	priority := map[string]int{"src": 1, "low": 5}
	got := keys(Rank([]model.Posting{undated, lowPrio, old, fresh}, model.Preference{Keyword: "engineer"}, priority))
	want := []string{"c", "b", "d", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRank_Deterministic(t *testing.T) {
	ps := []model.Posting{posting("3", "Engineer"), posting("1", "Engineer"), posting("2", "Engineer")}
	first := keys(Rank(ps, model.Preference{Keyword: "engineer"}, nil))
	for i := 0; i < 5; i++ {
		again := keys(Rank(ps, model.Preference{Keyword: "engineer"}, nil))
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("order changed: %v vs %v", first, again)
			}
		}
	}
	if first[0] != "1" {
		t.Errorf("equal scores should fall back to key order, got %v", first)
	}
}
