package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/amishk599/jobdigest/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedProvider returns responses in order and records prompts.
type scriptedProvider struct {
	replies []string
	errs    []error
	prompts []string
}

func (s *scriptedProvider) Complete(_ context.Context, prompt string) (string, error) {
	i := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	var reply string
	var err error
	if i < len(s.replies) {
		reply = s.replies[i]
	}
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return reply, err
}

type blockingProvider struct{}

func (blockingProvider) Complete(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func candidates(n int) []model.Posting {
	out := make([]model.Posting, n)
	for i := range out {
		id := string(rune('a' + i))
		out[i] = model.Posting{
			Provider:   "greenhouse",
			ExternalID: id,
			Title:      "Engineer " + id,
			Company:    "Co" + id,
			URL:        "https://jobs.example.com/" + id,
		}
	}
	return out
}

func newFilter(p LLMProvider, shrink int) *RelevanceFilter {
	return NewRelevanceFilter(p, RelevanceTemplate, time.Second, shrink, discardLogger())
}

func TestSelect_MapsByURLAndTitle(t *testing.T) {
	cands := candidates(3)
	reply := "```\n" +
		"- Engineer a — Coa — https://jobs.example.com/a?utm_source=x\n" +
		"* Engineer c at Coc\n" +
		"- Totally Different Role — Other — https://elsewhere.io/9\n" +
		"```"
	p := &scriptedProvider{replies: []string{reply}}

	sel, err := newFilter(p, 3).Select(context.Background(), Request{Candidates: cands, MaxBullets: 8})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sel.Matched) != 2 || sel.Matched[0].ExternalID != "a" || sel.Matched[1].ExternalID != "c" {
		t.Fatalf("matched = %+v", sel.Matched)
	}
	if len(sel.Unmapped) != 1 {
		t.Fatalf("unmapped = %+v", sel.Unmapped)
	}
	if sel.Unmapped[0].Key != "url:https://elsewhere.io/9" {
		t.Errorf("unmapped key = %q", sel.Unmapped[0].Key)
	}
	if sel.Submitted != 3 {
		t.Errorf("submitted = %d, want 3", sel.Submitted)
	}
}

func TestSelect_RepeatOfClaimedCandidateDropped(t *testing.T) {
	cands := candidates(2)
	reply := "- Engineer a at Coa\n" +
		"- Engineer a — Coa — https://jobs.example.com/a?ref=feed#apply\n" +
		"- Engineer b — Cob — https://jobs.example.com/b"
	p := &scriptedProvider{replies: []string{reply}}

	sel, err := newFilter(p, 3).Select(context.Background(), Request{Candidates: cands, MaxBullets: 8})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sel.Matched) != 2 {
		t.Fatalf("matched = %+v", sel.Matched)
	}
	if len(sel.Unmapped) != 0 {
		t.Errorf("repeat of a claimed candidate leaked as unmapped: %+v", sel.Unmapped)
	}
}

func TestSelect_None(t *testing.T) {
	p := &scriptedProvider{replies: []string{"NONE"}}
	sel, err := newFilter(p, 3).Select(context.Background(), Request{Candidates: candidates(2), MaxBullets: 8})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sel.Matched) != 0 || len(sel.Unmapped) != 0 {
		t.Errorf("expected empty selection, got %+v", sel)
	}
}

func TestSelect_EmptyBatchSkipsCall(t *testing.T) {
	p := &scriptedProvider{}
	if _, err := newFilter(p, 3).Select(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.prompts) != 0 {
		t.Errorf("provider called %d times, want 0", len(p.prompts))
	}
}

func TestSelect_ShrinksOnTooLarge(t *testing.T) {
	p := &scriptedProvider{
		errs:    []error{ErrRequestTooLarge, ErrRequestTooLarge, nil},
		replies: []string{"", "", "- Engineer a — Coa — https://jobs.example.com/a"},
	}
	sel, err := newFilter(p, 3).Select(context.Background(), Request{Candidates: candidates(8), MaxBullets: 8})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.prompts) != 3 {
		t.Fatalf("calls = %d, want 3", len(p.prompts))
	}
	if sel.Submitted != 2 {
		t.Errorf("submitted = %d, want 8 -> 4 -> 2", sel.Submitted)
	}
	if strings.Contains(p.prompts[2], "Engineer c") {
		t.Error("third prompt should only carry the first two candidates")
	}
	if len(sel.Matched) != 1 {
		t.Errorf("matched = %d, want 1", len(sel.Matched))
	}
}

func TestSelect_GivesUpAfterShrinkRetries(t *testing.T) {
	p := &scriptedProvider{errs: []error{ErrRequestTooLarge, ErrRequestTooLarge, ErrRequestTooLarge}}
	_, err := newFilter(p, 2).Select(context.Background(), Request{Candidates: candidates(8), MaxBullets: 8})
	if !errors.Is(err, ErrRequestTooLarge) {
		t.Fatalf("err = %v, want ErrRequestTooLarge", err)
	}
	if len(p.prompts) != 3 {
		t.Errorf("calls = %d, want 3", len(p.prompts))
	}
}

func TestSelect_OtherErrorsNotRetried(t *testing.T) {
	p := &scriptedProvider{errs: []error{errors.New("boom")}}
	_, err := newFilter(p, 3).Select(context.Background(), Request{Candidates: candidates(4), MaxBullets: 8})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(p.prompts) != 1 {
		t.Errorf("calls = %d, want 1", len(p.prompts))
	}
}

func TestSelect_Timeout(t *testing.T) {
	f := NewRelevanceFilter(blockingProvider{}, RelevanceTemplate, 20*time.Millisecond, 3, discardLogger())
	_, err := f.Select(context.Background(), Request{Candidates: candidates(1), MaxBullets: 8})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestRender_IncludesPreferenceAndCandidates(t *testing.T) {
	p := &scriptedProvider{replies: []string{"NONE"}}
	long := strings.Repeat("x", 400)
	cands := candidates(1)
	cands[0].Description = long
	cands[0].NormalizedLocation = "Remote (United States)"
	req := Request{
		Preference: model.Preference{
			Keyword:          "golang",
			TargetRoles:      []string{"backend engineer"},
			TechStackTags:    []string{"go", "postgres"},
			RemoteOnly:       true,
			StrictSeniorOnly: true,
		},
		Candidates: cands,
		MaxBullets: 5,
	}
	if _, err := newFilter(p, 3).Select(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prompt := p.prompts[0]
	for _, want := range []string{
		"Keyword: golang",
		"Target roles: backend engineer",
		"Tech stack: go, postgres",
		"Remote only",
		"senior roles only",
		"at most 5 bullets",
		"1. Engineer a | Coa | Remote (United States) | https://jobs.example.com/a | ",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, strings.Repeat("x", 251)) {
		t.Error("snippet not truncated to 250 characters")
	}
}

func TestPassThrough(t *testing.T) {
	sel, err := NewPassThrough().Select(context.Background(), Request{Candidates: candidates(5), MaxBullets: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sel.Matched) != 3 || sel.Matched[0].ExternalID != "a" {
		t.Errorf("matched = %+v", sel.Matched)
	}
}
