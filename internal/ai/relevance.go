package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/amishk599/jobdigest/internal/model"
)

const snippetLen = 250

// Request is one relevance-selection call for one user.
type Request struct {
	Preference model.Preference
	Candidates []model.Posting
	MaxBullets int
}

// Line is a selected bullet that could not be mapped back to a candidate.
type Line struct {
	Text string
	Key  model.JobKey
}

// Selection is what the model picked.
type Selection struct {
	Matched   []model.Posting
	Unmapped  []Line
	Submitted int // candidates in the batch that finally went out
}

// Selector picks the relevant subset of new candidates.
type Selector interface {
	Select(ctx context.Context, req Request) (Selection, error)
}

// RelevanceFilter asks an LLM which candidates are relevant. Oversized
// requests are retried with a halved batch.
type RelevanceFilter struct {
	provider      LLMProvider
	tmpl          *template.Template
	timeout       time.Duration
	shrinkRetries int
	logger        *slog.Logger
}

var _ Selector = (*RelevanceFilter)(nil)

// NewRelevanceFilter creates a filter. timeout bounds each provider call.
func NewRelevanceFilter(provider LLMProvider, tmpl *template.Template, timeout time.Duration, shrinkRetries int, logger *slog.Logger) *RelevanceFilter {
	return &RelevanceFilter{
		provider:      provider,
		tmpl:          tmpl,
		timeout:       timeout,
		shrinkRetries: shrinkRetries,
		logger:        logger,
	}
}

// Select sends the candidates and parses the reply. Any error means nothing
// new was selected; callers must still send carryover.
func (f *RelevanceFilter) Select(ctx context.Context, req Request) (Selection, error) {
	batch := req.Candidates
	if len(batch) == 0 {
		return Selection{}, nil
	}

	for attempt := 0; ; attempt++ {
		prompt, err := f.render(req, batch)
		if err != nil {
			return Selection{}, err
		}

		raw, err := f.complete(ctx, prompt)
		if err == nil {
			sel := parseSelection(raw, batch, req.MaxBullets)
			sel.Submitted = len(batch)
			return sel, nil
		}

		if !errors.Is(err, ErrRequestTooLarge) || attempt >= f.shrinkRetries || len(batch) == 1 {
			return Selection{}, err
		}

		next := max(1, len(batch)/2)
		f.logger.Warn("relevance request too large, shrinking batch",
			"from", len(batch),
			"to", next,
			"attempt", attempt+1,
		)
		batch = batch[:next]
	}
}

func (f *RelevanceFilter) complete(ctx context.Context, prompt string) (string, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	return f.provider.Complete(ctx, prompt)
}

type promptCandidate struct {
	Number   int
	Title    string
	Company  string
	Location string
	URL      string
	Snippet  string
}

func (f *RelevanceFilter) render(req Request, batch []model.Posting) (string, error) {
	data := struct {
		Keyword      string
		Roles        string
		Tech         string
		Experience   string
		RemoteOnly   bool
		StrictSenior bool
		MaxBullets   int
		Candidates   []promptCandidate
	}{
		Keyword:      req.Preference.Keyword,
		Roles:        strings.Join(req.Preference.TargetRoles, ", "),
		Tech:         strings.Join(req.Preference.TechStackTags, ", "),
		Experience:   req.Preference.ExperienceLevel,
		RemoteOnly:   req.Preference.RemoteOnly,
		StrictSenior: req.Preference.StrictSeniorOnly,
		MaxBullets:   req.MaxBullets,
	}
	for i, p := range batch {
		loc := p.NormalizedLocation
		if loc == "" {
			loc = p.Location
		}
		data.Candidates = append(data.Candidates, promptCandidate{
			Number:   i + 1,
			Title:    p.Title,
			Company:  p.Company,
			Location: loc,
			URL:      p.URL,
			Snippet:  snippet(p.Description),
		})
	}

	var buf bytes.Buffer
	if err := f.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

func snippet(desc string) string {
	desc = strings.Join(strings.Fields(desc), " ")
	r := []rune(desc)
	if len(r) <= snippetLen {
		return desc
	}
	return string(r[:snippetLen])
}

// parseSelection maps reply lines onto batch. A line pointing at a candidate
// that an earlier line already claimed is a repeat and is dropped.
func parseSelection(raw string, batch []model.Posting, maxBullets int) Selection {
	var sel Selection
	taken := make(map[int]bool)
	takenURL := make(map[string]bool)
	for _, line := range CleanOutput(raw, maxBullets) {
		if i := mapLine(line, batch, taken); i >= 0 {
			taken[i] = true
			if batch[i].URL != "" {
				takenURL[model.CanonicalURL(batch[i].URL)] = true
			}
			sel.Matched = append(sel.Matched, batch[i])
			continue
		}
		if u := lineURL(line); u != "" && takenURL[model.CanonicalURL(u)] {
			continue
		}
		sel.Unmapped = append(sel.Unmapped, Line{Text: line, Key: LineKey(line)})
	}
	return sel
}
