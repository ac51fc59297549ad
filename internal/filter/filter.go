// Package filter ranks a source's postings against one user's preference.
// Everything here is pure and deterministic: the same postings and
// preference always produce the same order.
package filter

import (
	"sort"
	"strings"

	"github.com/amishk599/jobdigest/internal/model"
)

// Ranked is a posting that survived filtering, with its score.
type Ranked struct {
	Posting    model.Posting
	Score      int
	TitleMatch bool
	Signals    []string
}

var (
	seniorTerms = map[string]bool{
		"senior": true, "sr": true, "lead": true, "staff": true,
		"principal": true, "architect": true, "head": true,
	}
	juniorTerms = map[string]bool{
		"junior": true, "jr": true, "intern": true, "internship": true,
		"entry": true, "graduate": true, "associate": true, "trainee": true,
	}
	midTerms = map[string]bool{
		"engineer": true, "developer": true, "sde": true,
	}
)

// Matcher holds a compiled preference.
type Matcher struct {
	pref     model.Preference
	keywords []term
	roles    []term
	tags     []term
	negative []term
}

// NewMatcher compiles pref for repeated use.
func NewMatcher(pref model.Preference) *Matcher {
	return &Matcher{
		pref:     pref,
		keywords: keywordTerms(pref.Keyword),
		roles:    phraseTerms(pref.TargetRoles),
		tags:     phraseTerms(pref.TechStackTags),
		negative: phraseTerms(pref.NegativeKeywords),
	}
}

// Rank filters postings with pref and orders the survivors by score, then
// source priority (lower first), then recency, then key.
func Rank(postings []model.Posting, pref model.Preference, priority map[string]int) []Ranked {
	m := NewMatcher(pref)

	var out []Ranked
	for _, p := range postings {
		if r, ok := m.Match(p); ok {
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		pa, pb := priority[a.Posting.SourceID], priority[b.Posting.SourceID]
		if pa != pb {
			return pa < pb
		}
		ta, tb := a.Posting.PostedAt, b.Posting.PostedAt
		switch {
		case ta != nil && tb != nil && !ta.Equal(*tb):
			return ta.After(*tb)
		case ta != nil && tb == nil:
			return true
		case ta == nil && tb != nil:
			return false
		}
		return a.Posting.Key() < b.Posting.Key()
	})
	return out
}

// Match scores one posting. ok is false when the posting is excluded.
func (m *Matcher) Match(p model.Posting) (Ranked, bool) {
	title := tokenize(p.Title)
	body := tokenize(p.Description + " " + strings.Join(p.Tags, " "))

	for _, n := range m.negative {
		if n.matches(title) || n.matches(body) {
			return Ranked{}, false
		}
	}

	junior := anyToken(title, juniorTerms)
	senior := anyToken(title, seniorTerms)
	if m.pref.StrictSeniorOnly && junior {
		return Ranked{}, false
	}
	if m.pref.RemoteOnly && (p.RemoteMode == model.RemoteHybrid || p.RemoteMode == model.RemoteOnsite) {
		return Ranked{}, false
	}

	r := Ranked{Posting: p}
	matched := len(m.keywords) == 0 && len(m.roles) == 0 && len(m.tags) == 0

	if hit, inTitle := firstHit(m.keywords, title, body); hit != "" {
		matched = true
		if inTitle {
			r.Score += 10
			r.TitleMatch = true
			r.Signals = append(r.Signals, "keyword in title: "+hit)
		} else {
			r.Score += 4
			r.Signals = append(r.Signals, "keyword in description: "+hit)
		}
	}

	for _, role := range m.roles {
		switch {
		case role.matches(title):
			matched = true
			r.Score += 4
			r.TitleMatch = true
			r.Signals = append(r.Signals, "role: "+role.label)
		case role.matches(body):
			matched = true
			r.Score += 2
			r.Signals = append(r.Signals, "role: "+role.label)
		}
	}

	for _, tag := range m.tags {
		switch {
		case tag.matches(title):
			matched = true
			r.Score += 3
			r.TitleMatch = true
			r.Signals = append(r.Signals, "tech: "+tag.label)
		case tag.matches(body):
			matched = true
			r.Score += 2
			r.Signals = append(r.Signals, "tech: "+tag.label)
		}
	}

	if !matched {
		return Ranked{}, false
	}

	switch strings.ToLower(m.pref.ExperienceLevel) {
	case "senior", "staff", "principal", "lead":
		if senior {
			r.Score += 3
			r.Signals = append(r.Signals, "seniority")
		}
	case "mid":
		if !senior && !junior && anyToken(title, midTerms) {
			r.Score += 2
			r.Signals = append(r.Signals, "seniority")
		}
	case "entry", "junior":
		if junior {
			r.Score += 2
			r.Signals = append(r.Signals, "seniority")
		}
		if senior {
			r.Score--
		}
	}
	if m.pref.StrictSeniorOnly && senior {
		r.Score += 3
	}
	if m.pref.RemoteOnly && p.RemoteMode == model.RemoteFull {
		r.Score++
	}

	return r, true
}

// firstHit returns the first term matching the title, falling back to the
// first one matching the body.
func firstHit(terms []term, title, body []string) (string, bool) {
	for _, t := range terms {
		if t.matches(title) {
			return t.label, true
		}
	}
	for _, t := range terms {
		if t.matches(body) {
			return t.label, false
		}
	}
	return "", false
}

// Postings unwraps ranked results.
func Postings(rs []Ranked) []model.Posting {
	out := make([]model.Posting, len(rs))
	for i, r := range rs {
		out[i] = r.Posting
	}
	return out
}
