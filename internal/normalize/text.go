// Package normalize cleans fetched postings into the shape the filter and
// digest stages expect.
package normalize

import (
	"html"
	"regexp"
	"strings"

	"github.com/amishk599/jobdigest/internal/model"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// CleanText collapses whitespace, including non-breaking spaces.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// HTMLToText converts an HTML or HTML-encoded string to plain text.
// Entities are unescaped first (Greenhouse double-encodes content), then tags
// are stripped and whitespace collapsed.
func HTMLToText(content string) string {
	unescaped := html.UnescapeString(content)
	plain := htmlTagRegex.ReplaceAllString(unescaped, " ")
	return CleanText(html.UnescapeString(plain))
}

// Posting returns p with cleaned text fields, a normalized location and an
// inferred remote mode.
func Posting(p model.Posting) model.Posting {
	p.Title = CleanText(p.Title)
	p.Company = CleanText(p.Company)
	p.Location = CleanText(p.Location)
	p.URL = strings.TrimSpace(p.URL)
	if strings.ContainsAny(p.Description, "<&") {
		p.Description = HTMLToText(p.Description)
	} else {
		p.Description = CleanText(p.Description)
	}
	p.Tags = dedupeTags(p.Tags)

	loc := NormalizeLocation(p.Location, p.Title, p.Description)
	p.NormalizedLocation = loc.Canonical
	p.RemoteMode = loc.Mode
	return p
}

// Postings normalizes a slice in place and drops entries without a usable
// title or job key.
func Postings(ps []model.Posting) []model.Posting {
	out := ps[:0]
	for _, p := range ps {
		p = Posting(p)
		if p.Title == "" || p.Key() == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(CleanText(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
