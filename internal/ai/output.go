package ai

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"strings"

	"github.com/amishk599/jobdigest/internal/model"
)

var (
	urlPattern    = regexp.MustCompile(`https?://[^\s<>"]+`)
	bulletPattern = regexp.MustCompile(`^(?:[\x{2022}*\-]|\d+[.)])\s*`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// CleanOutput turns a raw model reply into normalized "- " bullet lines.
// Code fence markers are dropped but the lines between them are kept. Lines
// are deduplicated by canonical URL, so tracking suffixes do not count.
// A reply of NONE, or one with no bullets, yields nil.
func CleanOutput(raw string, maxBullets int) []string {
	text := html.UnescapeString(raw)
	if strings.EqualFold(strings.TrimSpace(text), "none") {
		return nil
	}

	var lines []string
	seenURL := make(map[string]bool)
	seenLine := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		loc := bulletPattern.FindStringIndex(line)
		if loc == nil {
			continue
		}
		body := strings.TrimSpace(line[loc[1]:])
		if body == "" {
			continue
		}
		line = "- " + body

		if u := lineURL(line); u != "" {
			canon := model.CanonicalURL(u)
			if seenURL[canon] {
				continue
			}
			seenURL[canon] = true
		} else if seenLine[line] {
			continue
		}
		seenLine[line] = true
		lines = append(lines, line)
	}

	if maxBullets > 0 && len(lines) > maxBullets {
		lines = lines[:maxBullets]
	}
	return lines
}

// lineURL returns the first URL in line, trimmed of trailing punctuation.
func lineURL(line string) string {
	u := urlPattern.FindString(line)
	return strings.TrimRight(u, ").,]")
}

// LineKey is the best-effort job key for a line that matched no candidate.
func LineKey(line string) model.JobKey {
	if u := lineURL(line); u != "" {
		return model.JobKey("url:" + model.CanonicalURL(u))
	}
	norm := strings.ToLower(spacePattern.ReplaceAllString(strings.TrimSpace(strings.TrimPrefix(line, "- ")), " "))
	sum := sha1.Sum([]byte(norm))
	return model.JobKey("line:" + hex.EncodeToString(sum[:])[:16])
}

// mapLine finds the candidate a bullet refers to: canonical URL first, then
// title and company containment. taken marks candidates already claimed.
func mapLine(line string, candidates []model.Posting, taken map[int]bool) int {
	if u := lineURL(line); u != "" {
		canon := model.CanonicalURL(u)
		for i, c := range candidates {
			if !taken[i] && c.URL != "" && model.CanonicalURL(c.URL) == canon {
				return i
			}
		}
	}

	lower := strings.ToLower(line)
	for i, c := range candidates {
		if taken[i] || c.Title == "" {
			continue
		}
		if !strings.Contains(lower, strings.ToLower(c.Title)) {
			continue
		}
		if c.Company != "" && !strings.Contains(lower, strings.ToLower(c.Company)) {
			continue
		}
		return i
	}
	return -1
}
