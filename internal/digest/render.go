package digest

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/amishk599/jobdigest/internal/model"
)

// Section is a titled list of bullets in a rendered digest.
type Section struct {
	Title   string
	Bullets []string
}

// Sections groups the digest into "new" and "still open" bullets. A company
// with more than threshold items across the whole digest collapses into one
// summary line, placed in the section of its first item.
func (d Digest) Sections(threshold int) []Section {
	if threshold <= 0 {
		threshold = DefaultClusterThreshold
	}

	byCompany := make(map[string][]Item)
	for _, it := range d.Items {
		if it.Company == "" {
			continue
		}
		c := strings.ToLower(it.Company)
		byCompany[c] = append(byCompany[c], it)
	}

	newSec := Section{Title: "New matches"}
	oldSec := Section{Title: "Still open"}
	emitted := make(map[string]bool)
	for _, it := range d.Items {
		target := &newSec
		if it.Carryover {
			target = &oldSec
		}

		c := strings.ToLower(it.Company)
		group := byCompany[c]
		if it.Company == "" || len(group) <= threshold {
			target.Bullets = append(target.Bullets, it.Bullet())
			continue
		}
		if emitted[c] {
			continue
		}
		emitted[c] = true
		target.Bullets = append(target.Bullets, clusterLine(it.Company, group))
	}

	var out []Section
	for _, s := range []Section{newSec, oldSec} {
		if len(s.Bullets) > 0 {
			out = append(out, s)
		}
	}
	return out
}

func clusterLine(company string, items []Item) string {
	fresh := 0
	titles := make([]string, 0, len(items))
	for _, it := range items {
		if !it.Carryover {
			fresh++
		}
		titles = append(titles, it.Title)
	}
	head := fmt.Sprintf("- %s — %d roles", company, len(items))
	if fresh > 0 && fresh < len(items) {
		head += fmt.Sprintf(" (%d new)", fresh)
	}
	return head + ": " + strings.Join(titles, "; ")
}

var bodyTemplate = template.Must(template.New("digest").Parse(`Hi,

Here is your job digest{{if .Keyword}} for "{{.Keyword}}"{{end}}.
{{range .Sections}}
{{.Title}}:
{{range .Bullets}}{{.}}
{{end}}{{end}}
You are receiving this because alerts are enabled for {{.Email}}.
`))

// Render produces the outgoing message for user.
func Render(d Digest, user model.User, pref model.Preference, threshold int) (model.Message, error) {
	newCount := d.NewCount()
	oldCount := len(d.Items) - newCount

	subject := fmt.Sprintf("Job digest: %d new", newCount)
	if oldCount > 0 {
		subject += fmt.Sprintf(", %d still open", oldCount)
	}

	var buf bytes.Buffer
	err := bodyTemplate.Execute(&buf, struct {
		Keyword  string
		Email    string
		Sections []Section
	}{
		Keyword:  pref.Keyword,
		Email:    user.Email,
		Sections: d.Sections(threshold),
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("render digest: %w", err)
	}

	return model.Message{To: user.Email, Subject: subject, Body: buf.String()}, nil
}
