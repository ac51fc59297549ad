// Package audit is the interactive terminal view of one user's fetched
// postings against what the filter kept and what the ledger already holds.
package audit

import (
	"sort"
	"time"

	"github.com/amishk599/jobdigest/internal/filter"
	"github.com/amishk599/jobdigest/internal/model"
)

// Row is one posting as the audit view shows it.
type Row struct {
	Posting model.Posting
	Ranked  *filter.Ranked    // nil when the filter excluded the posting
	Record  *model.SentRecord // nil when never sent
	Live    bool              // Record is inside the carryover window
}

// Status labels the row's dedup position.
func (r Row) Status() string {
	switch {
	case r.Ranked == nil:
		return "filtered"
	case r.Live:
		return "carryover"
	case r.Record != nil:
		return "expired"
	default:
		return "new"
	}
}

// Snapshot is everything the TUI needs for one user.
type Snapshot struct {
	User     model.User
	All      []Row // every fetched posting, newest first
	Matched  []Row // filter survivors in rank order
	Outcomes []model.RunOutcome
	Failed   []string // ids of sources that errored this fetch
}

// BuildSnapshot joins fetched postings with the ranking and the ledger.
func BuildSnapshot(user model.User, postings []model.Posting, ranked []filter.Ranked, records map[model.JobKey]model.SentRecord, ttl time.Duration, now time.Time) Snapshot {
	s := Snapshot{User: user}

	byKey := make(map[model.JobKey]filter.Ranked, len(ranked))
	for _, r := range ranked {
		byKey[r.Posting.Key()] = r
	}

	row := func(p model.Posting) Row {
		out := Row{Posting: p}
		key := p.Key()
		if r, ok := byKey[key]; ok {
			out.Ranked = &r
		}
		if rec, ok := records[key]; ok {
			out.Record = &rec
			out.Live = rec.LiveAt(now, ttl)
		}
		return out
	}

	for _, p := range postings {
		s.All = append(s.All, row(p))
	}
	sortRowsByDate(s.All)

	for _, r := range ranked {
		s.Matched = append(s.Matched, row(r.Posting))
	}
	return s
}

// Counts tallies matched rows by status.
func (s Snapshot) Counts() map[string]int {
	out := make(map[string]int)
	for _, r := range s.Matched {
		out[r.Status()]++
	}
	return out
}

func sortRowsByDate(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Posting.PostedAt, rows[j].Posting.PostedAt
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})
}
