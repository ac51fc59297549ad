// Package digest splits a user's ranked postings into new and carryover
// items, bounds both, and assembles the final deduplicated digest.
//
//	ranked ──┬── no live SentRecord ──> new ──> company cap ──> batch cap ──> relevance ──┐
//	         └── live SentRecord ─────> carryover ──> carryover cap ─────────────────────┴──> union, dedupe, cluster
package digest

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/amishk599/jobdigest/internal/ai"
	"github.com/amishk599/jobdigest/internal/filter"
	"github.com/amishk599/jobdigest/internal/model"
)

// Options bound the digest. Zero values fall back to the defaults below.
type Options struct {
	TTL              time.Duration
	CompanyCap       int
	NewBatchCap      int
	CarryoverCap     int
	ClusterThreshold int
	MaxBullets       int
}

const (
	DefaultTTL              = 14 * 24 * time.Hour
	DefaultCompanyCap       = 3
	DefaultNewBatchCap      = 15
	DefaultCarryoverCap     = 10
	DefaultClusterThreshold = 3
	DefaultMaxBullets       = 8

	maxBatchCap   = 80
	maxBulletsCap = 20
)

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.CompanyCap <= 0 {
		o.CompanyCap = DefaultCompanyCap
	}
	if o.NewBatchCap <= 0 {
		o.NewBatchCap = DefaultNewBatchCap
	}
	if o.CarryoverCap <= 0 {
		o.CarryoverCap = DefaultCarryoverCap
	}
	if o.ClusterThreshold <= 0 {
		o.ClusterThreshold = DefaultClusterThreshold
	}
	if o.MaxBullets <= 0 {
		o.MaxBullets = DefaultMaxBullets
	}
	return o
}

// Item is one posting (or one unmapped model line) in a digest.
type Item struct {
	Key       model.JobKey
	Source    string
	Title     string
	Company   string
	URL       string
	Line      string // set when the relevance reply could not be mapped to a posting
	Carryover bool
}

// Bullet renders the item as a single digest line.
func (it Item) Bullet() string {
	if it.Line != "" {
		return it.Line
	}
	parts := []string{it.Title}
	if it.Company != "" {
		parts = append(parts, it.Company)
	}
	if it.URL != "" {
		parts = append(parts, it.URL)
	}
	return "- " + strings.Join(parts, " — ")
}

// Digest is the assembled result for one user and one run.
type Digest struct {
	Items         []Item         // selected new items first, then carryover
	Confirmed     []model.JobKey // live SentRecords present in this fetch
	Current       []model.JobKey // every keyword-matched key in this fetch
	Matched       int            // postings that survived filtering
	NewCandidates int            // new postings before capping
	Submitted     int            // postings sent to relevance selection
	RelevanceErr  error
}

// Empty reports whether there is nothing to send.
func (d Digest) Empty() bool { return len(d.Items) == 0 }

// NewCount is the number of new items in the digest.
func (d Digest) NewCount() int {
	n := 0
	for _, it := range d.Items {
		if !it.Carryover {
			n++
		}
	}
	return n
}

// Entries converts the digest into ledger entries.
func (d Digest) Entries() []model.SentEntry {
	out := make([]model.SentEntry, 0, len(d.Items))
	for _, it := range d.Items {
		title := it.Title
		if it.Line != "" && title == "" {
			title = strings.TrimPrefix(it.Line, "- ")
		}
		out = append(out, model.SentEntry{
			Key:     it.Key,
			Source:  it.Source,
			Title:   title,
			Company: it.Company,
			URL:     it.URL,
		})
	}
	return out
}

// Assembler builds digests. It is safe for concurrent use.
type Assembler struct {
	selector ai.Selector
	opts     Options
	logger   *slog.Logger
}

// NewAssembler returns an Assembler that asks selector to pick new items.
func NewAssembler(selector ai.Selector, opts Options, logger *slog.Logger) *Assembler {
	return &Assembler{
		selector: selector,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
}

// TTL is the carryover window in effect.
func (a *Assembler) TTL() time.Duration { return a.opts.TTL }

type carry struct {
	ranked filter.Ranked
	record model.SentRecord
}

// Assemble builds the digest for ranked postings given the user's SentRecord
// history. A relevance failure drops the new portion only.
func (a *Assembler) Assemble(ctx context.Context, ranked []filter.Ranked, records map[model.JobKey]model.SentRecord, pref model.Preference, now time.Time) Digest {
	d := Digest{Matched: len(ranked)}

	var fresh []model.Posting
	var eligible []carry
	seen := make(map[model.JobKey]bool, len(ranked))
	byURL := make(map[string]model.JobKey, len(ranked))
	for _, r := range ranked {
		key := r.Posting.Key()
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		d.Current = append(d.Current, key)
		if r.Posting.URL != "" {
			byURL[model.CanonicalURL(r.Posting.URL)] = key
		}

		if rec, ok := records[key]; ok && rec.LiveAt(now, a.opts.TTL) {
			eligible = append(eligible, carry{ranked: r, record: rec})
			d.Confirmed = append(d.Confirmed, key)
			continue
		}
		fresh = append(fresh, r.Posting)
	}
	d.NewCandidates = len(fresh)

	batch := capPerCompany(fresh, a.opts.CompanyCap)
	if limit := a.batchCap(pref); len(batch) > limit {
		batch = batch[:limit]
	}

	included := make(map[model.JobKey]bool)
	if len(batch) > 0 {
		sel, err := a.selector.Select(ctx, ai.Request{
			Preference: pref,
			Candidates: batch,
			MaxBullets: a.maxBullets(pref),
		})
		d.Submitted = sel.Submitted
		if err != nil {
			d.RelevanceErr = err
			a.logger.Warn("relevance selection failed, sending carryover only",
				"candidates", len(batch),
				"error", err,
			)
		} else {
			for _, p := range sel.Matched {
				key := p.Key()
				if included[key] || isLive(records, key, now, a.opts.TTL) {
					continue
				}
				included[key] = true
				d.Items = append(d.Items, Item{
					Key:     key,
					Source:  p.SourceID,
					Title:   p.Title,
					Company: p.Company,
					URL:     p.URL,
				})
			}
			for _, line := range sel.Unmapped {
				key, url := line.Key, lineURL(line.Key)
				// A line linking to a fetched posting is that posting.
				if known, ok := byURL[url]; ok && url != "" {
					key = known
				}
				if included[key] || isLive(records, key, now, a.opts.TTL) {
					continue
				}
				included[key] = true
				d.Items = append(d.Items, Item{
					Key:  key,
					Line: line.Text,
					URL:  url,
				})
			}
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].record.LastSeenAt.After(eligible[j].record.LastSeenAt)
	})
	if len(eligible) > a.opts.CarryoverCap {
		eligible = eligible[:a.opts.CarryoverCap]
	}
	for _, c := range eligible {
		key := c.ranked.Posting.Key()
		if included[key] {
			continue
		}
		included[key] = true
		p := c.ranked.Posting
		d.Items = append(d.Items, Item{
			Key:       key,
			Source:    p.SourceID,
			Title:     p.Title,
			Company:   p.Company,
			URL:       p.URL,
			Carryover: true,
		})
	}

	return d
}

func (a *Assembler) batchCap(pref model.Preference) int {
	if pref.LLMInputLimit > 0 {
		return min(pref.LLMInputLimit, maxBatchCap)
	}
	return a.opts.NewBatchCap
}

func (a *Assembler) maxBullets(pref model.Preference) int {
	if pref.MaxBullets > 0 {
		return min(pref.MaxBullets, maxBulletsCap)
	}
	return a.opts.MaxBullets
}

// capPerCompany keeps at most limit postings per company, preserving rank
// order so lower-ranked excess is what gets dropped.
func capPerCompany(postings []model.Posting, limit int) []model.Posting {
	counts := make(map[string]int)
	var out []model.Posting
	for _, p := range postings {
		c := strings.ToLower(strings.TrimSpace(p.Company))
		if counts[c] >= limit {
			continue
		}
		counts[c]++
		out = append(out, p)
	}
	return out
}

func isLive(records map[model.JobKey]model.SentRecord, key model.JobKey, now time.Time, ttl time.Duration) bool {
	rec, ok := records[key]
	return ok && rec.LiveAt(now, ttl)
}

func lineURL(key model.JobKey) string {
	if u, ok := strings.CutPrefix(string(key), "url:"); ok {
		return u
	}
	return ""
}
