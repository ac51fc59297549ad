// Package fetchcache deduplicates source fetches within one run. A Cache is
// built per run invocation and dropped afterwards; nothing outlives the run.
package fetchcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/amishk599/jobdigest/internal/model"
)

// FetcherBuilder turns a source config into a fetcher.
type FetcherBuilder interface {
	Build(src model.SourceConfig) (model.PostingFetcher, error)
}

// SourceResult is the outcome of fetching one source.
type SourceResult struct {
	SourceID string
	Postings []model.Posting
	Err      error // always *model.FetchError when set
	Duration time.Duration
}

// Result is the merged outcome for a source set. Failed sources contribute
// nothing; healthy ones contribute everything they returned.
type Result struct {
	Signature string
	Postings  []model.Posting
	Sources   []SourceResult
}

// SourcesUsed lists ids of sources that contributed at least one posting.
func (r Result) SourcesUsed() []string {
	var ids []string
	for _, s := range r.Sources {
		if s.Err == nil && len(s.Postings) > 0 {
			ids = append(ids, s.SourceID)
		}
	}
	return ids
}

// Failed lists the sources that errored, excluding empty ones.
func (r Result) Failed() []SourceResult {
	var out []SourceResult
	for _, s := range r.Sources {
		if s.Err != nil && model.FetchErrorKindOf(s.Err) != model.FetchEmpty {
			out = append(out, s)
		}
	}
	return out
}

// Cache coalesces fetches at two levels: whole source sets by signature and
// individual sources, so overlapping sets never fetch a source twice.
type Cache struct {
	builder FetcherBuilder
	timeout time.Duration
	conns   *semaphore.Weighted
	logger  *slog.Logger

	sets    singleflight.Group
	sources singleflight.Group

	mu         sync.Mutex
	setCache   map[string]Result
	sourceMemo map[string]SourceResult
	fetches    int
}

// New creates a run-scoped cache. maxConns caps simultaneous outbound
// fetches across every signature; timeout bounds each source fetch.
func New(builder FetcherBuilder, maxConns int, timeout time.Duration, logger *slog.Logger) *Cache {
	if maxConns < 1 {
		maxConns = 1
	}
	return &Cache{
		builder:    builder,
		timeout:    timeout,
		conns:      semaphore.NewWeighted(int64(maxConns)),
		logger:     logger.With("component", "fetchcache"),
		setCache:   make(map[string]Result),
		sourceMemo: make(map[string]SourceResult),
	}
}

// Signature canonically identifies a source set: sorted source ids, each
// with its config hash.
func Signature(sources []model.SourceConfig) string {
	parts := make([]string, 0, len(sources))
	for _, s := range sources {
		parts = append(parts, s.ID+"@"+s.ConfigHash())
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:12])
}

// Get returns postings for the source set, fetching at most once per
// signature per run. Concurrent callers with the same signature share one
// in-flight fetch.
func (c *Cache) Get(ctx context.Context, sources []model.SourceConfig) (Result, error) {
	sig := Signature(sources)

	c.mu.Lock()
	if res, ok := c.setCache[sig]; ok {
		c.mu.Unlock()
		return res, nil
	}
	c.mu.Unlock()

	v, err, shared := c.sets.Do(sig, func() (any, error) {
		// A caller that missed the cache may arrive after the flight landed.
		c.mu.Lock()
		if res, ok := c.setCache[sig]; ok {
			c.mu.Unlock()
			return res, nil
		}
		c.mu.Unlock()

		res := c.fetchSet(ctx, sig, sources)
		c.mu.Lock()
		c.setCache[sig] = res
		c.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return Result{}, err
	}
	if shared {
		c.logger.Debug("joined in-flight fetch", "signature", sig)
	}
	return v.(Result), nil
}

// Fetches reports how many network fetches this cache performed.
func (c *Cache) Fetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

func (c *Cache) fetchSet(ctx context.Context, sig string, sources []model.SourceConfig) Result {
	ordered := append([]model.SourceConfig(nil), sources...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].ID < ordered[j].ID
	})

	results := make([]SourceResult, len(ordered))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range ordered {
		g.Go(func() error {
			results[i] = c.fetchSource(gctx, src)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Signature: sig, Sources: results}
	seen := make(map[model.JobKey]bool)
	for _, sr := range results {
		for _, p := range sr.Postings {
			k := p.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			res.Postings = append(res.Postings, p)
		}
	}
	c.logger.Info("source set fetched",
		"signature", sig,
		"sources", len(ordered),
		"postings", len(res.Postings),
		"failed", len(res.Failed()),
	)
	return res
}

func (c *Cache) fetchSource(ctx context.Context, src model.SourceConfig) SourceResult {
	key := src.ID + "@" + src.ConfigHash()

	c.mu.Lock()
	if sr, ok := c.sourceMemo[key]; ok {
		c.mu.Unlock()
		return sr
	}
	c.mu.Unlock()

	v, _, _ := c.sources.Do(key, func() (any, error) {
		c.mu.Lock()
		if sr, ok := c.sourceMemo[key]; ok {
			c.mu.Unlock()
			return sr, nil
		}
		c.mu.Unlock()

		sr := c.doFetch(ctx, src)
		c.mu.Lock()
		c.sourceMemo[key] = sr
		c.mu.Unlock()
		return sr, nil
	})
	return v.(SourceResult)
}

func (c *Cache) doFetch(ctx context.Context, src model.SourceConfig) SourceResult {
	logger := c.logger.With("source", src.ID, "provider", src.Provider)
	sr := SourceResult{SourceID: src.ID}

	fetcher, err := c.builder.Build(src)
	if err != nil {
		sr.Err = &model.FetchError{SourceID: src.ID, Kind: model.FetchBadResponse, Err: err}
		logger.Warn("source build failed", "error", err)
		return sr
	}

	if err := c.conns.Acquire(ctx, 1); err != nil {
		sr.Err = &model.FetchError{SourceID: src.ID, Kind: model.FetchTimeout, Err: err}
		return sr
	}
	defer c.conns.Release(1)

	fctx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	postings, err := fetcher.FetchPostings(fctx)
	sr.Duration = time.Since(start)

	c.mu.Lock()
	c.fetches++
	c.mu.Unlock()

	if err != nil {
		sr.Err = err
		if model.FetchErrorKindOf(err) == model.FetchEmpty {
			logger.Info("source returned no postings", "duration", sr.Duration)
		} else {
			logger.Warn("source fetch failed", "error", err, "duration", sr.Duration)
		}
		return sr
	}
	sr.Postings = postings
	logger.Debug("source fetched", "postings", len(postings), "duration", sr.Duration)
	return sr
}

// Prefetch warms the cache for several source sets in parallel, one worker
// per unique signature. Per-source failures are captured in the results.
func (c *Cache) Prefetch(ctx context.Context, sets [][]model.SourceConfig) {
	unique := make(map[string][]model.SourceConfig)
	for _, s := range sets {
		unique[Signature(s)] = s
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range unique {
		g.Go(func() error {
			_, err := c.Get(gctx, s)
			return err
		})
	}
	_ = g.Wait()
}
