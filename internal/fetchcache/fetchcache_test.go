package fetchcache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/jobdigest/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingFetcher struct {
	id       string
	delay    time.Duration
	err      error
	calls    *atomic.Int32
	inflight *atomic.Int32
	peak     *atomic.Int32
}

func (f countingFetcher) FetchPostings(ctx context.Context) ([]model.Posting, error) {
	f.calls.Add(1)
	if f.inflight != nil {
		n := f.inflight.Add(1)
		defer f.inflight.Add(-1)
		for {
			p := f.peak.Load()
			if n <= p || f.peak.CompareAndSwap(p, n) {
				break
			}
		}
	}
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return nil, &model.FetchError{SourceID: f.id, Kind: model.FetchTimeout, Err: ctx.Err()}
	}
	if f.err != nil {
		return nil, f.err
	}
	return []model.Posting{
		{SourceID: f.id, Provider: "test", ExternalID: f.id + "-1", Title: "Engineer " + f.id},
		{SourceID: f.id, Provider: "test", ExternalID: f.id + "-2", Title: "Developer " + f.id},
	}, nil
}

type builder struct {
	mu       sync.Mutex
	fetchers map[string]countingFetcher
	calls    map[string]*atomic.Int32
}

func newBuilder() *builder {
	return &builder{fetchers: map[string]countingFetcher{}, calls: map[string]*atomic.Int32{}}
}

func (b *builder) add(id string, delay time.Duration, err error) {
	c := &atomic.Int32{}
	b.calls[id] = c
	b.fetchers[id] = countingFetcher{id: id, delay: delay, err: err, calls: c}
}

func (b *builder) Build(src model.SourceConfig) (model.PostingFetcher, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.fetchers[src.ID]
	if !ok {
		return nil, errors.New("no fetcher")
	}
	return f, nil
}

func cfg(ids ...string) []model.SourceConfig {
	out := make([]model.SourceConfig, 0, len(ids))
	for i, id := range ids {
		out = append(out, model.SourceConfig{ID: id, Provider: "test", Priority: i})
	}
	return out
}

func TestSignature_OrderIndependent(t *testing.T) {
	if Signature(cfg("a", "b")) != Signature(cfg("b", "a")) {
		t.Error("signature should not depend on order")
	}
	changed := cfg("a", "b")
	changed[0].Params = map[string]any{"board_token": "other"}
	if Signature(changed) == Signature(cfg("a", "b")) {
		t.Error("signature should change when a config changes")
	}
}

func TestGet_ConcurrentCallersShareOneFetch(t *testing.T) {
	b := newBuilder()
	b.add("a", 50*time.Millisecond, nil)
	b.add("b", 50*time.Millisecond, nil)
	c := New(b, 4, time.Second, discardLogger())

	var wg sync.WaitGroup
	results := make([]Result, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Get(context.Background(), cfg("a", "b"))
			if err != nil {
				t.Errorf("get: %v", err)
			}
			results[i] = res
		}()
	}
	wg.Wait()

	if b.calls["a"].Load() != 1 || b.calls["b"].Load() != 1 {
		t.Fatalf("expected one fetch per source, got a=%d b=%d", b.calls["a"].Load(), b.calls["b"].Load())
	}
	for i, r := range results {
		if len(r.Postings) != 4 {
			t.Errorf("caller %d got %d postings", i, len(r.Postings))
		}
	}

	// A later caller hits the cached result.
	if _, err := c.Get(context.Background(), cfg("b", "a")); err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.Fetches() != 2 {
		t.Errorf("expected 2 network fetches in total, got %d", c.Fetches())
	}
}

func TestGet_OverlappingSetsFetchSharedSourceOnce(t *testing.T) {
	b := newBuilder()
	b.add("a", 0, nil)
	b.add("b", 0, nil)
	b.add("c", 0, nil)
	c := New(b, 4, time.Second, discardLogger())

	c.Prefetch(context.Background(), [][]model.SourceConfig{cfg("a", "b"), cfg("a", "c")})

	if got := b.calls["a"].Load(); got != 1 {
		t.Errorf("shared source fetched %d times", got)
	}
}

func TestGet_FailingSourceIsIsolated(t *testing.T) {
	b := newBuilder()
	b.add("good", 0, nil)
	b.add("bad", 0, &model.FetchError{SourceID: "bad", Kind: model.FetchUnreachable, Err: errors.New("dns")})
	c := New(b, 4, time.Second, discardLogger())

	res, err := c.Get(context.Background(), cfg("good", "bad"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(res.Postings) != 2 {
		t.Errorf("healthy source should contribute all its postings, got %d", len(res.Postings))
	}
	failed := res.Failed()
	if len(failed) != 1 || failed[0].SourceID != "bad" {
		t.Errorf("expected bad to be reported failed, got %+v", failed)
	}
	if used := res.SourcesUsed(); len(used) != 1 || used[0] != "good" {
		t.Errorf("unexpected sources used %v", used)
	}
}

func TestGet_TimeoutIsReportedNotEmpty(t *testing.T) {
	b := newBuilder()
	b.add("slow", time.Second, nil)
	c := New(b, 1, 20*time.Millisecond, discardLogger())

	res, _ := c.Get(context.Background(), cfg("slow"))
	if len(res.Sources) != 1 || model.FetchErrorKindOf(res.Sources[0].Err) != model.FetchTimeout {
		t.Fatalf("expected timeout error, got %+v", res.Sources)
	}
}

func TestGet_GlobalConnectionCap(t *testing.T) {
	b := newBuilder()
	inflight, peak := &atomic.Int32{}, &atomic.Int32{}
	ids := []string{"s1", "s2", "s3", "s4", "s5", "s6"}
	for _, id := range ids {
		c := &atomic.Int32{}
		b.calls[id] = c
		b.fetchers[id] = countingFetcher{id: id, delay: 20 * time.Millisecond, calls: c, inflight: inflight, peak: peak}
	}
	c := New(b, 2, time.Second, discardLogger())

	if _, err := c.Get(context.Background(), cfg(ids...)); err != nil {
		t.Fatalf("get: %v", err)
	}
	if peak.Load() > 2 {
		t.Errorf("expected at most 2 concurrent fetches, saw %d", peak.Load())
	}
}

func TestGet_BuildFailureIsPerSource(t *testing.T) {
	b := newBuilder()
	b.add("ok", 0, nil)
	c := New(b, 2, time.Second, discardLogger())

	res, err := c.Get(context.Background(), cfg("ok", "missing"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(res.Postings) != 2 || len(res.Failed()) != 1 {
		t.Errorf("unexpected result %+v", res)
	}
}
