package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/jobdigest/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memStateStore struct {
	mu       sync.Mutex
	statuses map[string]model.SourceStatus
}

func newMemStateStore() *memStateStore {
	return &memStateStore{statuses: make(map[string]model.SourceStatus)}
}

func (m *memStateStore) SourceStatuses(context.Context) (map[string]model.SourceStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.SourceStatus, len(m.statuses))
	for k, v := range m.statuses {
		out[k] = v
	}
	return out, nil
}

func (m *memStateStore) SaveSourceStatus(_ context.Context, st model.SourceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[st.SourceID] = st
	return nil
}

type fakeFetcher struct {
	n   int
	err error
}

func (f fakeFetcher) FetchPostings(context.Context) ([]model.Posting, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.n == 0 {
		return nil, &model.FetchError{Kind: model.FetchEmpty}
	}
	return make([]model.Posting, f.n), nil
}

type fakeBuilder struct {
	mu      sync.Mutex
	results map[string]fakeFetcher
	built   []string
}

func (b *fakeBuilder) Build(src model.SourceConfig) (model.PostingFetcher, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.built = append(b.built, src.ID)
	return b.results[src.ID], nil
}

func src(id string, priority int) model.SourceConfig {
	return model.SourceConfig{ID: id, Provider: "greenhouse", Company: id, Priority: priority, Params: map[string]any{"board_token": id}}
}

func TestValidate_CandidatesMoveThroughStateMachine(t *testing.T) {
	store := newMemStateStore()
	builder := &fakeBuilder{results: map[string]fakeFetcher{
		"ok":    {n: 5},
		"empty": {n: 0},
		"bad":   {err: &model.FetchError{Kind: model.FetchUnreachable, Err: errors.New("dns")}},
	}}
	r := New([]model.SourceConfig{src("ok", 1), src("empty", 2), src("bad", 3)}, store, builder, discardLogger())

	results, err := r.Validate(context.Background(), ValidateOptions{MaxAge: time.Hour})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	got := map[string]model.SourceState{}
	for _, res := range results {
		got[res.SourceID] = res.To
	}
	want := map[string]model.SourceState{
		"ok":    model.SourceActive,
		"empty": model.SourceCandidate,
		"bad":   model.SourceError,
	}
	for id, st := range want {
		if got[id] != st {
			t.Errorf("%s: got %s, want %s", id, got[id], st)
		}
	}

	if store.statuses["bad"].ConsecutiveFailures != 1 {
		t.Errorf("expected failure count 1, got %d", store.statuses["bad"].ConsecutiveFailures)
	}

	active, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(active) != 1 || active[0].ID != "ok" {
		t.Errorf("expected only ok active, got %+v", active)
	}
}

func TestResolve_NeverProbedIsNeverActive(t *testing.T) {
	store := newMemStateStore()
	// A status row claiming active but with no validation timestamp.
	store.statuses["x"] = model.SourceStatus{SourceID: "x", State: model.SourceActive, ConfigHash: src("x", 0).ConfigHash()}
	r := New([]model.SourceConfig{src("x", 0)}, store, &fakeBuilder{}, discardLogger())

	active, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("unprobed source must not be active, got %+v", active)
	}
}

func TestValidate_ReusesFreshResult(t *testing.T) {
	store := newMemStateStore()
	recent := time.Now().Add(-10 * time.Minute)
	s := src("fresh", 0)
	store.statuses["fresh"] = model.SourceStatus{SourceID: "fresh", State: model.SourceActive, ConfigHash: s.ConfigHash(), LastValidatedAt: &recent}
	builder := &fakeBuilder{results: map[string]fakeFetcher{"fresh": {err: errors.New("would fail")}}}
	r := New([]model.SourceConfig{s}, store, builder, discardLogger())

	results, err := r.Validate(context.Background(), ValidateOptions{MaxAge: time.Hour})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !results[0].Skipped || len(builder.built) != 0 {
		t.Fatalf("fresh result should be reused without probing: %+v", results[0])
	}

	results, _ = r.Validate(context.Background(), ValidateOptions{MaxAge: time.Hour, Force: true})
	if results[0].Skipped || results[0].To != model.SourceError {
		t.Errorf("forced probe should run and fail: %+v", results[0])
	}
}

func TestValidate_ConfigChangeDemotesToCandidate(t *testing.T) {
	store := newMemStateStore()
	recent := time.Now()
	store.statuses["c"] = model.SourceStatus{SourceID: "c", State: model.SourceActive, ConfigHash: "stale-hash", LastValidatedAt: &recent}
	r := New([]model.SourceConfig{src("c", 0)}, store, &fakeBuilder{}, discardLogger())

	entries, err := r.Entries(context.Background())
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if entries[0].Status.State != model.SourceCandidate || entries[0].Status.Probed() {
		t.Errorf("expected unprobed candidate after config change, got %+v", entries[0].Status)
	}
}

func TestPauseIsStickyUntilResume(t *testing.T) {
	store := newMemStateStore()
	builder := &fakeBuilder{results: map[string]fakeFetcher{"p": {n: 3}}}
	r := New([]model.SourceConfig{src("p", 0)}, store, builder, discardLogger())
	ctx := context.Background()

	if _, err := r.Validate(ctx, ValidateOptions{}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := r.Pause(ctx, "p", "flaky board"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	results, _ := r.Validate(ctx, ValidateOptions{Force: true})
	if !results[0].Skipped || results[0].To != model.SourcePaused {
		t.Fatalf("paused source must not be probed: %+v", results[0])
	}
	if active, _ := r.Resolve(ctx); len(active) != 0 {
		t.Fatalf("paused source must not resolve: %+v", active)
	}

	if err := r.Resume(ctx, "p"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if active, _ := r.Resolve(ctx); len(active) != 0 {
		t.Fatal("resumed source must pass a probe before it is active")
	}
	if _, err := r.Validate(ctx, ValidateOptions{}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if active, _ := r.Resolve(ctx); len(active) != 1 {
		t.Fatal("expected source active after resume and probe")
	}
}

func TestPause_UnknownSource(t *testing.T) {
	r := New(nil, newMemStateStore(), &fakeBuilder{}, discardLogger())
	if err := r.Pause(context.Background(), "ghost", ""); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("expected ErrUnknownSource, got %v", err)
	}
}

func TestConfigPausedFlag(t *testing.T) {
	s := src("cfg", 0)
	s.Paused = true
	r := New([]model.SourceConfig{s}, newMemStateStore(), &fakeBuilder{}, discardLogger())
	entries, _ := r.Entries(context.Background())
	if entries[0].Status.State != model.SourcePaused {
		t.Errorf("expected paused, got %s", entries[0].Status.State)
	}
	if err := r.Resume(context.Background(), "cfg"); err == nil {
		t.Error("resume should refuse a config-paused source")
	}
}

func TestGroupedAndOrder(t *testing.T) {
	store := newMemStateStore()
	builder := &fakeBuilder{results: map[string]fakeFetcher{"a": {n: 1}, "b": {n: 1}}}
	r := New([]model.SourceConfig{src("b", 2), src("a", 1), src("z", 0)}, store, builder, discardLogger())
	store.statuses["z"] = model.SourceStatus{SourceID: "z", State: model.SourcePaused, ConfigHash: src("z", 0).ConfigHash()}

	if _, err := r.Validate(context.Background(), ValidateOptions{}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	entries, _ := r.Entries(context.Background())
	if entries[0].Config.ID != "z" || entries[1].Config.ID != "a" {
		t.Errorf("entries should be ordered by priority: %v, %v", entries[0].Config.ID, entries[1].Config.ID)
	}
	g := Grouped(entries)
	if len(g[model.SourceActive]) != 2 || len(g[model.SourcePaused]) != 1 {
		t.Errorf("unexpected grouping: %+v", g)
	}
}
