package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobdigest/internal/model"
)

// FetcherBuilder turns a source config into a fetcher. *adapter.Registry
// satisfies it.
type FetcherBuilder interface {
	Build(src model.SourceConfig) (model.PostingFetcher, error)
}

// Entry is a configured source joined with its effective status.
type Entry struct {
	Config model.SourceConfig
	Status model.SourceStatus
}

// Registry merges the configured source list with persisted validation
// state and owns every state change.
type Registry struct {
	sources []model.SourceConfig
	store   model.SourceStateStore
	builder FetcherBuilder
	logger  *slog.Logger
	now     func() time.Time
}

// ErrUnknownSource is returned for operator actions on ids not in config.
var ErrUnknownSource = errors.New("unknown source")

// New creates a Registry over the configured sources.
func New(sources []model.SourceConfig, store model.SourceStateStore, builder FetcherBuilder, logger *slog.Logger) *Registry {
	return &Registry{
		sources: sources,
		store:   store,
		builder: builder,
		logger:  logger.With("component", "registry"),
		now:     time.Now,
	}
}

// Entries returns every configured source with its effective status,
// ordered by priority then id. A config change since the last probe demotes
// the source to an unprobed candidate; a paused flag in config pauses it.
func (r *Registry) Entries(ctx context.Context) ([]Entry, error) {
	statuses, err := r.store.SourceStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("load source statuses: %w", err)
	}

	entries := make([]Entry, 0, len(r.sources))
	for _, src := range r.sources {
		entries = append(entries, Entry{Config: src, Status: effectiveStatus(src, statuses[src.ID])})
	}
	sortEntries(entries)
	return entries, nil
}

func effectiveStatus(src model.SourceConfig, st model.SourceStatus) model.SourceStatus {
	hash := src.ConfigHash()
	switch {
	case st.SourceID == "":
		st = model.SourceStatus{SourceID: src.ID, State: model.SourceCandidate, ConfigHash: hash}
	case st.State != model.SourcePaused && st.ConfigHash != hash:
		st.State = model.SourceCandidate
		st.ConfigHash = hash
		st.LastValidatedAt = nil
		st.LastResult = "config changed"
	}
	if src.Paused {
		st.State = model.SourcePaused
	}
	return st
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Config, entries[j].Config
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})
}

// Resolve returns the sources allowed to participate in a run: active and
// probed at least once.
func (r *Registry) Resolve(ctx context.Context) ([]model.SourceConfig, error) {
	entries, err := r.Entries(ctx)
	if err != nil {
		return nil, err
	}
	var active []model.SourceConfig
	for _, e := range entries {
		if e.Status.State == model.SourceActive && e.Status.Probed() {
			active = append(active, e.Config)
		}
	}
	r.logger.Info("resolved sources", "active", len(active), "configured", len(entries))
	return active, nil
}

// Pause moves a source to paused. It stays there until Resume.
func (r *Registry) Pause(ctx context.Context, id, reason string) error {
	return r.operatorEvent(ctx, id, EventPause, reason)
}

// Resume clears a pause; the source must pass a probe before it is active.
func (r *Registry) Resume(ctx context.Context, id string) error {
	return r.operatorEvent(ctx, id, EventResume, "resumed by operator")
}

func (r *Registry) operatorEvent(ctx context.Context, id string, ev Event, note string) error {
	entries, err := r.Entries(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Config.ID != id {
			continue
		}
		if e.Config.Paused && ev == EventResume {
			return fmt.Errorf("source %s is paused in config; remove paused: true instead", id)
		}
		to, err := Next(e.Status.State, ev)
		if err != nil {
			return fmt.Errorf("source %s: %w", id, err)
		}
		st := e.Status
		st.State = to
		st.LastResult = note
		st.UpdatedAt = r.now()
		if err := r.store.SaveSourceStatus(ctx, st); err != nil {
			return fmt.Errorf("save source %s: %w", id, err)
		}
		r.logger.Info("source state changed", "source", id, "from", e.Status.State, "to", to, "event", ev)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownSource, id)
}

// Grouped buckets entries by effective state in report order.
func Grouped(entries []Entry) map[model.SourceState][]Entry {
	out := make(map[model.SourceState][]Entry)
	for _, e := range entries {
		out[e.Status.State] = append(out[e.Status.State], e)
	}
	return out
}

// ValidateOptions bounds a validation pass.
type ValidateOptions struct {
	Force        bool          // probe even when a recent result exists
	MaxAge       time.Duration // results younger than this are reused
	ProbeTimeout time.Duration
	MinPostings  int
	Concurrency  int
}

// ProbeResult describes what validation did with one source.
type ProbeResult struct {
	SourceID string
	From     model.SourceState
	To       model.SourceState
	Postings int
	Skipped  bool
	Err      error
}

// Validate probes candidates, stale sources and (with Force) everything not
// paused. One failing probe never stops the others; only a failure to read
// persisted state is returned as an error.
func (r *Registry) Validate(ctx context.Context, opts ValidateOptions) ([]ProbeResult, error) {
	entries, err := r.Entries(ctx)
	if err != nil {
		return nil, err
	}
	if opts.MinPostings < 1 {
		opts.MinPostings = 1
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}

	results := make([]ProbeResult, len(entries))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i, e := range entries {
		if e.Status.State == model.SourcePaused || !r.needsProbe(e, opts) {
			results[i] = ProbeResult{SourceID: e.Config.ID, From: e.Status.State, To: e.Status.State, Skipped: true}
			continue
		}
		g.Go(func() error {
			res := r.probe(gctx, e, opts)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

func (r *Registry) needsProbe(e Entry, opts ValidateOptions) bool {
	if opts.Force || !e.Status.Probed() || e.Status.State == model.SourceCandidate {
		return true
	}
	return r.now().Sub(*e.Status.LastValidatedAt) > opts.MaxAge
}

func (r *Registry) probe(ctx context.Context, e Entry, opts ValidateOptions) ProbeResult {
	logger := r.logger.With("source", e.Config.ID, "provider", e.Config.Provider)
	res := ProbeResult{SourceID: e.Config.ID, From: e.Status.State}

	count, probeErr := r.fetchCount(ctx, e.Config, opts.ProbeTimeout)

	if model.FetchErrorKindOf(probeErr) == model.FetchEmpty {
		probeErr = nil
	}

	st := e.Status
	var ev Event
	switch {
	case probeErr != nil:
		ev = EventProbeFailed
		st.ConsecutiveFailures++
		st.LastError = probeErr.Error()
		st.LastResult = "error"
		if kind := model.FetchErrorKindOf(probeErr); kind != "" {
			st.LastResult = "error: " + string(kind)
		}
	case count < opts.MinPostings:
		ev = EventProbeEmpty
		st.ConsecutiveFailures = 0
		st.LastError = ""
		st.LastResult = fmt.Sprintf("%d postings", count)
	default:
		ev = EventProbeOK
		st.ConsecutiveFailures = 0
		st.LastError = ""
		st.LastResult = fmt.Sprintf("%d postings", count)
	}

	to, err := Next(st.State, ev)
	if err != nil {
		res.To = st.State
		res.Err = err
		return res
	}

	now := r.now()
	st.State = to
	st.PostingCount = count
	st.LastValidatedAt = &now
	st.UpdatedAt = now
	st.ConfigHash = e.Config.ConfigHash()

	res.To = to
	res.Postings = count
	res.Err = probeErr

	if err := r.store.SaveSourceStatus(ctx, st); err != nil {
		logger.Error("failed to save source status", "error", err)
		res.Err = errors.Join(res.Err, err)
		return res
	}

	if probeErr != nil {
		logger.Warn("source probe failed", "from", res.From, "to", to, "error", probeErr)
	} else {
		logger.Info("source probed", "from", res.From, "to", to, "postings", count)
	}
	return res
}

func (r *Registry) fetchCount(ctx context.Context, src model.SourceConfig, timeout time.Duration) (int, error) {
	fetcher, err := r.builder.Build(src)
	if err != nil {
		return 0, &model.FetchError{SourceID: src.ID, Kind: model.FetchBadResponse, Err: err}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	postings, err := fetcher.FetchPostings(ctx)
	return len(postings), err
}
