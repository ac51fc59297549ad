// Package orchestrator runs digest batches: resolve sources once, fetch each
// distinct source set once, then drive every user through
// filter → assemble → render → send → commit.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobdigest/internal/digest"
	"github.com/amishk599/jobdigest/internal/fetchcache"
	"github.com/amishk599/jobdigest/internal/model"
	"github.com/amishk599/jobdigest/internal/registry"
)

// SourceResolver decides which configured sources may run. *registry.Registry
// satisfies it.
type SourceResolver interface {
	Validate(ctx context.Context, opts registry.ValidateOptions) ([]registry.ProbeResult, error)
	Resolve(ctx context.Context) ([]model.SourceConfig, error)
}

// Ledger is the engine-owned state the orchestrator reads and commits.
type Ledger interface {
	model.LedgerStore
	PruneSentRecords(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Options tunes a batch.
type Options struct {
	UserConcurrency  int
	LedgerRetries    int
	LedgerRetryDelay time.Duration
	CommitTimeout    time.Duration // bounds a ledger commit, retries included
	MailTimeout      time.Duration
	ClusterThreshold int
	Retention        time.Duration // 0 disables pruning
	FetchConnections int
	FetchTimeout     time.Duration
	Validation       registry.ValidateOptions
	DryRun           bool // render but never send
}

// UserResult is one user's share of a batch.
type UserResult struct {
	Outcome model.RunOutcome
	Message *model.Message // rendered message, nil when nothing was rendered
}

// Summary reports a finished batch.
type Summary struct {
	RunID   string
	Type    model.RunType
	Users   []UserResult
	Sources int // active sources after resolution
	Fetches int // outbound source fetches performed
}

// Count returns how many users ended with status.
func (s Summary) Count(status model.RunStatus) int {
	n := 0
	for _, u := range s.Users {
		if u.Outcome.Status == status {
			n++
		}
	}
	return n
}

// Orchestrator owns the batch pipeline.
type Orchestrator struct {
	sources   SourceResolver
	builder   fetchcache.FetcherBuilder
	accounts  model.AccountStore
	ledger    Ledger
	locker    model.RunLocker
	assembler *digest.Assembler
	mailer    model.Mailer
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an orchestrator wired with all its dependencies.
func New(
	sources SourceResolver,
	builder fetchcache.FetcherBuilder,
	accounts model.AccountStore,
	ledger Ledger,
	locker model.RunLocker,
	assembler *digest.Assembler,
	mailer model.Mailer,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	if opts.UserConcurrency < 1 {
		opts.UserConcurrency = 1
	}
	if opts.LedgerRetryDelay <= 0 {
		opts.LedgerRetryDelay = 500 * time.Millisecond
	}
	if opts.MailTimeout <= 0 {
		opts.MailTimeout = 30 * time.Second
	}
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = 30 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	return &Orchestrator{
		sources:   sources,
		builder:   builder,
		accounts:  accounts,
		ledger:    ledger,
		locker:    locker,
		assembler: assembler,
		mailer:    mailer,
		opts:      opts,
		logger:    logger.With("component", "orchestrator"),
		now:       time.Now,
	}
}

// userJob is one user queued for the batch.
type userJob struct {
	user    model.User
	pref    model.Preference
	prefErr error
	sources []model.SourceConfig
}

// RunBatch runs every active user, or only onlyUser when it is non-empty.
// Per-user failures become error outcomes; only an unreachable store halts
// the batch.
func (o *Orchestrator) RunBatch(ctx context.Context, runType model.RunType, onlyUser string) (Summary, error) {
	sum := Summary{RunID: uuid.NewString(), Type: runType}
	logger := o.logger.With("run_id", sum.RunID, "type", runType)

	if err := o.ledger.Ping(ctx); err != nil {
		return sum, fmt.Errorf("%w: %v", model.ErrPersistenceUnavailable, err)
	}

	if _, err := o.sources.Validate(ctx, o.opts.Validation); err != nil {
		logger.Warn("source validation failed; resolving with stored states", "error", err)
	}
	active, err := o.sources.Resolve(ctx)
	if err != nil {
		return sum, fmt.Errorf("resolving sources: %w", err)
	}
	sum.Sources = len(active)

	users, err := o.accounts.ActiveUsers(ctx)
	if err != nil {
		return sum, fmt.Errorf("loading active users: %w", err)
	}
	if onlyUser != "" {
		users = selectUser(users, onlyUser)
		if len(users) == 0 {
			return sum, fmt.Errorf("user %q is not an active user", onlyUser)
		}
	}

	jobs := make([]userJob, len(users))
	var sets [][]model.SourceConfig
	for i, u := range users {
		pref, err := o.accounts.Preference(ctx, u.ID)
		jobs[i] = userJob{user: u, pref: pref, prefErr: err}
		if err == nil {
			jobs[i].sources = SourcesFor(active, pref.Sources)
			sets = append(sets, jobs[i].sources)
		}
	}

	cache := fetchcache.New(o.builder, o.opts.FetchConnections, o.opts.FetchTimeout, logger)
	cache.Prefetch(ctx, sets)

	logger.Info("starting batch", "users", len(jobs), "sources", len(active))

	results := make([]UserResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.UserConcurrency)
	for i, job := range jobs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := o.runUser(gctx, sum.RunID, runType, job, cache)
			results[i] = res
			return err
		})
	}
	runErr := g.Wait()

	for _, r := range results {
		if r.Outcome.UserID != "" {
			sum.Users = append(sum.Users, r)
		}
	}
	sum.Fetches = cache.Fetches()

	if runErr != nil {
		logger.Error("batch halted", "error", runErr, "completed_users", len(sum.Users))
		return sum, runErr
	}

	if o.opts.Retention > 0 {
		n, err := o.ledger.PruneSentRecords(ctx, o.opts.Retention)
		if err != nil {
			logger.Warn("pruning sent records failed", "error", err)
		} else if n > 0 {
			logger.Info("pruned sent records", "count", n, "older_than", o.opts.Retention)
		}
	}

	logger.Info("batch finished",
		"users", len(sum.Users),
		"success", sum.Count(model.RunSuccess),
		"skipped", sum.Count(model.RunSkipped),
		"error", sum.Count(model.RunError),
		"fetches", sum.Fetches,
	)
	return sum, nil
}

func selectUser(users []model.User, id string) []model.User {
	for _, u := range users {
		if u.ID == id {
			return []model.User{u}
		}
	}
	return nil
}

// SourcesFor narrows active sources to those a preference names by provider
// type or source id. No names means every active source.
func SourcesFor(active []model.SourceConfig, names []string) []model.SourceConfig {
	if len(names) == 0 {
		return active
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []model.SourceConfig
	for _, s := range active {
		if want[s.ID] || want[s.Provider] {
			out = append(out, s)
		}
	}
	return out
}

// keyDelta reports keys added and removed between two live sets.
func keyDelta(prev, cur []model.JobKey) (added, removed int) {
	before := make(map[model.JobKey]bool, len(prev))
	for _, k := range prev {
		before[k] = true
	}
	now := make(map[model.JobKey]bool, len(cur))
	for _, k := range cur {
		now[k] = true
		if !before[k] {
			added++
		}
	}
	for k := range before {
		if !now[k] {
			removed++
		}
	}
	return added, removed
}

// Priorities maps source ids to their configured tie-break priority.
func Priorities(sources []model.SourceConfig) map[string]int {
	out := make(map[string]int, len(sources))
	for _, s := range sources {
		out[s.ID] = s.Priority
	}
	return out
}

func sortedUsed(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

var errPanic = errors.New("user pipeline panicked")
