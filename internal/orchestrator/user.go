package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/amishk599/jobdigest/internal/digest"
	"github.com/amishk599/jobdigest/internal/fetchcache"
	"github.com/amishk599/jobdigest/internal/filter"
	"github.com/amishk599/jobdigest/internal/model"
	"github.com/amishk599/jobdigest/internal/retry"
)

// Skip reasons recorded in RunOutcome.Detail.
const (
	DetailAlertFrequency = "alert_frequency"
	DetailEmptyDigest    = "empty_digest"
	DetailLocked         = "run_in_progress"
)

// runUser drives one user through the pipeline and commits the result. The
// returned error is non-nil only when the store is unreachable.
func (o *Orchestrator) runUser(ctx context.Context, runID string, runType model.RunType, job userJob, cache *fetchcache.Cache) (res UserResult, err error) {
	started := o.now()
	logger := o.logger.With("run_id", runID, "user", job.user.ID)
	res.Outcome = model.RunOutcome{
		RunID:     runID,
		UserID:    job.user.ID,
		Type:      runType,
		StartedAt: started,
	}

	release, lockErr := o.locker.Acquire(ctx, job.user.ID)
	if lockErr != nil {
		if errors.Is(lockErr, model.ErrLocked) {
			logger.Warn("user already running, skipping")
			return o.conclude(ctx, logger, &res, model.RunSkipped, DetailLocked, model.RunCommit{}, false)
		}
		return o.conclude(ctx, logger, &res, model.RunError, "acquire lock: "+lockErr.Error(), model.RunCommit{}, false)
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("user pipeline panicked", "panic", r, "stack", string(debug.Stack()))
			detail := fmt.Sprintf("%v: %v", errPanic, r)
			err = o.finish(ctx, logger, &res, model.RunError, detail, model.RunCommit{}, false)
		}
	}()

	if job.prefErr != nil {
		return o.conclude(ctx, logger, &res, model.RunError, "load preference: "+job.prefErr.Error(), model.RunCommit{}, false)
	}

	prev, stateErr := o.ledger.RunState(ctx, job.user.ID)
	if stateErr != nil {
		return o.conclude(ctx, logger, &res, model.RunError, "load run state: "+stateErr.Error(), model.RunCommit{}, false)
	}

	// The gate leaves UserRunState untouched so the interval keeps counting
	// from the last run that actually executed.
	if runType == model.RunScheduled {
		if window := job.pref.AlertFrequency.MinInterval(); window > 0 && prev.LastRunAt != nil && started.Sub(*prev.LastRunAt) < window {
			logger.Info("skipping user inside alert window",
				"frequency", job.pref.AlertFrequency,
				"last_run_at", prev.LastRunAt.Format(time.RFC3339),
			)
			return o.conclude(ctx, logger, &res, model.RunSkipped, DetailAlertFrequency, model.RunCommit{}, false)
		}
	}

	fetched, fetchErr := cache.Get(ctx, job.sources)
	if fetchErr != nil {
		return o.conclude(ctx, logger, &res, model.RunError, "fetch: "+fetchErr.Error(), model.RunCommit{}, false)
	}
	for _, f := range fetched.Failed() {
		logger.Warn("source unavailable this run", "source", f.SourceID, "error", f.Err)
	}
	res.Outcome.Fetched = len(fetched.Postings)
	res.Outcome.SourcesUsed = sortedUsed(fetched.SourcesUsed())

	ranked := filter.Rank(fetched.Postings, job.pref, Priorities(job.sources))
	records, recErr := o.ledger.SentRecords(ctx, job.user.ID)
	if recErr != nil {
		return o.conclude(ctx, logger, &res, model.RunError, "load sent records: "+recErr.Error(), model.RunCommit{}, false)
	}

	d := o.assembler.Assemble(ctx, ranked, records, job.pref, started)
	res.Outcome.KeywordMatched = d.Matched

	added, removed := keyDelta(prev.Keys, d.Current)
	logger.Info("digest assembled",
		"fetched", res.Outcome.Fetched,
		"matched", d.Matched,
		"new_candidates", d.NewCandidates,
		"submitted", d.Submitted,
		"items", len(d.Items),
		"new", d.NewCount(),
		"live_added", added,
		"live_removed", removed,
	)

	state := &model.UserRunState{
		UserID:    job.user.ID,
		Keys:      d.Current,
		LastRunAt: &started,
	}

	if d.Empty() {
		detail := DetailEmptyDigest
		if d.RelevanceErr != nil {
			detail += "; relevance: " + d.RelevanceErr.Error()
		}
		state.LastStatus = model.RunSkipped
		return o.conclude(ctx, logger, &res, model.RunSkipped, detail, model.RunCommit{Seen: d.Confirmed, State: state}, false)
	}

	msg, renderErr := digest.Render(d, job.user, job.pref, o.opts.ClusterThreshold)
	if renderErr != nil {
		return o.conclude(ctx, logger, &res, model.RunError, "render: "+renderErr.Error(), model.RunCommit{}, false)
	}
	res.Message = &msg

	if !o.opts.DryRun {
		sendCtx, cancel := context.WithTimeout(ctx, o.opts.MailTimeout)
		sendErr := o.mailer.Send(sendCtx, msg)
		cancel()
		if sendErr != nil {
			return o.conclude(ctx, logger, &res, model.RunError, "send: "+sendErr.Error(), model.RunCommit{}, false)
		}
	}

	res.Outcome.Emailed = len(d.Items)
	var detail []string
	if d.RelevanceErr != nil {
		detail = append(detail, "relevance: "+d.RelevanceErr.Error())
	}
	state.LastStatus = model.RunSuccess
	return o.conclude(ctx, logger, &res, model.RunSuccess, strings.Join(detail, "; "),
		model.RunCommit{Sent: d.Entries(), Seen: d.Confirmed, State: state}, true)
}

// conclude finishes res and returns it by value.
func (o *Orchestrator) conclude(ctx context.Context, logger *slog.Logger, res *UserResult, status model.RunStatus, detail string, c model.RunCommit, sent bool) (UserResult, error) {
	err := o.finish(ctx, logger, res, status, detail, c, sent)
	return *res, err
}

// finish stamps the outcome and commits it with c. A commit that still fails
// after retries is logged at error level; when the message already went out
// the ledger is now behind reality. If the store then fails a ping the batch
// must stop.
func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, res *UserResult, status model.RunStatus, detail string, c model.RunCommit, sent bool) error {
	res.Outcome.Status = status
	res.Outcome.Detail = detail
	res.Outcome.FinishedAt = o.now()
	c.Outcome = res.Outcome
	c.At = res.Outcome.StartedAt

	if status == model.RunError {
		logger.Error("user run failed", "detail", detail)
	}

	// The outcome is recorded even when the batch is being shut down; only
	// the commit timeout can cut it short.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.CommitTimeout)
	defer cancel()

	policy := retry.Policy{
		MaxRetries: o.opts.LedgerRetries,
		BaseDelay:  o.opts.LedgerRetryDelay,
		Retryable:  func(err error) bool { return ctx.Err() == nil },
	}
	err := retry.Do(ctx, policy, logger, func(ctx context.Context) error {
		return o.ledger.CommitRun(ctx, c)
	})
	if err == nil {
		logger.Debug("run committed", "status", status, "sent", len(c.Sent), "seen", len(c.Seen))
		return nil
	}

	if sent {
		logger.Error("ledger commit failed after send; items may be resent next run",
			"dedup_at_risk", true,
			"items", len(c.Sent),
			"error", err,
		)
	} else {
		logger.Error("ledger commit failed", "status", status, "error", err)
	}

	if pingErr := o.ledger.Ping(ctx); pingErr != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistenceUnavailable, pingErr)
	}
	return nil
}
