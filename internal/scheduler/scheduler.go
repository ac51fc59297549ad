// Package scheduler triggers digest batches on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/amishk599/jobdigest/internal/model"
	"github.com/amishk599/jobdigest/internal/orchestrator"
)

// BatchRunner runs one batch. *orchestrator.Orchestrator satisfies it.
type BatchRunner interface {
	RunBatch(ctx context.Context, runType model.RunType, onlyUser string) (orchestrator.Summary, error)
}

// Scheduler owns the cron loop. A tick that fires while the previous batch is
// still running is skipped, so batches never overlap.
type Scheduler struct {
	runner BatchRunner
	spec   string
	cron   *cron.Cron
	logger *slog.Logger
}

// New validates spec and prepares a scheduler. Standard five-field specs and
// descriptors such as "@every 6h" or "@daily" are accepted.
func New(runner BatchRunner, spec string, logger *slog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", spec, err)
	}
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger}
	return &Scheduler{
		runner: runner,
		spec:   spec,
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		logger: logger,
	}, nil
}

// Run runs one batch immediately, then one per schedule tick. It returns nil
// when ctx is cancelled, after any in-flight batch has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger{s.logger})).Then(cron.FuncJob(func() {
		s.runOnce(ctx)
	}))
	if _, err := s.cron.AddJob(s.spec, job); err != nil {
		return fmt.Errorf("cron.AddJob: %w", err)
	}

	s.logger.Info("starting scheduler", "schedule", s.spec)
	s.cron.Start()

	// The immediate run shares the skip guard with scheduled ticks.
	first := make(chan struct{})
	go func() {
		defer close(first)
		cron.NewChain(cron.Recover(cronLogger{s.logger})).Then(job).Run()
	}()

	<-ctx.Done()
	s.logger.Info("shutting down scheduler")
	<-s.cron.Stop().Done()
	<-first
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	sum, err := s.runner.RunBatch(ctx, model.RunScheduled, "")
	if err != nil {
		if errors.Is(err, model.ErrPersistenceUnavailable) {
			s.logger.Error("batch halted: store unreachable, retrying next tick", "run_id", sum.RunID, "error", err)
			return
		}
		s.logger.Error("batch failed", "run_id", sum.RunID, "error", err)
		return
	}
	s.logger.Info("batch complete",
		"run_id", sum.RunID,
		"users", len(sum.Users),
		"errors", sum.Count(model.RunError),
	)
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
