package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/jobdigest/internal/model"
	"github.com/amishk599/jobdigest/internal/orchestrator"
)

type countingRunner struct {
	calls    atomic.Int32
	inflight atomic.Int32
	overlap  atomic.Bool
	delay    time.Duration
	err      error
	lastType atomic.Value
	finished atomic.Int32
	// stubborn batches run their full delay even after cancellation.
	stubborn bool
}

func (r *countingRunner) RunBatch(ctx context.Context, runType model.RunType, _ string) (orchestrator.Summary, error) {
	r.calls.Add(1)
	r.lastType.Store(runType)
	if r.inflight.Add(1) > 1 {
		r.overlap.Store(true)
	}
	defer r.inflight.Add(-1)
	defer r.finished.Add(1)
	if r.stubborn {
		time.Sleep(r.delay)
	} else {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
		}
	}
	return orchestrator.Summary{RunID: "r"}, r.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runFor(t *testing.T, s *Scheduler, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	time.Sleep(d)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on cancel, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not return within 2s after cancel")
	}
}

func TestNew_InvalidSpec(t *testing.T) {
	if _, err := New(&countingRunner{}, "every tuesday", discardLogger()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestRun_ImmediateScheduledRun(t *testing.T) {
	r := &countingRunner{}
	s, err := New(r, "@every 1h", discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	runFor(t, s, 100*time.Millisecond)

	if got := r.calls.Load(); got != 1 {
		t.Errorf("RunBatch calls = %d, want 1", got)
	}
	if got := r.lastType.Load(); got != model.RunScheduled {
		t.Errorf("run type = %v, want scheduled", got)
	}
}

func TestRun_TicksAndKeepsGoingAfterFailure(t *testing.T) {
	r := &countingRunner{err: fmt.Errorf("%w: down", model.ErrPersistenceUnavailable)}
	s, err := New(r, "@every 1s", discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	runFor(t, s, 1500*time.Millisecond)

	if got := r.calls.Load(); got < 2 {
		t.Errorf("RunBatch calls = %d, want >= 2", got)
	}
}

func TestRun_SkipsOverlappingTicks(t *testing.T) {
	r := &countingRunner{delay: 1300 * time.Millisecond}
	s, err := New(r, "@every 1s", discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	runFor(t, s, 1200*time.Millisecond)

	if r.overlap.Load() {
		t.Error("batches overlapped")
	}
	if got := r.calls.Load(); got != 1 {
		t.Errorf("RunBatch calls = %d, want 1 while the first batch is running", got)
	}
}

func TestRun_WaitsForImmediateBatch(t *testing.T) {
	r := &countingRunner{delay: 300 * time.Millisecond, stubborn: true}
	s, err := New(r, "@every 1h", discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	runFor(t, s, 50*time.Millisecond)

	if got := r.finished.Load(); got != 1 {
		t.Errorf("Run returned with %d finished batches, want 1", got)
	}
}
