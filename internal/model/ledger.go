package model

import (
	"context"
	"time"
)

// SentRecord is the durable dedup ledger entry for one (user, job key).
type SentRecord struct {
	UserID      string
	Key         JobKey
	Source      string
	Title       string
	Company     string
	URL         string
	FirstSentAt time.Time
	LastSeenAt  time.Time
}

// LiveAt reports whether the record was confirmed within ttl of now.
func (r SentRecord) LiveAt(now time.Time, ttl time.Duration) bool {
	return !r.LastSeenAt.Before(now.Add(-ttl))
}

// UserRunState is the previous run's live key set for a user. It feeds
// add/remove deltas in logs and is never used for dedup.
type UserRunState struct {
	UserID     string
	Keys       []JobKey
	LastRunAt  *time.Time
	LastStatus RunStatus
}

// RunStatus is the result of one user's run attempt.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunSkipped RunStatus = "skipped"
	RunError   RunStatus = "error"
)

// RunType distinguishes cron-triggered runs from operator-triggered ones.
type RunType string

const (
	RunScheduled RunType = "scheduled"
	RunManual    RunType = "manual"
)

// RunOutcome is one append-only audit row per user per run attempt.
type RunOutcome struct {
	RunID          string
	UserID         string
	Type           RunType
	Status         RunStatus
	Fetched        int
	KeywordMatched int
	Emailed        int
	SourcesUsed    []string
	Detail         string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// SentEntry is one digest item to upsert into the ledger.
type SentEntry struct {
	Key     JobKey
	Source  string
	Title   string
	Company string
	URL     string
}

// RunCommit is everything a single user's run persists. Stores apply it as
// one transaction.
type RunCommit struct {
	Outcome RunOutcome
	Sent    []SentEntry   // first_sent_at set if absent, last_seen_at refreshed
	Seen    []JobKey      // last_seen_at refreshed on existing records only
	State   *UserRunState // nil leaves the stored state unchanged
	At      time.Time
}

// LedgerStore persists the engine-owned per-user state.
type LedgerStore interface {
	SentRecords(ctx context.Context, userID string) (map[JobKey]SentRecord, error)
	RunState(ctx context.Context, userID string) (UserRunState, error)
	CommitRun(ctx context.Context, c RunCommit) error
	RecentOutcomes(ctx context.Context, userID string, limit int) ([]RunOutcome, error)
	Ping(ctx context.Context) error
}

// SourceStateStore persists validator results.
type SourceStateStore interface {
	SourceStatuses(ctx context.Context) (map[string]SourceStatus, error)
	SaveSourceStatus(ctx context.Context, st SourceStatus) error
}

// AccountStore is the read side of the account and preference collaborator.
type AccountStore interface {
	ActiveUsers(ctx context.Context) ([]User, error)
	Preference(ctx context.Context, userID string) (Preference, error)
}

// RunLocker guarantees single-flight runs per user.
type RunLocker interface {
	Acquire(ctx context.Context, userID string) (release func(), err error)
}
