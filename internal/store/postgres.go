package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amishk599/jobdigest/internal/model"
)

var _ Store = (*PostgresStore)(nil)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id       TEXT PRIMARY KEY,
	email    TEXT NOT NULL,
	timezone TEXT NOT NULL DEFAULT 'UTC',
	active   BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE TABLE IF NOT EXISTS user_preferences (
	user_id            TEXT PRIMARY KEY REFERENCES users(id),
	keyword            TEXT NOT NULL DEFAULT '',
	target_roles       TEXT[] NOT NULL DEFAULT '{}',
	tech_stack_tags    TEXT[] NOT NULL DEFAULT '{}',
	negative_keywords  TEXT[] NOT NULL DEFAULT '{}',
	remote_only        BOOLEAN NOT NULL DEFAULT FALSE,
	strict_senior_only BOOLEAN NOT NULL DEFAULT FALSE,
	experience_level   TEXT NOT NULL DEFAULT '',
	sources            TEXT[] NOT NULL DEFAULT '{}',
	llm_input_limit    INTEGER NOT NULL DEFAULT 0,
	max_bullets        INTEGER NOT NULL DEFAULT 0,
	alert_frequency    TEXT NOT NULL DEFAULT 'always'
);
CREATE TABLE IF NOT EXISTS sent_job_records (
	user_id       TEXT NOT NULL,
	job_key       TEXT NOT NULL,
	source        TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL DEFAULT '',
	company       TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL DEFAULT '',
	first_sent_at TIMESTAMPTZ NOT NULL,
	last_seen_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, job_key)
);
CREATE TABLE IF NOT EXISTS user_run_state (
	user_id     TEXT PRIMARY KEY,
	job_keys    TEXT[] NOT NULL DEFAULT '{}',
	last_run_at TIMESTAMPTZ,
	last_status TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS run_outcomes (
	id              BIGSERIAL PRIMARY KEY,
	run_id          TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	run_type        TEXT NOT NULL,
	status          TEXT NOT NULL,
	fetched         INTEGER NOT NULL DEFAULT 0,
	keyword_matched INTEGER NOT NULL DEFAULT 0,
	emailed         INTEGER NOT NULL DEFAULT 0,
	sources_used    TEXT[] NOT NULL DEFAULT '{}',
	detail          TEXT NOT NULL DEFAULT '',
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_outcomes_user ON run_outcomes (user_id, id);
CREATE TABLE IF NOT EXISTS source_status (
	source_id            TEXT PRIMARY KEY,
	state                TEXT NOT NULL,
	config_hash          TEXT NOT NULL DEFAULT '',
	last_validated_at    TIMESTAMPTZ,
	last_result          TEXT NOT NULL DEFAULT '',
	posting_count        INTEGER NOT NULL DEFAULT 0,
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	last_error           TEXT NOT NULL DEFAULT '',
	updated_at           TIMESTAMPTZ NOT NULL
);
`

// PostgresStore keeps engine state in Postgres through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, verifies the connection and ensures the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func keyStrings(keys []model.JobKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistenceUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) SentRecords(ctx context.Context, userID string) (map[model.JobKey]model.SentRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT job_key, source, title, company, url, first_sent_at, last_seen_at
		 FROM sent_job_records WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying sent records for %s: %w", userID, err)
	}
	defer rows.Close()

	out := make(map[model.JobKey]model.SentRecord)
	for rows.Next() {
		var r model.SentRecord
		var key string
		if err := rows.Scan(&key, &r.Source, &r.Title, &r.Company, &r.URL, &r.FirstSentAt, &r.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scanning sent record: %w", err)
		}
		r.UserID = userID
		r.Key = model.JobKey(key)
		out[r.Key] = r
	}
	return out, rows.Err()
}

func (s *PostgresStore) RunState(ctx context.Context, userID string) (model.UserRunState, error) {
	st := model.UserRunState{UserID: userID}
	var keys []string
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT job_keys, last_run_at, last_status FROM user_run_state WHERE user_id = $1`, userID).
		Scan(&keys, &st.LastRunAt, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("querying run state for %s: %w", userID, err)
	}
	for _, k := range keys {
		st.Keys = append(st.Keys, model.JobKey(k))
	}
	st.LastStatus = model.RunStatus(status)
	return st, nil
}

// CommitRun applies one user's run in a single transaction.
func (s *PostgresStore) CommitRun(ctx context.Context, c model.RunCommit) error {
	userID := c.Outcome.UserID
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning commit for %s: %w", userID, err)
	}
	defer tx.Rollback(ctx)

	for _, e := range c.Sent {
		_, err := tx.Exec(ctx,
			`INSERT INTO sent_job_records (user_id, job_key, source, title, company, url, first_sent_at, last_seen_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			 ON CONFLICT (user_id, job_key) DO UPDATE SET
			   last_seen_at = EXCLUDED.last_seen_at,
			   source = EXCLUDED.source,
			   title = EXCLUDED.title,
			   company = EXCLUDED.company,
			   url = EXCLUDED.url`,
			userID, string(e.Key), e.Source, e.Title, e.Company, e.URL, c.At)
		if err != nil {
			return fmt.Errorf("upserting sent record %s: %w", e.Key, err)
		}
	}

	if len(c.Seen) > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE sent_job_records SET last_seen_at = $1 WHERE user_id = $2 AND job_key = ANY($3)`,
			c.At, userID, keyStrings(c.Seen)); err != nil {
			return fmt.Errorf("refreshing last seen for %s: %w", userID, err)
		}
	}

	if c.State != nil {
		_, err := tx.Exec(ctx,
			`INSERT INTO user_run_state (user_id, job_keys, last_run_at, last_status)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id) DO UPDATE SET
			   job_keys = EXCLUDED.job_keys,
			   last_run_at = EXCLUDED.last_run_at,
			   last_status = EXCLUDED.last_status`,
			userID, keyStrings(c.State.Keys), c.State.LastRunAt, string(c.State.LastStatus))
		if err != nil {
			return fmt.Errorf("saving run state for %s: %w", userID, err)
		}
	}

	o := c.Outcome
	sources := o.SourcesUsed
	if sources == nil {
		sources = []string{}
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO run_outcomes (run_id, user_id, run_type, status, fetched, keyword_matched, emailed, sources_used, detail, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.RunID, o.UserID, string(o.Type), string(o.Status), o.Fetched, o.KeywordMatched, o.Emailed,
		sources, o.Detail, o.StartedAt, o.FinishedAt)
	if err != nil {
		return fmt.Errorf("inserting run outcome for %s: %w", userID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing run for %s: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) RecentOutcomes(ctx context.Context, userID string, limit int) ([]model.RunOutcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, user_id, run_type, status, fetched, keyword_matched, emailed, sources_used, detail, started_at, finished_at
		 FROM run_outcomes WHERE ($1 = '' OR user_id = $1) ORDER BY id DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying run outcomes: %w", err)
	}
	defer rows.Close()

	var out []model.RunOutcome
	for rows.Next() {
		var o model.RunOutcome
		var runType, status string
		if err := rows.Scan(&o.RunID, &o.UserID, &runType, &status, &o.Fetched, &o.KeywordMatched,
			&o.Emailed, &o.SourcesUsed, &o.Detail, &o.StartedAt, &o.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning run outcome: %w", err)
		}
		o.Type = model.RunType(runType)
		o.Status = model.RunStatus(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PruneSentRecords(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM sent_job_records WHERE last_seen_at < $1", time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("pruning sent records older than %v: %w", olderThan, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) SourceStatuses(ctx context.Context) (map[string]model.SourceStatus, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source_id, state, config_hash, last_validated_at, last_result, posting_count,
		        consecutive_failures, last_error, updated_at
		 FROM source_status`)
	if err != nil {
		return nil, fmt.Errorf("querying source status: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.SourceStatus)
	for rows.Next() {
		var st model.SourceStatus
		var state string
		if err := rows.Scan(&st.SourceID, &state, &st.ConfigHash, &st.LastValidatedAt, &st.LastResult,
			&st.PostingCount, &st.ConsecutiveFailures, &st.LastError, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning source status: %w", err)
		}
		st.State = model.SourceState(state)
		out[st.SourceID] = st
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveSourceStatus(ctx context.Context, st model.SourceStatus) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_status (source_id, state, config_hash, last_validated_at, last_result,
		                            posting_count, consecutive_failures, last_error, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (source_id) DO UPDATE SET
		   state = EXCLUDED.state,
		   config_hash = EXCLUDED.config_hash,
		   last_validated_at = EXCLUDED.last_validated_at,
		   last_result = EXCLUDED.last_result,
		   posting_count = EXCLUDED.posting_count,
		   consecutive_failures = EXCLUDED.consecutive_failures,
		   last_error = EXCLUDED.last_error,
		   updated_at = EXCLUDED.updated_at`,
		st.SourceID, string(st.State), st.ConfigHash, st.LastValidatedAt, st.LastResult,
		st.PostingCount, st.ConsecutiveFailures, st.LastError, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving source status %s: %w", st.SourceID, err)
	}
	return nil
}

func (s *PostgresStore) ActiveUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, email, timezone, active FROM users WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying active users: %w", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Timezone, &u.Active); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Preference(ctx context.Context, userID string) (model.Preference, error) {
	var p model.Preference
	var freq string
	err := s.pool.QueryRow(ctx,
		`SELECT keyword, target_roles, tech_stack_tags, negative_keywords, remote_only, strict_senior_only,
		        experience_level, sources, llm_input_limit, max_bullets, alert_frequency
		 FROM user_preferences WHERE user_id = $1`, userID).
		Scan(&p.Keyword, &p.TargetRoles, &p.TechStackTags, &p.NegativeKeywords, &p.RemoteOnly, &p.StrictSeniorOnly,
			&p.ExperienceLevel, &p.Sources, &p.LLMInputLimit, &p.MaxBullets, &freq)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("querying preference for %s: %w", userID, err)
	}
	p.AlertFrequency = model.AlertFrequency(freq)
	return p, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
