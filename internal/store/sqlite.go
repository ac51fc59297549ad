package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/amishk599/jobdigest/internal/model"

	_ "modernc.org/sqlite"
)

var _ Store = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id       TEXT PRIMARY KEY,
	email    TEXT NOT NULL,
	timezone TEXT NOT NULL DEFAULT 'UTC',
	active   INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS user_preferences (
	user_id            TEXT PRIMARY KEY REFERENCES users(id),
	keyword            TEXT NOT NULL DEFAULT '',
	target_roles       TEXT NOT NULL DEFAULT '[]',
	tech_stack_tags    TEXT NOT NULL DEFAULT '[]',
	negative_keywords  TEXT NOT NULL DEFAULT '[]',
	remote_only        INTEGER NOT NULL DEFAULT 0,
	strict_senior_only INTEGER NOT NULL DEFAULT 0,
	experience_level   TEXT NOT NULL DEFAULT '',
	sources            TEXT NOT NULL DEFAULT '[]',
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
	first_sent_at INTEGER NOT NULL,
	last_seen_at  INTEGER NOT NULL,
	PRIMARY KEY (user_id, job_key)
);
CREATE TABLE IF NOT EXISTS user_run_state (
	user_id     TEXT PRIMARY KEY,
	job_keys    TEXT NOT NULL DEFAULT '[]',
	last_run_at INTEGER,
	last_status TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS run_outcomes (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	run_type        TEXT NOT NULL,
	status          TEXT NOT NULL,
	fetched         INTEGER NOT NULL DEFAULT 0,
	keyword_matched INTEGER NOT NULL DEFAULT 0,
	emailed         INTEGER NOT NULL DEFAULT 0,
	sources_used    TEXT NOT NULL DEFAULT '[]',
	detail          TEXT NOT NULL DEFAULT '',
	started_at      INTEGER NOT NULL,
	finished_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_outcomes_user ON run_outcomes (user_id, id);
CREATE TABLE IF NOT EXISTS source_status (
	source_id            TEXT PRIMARY KEY,
	state                TEXT NOT NULL,
	config_hash          TEXT NOT NULL DEFAULT '',
	last_validated_at    INTEGER,
	last_result          TEXT NOT NULL DEFAULT '',
	posting_count        INTEGER NOT NULL DEFAULT 0,
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	last_error           TEXT NOT NULL DEFAULT '',
	updated_at           INTEGER NOT NULL
);
`

// SQLiteStore keeps all engine state in a single SQLite file. Times are
// stored as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One writer at a time; concurrent user commits queue on the pool.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistenceUnavailable, err)
	}
	return nil
}

// SentRecords returns every ledger entry for userID keyed by job key.
func (s *SQLiteStore) SentRecords(ctx context.Context, userID string) (map[model.JobKey]model.SentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_key, source, title, company, url, first_sent_at, last_seen_at
		 FROM sent_job_records WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying sent records for %s: %w", userID, err)
	}
	defer rows.Close()

	out := make(map[model.JobKey]model.SentRecord)
	for rows.Next() {
		var r model.SentRecord
		var first, last int64
		if err := rows.Scan(&r.Key, &r.Source, &r.Title, &r.Company, &r.URL, &first, &last); err != nil {
			return nil, fmt.Errorf("scanning sent record: %w", err)
		}
		r.UserID = userID
		r.FirstSentAt = fromMillis(first)
		r.LastSeenAt = fromMillis(last)
		out[r.Key] = r
	}
	return out, rows.Err()
}

// RunState returns the stored run state, or an empty state for a new user.
func (s *SQLiteStore) RunState(ctx context.Context, userID string) (model.UserRunState, error) {
	st := model.UserRunState{UserID: userID}
	var keys string
	var lastRun sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT job_keys, last_run_at, last_status FROM user_run_state WHERE user_id = ?`, userID).
		Scan(&keys, &lastRun, &st.LastStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("querying run state for %s: %w", userID, err)
	}
	if st.Keys, err = decodeList[model.JobKey](keys); err != nil {
		return st, err
	}
	st.LastRunAt = timePtr(lastRun)
	return st, nil
}

// CommitRun applies the ledger upserts, last-seen refreshes, run state and
// outcome row in one transaction.
func (s *SQLiteStore) CommitRun(ctx context.Context, c model.RunCommit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning commit for %s: %w", c.Outcome.UserID, err)
	}
	defer tx.Rollback()

	at := toMillis(c.At)
	userID := c.Outcome.UserID

	for _, e := range c.Sent {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sent_job_records (user_id, job_key, source, title, company, url, first_sent_at, last_seen_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (user_id, job_key) DO UPDATE SET
			   last_seen_at = excluded.last_seen_at,
			   source = excluded.source,
			   title = excluded.title,
			   company = excluded.company,
			   url = excluded.url`,
			userID, string(e.Key), e.Source, e.Title, e.Company, e.URL, at, at)
		if err != nil {
			return fmt.Errorf("upserting sent record %s: %w", e.Key, err)
		}
	}

	for _, k := range c.Seen {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sent_job_records SET last_seen_at = ? WHERE user_id = ? AND job_key = ?`,
			at, userID, string(k)); err != nil {
			return fmt.Errorf("refreshing last seen for %s: %w", k, err)
		}
	}

	if c.State != nil {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_run_state (user_id, job_keys, last_run_at, last_status)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (user_id) DO UPDATE SET
			   job_keys = excluded.job_keys,
			   last_run_at = excluded.last_run_at,
			   last_status = excluded.last_status`,
			userID, encodeList(c.State.Keys), nullMillis(c.State.LastRunAt), string(c.State.LastStatus))
		if err != nil {
			return fmt.Errorf("saving run state for %s: %w", userID, err)
		}
	}

	o := c.Outcome
	_, err = tx.ExecContext(ctx,
		`INSERT INTO run_outcomes (run_id, user_id, run_type, status, fetched, keyword_matched, emailed, sources_used, detail, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.UserID, string(o.Type), string(o.Status), o.Fetched, o.KeywordMatched, o.Emailed,
		encodeList(o.SourcesUsed), o.Detail, toMillis(o.StartedAt), toMillis(o.FinishedAt))
	if err != nil {
		return fmt.Errorf("inserting run outcome for %s: %w", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run for %s: %w", userID, err)
	}
	return nil
}

// RecentOutcomes returns up to limit outcomes for userID, newest first. An
// empty userID returns outcomes for all users.
func (s *SQLiteStore) RecentOutcomes(ctx context.Context, userID string, limit int) ([]model.RunOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, user_id, run_type, status, fetched, keyword_matched, emailed, sources_used, detail, started_at, finished_at
		 FROM run_outcomes WHERE (? = '' OR user_id = ?) ORDER BY id DESC LIMIT ?`,
		userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying run outcomes: %w", err)
	}
	defer rows.Close()

	var out []model.RunOutcome
	for rows.Next() {
		var o model.RunOutcome
		var sources string
		var started, finished int64
		if err := rows.Scan(&o.RunID, &o.UserID, &o.Type, &o.Status, &o.Fetched, &o.KeywordMatched,
			&o.Emailed, &sources, &o.Detail, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning run outcome: %w", err)
		}
		if o.SourcesUsed, err = decodeList[string](sources); err != nil {
			return nil, err
		}
		o.StartedAt = fromMillis(started)
		o.FinishedAt = fromMillis(finished)
		out = append(out, o)
	}
	return out, rows.Err()
}

// PruneSentRecords deletes ledger entries not seen for longer than olderThan.
func (s *SQLiteStore) PruneSentRecords(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := toMillis(time.Now().Add(-olderThan))
	res, err := s.db.ExecContext(ctx, "DELETE FROM sent_job_records WHERE last_seen_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning sent records older than %v: %w", olderThan, err)
	}
	return res.RowsAffected()
}

// SourceStatuses returns every persisted source status keyed by source id.
func (s *SQLiteStore) SourceStatuses(ctx context.Context) (map[string]model.SourceStatus, error) {
	rows, err := s.db.QueryContext(ctx,
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
		var validated sql.NullInt64
		var updated int64
		if err := rows.Scan(&st.SourceID, &st.State, &st.ConfigHash, &validated, &st.LastResult,
			&st.PostingCount, &st.ConsecutiveFailures, &st.LastError, &updated); err != nil {
			return nil, fmt.Errorf("scanning source status: %w", err)
		}
		st.LastValidatedAt = timePtr(validated)
		st.UpdatedAt = fromMillis(updated)
		out[st.SourceID] = st
	}
	return out, rows.Err()
}

// SaveSourceStatus upserts one source's status.
func (s *SQLiteStore) SaveSourceStatus(ctx context.Context, st model.SourceStatus) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_status (source_id, state, config_hash, last_validated_at, last_result,
		                            posting_count, consecutive_failures, last_error, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source_id) DO UPDATE SET
		   state = excluded.state,
		   config_hash = excluded.config_hash,
		   last_validated_at = excluded.last_validated_at,
		   last_result = excluded.last_result,
		   posting_count = excluded.posting_count,
		   consecutive_failures = excluded.consecutive_failures,
		   last_error = excluded.last_error,
		   updated_at = excluded.updated_at`,
		st.SourceID, string(st.State), st.ConfigHash, nullMillis(st.LastValidatedAt), st.LastResult,
		st.PostingCount, st.ConsecutiveFailures, st.LastError, toMillis(st.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving source status %s: %w", st.SourceID, err)
	}
	return nil
}

// ActiveUsers lists users with the active flag set.
func (s *SQLiteStore) ActiveUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, timezone, active FROM users WHERE active = 1 ORDER BY id`)
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

// Preference returns a user's stored preference. A user without a row gets
// the zero preference.
func (s *SQLiteStore) Preference(ctx context.Context, userID string) (model.Preference, error) {
	var p model.Preference
	var roles, tags, negative, sources, freq string
	err := s.db.QueryRowContext(ctx,
		`SELECT keyword, target_roles, tech_stack_tags, negative_keywords, remote_only, strict_senior_only,
		        experience_level, sources, llm_input_limit, max_bullets, alert_frequency
		 FROM user_preferences WHERE user_id = ?`, userID).
		Scan(&p.Keyword, &roles, &tags, &negative, &p.RemoteOnly, &p.StrictSeniorOnly,
			&p.ExperienceLevel, &sources, &p.LLMInputLimit, &p.MaxBullets, &freq)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("querying preference for %s: %w", userID, err)
	}
	if p.TargetRoles, err = decodeList[string](roles); err != nil {
		return p, err
	}
	if p.TechStackTags, err = decodeList[string](tags); err != nil {
		return p, err
	}
	if p.NegativeKeywords, err = decodeList[string](negative); err != nil {
		return p, err
	}
	if p.Sources, err = decodeList[string](sources); err != nil {
		return p, err
	}
	p.AlertFrequency = model.AlertFrequency(freq)
	return p, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
