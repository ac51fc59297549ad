// Package store persists the engine-owned state: the sent-job ledger, per-user
// run state, run outcomes, and source validation status. SQLite is the default
// backend; Postgres serves multi-host deployments.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amishk599/jobdigest/internal/model"
)

// Store is the full persistence surface used by the engine.
type Store interface {
	model.LedgerStore
	model.SourceStateStore
	model.AccountStore
	PruneSentRecords(ctx context.Context, olderThan time.Duration) (int64, error)
	Close() error
}

// Open returns the backend named by driver.
func Open(ctx context.Context, driver, path, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteStore(path)
	case "postgres":
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func encodeList[T ~string](items []T) string {
	if len(items) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(items)
	return string(b)
}

func decodeList[T ~string](raw string) ([]T, error) {
	if raw == "" {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decoding list column: %w", err)
	}
	return out, nil
}
