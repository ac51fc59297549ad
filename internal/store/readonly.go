package store

import (
	"context"
	"time"

	"github.com/amishk599/jobdigest/internal/model"
)

// ReadOnlyStore is used in dry-run mode. Reads go to the wrapped store so the
// run sees real history; writes are dropped.
type ReadOnlyStore struct {
	Store
}

// NewReadOnlyStore wraps s.
func NewReadOnlyStore(s Store) *ReadOnlyStore { return &ReadOnlyStore{Store: s} }

func (s *ReadOnlyStore) CommitRun(context.Context, model.RunCommit) error                { return nil }
func (s *ReadOnlyStore) SaveSourceStatus(context.Context, model.SourceStatus) error      { return nil }
func (s *ReadOnlyStore) PruneSentRecords(context.Context, time.Duration) (int64, error) { return 0, nil }
