// Package lock provides per-user run locks so no two runs for the same user
// overlap, within one process (MemoryLocker) or across hosts (RedisLocker).
package lock

import (
	"context"
	"sync"

	"github.com/amishk599/jobdigest/internal/model"
)

var _ model.RunLocker = (*MemoryLocker)(nil)

// MemoryLocker holds per-user locks in process memory. Acquire never blocks:
// a user already running yields model.ErrLocked.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewMemoryLocker returns an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]bool)}
}

func (l *MemoryLocker) Acquire(_ context.Context, userID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[userID] {
		return nil, model.ErrLocked
	}
	l.held[userID] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, userID)
			l.mu.Unlock()
		})
	}, nil
}
