package reconcile

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// userLocks serializes work per username. Waiting for a lock honors ctx.
type userLocks struct {
	sems map[string]*semaphore.Weighted
	mu   sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{sems: make(map[string]*semaphore.Weighted)}
}

func (l *userLocks) acquire(ctx context.Context, username string) (func(), error) {
	l.mu.Lock()
	sem, ok := l.sems[username]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.sems[username] = sem
	}
	l.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { sem.Release(1) }, nil
}
