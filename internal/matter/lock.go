package matter

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// StackLock serialises mutations of the endpoint table. Unlike sync.Mutex it
// honours context cancellation, so callers can bound how long they wait.
type StackLock struct {
	sem *semaphore.Weighted
}

// NewStackLock creates an unlocked StackLock.
func NewStackLock() *StackLock {
	return &StackLock{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the lock is held or ctx is done.
func (l *StackLock) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// TryAcquire takes the lock only if it is free.
func (l *StackLock) TryAcquire() bool {
	return l.sem.TryAcquire(1)
}

// Release unlocks. It panics if the lock is not held.
func (l *StackLock) Release() {
	l.sem.Release(1)
}
