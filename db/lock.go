package db

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/nickyhof/QueryGate/core"
)

// lockWeight bounds the number of concurrent readers of one database.
const lockWeight = 1 << 16

// rwLock is a reader/writer lock whose acquisition can time out. Waiters are
// served in arrival order.
type rwLock struct {
	sem *semaphore.Weighted
}

func newRWLock() *rwLock {
	return &rwLock{sem: semaphore.NewWeighted(lockWeight)}
}

func weight(mode core.LockMode) int64 {
	if mode == core.WriteLock {
		return lockWeight
	}
	return 1
}

func (l *rwLock) acquire(ctx context.Context, mode core.LockMode) error {
	if err := l.sem.Acquire(ctx, weight(mode)); err != nil {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	return nil
}

func (l *rwLock) release(mode core.LockMode) {
	l.sem.Release(weight(mode))
}
