package wallet

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

const signerLockReaders = 1 << 16

// SignerLock serializes the orchestrations that sign with one wallet.
// A writer holds it exclusively from its first submission until its last
// receipt; readers share it and wait while a write is unconfirmed.
// Waiting honours the caller's context.
type SignerLock struct {
	sem *semaphore.Weighted
}

func NewSignerLock() *SignerLock {
	return &SignerLock{sem: semaphore.NewWeighted(signerLockReaders)}
}

// Lock acquires the lock exclusively. The returned func releases it.
func (l *SignerLock) Lock(ctx context.Context) (func(), error) {
	return l.acquire(ctx, signerLockReaders)
}

// RLock acquires a shared hold. The returned func releases it.
func (l *SignerLock) RLock(ctx context.Context) (func(), error) {
	return l.acquire(ctx, 1)
}

func (l *SignerLock) acquire(ctx context.Context, n int64) (func(), error) {
	if err := l.sem.Acquire(ctx, n); err != nil {
		return nil, fmt.Errorf("waiting for pending wallet transactions: %w", err)
	}
	return func() { l.sem.Release(n) }, nil
}
