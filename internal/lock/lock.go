// Package lock serializes catalog imports behind a single named token.
package lock

import (
	"context"
	"time"

	"github.com/timmy/marketplace/internal/domain"
)

// Mutex is a process-wide (or cluster-wide) mutual exclusion token.
type Mutex interface {
	// Acquire blocks until the token is held or ctx is done.
	Acquire(ctx context.Context) (Lease, error)
	// TryAcquire is Acquire bounded by timeout; it fails with domain.ErrLockTimeout.
	TryAcquire(ctx context.Context, timeout time.Duration) (Lease, error)
}

// Lease is a held token. Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
	// Lost is closed when the token was taken away before Release, e.g. by lease expiry.
	// A nil channel means the lease cannot be lost.
	Lost() <-chan struct{}
}

// acquireWithin runs acquire under a deadline and maps expiry to ErrLockTimeout.
func acquireWithin(ctx context.Context, timeout time.Duration, acquire func(context.Context) (Lease, error)) (Lease, error) {
	if timeout <= 0 {
		return acquire(ctx)
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lease, err := acquire(waitCtx)
	if err != nil && ctx.Err() == nil && waitCtx.Err() != nil {
		return nil, domain.ErrLockTimeout
	}
	return lease, err
}
