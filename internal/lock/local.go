package lock

import (
	"context"
	"sync"
	"time"
)

// LocalMutex is a single-slot in-process Mutex.
type LocalMutex struct {
	slot chan struct{}
}

// NewLocalMutex creates an unlocked LocalMutex.
func NewLocalMutex() *LocalMutex {
	return &LocalMutex{slot: make(chan struct{}, 1)}
}

// Acquire blocks until the slot is free or ctx is done.
func (m *LocalMutex) Acquire(ctx context.Context) (Lease, error) {
	select {
	case m.slot <- struct{}{}:
		return &localLease{m: m}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire waits at most timeout for the slot.
func (m *LocalMutex) TryAcquire(ctx context.Context, timeout time.Duration) (Lease, error) {
	return acquireWithin(ctx, timeout, m.Acquire)
}

type localLease struct {
	m    *LocalMutex
	once sync.Once
}

func (l *localLease) Release(context.Context) error {
	l.once.Do(func() { <-l.m.slot })
	return nil
}

func (l *localLease) Lost() <-chan struct{} { return nil }
