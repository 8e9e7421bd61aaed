package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/timmy/marketplace/internal/logger"
)

// Client is the subset of the redis client used by RedisMutex.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Both scripts only touch the key while it still holds the caller's token.
const (
	releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`
	extendScript  = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) else return 0 end`
)

// RedisMutex is a Mutex backed by a key in a shared redis instance.
type RedisMutex struct {
	client       Client
	key          string
	ttl          time.Duration
	pollInterval time.Duration
}

// RedisConfig holds configuration for RedisMutex.
type RedisConfig struct {
	Key          string
	TTL          time.Duration // lease length; zero keeps the key until release
	PollInterval time.Duration
}

// NewRedisMutex creates a RedisMutex.
// Parameters:
//   - client: redis client (or a compatible fake).
//   - cfg: key, lease TTL and poll interval.
// Returns:
//   - *RedisMutex: mutex instance; nothing is written until Acquire.
func NewRedisMutex(client Client, cfg *RedisConfig) *RedisMutex {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &RedisMutex{
		client:       client,
		key:          cfg.Key,
		ttl:          cfg.TTL,
		pollInterval: poll,
	}
}

// Acquire polls SET NX every poll interval until the key is taken or ctx is done.
func (m *RedisMutex) Acquire(ctx context.Context) (Lease, error) {
	token := uuid.New().String()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	waited := false
	for {
		ok, err := m.client.SetNX(ctx, m.key, token, m.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				// the SET may have landed after the client gave up
				m.discard(context.WithoutCancel(ctx), token)
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to acquire lock %s: %w", m.key, err)
		}
		if ok {
			return m.newLease(token), nil
		}

		if !waited {
			logger.CtxInfo(ctx, "Import lock %s is held, waiting", m.key)
			waited = true
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// TryAcquire waits at most timeout for the key.
func (m *RedisMutex) TryAcquire(ctx context.Context, timeout time.Duration) (Lease, error) {
	return acquireWithin(ctx, timeout, m.Acquire)
}

// discard deletes the key if it holds token. Errors are only logged.
func (m *RedisMutex) discard(ctx context.Context, token string) {
	ctx, cancel := context.WithTimeout(ctx, m.pollInterval)
	defer cancel()
	if err := m.client.Eval(ctx, releaseScript, []string{m.key}, token).Err(); err != nil {
		logger.FromContext(ctx).WithError(err).Warnf("Failed to clear abandoned lock %s", m.key)
	}
}

func (m *RedisMutex) newLease(token string) *redisLease {
	l := &redisLease{
		m:     m,
		token: token,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		lost:  make(chan struct{}),
	}
	if m.ttl > 0 {
		go l.keepAlive()
	} else {
		close(l.done)
	}
	return l
}

type redisLease struct {
	m     *RedisMutex
	token string

	once sync.Once
	stop chan struct{}
	done chan struct{}
	lost chan struct{}
	err  error
}

// keepAlive extends the lease every ttl/3 while the import runs.
func (l *redisLease) keepAlive() {
	defer close(l.done)

	interval := l.m.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := l.m.client.Eval(ctx, extendScript, []string{l.m.key}, l.token, l.m.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				logger.GetDefault().WithError(err).Warnf("Failed to extend import lock %s", l.m.key)
				continue
			}
			if n == 0 {
				logger.GetDefault().Errorf("Import lock %s lost before release", l.m.key)
				close(l.lost)
				return
			}
		}
	}
}

// Lost is closed once the keepalive finds the key no longer holds this lease's token.
func (l *redisLease) Lost() <-chan struct{} {
	return l.lost
}

// Release stops the keepalive and deletes the key if it still holds this lease's token.
func (l *redisLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		close(l.stop)
		<-l.done
		if err := l.m.client.Eval(ctx, releaseScript, []string{l.m.key}, l.token).Err(); err != nil {
			l.err = fmt.Errorf("failed to release lock %s: %w", l.m.key, err)
		}
	})
	return l.err
}
