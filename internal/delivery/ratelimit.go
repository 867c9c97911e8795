package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter paces webhook pushes per callback host. Acquire blocks until
// the caller may send to the given key, or until the context is done.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) error
}

// redisKeyPrefix namespaces limiter keys so they never collide with other
// users of the same Redis instance.
const redisKeyPrefix = "relay:delivery:rl:"

// RedisRateLimiter is a fixed-window limiter shared across processes. One
// push per interval per key; the window is a Redis key with a TTL, claimed
// with SET NX.
type RedisRateLimiter struct {
	client   *redis.Client
	interval time.Duration
}

// NewRedisRateLimiter creates a limiter allowing one acquisition per
// interval per key, coordinated through the given Redis client.
func NewRedisRateLimiter(client *redis.Client, interval time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, interval: interval}
}

var _ RateLimiter = (*RedisRateLimiter)(nil)

// Acquire claims the window for key, polling the remaining TTL while another
// holder owns it.
func (l *RedisRateLimiter) Acquire(ctx context.Context, key string) error {
	fullKey := redisKeyPrefix + key
	for {
		ok, err := l.client.SetNX(ctx, fullKey, "1", l.interval).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		wait, err := l.client.PTTL(ctx, fullKey).Result()
		if err != nil {
			return err
		}
		if wait <= 0 {
			// Key expired between SetNX and PTTL; try again immediately.
			continue
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// LocalRateLimiter is the in-process fallback used when no Redis address is
// configured. Same fixed-window semantics, scoped to this process.
type LocalRateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     map[string]time.Time
	now      func() time.Time
}

// NewLocalRateLimiter creates a process-local limiter allowing one
// acquisition per interval per key.
func NewLocalRateLimiter(interval time.Duration) *LocalRateLimiter {
	return &LocalRateLimiter{
		interval: interval,
		next:     make(map[string]time.Time),
		now:      time.Now,
	}
}

var _ RateLimiter = (*LocalRateLimiter)(nil)

// Acquire blocks until the window for key opens, then claims it.
func (l *LocalRateLimiter) Acquire(ctx context.Context, key string) error {
	for {
		l.mu.Lock()
		now := l.now()
		at, held := l.next[key]
		if !held || !now.Before(at) {
			l.next[key] = now.Add(l.interval)
			l.mu.Unlock()
			return nil
		}
		wait := at.Sub(now)
		l.mu.Unlock()

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
