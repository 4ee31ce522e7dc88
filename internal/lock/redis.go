package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var ErrNotObtained = errors.New("lock not obtained")

const (
	defaultTTL   = 30 * time.Second
	retryBackoff = 100 * time.Millisecond
)

// Redis holds record locks in Redis so that several web instances never
// append the same record concurrently.
type Redis struct {
	locker *redislock.Client
	ttl    time.Duration
	tries  int
}

// NewRedis retries for up to ttl before giving up on a busy key.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{
		locker: redislock.New(client),
		ttl:    ttl,
		tries:  int(ttl / retryBackoff),
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	l, err := r.locker.Obtain(ctx, key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(retryBackoff), r.tries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func() {
		// Release with a fresh context; the request context may already be done.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			slog.Warn("Failed to release lock", "key", key, "error", err)
		}
	}, nil
}
