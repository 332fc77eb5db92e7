// Package lock provides a cross-process mutex keyed by string with TTL based
// expiry.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrNotAcquired is returned by WithLock when retries were exhausted.
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrBackendUnavailable wraps failures talking to the lock store.
	ErrBackendUnavailable = errors.New("lock backend unavailable")
)

// Locker acquires and releases ownership tokens.
type Locker interface {
	// Acquire returns an empty token and a nil error when the lock stayed
	// taken for every attempt.
	Acquire(ctx context.Context, key string, ttl, retryDelay time.Duration, maxRetries int) (string, error)
	// Release deletes the lock only when it is still held with token.
	Release(ctx context.Context, key, token string) (bool, error)
}

// compare-and-delete
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker stores locks under "lock:<key>".
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "lock:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl, retryDelay time.Duration, maxRetries int) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("lock %s: ttl must be positive", key)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	token := uuid.NewString()
	for attempt := 0; ; attempt++ {
		ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", fmt.Errorf("%w: acquire %s: %v", ErrBackendUnavailable, key, err)
		}
		if ok {
			return token, nil
		}
		if attempt >= maxRetries {
			return "", nil
		}
		t := time.NewTimer(retryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	n, err := releaseScript.Run(ctx, l.client, []string{l.prefix + key}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: release %s: %v", ErrBackendUnavailable, key, err)
	}
	return n == 1, nil
}

// Options configure WithLock.
type Options struct {
	TTL        time.Duration
	RetryDelay time.Duration
	MaxRetries int
	// Logger receives release failures. Nil means the standard logger.
	Logger *log.Logger
}

func DefaultOptions() Options {
	return Options{TTL: 3 * time.Second, RetryDelay: 50 * time.Millisecond, MaxRetries: 20}
}

// WithLock runs fn while holding key. The lock is released whatever fn
// returns. A lock that could not be taken yields ErrNotAcquired; backend
// failures yield ErrBackendUnavailable; errors from fn are returned unchanged.
func WithLock(ctx context.Context, locker Locker, key string, opts Options, fn func(context.Context) error) error {
	token, err := locker.Acquire(ctx, key, opts.TTL, opts.RetryDelay, opts.MaxRetries)
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("%w: %s", ErrNotAcquired, key)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	defer func() {
		released, err := locker.Release(context.WithoutCancel(ctx), key, token)
		switch {
		case err != nil:
			logger.WithError(err).WithField("key", key).Error("lock release failed")
		case !released:
			logger.WithField("key", key).Warn("lock expired before release")
		}
	}()
	return fn(ctx)
}
