package lock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still carries our token, so a
// holder whose lease expired cannot release someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the lease expiry out while the key still carries our
// token. It returns 0 once the lease has been lost.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a Locker shared by every API instance pointing at the same
// Redis. Each lock is a lease of ttl, renewed every ttl/3 while held; a
// crashed holder stops renewing and frees it on expiry.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	log    *slog.Logger
}

// NewRedisLocker builds a RedisLocker. prefix namespaces the keys.
func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration, log *slog.Logger) *RedisLocker {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "car-rental:lock"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		log:    log,
	}
}

// Acquire polls SET NX PX until it wins or ctx is done.
func (r *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	fullKey := r.prefix + ":" + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, fullKey, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("lock.RedisLocker.Acquire %q: %w: %w", key, ErrNotAcquired, ctx.Err())
			}
			return nil, fmt.Errorf("lock.RedisLocker.Acquire %q: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock.RedisLocker.Acquire %q: %w: %w", key, ErrNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}

	// The caller's ctx may only bound the wait; the lease lives until release.
	leaseCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.renew(leaseCtx, fullKey, token)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			<-done
			relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(relCtx, r.client, []string{fullKey}, token).Err(); err != nil {
				r.log.Warn("lock release failed", "key", fullKey, "err", err)
			}
		})
	}, nil
}

// renew extends the lease every ttl/3 until ctx is done or the lease is lost.
func (r *RedisLocker) renew(ctx context.Context, fullKey, token string) {
	ticker := time.NewTicker(max(r.ttl/3, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := extendScript.Run(ctx, r.client, []string{fullKey}, token, r.ttl.Milliseconds()).Int()
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			r.log.Warn("lock renewal failed", "key", fullKey, "err", err)
		case n == 0:
			r.log.Warn("lock lease lost", "key", fullKey)
			return
		}
	}
}
