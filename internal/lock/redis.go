package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultTTL  = 45 * time.Second
	pollEvery   = 50 * time.Millisecond
	unlockAfter = 3 * time.Second
	keyPrefix   = "microtutor:lock:"
)

// releaseScript deletes the key only while it still holds our token, so a
// lock that expired and was re-taken is left alone.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript pushes the expiry of a key we still hold.
var renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Client is the part of a go-redis client the locker needs.
// goredis.UniversalClient satisfies it.
type Client interface {
	goredis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *goredis.BoolCmd
}

// Redis is a Locker shared by every replica talking to the same Redis.
// While a lock is held its expiry is renewed every ttl/3, so turns longer
// than ttl keep it. A holder that dies loses the lock after ttl.
type Redis struct {
	client Client
	ttl    time.Duration
}

// NewRedis creates a Redis locker. ttl bounds how long a crashed holder can
// block a conversation.
func NewRedis(client Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Lock implements Locker by polling SET NX PX until it succeeds.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	k := keyPrefix + key

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}

	// The watchdog outlives a cancelled request; only unlock stops it.
	wctx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(wctx, max(r.ttl/3, time.Millisecond), func(ctx context.Context) (bool, error) {
			n, err := renewScript.Run(ctx, r.client, []string{k}, token, r.ttl.Milliseconds()).Int64()
			return n == 1, err
		})
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			<-done
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockAfter)
			defer cancel()
			_ = releaseScript.Run(rctx, r.client, []string{k}, token).Err()
		})
	}, nil
}

// keepAlive calls renew every interval until ctx ends or renew reports the
// lock is no longer ours. A failed call is retried on the next tick.
func keepAlive(ctx context.Context, every time.Duration, renew func(context.Context) (bool, error)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cctx, cancel := context.WithTimeout(ctx, every)
		held, err := renew(cctx)
		cancel()
		if err == nil && !held {
			return
		}
	}
}
