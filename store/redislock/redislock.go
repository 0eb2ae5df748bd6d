/*
Package redislock provides a generic.Locker shared by several processes.

Each lock is a Redis key set with SET NX PX and a random token. Release
deletes the key only if it still holds our token, so a lock that expired
and was taken by someone else is never released by the old holder.
*/
package redislock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
)

const (
	DefaultTTL        = 30 * time.Second
	DefaultRetryEvery = 50 * time.Millisecond
	keyPrefix         = "leave:lock:"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Options struct {
	TTL        time.Duration // lock lease; a crashed holder frees the key after this
	RetryEvery time.Duration
}

type Locker struct {
	client   redis.Cmdable
	ttl      time.Duration
	retry    time.Duration
	newToken func() string
	logger   *zap.Logger
}

func New(client redis.Cmdable, opts Options, logger ...*zap.Logger) *Locker {
	l := zap.L().Named("redislock")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("redislock")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.RetryEvery <= 0 {
		opts.RetryEvery = DefaultRetryEvery
	}
	return &Locker{
		client:   client,
		ttl:      opts.TTL,
		retry:    opts.RetryEvery,
		newToken: uuid.NewString,
		logger:   l,
	}
}

// Lock polls until key is acquired or ctx is done. A ctx that ends while
// waiting yields generic.ErrLockNotAcquired wrapping the context error.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := l.newToken()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return l.unlocker(redisKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", generic.ErrLockNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Locker) unlocker(redisKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// Independent of the caller's context, which may be done.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			n, err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Int64()
			if err != nil {
				l.logger.Warn("lock release failed", zap.String("key", redisKey), zap.Error(err))
				return
			}
			if n == 0 {
				l.logger.Warn("lock expired before release", zap.String("key", redisKey))
			}
		})
	}
}
