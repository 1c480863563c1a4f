package locker

import (
	"context"
	"errors"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
)

// Redis is a distributed Locker built on redsync.
type Redis struct {
	rs     *redsync.Redsync
	prefix string
	expiry time.Duration
	tries  int
	delay  time.Duration
}

// RedisOption configures NewRedis.
type RedisOption func(*Redis)

// WithExpiry sets the lock TTL. Work under the lock must finish well within it.
func WithExpiry(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.expiry = d
		}
	}
}

// WithTries sets how many acquisition attempts are made, spaced by delay.
func WithTries(n int, delay time.Duration) RedisOption {
	return func(r *Redis) {
		if n > 0 {
			r.tries = n
		}
		if delay > 0 {
			r.delay = delay
		}
	}
}

func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// NewRedis returns a Locker backed by client. Defaults: 30s expiry and 64
// tries spaced 100ms apart.
func NewRedis(client goredislib.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		rs:     redsync.New(goredis.NewPool(client)),
		prefix: "lock:",
		expiry: 30 * time.Second,
		tries:  64,
		delay:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	m := r.rs.NewMutex(r.prefix+key,
		redsync.WithExpiry(r.expiry),
		redsync.WithTries(r.tries),
		redsync.WithRetryDelay(r.delay),
	)
	if err := m.LockContext(ctx); err != nil {
		return nil, errors.Join(ErrNotAcquired, err)
	}
	return func(ctx context.Context) error {
		ok, err := m.UnlockContext(ctx)
		if err != nil {
			return errors.Join(ErrLockLost, err)
		}
		if !ok {
			return ErrLockLost
		}
		return nil
	}, nil
}
