package locker

import (
	"context"
	"errors"
)

var (
	ErrNotAcquired = errors.New("lock not acquired")
	ErrLockLost    = errors.New("lock expired before release")
)

// Unlock releases a held lock.
type Unlock func(ctx context.Context) error

// Locker serialises work per key across goroutines or processes.
type Locker interface {
	// Lock blocks until key is held, ctx is done or the implementation gives
	// up, in which case the error wraps ErrNotAcquired.
	Lock(ctx context.Context, key string) (Unlock, error)
}

// WithLock runs fn while holding key. The release error is returned only
// when fn succeeded.
func WithLock(ctx context.Context, l Locker, key string, fn func(ctx context.Context) error) (err error) {
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil && err == nil {
			err = uerr
		}
	}()
	return fn(ctx)
}
