// Package lock serializes ledger commits across processes with a Redis
// lease. The lease is refreshed while the commit runs so a long batch does
// not lose it, and expires on its own if the holder dies.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/golab-ledger/internal/core"
)

const (
	keyPrefix = "lock:"

	// DefaultTTL is the lease length when Options.TTL is zero.
	DefaultTTL = 30 * time.Second

	// DefaultWait bounds how long Obtain retries a held lock.
	DefaultWait = 30 * time.Second
)

// Options configures a RedisLocker.
type Options struct {
	TTL  time.Duration // lease length, refreshed at TTL/2
	Wait time.Duration // how long Obtain keeps retrying
}

// RedisLocker implements core.Locker with bsm/redislock.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

var _ core.Locker = (*RedisLocker)(nil)

// NewRedisLocker returns a locker on rdb.
func NewRedisLocker(rdb redis.UniversalClient, opts Options) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Wait <= 0 {
		opts.Wait = DefaultWait
	}
	return &RedisLocker{
		client: redislock.New(rdb),
		ttl:    opts.TTL,
		wait:   opts.Wait,
	}
}

// Obtain takes the named lease, retrying until Wait elapses. A lease still
// held by another process yields core.ErrImportBusy. The returned context is
// cancelled with core.ErrLockLost when a refresh fails, and release stops the
// refresher and drops the lease.
func (l *RedisLocker) Obtain(ctx context.Context, name string) (context.Context, func(context.Context) error, error) {
	key := keyPrefix + name

	obtainCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	lk, err := l.client.Obtain(obtainCtx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(100 * time.Millisecond),
	})
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, nil, ctx.Err()
	case errors.Is(err, redislock.ErrNotObtained), err != nil && obtainCtx.Err() != nil:
		return nil, nil, fmt.Errorf("%w: %s held by another process", core.ErrImportBusy, key)
	case err != nil:
		return nil, nil, fmt.Errorf("obtain %s: %w", key, err)
	}

	held, lost := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.refresh(lk, key, lost, stop, done)

	release := func(ctx context.Context) error {
		close(stop)
		<-done
		lost(nil)
		if err := lk.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("release %s: %w", key, err)
		}
		return nil
	}
	return held, release, nil
}

// refresh extends the lease every TTL/2 until stop is closed. The first
// failed refresh cancels the holder with core.ErrLockLost and ends the loop.
func (l *RedisLocker) refresh(lk *redislock.Lock, key string, lost context.CancelCauseFunc, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
			err := lk.Refresh(ctx, l.ttl, nil)
			cancel()
			if err != nil {
				slog.Error("commit lock lost", "key", key, "error", err)
				lost(fmt.Errorf("%w: %s: %v", core.ErrLockLost, key, err))
				return
			}
		}
	}
}
