package pgstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/golab-ledger/internal/core"
)

const (
	lockKeyPrefix = "lock:"

	// DefaultLockWait bounds how long Obtain retries a held lock.
	DefaultLockWait = 30 * time.Second

	lockPoll      = 100 * time.Millisecond
	lockKeepAlive = 5 * time.Second
)

// AdvisoryLocker implements core.Locker with a session-level PostgreSQL
// advisory lock. The lock lives on one pooled connection for as long as it
// is held, so commits from every process sharing the database serialize
// without Redis.
type AdvisoryLocker struct {
	pool      *pgxpool.Pool
	wait      time.Duration
	poll      time.Duration
	keepAlive time.Duration
}

var _ core.Locker = (*AdvisoryLocker)(nil)

// NewAdvisoryLocker returns a locker on pool that waits up to wait for a held
// lock.
func NewAdvisoryLocker(pool *pgxpool.Pool, wait time.Duration) *AdvisoryLocker {
	if wait <= 0 {
		wait = DefaultLockWait
	}
	return &AdvisoryLocker{
		pool:      pool,
		wait:      wait,
		poll:      lockPoll,
		keepAlive: lockKeepAlive,
	}
}

// Obtain takes the named advisory lock, retrying until the wait elapses. A
// lock held by another session yields core.ErrImportBusy. The returned context
// is cancelled with core.ErrLockLost if the holding connection fails.
func (l *AdvisoryLocker) Obtain(ctx context.Context, name string) (context.Context, func(context.Context) error, error) {
	key := lockKeyPrefix + name

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	if err := l.lock(ctx, conn, key); err != nil {
		conn.Release()
		return nil, nil, err
	}

	held, lost := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.watch(conn, key, lost, stop, done)

	release := func(ctx context.Context) error {
		close(stop)
		<-done
		lost(nil)

		var unlocked bool
		err := conn.QueryRow(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, key).Scan(&unlocked)
		if err != nil {
			// The session lock ends with the connection.
			conn.Conn().Close(ctx)
			conn.Release()
			return fmt.Errorf("release %s: %w", key, err)
		}
		conn.Release()
		return nil
	}
	return held, release, nil
}

func (l *AdvisoryLocker) lock(ctx context.Context, conn *pgxpool.Conn, key string) error {
	deadline := time.Now().Add(l.wait)
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		var ok bool
		err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&ok)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			return fmt.Errorf("lock %s: %w", key, err)
		case ok:
			return nil
		case !time.Now().Before(deadline):
			return fmt.Errorf("%w: %s held by another process", core.ErrImportBusy, key)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// watch pings the holding connection until stop is closed. The first failed
// ping cancels the holder with core.ErrLockLost and ends the loop.
func (l *AdvisoryLocker) watch(conn *pgxpool.Conn, key string, lost context.CancelCauseFunc, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.keepAlive)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				slog.Error("commit lock lost", "key", key, "error", err)
				lost(fmt.Errorf("%w: %s: %v", core.ErrLockLost, key, err))
				return
			}
		}
	}
}
