package core

// commit_gate.go serializes commits inside one process.
//
// Moving-average costing and the imported key set both need a consistent
// read-then-write view, so at most one commit runs at a time. A commit that
// cannot enter within maxWait fails with ErrImportBusy. Dry runs never pass
// through the gate.
//
// Across processes the gate is paired with a Locker (see internal/lock).

import (
	"context"
	"sync"
	"time"
)

// DefaultCommitWait is how long a commit waits for the gate before failing.
const DefaultCommitWait = 30 * time.Second

// Locker serializes commits across processes. Obtain blocks until the named
// lock is held or fails with ErrImportBusy. The returned context derives from
// ctx and is cancelled with cause ErrLockLost if the lock is lost while held.
type Locker interface {
	Obtain(ctx context.Context, name string) (held context.Context, release func(context.Context) error, err error)
}

// CommitGate is a single-slot semaphore.
type CommitGate struct {
	slot    chan struct{}
	maxWait time.Duration

	mu     sync.RWMutex
	active int
	holder string
	since  time.Time
}

// NewCommitGate returns a gate whose Acquire gives up after maxWait.
func NewCommitGate(maxWait time.Duration) *CommitGate {
	if maxWait <= 0 {
		maxWait = DefaultCommitWait
	}
	return &CommitGate{
		slot:    make(chan struct{}, 1),
		maxWait: maxWait,
	}
}

// Acquire enters the gate on behalf of holder (a batch ID).
// The caller MUST call Release() when the commit completes (use defer).
func (g *CommitGate) Acquire(ctx context.Context, holder string) error {
	waitCtx, cancel := context.WithTimeout(ctx, g.maxWait)
	defer cancel()

	select {
	case g.slot <- struct{}{}:
		g.enter(holder)
		return nil

	case <-waitCtx.Done():
		// Check if original context was cancelled vs timeout
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrImportBusy
	}
}

// TryAcquire enters the gate without blocking.
func (g *CommitGate) TryAcquire(holder string) bool {
	select {
	case g.slot <- struct{}{}:
		g.enter(holder)
		return true
	default:
		return false
	}
}

func (g *CommitGate) enter(holder string) {
	g.mu.Lock()
	g.active++
	g.holder = holder
	g.since = time.Now()
	g.mu.Unlock()
}

// Release leaves the gate.
// Must be called exactly once for each successful Acquire/TryAcquire.
func (g *CommitGate) Release() {
	g.mu.Lock()
	g.active--
	g.holder = ""
	g.since = time.Time{}
	g.mu.Unlock()

	<-g.slot
}

// ActiveCount returns 1 while a commit is running.
func (g *CommitGate) ActiveCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active
}

// WaitForDrain blocks until the running commit completes or ctx is cancelled.
// Used for graceful shutdown.
func (g *CommitGate) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if g.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// CommitGateStatus is a snapshot of the gate.
type CommitGateStatus struct {
	Busy    bool      `json:"busy"`
	BatchID string    `json:"batchId,omitempty"`
	Since   time.Time `json:"since,omitempty"`
}

// Status returns the current gate state for monitoring/debugging.
func (g *CommitGate) Status() CommitGateStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return CommitGateStatus{
		Busy:    g.active > 0,
		BatchID: g.holder,
		Since:   g.since,
	}
}
