package core

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultFirstBatchSize is the size of the first commit of a full import.
const DefaultFirstBatchSize = 50

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// CommitWait bounds how long a commit waits for the commit gate.
	CommitWait time.Duration

	// PriceThreshold flags unit prices above it as anomalies. Zero disables
	// the upper bound; negative prices are always flagged.
	PriceThreshold decimal.Decimal

	// FirstBatchSize is the row count of the first commit in Import.
	FirstBatchSize int

	// Locker serializes commits across processes. Optional.
	Locker Locker

	// Now overrides the clock. Optional.
	Now func() time.Time
}

// Service is the entry point for imports and inventory queries.
type Service struct {
	store  Store
	gate   *CommitGate
	locker Locker
	opts   ServiceOptions
	now    func() time.Time
}

// NewService creates a Service persisting to store.
func NewService(store Store, opts ServiceOptions) *Service {
	if opts.FirstBatchSize <= 0 {
		opts.FirstBatchSize = DefaultFirstBatchSize
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:  store,
		gate:   NewCommitGate(opts.CommitWait),
		locker: opts.Locker,
		opts:   opts,
		now:    now,
	}
}

// CommitStatus returns the state of the in-process commit gate.
func (s *Service) CommitStatus() CommitGateStatus {
	return s.gate.Status()
}

// WaitForCommits blocks until the running commit finishes or ctx is done.
func (s *Service) WaitForCommits(ctx context.Context) error {
	return s.gate.WaitForDrain(ctx)
}

// Item returns the state and history of one item.
func (s *Service) Item(ctx context.Context, itemID string) (*ItemState, []InboundHistoryRecord, error) {
	st, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, nil, fmt.Errorf("get item %s: %w", itemID, err)
	}
	if st == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	hist, err := s.store.ItemHistory(ctx, itemID)
	if err != nil {
		return nil, nil, fmt.Errorf("item history %s: %w", itemID, err)
	}
	return st, hist, nil
}

// Items returns every item state.
func (s *Service) Items(ctx context.Context) ([]ItemState, error) {
	return s.store.ListItems(ctx)
}

// Entries returns committed ledger entries.
func (s *Service) Entries(ctx context.Context, f EntryFilter) ([]LedgerEntry, error) {
	return s.store.ListEntries(ctx, f)
}

// AuditLog returns audit events, newest first.
func (s *Service) AuditLog(ctx context.Context, f AuditFilter) ([]AuditEvent, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultAuditLimit
	}
	return s.store.ListAudit(ctx, f)
}

// lastCommit returns the most recent commit event for layout, or nil.
func (s *Service) lastCommit(ctx context.Context, layout string) (*AuditEvent, error) {
	evs, err := s.store.ListAudit(ctx, AuditFilter{Kind: ModeCommit, Layout: layout, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(evs) == 0 {
		return nil, nil
	}
	return &evs[0], nil
}

func (s *Service) threshold(override decimal.Decimal) decimal.Decimal {
	if override.Sign() > 0 {
		return override
	}
	return s.opts.PriceThreshold
}
