package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/golab-ledger/internal/logging"
)

// commitLockName is the cross-process lock every commit holds. The imported
// key set is shared by all layouts, so there is one lock.
const commitLockName = "ledger-commit"

// maxRowAttempts bounds how often one row is planned again after its item
// changed underneath it.
const maxRowAttempts = 3

// CommitOptions configures one commit call.
type CommitOptions struct {
	// BatchIndex numbers the commits of one split import.
	BatchIndex int

	// From and To select rows[From-1:To] (1-based, inclusive, 0 = open end).
	From int
	To   int

	PriceThreshold decimal.Decimal // zero uses the service default
}

// Commit re-derives every row and applies the ones whose idempotency key is
// not yet imported, strictly in order. Each row's ledger write, key insert and
// item update are one atomic unit; an error or cancellation between rows
// leaves earlier rows committed, so calling Commit again with the same rows
// resumes where it stopped.
//
// On error the partial result is returned along with it.
func (s *Service) Commit(ctx context.Context, layout Layout, rows []RawRow, opts CommitOptions) (*BatchResult, error) {
	rows, err := SelectRows(rows, opts.From, opts.To)
	if err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	logger := logging.WithFields(ctx,
		"batch_id", batchID,
		"layout", layout.Key,
		"mode", ModeCommit,
		"batch_index", opts.BatchIndex,
	)

	if err := s.gate.Acquire(ctx, batchID); err != nil {
		return nil, err
	}
	defer s.gate.Release()

	held := ctx
	if s.locker != nil {
		lockCtx, release, err := s.locker.Obtain(ctx, commitLockName)
		if err != nil {
			return nil, err
		}
		held = lockCtx
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to release commit lock", "error", err)
			}
		}()
	}

	res := &BatchResult{}
	err = s.commitRows(held, logger, layout, rows, batchID, opts, res)

	ev := newAuditEvent(ctx, ModeCommit, layout.Key, batchID, opts.BatchIndex, *res, err, s.now())
	ev.RowFrom, ev.RowTo = opts.From, opts.To
	if auditErr := s.store.AppendAudit(context.WithoutCancel(ctx), ev); auditErr != nil {
		logger.Error("failed to append audit event", "error", auditErr)
		if err == nil {
			err = fmt.Errorf("append audit: %w", auditErr)
		}
	}

	if err != nil {
		logger.Error("commit failed",
			"error", err,
			"total", res.Total,
			"added", res.Added,
			"duplicates", res.Duplicates,
		)
		return res, err
	}

	logger.Info("commit complete",
		"total", res.Total,
		"valid", res.Valid,
		"added", res.Added,
		"duplicates", res.Duplicates,
		"new_items", res.NewItems,
		"clamped", res.Clamped,
	)
	return res, nil
}

func (s *Service) commitRows(ctx context.Context, logger *slog.Logger, layout Layout, rows []RawRow, batchID string, opts CommitOptions, res *BatchResult) error {
	state, err := newBatchState(ctx, s.store, s.threshold(opts.PriceThreshold), s.now())
	if err != nil {
		return err
	}

	for _, c := range ClassifyAll(layout, rows) {
		// Rows are never interrupted midway; cancellation is honoured here.
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		if c.Skipped() {
			res.Total++
			res.Skipped++
			continue
		}

		p, err := s.commitRow(ctx, logger, state, c.Entry, batchID)
		if err == nil && p.duplicate {
			res.Total++
			res.Valid++
			res.Duplicates++
			continue
		}
		if errors.Is(err, ErrDuplicateKey) {
			// Committed by someone else since the key set was loaded.
			logger.Debug("row committed concurrently", "row", p.entry.SourceRowRef)
			state.keys[p.entry.IdempotencyKey] = struct{}{}
			res.Total++
			res.Valid++
			res.Duplicates++
			continue
		}
		if err != nil {
			return fmt.Errorf("commit row %s: %w", p.entry.SourceRowRef, err)
		}

		res.Total++
		res.Valid++
		res.count(p)
		state.apply(p)

		if p.app.Clamped {
			logger.Warn("reversal clamped at zero",
				"row", p.entry.SourceRowRef,
				"item_id", p.entry.ItemID,
				"qty", p.entry.Quantity.String(),
			)
		}
	}
	return nil
}

// commitRow plans e and persists it as one atomic unit. When the stored item
// no longer matches the plan, the cached state is dropped and the row is
// planned again. A duplicate plan is returned without writing.
func (s *Service) commitRow(ctx context.Context, logger *slog.Logger, state *batchState, e LedgerEntry, batchID string) (rowPlan, error) {
	for attempt := 1; ; attempt++ {
		state.now = s.now()
		p, err := state.plan(ctx, e)
		if err != nil || p.duplicate {
			return p, err
		}

		p.entry.BatchID = batchID
		p.entry.ImportedAt = state.now
		err = s.store.InRow(ctx, func(w RowWriter) error {
			if err := w.AppendEntry(ctx, p.entry); err != nil {
				return err
			}
			if p.app.After == nil {
				return nil
			}
			if err := w.PutItem(ctx, p.before, *p.app.After); err != nil {
				return fmt.Errorf("put item %s: %w", p.app.After.ItemID, err)
			}
			if p.app.History != nil {
				if err := w.AppendHistory(ctx, *p.app.History); err != nil {
					return fmt.Errorf("append history %s: %w", p.app.History.ItemID, err)
				}
			}
			return nil
		})
		if !errors.Is(err, ErrItemStateChanged) || attempt == maxRowAttempts {
			return p, err
		}

		logger.Warn("item changed during commit, planning row again",
			"row", e.SourceRowRef,
			"item_id", e.ItemID,
			"attempt", attempt,
		)
		state.forget(e.ItemID)
	}
}

// ImportReport is the outcome of a full dry-run-then-commit import.
type ImportReport struct {
	DryRun  *DryRunReport  `json:"dryRun"`
	Commits []*BatchResult `json:"commits"`
}

// Import runs a dry run and, when it is a go, commits the rows in two calls:
// the first FirstBatchSize rows, then the remainder. It stops at the first
// failing commit; rerunning Import resumes safely.
func (s *Service) Import(ctx context.Context, layout Layout, rows []RawRow, dry DryRunOptions) (*ImportReport, error) {
	report := &ImportReport{}

	dr, err := s.DryRun(ctx, layout, rows, dry)
	if err != nil {
		return report, err
	}
	report.DryRun = dr
	if err := dr.Err(); err != nil {
		return report, err
	}

	ranges := [][2]int{{1, s.opts.FirstBatchSize}}
	if len(rows) > s.opts.FirstBatchSize {
		ranges = append(ranges, [2]int{s.opts.FirstBatchSize + 1, 0})
	}

	for i, r := range ranges {
		res, err := s.Commit(ctx, layout, rows, CommitOptions{
			BatchIndex:     i,
			From:           r[0],
			To:             r[1],
			PriceThreshold: dry.PriceThreshold,
		})
		if res != nil {
			report.Commits = append(report.Commits, res)
		}
		if err != nil {
			return report, fmt.Errorf("commit batch %d: %w", i, err)
		}
	}
	return report, nil
}

// Totals sums the commit results.
func (r *ImportReport) Totals() BatchResult {
	var t BatchResult
	for _, c := range r.Commits {
		t.Total += c.Total
		t.Skipped += c.Skipped
		t.Valid += c.Valid
		t.Duplicates += c.Duplicates
		t.Added += c.Added
		t.NewItems += c.NewItems
		t.UpdatedItems += c.UpdatedItems
		t.ZeroQty += c.ZeroQty
		t.PriceAnomalies += c.PriceAnomalies
		t.Reversals += c.Reversals
		t.Clamped += c.Clamped
		t.LedgerOnly += c.LedgerOnly
	}
	return t
}
