package core

// batch.go holds the per-row evaluation shared by dry runs and commits.
//
// Both walk the classified rows in order against a batchState that starts
// from the durable key set and item states and accumulates the effect of the
// rows before it. A dry run only updates the batchState; a commit also
// persists each row before updating it.

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type batchState struct {
	store     ItemStore
	keys      map[string]struct{}
	items     map[string]*ItemState // nil value: looked up, not found
	threshold decimal.Decimal
	now       time.Time
}

func newBatchState(ctx context.Context, store Store, threshold decimal.Decimal, now time.Time) (*batchState, error) {
	keys, err := store.ImportedKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("load imported keys: %w", err)
	}
	return &batchState{
		store:     store,
		keys:      keys,
		items:     make(map[string]*ItemState),
		threshold: threshold,
		now:       now,
	}, nil
}

// rowPlan is the evaluated effect of one accepted row.
type rowPlan struct {
	entry     LedgerEntry
	duplicate bool
	anomaly   bool
	app       Application
	before    *ItemState // stored state app was computed from
}

func (b *batchState) item(ctx context.Context, id string) (*ItemState, error) {
	if st, ok := b.items[id]; ok {
		return st, nil
	}
	st, err := b.store.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	b.items[id] = st
	return st, nil
}

// forget drops the cached state of id so the next plan reads it again.
func (b *batchState) forget(id string) {
	delete(b.items, id)
}

// plan evaluates an accepted entry without changing the batch state.
func (b *batchState) plan(ctx context.Context, e LedgerEntry) (rowPlan, error) {
	p := rowPlan{entry: e}
	if _, dup := b.keys[e.IdempotencyKey]; dup {
		p.duplicate = true
		return p, nil
	}
	p.anomaly = isPriceAnomaly(e.UnitPrice.Decimal(), b.threshold)

	var current *ItemState
	if e.DocType == DocPurchase && !e.Quantity.IsZero() {
		st, err := b.item(ctx, e.ItemID)
		if err != nil {
			return p, err
		}
		if st != nil {
			if want := ItemIdentity(e.Vendor, e.PartNo, e.ItemName); st.Identity != want {
				return p, fmt.Errorf("%w: %s is %q, row %s is %q",
					ErrItemIdentityCollision, e.ItemID, st.Identity, e.SourceRowRef, want)
			}
		}
		current = st
	}
	p.before = current
	p.app = Reconcile(current, e, b.now)
	return p, nil
}

// apply folds an accepted, non-duplicate plan into the batch state.
func (b *batchState) apply(p rowPlan) {
	b.keys[p.entry.IdempotencyKey] = struct{}{}
	if p.app.After != nil {
		next := *p.app.After
		b.items[next.ItemID] = &next
	}
}

// count records an added row in res.
func (res *BatchResult) count(p rowPlan) {
	res.Added++
	if p.anomaly {
		res.PriceAnomalies++
	}
	switch p.app.Outcome {
	case OutcomeLedgerOnly:
		res.LedgerOnly++
	case OutcomeZeroQty:
		res.ZeroQty++
	case OutcomeInbound:
		if p.app.Created {
			res.NewItems++
		} else {
			res.UpdatedItems++
		}
	case OutcomeReversal:
		res.Reversals++
		if p.app.Mutates() {
			res.UpdatedItems++
		}
	}
	if p.app.Clamped {
		res.Clamped++
	}
}

// isPriceAnomaly flags negative prices, and prices above threshold when the
// threshold is positive.
func isPriceAnomaly(price, threshold decimal.Decimal) bool {
	if price.Sign() < 0 {
		return true
	}
	return threshold.Sign() > 0 && price.GreaterThan(threshold)
}

// SelectRows returns rows[from-1:to]. Positions are 1-based and inclusive;
// zero leaves that end unbounded.
func SelectRows(rows []RawRow, from, to int) ([]RawRow, error) {
	if from < 0 || to < 0 || (to > 0 && from > to) {
		return nil, fmt.Errorf("invalid row range %d-%d", from, to)
	}
	if from == 0 {
		from = 1
	}
	if from > len(rows) {
		return nil, nil
	}
	if to == 0 || to > len(rows) {
		to = len(rows)
	}
	return rows[from-1 : to], nil
}
