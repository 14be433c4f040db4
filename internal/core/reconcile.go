package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Outcome is what the reconciler did with an entry.
type Outcome int

const (
	OutcomeLedgerOnly Outcome = iota // sales never touch item state
	OutcomeZeroQty                   // recorded no-op
	OutcomeInbound                   // weighted-average update
	OutcomeReversal                  // quantity decrement, average unchanged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLedgerOnly:
		return "ledger_only"
	case OutcomeZeroQty:
		return "zero_qty"
	case OutcomeInbound:
		return "inbound"
	case OutcomeReversal:
		return "reversal"
	default:
		return "unknown"
	}
}

// Application is the effect of one entry on its item.
type Application struct {
	Outcome Outcome
	Created bool // the item did not exist before this entry
	Clamped bool // a reversal would have driven the quantity below zero

	// After and History are nil when the item is not mutated.
	After   *ItemState
	History *InboundHistoryRecord
}

// Mutates reports whether the application writes item state.
func (a Application) Mutates() bool { return a.After != nil }

// Reconcile applies e to current, which is nil for an unknown item. It does
// not modify current.
//
// Inbound (qty > 0):
//
//	newQty   = currentQty + qty
//	newValue = currentQty*averageUnitCost + qty*unitPrice
//	newAvg   = round(newValue / newQty)
//
// Rounding is to whole currency units, half away from zero. Averages below
// zero, reachable only through negative prices, are held at zero.
//
// Reversal (qty < 0) decrements the quantity and keeps the average. The
// quantity never drops below zero; the entry is flagged instead. A reversal
// against an unknown item creates nothing.
func Reconcile(current *ItemState, e LedgerEntry, at time.Time) Application {
	if e.DocType != DocPurchase {
		return Application{Outcome: OutcomeLedgerOnly}
	}

	qty := e.Quantity.Decimal()
	price := e.UnitPrice.Decimal()

	switch qty.Sign() {
	case 0:
		return Application{Outcome: OutcomeZeroQty}

	case -1:
		app := Application{Outcome: OutcomeReversal}
		if current == nil {
			app.Clamped = true
			return app
		}
		next := *current
		newQty := current.CurrentQty.Add(qty)
		if newQty.Sign() < 0 {
			newQty = decimal.Zero
			app.Clamped = true
		}
		next.CurrentQty = newQty
		next.UpdatedAt = at
		app.After = &next
		app.History = historyRecord(HistoryReversal, current, &next, e, app.Clamped, at)
		return app
	}

	app := Application{Outcome: OutcomeInbound}
	var base ItemState
	if current == nil {
		app.Created = true
		base = NewItemState(e, at)
	} else {
		base = *current
	}

	newQty := base.CurrentQty.Add(qty)
	newValue := base.CurrentQty.Mul(base.AverageUnitCost).Add(qty.Mul(price))
	newAvg := newValue.DivRound(newQty, 0)
	if newAvg.Sign() < 0 {
		newAvg = decimal.Zero
	}

	next := base
	next.CurrentQty = newQty
	next.AverageUnitCost = newAvg
	next.UpdatedAt = at

	app.After = &next
	app.History = historyRecord(HistoryInbound, &base, &next, e, false, at)
	return app
}

// NewItemState returns the empty state an item starts from on its first
// inbound entry.
func NewItemState(e LedgerEntry, at time.Time) ItemState {
	return ItemState{
		ItemID:          e.ItemID,
		DisplayName:     e.ItemName,
		Vendor:          e.Vendor,
		PartNo:          e.PartNo,
		Identity:        ItemIdentity(e.Vendor, e.PartNo, e.ItemName),
		CurrentQty:      decimal.Zero,
		AverageUnitCost: decimal.Zero,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
}

func historyRecord(kind HistoryKind, before, after *ItemState, e LedgerEntry, clamped bool, at time.Time) *InboundHistoryRecord {
	return &InboundHistoryRecord{
		ID:               uuid.NewString(),
		ItemID:           after.ItemID,
		IdempotencyKey:   e.IdempotencyKey,
		Kind:             kind,
		Qty:              e.Quantity.Decimal(),
		UnitPrice:        e.UnitPrice.Decimal(),
		PrevQty:          before.CurrentQty,
		PrevAvgCost:      before.AverageUnitCost,
		ResultingQty:     after.CurrentQty,
		ResultingAvgCost: after.AverageUnitCost,
		Clamped:          clamped,
		RecordedAt:       at,
	}
}
