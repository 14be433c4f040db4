package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var testTime = time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)

func purchase(qty, price Number) LedgerEntry {
	e := LedgerEntry{
		OccurredDate: "2025-01-02",
		Vendor:       "골랩",
		ItemName:     "케이블",
		Quantity:     qty,
		UnitPrice:    price,
		Currency:     DefaultCurrency,
		DocType:      DocPurchase,
	}
	e.ItemID = DeriveItemID(e.Vendor, e.PartNo, e.ItemName)
	return e
}

// applyAll reconciles entries in order and returns the final state.
func applyAll(t *testing.T, entries ...LedgerEntry) (*ItemState, []Application) {
	t.Helper()
	var st *ItemState
	apps := make([]Application, 0, len(entries))
	for _, e := range entries {
		app := Reconcile(st, e, testTime)
		if app.After != nil {
			next := *app.After
			st = &next
		}
		apps = append(apps, app)
	}
	return st, apps
}

func TestReconcile_WeightedAverage(t *testing.T) {
	st, apps := applyAll(t,
		purchase(IntNumber(2), IntNumber(412000)),
		purchase(IntNumber(0), IntNumber(999999)),
		purchase(IntNumber(3), IntNumber(400000)),
	)

	if !apps[0].Created || apps[0].Outcome != OutcomeInbound {
		t.Errorf("first entry = %+v, want created inbound", apps[0])
	}
	if apps[1].Outcome != OutcomeZeroQty || apps[1].Mutates() {
		t.Errorf("zero qty entry = %+v, want non-mutating zero_qty", apps[1])
	}
	if apps[2].Created {
		t.Error("third entry Created = true, want false")
	}

	if !st.CurrentQty.Equal(decimal.NewFromInt(5)) {
		t.Errorf("CurrentQty = %s, want 5", st.CurrentQty)
	}
	if !st.AverageUnitCost.Equal(decimal.NewFromInt(404800)) {
		t.Errorf("AverageUnitCost = %s, want 404800", st.AverageUnitCost)
	}
	if got := st.AssetValue(); !got.Equal(decimal.NewFromInt(2024000)) {
		t.Errorf("AssetValue = %s, want 2024000", got)
	}
}

func TestReconcile_Rounding(t *testing.T) {
	tests := []struct {
		name    string
		entries []LedgerEntry
		wantAvg int64
	}{
		{
			name: "rounds down",
			entries: []LedgerEntry{
				purchase(IntNumber(10), IntNumber(0)),
				purchase(IntNumber(5), IntNumber(100)),
			},
			wantAvg: 33, // 500 / 15 = 33.33
		},
		{
			name: "half rounds away from zero",
			entries: []LedgerEntry{
				purchase(IntNumber(1), IntNumber(100)),
				purchase(IntNumber(1), IntNumber(101)),
			},
			wantAvg: 101, // 201 / 2 = 100.5
		},
		{
			name: "fractional quantity",
			entries: []LedgerEntry{
				purchase(RealNumber(1.5), IntNumber(1000)),
				purchase(RealNumber(0.5), IntNumber(2000)),
			},
			wantAvg: 1250,
		},
		{
			name: "negative price clamps average",
			entries: []LedgerEntry{
				purchase(IntNumber(1), IntNumber(-500)),
			},
			wantAvg: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, _ := applyAll(t, tt.entries...)
			if !st.AverageUnitCost.Equal(decimal.NewFromInt(tt.wantAvg)) {
				t.Errorf("AverageUnitCost = %s, want %d", st.AverageUnitCost, tt.wantAvg)
			}
		})
	}
}

func TestReconcile_Reversal(t *testing.T) {
	st, apps := applyAll(t,
		purchase(IntNumber(2), IntNumber(1000)),
		purchase(IntNumber(-5), IntNumber(1000)),
	)

	rev := apps[1]
	if rev.Outcome != OutcomeReversal {
		t.Fatalf("Outcome = %s, want reversal", rev.Outcome)
	}
	if !rev.Clamped {
		t.Error("Clamped = false, want true")
	}
	if !st.CurrentQty.IsZero() {
		t.Errorf("CurrentQty = %s, want 0", st.CurrentQty)
	}
	if !st.AverageUnitCost.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("AverageUnitCost = %s, want 1000 (unchanged)", st.AverageUnitCost)
	}
	if rev.History == nil || rev.History.Kind != HistoryReversal || !rev.History.Clamped {
		t.Errorf("History = %+v, want clamped reversal record", rev.History)
	}
}

func TestReconcile_PartialReversal(t *testing.T) {
	st, apps := applyAll(t,
		purchase(IntNumber(5), IntNumber(1000)),
		purchase(IntNumber(-2), IntNumber(3000)),
	)
	if apps[1].Clamped {
		t.Error("Clamped = true, want false")
	}
	if !st.CurrentQty.Equal(decimal.NewFromInt(3)) {
		t.Errorf("CurrentQty = %s, want 3", st.CurrentQty)
	}
	if !st.AverageUnitCost.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("AverageUnitCost = %s, want 1000", st.AverageUnitCost)
	}
}

func TestReconcile_ReversalUnknownItem(t *testing.T) {
	app := Reconcile(nil, purchase(IntNumber(-1), IntNumber(1000)), testTime)
	if app.Mutates() || app.Created {
		t.Errorf("app = %+v, want no item created", app)
	}
	if !app.Clamped {
		t.Error("Clamped = false, want true")
	}
}

func TestReconcile_SaleIsLedgerOnly(t *testing.T) {
	sale := purchase(IntNumber(3), IntNumber(5000))
	sale.DocType = DocSale

	current := NewItemState(purchase(IntNumber(1), IntNumber(1)), testTime)
	current.CurrentQty = decimal.NewFromInt(10)

	app := Reconcile(&current, sale, testTime)
	if app.Outcome != OutcomeLedgerOnly || app.Mutates() {
		t.Errorf("app = %+v, want ledger-only", app)
	}
	if !current.CurrentQty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("current modified: CurrentQty = %s", current.CurrentQty)
	}
}

func TestReconcile_DoesNotModifyCurrent(t *testing.T) {
	current := NewItemState(purchase(IntNumber(1), IntNumber(1)), testTime)
	current.CurrentQty = decimal.NewFromInt(2)
	current.AverageUnitCost = decimal.NewFromInt(100)

	app := Reconcile(&current, purchase(IntNumber(2), IntNumber(300)), testTime)
	if !current.CurrentQty.Equal(decimal.NewFromInt(2)) || !current.AverageUnitCost.Equal(decimal.NewFromInt(100)) {
		t.Errorf("current modified: %+v", current)
	}

	h := app.History
	if h == nil {
		t.Fatal("History = nil")
	}
	if !h.PrevQty.Equal(decimal.NewFromInt(2)) || !h.ResultingQty.Equal(decimal.NewFromInt(4)) {
		t.Errorf("history qty %s -> %s, want 2 -> 4", h.PrevQty, h.ResultingQty)
	}
	if !h.ResultingAvgCost.Equal(decimal.NewFromInt(200)) {
		t.Errorf("ResultingAvgCost = %s, want 200", h.ResultingAvgCost)
	}
}

func TestOutcome_String(t *testing.T) {
	tests := map[Outcome]string{
		OutcomeLedgerOnly: "ledger_only",
		OutcomeZeroQty:    "zero_qty",
		OutcomeInbound:    "inbound",
		OutcomeReversal:   "reversal",
		Outcome(99):       "unknown",
	}
	for o, want := range tests {
		if got := o.String(); got != want {
			t.Errorf("Outcome(%d).String() = %q, want %q", int(o), got, want)
		}
	}
}
