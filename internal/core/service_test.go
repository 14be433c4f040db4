package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestService(store Store, opts ServiceOptions) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return testTime }
	}
	return NewService(store, opts)
}

// ledgerRows builds n purchase rows spread over items distinct items, plus a
// blank row every tenth position.
func ledgerRows(n, items int) []RawRow {
	rows := make([]RawRow, 0, n)
	for i := 0; i < n; i++ {
		idx := testPurchase.FirstDataRow + i
		if i%10 == 9 {
			rows = append(rows, RawRow{Sheet: "구매", Index: idx})
			continue
		}
		rows = append(rows, purchaseRow(idx,
			fmt.Sprintf("2024-03-%02d", i%28+1),
			"Acme",
			fmt.Sprintf("P-%d", i%items),
			fmt.Sprintf("Widget %d", i%items),
			IntCell(int64(i%7+1)),
			IntCell(int64(1000+i*13)),
		))
	}
	return rows
}

func itemSnapshot(t *testing.T, store Store) map[string]string {
	t.Helper()
	items, err := store.ListItems(context.Background())
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	out := make(map[string]string, len(items))
	for _, it := range items {
		out[it.ItemID] = it.CurrentQty.String() + "@" + it.AverageUnitCost.String()
	}
	return out
}

func entryCount(t *testing.T, store Store) int {
	t.Helper()
	entries, err := store.ListEntries(context.Background(), EntryFilter{})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	return len(entries)
}

func TestCommit_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	svc := newTestService(store, ServiceOptions{})
	rows := ledgerRows(100, 12)

	first, err := svc.Commit(ctx, testPurchase, rows, CommitOptions{})
	if err != nil {
		t.Fatalf("first Commit: %v", err)
	}
	if first.Total != 100 || first.Skipped != 10 || first.Added != 90 {
		t.Errorf("first = %+v, want total 100, skipped 10, added 90", first)
	}
	if first.NewItems != 12 || first.UpdatedItems != 78 {
		t.Errorf("first NewItems/UpdatedItems = %d/%d, want 12/78", first.NewItems, first.UpdatedItems)
	}
	if !first.Balanced() {
		t.Errorf("first not balanced: %+v", first)
	}
	before := itemSnapshot(t, store)

	second, err := svc.Commit(ctx, testPurchase, rows, CommitOptions{})
	if err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	if second.Added != 0 || second.Duplicates != second.Valid || second.Valid != 90 {
		t.Errorf("second = %+v, want every valid row duplicate", second)
	}
	if got := entryCount(t, store); got != 90 {
		t.Errorf("entries = %d, want 90", got)
	}

	after := itemSnapshot(t, store)
	for id, v := range before {
		if after[id] != v {
			t.Errorf("item %s = %s after rerun, want %s", id, after[id], v)
		}
	}
}

func TestCommit_PartialThenFull(t *testing.T) {
	ctx := context.Background()
	rows := ledgerRows(581, 40)

	store := NewMemStore()
	svc := newTestService(store, ServiceOptions{})

	head, err := svc.Commit(ctx, testPurchase, rows, CommitOptions{From: 1, To: 50})
	if err != nil {
		t.Fatalf("Commit(1-50): %v", err)
	}
	if head.Total != 50 {
		t.Errorf("head.Total = %d, want 50", head.Total)
	}

	full, err := svc.Commit(ctx, testPurchase, rows, CommitOptions{})
	if err != nil {
		t.Fatalf("Commit(all): %v", err)
	}
	if full.Duplicates != head.Added {
		t.Errorf("full.Duplicates = %d, want %d", full.Duplicates, head.Added)
	}
	if got, want := entryCount(t, store), head.Added+full.Added; got != want {
		t.Errorf("entries = %d, want %d", got, want)
	}

	// Same end state as one clean commit.
	clean := NewMemStore()
	if _, err := newTestService(clean, ServiceOptions{}).Commit(ctx, testPurchase, rows, CommitOptions{}); err != nil {
		t.Fatalf("clean Commit: %v", err)
	}
	if got, want := entryCount(t, store), entryCount(t, clean); got != want {
		t.Errorf("entries = %d, want %d", got, want)
	}
	want := itemSnapshot(t, clean)
	got := itemSnapshot(t, store)
	for id, v := range want {
		if got[id] != v {
			t.Errorf("item %s = %s, want %s", id, got[id], v)
		}
	}
}

func TestCommit_InvalidRange(t *testing.T) {
	svc := newTestService(NewMemStore(), ServiceOptions{})
	_, err := svc.Commit(context.Background(), testPurchase, ledgerRows(5, 1), CommitOptions{From: 4, To: 2})
	if err == nil {
		t.Fatal("Commit(4-2) = nil, want error")
	}
	if got := MapError(err).Code; got != "IMP005" {
		t.Errorf("MapError code = %s, want IMP005", got)
	}
}

// flakyStore fails the nth row write.
type flakyStore struct {
	*MemStore
	mu     sync.Mutex
	calls  int
	failAt int
}

func (f *flakyStore) InRow(ctx context.Context, fn func(w RowWriter) error) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls == f.failAt
	f.mu.Unlock()

	if fail {
		return errors.New("connection reset by peer")
	}
	return f.MemStore.InRow(ctx, fn)
}

func TestCommit_ResumesAfterFailure(t *testing.T) {
	ctx := context.Background()
	rows := ledgerRows(60, 5)

	store := &flakyStore{MemStore: NewMemStore(), failAt: 20}
	svc := newTestService(store, ServiceOptions{})

	res, err := svc.Commit(ctx, testPurchase, rows, CommitOptions{})
	if err == nil {
		t.Fatal("Commit = nil, want error")
	}
	if res == nil || res.Added != 19 {
		t.Fatalf("partial result = %+v, want 19 added", res)
	}
	if got := MapError(err).Code; got != "DB005" {
		t.Errorf("MapError code = %s, want DB005", got)
	}
	if got := entryCount(t, store); got != 19 {
		t.Errorf("entries after failure = %d, want 19", got)
	}

	res, err = svc.Commit(ctx, testPurchase, rows, CommitOptions{})
	if err != nil {
		t.Fatalf("resumed Commit: %v", err)
	}
	if res.Duplicates != 19 {
		t.Errorf("resumed Duplicates = %d, want 19", res.Duplicates)
	}

	clean := NewMemStore()
	if _, err := newTestService(clean, ServiceOptions{}).Commit(ctx, testPurchase, rows, CommitOptions{}); err != nil {
		t.Fatalf("clean Commit: %v", err)
	}
	want := itemSnapshot(t, clean)
	got := itemSnapshot(t, store)
	if len(got) != len(want) {
		t.Errorf("items = %d, want %d", len(got), len(want))
	}
	for id, v := range want {
		if got[id] != v {
			t.Errorf("item %s = %s, want %s", id, got[id], v)
		}
	}

	events, _ := svc.AuditLog(ctx, AuditFilter{Kind: ModeCommit})
	if len(events) != 2 {
		t.Fatalf("commit events = %d, want 2", len(events))
	}
	if events[1].Severity != SeverityCritical || !events[1].Failed() {
		t.Errorf("failed commit event = %+v, want critical failure", events[1])
	}
	if events[0].Severity != SeverityHigh || events[0].Failed() {
		t.Errorf("resumed commit event = %+v, want high success", events[0])
	}
}

func TestCommit_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemStore()
	svc := newTestService(store, ServiceOptions{})
	_, err := svc.Commit(ctx, testPurchase, ledgerRows(20, 3), CommitOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Commit = %v, want context.Canceled", err)
	}
	if got := entryCount(t, store); got != 0 {
		t.Errorf("entries = %d, want 0", got)
	}
}

func TestCommit_Busy(t *testing.T) {
	svc := newTestService(NewMemStore(), ServiceOptions{CommitWait: 20 * time.Millisecond})
	if !svc.gate.TryAcquire("other-batch") {
		t.Fatal("TryAcquire failed")
	}
	defer svc.gate.Release()

	if st := svc.CommitStatus(); !st.Busy || st.BatchID != "other-batch" {
		t.Errorf("CommitStatus = %+v, want busy with other-batch", st)
	}

	_, err := svc.Commit(context.Background(), testPurchase, ledgerRows(3, 1), CommitOptions{})
	if !errors.Is(err, ErrImportBusy) {
		t.Errorf("Commit = %v, want ErrImportBusy", err)
	}
}

type fakeLocker struct {
	mu       sync.Mutex
	err      error
	lost     bool // hand out a lock that is already lost
	obtained []string
	released int
}

func (l *fakeLocker) Obtain(ctx context.Context, name string) (context.Context, func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, nil, l.err
	}
	l.obtained = append(l.obtained, name)
	held, cancel := context.WithCancelCause(ctx)
	if l.lost {
		cancel(ErrLockLost)
	}
	return held, func(context.Context) error {
		cancel(nil)
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released++
		return nil
	}, nil
}

func TestCommit_Locker(t *testing.T) {
	ctx := context.Background()
	locker := &fakeLocker{}
	svc := newTestService(NewMemStore(), ServiceOptions{Locker: locker})

	if _, err := svc.Commit(ctx, testPurchase, ledgerRows(5, 2), CommitOptions{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(locker.obtained) != 1 || locker.obtained[0] != commitLockName {
		t.Errorf("obtained = %v, want [%s]", locker.obtained, commitLockName)
	}
	if locker.released != 1 {
		t.Errorf("released = %d, want 1", locker.released)
	}

	locker.err = ErrImportBusy
	if _, err := svc.Commit(ctx, testPurchase, ledgerRows(5, 2), CommitOptions{}); !errors.Is(err, ErrImportBusy) {
		t.Errorf("Commit with held lock = %v, want ErrImportBusy", err)
	}
	if st := svc.CommitStatus(); st.Busy {
		t.Error("gate still busy after lock failure")
	}
}

func TestCommit_LockLost(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	locker := &fakeLocker{lost: true}
	svc := newTestService(store, ServiceOptions{Locker: locker})

	res, err := svc.Commit(ctx, testPurchase, ledgerRows(5, 2), CommitOptions{})
	if !errors.Is(err, ErrLockLost) {
		t.Fatalf("Commit = %v, want ErrLockLost", err)
	}
	if code := MapError(err).Code; code != "IMP006" {
		t.Errorf("code = %s, want IMP006", code)
	}
	if res.Added != 0 || entryCount(t, store) != 0 {
		t.Errorf("added = %d, entries = %d, want nothing written", res.Added, entryCount(t, store))
	}
	if locker.released != 1 {
		t.Errorf("released = %d, want 1", locker.released)
	}

	locker.lost = false
	res, err = svc.Commit(ctx, testPurchase, ledgerRows(5, 2), CommitOptions{})
	if err != nil {
		t.Fatalf("Commit after regaining lock: %v", err)
	}
	if res.Added != 5 {
		t.Errorf("added = %d, want 5", res.Added)
	}
}

// interleavedStore runs before once, ahead of the first row write. It stands
// in for another process committing after this batch planned its first row.
type interleavedStore struct {
	*MemStore
	once   sync.Once
	before func()
}

func (s *interleavedStore) InRow(ctx context.Context, fn func(w RowWriter) error) error {
	s.once.Do(s.before)
	return s.MemStore.InRow(ctx, fn)
}

func TestCommit_ItemChangedAfterPlan(t *testing.T) {
	ctx := context.Background()
	mem := NewMemStore()
	other := newTestService(mem, ServiceOptions{})

	store := &interleavedStore{MemStore: mem}
	store.before = func() {
		first := purchaseRow(2, "2024-03-01", "Acme", "P-1", "Widget", IntCell(2), IntCell(412000))
		if _, err := other.Commit(ctx, testPurchase, []RawRow{first}, CommitOptions{}); err != nil {
			t.Errorf("concurrent Commit: %v", err)
		}
	}
	svc := newTestService(store, ServiceOptions{})

	second := purchaseRow(3, "2024-03-02", "Acme", "P-1", "Widget", IntCell(3), IntCell(400000))
	res, err := svc.Commit(ctx, testPurchase, []RawRow{second}, CommitOptions{})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.Added != 1 || res.NewItems != 0 || res.UpdatedItems != 1 {
		t.Errorf("result = %+v, want 1 added updating an existing item", *res)
	}

	id := DeriveItemID("Acme", "P-1", "Widget")
	if got := itemSnapshot(t, mem)[id]; got != "5@404800" {
		t.Errorf("item = %s, want 5@404800", got)
	}
	if got := entryCount(t, mem); got != 2 {
		t.Errorf("entries = %d, want 2", got)
	}
}

func TestMemStore_PutItemConditional(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	e := purchase(IntNumber(2), IntNumber(100))
	st := NewItemState(e, testTime)
	st.CurrentQty = decimal.NewFromInt(2)
	st.AverageUnitCost = decimal.NewFromInt(100)

	put := func(prev *ItemState, next ItemState) error {
		return store.InRow(ctx, func(w RowWriter) error { return w.PutItem(ctx, prev, next) })
	}

	if err := put(nil, st); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := put(nil, st); !errors.Is(err, ErrItemStateChanged) {
		t.Errorf("create over existing = %v, want ErrItemStateChanged", err)
	}

	next := st
	next.CurrentQty = decimal.NewFromInt(5)
	stale := st
	stale.CurrentQty = decimal.NewFromInt(1)
	if err := put(&stale, next); !errors.Is(err, ErrItemStateChanged) {
		t.Errorf("update from stale = %v, want ErrItemStateChanged", err)
	}
	// 2.0 and 2 are the same stock.
	same := st
	same.CurrentQty = decimal.RequireFromString("2.0")
	if err := put(&same, next); err != nil {
		t.Errorf("update from current: %v", err)
	}
	if got := itemSnapshot(t, store)[st.ItemID]; got != "5@100" {
		t.Errorf("item = %s, want 5@100", got)
	}
}

func TestCommit_OutcomeCounters(t *testing.T) {
	sale := func(index int, date, customer, item string, qty int64) RawRow {
		return RawRow{Sheet: "1월", Index: index, Cells: []Cell{
			TextCell(date), EmptyCell(), EmptyCell(), EmptyCell(),
			TextCell(customer), EmptyCell(), TextCell(item), IntCell(qty), IntCell(50000),
		}}
	}
	cable := DeriveItemID("Acme", "C-1", "Cable")
	scope := DeriveItemID("Acme", "S-9", "Scope")

	tests := []struct {
		name   string
		layout Layout
		rows   []RawRow
		want   BatchResult
		items  map[string]string
	}{
		{
			name:   "purchase mix",
			layout: testPurchase,
			rows: []RawRow{
				purchaseRow(2, "2024-03-01", "Acme", "C-1", "Cable", IntCell(2), IntCell(412000)),
				purchaseRow(3, "2024-03-02", "Acme", "C-1", "Cable", IntCell(-5), IntCell(412000)),
				purchaseRow(4, "2024-03-03", "Acme", "C-1", "Cable", IntCell(0), IntCell(412000)),
				purchaseRow(5, "2024-03-04", "Acme", "G-0", "Ghost", IntCell(-1), IntCell(1000)),
				purchaseRow(6, "2024-03-05", "Acme", "S-9", "Scope", IntCell(1), IntCell(900000)),
				{Sheet: "구매", Index: 7},
			},
			want: BatchResult{
				Total: 6, Skipped: 1, Valid: 5, Added: 5,
				NewItems: 2, UpdatedItems: 1, ZeroQty: 1,
				PriceAnomalies: 1, Reversals: 2, Clamped: 2,
			},
			items: map[string]string{cable: "0@412000", scope: "1@900000"},
		},
		{
			name:   "sales",
			layout: testSales,
			rows: []RawRow{
				sale(6, "2025-01-02", "고객A", "케이블", 2),
				sale(7, "2025-01-03", "고객B", "케이블", -1),
			},
			want:  BatchResult{Total: 2, Valid: 2, Added: 2, LedgerOnly: 2},
			items: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewMemStore()
			svc := newTestService(store, ServiceOptions{PriceThreshold: decimal.NewFromInt(500000)})

			res, err := svc.Commit(ctx, tt.layout, tt.rows, CommitOptions{})
			if err != nil {
				t.Fatalf("Commit: %v", err)
			}
			if *res != tt.want {
				t.Errorf("result = %+v, want %+v", *res, tt.want)
			}
			if !res.Balanced() {
				t.Errorf("result %+v not balanced", *res)
			}

			got := itemSnapshot(t, store)
			if len(got) != len(tt.items) {
				t.Errorf("items = %v, want %v", got, tt.items)
			}
			for id, want := range tt.items {
				if got[id] != want {
					t.Errorf("item %s = %s, want %s", id, got[id], want)
				}
			}

			again, err := svc.Commit(ctx, tt.layout, tt.rows, CommitOptions{})
			if err != nil {
				t.Fatalf("second Commit: %v", err)
			}
			if again.Duplicates != tt.want.Valid || again.Added != 0 || !again.Balanced() {
				t.Errorf("second result = %+v, want all %d valid rows duplicate", *again, tt.want.Valid)
			}
		})
	}
}

func seedCollision(t *testing.T, store *MemStore) LedgerEntry {
	t.Helper()
	e := purchase(IntNumber(1), IntNumber(100))
	st := NewItemState(e, testTime)
	st.Identity = "someone|else|entirely"
	err := store.InRow(context.Background(), func(w RowWriter) error {
		return w.PutItem(context.Background(), nil, st)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return e
}

func TestCommit_IdentityCollision(t *testing.T) {
	store := NewMemStore()
	e := seedCollision(t, store)
	svc := newTestService(store, ServiceOptions{})

	row := purchaseRow(2, e.OccurredDate, e.Vendor, "", e.ItemName, IntCell(1), IntCell(100))
	_, err := svc.Commit(context.Background(), testPurchase, []RawRow{row}, CommitOptions{})
	if !errors.Is(err, ErrItemIdentityCollision) {
		t.Fatalf("Commit = %v, want ErrItemIdentityCollision", err)
	}
	if got := entryCount(t, store); got != 0 {
		t.Errorf("entries = %d, want 0", got)
	}
}

func TestDryRun_IdentityCollision(t *testing.T) {
	store := NewMemStore()
	e := seedCollision(t, store)
	svc := newTestService(store, ServiceOptions{})

	rows := []RawRow{
		purchaseRow(2, e.OccurredDate, e.Vendor, "", e.ItemName, IntCell(1), IntCell(100)),
		purchaseRow(3, e.OccurredDate, "Other", "", "Thing", IntCell(1), IntCell(100)),
	}
	dr, err := svc.DryRun(context.Background(), testPurchase, rows, DryRunOptions{})
	if err != nil {
		t.Fatalf("DryRun: %v", err)
	}
	if dr.Go {
		t.Error("Go = true, want false")
	}
	if !errors.Is(dr.Err(), ErrItemIdentityCollision) {
		t.Errorf("Err() = %v, want ErrItemIdentityCollision", dr.Err())
	}
	if dr.Result.Total != 2 || !dr.Result.Balanced() {
		t.Errorf("Result = %+v, want 2 balanced rows", dr.Result)
	}
}

func TestDryRun_ReadOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	svc := newTestService(store, ServiceOptions{})
	rows := ledgerRows(30, 4)

	dr, err := svc.DryRun(ctx, testPurchase, rows, DryRunOptions{})
	if err != nil {
		t.Fatalf("DryRun: %v", err)
	}
	if !dr.Go || dr.AllDuplicates {
		t.Errorf("report Go=%v AllDuplicates=%v, want true/false", dr.Go, dr.AllDuplicates)
	}
	if dr.Result.Added != 27 || dr.Result.NewItems != 4 {
		t.Errorf("Result = %+v, want 27 added, 4 new items", dr.Result)
	}
	if len(dr.NewItemSamples) != 4 || len(dr.SkippedSamples) != 3 {
		t.Errorf("samples new=%d skipped=%d, want 4/3", len(dr.NewItemSamples), len(dr.SkippedSamples))
	}
	if dr.LastCommit != nil {
		t.Errorf("LastCommit = %+v, want nil", dr.LastCommit)
	}

	if got := entryCount(t, store); got != 0 {
		t.Errorf("entries = %d, want 0", got)
	}
	if items := itemSnapshot(t, store); len(items) != 0 {
		t.Errorf("items = %d, want 0", len(items))
	}
	events, _ := svc.AuditLog(ctx, AuditFilter{})
	if len(events) != 1 || events[0].Kind != ModeDryRun || events[0].Severity != SeverityLow {
		t.Errorf("audit = %+v, want one low DRY_RUN event", events)
	}
}

func TestDryRun_MatchesCommit(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	svc := newTestService(store, ServiceOptions{PriceThreshold: decimal.NewFromInt(1500)})
	rows := ledgerRows(80, 6)

	dr, err := svc.DryRun(ctx, testPurchase, rows, DryRunOptions{})
	if err != nil {
		t.Fatalf("DryRun: %v", err)
	}
	res, err := svc.Commit(ctx, testPurchase, rows, CommitOptions{})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if dr.Result != *res {
		t.Errorf("dry run %+v != commit %+v", dr.Result, *res)
	}
	if res.PriceAnomalies == 0 {
		t.Error("PriceAnomalies = 0, want some above 1500")
	}
}

func TestDryRun_AfterCommit(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemStore(), ServiceOptions{})
	rows := ledgerRows(12, 2)

	if _, err := svc.Commit(ctx, testPurchase, rows, CommitOptions{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	dr, err := svc.DryRun(ctx, testPurchase, rows, DryRunOptions{})
	if err != nil {
		t.Fatalf("DryRun: %v", err)
	}
	if !dr.Go || !dr.AllDuplicates {
		t.Errorf("Go=%v AllDuplicates=%v, want true/true", dr.Go, dr.AllDuplicates)
	}
	if dr.LastCommit == nil || dr.LastCommit.Kind != ModeCommit {
		t.Errorf("LastCommit = %+v, want the commit event", dr.LastCommit)
	}
}

func TestDryRun_NoValidRows(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemStore(), ServiceOptions{})
	rows := []RawRow{{Sheet: "구매", Index: 2}, {Sheet: "구매", Index: 3}}

	dr, err := svc.DryRun(ctx, testPurchase, rows, DryRunOptions{})
	if err != nil {
		t.Fatalf("DryRun: %v", err)
	}
	if dr.Go || dr.AllDuplicates {
		t.Errorf("Go=%v AllDuplicates=%v, want false/false", dr.Go, dr.AllDuplicates)
	}
	if !errors.Is(dr.Err(), ErrNoValidRows) {
		t.Errorf("Err() = %v, want ErrNoValidRows", dr.Err())
	}

	_, err = svc.Import(ctx, testPurchase, rows, DryRunOptions{})
	if !errors.Is(err, ErrNoValidRows) {
		t.Errorf("Import = %v, want ErrNoValidRows", err)
	}
}

func TestDryRun_HardFail(t *testing.T) {
	svc := newTestService(NewMemStore(), ServiceOptions{})
	noAnomalies := func(r *DryRunReport) error {
		if r.Result.PriceAnomalies > 0 {
			return fmt.Errorf("%d price anomalies", r.Result.PriceAnomalies)
		}
		return nil
	}

	rows := []RawRow{purchaseRow(2, "2024-03-15", "Acme", "", "Widget", IntCell(1), IntCell(-10))}
	dr, err := svc.DryRun(context.Background(), testPurchase, rows, DryRunOptions{
		HardFail: []HardFailFunc{noAnomalies},
	})
	if err != nil {
		t.Fatalf("DryRun: %v", err)
	}
	if dr.Go {
		t.Error("Go = true, want false")
	}
	if !errors.Is(dr.Err(), ErrHardFail) {
		t.Errorf("Err() = %v, want ErrHardFail", dr.Err())
	}
	if len(dr.AnomalySamples) != 1 {
		t.Errorf("AnomalySamples = %d, want 1", len(dr.AnomalySamples))
	}
}

func TestImport_SplitsCommits(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	svc := newTestService(store, ServiceOptions{FirstBatchSize: 50})
	rows := ledgerRows(120, 9)

	report, err := svc.Import(ctx, testPurchase, rows, DryRunOptions{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(report.Commits) != 2 {
		t.Fatalf("commits = %d, want 2", len(report.Commits))
	}
	if report.Commits[0].Total != 50 || report.Commits[1].Total != 70 {
		t.Errorf("commit totals = %d/%d, want 50/70", report.Commits[0].Total, report.Commits[1].Total)
	}
	if got := report.Totals(); got != report.DryRun.Result {
		t.Errorf("Totals = %+v, want dry run %+v", got, report.DryRun.Result)
	}

	events, _ := svc.AuditLog(ctx, AuditFilter{Kind: ModeCommit})
	if len(events) != 2 || events[0].BatchIndex != 1 || events[0].RowFrom != 51 {
		t.Errorf("commit events = %+v, want second batch first", events)
	}

	// Re-running is safe and adds nothing.
	again, err := svc.Import(ctx, testPurchase, rows, DryRunOptions{})
	if err != nil {
		t.Fatalf("second Import: %v", err)
	}
	if !again.DryRun.AllDuplicates || again.Totals().Added != 0 {
		t.Errorf("second import added %d, want 0", again.Totals().Added)
	}
}

func TestImport_SmallBatchSingleCommit(t *testing.T) {
	svc := newTestService(NewMemStore(), ServiceOptions{})
	report, err := svc.Import(context.Background(), testPurchase, ledgerRows(10, 2), DryRunOptions{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(report.Commits) != 1 {
		t.Errorf("commits = %d, want 1", len(report.Commits))
	}
}

func TestService_Item(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMemStore(), ServiceOptions{})
	rows := []RawRow{
		purchaseRow(2, "2025-01-02", "골랩", "", "케이블", IntCell(2), IntCell(412000)),
		purchaseRow(3, "2025-01-03", "골랩", "", "케이블", IntCell(3), IntCell(400000)),
	}
	if _, err := svc.Commit(ctx, testPurchase, rows, CommitOptions{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	st, hist, err := svc.Item(ctx, "item-5e2e2216")
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if !st.AverageUnitCost.Equal(decimal.NewFromInt(404800)) {
		t.Errorf("AverageUnitCost = %s, want 404800", st.AverageUnitCost)
	}
	if len(hist) != 2 {
		t.Errorf("history = %d, want 2", len(hist))
	}

	if _, _, err := svc.Item(ctx, "item-missing"); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("Item(missing) = %v, want ErrItemNotFound", err)
	}
}

func TestSelectRows(t *testing.T) {
	rows := ledgerRows(10, 1)
	tests := []struct {
		from, to int
		want     int
		wantErr  bool
	}{
		{0, 0, 10, false},
		{1, 5, 5, false},
		{6, 0, 5, false},
		{8, 20, 3, false},
		{11, 0, 0, false},
		{5, 5, 1, false},
		{5, 4, 0, true},
		{-1, 0, 0, true},
	}
	for _, tt := range tests {
		got, err := SelectRows(rows, tt.from, tt.to)
		if (err != nil) != tt.wantErr {
			t.Errorf("SelectRows(%d, %d) err = %v, wantErr %v", tt.from, tt.to, err, tt.wantErr)
			continue
		}
		if len(got) != tt.want {
			t.Errorf("SelectRows(%d, %d) = %d rows, want %d", tt.from, tt.to, len(got), tt.want)
		}
	}
}
