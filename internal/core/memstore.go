package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-process Store. It backs tests and single-run CLI use
// where no database is configured.
type MemStore struct {
	mu      sync.RWMutex
	keys    map[string]struct{}
	entries []LedgerEntry
	items   map[string]ItemState
	history []InboundHistoryRecord
	audit   []AuditEvent
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		keys:  make(map[string]struct{}),
		items: make(map[string]ItemState),
	}
}

// ImportedKeys returns a copy of the imported key set.
func (m *MemStore) ImportedKeys(ctx context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]struct{}, len(m.keys))
	for k := range m.keys {
		out[k] = struct{}{}
	}
	return out, nil
}

// ListEntries returns committed entries in commit order.
func (m *MemStore) ListEntries(ctx context.Context, f EntryFilter) ([]LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []LedgerEntry
	for _, e := range m.entries {
		if f.DocType != "" && e.DocType != f.DocType {
			continue
		}
		if f.ItemID != "" && e.ItemID != f.ItemID {
			continue
		}
		out = append(out, e)
	}
	return page(out, f.Offset, f.Limit), nil
}

// GetItem returns a copy of the item state, or nil.
func (m *MemStore) GetItem(ctx context.Context, itemID string) (*ItemState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.items[itemID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// ListItems returns all item states sorted by ID.
func (m *MemStore) ListItems(ctx context.Context) ([]ItemState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ItemState, 0, len(m.items))
	for _, s := range m.items {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

// ItemHistory returns the history of one item, oldest first.
func (m *MemStore) ItemHistory(ctx context.Context, itemID string) ([]InboundHistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []InboundHistoryRecord
	for _, h := range m.history {
		if h.ItemID == itemID {
			out = append(out, h)
		}
	}
	return out, nil
}

// AppendAudit appends an audit event.
func (m *MemStore) AppendAudit(ctx context.Context, ev AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, ev)
	return nil
}

// ListAudit returns matching events, newest first.
func (m *MemStore) ListAudit(ctx context.Context, f AuditFilter) ([]AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []AuditEvent
	for i := len(m.audit) - 1; i >= 0; i-- {
		if matchAudit(m.audit[i], f) {
			out = append(out, m.audit[i])
		}
	}
	if f.Limit <= 0 {
		f.Limit = DefaultAuditLimit
	}
	return page(out, f.Offset, f.Limit), nil
}

// PurgeAudit drops events created before cutoff.
func (m *MemStore) PurgeAudit(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.audit[:0]
	for _, ev := range m.audit {
		if !ev.CreatedAt.Before(cutoff) {
			kept = append(kept, ev)
		}
	}
	purged := int64(len(m.audit) - len(kept))
	m.audit = kept
	return purged, nil
}

// InRow stages the writes of fn and applies them only if fn succeeds.
func (m *MemStore) InRow(ctx context.Context, fn func(w RowWriter) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memRow{store: m, items: make(map[string]ItemState)}
	if err := fn(tx); err != nil {
		return err
	}

	for _, e := range tx.entries {
		m.keys[e.IdempotencyKey] = struct{}{}
		m.entries = append(m.entries, e)
	}
	for id, s := range tx.items {
		m.items[id] = s
	}
	m.history = append(m.history, tx.history...)
	return nil
}

// memRow buffers one row's writes. The store lock is held while it is live.
type memRow struct {
	store   *MemStore
	entries []LedgerEntry
	items   map[string]ItemState
	history []InboundHistoryRecord
}

func (r *memRow) AppendEntry(ctx context.Context, e LedgerEntry) error {
	if _, dup := r.store.keys[e.IdempotencyKey]; dup {
		return ErrDuplicateKey
	}
	for _, staged := range r.entries {
		if staged.IdempotencyKey == e.IdempotencyKey {
			return ErrDuplicateKey
		}
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *memRow) PutItem(ctx context.Context, prev *ItemState, next ItemState) error {
	cur, ok := r.items[next.ItemID]
	if !ok {
		cur, ok = r.store.items[next.ItemID]
	}
	switch {
	case prev == nil && ok,
		prev != nil && (!ok || !sameStock(*prev, cur)):
		return fmt.Errorf("%w: %s", ErrItemStateChanged, next.ItemID)
	}
	r.items[next.ItemID] = next
	return nil
}

func sameStock(a, b ItemState) bool {
	return a.CurrentQty.Equal(b.CurrentQty) && a.AverageUnitCost.Equal(b.AverageUnitCost)
}

func (r *memRow) AppendHistory(ctx context.Context, h InboundHistoryRecord) error {
	r.history = append(r.history, h)
	return nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
