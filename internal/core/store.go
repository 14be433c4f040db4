package core

import (
	"context"
	"time"
)

// LedgerStore is the append-only ledger and its imported key set.
type LedgerStore interface {
	// ImportedKeys returns every idempotency key ever committed.
	ImportedKeys(ctx context.Context) (map[string]struct{}, error)
	// ListEntries returns committed entries, oldest first.
	ListEntries(ctx context.Context, filter EntryFilter) ([]LedgerEntry, error)
}

// ItemStore holds the running item states and their history.
type ItemStore interface {
	// GetItem returns the state of itemID, or nil when the item is unknown.
	GetItem(ctx context.Context, itemID string) (*ItemState, error)
	ListItems(ctx context.Context) ([]ItemState, error)
	ItemHistory(ctx context.Context, itemID string) ([]InboundHistoryRecord, error)
}

// AuditStore is the append-only batch outcome log.
type AuditStore interface {
	AppendAudit(ctx context.Context, ev AuditEvent) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
}

// AuditPurger is implemented by stores that can drop old audit events.
type AuditPurger interface {
	// PurgeAudit deletes events created before cutoff and returns the count.
	PurgeAudit(ctx context.Context, cutoff time.Time) (int64, error)
}

// RowWriter writes the effects of one row. Writes through a RowWriter become
// visible together or not at all.
type RowWriter interface {
	// AppendEntry persists e and adds its key to the imported key set.
	// Returns ErrDuplicateKey when the key is already present.
	AppendEntry(ctx context.Context, e LedgerEntry) error
	// PutItem stores next if the stored state of the item still has prev's
	// quantity and average, or is absent when prev is nil. Otherwise it
	// returns ErrItemStateChanged.
	PutItem(ctx context.Context, prev *ItemState, next ItemState) error
	AppendHistory(ctx context.Context, h InboundHistoryRecord) error
}

// Store is everything the importer persists to.
type Store interface {
	LedgerStore
	ItemStore
	AuditStore

	// InRow runs fn as one atomic unit. If fn returns an error nothing it
	// wrote is kept.
	InRow(ctx context.Context, fn func(w RowWriter) error) error
}

// EntryFilter narrows ListEntries.
type EntryFilter struct {
	DocType DocType
	ItemID  string
	Limit   int
	Offset  int
}
