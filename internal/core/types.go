// Package core provides the ledger import and inventory reconciliation logic.
// This package has no UI dependencies and can be used by any frontend.
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocType classifies a ledger entry as inbound stock or a sale.
type DocType string

const (
	DocPurchase DocType = "PURCHASE"
	DocSale     DocType = "SALE"
)

// DefaultCurrency is stamped on entries whose layout does not name one.
const DefaultCurrency = "KRW"

// CellKind is the native type of a raw spreadsheet cell.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellText
	CellNumber
	CellDate
)

// Cell is one untyped value as delivered by a row source.
type Cell struct {
	Kind CellKind
	Text string    // CellText
	Num  float64   // CellNumber
	Real bool      // CellNumber: value was stored with a fractional part
	Time time.Time // CellDate
}

// EmptyCell returns a cell with no value.
func EmptyCell() Cell { return Cell{} }

// TextCell returns a text cell.
func TextCell(s string) Cell { return Cell{Kind: CellText, Text: s} }

// IntCell returns an integral numeric cell.
func IntCell(i int64) Cell { return Cell{Kind: CellNumber, Num: float64(i)} }

// FloatCell returns a real numeric cell.
func FloatCell(f float64) Cell { return Cell{Kind: CellNumber, Num: f, Real: true} }

// DateCell returns a date/time cell.
func DateCell(t time.Time) Cell { return Cell{Kind: CellDate, Time: t} }

// RawRow is one row from a row source: its cells, the sheet it came from,
// and its absolute 1-based row number within that sheet.
type RawRow struct {
	Sheet string
	Index int
	Cells []Cell
}

// LedgerEntry is the normalized, importable unit. Entries are never mutated
// after derivation and are persisted append-only.
type LedgerEntry struct {
	OccurredDate   string    `json:"occurredDate"`
	Vendor         string    `json:"vendor"`
	ItemID         string    `json:"itemId"`
	PartNo         string    `json:"partNo"`
	ItemName       string    `json:"itemName"`
	Quantity       Number    `json:"quantity"`
	UnitPrice      Number    `json:"unitPrice"`
	Currency       string    `json:"currency"`
	DocType        DocType   `json:"docType"`
	Memo           string    `json:"memo"`
	SourceRowRef   string    `json:"sourceRowRef"`
	IdempotencyKey string    `json:"idempotencyKey"`
	BatchID        string    `json:"batchId,omitempty"`
	ImportedAt     time.Time `json:"importedAt,omitempty"`
}

// ItemState is the running inventory position of one item.
type ItemState struct {
	ItemID          string          `json:"itemId"`
	DisplayName     string          `json:"displayName"`
	Vendor          string          `json:"vendor"`
	PartNo          string          `json:"partNo"`
	Identity        string          `json:"identity"` // lower-cased triple the ID was hashed from
	CurrentQty      decimal.Decimal `json:"currentQty"`
	AverageUnitCost decimal.Decimal `json:"averageUnitCost"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// AssetValue is the quantity on hand valued at the running average.
func (s ItemState) AssetValue() decimal.Decimal {
	return s.CurrentQty.Mul(s.AverageUnitCost)
}

// HistoryKind distinguishes inbound receipts from reversals.
type HistoryKind string

const (
	HistoryInbound  HistoryKind = "INBOUND"
	HistoryReversal HistoryKind = "REVERSAL"
)

// InboundHistoryRecord is the immutable trail of one applied entry.
type InboundHistoryRecord struct {
	ID               string          `json:"id"`
	ItemID           string          `json:"itemId"`
	IdempotencyKey   string          `json:"idempotencyKey"`
	Kind             HistoryKind     `json:"kind"`
	Qty              decimal.Decimal `json:"qty"`
	UnitPrice        decimal.Decimal `json:"unitPrice"`
	PrevQty          decimal.Decimal `json:"prevQty"`
	PrevAvgCost      decimal.Decimal `json:"prevAvgCost"`
	ResultingQty     decimal.Decimal `json:"resultingQty"`
	ResultingAvgCost decimal.Decimal `json:"resultingAvgCost"`
	Clamped          bool            `json:"clamped,omitempty"`
	RecordedAt       time.Time       `json:"recordedAt"`
}

// Mode is the kind of import call.
type Mode string

const (
	ModeDryRun Mode = "DRY_RUN"
	ModeCommit Mode = "COMMIT"
)

// BatchResult holds the counters of one dry-run or commit call.
//
// Skipped+Valid always equals Total, and Duplicates+Added always equals
// Valid. The remaining counters flag properties of the added rows.
type BatchResult struct {
	Total          int `json:"total"`
	Skipped        int `json:"skipped"`
	Valid          int `json:"valid"`
	Duplicates     int `json:"duplicates"`
	Added          int `json:"added"`
	NewItems       int `json:"newItems"`
	UpdatedItems   int `json:"updatedItems"`
	ZeroQty        int `json:"zeroQty"`
	PriceAnomalies int `json:"priceAnomalies"`
	Reversals      int `json:"reversals"`
	Clamped        int `json:"clamped"`
	LedgerOnly     int `json:"ledgerOnly"`
}

// Balanced reports whether the outcome counters account for every row.
func (r BatchResult) Balanced() bool {
	return r.Skipped+r.Valid == r.Total && r.Duplicates+r.Added == r.Valid
}
