package core

import (
	"fmt"
	"strings"
)

// SkipReason explains why a row produced no ledger entry.
type SkipReason string

const (
	SkipNone    SkipReason = ""
	SkipBlank   SkipReason = "blank"    // no date, vendor or item name
	SkipNoDate  SkipReason = "no_date"  // layout requires a date
	SkipNoParty SkipReason = "no_party" // layout requires a vendor or item name
)

// memoSeparator joins memo fragments.
const memoSeparator = " / "

// Candidate is a classified row: either an entry with derived identity and
// idempotency key, or a skip reason.
type Candidate struct {
	Row   RawRow
	Entry LedgerEntry
	Skip  SkipReason
}

// Skipped reports whether the row was rejected.
func (c Candidate) Skipped() bool { return c.Skip != SkipNone }

// SourceRowRef is the globally unique reference of a row: "<sheet>!R<row>".
func SourceRowRef(sheet string, row int) string {
	return fmt.Sprintf("%s!R%d", strings.TrimSpace(sheet), row)
}

// Classify normalizes one raw row under layout l and decides whether it is a
// data row. Accepted rows carry their item ID and idempotency key.
func Classify(l Layout, row RawRow) Candidate {
	cells := padCells(row.Cells, l.Width())
	at := func(col int) Cell {
		if col < 0 {
			return EmptyCell()
		}
		return cells[col]
	}

	date := NormDate(at(l.DateCol))
	vendor := NormText(at(l.VendorCol))
	itemName := NormText(at(l.ItemCol))

	cand := Candidate{Row: row}
	switch {
	case date == "" && vendor == "" && itemName == "":
		cand.Skip = SkipBlank
		return cand
	case l.RequireDate && date == "":
		cand.Skip = SkipNoDate
		return cand
	case l.RequireParty && vendor == "" && itemName == "":
		cand.Skip = SkipNoParty
		return cand
	}

	currency := l.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	partNo := NormUpper(at(l.PartNoCol))

	e := LedgerEntry{
		OccurredDate: date,
		Vendor:       vendor,
		ItemID:       DeriveItemID(vendor, partNo, itemName),
		PartNo:       partNo,
		ItemName:     itemName,
		Quantity:     NormNumber(at(l.QtyCol)),
		UnitPrice:    NormNumber(at(l.PriceCol)).Canonical(),
		Currency:     currency,
		DocType:      l.DocType,
		Memo:         buildMemo(l.Memo, at),
		SourceRowRef: SourceRowRef(row.Sheet, row.Index),
	}
	e.IdempotencyKey = DeriveIdempotencyKey(e)

	cand.Entry = e
	return cand
}

// ClassifyAll classifies rows in order.
func ClassifyAll(l Layout, rows []RawRow) []Candidate {
	out := make([]Candidate, len(rows))
	for i, r := range rows {
		out[i] = Classify(l, r)
	}
	return out
}

func buildMemo(fields []MemoField, at func(int) Cell) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v := NormText(at(f.Col))
		if v == "" {
			continue
		}
		if f.Label != "" {
			v = f.Label + ":" + v
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, memoSeparator)
}

func padCells(cells []Cell, width int) []Cell {
	if len(cells) >= width {
		return cells
	}
	padded := make([]Cell, width)
	copy(padded, cells)
	return padded
}
