package core

import (
	"errors"
	"fmt"
	"strings"
)

// NoColumn marks a layout field that the sheet does not carry.
const NoColumn = -1

// MemoField is an auxiliary column folded into the entry memo. An empty
// Label copies the value as-is; otherwise the value is written "Label:value".
type MemoField struct {
	Label string `json:"label,omitempty"`
	Col   int    `json:"col"`
}

// Layout describes where a sheet keeps the fields of a ledger entry.
// Columns are 0-based; row numbers are 1-based.
type Layout struct {
	Key          string      `json:"key"`
	Label        string      `json:"label"`
	DocType      DocType     `json:"docType"`
	Currency     string      `json:"currency"`
	Sheets       []string    `json:"sheets"` // matched after trimming surrounding spaces
	FirstDataRow int         `json:"firstDataRow"`
	MinColumns   int         `json:"minColumns"`
	DateCol      int         `json:"dateCol"`
	VendorCol    int         `json:"vendorCol"`
	PartNoCol    int         `json:"partNoCol"`
	ItemCol      int         `json:"itemCol"`
	QtyCol       int         `json:"qtyCol"`
	PriceCol     int         `json:"priceCol"`
	Memo         []MemoField `json:"memo,omitempty"`

	// RequireDate also skips rows with no date.
	RequireDate bool `json:"requireDate,omitempty"`
	// RequireParty also skips rows with neither vendor nor item name.
	RequireParty bool `json:"requireParty,omitempty"`
}

// Validate checks that the layout can classify rows.
func (l Layout) Validate() error {
	var errs []error
	if l.Key == "" {
		errs = append(errs, errors.New("key is required"))
	}
	if l.DocType != DocPurchase && l.DocType != DocSale {
		errs = append(errs, fmt.Errorf("invalid doc type %q", l.DocType))
	}
	if len(l.Sheets) == 0 {
		errs = append(errs, errors.New("at least one sheet is required"))
	}
	if l.FirstDataRow < 1 {
		errs = append(errs, errors.New("first data row must be >= 1"))
	}
	for name, col := range map[string]int{
		"date": l.DateCol, "vendor": l.VendorCol, "item": l.ItemCol,
		"qty": l.QtyCol, "price": l.PriceCol,
	} {
		if col < 0 {
			errs = append(errs, fmt.Errorf("%s column is required", name))
		}
	}
	return errors.Join(errs...)
}

// Width is the number of cells a row is padded to before classification.
func (l Layout) Width() int {
	w := l.MinColumns
	for _, c := range append([]int{l.DateCol, l.VendorCol, l.PartNoCol, l.ItemCol, l.QtyCol, l.PriceCol}, memoCols(l.Memo)...) {
		if c+1 > w {
			w = c + 1
		}
	}
	return w
}

// MatchSheet returns the layout's logical name for a workbook sheet, or ""
// when the sheet does not belong to the layout.
func (l Layout) MatchSheet(name string) string {
	trimmed := strings.TrimSpace(name)
	for _, s := range l.Sheets {
		if strings.TrimSpace(s) == trimmed {
			return trimmed
		}
	}
	return ""
}

func memoCols(fields []MemoField) []int {
	cols := make([]int, len(fields))
	for i, f := range fields {
		cols[i] = f.Col
	}
	return cols
}
