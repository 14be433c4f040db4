package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/golab-ledger/internal/core"
)

// readCSV reads a single-sheet CSV export. The rows are attributed to sheet,
// which must be one of the layout's sheets.
func readCSV(r io.Reader, l core.Layout, sheet string) (*Result, error) {
	name := l.MatchSheet(sheet)
	if name == "" {
		return nil, fmt.Errorf("no matching sheet: %q is not a %s sheet", sheet, l.Key)
	}

	in := wrapCSV(r)
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	res := &Result{Sheets: []string{name}}
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		if line < l.FirstDataRow {
			continue
		}

		cells := make([]core.Cell, len(rec))
		for i, v := range rec {
			if v = CleanCell(v); v != "" {
				cells[i] = core.TextCell(v)
			}
		}
		res.Rows = append(res.Rows, core.RawRow{Sheet: name, Index: line, Cells: cells})
	}
	res.Bytes = in.n
	return res, nil
}

// CleanCell strips the spreadsheet artifacts CSV exports carry: surrounding
// whitespace, a ="..." text guard and stray quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}
	return strings.Trim(s, `"'`)
}
