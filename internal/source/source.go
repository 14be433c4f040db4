// Package source turns uploaded workbooks and CSV exports into raw rows for
// the importer.
package source

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/golab-ledger/internal/core"
)

// Result is the content of one file.
type Result struct {
	Rows   []core.RawRow
	Sheets []string // matched sheet names, trimmed, in file order
	Bytes  int64
}

// Options configures Read.
type Options struct {
	// Sheet names the sheet a CSV file was exported from. Defaults to the
	// layout's first sheet. Ignored for workbooks.
	Sheet string
}

// Read parses the file by its extension: .xlsx and .xlsm as workbooks, .csv
// as a single sheet.
func Read(filename string, r io.Reader, l core.Layout, opts Options) (*Result, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx", ".xlsm":
		return readWorkbook(r, l)
	case ".csv":
		sheet := opts.Sheet
		if sheet == "" && len(l.Sheets) > 0 {
			sheet = l.Sheets[0]
		}
		return readCSV(r, l, sheet)
	default:
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}
}
