package source

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/golab-ledger/internal/core"
)

// Built-in number formats that render a serial as a date or time.
var builtinDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true,
	20: true, 21: true, 22: true, 45: true, 46: true, 47: true,
}

// workbook wraps an open excelize file with a style cache.
type workbook struct {
	f        *excelize.File
	date1904 bool
	isDate   map[int]bool
}

// readWorkbook reads every sheet of the workbook that belongs to the layout,
// in workbook order. Cells keep their stored type: numbers stay numbers and
// date-formatted serials become dates.
func readWorkbook(r io.Reader, l core.Layout) (*Result, error) {
	in := &countingReader{r: r}
	f, err := excelize.OpenReader(in)
	if err != nil {
		return nil, fmt.Errorf("invalid workbook: %w", err)
	}
	defer f.Close()

	wb := &workbook{f: f, isDate: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		wb.date1904 = *props.Date1904
	}

	res := &Result{}
	for _, sheet := range f.GetSheetList() {
		name := l.MatchSheet(sheet)
		if name == "" {
			continue
		}
		rows, err := wb.sheetRows(sheet, name, l.FirstDataRow)
		if err != nil {
			return nil, err
		}
		res.Sheets = append(res.Sheets, name)
		res.Rows = append(res.Rows, rows...)
	}
	if len(res.Sheets) == 0 {
		return nil, fmt.Errorf("no matching sheet for layout %s (want %s)", l.Key, strings.Join(l.Sheets, ", "))
	}
	res.Bytes = in.n
	return res, nil
}

// sheetRows reads sheet from firstRow on. name is the trimmed sheet name the
// rows are attributed to.
func (wb *workbook) sheetRows(sheet, name string, firstRow int) ([]core.RawRow, error) {
	rows, err := wb.f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	var out []core.RawRow
	for i := firstRow - 1; i < len(rows); i++ {
		cells := make([]core.Cell, len(rows[i]))
		for j, raw := range rows[i] {
			c, err := wb.cell(sheet, j+1, i+1, raw)
			if err != nil {
				return nil, err
			}
			cells[j] = c
		}
		out = append(out, core.RawRow{Sheet: name, Index: i + 1, Cells: cells})
	}
	return out, nil
}

// cell types one raw value. col and row are 1-based.
func (wb *workbook) cell(sheet string, col, row int, raw string) (core.Cell, error) {
	if raw == "" {
		return core.EmptyCell(), nil
	}
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return core.Cell{}, err
	}

	typ, err := wb.f.GetCellType(sheet, axis)
	if err != nil {
		return core.Cell{}, fmt.Errorf("cell %s!%s: %w", sheet, axis, err)
	}
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeBool, excelize.CellTypeError:
		return core.TextCell(raw), nil
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return core.TextCell(raw), nil
	}

	date, err := wb.dateStyled(sheet, axis)
	if err != nil {
		return core.Cell{}, err
	}
	if date {
		if t, err := excelize.ExcelDateToTime(f, wb.date1904); err == nil {
			return core.DateCell(t), nil
		}
	}

	if strings.ContainsAny(raw, ".eE") {
		return core.FloatCell(f), nil
	}
	i, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return core.FloatCell(f), nil
	}
	return core.IntCell(i), nil
}

// dateStyled reports whether the cell's number format displays a date.
func (wb *workbook) dateStyled(sheet, axis string) (bool, error) {
	idx, err := wb.f.GetCellStyle(sheet, axis)
	if err != nil {
		return false, fmt.Errorf("cell style %s!%s: %w", sheet, axis, err)
	}
	if v, ok := wb.isDate[idx]; ok {
		return v, nil
	}

	style, err := wb.f.GetStyle(idx)
	if err != nil {
		return false, fmt.Errorf("style %d: %w", idx, err)
	}
	v := builtinDateFormats[style.NumFmt]
	if style.CustomNumFmt != nil {
		v = isDateFormat(*style.CustomNumFmt)
	}
	wb.isDate[idx] = v
	return v, nil
}

// isDateFormat reports whether a custom number format code shows a date:
// it has a year or day token outside quoted literals and brackets.
func isDateFormat(code string) bool {
	inQuote, inBracket := false, false
	for _, r := range strings.ToLower(code) {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		case r == 'y' || r == 'd':
			return true
		}
	}
	return false
}
