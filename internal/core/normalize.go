package core

// normalize.go converts raw cell values into canonical typed values.
//
// None of these functions fail. Malformed input degrades to a fixed default
// so a single bad cell never aborts a batch:
//   - text:   ""
//   - number: 0
//   - date:   "" (or the first ten characters of unparsable text)

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DateLayout is the canonical calendar date format.
const DateLayout = "2006-01-02"

// Spreadsheet serial dates count days from this epoch. Numbers strictly
// between serialMin and serialMax are read as serials (2009-07-06 to
// 2036-11-21); anything else is treated as ordinary text.
var spreadsheetEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

const (
	serialMin = 40000
	serialMax = 50000
)

var (
	dateLayouts     = []string{"2006-1-2", "2006/1/2", "2006.1.2"}
	timestampLayout = "2006-1-2 15:4:5"

	// datePrefix matches a dotted or slashed date at the start of longer
	// text, such as "2024/1/5 memo".
	datePrefix = regexp.MustCompile(`^(\d{4})[./](\d{1,2})[./](\d{1,2})`)
)

// numberStrip is removed from numeric text before parsing.
var numberStrip = strings.NewReplacer(",", "", "₩", "", " ", "")

// NormText trims a cell to canonical text. Text is NFC-normalized so that
// visually identical Hangul typed on different systems compares equal.
func NormText(c Cell) string {
	return strings.TrimSpace(norm.NFC.String(cellString(c)))
}

// NormUpper is NormText upper-cased. Used for part numbers.
func NormUpper(c Cell) string {
	return strings.ToUpper(NormText(c))
}

// NormNumber converts a cell to a Number. Native numbers pass through; text
// has thousands separators, the won sign and spaces removed and is parsed as
// an integer unless it contains a decimal point.
func NormNumber(c Cell) Number {
	switch c.Kind {
	case CellNumber:
		if math.IsNaN(c.Num) || math.IsInf(c.Num, 0) {
			return Zero
		}
		if !c.Real {
			return IntNumber(int64(c.Num))
		}
		return RealNumber(c.Num)
	case CellText:
		return parseNumberText(c.Text)
	default:
		return Zero
	}
}

func parseNumberText(s string) Number {
	s = strings.TrimSpace(numberStrip.Replace(s))
	if s == "" {
		return Zero
	}
	if strings.Contains(s, ".") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Zero
		}
		return RealNumber(f)
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Zero
	}
	return IntNumber(i)
}

// NormDate converts a cell to YYYY-MM-DD.
//
// Order of attempts: native date; serial day number; the first ten
// characters against YYYY-MM-DD, YYYY/MM/DD and YYYY.MM.DD; the first
// nineteen against YYYY-MM-DD HH:MM:SS; a leading YYYY/M/D or YYYY.M.D
// followed by anything. On total failure the first ten characters are
// returned, or "" when the text is shorter than that.
func NormDate(c Cell) string {
	switch c.Kind {
	case CellEmpty:
		return ""
	case CellDate:
		return c.Time.Format(DateLayout)
	}

	s := NormText(c)
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > serialMin && f < serialMax {
		return spreadsheetEpoch.AddDate(0, 0, int(f)).Format(DateLayout)
	}

	head := prefixRunes(s, 10)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, head); err == nil {
			return t.Format(DateLayout)
		}
	}
	if t, err := time.Parse(timestampLayout, prefixRunes(s, 19)); err == nil {
		return t.Format(DateLayout)
	}
	if m := datePrefix.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return fmt.Sprintf("%s-%02d-%02d", m[1], month, day)
	}

	if utf8.RuneCountInString(s) >= 10 {
		return head
	}
	return ""
}

// cellString is the plain text form of any cell.
func cellString(c Cell) string {
	switch c.Kind {
	case CellText:
		return c.Text
	case CellNumber:
		if c.Real {
			return RealNumber(c.Num).String()
		}
		return strconv.FormatInt(int64(c.Num), 10)
	case CellDate:
		return c.Time.Format("2006-01-02 15:04:05")
	default:
		return ""
	}
}

func prefixRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
