package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Number is an exact quantity or price that remembers whether it was read as
// an integer or a real value. The distinction matters for the canonical text
// rendering that feeds the idempotency key: an integral 2 renders as "2" while
// a real 2 renders as "2.0".
type Number struct {
	d    decimal.Decimal
	real bool
}

// Zero is the integral zero every malformed numeric cell degrades to.
var Zero = Number{}

// IntNumber returns an integral Number.
func IntNumber(i int64) Number {
	return Number{d: decimal.NewFromInt(i)}
}

// RealNumber returns a real Number. NaN and infinities collapse to Zero.
func RealNumber(f float64) Number {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Zero
	}
	return Number{d: decimal.NewFromFloat(f), real: true}
}

// NumberFromDecimal wraps d, marking it real when requested.
func NumberFromDecimal(d decimal.Decimal, real bool) Number {
	return Number{d: d, real: real}
}

// Decimal returns the exact value.
func (n Number) Decimal() decimal.Decimal { return n.d }

// IsReal reports whether the value was read as a real number.
func (n Number) IsReal() bool { return n.real }

// Sign returns -1, 0 or 1.
func (n Number) Sign() int { return n.d.Sign() }

// IsZero reports whether the value is zero.
func (n Number) IsZero() bool { return n.d.IsZero() }

// Canonical drops the real flag when the value is integral, so 412000.0
// renders as "412000". Unit prices are stored in this form.
func (n Number) Canonical() Number {
	if n.real && n.d.Equal(n.d.Truncate(0)) {
		return Number{d: n.d.Truncate(0)}
	}
	return n
}

// String renders the value the way the source spreadsheets' tooling printed
// it: integers plainly, reals with at least one fractional digit, and very
// large or very small reals in exponent form.
func (n Number) String() string {
	if !n.real {
		return n.d.Truncate(0).String()
	}
	f, _ := n.d.Float64()
	return formatReal(f)
}

// formatReal prints f using the shortest round-tripping digits. Exponent form
// is used outside [1e-4, 1e16).
func formatReal(f float64) string {
	if f == 0 {
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}
	abs := math.Abs(f)
	if abs < 1e-4 || abs >= 1e16 {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// MarshalJSON writes the value as a JSON number.
func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalJSON reads a JSON number, keeping the real flag when the literal
// carries a fraction or exponent.
func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	*n = Number{d: d, real: strings.ContainsAny(s, ".eE")}
	return nil
}
