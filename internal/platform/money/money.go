// Package money holds the decimal helpers shared by ingestion, payroll
// arithmetic and document formatting.
package money

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseOrZero converts loosely typed input into a decimal. Empty input is a
// valid zero. Anything that cannot be read as a number yields zero and
// ok=false so the caller can surface a warning.
func ParseOrZero(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case nil:
		return decimal.Zero, true
	case decimal.Decimal:
		return v, true
	case float64:
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case json.Number:
		parsed, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero, false
		}
		return parsed, true
	case string:
		return parseString(v)
	default:
		return decimal.Zero, false
	}
}

func parseString(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, true
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}
	s = strings.TrimPrefix(s, "K")
	s = strings.TrimPrefix(s, "k")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	parsed, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if neg {
		parsed = parsed.Neg()
	}
	return parsed, true
}

// NonNegative clamps negative amounts to zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Round2 rounds half away from zero to 2 decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent turns a whole-number percentage such as 5 into 0.05.
func Percent(p decimal.Decimal) decimal.Decimal {
	return p.Div(hundred)
}

// Format renders an amount as K1,234.56.
func Format(d decimal.Decimal) string {
	rounded := Round2(d)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Abs()
	}
	fixed := rounded.StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")
	return fmt.Sprintf("%sK%s.%s", sign, groupThousands(intPart), frac)
}

// FormatWhole renders an amount without decimals, as the dashboard cards do.
func FormatWhole(d decimal.Decimal) string {
	rounded := d.Round(0)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Abs()
	}
	return sign + "K" + groupThousands(rounded.StringFixed(0))
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// FromText reads a numeric column selected as ::text.
func FromText(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
