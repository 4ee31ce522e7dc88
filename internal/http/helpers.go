package http

import (
	"strings"

	"github.com/shopspring/decimal"
)

// formatPesos renders an amount with dot thousands separators and a comma
// before cents, e.g. "$100.000", "-$60.000", "$1.234,50".
func formatPesos(d decimal.Decimal) string {
	neg := d.IsNegative()
	intPart, frac, _ := strings.Cut(d.Abs().StringFixed(2), ".")

	var b strings.Builder
	b.Grow(len(intPart) + len(intPart)/3 + 4)
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if frac != "00" {
		b.WriteByte(',')
		b.WriteString(frac)
	}
	return b.String()
}

// sanitizeInput removes control characters (except tab, newline and carriage
// return) and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
