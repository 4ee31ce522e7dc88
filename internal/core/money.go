// Package core provides amount parsing and formatting helpers.
//
// Amounts are kept as decimal.Decimal end to end so that repeated additions
// never drift the way float64 sums do.
package core

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts user input into an exact decimal.
//
// It accepts a dot or a comma as decimal separator and an optional leading
// "$" sign. Empty input parses as zero. Negative values are returned as-is so
// that callers can decide whether to reject them; only malformed input errors.
// A non-zero integer part followed by exactly three decimals ("100.000") reads
// as thousands grouping and is rejected rather than taken as 100.
//
// Examples:
//
//	ParseAmount("40000")    -> 40000
//	ParseAmount("1234,50")  -> 1234.5
//	ParseAmount("$ 99.9")   -> 99.9
//	ParseAmount("-5")       -> -5
//	ParseAmount("100.000")  -> ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimPrefix(s, "$"))
	if s == "" {
		return decimal.Zero, nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.TrimPrefix(s, "+")

	body := strings.TrimPrefix(s, "-")
	if body == "" || strings.Count(body, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range body {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if body == "." {
		return decimal.Zero, ErrInvalidAmount
	}
	if whole, frac, ok := strings.Cut(body, "."); ok && len(frac) == 3 && strings.Trim(whole, "0") != "" {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Sum adds amounts exactly.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
