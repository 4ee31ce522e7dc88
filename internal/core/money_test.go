package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"40000", "40000", true},
		{"1234,50", "1234.5", true},
		{"$ 99.9", "99.9", true},
		{" 2.50 ", "2.5", true},
		{"-5", "-5", true},
		{"+7", "7", true},
		{"", "0", true},
		{"0", "0", true},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1e3", "", false},
		{"-", "", false},
		{".", "", false},
		{"100.000", "", false},
		{"$ 1,500", "", false},
		{"0.125", "0.125", true},
		{"100.0000", "100", true},
		{"1234.5", "1234.5", true},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestSumIsExact(t *testing.T) {
	tenth := decimal.RequireFromString("0.1")
	var amounts []decimal.Decimal
	for i := 0; i < 1000; i++ {
		amounts = append(amounts, tenth)
	}
	if got := Sum(amounts...); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected 100, got %s", got)
	}
	if got := Sum(); !got.IsZero() {
		t.Fatalf("empty sum should be zero, got %s", got)
	}
}
