package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of every date stored in the ledger.
const DateLayout = "2006-01-02"

// SavedAtLayout is the wire format of the ledger save timestamp.
const SavedAtLayout = "2006-01-02 15:04:05"

const (
	CashKindCash      CashKind = "Efectivo"
	CashKindPettyCash CashKind = "Reintegro Caja Menor"
)

type (
	// CashKind distinguishes plain cash from petty-cash reimbursements.
	CashKind string

	Date struct {
		time.Time
	}

	BankDeposit struct {
		Bank   string          `json:"bank"`
		Amount decimal.Decimal `json:"amount"`
		Date   Date            `json:"date"`
	}

	Expense struct {
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
	}

	CashMovement struct {
		Kind   CashKind        `json:"kind"`
		Amount decimal.Decimal `json:"amount"`
	}
)

var ErrInvalidDate = errors.New("invalid date")

// CashKinds lists the accepted movement kinds in display order.
func CashKinds() []CashKind {
	return []CashKind{CashKindCash, CashKindPettyCash}
}

// Valid reports whether k is one of the known movement kinds.
func (k CashKind) Valid() bool {
	switch k {
	case CashKindCash, CashKindPettyCash:
		return true
	default:
		return false
	}
}

// ParseCashKind accepts the stored label or the short form names used by forms.
func ParseCashKind(s string) (CashKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "efectivo", "cash":
		return CashKindCash, true
	case "reintegro caja menor", "caja menor", "petty_cash", "pettycash":
		return CashKindPettyCash, true
	default:
		return "", false
	}
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
