package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Form is the in-progress reconciliation of one session.
//
// It is created empty, grows through the four Add commands and is cleared
// after a successful save or an explicit reset. Line items are append-only.
type Form struct {
	Store         string          `json:"store" validate:"required,max=128"`
	Date          Date            `json:"date"`
	InvoiceStart  string          `json:"invoice_start" validate:"max=64"`
	InvoiceEnd    string          `json:"invoice_end" validate:"max=64"`
	DeclaredTotal decimal.Decimal `json:"declared_total"`

	CardPayments  []decimal.Decimal `json:"card_payments"`
	BankDeposits  []BankDeposit     `json:"bank_deposits"`
	Expenses      []Expense         `json:"expenses"`
	CashMovements []CashMovement    `json:"cash_movements"`

	Initialized bool `json:"initialized"`
}

// NewForm returns an initialized, empty form.
func NewForm() *Form {
	f := &Form{}
	f.Initialize()
	return f
}

// Initialize sets the empty defaults. It is a no-op on an initialized form.
func (f *Form) Initialize() {
	if f.Initialized {
		return
	}
	f.DeclaredTotal = decimal.Zero
	f.InvoiceStart = ""
	f.InvoiceEnd = ""
	f.CardPayments = []decimal.Decimal{}
	f.BankDeposits = []BankDeposit{}
	f.Expenses = []Expense{}
	f.CashMovements = []CashMovement{}
	f.Initialized = true
}

// Clear discards everything, header included, and re-initializes.
func (f *Form) Clear() {
	*f = Form{}
	f.Initialize()
}

// SetHeader replaces the header fields. A negative declared total is rejected
// and leaves the form untouched.
func (f *Form) SetHeader(store string, date Date, invoiceStart, invoiceEnd string, declared decimal.Decimal) error {
	if declared.IsNegative() {
		return ErrInvalidAmount
	}
	f.Store = strings.TrimSpace(store)
	f.Date = date
	f.InvoiceStart = strings.TrimSpace(invoiceStart)
	f.InvoiceEnd = strings.TrimSpace(invoiceEnd)
	f.DeclaredTotal = declared
	return nil
}

// AddCardPayment appends amount when it is positive and reports whether it did.
func (f *Form) AddCardPayment(amount decimal.Decimal) bool {
	if !amount.IsPositive() {
		return false
	}
	f.CardPayments = append(f.CardPayments, amount)
	return true
}

func (f *Form) AddBankDeposit(bank string, amount decimal.Decimal, date Date) bool {
	if !amount.IsPositive() {
		return false
	}
	f.BankDeposits = append(f.BankDeposits, BankDeposit{
		Bank:   strings.TrimSpace(bank),
		Amount: amount,
		Date:   date,
	})
	return true
}

// AddExpense also requires a non-blank description.
func (f *Form) AddExpense(description string, amount decimal.Decimal) bool {
	description = strings.TrimSpace(description)
	if description == "" || !amount.IsPositive() {
		return false
	}
	f.Expenses = append(f.Expenses, Expense{Description: description, Amount: amount})
	return true
}

func (f *Form) AddCashMovement(kind CashKind, amount decimal.Decimal) bool {
	if !kind.Valid() || !amount.IsPositive() {
		return false
	}
	f.CashMovements = append(f.CashMovements, CashMovement{Kind: kind, Amount: amount})
	return true
}

// RecordID is the ledger key "{store}-{date}".
func (f *Form) RecordID() string {
	return RecordID(f.Store, f.Date)
}

// ItemCount is the number of line items across all four categories.
func (f *Form) ItemCount() int {
	return len(f.CardPayments) + len(f.BankDeposits) + len(f.Expenses) + len(f.CashMovements)
}

// Clone returns a deep copy; session stores hand out clones only.
func (f *Form) Clone() *Form {
	if f == nil {
		return nil
	}
	c := *f
	c.CardPayments = append([]decimal.Decimal{}, f.CardPayments...)
	c.BankDeposits = append([]BankDeposit{}, f.BankDeposits...)
	c.Expenses = append([]Expense{}, f.Expenses...)
	c.CashMovements = append([]CashMovement{}, f.CashMovements...)
	return &c
}

// RecordID builds the ledger key for a store and date.
func RecordID(store string, date Date) string {
	return strings.TrimSpace(store) + "-" + date.String()
}
