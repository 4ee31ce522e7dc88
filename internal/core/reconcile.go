package core

import "github.com/shopspring/decimal"

// Reconciliation is the outcome of checking a form's breakdown against its
// declared total.
type Reconciliation struct {
	DeclaredTotal  decimal.Decimal
	CardsTotal     decimal.Decimal
	DepositsTotal  decimal.Decimal
	ExpensesTotal  decimal.Decimal
	CashTotal      decimal.Decimal
	BreakdownTotal decimal.Decimal
	// Difference is DeclaredTotal - BreakdownTotal; positive means missing items.
	Difference decimal.Decimal
}

// Balanced reports exact equality; no rounding tolerance is applied.
func (r Reconciliation) Balanced() bool {
	return r.Difference.IsZero()
}

// Reconcile sums the four categories and compares them with the declared total.
func Reconcile(f *Form) Reconciliation {
	r := Reconciliation{
		DeclaredTotal: f.DeclaredTotal,
		CardsTotal:    Sum(f.CardPayments...),
		DepositsTotal: decimal.Zero,
		ExpensesTotal: decimal.Zero,
		CashTotal:     decimal.Zero,
	}
	for _, d := range f.BankDeposits {
		r.DepositsTotal = r.DepositsTotal.Add(d.Amount)
	}
	for _, e := range f.Expenses {
		r.ExpensesTotal = r.ExpensesTotal.Add(e.Amount)
	}
	for _, c := range f.CashMovements {
		r.CashTotal = r.CashTotal.Add(c.Amount)
	}
	r.BreakdownTotal = Sum(r.CardsTotal, r.DepositsTotal, r.ExpensesTotal, r.CashTotal)
	r.Difference = r.DeclaredTotal.Sub(r.BreakdownTotal)
	return r
}

// Mismatch returns a *MismatchError for an unbalanced result, nil otherwise.
func (r Reconciliation) Mismatch() error {
	if r.Balanced() {
		return nil
	}
	return &MismatchError{
		Declared:   r.DeclaredTotal,
		Breakdown:  r.BreakdownTotal,
		Difference: r.Difference,
	}
}
