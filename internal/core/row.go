package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerColumns is the number of cells in a persisted row.
const LedgerColumns = 11

// LedgerRow is a reconciliation as stored in the ledger, one string per column:
// id, store, date, invoiceStart, invoiceEnd, declaredTotal, cardPayments,
// bankDeposits, expenses, cashMovements, savedAt. The four category columns
// hold JSON arrays.
type LedgerRow struct {
	ID            string
	Store         string
	Date          string
	InvoiceStart  string
	InvoiceEnd    string
	DeclaredTotal string
	CardPayments  string
	BankDeposits  string
	Expenses      string
	CashMovements string
	SavedAt       string
}

type (
	rowDeposit struct {
		Banco string      `json:"banco"`
		Valor json.Number `json:"valor"`
		Fecha string      `json:"fecha"`
	}
	rowExpense struct {
		Descripcion string      `json:"descripcion"`
		Valor       json.Number `json:"valor"`
	}
	rowCash struct {
		Tipo  string      `json:"tipo"`
		Valor json.Number `json:"valor"`
	}
)

// LedgerHeader is the header row written to new ledger sheets.
func LedgerHeader() []string {
	return []string{
		"id", "tienda", "fecha", "factura_inicial", "factura_final", "total_declarado",
		"tarjetas", "consignaciones", "gastos", "efectivo", "guardado",
	}
}

// BuildLedgerRow serializes f with the given save time.
func BuildLedgerRow(f *Form, savedAt time.Time) (LedgerRow, error) {
	cards := make([]json.Number, 0, len(f.CardPayments))
	for _, c := range f.CardPayments {
		cards = append(cards, json.Number(c.String()))
	}
	deposits := make([]rowDeposit, 0, len(f.BankDeposits))
	for _, d := range f.BankDeposits {
		deposits = append(deposits, rowDeposit{Banco: d.Bank, Valor: json.Number(d.Amount.String()), Fecha: d.Date.String()})
	}
	expenses := make([]rowExpense, 0, len(f.Expenses))
	for _, e := range f.Expenses {
		expenses = append(expenses, rowExpense{Descripcion: e.Description, Valor: json.Number(e.Amount.String())})
	}
	cash := make([]rowCash, 0, len(f.CashMovements))
	for _, c := range f.CashMovements {
		cash = append(cash, rowCash{Tipo: string(c.Kind), Valor: json.Number(c.Amount.String())})
	}

	row := LedgerRow{
		ID:            f.RecordID(),
		Store:         f.Store,
		Date:          f.Date.String(),
		InvoiceStart:  f.InvoiceStart,
		InvoiceEnd:    f.InvoiceEnd,
		DeclaredTotal: f.DeclaredTotal.String(),
		SavedAt:       savedAt.Format(SavedAtLayout),
	}
	var err error
	if row.CardPayments, err = encodeColumn(cards); err != nil {
		return LedgerRow{}, fmt.Errorf("encode card payments: %w", err)
	}
	if row.BankDeposits, err = encodeColumn(deposits); err != nil {
		return LedgerRow{}, fmt.Errorf("encode bank deposits: %w", err)
	}
	if row.Expenses, err = encodeColumn(expenses); err != nil {
		return LedgerRow{}, fmt.Errorf("encode expenses: %w", err)
	}
	if row.CashMovements, err = encodeColumn(cash); err != nil {
		return LedgerRow{}, fmt.Errorf("encode cash movements: %w", err)
	}
	return row, nil
}

func encodeColumn(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Values returns the cells in ledger column order.
func (r LedgerRow) Values() []string {
	return []string{
		r.ID, r.Store, r.Date, r.InvoiceStart, r.InvoiceEnd, r.DeclaredTotal,
		r.CardPayments, r.BankDeposits, r.Expenses, r.CashMovements, r.SavedAt,
	}
}

// Cells is Values typed for spreadsheet APIs.
func (r LedgerRow) Cells() []any {
	vals := r.Values()
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

// ParseLedgerRow is the inverse of Values. Short rows are padded; rows with
// fewer than the id and store cells are rejected.
func ParseLedgerRow(cells []string) (LedgerRow, error) {
	if len(cells) < 2 {
		return LedgerRow{}, fmt.Errorf("ledger row has %d cells, want %d", len(cells), LedgerColumns)
	}
	padded := make([]string, LedgerColumns)
	for i := 0; i < LedgerColumns && i < len(cells); i++ {
		padded[i] = strings.TrimSpace(cells[i])
	}
	return LedgerRow{
		ID:            padded[0],
		Store:         padded[1],
		Date:          padded[2],
		InvoiceStart:  padded[3],
		InvoiceEnd:    padded[4],
		DeclaredTotal: padded[5],
		CardPayments:  padded[6],
		BankDeposits:  padded[7],
		Expenses:      padded[8],
		CashMovements: padded[9],
		SavedAt:       padded[10],
	}, nil
}

// Form decodes the row back into a form, used to display saved records.
func (r LedgerRow) Form() (*Form, error) {
	f := NewForm()
	f.Store = r.Store
	if r.Date != "" {
		d, err := ParseDate(r.Date)
		if err != nil {
			return nil, fmt.Errorf("row %s date: %w", r.ID, err)
		}
		f.Date = d
	}
	f.InvoiceStart = r.InvoiceStart
	f.InvoiceEnd = r.InvoiceEnd
	if v := strings.TrimSpace(r.DeclaredTotal); v != "" {
		declared, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("row %s declared total: %w", r.ID, err)
		}
		f.DeclaredTotal = declared
	}

	var cards []json.Number
	if err := decodeColumn(r.CardPayments, &cards); err != nil {
		return nil, fmt.Errorf("row %s card payments: %w", r.ID, err)
	}
	for _, c := range cards {
		amt, err := decimal.NewFromString(c.String())
		if err != nil {
			return nil, fmt.Errorf("row %s card payment %q: %w", r.ID, c, err)
		}
		f.CardPayments = append(f.CardPayments, amt)
	}

	var deposits []rowDeposit
	if err := decodeColumn(r.BankDeposits, &deposits); err != nil {
		return nil, fmt.Errorf("row %s bank deposits: %w", r.ID, err)
	}
	for _, d := range deposits {
		amt, err := decimal.NewFromString(d.Valor.String())
		if err != nil {
			return nil, fmt.Errorf("row %s deposit %q: %w", r.ID, d.Valor, err)
		}
		var date Date
		if d.Fecha != "" {
			if date, err = ParseDate(d.Fecha); err != nil {
				return nil, fmt.Errorf("row %s deposit date: %w", r.ID, err)
			}
		}
		f.BankDeposits = append(f.BankDeposits, BankDeposit{Bank: d.Banco, Amount: amt, Date: date})
	}

	var expenses []rowExpense
	if err := decodeColumn(r.Expenses, &expenses); err != nil {
		return nil, fmt.Errorf("row %s expenses: %w", r.ID, err)
	}
	for _, e := range expenses {
		amt, err := decimal.NewFromString(e.Valor.String())
		if err != nil {
			return nil, fmt.Errorf("row %s expense %q: %w", r.ID, e.Valor, err)
		}
		f.Expenses = append(f.Expenses, Expense{Description: e.Descripcion, Amount: amt})
	}

	var cash []rowCash
	if err := decodeColumn(r.CashMovements, &cash); err != nil {
		return nil, fmt.Errorf("row %s cash movements: %w", r.ID, err)
	}
	for _, c := range cash {
		amt, err := decimal.NewFromString(c.Valor.String())
		if err != nil {
			return nil, fmt.Errorf("row %s cash movement %q: %w", r.ID, c.Valor, err)
		}
		f.CashMovements = append(f.CashMovements, CashMovement{Kind: CashKind(c.Tipo), Amount: amt})
	}
	return f, nil
}

func decodeColumn(s string, v any) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	return dec.Decode(v)
}
