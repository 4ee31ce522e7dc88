package http

import (
	"time"

	"cuadre/internal/core"
	"cuadre/internal/services"
)

type messageKind string

const (
	messageSuccess messageKind = "success"
	messageError   messageKind = "error"
	messageWarning messageKind = "warning"
)

type message struct {
	Kind messageKind
	Text string
}

type (
	cardView struct {
		Index  int
		Amount string
	}
	depositView struct {
		Index  int
		Bank   string
		Amount string
		Date   string
	}
	expenseView struct {
		Index       int
		Description string
		Amount      string
	}
	cashView struct {
		Index  int
		Kind   string
		Amount string
	}
)

// formView is everything the form page and its state partial render.
type formView struct {
	RecordID      string
	Store         string
	Date          string
	InvoiceStart  string
	InvoiceEnd    string
	DeclaredInput string
	Declared      string

	Cards    []cardView
	Deposits []depositView
	Expenses []expenseView
	Cash     []cashView

	CardsTotal    string
	DepositsTotal string
	ExpensesTotal string
	CashTotal     string
	Breakdown     string
	Difference    string
	Balanced      bool
	HasItems      bool

	Stores      []string
	Banks       []string
	StoresError bool
	BanksError  bool
	CashKinds   []string
	Today       string

	Message     *message
	FieldErrors map[string]string
}

// newFormView renders f with the reference lists. The save button is enabled
// only when the breakdown matches the declared total.
func newFormView(f *core.Form, lists services.ConfigLists, today time.Time) formView {
	r := core.Reconcile(f)
	v := formView{
		Store:        f.Store,
		Date:         f.Date.String(),
		InvoiceStart: f.InvoiceStart,
		InvoiceEnd:   f.InvoiceEnd,
		Declared:     formatPesos(f.DeclaredTotal),

		CardsTotal:    formatPesos(r.CardsTotal),
		DepositsTotal: formatPesos(r.DepositsTotal),
		ExpensesTotal: formatPesos(r.ExpensesTotal),
		CashTotal:     formatPesos(r.CashTotal),
		Breakdown:     formatPesos(r.BreakdownTotal),
		Difference:    formatPesos(r.Difference),
		Balanced:      r.Balanced(),
		HasItems:      f.ItemCount() > 0,

		Stores:      lists.Stores,
		Banks:       lists.Banks,
		StoresError: lists.StoresErr != nil,
		BanksError:  lists.BanksErr != nil,
		Today:       today.Format(core.DateLayout),
	}
	if f.Store != "" && !f.Date.IsZero() {
		v.RecordID = f.RecordID()
	}
	if !f.DeclaredTotal.IsZero() {
		v.DeclaredInput = f.DeclaredTotal.String()
	}
	for _, k := range core.CashKinds() {
		v.CashKinds = append(v.CashKinds, string(k))
	}

	for i, c := range f.CardPayments {
		v.Cards = append(v.Cards, cardView{Index: i + 1, Amount: formatPesos(c)})
	}
	for i, d := range f.BankDeposits {
		v.Deposits = append(v.Deposits, depositView{Index: i + 1, Bank: d.Bank, Amount: formatPesos(d.Amount), Date: d.Date.String()})
	}
	for i, e := range f.Expenses {
		v.Expenses = append(v.Expenses, expenseView{Index: i + 1, Description: e.Description, Amount: formatPesos(e.Amount)})
	}
	for i, c := range f.CashMovements {
		v.Cash = append(v.Cash, cashView{Index: i + 1, Kind: string(c.Kind), Amount: formatPesos(c.Amount)})
	}
	return v
}

// recordView is one saved ledger row on the lookup page.
type recordView struct {
	ID      string
	SavedAt string
	Form    formView
	Err     string
}

type recordsView struct {
	Store   string
	Date    string
	Stores  []string
	Records []recordView
	Message *message
}

func newRecordsView(store, date string, rows []core.LedgerRow, stores []string) recordsView {
	v := recordsView{Store: store, Date: date, Stores: stores}
	for _, row := range rows {
		rv := recordView{ID: row.ID, SavedAt: row.SavedAt}
		f, err := row.Form()
		if err != nil {
			rv.Err = err.Error()
		} else {
			rv.Form = newFormView(f, services.ConfigLists{}, time.Time{})
		}
		v.Records = append(v.Records, rv)
	}
	return v
}

// apiState is the JSON shape of GET /api/cuadre.
type apiState struct {
	RecordID string     `json:"record_id,omitempty"`
	Form     *core.Form `json:"form"`
	Totals   apiTotals  `json:"totals"`
	Balanced bool       `json:"balanced"`
}

type apiTotals struct {
	Declared   string `json:"declared"`
	Cards      string `json:"cards"`
	Deposits   string `json:"deposits"`
	Expenses   string `json:"expenses"`
	Cash       string `json:"cash"`
	Breakdown  string `json:"breakdown"`
	Difference string `json:"difference"`
}

func newAPIState(f *core.Form) apiState {
	r := core.Reconcile(f)
	s := apiState{
		Form: f,
		Totals: apiTotals{
			Declared:   r.DeclaredTotal.String(),
			Cards:      r.CardsTotal.String(),
			Deposits:   r.DepositsTotal.String(),
			Expenses:   r.ExpensesTotal.String(),
			Cash:       r.CashTotal.String(),
			Breakdown:  r.BreakdownTotal.String(),
			Difference: r.Difference.String(),
		},
		Balanced: r.Balanced(),
	}
	if f.Store != "" && !f.Date.IsZero() {
		s.RecordID = f.RecordID()
	}
	return s
}
