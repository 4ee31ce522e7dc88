package xlsx

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"cuadre/internal/core"
	"cuadre/internal/ledger"

	"github.com/xuri/excelize/v2"
)

func TestOpenCreatesWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cuadres.xlsx")
	if _, err := Open(path); err != nil {
		t.Fatalf("Open: %v", err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(LedgerSheet)
	if err != nil || len(rows) != 1 || len(rows[0]) != core.LedgerColumns {
		t.Fatalf("expected header row, got %v (err=%v)", rows, err)
	}
}

func TestConfigValues(t *testing.T) {
	w, err := Open(filepath.Join(t.TempDir(), "cuadres.xlsx"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := w.ReplaceConfigValues(ctx, ledger.ColumnStores, []string{"Centro", "Norte", "Sur"}); err != nil {
		t.Fatalf("ReplaceConfigValues: %v", err)
	}
	if err := w.ReplaceConfigValues(ctx, ledger.ColumnBanks, []string{"Bancolombia"}); err != nil {
		t.Fatalf("ReplaceConfigValues: %v", err)
	}
	stores, err := w.ListConfigValues(ctx, ledger.ColumnStores)
	if err != nil || !reflect.DeepEqual(stores, []string{"Centro", "Norte", "Sur"}) {
		t.Fatalf("unexpected stores %v (err=%v)", stores, err)
	}

	// Shrinking a list blanks the old tail.
	if err := w.ReplaceConfigValues(ctx, ledger.ColumnStores, []string{"Oeste"}); err != nil {
		t.Fatalf("ReplaceConfigValues: %v", err)
	}
	stores, _ = w.ListConfigValues(ctx, ledger.ColumnStores)
	if !reflect.DeepEqual(stores, []string{"Oeste"}) {
		t.Fatalf("unexpected stores %v", stores)
	}
	banks, _ := w.ListConfigValues(ctx, ledger.ColumnBanks)
	if !reflect.DeepEqual(banks, []string{"Bancolombia"}) {
		t.Fatalf("unexpected banks %v", banks)
	}
}

func TestAppendAndFind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cuadres.xlsx")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	row := core.LedgerRow{
		ID: "Store1-2024-06-01", Store: "Store1", Date: "2024-06-01", InvoiceStart: "F-1", InvoiceEnd: "F-9",
		DeclaredTotal: "100000", CardPayments: "[100000]", BankDeposits: "[]", Expenses: "[]",
		CashMovements: "[]", SavedAt: "2024-06-01 18:00:00",
	}
	ref, err := w.AppendRow(ctx, row)
	if err != nil || ref != "Cuadres!A2:K2" {
		t.Fatalf("unexpected ref %q (err=%v)", ref, err)
	}
	ref, _ = w.AppendRow(ctx, row)
	if ref != "Cuadres!A3:K3" {
		t.Fatalf("unexpected ref %q", ref)
	}

	// A fresh handle sees the rows persisted on disk.
	again, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	found, err := again.FindRecords(ctx, row.ID)
	if err != nil || len(found) != 2 || found[0] != row {
		t.Fatalf("unexpected rows %+v (err=%v)", found, err)
	}
}
