package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"cuadre/internal/core"
	"cuadre/internal/ledger"
)

func newTestRepo(t *testing.T) (*SQLiteRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "cuadre.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo, path
}

func sampleRow(id, store string) core.LedgerRow {
	return core.LedgerRow{
		ID: id, Store: store, Date: "2024-06-01", InvoiceStart: "F-1", InvoiceEnd: "F-9",
		DeclaredTotal: "100000", CardPayments: "[40000]",
		BankDeposits:  `[{"banco":"X","valor":30000,"fecha":"2024-06-01"}]`,
		Expenses:      "[]",
		CashMovements: `[{"tipo":"Efectivo","valor":30000}]`,
		SavedAt:       "2024-06-01 18:00:00",
	}
}

func TestMigrationsApplied(t *testing.T) {
	_, path := newTestRepo(t)
	version, dirty, err := MigrationVersion(path)
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != 2 || dirty {
		t.Fatalf("expected clean version 2, got %d dirty=%v", version, dirty)
	}
	// Running again is a no-op.
	if err := RunMigrations(path); err != nil {
		t.Fatalf("second RunMigrations: %v", err)
	}
}

func TestAppendAndFindRecords(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	row := sampleRow("Store1-2024-06-01", "Store1")
	ref, err := repo.AppendRow(ctx, row)
	if err != nil || ref != "1" {
		t.Fatalf("unexpected ref %q (err=%v)", ref, err)
	}
	if _, err := repo.AppendRow(ctx, sampleRow("Store2-2024-06-01", "Store2")); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	if _, err := repo.AppendRow(ctx, row); err != nil {
		t.Fatalf("duplicate AppendRow: %v", err)
	}

	found, err := repo.FindRecords(ctx, row.ID)
	if err != nil {
		t.Fatalf("FindRecords: %v", err)
	}
	if len(found) != 2 || found[0] != row || found[1] != row {
		t.Fatalf("unexpected rows %+v", found)
	}

	rec, err := repo.GetRecord(ctx, 1)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.SyncStatus != SyncStatusPending || rec.Version != 1 || rec.LedgerRow() != row {
		t.Fatalf("unexpected record %+v", rec)
	}
	if _, err := repo.GetRecord(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSyncLifecycle(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	for _, store := range []string{"A", "B", "C"} {
		if _, err := repo.CreateRecord(ctx, sampleRow(store+"-2024-06-01", store)); err != nil {
			t.Fatalf("CreateRecord: %v", err)
		}
	}

	pending, err := repo.GetPendingSync(ctx, 10)
	if err != nil || len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d (err=%v)", len(pending), err)
	}
	if pending[0].ID != 1 || pending[0].CreatedAt.IsZero() {
		t.Fatalf("unexpected first pending %+v", pending[0])
	}

	if err := repo.MarkSynced(ctx, 1, "Cuadres!A2:K2"); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	if err := repo.MarkSyncError(ctx, 2, errors.New("quota exceeded")); err != nil {
		t.Fatalf("MarkSyncError: %v", err)
	}

	pending, _ = repo.GetPendingSync(ctx, 10)
	if len(pending) != 2 || pending[0].ID != 2 || pending[1].ID != 3 {
		t.Fatalf("errored rows stay pending, got %+v", pending)
	}
	limited, _ := repo.GetPendingSync(ctx, 1)
	if len(limited) != 1 {
		t.Fatalf("limit not applied: %d", len(limited))
	}

	rec, _ := repo.GetRecord(ctx, 1)
	if rec.SyncStatus != SyncStatusSynced || rec.SheetsRef != "Cuadres!A2:K2" || !rec.SyncedAt.Valid {
		t.Fatalf("unexpected synced record %+v", rec)
	}
	rec, _ = repo.GetRecord(ctx, 2)
	if rec.SyncStatus != SyncStatusError || rec.SyncError != "quota exceeded" {
		t.Fatalf("unexpected errored record %+v", rec)
	}

	stats, err := repo.SyncStats(ctx)
	if err != nil {
		t.Fatalf("SyncStats: %v", err)
	}
	want := map[string]int64{SyncStatusSynced: 1, SyncStatusError: 1, SyncStatusPending: 1}
	if !reflect.DeepEqual(stats, want) {
		t.Fatalf("expected %v, got %v", want, stats)
	}
}

func TestConfigValues(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	stores, err := repo.ListConfigValues(ctx, ledger.ColumnStores)
	if err != nil || len(stores) != 0 {
		t.Fatalf("expected empty list, got %v (err=%v)", stores, err)
	}
	if err := repo.ReplaceConfigValues(ctx, ledger.ColumnStores, []string{"Centro", "Norte", "Centro", ""}); err != nil {
		t.Fatalf("ReplaceConfigValues: %v", err)
	}
	if err := repo.ReplaceConfigValues(ctx, ledger.ColumnBanks, []string{"Bancolombia"}); err != nil {
		t.Fatalf("ReplaceConfigValues: %v", err)
	}
	stores, _ = repo.ListConfigValues(ctx, ledger.ColumnStores)
	if !reflect.DeepEqual(stores, []string{"Centro", "Norte"}) {
		t.Fatalf("unexpected stores %v", stores)
	}
	if err := repo.ReplaceConfigValues(ctx, ledger.ColumnStores, []string{"Sur"}); err != nil {
		t.Fatalf("ReplaceConfigValues: %v", err)
	}
	stores, _ = repo.ListConfigValues(ctx, ledger.ColumnStores)
	if !reflect.DeepEqual(stores, []string{"Sur"}) {
		t.Fatalf("replace should drop old values, got %v", stores)
	}
	banks, _ := repo.ListConfigValues(ctx, ledger.ColumnBanks)
	if !reflect.DeepEqual(banks, []string{"Bancolombia"}) {
		t.Fatalf("other column must be untouched, got %v", banks)
	}
	if n, _ := repo.ConfigCount(ctx, ledger.ColumnBanks); n != 1 {
		t.Fatalf("expected 1 bank, got %d", n)
	}
	if _, err := repo.ListConfigValues(ctx, 5); err == nil {
		t.Fatalf("expected error for unknown column")
	}
}
