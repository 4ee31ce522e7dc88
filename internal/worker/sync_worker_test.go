package worker

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"cuadre/internal/amqp"
	"cuadre/internal/core"
	"cuadre/internal/ledger"
	"cuadre/internal/ledger/memory"
	"cuadre/internal/services"
	"cuadre/internal/storage"
)

// flakyAppender fails the first n appends.
type flakyAppender struct {
	inner ledger.RowAppender
	fails int
}

func (f *flakyAppender) AppendRow(ctx context.Context, row core.LedgerRow) (string, error) {
	if f.fails > 0 {
		f.fails--
		return "", errors.New("sheets unavailable")
	}
	return f.inner.AppendRow(ctx, row)
}

// slowAppender delays every append so concurrent mirrors overlap.
type slowAppender struct {
	inner ledger.RowAppender
	delay time.Duration
}

func (s *slowAppender) AppendRow(ctx context.Context, row core.LedgerRow) (string, error) {
	time.Sleep(s.delay)
	return s.inner.AppendRow(ctx, row)
}

func newRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "cuadre.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func row(store string) core.LedgerRow {
	return core.LedgerRow{
		ID: store + "-2024-06-01", Store: store, Date: "2024-06-01", DeclaredTotal: "10",
		CardPayments: "[10]", BankDeposits: "[]", Expenses: "[]", CashMovements: "[]",
		SavedAt: "2024-06-01 18:00:00",
	}
}

func TestHandleSyncMessage(t *testing.T) {
	repo := newRepo(t)
	sheets := memory.New(nil, nil)
	w := NewSyncWorker(repo, sheets, sheets, 10)
	ctx := context.Background()

	id, err := repo.CreateRecord(ctx, row("Store1"))
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if err := w.HandleSyncMessage(ctx, amqp.NewRecordSyncMessage(id, 1)); err != nil {
		t.Fatalf("HandleSyncMessage: %v", err)
	}
	if got := sheets.Rows(); len(got) != 1 || got[0] != row("Store1") {
		t.Fatalf("unexpected mirrored rows %+v", got)
	}
	rec, _ := repo.GetRecord(ctx, id)
	if rec.SyncStatus != storage.SyncStatusSynced || rec.SheetsRef != "mem:1" {
		t.Fatalf("record not marked synced: %+v", rec)
	}

	// Redelivery must not append twice.
	if err := w.HandleSyncMessage(ctx, amqp.NewRecordSyncMessage(id, 1)); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(sheets.Rows()) != 1 {
		t.Fatalf("redelivered message appended again")
	}

	if err := w.HandleSyncMessage(ctx, amqp.NewRecordSyncMessage(999, 1)); err == nil {
		t.Fatalf("expected error for unknown record")
	}
}

func TestHandleSyncMessage_AppendFailureMarksError(t *testing.T) {
	repo := newRepo(t)
	sheets := &flakyAppender{inner: memory.New(nil, nil), fails: 1}
	w := NewSyncWorker(repo, sheets, nil, 10)
	ctx := context.Background()

	id, _ := repo.CreateRecord(ctx, row("Store1"))
	err := w.HandleSyncMessage(ctx, amqp.NewRecordSyncMessage(id, 1))
	if !errors.Is(err, amqp.ErrNoRequeue) {
		t.Fatalf("expected a recorded failure that skips requeue, got %v", err)
	}
	rec, _ := repo.GetRecord(ctx, id)
	if rec.SyncStatus != storage.SyncStatusError || rec.SyncError != "sheets unavailable" {
		t.Fatalf("unexpected record %+v", rec)
	}

	n, err := w.ProcessPending(ctx)
	if err != nil || n != 1 {
		t.Fatalf("sweep should retry errored rows, synced=%d err=%v", n, err)
	}
}

func TestProcessPendingAndStartup(t *testing.T) {
	repo := newRepo(t)
	sheets := memory.New(nil, nil)
	w := NewSyncWorker(repo, sheets, sheets, 2)
	ctx := context.Background()

	for _, s := range []string{"A", "B", "C", "D", "E"} {
		if _, err := repo.CreateRecord(ctx, row(s)); err != nil {
			t.Fatalf("CreateRecord: %v", err)
		}
	}
	n, err := w.ProcessPending(ctx)
	if err != nil || n != 2 {
		t.Fatalf("expected one batch of 2, got %d (err=%v)", n, err)
	}
	if err := w.StartupSyncCheck(ctx); err != nil {
		t.Fatalf("StartupSyncCheck: %v", err)
	}
	if len(sheets.Rows()) != 5 {
		t.Fatalf("expected all 5 rows mirrored, got %d", len(sheets.Rows()))
	}
	if n, _ := w.ProcessPending(ctx); n != 0 {
		t.Fatalf("nothing should remain pending, got %d", n)
	}
}

func TestSyncConfigIfNeeded(t *testing.T) {
	repo := newRepo(t)
	sheets := memory.New([]string{"Centro", "Norte"}, []string{"Bancolombia"})
	w := NewSyncWorker(repo, sheets, sheets, 10)
	ctx := context.Background()

	if err := w.SyncConfigIfNeeded(ctx); err != nil {
		t.Fatalf("SyncConfigIfNeeded: %v", err)
	}
	stores, _ := repo.ListConfigValues(ctx, ledger.ColumnStores)
	if !reflect.DeepEqual(stores, []string{"Centro", "Norte"}) {
		t.Fatalf("unexpected stores %v", stores)
	}

	// A populated copy is left alone.
	_ = sheets.ReplaceConfigValues(ctx, ledger.ColumnStores, []string{"Sur"})
	if err := w.SyncConfigIfNeeded(ctx); err != nil {
		t.Fatalf("SyncConfigIfNeeded: %v", err)
	}
	stores, _ = repo.ListConfigValues(ctx, ledger.ColumnStores)
	if !reflect.DeepEqual(stores, []string{"Centro", "Norte"}) {
		t.Fatalf("populated lists should not be refreshed, got %v", stores)
	}

	if err := w.RefreshConfig(ctx); err != nil {
		t.Fatalf("RefreshConfig: %v", err)
	}
	stores, _ = repo.ListConfigValues(ctx, ledger.ColumnStores)
	if !reflect.DeepEqual(stores, []string{"Sur"}) {
		t.Fatalf("forced refresh should copy new values, got %v", stores)
	}

	_ = sheets.ReplaceConfigValues(ctx, ledger.ColumnStores, nil)
	if err := w.RefreshConfig(ctx); err != nil {
		t.Fatalf("RefreshConfig: %v", err)
	}
	stores, _ = repo.ListConfigValues(ctx, ledger.ColumnStores)
	if !reflect.DeepEqual(stores, []string{"Sur"}) {
		t.Fatalf("an empty remote list should not wipe the local one, got %v", stores)
	}
}

func TestConsumerAndSweepMirrorOnce(t *testing.T) {
	repo := newRepo(t)
	sheets := memory.New(nil, nil)
	w := NewSyncWorker(repo, &slowAppender{inner: sheets, delay: 50 * time.Millisecond}, sheets, 10)
	ctx := context.Background()

	id, err := repo.CreateRecord(ctx, row("Store1"))
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- w.HandleSyncMessage(ctx, amqp.NewRecordSyncMessage(id, 1))
	}()
	go func() {
		defer wg.Done()
		_, err := w.ProcessPending(ctx)
		errs <- err
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("mirror: %v", err)
		}
	}

	if got := len(sheets.Rows()); got != 1 {
		t.Fatalf("rows mirrored for one saved record = %d, want 1", got)
	}
	rec, _ := repo.GetRecord(ctx, id)
	if rec.SyncStatus != storage.SyncStatusSynced || rec.SheetsRef != "mem:1" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestPeriodicConfigRefreshPicksUpNewValues(t *testing.T) {
	repo := newRepo(t)
	sheets := memory.New([]string{"Store1"}, []string{"Bancolombia"})
	w := NewSyncWorker(repo, sheets, sheets, 10)
	ctx := context.Background()

	if err := w.SyncConfigIfNeeded(ctx); err != nil {
		t.Fatalf("SyncConfigIfNeeded: %v", err)
	}
	_ = sheets.ReplaceConfigValues(ctx, ledger.ColumnStores, []string{"Store1", "Store2"})

	p := services.NewSyncProcessor(nil, w, services.SyncProcessorConfig{
		PollInterval:   time.Hour,
		ConfigInterval: 10 * time.Millisecond,
	})
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop(ctx)

	want := []string{"Store1", "Store2"}
	deadline := time.Now().Add(2 * time.Second)
	for {
		stores, _ := repo.ListConfigValues(ctx, ledger.ColumnStores)
		if reflect.DeepEqual(stores, want) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("local stores after periodic refresh = %v, want %v", stores, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
