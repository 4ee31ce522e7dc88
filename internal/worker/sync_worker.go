package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"cuadre/internal/amqp"
	"cuadre/internal/ledger"
	"cuadre/internal/lock"
	"cuadre/internal/storage"
)

// RecordStore is the subset of the SQLite repository the worker needs.
type RecordStore interface {
	GetRecord(ctx context.Context, id int64) (*storage.Reconciliation, error)
	GetPendingSync(ctx context.Context, limit int) ([]storage.PendingSync, error)
	MarkSynced(ctx context.Context, id int64, ref string) error
	MarkSyncError(ctx context.Context, id int64, cause error) error
	ConfigCount(ctx context.Context, column int) (int, error)
	ReplaceConfigValues(ctx context.Context, column int, values []string) error
}

// SyncWorker mirrors reconciliations from SQLite to Google Sheets and keeps
// the local copy of the reference lists fresh. The AMQP consumer and the
// pending sweep share one worker; a per-row lock keeps them from mirroring
// the same row twice.
type SyncWorker struct {
	storage   RecordStore
	sheets    ledger.RowAppender
	config    ledger.ConfigReader
	batchSize int
	rows      *lock.Local
}

func NewSyncWorker(storage RecordStore, sheets ledger.RowAppender, config ledger.ConfigReader, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		storage:   storage,
		sheets:    sheets,
		config:    config,
		batchSize: batchSize,
		rows:      lock.NewLocal(),
	}
}

// HandleSyncMessage processes a single sync message from AMQP. Rows already
// mirrored at this version are acknowledged without a second append. A failed
// append that was recorded on the row is not requeued: the pending sweep
// retries rows in error.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.RecordSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"id", msg.ID,
		"version", msg.Version)

	_, err := w.mirror(ctx, msg.ID, msg.Version)
	return err
}

// ProcessPending mirrors up to one batch of unsynced rows. It is the backup
// path for lost AMQP messages and returns how many rows were mirrored.
func (w *SyncWorker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.storage.GetPendingSync(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending records: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending records", "count", len(pending))

	synced := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		mirrored, err := w.mirror(ctx, p.ID, p.Version)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to sync record", "id", p.ID, "error", err)
			continue
		}
		if mirrored {
			synced++
		}
	}
	return synced, nil
}

// mirror appends row id under its lock, re-reading the row so that a mirror
// finished by the other path while waiting is seen. It reports whether this
// call appended.
func (w *SyncWorker) mirror(ctx context.Context, id, version int64) (bool, error) {
	unlock, err := w.rows.Lock(ctx, strconv.FormatInt(id, 10))
	if err != nil {
		return false, fmt.Errorf("lock record %d: %w", id, err)
	}
	defer unlock()

	rec, err := w.storage.GetRecord(ctx, id)
	if err != nil {
		return false, fmt.Errorf("get record from storage: %w", err)
	}
	if rec.SyncStatus == storage.SyncStatusSynced && rec.Version >= version {
		slog.InfoContext(ctx, "Record already synced, skipping", "id", id, "sheets_ref", rec.SheetsRef)
		return false, nil
	}
	if err := w.syncRecord(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// StartupSyncCheck drains the backlog left while the worker was down.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	total := 0
	for {
		n, err := w.ProcessPending(ctx)
		if err != nil {
			return fmt.Errorf("startup sync: %w", err)
		}
		total += n
		if n < w.batchSize {
			break
		}
	}
	slog.InfoContext(ctx, "Startup sync completed", "synced", total)
	return nil
}

// SyncConfigIfNeeded loads the reference lists from Sheets when the local
// copy is empty.
func (w *SyncWorker) SyncConfigIfNeeded(ctx context.Context) error {
	stores, err := w.storage.ConfigCount(ctx, ledger.ColumnStores)
	if err != nil {
		return fmt.Errorf("check config count: %w", err)
	}
	banks, err := w.storage.ConfigCount(ctx, ledger.ColumnBanks)
	if err != nil {
		return fmt.Errorf("check config count: %w", err)
	}
	if stores > 0 && banks > 0 {
		slog.DebugContext(ctx, "Configuration lists present", "stores", stores, "banks", banks)
		return nil
	}
	return w.RefreshConfig(ctx)
}

// RefreshConfig copies both reference lists from Sheets into SQLite. An empty
// list in Sheets leaves the local one untouched.
func (w *SyncWorker) RefreshConfig(ctx context.Context) error {
	if w.config == nil {
		return fmt.Errorf("no configuration source")
	}
	for _, column := range []int{ledger.ColumnStores, ledger.ColumnBanks} {
		values, err := w.config.ListConfigValues(ctx, column)
		if err != nil {
			return fmt.Errorf("load configuration column %d from Google Sheets: %w", column, err)
		}
		if len(values) == 0 {
			slog.WarnContext(ctx, "Google Sheets returned an empty configuration list, keeping the local copy", "column", column)
			continue
		}
		if err := w.storage.ReplaceConfigValues(ctx, column, values); err != nil {
			return fmt.Errorf("store configuration column %d: %w", column, err)
		}
	}
	slog.InfoContext(ctx, "Configuration lists refreshed from Google Sheets")
	return nil
}

func (w *SyncWorker) syncRecord(ctx context.Context, rec *storage.Reconciliation) error {
	ref, err := w.sheets.AppendRow(ctx, rec.LedgerRow())
	if err != nil {
		if markErr := w.storage.MarkSyncError(ctx, rec.ID, err); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", rec.ID, "error", markErr)
			return fmt.Errorf("append to sheets: %w", err)
		}
		return fmt.Errorf("append to sheets: %w: %w", err, amqp.ErrNoRequeue)
	}

	// The append already happened; a failed mark only risks a later duplicate.
	if err := w.storage.MarkSynced(ctx, rec.ID, ref); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", rec.ID, "error", err)
	}

	slog.InfoContext(ctx, "Successfully synced record",
		"id", rec.ID,
		"record_id", rec.RecordID,
		"sheets_ref", ref)
	return nil
}
