package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cuadre/internal/core"
	"cuadre/internal/ledger"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var (
	_ ledger.Gateway      = (*SQLiteRepository)(nil)
	_ ledger.RecordFinder = (*SQLiteRepository)(nil)
	_ ledger.ConfigWriter = (*SQLiteRepository)(nil)
)

// PendingSync is the minimal data needed to queue a mirror message.
type PendingSync struct {
	ID        int64
	Version   int64
	CreatedAt time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping is used by the readiness probe.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateRecord inserts the row with sync status pending and returns its local id.
func (r *SQLiteRepository) CreateRecord(ctx context.Context, row core.LedgerRow) (int64, error) {
	rec, err := r.queries.CreateReconciliation(ctx, CreateReconciliationParams{
		RecordID:      row.ID,
		Store:         row.Store,
		RecordDate:    row.Date,
		InvoiceStart:  row.InvoiceStart,
		InvoiceEnd:    row.InvoiceEnd,
		DeclaredTotal: row.DeclaredTotal,
		CardPayments:  row.CardPayments,
		BankDeposits:  row.BankDeposits,
		Expenses:      row.Expenses,
		CashMovements: row.CashMovements,
		SavedAt:       row.SavedAt,
	})
	if err != nil {
		return 0, fmt.Errorf("create reconciliation: %w", err)
	}

	slog.InfoContext(ctx, "Reconciliation saved to SQLite",
		"id", rec.ID,
		"record_id", rec.RecordID,
		"declared_total", rec.DeclaredTotal)

	return rec.ID, nil
}

// AppendRow implements ledger.RowAppender without publishing a sync message.
func (r *SQLiteRepository) AppendRow(ctx context.Context, row core.LedgerRow) (string, error) {
	id, err := r.CreateRecord(ctx, row)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

// FindRecords implements ledger.RecordFinder
func (r *SQLiteRepository) FindRecords(ctx context.Context, id string) ([]core.LedgerRow, error) {
	recs, err := r.queries.ListByRecordID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list reconciliations %s: %w", id, err)
	}
	out := make([]core.LedgerRow, len(recs))
	for i, rec := range recs {
		out[i] = rec.LedgerRow()
	}
	return out, nil
}

// GetRecord returns a stored reconciliation by local id.
func (r *SQLiteRepository) GetRecord(ctx context.Context, id int64) (*Reconciliation, error) {
	rec, err := r.queries.GetReconciliation(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reconciliation %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get reconciliation by id: %w", err)
	}
	return &rec, nil
}

// ListConfigValues implements ledger.ConfigReader from the local copy of the lists.
func (r *SQLiteRepository) ListConfigValues(ctx context.Context, column int) ([]string, error) {
	if column != ledger.ColumnStores && column != ledger.ColumnBanks {
		return nil, fmt.Errorf("unknown configuration column %d", column)
	}
	values, err := r.queries.ListConfigValues(ctx, int64(column))
	if err != nil {
		return nil, fmt.Errorf("list config column %d: %w", column, err)
	}
	return ledger.CleanValues(values), nil
}

// ReplaceConfigValues swaps one list atomically.
func (r *SQLiteRepository) ReplaceConfigValues(ctx context.Context, column int, values []string) error {
	if column != ledger.ColumnStores && column != ledger.ColumnBanks {
		return fmt.Errorf("unknown configuration column %d", column)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := q.DeleteConfigValues(ctx, int64(column)); err != nil {
		return fmt.Errorf("clear config column %d: %w", column, err)
	}
	for i, v := range ledger.CleanValues(values) {
		if err := q.InsertConfigValue(ctx, int64(column), int64(i), v); err != nil {
			return fmt.Errorf("insert config value %q: %w", v, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit config column %d: %w", column, err)
	}
	slog.InfoContext(ctx, "Configuration list replaced", "column", column, "count", len(values))
	return nil
}

// ConfigCount returns how many values a column holds.
func (r *SQLiteRepository) ConfigCount(ctx context.Context, column int) (int, error) {
	values, err := r.queries.ListConfigValues(ctx, int64(column))
	if err != nil {
		return 0, fmt.Errorf("count config column %d: %w", column, err)
	}
	return len(values), nil
}

// GetPendingSync returns rows not yet mirrored, oldest first; rows in error are retried.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]PendingSync, error) {
	recs, err := r.queries.GetPendingSync(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync: %w", err)
	}
	out := make([]PendingSync, len(recs))
	for i, rec := range recs {
		out[i] = PendingSync{ID: rec.ID, Version: rec.Version, CreatedAt: rec.CreatedAt.Time}
	}
	return out, nil
}

// MarkSynced marks a row as mirrored at ref.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64, ref string) error {
	if err := r.queries.MarkSynced(ctx, ref, id); err != nil {
		return fmt.Errorf("mark reconciliation synced: %w", err)
	}
	slog.InfoContext(ctx, "Reconciliation marked as synced", "id", id, "ref", ref)
	return nil
}

// MarkSyncError records the last mirror failure; the row stays eligible for retry.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := r.queries.MarkSyncError(ctx, msg, id); err != nil {
		return fmt.Errorf("mark reconciliation sync error: %w", err)
	}
	slog.WarnContext(ctx, "Reconciliation marked with sync error", "id", id, "error", msg)
	return nil
}

// SyncStats counts rows per sync status.
func (r *SQLiteRepository) SyncStats(ctx context.Context) (map[string]int64, error) {
	stats, err := r.queries.CountBySyncStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count sync status: %w", err)
	}
	return stats, nil
}

// LedgerRow converts the stored row back into ledger column form.
func (rec Reconciliation) LedgerRow() core.LedgerRow {
	return core.LedgerRow{
		ID:            rec.RecordID,
		Store:         rec.Store,
		Date:          rec.RecordDate,
		InvoiceStart:  rec.InvoiceStart,
		InvoiceEnd:    rec.InvoiceEnd,
		DeclaredTotal: rec.DeclaredTotal,
		CardPayments:  rec.CardPayments,
		BankDeposits:  rec.BankDeposits,
		Expenses:      rec.Expenses,
		CashMovements: rec.CashMovements,
		SavedAt:       rec.SavedAt,
	}
}

var ErrNotFound = errors.New("not found")
