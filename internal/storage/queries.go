package storage

import (
	"context"
)

const reconciliationColumns = `id, record_id, store, record_date, invoice_start, invoice_end, declared_total,
    card_payments, bank_deposits, expenses, cash_movements, saved_at, version,
    sync_status, sync_error, sheets_ref, created_at, synced_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanReconciliation(s scanner) (Reconciliation, error) {
	var i Reconciliation
	err := s.Scan(
		&i.ID,
		&i.RecordID,
		&i.Store,
		&i.RecordDate,
		&i.InvoiceStart,
		&i.InvoiceEnd,
		&i.DeclaredTotal,
		&i.CardPayments,
		&i.BankDeposits,
		&i.Expenses,
		&i.CashMovements,
		&i.SavedAt,
		&i.Version,
		&i.SyncStatus,
		&i.SyncError,
		&i.SheetsRef,
		&i.CreatedAt,
		&i.SyncedAt,
	)
	return i, err
}

const createReconciliation = `
INSERT INTO reconciliations (
    record_id, store, record_date, invoice_start, invoice_end, declared_total,
    card_payments, bank_deposits, expenses, cash_movements, saved_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + reconciliationColumns

type CreateReconciliationParams struct {
	RecordID      string
	Store         string
	RecordDate    string
	InvoiceStart  string
	InvoiceEnd    string
	DeclaredTotal string
	CardPayments  string
	BankDeposits  string
	Expenses      string
	CashMovements string
	SavedAt       string
}

func (q *Queries) CreateReconciliation(ctx context.Context, arg CreateReconciliationParams) (Reconciliation, error) {
	row := q.db.QueryRowContext(ctx, createReconciliation,
		arg.RecordID,
		arg.Store,
		arg.RecordDate,
		arg.InvoiceStart,
		arg.InvoiceEnd,
		arg.DeclaredTotal,
		arg.CardPayments,
		arg.BankDeposits,
		arg.Expenses,
		arg.CashMovements,
		arg.SavedAt,
	)
	return scanReconciliation(row)
}

const getReconciliation = `SELECT ` + reconciliationColumns + ` FROM reconciliations WHERE id = ?`

func (q *Queries) GetReconciliation(ctx context.Context, id int64) (Reconciliation, error) {
	return scanReconciliation(q.db.QueryRowContext(ctx, getReconciliation, id))
}

const listByRecordID = `SELECT ` + reconciliationColumns + ` FROM reconciliations WHERE record_id = ? ORDER BY id`

func (q *Queries) ListByRecordID(ctx context.Context, recordID string) ([]Reconciliation, error) {
	return q.list(ctx, listByRecordID, recordID)
}

const getPendingSync = `SELECT ` + reconciliationColumns + ` FROM reconciliations
WHERE sync_status IN ('pending', 'error')
ORDER BY id
LIMIT ?`

func (q *Queries) GetPendingSync(ctx context.Context, limit int64) ([]Reconciliation, error) {
	return q.list(ctx, getPendingSync, limit)
}

func (q *Queries) list(ctx context.Context, query string, args ...interface{}) ([]Reconciliation, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Reconciliation
	for rows.Next() {
		i, err := scanReconciliation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markSynced = `
UPDATE reconciliations
SET sync_status = 'synced', sync_error = '', sheets_ref = ?, synced_at = CURRENT_TIMESTAMP
WHERE id = ?`

func (q *Queries) MarkSynced(ctx context.Context, sheetsRef string, id int64) error {
	_, err := q.db.ExecContext(ctx, markSynced, sheetsRef, id)
	return err
}

const markSyncError = `
UPDATE reconciliations
SET sync_status = 'error', sync_error = ?
WHERE id = ?`

func (q *Queries) MarkSyncError(ctx context.Context, syncError string, id int64) error {
	_, err := q.db.ExecContext(ctx, markSyncError, syncError, id)
	return err
}

const countBySyncStatus = `SELECT sync_status, COUNT(*) FROM reconciliations GROUP BY sync_status`

func (q *Queries) CountBySyncStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := q.db.QueryContext(ctx, countBySyncStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

const listConfigValues = `SELECT value FROM config_values WHERE column_index = ? ORDER BY position`

func (q *Queries) ListConfigValues(ctx context.Context, column int64) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listConfigValues, column)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

const deleteConfigValues = `DELETE FROM config_values WHERE column_index = ?`

func (q *Queries) DeleteConfigValues(ctx context.Context, column int64) error {
	_, err := q.db.ExecContext(ctx, deleteConfigValues, column)
	return err
}

const insertConfigValue = `INSERT INTO config_values (column_index, position, value) VALUES (?, ?, ?)`

func (q *Queries) InsertConfigValue(ctx context.Context, column, position int64, value string) error {
	_, err := q.db.ExecContext(ctx, insertConfigValue, column, position, value)
	return err
}
