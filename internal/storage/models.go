package storage

import "database/sql"

const (
	SyncStatusPending = "pending"
	SyncStatusSynced  = "synced"
	SyncStatusError   = "error"
)

type Reconciliation struct {
	ID            int64
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
	Version       int64
	SyncStatus    string
	SyncError     string
	SheetsRef     string
	CreatedAt     sql.NullTime
	SyncedAt      sql.NullTime
}
