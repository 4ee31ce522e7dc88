package adapters

import (
	"context"

	"cuadre/internal/core"
	"cuadre/internal/ledger"
	"cuadre/internal/services"
	"cuadre/internal/storage"
)

// SQLiteAdapter adapts SQLiteRepository and LedgerService to the ledger ports.
// Reads come from the local database; writes go through the service so every
// saved row also queues a mirror message.
type SQLiteAdapter struct {
	storage *storage.SQLiteRepository
	service *services.LedgerService
}

var (
	_ ledger.Gateway      = (*SQLiteAdapter)(nil)
	_ ledger.RecordFinder = (*SQLiteAdapter)(nil)
	_ ledger.ConfigWriter = (*SQLiteAdapter)(nil)
)

func NewSQLiteAdapter(storage *storage.SQLiteRepository, service *services.LedgerService) *SQLiteAdapter {
	return &SQLiteAdapter{
		storage: storage,
		service: service,
	}
}

// AppendRow implements ledger.RowAppender
func (a *SQLiteAdapter) AppendRow(ctx context.Context, row core.LedgerRow) (string, error) {
	return a.service.CreateRecord(ctx, row)
}

// ListConfigValues implements ledger.ConfigReader
func (a *SQLiteAdapter) ListConfigValues(ctx context.Context, column int) ([]string, error) {
	return a.storage.ListConfigValues(ctx, column)
}

// ReplaceConfigValues implements ledger.ConfigWriter
func (a *SQLiteAdapter) ReplaceConfigValues(ctx context.Context, column int, values []string) error {
	return a.storage.ReplaceConfigValues(ctx, column, values)
}

// FindRecords implements ledger.RecordFinder
func (a *SQLiteAdapter) FindRecords(ctx context.Context, id string) ([]core.LedgerRow, error) {
	return a.storage.FindRecords(ctx, id)
}

func (a *SQLiteAdapter) Ping(ctx context.Context) error {
	return a.storage.Ping(ctx)
}
