// Package backend builds the ledger gateway selected by DATA_BACKEND.
package backend

import (
	"context"

	"cuadre/internal/ledger"
)

// Backend is what the web app needs from a ledger. Adapters may also
// implement ledger.RecordFinder and ledger.ConfigWriter.
type Backend interface {
	ledger.Gateway
}

type CleanupFunc func() error

// BackendResult contains the backend and an optional cleanup function.
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// Ping reports backend readiness. Backends without a health check are
// always ready.
func (r *BackendResult) Ping(ctx context.Context) error {
	if p, ok := r.Backend.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close runs the cleanup function, if any.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleLedgerSheet        string
	GoogleConfigSheet        string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Workbook specific
	XLSXPath string

	// Memory backend seed files
	DataDirectory string
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
	XLSXBackend   BackendType = "xlsx"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, SheetsBackend, MemoryBackend, XLSXBackend:
		return true
	default:
		return false
	}
}
