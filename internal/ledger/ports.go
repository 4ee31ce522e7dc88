package ledger

import (
	"context"
	"strings"

	"cuadre/internal/core"
)

// Configuration columns.
const (
	ColumnStores = 1
	ColumnBanks  = 2
)

// Ports for outbound adapters.
type (
	// ConfigReader returns one reference list of the configuration sheet.
	// The header row is skipped, blanks are dropped and duplicates removed
	// preserving first-seen order.
	ConfigReader interface {
		ListConfigValues(ctx context.Context, column int) ([]string, error)
	}

	// RowAppender appends one reconciliation row and returns a backend
	// specific reference to it.
	RowAppender interface {
		AppendRow(ctx context.Context, row core.LedgerRow) (ref string, err error)
	}

	// RecordFinder returns every row stored under id, oldest first.
	RecordFinder interface {
		FindRecords(ctx context.Context, id string) ([]core.LedgerRow, error)
	}

	// ConfigWriter replaces one reference list, used by the admin CLI and
	// the worker when it refreshes the local copy.
	ConfigWriter interface {
		ReplaceConfigValues(ctx context.Context, column int, values []string) error
	}

	Gateway interface {
		ConfigReader
		RowAppender
	}
)

// CleanValues trims, drops blanks and comment lines, and de-duplicates in order.
func CleanValues(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || strings.HasPrefix(v, "#") {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
