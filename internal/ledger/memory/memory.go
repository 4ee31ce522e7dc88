package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cuadre/internal/core"
	"cuadre/internal/ledger"
)

// Store is an in-process ledger used for local development and tests.
type Store struct {
	mu     sync.Mutex
	stores []string
	banks  []string
	rows   []core.LedgerRow
}

var (
	_ ledger.Gateway      = (*Store)(nil)
	_ ledger.RecordFinder = (*Store)(nil)
	_ ledger.ConfigWriter = (*Store)(nil)
)

func New(stores, banks []string) *Store {
	return &Store{stores: ledger.CleanValues(stores), banks: ledger.CleanValues(banks)}
}

// NewFromFiles seeds the lists from seed_stores.txt and seed_banks.txt in base,
// falling back to built-in defaults when a file is missing or empty.
func NewFromFiles(base string) *Store {
	stores := readLines(filepath.Join(base, "seed_stores.txt"))
	banks := readLines(filepath.Join(base, "seed_banks.txt"))
	if len(stores) == 0 {
		stores = []string{"Tienda Centro", "Tienda Norte", "Tienda Sur"}
	}
	if len(banks) == 0 {
		banks = []string{"Bancolombia", "Davivienda", "Banco de Bogotá"}
	}
	return New(stores, banks)
}

// ListConfigValues returns a copy of the seeded list for column.
func (s *Store) ListConfigValues(_ context.Context, column int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch column {
	case ledger.ColumnStores:
		return append([]string(nil), s.stores...), nil
	case ledger.ColumnBanks:
		return append([]string(nil), s.banks...), nil
	default:
		return nil, fmt.Errorf("unknown configuration column %d", column)
	}
}

func (s *Store) ReplaceConfigValues(_ context.Context, column int, values []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch column {
	case ledger.ColumnStores:
		s.stores = ledger.CleanValues(values)
	case ledger.ColumnBanks:
		s.banks = ledger.CleanValues(values)
	default:
		return fmt.Errorf("unknown configuration column %d", column)
	}
	return nil
}

// AppendRow stores the row and returns a synthetic row reference.
func (s *Store) AppendRow(_ context.Context, row core.LedgerRow) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

func (s *Store) FindRecords(_ context.Context, id string) ([]core.LedgerRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.LedgerRow
	for _, r := range s.rows {
		if r.ID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

// Rows returns every appended row.
func (s *Store) Rows() []core.LedgerRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.LedgerRow(nil), s.rows...)
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out = append(out, strings.TrimSpace(sc.Text()))
	}
	return ledger.CleanValues(out)
}
