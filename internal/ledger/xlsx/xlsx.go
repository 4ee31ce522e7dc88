// Package xlsx keeps the ledger in a local Excel workbook, for stores that
// reconcile offline from a shared drive instead of Google Sheets.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"cuadre/internal/core"
	"cuadre/internal/ledger"

	"github.com/xuri/excelize/v2"
)

const (
	LedgerSheet = "Cuadres"
	ConfigSheet = "Configuracion"
)

// Workbook opens the file on every call so that edits made in Excel between
// requests are picked up.
type Workbook struct {
	mu   sync.Mutex
	path string
}

var (
	_ ledger.Gateway      = (*Workbook)(nil)
	_ ledger.RecordFinder = (*Workbook)(nil)
	_ ledger.ConfigWriter = (*Workbook)(nil)
)

// Open returns a Workbook at path, creating it with both tabs and their
// header rows when the file does not exist.
func Open(path string) (*Workbook, error) {
	w := &Workbook{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := w.create(); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat workbook: %w", err)
	}
	return w, nil
}

func (w *Workbook) create() error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", LedgerSheet); err != nil {
		return fmt.Errorf("rename ledger sheet: %w", err)
	}
	header := toAny(core.LedgerHeader())
	if err := f.SetSheetRow(LedgerSheet, "A1", &header); err != nil {
		return fmt.Errorf("write ledger header: %w", err)
	}
	if _, err := f.NewSheet(ConfigSheet); err != nil {
		return fmt.Errorf("create config sheet: %w", err)
	}
	if err := f.SetSheetRow(ConfigSheet, "A1", &[]interface{}{"Tiendas", "Bancos"}); err != nil {
		return fmt.Errorf("write config header: %w", err)
	}
	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func (w *Workbook) ListConfigValues(_ context.Context, column int) ([]string, error) {
	if column != ledger.ColumnStores && column != ledger.ColumnBanks {
		return nil, fmt.Errorf("unknown configuration column %d", column)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	rows, err := f.GetRows(ConfigSheet)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ConfigSheet, err)
	}
	var raw []string
	for i, row := range rows {
		if i == 0 || len(row) < column {
			continue
		}
		raw = append(raw, row[column-1])
	}
	return ledger.CleanValues(raw), nil
}

// ReplaceConfigValues rewrites one column below the header.
func (w *Workbook) ReplaceConfigValues(_ context.Context, column int, values []string) error {
	if column != ledger.ColumnStores && column != ledger.ColumnBanks {
		return fmt.Errorf("unknown configuration column %d", column)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	rows, err := f.GetRows(ConfigSheet)
	if err != nil {
		return fmt.Errorf("read %s: %w", ConfigSheet, err)
	}
	values = ledger.CleanValues(values)
	last := max(len(rows), len(values)+1)
	for r := 2; r <= last; r++ {
		cell, err := excelize.CoordinatesToCellName(column, r)
		if err != nil {
			return err
		}
		v := ""
		if r-2 < len(values) {
			v = values[r-2]
		}
		if err := f.SetCellStr(ConfigSheet, cell, v); err != nil {
			return fmt.Errorf("write %s: %w", cell, err)
		}
	}
	return f.Save()
}

// AppendRow writes the row below the last used row of the ledger tab.
func (w *Workbook) AppendRow(_ context.Context, row core.LedgerRow) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	rows, err := f.GetRows(LedgerSheet)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", LedgerSheet, err)
	}
	next := len(rows) + 1
	cell, err := excelize.CoordinatesToCellName(1, next)
	if err != nil {
		return "", err
	}
	cells := row.Cells()
	if err := f.SetSheetRow(LedgerSheet, cell, &cells); err != nil {
		return "", fmt.Errorf("write row %d: %w", next, err)
	}
	if err := f.Save(); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return fmt.Sprintf("%s!A%d:K%d", LedgerSheet, next, next), nil
}

func (w *Workbook) FindRecords(_ context.Context, id string) ([]core.LedgerRow, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	rows, err := f.GetRows(LedgerSheet)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", LedgerSheet, err)
	}
	var out []core.LedgerRow
	for _, cells := range rows {
		if len(cells) == 0 || cells[0] != id {
			continue
		}
		r, err := core.ParseLedgerRow(cells)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func toAny(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
