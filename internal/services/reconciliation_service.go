package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cuadre/internal/core"
	"cuadre/internal/ledger"

	"golang.org/x/sync/errgroup"
)

var ErrLookupUnsupported = errors.New("record lookup not supported by this backend")

// KeyLocker serializes work on one key across requests (and processes, for
// the redis implementation).
type KeyLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ReconciliationConfig holds the optional collaborators of ReconciliationService.
type ReconciliationConfig struct {
	// Finder enables duplicate detection and record lookup.
	Finder ledger.RecordFinder
	// Locker serializes saves of the same store and date.
	Locker KeyLocker
	// Location is the time zone of the savedAt column (default: UTC).
	Location *time.Location
	// Now is the clock (default: time.Now).
	Now func() time.Time
	// GatewayTimeout bounds each ledger call (default: 15s).
	GatewayTimeout time.Duration
}

// SaveResult describes a persisted reconciliation.
type SaveResult struct {
	ID  string
	Ref string
	// Duplicate is set when rows with the same id already existed.
	Duplicate bool
	Row       core.LedgerRow
}

// ConfigLists are the reference lists shown in the form selectors. A failed
// list is empty and its error is set.
type ConfigLists struct {
	Stores    []string
	Banks     []string
	StoresErr error
	BanksErr  error
}

// ReconciliationService owns the save gate and the reads of reference data.
type ReconciliationService struct {
	appender ledger.RowAppender
	config   ledger.ConfigReader
	cfg      ReconciliationConfig
}

func NewReconciliationService(gw ledger.Gateway, cfg ReconciliationConfig) *ReconciliationService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 15 * time.Second
	}
	if cfg.Finder == nil {
		if f, ok := gw.(ledger.RecordFinder); ok {
			cfg.Finder = f
		}
	}
	return &ReconciliationService{appender: gw, config: gw, cfg: cfg}
}

// SaveKey is the lock key for a record id.
func SaveKey(id string) string {
	return "cuadre:save:" + id
}

// Save persists f when its breakdown matches the declared total, then clears
// it. On any error f is left untouched.
func (s *ReconciliationService) Save(ctx context.Context, f *core.Form) (SaveResult, error) {
	r := core.Reconcile(f)
	if err := r.Mismatch(); err != nil {
		slog.InfoContext(ctx, "Save rejected: reconciliation mismatch",
			"record_id", f.RecordID(),
			"declared", r.DeclaredTotal.String(),
			"breakdown", r.BreakdownTotal.String(),
			"difference", r.Difference.String())
		return SaveResult{}, err
	}
	if err := f.ValidateHeader(); err != nil {
		return SaveResult{}, err
	}

	id := f.RecordID()
	if s.cfg.Locker != nil {
		unlock, err := s.cfg.Locker.Lock(ctx, SaveKey(id))
		if err != nil {
			return SaveResult{}, &core.GatewayWriteError{Err: fmt.Errorf("lock %s: %w", id, err)}
		}
		defer unlock()
	}

	duplicate := s.checkDuplicate(ctx, id)

	row, err := core.BuildLedgerRow(f, s.cfg.Now().In(s.cfg.Location))
	if err != nil {
		return SaveResult{}, fmt.Errorf("build ledger row: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	ref, err := s.appender.AppendRow(callCtx, row)
	if err != nil {
		slog.ErrorContext(ctx, "Ledger append failed", "record_id", id, "error", err)
		return SaveResult{}, &core.GatewayWriteError{Err: err}
	}

	slog.InfoContext(ctx, "Reconciliation saved",
		"record_id", id,
		"ref", ref,
		"items", f.ItemCount(),
		"duplicate", duplicate)

	f.Clear()
	return SaveResult{ID: id, Ref: ref, Duplicate: duplicate, Row: row}, nil
}

// checkDuplicate is best effort: a lookup failure never blocks a save.
func (s *ReconciliationService) checkDuplicate(ctx context.Context, id string) bool {
	if s.cfg.Finder == nil {
		return false
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	existing, err := s.cfg.Finder.FindRecords(callCtx, id)
	if err != nil {
		slog.WarnContext(ctx, "Duplicate check failed", "record_id", id, "error", err)
		return false
	}
	if len(existing) > 0 {
		slog.WarnContext(ctx, "Appending duplicate reconciliation", "record_id", id, "existing", len(existing))
		return true
	}
	return false
}

// Lookup returns the rows saved for store and date.
func (s *ReconciliationService) Lookup(ctx context.Context, store string, date core.Date) ([]core.LedgerRow, error) {
	if s.cfg.Finder == nil {
		return nil, ErrLookupUnsupported
	}
	store = strings.TrimSpace(store)
	if store == "" || date.IsZero() {
		return nil, fmt.Errorf("%w: store and date are required", core.ErrInvalidHeader)
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	rows, err := s.cfg.Finder.FindRecords(callCtx, core.RecordID(store, date))
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	return rows, nil
}

// LoadConfig fetches both reference lists concurrently. The returned error is
// the first *core.ConfigurationLoadError; the other list is still filled.
func (s *ReconciliationService) LoadConfig(ctx context.Context) (ConfigLists, error) {
	var (
		out ConfigLists
		g   errgroup.Group
	)
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	g.Go(func() error {
		v, err := s.config.ListConfigValues(callCtx, ledger.ColumnStores)
		if err != nil {
			out.StoresErr = &core.ConfigurationLoadError{Column: ledger.ColumnStores, Err: err}
			return out.StoresErr
		}
		out.Stores = v
		return nil
	})
	g.Go(func() error {
		v, err := s.config.ListConfigValues(callCtx, ledger.ColumnBanks)
		if err != nil {
			out.BanksErr = &core.ConfigurationLoadError{Column: ledger.ColumnBanks, Err: err}
			return out.BanksErr
		}
		out.Banks = v
		return nil
	})
	err := g.Wait()
	if err != nil {
		slog.WarnContext(ctx, "Configuration lists unavailable", "error", err)
	}
	return out, err
}
