package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"cuadre/internal/core"
	"cuadre/internal/ledger"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	DefaultLedgerSheet = "Cuadres"
	DefaultConfigSheet = "Configuracion"

	declaredTotalColumn = 5
)

// Config selects the spreadsheet, its tabs and the service account used.
type Config struct {
	SpreadsheetID   string
	LedgerSheet     string
	ConfigSheet     string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	ledgerSheet   string
	configSheet   string
}

// Ensure interface conformance
var (
	_ ledger.Gateway      = (*Client)(nil)
	_ ledger.RecordFinder = (*Client)(nil)
)

// New creates a Sheets client authenticated with a service account.
// Extra options are appended after the credentials.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := loadCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}
	all := append([]goption.ClientOption{
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, opts...)
	svc, err := gsheet.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", cfg.SpreadsheetID)
	return newClient(svc, cfg), nil
}

// NewWithService wraps an existing service, e.g. one pointed at a test endpoint.
func NewWithService(svc *gsheet.Service, cfg Config) *Client {
	return newClient(svc, cfg)
}

func newClient(svc *gsheet.Service, cfg Config) *Client {
	ledgerSheet := strings.TrimSpace(cfg.LedgerSheet)
	if ledgerSheet == "" {
		ledgerSheet = DefaultLedgerSheet
	}
	configSheet := strings.TrimSpace(cfg.ConfigSheet)
	if configSheet == "" {
		configSheet = DefaultConfigSheet
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(cfg.SpreadsheetID),
		ledgerSheet:   ledgerSheet,
		configSheet:   configSheet,
	}
}

// loadCredentials resolves inline JSON, a key file, or GOOGLE_APPLICATION_CREDENTIALS.
func loadCredentials(ctx context.Context, cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline service account credentials", "json_length", len(inline))
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.DebugContext(ctx, "Read service account credentials", "path", file, "size", len(b))
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// ListConfigValues reads column A (stores) or B (banks) of the configuration tab.
func (c *Client) ListConfigValues(ctx context.Context, column int) ([]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	letter, err := columnLetter(column)
	if err != nil {
		return nil, err
	}
	rng := fmt.Sprintf("%s!%s:%s", c.configSheet, letter, letter)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	var raw []string
	for i, row := range resp.Values {
		if i == 0 || len(row) == 0 {
			continue
		}
		raw = append(raw, fmt.Sprint(row[0]))
	}
	return ledger.CleanValues(raw), nil
}

// AppendRow appends after the last row of the ledger tab and returns the updated range.
func (c *Client) AppendRow(ctx context.Context, row core.LedgerRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:K", c.ledgerSheet)
	vr := &gsheet.ValueRange{Values: [][]any{ledgerCells(row)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", c.ledgerSheet, err)
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

// FindRecords scans the ledger tab for rows whose id column equals id.
func (c *Client) FindRecords(ctx context.Context, id string) ([]core.LedgerRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:K", c.ledgerSheet)
	// Unformatted, so the numeric total does not come back in the sheet's locale.
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	var out []core.LedgerRow
	for _, raw := range resp.Values {
		cells := toStrings(raw)
		if len(cells) == 0 || cells[0] != id {
			continue
		}
		row, err := core.ParseLedgerRow(cells)
		if err != nil {
			slog.WarnContext(ctx, "Skipping malformed ledger row", "id", id, "error", err)
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func columnLetter(column int) (string, error) {
	switch column {
	case ledger.ColumnStores:
		return "A", nil
	case ledger.ColumnBanks:
		return "B", nil
	default:
		return "", fmt.Errorf("unknown configuration column %d", column)
	}
}

// ledgerCells writes the declared total as a number so the column sums in
// Sheets; every other cell stays text under RAW input.
func ledgerCells(row core.LedgerRow) []any {
	cells := row.Cells()
	if d, err := decimal.NewFromString(row.DeclaredTotal); err == nil {
		cells[declaredTotalColumn] = json.Number(d.String())
	}
	return cells
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch n := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(n, 'f', -1, 64)
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}
