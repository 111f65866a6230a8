package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"spendsense/internal/cache"
	ports "spendsense/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Columns of the mirror sheet, A through J.
const (
	colCreatedAt = iota
	colGroup
	colDescription
	colCategory
	colAmount
	colPayer
	colParticipants
	colSettled
	colExpenseID
	colGroupID
	columnCount
)

const lastColumn = "J"

// Rows are cleared, never deleted, so a row number stays valid for its
// expense id until the sheet is edited by hand.
const (
	rowCacheSize = 10000
	rowCacheTTL  = 30 * time.Minute
)

// Header is written into row 1 the first time the sheet is found empty.
var Header = []interface{}{
	"Created At", "Group", "Description", "Category", "Amount",
	"Payer", "Participants", "Settled", "Expense ID", "Group ID",
}

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountFile string
	ServiceAccountJSON string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	// Serializes read-modify-write cycles on the sheet.
	mu sync.Mutex
	// Expense id to 1-based row number.
	rows *cache.LRUCache[int]
}

// Ensure interface conformance
var (
	_ ports.LedgerMirror = (*Client)(nil)
	_ ports.RowLister    = (*Client)(nil)
	_ cache.Cleaner      = (*Client)(nil)
)

// New creates a Sheets client authenticated with the configured service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName)
}

// NewWithService wraps an already built Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = "Ledger"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		rows:          cache.NewLRUCache[int](rowCacheSize, rowCacheTTL),
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Inline JSON wins over the file.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	var credentialsJSON []byte
	var err error

	switch {
	case strings.TrimSpace(cfg.ServiceAccountJSON) != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(cfg.ServiceAccountJSON)
	case strings.TrimSpace(cfg.ServiceAccountFile) != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", cfg.ServiceAccountFile)
		credentialsJSON, err = os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", cfg.SpreadsheetID)
	return service, nil
}

func (c *Client) UpsertExpenseRow(ctx context.Context, row ports.ExpenseRow) (string, error) {
	if err := row.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if rowNum, ok := c.rows.Get(row.ExpenseID); ok {
		return c.writeExpense(ctx, rowNum, row)
	}

	values, err := c.readAll(ctx)
	if err != nil {
		return "", err
	}
	c.indexRows(values)

	rowNum, found := c.rows.Get(row.ExpenseID)
	if !found {
		if len(values) == 0 {
			if err := c.writeRow(ctx, 1, Header); err != nil {
				return "", fmt.Errorf("write header: %w", err)
			}
			values = [][]interface{}{Header}
		}
		rowNum = len(values) + 1
	}
	return c.writeExpense(ctx, rowNum, row)
}

func (c *Client) writeExpense(ctx context.Context, rowNum int, row ports.ExpenseRow) (string, error) {
	if err := c.writeRow(ctx, rowNum, toCells(row)); err != nil {
		c.rows.Delete(row.ExpenseID)
		return "", err
	}
	c.rows.Set(row.ExpenseID, rowNum)

	ref := c.rowRange(rowNum)
	slog.DebugContext(ctx, "Mirrored expense row", "expense_id", row.ExpenseID, "range", ref)
	return ref, nil
}

// indexRows refreshes the row cache from a full read of the sheet.
func (c *Client) indexRows(values [][]interface{}) {
	for i, cells := range values {
		if id := cell(cells, colExpenseID); id != "" && !(i == 0 && id == Header[colExpenseID]) {
			c.rows.Set(id, i+1)
		}
	}
}

// CleanExpired evicts stale row numbers; see cache.Manager.
func (c *Client) CleanExpired() int {
	if c.rows == nil {
		return 0
	}
	return c.rows.CleanExpired()
}

func (c *Client) DeleteExpenseRows(ctx context.Context, expenseID string) (int, error) {
	return c.clearMatching(ctx, colExpenseID, expenseID)
}

func (c *Client) DeleteGroupRows(ctx context.Context, groupID string) (int, error) {
	return c.clearMatching(ctx, colGroupID, groupID)
}

// ListExpenseRows returns the data rows, skipping the header and cleared rows.
func (c *Client) ListExpenseRows(ctx context.Context) ([]ports.ExpenseRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	values, err := c.readAll(ctx)
	if err != nil {
		return nil, err
	}
	c.indexRows(values)

	var out []ports.ExpenseRow
	for i, cells := range values {
		if i == 0 && cell(cells, colExpenseID) == Header[colExpenseID] {
			continue
		}
		if cell(cells, colExpenseID) == "" {
			continue
		}
		out = append(out, fromCells(cells))
	}
	return out, nil
}

// clearMatching blanks every row whose column col equals want. Rows are
// cleared rather than deleted so earlier row references stay valid.
func (c *Client) clearMatching(ctx context.Context, col int, want string) (int, error) {
	if strings.TrimSpace(want) == "" {
		return 0, nil
	}
	if c.svc == nil {
		return 0, errors.New("sheets service not initialized")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	values, err := c.readAll(ctx)
	if err != nil {
		return 0, err
	}

	var ranges, ids []string
	for i, cells := range values {
		if cell(cells, col) == want {
			ranges = append(ranges, c.rowRange(i+1))
			ids = append(ids, cell(cells, colExpenseID))
		}
	}
	if len(ranges) == 0 {
		return 0, nil
	}

	req := &gsheet.BatchClearValuesRequest{Ranges: ranges}
	if _, err := c.svc.Spreadsheets.Values.BatchClear(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return 0, fmt.Errorf("clear rows: %w", err)
	}
	for _, id := range ids {
		c.rows.Delete(id)
	}
	return len(ranges), nil
}

func (c *Client) readAll(ctx context.Context) ([][]interface{}, error) {
	rng := fmt.Sprintf("%s!A:%s", c.sheetName, lastColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	return resp.Values, nil
}

func (c *Client) writeRow(ctx context.Context, rowNum int, cells []interface{}) error {
	vr := &gsheet.ValueRange{Values: [][]interface{}{cells}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.rowRange(rowNum), vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write row %d: %w", rowNum, err)
	}
	return nil
}

func (c *Client) rowRange(rowNum int) string {
	return fmt.Sprintf("%s!A%d:%s%d", c.sheetName, rowNum, lastColumn, rowNum)
}

func toCells(r ports.ExpenseRow) []interface{} {
	cells := make([]interface{}, columnCount)
	cells[colCreatedAt] = r.CreatedAt
	cells[colGroup] = r.Group
	cells[colDescription] = r.Description
	cells[colCategory] = r.Category
	cells[colAmount] = strconv.FormatFloat(r.Amount, 'f', 2, 64)
	cells[colPayer] = r.Payer
	cells[colParticipants] = strings.Join(r.Participants, ", ")
	cells[colSettled] = strings.ToUpper(strconv.FormatBool(r.Settled))
	cells[colExpenseID] = r.ExpenseID
	cells[colGroupID] = r.GroupID
	return cells
}

func fromCells(cells []interface{}) ports.ExpenseRow {
	r := ports.ExpenseRow{
		CreatedAt:   cell(cells, colCreatedAt),
		Group:       cell(cells, colGroup),
		Description: cell(cells, colDescription),
		Category:    cell(cells, colCategory),
		Amount:      parseAmount(cell(cells, colAmount)),
		Payer:       cell(cells, colPayer),
		ExpenseID:   cell(cells, colExpenseID),
		GroupID:     cell(cells, colGroupID),
	}
	for _, p := range strings.Split(cell(cells, colParticipants), ",") {
		if p = strings.TrimSpace(p); p != "" {
			r.Participants = append(r.Participants, p)
		}
	}
	r.Settled, _ = strconv.ParseBool(strings.ToLower(cell(cells, colSettled)))
	return r
}

func cell(cells []interface{}, i int) string {
	if i >= len(cells) || cells[i] == nil {
		return ""
	}
	switch v := cells[i].(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// parseAmount accepts a plain number as well as formatted values such as
// "€ 1.234,50" or "1,234.50".
func parseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	s = strings.NewReplacer("€", "", "EUR", "", " ", "", " ", "").Replace(s)

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastDot > lastComma:
		s = strings.ReplaceAll(s, ",", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
