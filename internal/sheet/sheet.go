// Package sheet implements the spreadsheet client used as the persistent
// store for events and contacts. Reads prefer the unauthenticated CSV
// export endpoint; every mutating call and the read fallback go through
// the authenticated Sheets API with a service-account credential.
package sheet

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/mbarkhau/stammtischbot/core/logger"
	"github.com/mbarkhau/stammtischbot/internal/model"
)

// ErrNotPublic indicates the export endpoint answered with a permission
// page instead of CSV data.
var ErrNotPublic = errors.New("sheet is not publicly accessible or does not allow export")

// ErrColumnMissing indicates a required header column was not found.
var ErrColumnMissing = errors.New("required column not found")

const defaultTimeout = 10 * time.Second

// Client reads and mutates one spreadsheet. The zero value is not usable;
// construct with New.
type Client struct {
	sheetID         string
	credentialsFile string
	credentialsJSON string
	httpClient      *http.Client

	mu  sync.Mutex
	svc *sheets.Service
}

// New returns a client for the given spreadsheet. credentialsFile may be
// empty, in which case only the public export read path is available.
func New(sheetID, credentialsFile string) *Client {
	return &Client{
		sheetID:         sheetID,
		credentialsFile: credentialsFile,
		httpClient:      &http.Client{Timeout: defaultTimeout},
	}
}

// SheetID returns the spreadsheet id this client operates on.
func (c *Client) SheetID() string { return c.sheetID }

// UseCredentialsJSON configures an inline service-account key. It takes
// precedence over the credentials file.
func (c *Client) UseCredentialsJSON(raw string) { c.credentialsJSON = raw }

func (c *Client) hasCredentials() bool {
	return c.credentialsFile != "" || c.credentialsJSON != ""
}

func (c *Client) service(ctx context.Context) (*sheets.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.svc != nil {
		return c.svc, nil
	}
	if !c.hasCredentials() {
		return nil, fmt.Errorf("sheet: no credentials configured")
	}
	start := time.Now()
	var svc *sheets.Service
	var err error
	if c.credentialsJSON != "" {
		var creds *google.Credentials
		creds, err = google.CredentialsFromJSON(ctx, []byte(c.credentialsJSON), sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("sheet: parse credentials json: %w", err)
		}
		svc, err = sheets.NewService(ctx, option.WithCredentials(creds))
	} else {
		svc, err = sheets.NewService(ctx,
			option.WithCredentialsFile(c.credentialsFile),
			option.WithScopes(sheets.SpreadsheetsScope),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("sheet: service init: %w", err)
	}
	logger.SHEET.LogAttrs(ctx, slog.LevelInfo, "sheet.connect",
		slog.String("sheet_id", c.sheetID),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	c.svc = svc
	return svc, nil
}

// ExportURL builds the public CSV export URL for a tab.
func ExportURL(sheetID, tab string) string {
	return fmt.Sprintf(
		"https://docs.google.com/spreadsheets/d/%s/gviz/tq?tqx=out:csv&sheet=%s",
		sheetID, url.QueryEscape(tab),
	)
}

// Read returns all data rows of a tab as normalized records, in sheet
// order. The first row is treated as the header; blank cells are omitted.
// The public export endpoint is tried first; on failure the authenticated
// API is used when a credential file is configured.
func (c *Client) Read(ctx context.Context, tab string) ([]model.Record, error) {
	recs, exportErr := c.readExport(ctx, tab)
	if exportErr == nil {
		return recs, nil
	}
	if !c.hasCredentials() {
		return nil, exportErr
	}
	logger.SHEET.LogAttrs(ctx, slog.LevelWarn, "sheet.export_fallback",
		slog.String("tab", tab),
		slog.String("err", exportErr.Error()),
	)
	recs, apiErr := c.readAPI(ctx, tab)
	if apiErr != nil {
		return nil, fmt.Errorf("sheet: export failed (%v); api fallback: %w", exportErr, apiErr)
	}
	return recs, nil
}

func (c *Client) readExport(ctx context.Context, tab string) ([]model.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ExportURL(c.sheetID, tab), nil)
	if err != nil {
		return nil, fmt.Errorf("sheet: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheet: download: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("sheet: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sheet: download failed (status %d), response snippet: %s",
			resp.StatusCode, snippet(body))
	}
	lower := strings.ToLower(string(body))
	if strings.Contains(lower, "<html") && strings.Contains(lower, "sorry") {
		return nil, ErrNotPublic
	}

	recs, err := ParseCSV(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	logger.SHEET.LogAttrs(ctx, slog.LevelDebug, "sheet.read",
		slog.String("tab", tab),
		slog.String("source", "export"),
		slog.Int("rows", len(recs)),
	)
	return recs, nil
}

func snippet(body []byte) string {
	s := string(body)
	if len(s) > 500 {
		s = s[:500]
	}
	return s
}

// ParseCSV reads header+rows CSV into normalized records.
func ParseCSV(r io.Reader) ([]model.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sheet: parse header: %w", err)
	}
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = model.NormalizeKey(h)
	}

	var recs []model.Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sheet: parse row: %w", err)
		}
		rec := model.Record{}
		for i, cell := range row {
			if i >= len(keys) {
				break
			}
			cell = strings.TrimSpace(cell)
			if cell != "" {
				rec[keys[i]] = cell
			}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (c *Client) readAPI(ctx context.Context, tab string) ([]model.Record, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Spreadsheets.Values.Get(c.sheetID, tab).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheet: values get %q: %w", tab, err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	keys := make([]string, len(resp.Values[0]))
	for i, h := range resp.Values[0] {
		keys[i] = model.NormalizeKey(asString(h))
	}
	var recs []model.Record
	for _, row := range resp.Values[1:] {
		rec := model.Record{}
		for i, cell := range row {
			if i >= len(keys) {
				break
			}
			v := strings.TrimSpace(asString(cell))
			if v != "" {
				rec[keys[i]] = v
			}
		}
		recs = append(recs, rec)
	}
	logger.SHEET.LogAttrs(ctx, slog.LevelDebug, "sheet.read",
		slog.String("tab", tab),
		slog.String("source", "api"),
		slog.Int("rows", len(recs)),
	)
	return recs, nil
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Headers returns the normalized header row of a tab.
func (c *Client) Headers(ctx context.Context, tab string) ([]string, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Spreadsheets.Values.Get(c.sheetID, tab+"!1:1").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheet: headers %q: %w", tab, err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	headers := make([]string, 0, len(resp.Values[0]))
	for _, h := range resp.Values[0] {
		headers = append(headers, model.NormalizeKey(asString(h)))
	}
	return headers, nil
}

// ColumnIndex returns the 0-based column of a normalized field name, or
// ErrColumnMissing when the header does not contain it.
func (c *Client) ColumnIndex(ctx context.Context, tab, field string) (int, error) {
	headers, err := c.Headers(ctx, tab)
	if err != nil {
		return -1, err
	}
	for i, h := range headers {
		if h == field {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s in tab %s", ErrColumnMissing, field, tab)
}

// ColumnLetter converts a 0-based column index to its A1 letter form.
func ColumnLetter(idx int) string {
	letters := ""
	for idx >= 0 {
		letters = string(rune('A'+idx%26)) + letters
		idx = idx/26 - 1
	}
	return letters
}

// Append adds the records as new rows at the bottom of the tab. Field
// names not yet present in the header row extend it, keeping the data
// model's canonical column order, before the data rows are written
// positionally. Formatting of the preceding row is copied to the new
// rows on a best-effort basis.
func (c *Client) Append(ctx context.Context, tab string, recs []model.Record) error {
	if len(recs) == 0 {
		return nil
	}
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}

	headers, err := c.Headers(ctx, tab)
	if err != nil {
		return err
	}
	extended := extendHeaders(headers, recs)
	if len(extended) > len(headers) {
		row := make([]interface{}, len(extended))
		for i, h := range extended {
			row[i] = h
		}
		_, err = svc.Spreadsheets.Values.Update(c.sheetID, tab+"!1:1", &sheets.ValueRange{
			Values: [][]interface{}{row},
		}).ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("sheet: extend header %q: %w", tab, err)
		}
		logger.SHEET.LogAttrs(ctx, slog.LevelInfo, "sheet.header_extended",
			slog.String("tab", tab),
			slog.Int("cols", len(extended)),
		)
	}

	rows := make([][]interface{}, 0, len(recs))
	for _, rec := range recs {
		row := make([]interface{}, len(extended))
		for i, h := range extended {
			row[i] = rec[h]
		}
		rows = append(rows, row)
	}
	appendResp, err := svc.Spreadsheets.Values.Append(c.sheetID, tab, &sheets.ValueRange{
		Values: rows,
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheet: append %q: %w", tab, err)
	}
	logger.SHEET.LogAttrs(ctx, slog.LevelInfo, "sheet.append",
		slog.String("tab", tab),
		slog.Int("rows", len(rows)),
	)

	c.copyRowFormat(ctx, tab, appendResp, len(rows), len(extended))
	return nil
}

// copyRowFormat copies cell formatting from the row preceding the newly
// appended block. Best-effort only.
func (c *Client) copyRowFormat(ctx context.Context, tab string, resp *sheets.AppendValuesResponse, rowCount, colCount int) {
	if resp == nil || resp.Updates == nil || resp.Updates.UpdatedRange == "" {
		return
	}
	firstRow, ok := parseFirstRow(resp.Updates.UpdatedRange)
	if !ok || firstRow <= 1 {
		return
	}
	gid, err := c.sheetGID(ctx, tab)
	if err != nil {
		logger.SHEET.LogAttrs(ctx, slog.LevelWarn, "sheet.copy_format_skipped",
			slog.String("tab", tab),
			slog.String("err", err.Error()),
		)
		return
	}
	svc, err := c.service(ctx)
	if err != nil {
		return
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			CopyPaste: &sheets.CopyPasteRequest{
				Source: &sheets.GridRange{
					SheetId:          gid,
					StartRowIndex:    firstRow - 2,
					EndRowIndex:      firstRow - 1,
					StartColumnIndex: 0,
					EndColumnIndex:   int64(colCount),
				},
				Destination: &sheets.GridRange{
					SheetId:          gid,
					StartRowIndex:    firstRow - 1,
					EndRowIndex:      firstRow - 1 + int64(rowCount),
					StartColumnIndex: 0,
					EndColumnIndex:   int64(colCount),
				},
				PasteType: "PASTE_FORMAT",
			},
		}},
	}
	if _, err := svc.Spreadsheets.BatchUpdate(c.sheetID, req).Context(ctx).Do(); err != nil {
		logger.SHEET.LogAttrs(ctx, slog.LevelWarn, "sheet.copy_format_failed",
			slog.String("tab", tab),
			slog.String("err", err.Error()),
		)
	}
}

// parseFirstRow extracts the starting 1-indexed row from an A1 range like
// "termine!A12:K12".
func parseFirstRow(a1 string) (int64, bool) {
	if i := strings.IndexByte(a1, '!'); i >= 0 {
		a1 = a1[i+1:]
	}
	if i := strings.IndexByte(a1, ':'); i >= 0 {
		a1 = a1[:i]
	}
	var row int64
	seen := false
	for _, r := range a1 {
		if r >= '0' && r <= '9' {
			row = row*10 + int64(r-'0')
			seen = true
		}
	}
	return row, seen
}

// Update overwrites a cell range positionally with the given rows.
func (c *Client) Update(ctx context.Context, tab, rangeA1 string, rows [][]string) error {
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		values[i] = cells
	}
	_, err = svc.Spreadsheets.Values.Update(c.sheetID, tab+"!"+rangeA1, &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheet: update %q %s: %w", tab, rangeA1, err)
	}
	logger.SHEET.LogAttrs(ctx, slog.LevelInfo, "sheet.update",
		slog.String("tab", tab),
		slog.String("range", rangeA1),
		slog.Int("rows", len(rows)),
	)
	return nil
}

// UpdateCell writes a single cell addressed by 0-based column and
// 1-indexed row.
func (c *Client) UpdateCell(ctx context.Context, tab string, col int, row int64, value string) error {
	rangeA1 := fmt.Sprintf("%s%d", ColumnLetter(col), row)
	return c.Update(ctx, tab, rangeA1, [][]string{{value}})
}

// ReadRow returns the normalized record at the given 1-indexed row
// (header = row 1), or nil when the row is empty.
func (c *Client) ReadRow(ctx context.Context, tab string, row int64) (model.Record, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}
	headers, err := c.Headers(ctx, tab)
	if err != nil {
		return nil, err
	}
	rangeA1 := fmt.Sprintf("%s!%d:%d", tab, row, row)
	resp, err := svc.Spreadsheets.Values.Get(c.sheetID, rangeA1).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheet: read row %d of %q: %w", row, tab, err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	rec := model.Record{}
	for i, cell := range resp.Values[0] {
		if i >= len(headers) {
			break
		}
		v := strings.TrimSpace(asString(cell))
		if v != "" {
			rec[headers[i]] = v
		}
	}
	return rec, nil
}

// DeleteRow removes exactly one row, 1-indexed with the header counted as
// row 1.
func (c *Client) DeleteRow(ctx context.Context, tab string, row int64) error {
	if row < 2 {
		return fmt.Errorf("sheet: refusing to delete row %d (header or invalid)", row)
	}
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}
	gid, err := c.sheetGID(ctx, tab)
	if err != nil {
		return err
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    gid,
					Dimension:  "ROWS",
					StartIndex: row - 1,
					EndIndex:   row,
				},
			},
		}},
	}
	if _, err := svc.Spreadsheets.BatchUpdate(c.sheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("sheet: delete row %d of %q: %w", row, tab, err)
	}
	logger.SHEET.LogAttrs(ctx, slog.LevelInfo, "sheet.delete_row",
		slog.String("tab", tab),
		slog.Int64("row", row),
	)
	return nil
}

func (c *Client) sheetGID(ctx context.Context, tab string) (int64, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return 0, err
	}
	meta, err := svc.Spreadsheets.Get(c.sheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("sheet: metadata: %w", err)
	}
	for _, s := range meta.Sheets {
		if s.Properties != nil && s.Properties.Title == tab {
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet: tab %q not found", tab)
}

// extendHeaders appends field names the header row does not yet carry.
// New names keep the canonical column order of the records, so a tab
// grows its columns the way the data model lays them out.
func extendHeaders(headers []string, recs []model.Record) []string {
	known := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		known[h] = struct{}{}
	}
	extended := headers
	for _, rec := range recs {
		for _, k := range rec.OrderedKeys() {
			if _, ok := known[k]; !ok {
				extended = append(extended, k)
				known[k] = struct{}{}
			}
		}
	}
	return extended
}
