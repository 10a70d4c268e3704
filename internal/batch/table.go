package batch

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/tomtat/tomtat/internal/domain"
)

const utf8BOM = "\ufeff"

var (
	// ErrNoHeader indicates an upload without a header row.
	ErrNoHeader = errors.New("table has no header row")

	// ErrUnreadableFile indicates an upload whose extension is supported but
	// whose content could not be decoded.
	ErrUnreadableFile = errors.New("file content could not be read")
)

// Table is an uploaded sheet: a trimmed header row and raw data rows.
// Data rows may be shorter than the header; missing cells read as "".
type Table struct {
	Headers []string
	Rows    [][]string
}

// IsSupported reports whether filename has an extension ParseTable accepts.
func IsSupported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".xlsx", ".xls":
		return true
	}
	return false
}

// ParseTable reads a CSV or spreadsheet upload. The format is chosen by the
// file extension; anything else fails with domain.ErrUnsupportedFormat before
// r is read. Spreadsheets are read from their first sheet.
func ParseTable(filename string, r io.Reader) (*Table, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		records, err = readCSV(r)
	case ".xlsx":
		records, err = readSpreadsheet(filename, r)
	case ".xls":
		records, err = readLegacySpreadsheet(filename, r)
	default:
		return nil, fmt.Errorf("%w: %s (supported: CSV, XLSX, XLS)", domain.ErrUnsupportedFormat, filename)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", filename, ErrNoHeader)
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}
	return &Table{Headers: headers, Rows: records[1:]}, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	cr := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte(utf8BOM))))
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}
	return records, nil
}

func readSpreadsheet(filename string, r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: spreadsheet %s: %w", ErrUnreadableFile, filename, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: %w", filename, ErrNoHeader)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// readLegacySpreadsheet decodes a BIFF8 workbook (Excel 97-2003) from its
// first sheet. Trailing empty cells and rows are dropped.
func readLegacySpreadsheet(filename string, r io.Reader) (records [][]string, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	// The BIFF decoder panics on some truncated records.
	defer func() {
		if p := recover(); p != nil {
			records, err = nil, fmt.Errorf("%w: spreadsheet %s: %v", ErrUnreadableFile, filename, p)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: spreadsheet %s: %w", ErrUnreadableFile, filename, err)
	}
	if wb == nil {
		return nil, fmt.Errorf("%w: spreadsheet %s: no workbook stream", ErrUnreadableFile, filename)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("%s: %w", filename, ErrNoHeader)
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		var cells []string
		if row := sheet.Row(i); row != nil {
			for j := 0; j <= row.LastCol(); j++ {
				cells = append(cells, row.Col(j))
			}
		}
		records = append(records, trimTrailingEmpty(cells))
	}
	for len(records) > 0 && len(records[len(records)-1]) == 0 {
		records = records[:len(records)-1]
	}
	return records, nil
}

func trimTrailingEmpty(cells []string) []string {
	n := len(cells)
	for n > 0 && strings.TrimSpace(cells[n-1]) == "" {
		n--
	}
	return cells[:n]
}

// Column returns the position of the named column. The name is trimmed
// before lookup; a missing column yields *domain.MissingColumnError.
func (t *Table) Column(name string) (int, error) {
	name = strings.TrimSpace(name)
	for i, h := range t.Headers {
		if h == name {
			return i, nil
		}
	}
	return -1, &domain.MissingColumnError{Column: name, Available: t.Headers}
}

// Cell returns the value at row and col, or "" when the row is short.
func (t *Table) Cell(row, col int) string {
	if col < 0 || row < 0 || row >= len(t.Rows) || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }
