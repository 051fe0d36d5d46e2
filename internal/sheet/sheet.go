// Package sheet reads header-first tables from CSV and XLSX files.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Table is a header row plus data rows. Every row has len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// NewTable trims header names and pads data rows to the header width.
// Fully blank rows are dropped.
func NewTable(header []string, rows [][]string) *Table {
	t := &Table{Header: make([]string, len(header)), index: make(map[string]int, len(header))}
	for i, h := range header {
		h = strings.TrimSpace(h)
		t.Header[i] = h
		if _, dup := t.index[h]; !dup {
			t.index[h] = i
		}
	}
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		padded := make([]string, len(header))
		copy(padded, row)
		t.Rows = append(t.Rows, padded)
	}
	return t
}

// Col returns the cell under column name, or "" when the column is absent.
func (t *Table) Col(row []string, name string) string {
	i, ok := t.index[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// SchemaError lists every required column when any of them is missing.
type SchemaError struct {
	Required []string
	Missing  []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("the file must contain the following columns: [%s] (missing: %s)",
		strings.Join(e.Required, ", "), strings.Join(e.Missing, ", "))
}

// Require checks that every column in cols is present.
func (t *Table) Require(cols []string) error {
	var missing []string
	for _, c := range cols {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Required: append([]string(nil), cols...), Missing: missing}
	}
	return nil
}

// Options select where the header lives in a workbook. Sheet empty means the
// first sheet. Skip drops that many rows before the header. CSV files always
// start with their header row.
type Options struct {
	Sheet string
	Skip  int
}

// Read loads a .csv or .xlsx file.
func Read(path string, opts Options) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(path, opts)
	case ".csv":
		return ReadCSV(path, 0)
	default:
		return nil, fmt.Errorf("unsupported file type %q: expected .csv or .xlsx", filepath.Ext(path))
	}
}

func ReadCSV(path string, skip int) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return fromRecords(path, records, skip)
}

func ReadXLSX(path string, opts Options) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	sheetName := opts.Sheet
	if sheetName == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s has no sheets", path)
		}
		sheetName = sheets[0]
	}
	// Raw values keep dates as serial numbers instead of locale-formatted text.
	records, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q of %s: %w", sheetName, path, err)
	}
	return fromRecords(path, records, opts.Skip)
}

func fromRecords(path string, records [][]string, skip int) (*Table, error) {
	if skip < 0 {
		skip = 0
	}
	if len(records) <= skip {
		return nil, errors.New(path + ": no header row found")
	}
	records = records[skip:]
	return NewTable(records[0], records[1:]), nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
