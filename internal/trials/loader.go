package trials

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"trialdesk/internal/domain"
)

var ErrDataFileNotFound = errors.New("data file not found")

type dataFileError struct {
	path string
	err  error
}

func (e *dataFileError) Error() string {
	return fmt.Sprintf("Data file not found. Please ensure '%s' is in the project directory.", e.path)
}

func (e *dataFileError) Unwrap() []error {
	return []error{ErrDataFileNotFound, e.err}
}

// Load reads the registry snapshot at path. CSV files must have a header row
// and exactly five columns, which are renamed positionally. JSON files hold
// an array of objects keyed by the five column names.
func Load(path string) ([]domain.TrialRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &dataFileError{path: path, err: err}
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var records []domain.TrialRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		records, err = parseJSON(data)
	default:
		records, err = parseCSV(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for i := range records {
		records[i] = records[i].WithConcatenatedText()
	}
	return records, nil
}

func parseCSV(data []byte) ([]domain.TrialRecord, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("csv is empty")
	}
	if len(rows[0]) != len(domain.TrialColumns) {
		return nil, fmt.Errorf("expected %d columns (%s), found %d", len(domain.TrialColumns), strings.Join(domain.TrialColumns, ", "), len(rows[0]))
	}

	records := make([]domain.TrialRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(domain.TrialColumns) {
			return nil, fmt.Errorf("row %d: expected %d columns, found %d", i+2, len(domain.TrialColumns), len(row))
		}
		records = append(records, domain.TrialRecord{
			NCTId:               row[0],
			Conditions:          nullable(row[1]),
			Keywords:            nullable(row[2]),
			BriefTitle:          nullable(row[3]),
			EligibilityCriteria: nullable(row[4]),
		})
	}
	return records, nil
}

func parseJSON(data []byte) ([]domain.TrialRecord, error) {
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	records := make([]domain.TrialRecord, 0, len(raw))
	for _, obj := range raw {
		id := cellValue(obj["NCTId"])
		records = append(records, domain.TrialRecord{
			NCTId:               id.String,
			Conditions:          cellValue(obj["Conditions"]),
			Keywords:            cellValue(obj["Keywords"]),
			BriefTitle:          cellValue(obj["BriefTitle"]),
			EligibilityCriteria: cellValue(obj["EligibilityCriteria"]),
		})
	}
	return records, nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return domain.Text(s)
}

// cellValue flattens one JSON cell. Lists are joined with ", ".
func cellValue(v any) sql.NullString {
	switch val := v.(type) {
	case nil:
		return sql.NullString{}
	case string:
		return domain.Text(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
		return domain.Text(strings.Join(parts, ", "))
	default:
		return domain.Text(fmt.Sprint(val))
	}
}
