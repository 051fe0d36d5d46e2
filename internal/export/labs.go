package export

import (
	"trialdesk/internal/domain"
	"trialdesk/internal/labs"
	"trialdesk/internal/logging"
)

const (
	LabValuesCSV      = "lab_values.csv"
	LabValuesJSON     = "lab_values.json"
	DatabaseReadyCSV  = "database_ready.csv"
	DatabaseReadyJSON = "database_ready.json"
)

// LabTable parses each reply into one row keyed by NCTId. Columns are the
// union of parsed keys, canonical labs first. Failed entries produce a row
// with only the NCTId.
func LabTable(p labs.Parser, ids []string, replies []string, databaseReady bool) ([]string, [][]string) {
	rendered := make([]map[string]string, len(replies))
	for i, reply := range replies {
		m, err := p.Parse(reply)
		if err != nil {
			logging.L().Warnf("labs parse nct_id=%s: %v", ids[i], err)
		}
		if extra := labs.Unmatched(reply, m); len(extra) > 0 {
			logging.L().Warnf("labs parse nct_id=%s unmatched_keys=%v", ids[i], extra)
		}
		rendered[i] = labs.Render(m, databaseReady)
	}

	cols := labs.Columns(rendered...)
	header := append([]string{"NCTId"}, cols...)
	rows := make([][]string, len(rendered))
	for i, r := range rendered {
		row := make([]string, 0, len(header))
		row = append(row, ids[i])
		for _, c := range cols {
			row = append(row, r[c])
		}
		rows[i] = row
	}
	return header, rows
}

// WriteLabValues writes the raw extraction entries as JSON and the parsed
// table as CSV.
func WriteLabValues(outputDir string, p labs.Parser, entries []domain.LabThresholdEntry) ([]string, error) {
	ids := make([]string, len(entries))
	replies := make([]string, len(entries))
	for i, e := range entries {
		ids[i], replies[i] = e.NCTId, e.LabValues
	}
	header, rows := LabTable(p, ids, replies, false)
	return writePair(outputDir, LabValuesJSON, entries, LabValuesCSV, header, rows)
}

// WriteDatabaseReady writes the normalized entries as JSON and the parsed
// table, with unit-suffixed column names, as CSV.
func WriteDatabaseReady(outputDir string, p labs.Parser, entries []domain.DatabaseReadyEntry) ([]string, error) {
	ids := make([]string, len(entries))
	replies := make([]string, len(entries))
	for i, e := range entries {
		ids[i], replies[i] = e.NCTId, e.DatabaseReadyLabValues
	}
	header, rows := LabTable(p, ids, replies, true)
	return writePair(outputDir, DatabaseReadyJSON, entries, DatabaseReadyCSV, header, rows)
}

func writePair(outputDir, jsonName string, v any, csvName string, header []string, rows [][]string) ([]string, error) {
	jsonPath, err := WriteJSON(outputDir, jsonName, v)
	if err != nil {
		return nil, err
	}
	csvPath, err := WriteCSV(outputDir, csvName, header, rows)
	if err != nil {
		return []string{jsonPath}, err
	}
	return []string{jsonPath, csvPath}, nil
}
