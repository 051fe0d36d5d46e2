package domain

import (
	"database/sql"
	"strings"
)

// TrialColumns is the fixed positional schema of the registry snapshot.
var TrialColumns = []string{"NCTId", "Conditions", "Keywords", "BriefTitle", "EligibilityCriteria"}

type TrialRecord struct {
	NCTId               string
	Conditions          sql.NullString
	Keywords            sql.NullString
	BriefTitle          sql.NullString
	EligibilityCriteria sql.NullString

	// ConcatenatedText is the model input, computed once by the loader.
	ConcatenatedText string
}

// Values returns the five cells in schema order. Null cells render empty.
func (r TrialRecord) Values() []string {
	return []string{
		r.NCTId,
		r.Conditions.String,
		r.Keywords.String,
		r.BriefTitle.String,
		r.EligibilityCriteria.String,
	}
}

func (r TrialRecord) WithConcatenatedText() TrialRecord {
	r.ConcatenatedText = strings.Join(r.Values(), "\n")
	return r
}

// Text builds a non-null cell value.
func Text(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

// LabThresholdEntry holds the raw extraction reply for one trial. A failed
// call leaves LabValues empty and sets ErrorKind/Error instead.
type LabThresholdEntry struct {
	NCTId     string `json:"NCTId"`
	LabValues string `json:"LAB_VALUES"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (e LabThresholdEntry) Failed() bool {
	return e.Error != ""
}

// DatabaseReadyEntry holds the normalized ANC range text for one trial.
type DatabaseReadyEntry struct {
	NCTId                  string `json:"NCTId"`
	DatabaseReadyLabValues string `json:"DatabaseReadyLabValues"`
	ErrorKind              string `json:"error_kind,omitempty"`
	Error                  string `json:"error,omitempty"`
}

func (e DatabaseReadyEntry) Failed() bool {
	return e.Error != ""
}
