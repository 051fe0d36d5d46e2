package trials

import (
	"database/sql"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"trialdesk/internal/domain"
)

// Criteria holds the four optional substring patterns. A record is kept only
// when every pattern matches its field.
type Criteria struct {
	NCTId               string `json:"nct_id,omitempty"`
	Conditions          string `json:"conditions,omitempty"`
	BriefTitle          string `json:"brief_title,omitempty"`
	EligibilityCriteria string `json:"eligibility_criteria,omitempty"`
}

func (c Criteria) IsZero() bool {
	return c == Criteria{}
}

// Match reports whether rec satisfies all four patterns. Empty patterns match
// anything, null fields included. A null field never matches a non-empty
// pattern.
func (c Criteria) Match(rec domain.TrialRecord) bool {
	return contains(domain.Text(rec.NCTId), c.NCTId) &&
		contains(rec.Conditions, c.Conditions) &&
		contains(rec.BriefTitle, c.BriefTitle) &&
		contains(rec.EligibilityCriteria, c.EligibilityCriteria)
}

// Filter returns the matching records in input order.
func Filter(records []domain.TrialRecord, c Criteria) []domain.TrialRecord {
	out := make([]domain.TrialRecord, 0, len(records))
	for _, rec := range records {
		if c.Match(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Select keeps the records whose NCTId is in ids, in table order. An empty
// ids list selects everything.
func Select(records []domain.TrialRecord, ids []string) []domain.TrialRecord {
	if len(ids) == 0 {
		return append([]domain.TrialRecord(nil), records...)
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[strings.TrimSpace(id)] = struct{}{}
	}
	out := make([]domain.TrialRecord, 0, len(ids))
	for _, rec := range records {
		if _, ok := want[rec.NCTId]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// IDs lists the NCTIds of records in order.
func IDs(records []domain.TrialRecord) []string {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.NCTId
	}
	return ids
}

func contains(field sql.NullString, pattern string) bool {
	if pattern == "" {
		return true
	}
	if !field.Valid {
		return false
	}
	return strings.Contains(fold(field.String), fold(pattern))
}

func fold(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}
