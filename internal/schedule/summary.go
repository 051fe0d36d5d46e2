package schedule

import "trialdesk/internal/domain"

type VarianceSummary struct {
	Total    int `json:"total"`
	Positive int `json:"positive"`
	Negative int `json:"negative"`
}

type GapCount struct {
	Case    GapCase `json:"case"`
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Summary is the aggregate view of one comparison.
type Summary struct {
	Variance   VarianceSummary         `json:"variance"`
	Severities map[domain.Severity]int `json:"severities"`
	Gaps       []GapCount              `json:"gaps"`
}

// Summarize counts rows with any positive or negative variance, rows per
// severity, and rows per gap case with their share of all rows.
func Summarize(rows []domain.ComparisonRow) Summary {
	s := Summary{
		Variance:   VarianceSummary{Total: len(rows)},
		Severities: make(map[domain.Severity]int, len(domain.Severities)),
	}
	for _, sev := range domain.Severities {
		s.Severities[sev] = 0
	}
	for _, r := range rows {
		if positive(r.StartDateVarianceDays) || positive(r.FinishDateVarianceDays) {
			s.Variance.Positive++
		}
		if negative(r.StartDateVarianceDays) || negative(r.FinishDateVarianceDays) {
			s.Variance.Negative++
		}
		s.Severities[r.Severity]++
	}

	gaps := Gaps(rows)
	for _, g := range GapCases {
		n := len(gaps[g])
		pct := 0.0
		if len(rows) > 0 {
			pct = float64(n) / float64(len(rows)) * 100
		}
		s.Gaps = append(s.Gaps, GapCount{Case: g, Label: g.Label(), Count: n, Percent: pct})
	}
	return s
}

func positive(d domain.Days) bool { return d.Valid && d.N > 0 }
func negative(d domain.Days) bool { return d.Valid && d.N < 0 }
