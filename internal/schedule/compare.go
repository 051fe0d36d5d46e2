package schedule

import (
	"sort"

	"trialdesk/internal/domain"
)

type joinKey struct {
	project  string
	activity domain.Phase
}

// Compare left-joins pivot rows to baseline rows on project and phase. A
// pivot row with no baseline match keeps null LN dates; one that matches
// several tied baseline rows appears once per match. Rows are stably sorted
// by project ID and carry their severity.
func Compare(baseline []domain.ScheduleRow, pivot []domain.PivotRow) []domain.ComparisonRow {
	byKey := make(map[joinKey][]domain.ScheduleRow, len(baseline))
	for _, b := range baseline {
		k := joinKey{b.Project, b.Activity}
		byKey[k] = append(byKey[k], b)
	}

	out := make([]domain.ComparisonRow, 0, len(pivot))
	for _, p := range pivot {
		matches := byKey[joinKey{p.ProjectID, p.Activity}]
		if len(matches) == 0 {
			out = append(out, comparisonRow(p, domain.Date{}, domain.Date{}))
			continue
		}
		for _, b := range matches {
			out = append(out, comparisonRow(p, b.BaselineStartDate, b.BaselineFinishDate))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ProjectID < out[j].ProjectID
	})
	return out
}

func comparisonRow(p domain.PivotRow, lnStart, lnFinish domain.Date) domain.ComparisonRow {
	row := domain.ComparisonRow{
		ProjectID:              p.ProjectID,
		Activity:               p.Activity,
		LNBaselineStartDate:    lnStart,
		CLBStartDate:           p.CLBStartDate,
		StartDateVarianceDays:  domain.DaysBetween(lnStart, p.CLBStartDate),
		LNBaselineFinishDate:   lnFinish,
		CLBFinishDate:          p.CLBFinishDate,
		FinishDateVarianceDays: domain.DaysBetween(lnFinish, p.CLBFinishDate),
	}
	row.Severity = Classify(row.StartDateVarianceDays, row.FinishDateVarianceDays)
	return row
}

// Classify checks the tiers in order, High first; the first tier either
// variance satisfies wins. Null variances satisfy nothing.
func Classify(start, finish domain.Days) domain.Severity {
	either := func(pred func(int) bool) bool {
		return (start.Valid && pred(start.N)) || (finish.Valid && pred(finish.N))
	}
	switch {
	case either(func(d int) bool { return d > 365 }):
		return domain.SeverityHigh
	case either(func(d int) bool { return d >= 90 && d <= 365 }):
		return domain.SeverityMedium
	case either(func(d int) bool { return d >= 0 && d < 90 }):
		return domain.SeverityLow
	case either(func(d int) bool { return d < 0 }):
		return domain.SeverityNegative
	default:
		return domain.SeverityNone
	}
}
