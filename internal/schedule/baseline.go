// Package schedule compares a project plan's baseline dates against the
// current plan, phase by phase.
package schedule

import (
	"fmt"
	"strings"

	"trialdesk/internal/domain"
	"trialdesk/internal/logging"
	"trialdesk/internal/sheet"
)

// BaselineColumns are required in the baseline file.
var BaselineColumns = []string{
	"Project", "Project (child)", "Project Status", "Baseline", "Baseline Status",
	"Activity", "Activity (child)", "Baseline Start Date", "Baseline Finish Date",
}

var activityPhases = map[string]domain.Phase{
	"00.01": domain.PhaseFeasibility,
	"00.02": domain.PhaseDesign,
	"00.03": domain.PhaseExecution,
	"00.04": domain.PhaseClosure,
	// Spreadsheets often render the codes as plain decimals.
	"0.01": domain.PhaseFeasibility,
	"0.02": domain.PhaseDesign,
	"0.03": domain.PhaseExecution,
	"0.04": domain.PhaseClosure,
}

// PhaseForActivity maps an activity code to its phase.
func PhaseForActivity(code string) (domain.Phase, bool) {
	p, ok := activityPhases[strings.TrimSpace(code)]
	return p, ok
}

// ReadBaseline converts a baseline table into schedule rows. Rows whose
// activity code is not a phase code, or whose Baseline is blank, are dropped.
func ReadBaseline(t *sheet.Table) ([]domain.ScheduleRow, error) {
	if err := t.Require(BaselineColumns); err != nil {
		return nil, err
	}

	var rows []domain.ScheduleRow
	dropped, blank := 0, 0
	for i, cells := range t.Rows {
		phase, ok := PhaseForActivity(t.Col(cells, "Activity"))
		if !ok {
			dropped++
			continue
		}
		line := i + 2
		if sheet.IsBlank(t.Col(cells, "Baseline")) {
			blank++
			continue
		}
		baseline, err := sheet.ParseNumber(t.Col(cells, "Baseline"))
		if err != nil {
			return nil, fmt.Errorf("row %d: Baseline: %w", line, err)
		}
		start, err := sheet.ParseDate(t.Col(cells, "Baseline Start Date"))
		if err != nil {
			return nil, fmt.Errorf("row %d: Baseline Start Date: %w", line, err)
		}
		finish, err := sheet.ParseDate(t.Col(cells, "Baseline Finish Date"))
		if err != nil {
			return nil, fmt.Errorf("row %d: Baseline Finish Date: %w", line, err)
		}
		rows = append(rows, domain.ScheduleRow{
			Project:            t.Col(cells, "Project"),
			ProjectChild:       t.Col(cells, "Project (child)"),
			ProjectStatus:      t.Col(cells, "Project Status"),
			Baseline:           baseline,
			BaselineStatus:     t.Col(cells, "Baseline Status"),
			Activity:           phase,
			ActivityChild:      t.Col(cells, "Activity (child)"),
			BaselineStartDate:  start,
			BaselineFinishDate: finish,
		})
	}
	if blank > 0 {
		logging.L().Warnf("schedule baseline dropped_blank_baseline=%d", blank)
	}
	logging.L().Debugf("schedule baseline rows=%d dropped_non_phase=%d", len(rows), dropped)
	return rows, nil
}

// SelectBaseline keeps, per project, every row whose Baseline equals the
// project's maximum. Ties are all kept. MaxBaseline is filled in on the
// returned rows; input order is preserved.
func SelectBaseline(rows []domain.ScheduleRow) []domain.ScheduleRow {
	maxBaseline := make(map[string]float64)
	for _, r := range rows {
		if cur, ok := maxBaseline[r.Project]; !ok || r.Baseline > cur {
			maxBaseline[r.Project] = r.Baseline
		}
	}
	out := make([]domain.ScheduleRow, 0, len(rows))
	for _, r := range rows {
		if r.Baseline == maxBaseline[r.Project] {
			r.MaxBaseline = maxBaseline[r.Project]
			out = append(out, r)
		}
	}
	return out
}
