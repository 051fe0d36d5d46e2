package schedule

import (
	"fmt"

	"trialdesk/internal/domain"
	"trialdesk/internal/sheet"
)

// PivotColumns are required in the current-plan sheet.
var PivotColumns = []string{
	"Project ID",
	"Feasibility Start", "Feasibility Finish",
	"Design Start", "Design Finish",
	"Execution Start", "Execution Finish",
	"Closure Start", "Closure Finish",
}

// Pivot turns one wide row per project into one row per project and phase.
// Output is grouped by phase in Feasibility, Design, Execution, Closure
// order, each group in input order.
func Pivot(t *sheet.Table) ([]domain.PivotRow, error) {
	if err := t.Require(PivotColumns); err != nil {
		return nil, err
	}

	out := make([]domain.PivotRow, 0, len(t.Rows)*len(domain.Phases))
	for _, phase := range domain.Phases {
		startCol := string(phase) + " Start"
		finishCol := string(phase) + " Finish"
		for i, cells := range t.Rows {
			start, err := sheet.ParseDate(t.Col(cells, startCol))
			if err != nil {
				return nil, fmt.Errorf("row %d: %s: %w", i+2, startCol, err)
			}
			finish, err := sheet.ParseDate(t.Col(cells, finishCol))
			if err != nil {
				return nil, fmt.Errorf("row %d: %s: %w", i+2, finishCol, err)
			}
			out = append(out, domain.PivotRow{
				ProjectID:     t.Col(cells, "Project ID"),
				CLBStartDate:  start,
				CLBFinishDate: finish,
				Activity:      phase,
			})
		}
	}
	return out, nil
}
