package export

import (
	"strconv"

	"trialdesk/internal/domain"
	"trialdesk/internal/schedule"
)

const (
	BaselineFile   = "filtered_data_max_equal_baseline.csv"
	PivotFile      = "pivoted_data.csv"
	ComparisonFile = "categorized_data.csv"
)

var baselineHeader = []string{
	"Project", "Project (child)", "Project Status", "Baseline", "Max Baseline (child)",
	"Baseline Status", "Activity", "Activity (child)", "Baseline Start Date", "Baseline Finish Date",
}

var pivotHeader = []string{"Project ID", "CLB Start Date", "CLB Finish Date", "Activity"}

var comparisonHeader = []string{
	"Project ID", "Activity", "LN Baseline Start Date", "CLB Start Date", "Start Date Variance (days)",
	"LN Baseline Finish Date", "CLB Finish Date", "Finish Date Variance (days)", "Severity",
}

func BaselineRecords(rows []domain.ScheduleRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.Project, r.ProjectChild, r.ProjectStatus,
			formatNumber(r.Baseline), formatNumber(r.MaxBaseline),
			r.BaselineStatus, string(r.Activity), r.ActivityChild,
			r.BaselineStartDate.String(), r.BaselineFinishDate.String(),
		})
	}
	return out
}

func PivotRecords(rows []domain.PivotRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{r.ProjectID, r.CLBStartDate.String(), r.CLBFinishDate.String(), string(r.Activity)})
	}
	return out
}

func ComparisonRecords(rows []domain.ComparisonRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.ProjectID, string(r.Activity),
			r.LNBaselineStartDate.String(), r.CLBStartDate.String(), r.StartDateVarianceDays.String(),
			r.LNBaselineFinishDate.String(), r.CLBFinishDate.String(), r.FinishDateVarianceDays.String(),
			r.Severity.Label(),
		})
	}
	return out
}

func WriteBaseline(outputDir string, rows []domain.ScheduleRow) (string, error) {
	return WriteCSV(outputDir, BaselineFile, baselineHeader, BaselineRecords(rows))
}

func WritePivot(outputDir string, rows []domain.PivotRow) (string, error) {
	return WriteCSV(outputDir, PivotFile, pivotHeader, PivotRecords(rows))
}

// WriteComparison writes the categorized table and the six gap-case files,
// returning every path written.
func WriteComparison(outputDir string, rows []domain.ComparisonRow) ([]string, error) {
	path, err := WriteCSV(outputDir, ComparisonFile, comparisonHeader, ComparisonRecords(rows))
	if err != nil {
		return nil, err
	}
	paths := []string{path}

	gaps := schedule.Gaps(rows)
	for _, g := range schedule.GapCases {
		p, err := WriteCSV(outputDir, g.FileName(), comparisonHeader, ComparisonRecords(gaps[g]))
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
