package pipeline

import (
	"database/sql"
	"fmt"
	"time"

	"trialdesk/internal/config"
	"trialdesk/internal/domain"
	"trialdesk/internal/export"
	"trialdesk/internal/logging"
	"trialdesk/internal/schedule"
	"trialdesk/internal/sheet"
	"trialdesk/internal/storage/sqlite"
)

// ComparisonResult holds every table a comparison produces plus the files
// written for it.
type ComparisonResult struct {
	Baseline []domain.ScheduleRow
	Pivot    []domain.PivotRow
	Rows     []domain.ComparisonRow
	Summary  schedule.Summary
	Files    []string
	RunID    string
}

// LoadBaseline reads the baseline file and keeps the max-baseline rows.
func LoadBaseline(path string) ([]domain.ScheduleRow, error) {
	t, err := sheet.Read(path, sheet.Options{})
	if err != nil {
		return nil, err
	}
	rows, err := schedule.ReadBaseline(t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return schedule.SelectBaseline(rows), nil
}

// LoadPivot reads the current-plan workbook and pivots it by phase.
func LoadPivot(cfg config.Config, path string) ([]domain.PivotRow, error) {
	t, err := sheet.Read(path, sheet.Options{Sheet: cfg.ScheduleSheetName, Skip: cfg.ScheduleHeaderSkip})
	if err != nil {
		return nil, err
	}
	rows, err := schedule.Pivot(t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// Compare runs the full comparison, writes every export to outputDir, and
// records the summary when db is set.
func Compare(cfg config.Config, db *sql.DB, baselinePath, currentPath, source string, now time.Time) (ComparisonResult, error) {
	baseline, err := LoadBaseline(baselinePath)
	if err != nil {
		return ComparisonResult{}, err
	}
	pivot, err := LoadPivot(cfg, currentPath)
	if err != nil {
		return ComparisonResult{}, err
	}
	rows := schedule.Compare(baseline, pivot)
	res := ComparisonResult{Baseline: baseline, Pivot: pivot, Rows: rows, Summary: schedule.Summarize(rows)}
	logging.L().Infof("schedule compare baseline_rows=%d pivot_rows=%d rows=%d positive=%d negative=%d",
		len(baseline), len(pivot), len(rows), res.Summary.Variance.Positive, res.Summary.Variance.Negative)

	dir := cfg.ExportOutputDir
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	single := []func() (string, error){
		func() (string, error) { return export.WriteBaseline(dir, baseline) },
		func() (string, error) { return export.WritePivot(dir, pivot) },
		func() (string, error) { return export.WriteCharts(dir, res.Summary) },
		func() (string, error) { return export.WriteSummaryReport(dir, res.Summary, now.In(loc)) },
	}
	for _, write := range single {
		p, err := write()
		if err != nil {
			return res, err
		}
		res.Files = append(res.Files, p)
	}
	paths, err := export.WriteComparison(dir, rows)
	res.Files = append(res.Files, paths...)
	if err != nil {
		return res, err
	}

	if db != nil {
		run, err := sqlite.InsertComparisonRun(db, baselinePath, currentPath, source, res.Summary)
		if err != nil {
			return res, fmt.Errorf("recording comparison: %w", err)
		}
		res.RunID = run.ID
	}
	return res, nil
}
