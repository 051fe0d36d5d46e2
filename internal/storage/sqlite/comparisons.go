package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"trialdesk/internal/schedule"
)

// ComparisonRun is one recorded LN vs CLB comparison.
type ComparisonRun struct {
	ID           string
	BaselinePath string
	CurrentPath  string
	Source       string
	Summary      schedule.Summary
	CreatedAt    time.Time
}

func InsertComparisonRun(db *sql.DB, baselinePath, currentPath, source string, summary schedule.Summary) (ComparisonRun, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return ComparisonRun{}, fmt.Errorf("encoding summary: %w", err)
	}
	run := ComparisonRun{
		ID:           newRunID(),
		BaselinePath: baselinePath,
		CurrentPath:  currentPath,
		Source:       source,
		Summary:      summary,
		CreatedAt:    time.Now().UTC(),
	}
	_, err = db.Exec(
		`INSERT INTO comparison_runs (id, baseline_path, current_path, source, total_rows, positive_rows, negative_rows, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, baselinePath, currentPath, source,
		summary.Variance.Total, summary.Variance.Positive, summary.Variance.Negative,
		string(data), run.CreatedAt,
	)
	return run, err
}

// GetComparisonRuns returns comparisons recorded at or after since, newest first.
func GetComparisonRuns(db *sql.DB, since time.Time, limit int) ([]ComparisonRun, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := db.Query(
		`SELECT id, baseline_path, current_path, source, summary, created_at
		 FROM comparison_runs WHERE created_at >= ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ComparisonRun
	for rows.Next() {
		var (
			run     ComparisonRun
			summary string
		)
		if err := rows.Scan(&run.ID, &run.BaselinePath, &run.CurrentPath, &run.Source, &summary, &run.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(summary), &run.Summary); err != nil {
			return nil, fmt.Errorf("decoding summary of %s: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
