// Package sqlite persists pipeline stage results and comparison history in
// SQLite, so separate CLI invocations can pick up where the last one ended.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"trialdesk/internal/domain"
)

type Stage string

const (
	StageFilter    Stage = "filter"
	StageExtract   Stage = "extract"
	StageNormalize Stage = "normalize"
)

var ErrRunNotFound = errors.New("run not found")

// Run is one persisted stage result. ParentID links a stage to the run it
// consumed.
type Run struct {
	ID          string
	Stage       Stage
	ParentID    string
	Params      json.RawMessage
	LLMProvider string
	LLMModel    string
	Count       int
	CreatedAt   time.Time
}

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		stage        TEXT NOT NULL,
		parent_id    TEXT DEFAULT '',
		params       TEXT DEFAULT '{}',
		llm_provider TEXT DEFAULT '',
		llm_model    TEXT DEFAULT '',
		record_count INTEGER NOT NULL DEFAULT 0,
		created_at   DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_stage_created ON runs(stage, created_at);

	CREATE TABLE IF NOT EXISTS trial_records (
		run_id               TEXT NOT NULL,
		position             INTEGER NOT NULL,
		nct_id               TEXT NOT NULL,
		conditions           TEXT,
		keywords             TEXT,
		brief_title          TEXT,
		eligibility_criteria TEXT,
		PRIMARY KEY (run_id, position)
	);

	CREATE TABLE IF NOT EXISTS lab_extractions (
		run_id     TEXT NOT NULL,
		position   INTEGER NOT NULL,
		nct_id     TEXT NOT NULL,
		lab_values TEXT DEFAULT '',
		error_kind TEXT DEFAULT '',
		error      TEXT DEFAULT '',
		PRIMARY KEY (run_id, position)
	);

	CREATE TABLE IF NOT EXISTS database_ready (
		run_id     TEXT NOT NULL,
		position   INTEGER NOT NULL,
		nct_id     TEXT NOT NULL,
		lab_values TEXT DEFAULT '',
		error_kind TEXT DEFAULT '',
		error      TEXT DEFAULT '',
		PRIMARY KEY (run_id, position)
	);

	CREATE TABLE IF NOT EXISTS comparison_runs (
		id            TEXT PRIMARY KEY,
		baseline_path TEXT NOT NULL,
		current_path  TEXT NOT NULL,
		source        TEXT DEFAULT 'cli',
		total_rows    INTEGER NOT NULL,
		positive_rows INTEGER NOT NULL,
		negative_rows INTEGER NOT NULL,
		summary       TEXT DEFAULT '{}',
		created_at    DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_comparison_runs_created ON comparison_runs(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func newRunID() string {
	return uuid.NewString()
}

func insertRun(tx *sql.Tx, run Run) error {
	params := run.Params
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	_, err := tx.Exec(
		`INSERT INTO runs (id, stage, parent_id, params, llm_provider, llm_model, record_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Stage), run.ParentID, string(params), run.LLMProvider, run.LLMModel, run.Count, run.CreatedAt,
	)
	return err
}

// SaveFilterRun stores a filtered trial table and returns the new run.
func SaveFilterRun(db *sql.DB, params any, records []domain.TrialRecord) (Run, error) {
	run, err := newRun(StageFilter, "", params, len(records))
	if err != nil {
		return Run{}, err
	}
	return run, withTx(db, func(tx *sql.Tx) error {
		if err := insertRun(tx, run); err != nil {
			return err
		}
		stmt, err := tx.Prepare(
			`INSERT INTO trial_records (run_id, position, nct_id, conditions, keywords, brief_title, eligibility_criteria)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, r := range records {
			if _, err := stmt.Exec(run.ID, i, r.NCTId, r.Conditions, r.Keywords, r.BriefTitle, r.EligibilityCriteria); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveExtractionRun stores the extraction entries produced from parentID.
func SaveExtractionRun(db *sql.DB, parentID, provider, model string, entries []domain.LabThresholdEntry) (Run, error) {
	run, err := newRun(StageExtract, parentID, nil, len(entries))
	if err != nil {
		return Run{}, err
	}
	run.LLMProvider, run.LLMModel = provider, model
	return run, withTx(db, func(tx *sql.Tx) error {
		if err := insertRun(tx, run); err != nil {
			return err
		}
		stmt, err := tx.Prepare(
			`INSERT INTO lab_extractions (run_id, position, nct_id, lab_values, error_kind, error) VALUES (?, ?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, e := range entries {
			if _, err := stmt.Exec(run.ID, i, e.NCTId, e.LabValues, e.ErrorKind, e.Error); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveNormalizationRun stores database-ready entries produced from parentID.
func SaveNormalizationRun(db *sql.DB, parentID string, params any, entries []domain.DatabaseReadyEntry) (Run, error) {
	run, err := newRun(StageNormalize, parentID, params, len(entries))
	if err != nil {
		return Run{}, err
	}
	return run, withTx(db, func(tx *sql.Tx) error {
		if err := insertRun(tx, run); err != nil {
			return err
		}
		stmt, err := tx.Prepare(
			`INSERT INTO database_ready (run_id, position, nct_id, lab_values, error_kind, error) VALUES (?, ?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, e := range entries {
			if _, err := stmt.Exec(run.ID, i, e.NCTId, e.DatabaseReadyLabValues, e.ErrorKind, e.Error); err != nil {
				return err
			}
		}
		return nil
	})
}

func newRun(stage Stage, parentID string, params any, count int) (Run, error) {
	raw := json.RawMessage("{}")
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return Run{}, fmt.Errorf("encoding run params: %w", err)
		}
		raw = data
	}
	return Run{
		ID:        newRunID(),
		Stage:     stage,
		ParentID:  parentID,
		Params:    raw,
		Count:     count,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func withTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// GetRun returns the run with id, or the most recent run of stage when id
// is empty.
func GetRun(db *sql.DB, stage Stage, id string) (Run, error) {
	query := `SELECT id, stage, parent_id, params, llm_provider, llm_model, record_count, created_at FROM runs `
	var row *sql.Row
	if id != "" {
		row = db.QueryRow(query+`WHERE id = ? AND stage = ?`, id, string(stage))
	} else {
		row = db.QueryRow(query+`WHERE stage = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, string(stage))
	}
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		if id != "" {
			return Run{}, fmt.Errorf("%w: %s run %s", ErrRunNotFound, stage, id)
		}
		return Run{}, fmt.Errorf("%w: no %s run yet", ErrRunNotFound, stage)
	}
	return run, err
}

// ListRuns returns the newest runs first, across all stages.
func ListRuns(db *sql.DB, limit int) ([]Run, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := db.Query(
		`SELECT id, stage, parent_id, params, llm_provider, llm_model, record_count, created_at
		 FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run    Run
		stage  string
		params string
	)
	if err := s.Scan(&run.ID, &stage, &run.ParentID, &params, &run.LLMProvider, &run.LLMModel, &run.Count, &run.CreatedAt); err != nil {
		return Run{}, err
	}
	run.Stage = Stage(stage)
	run.Params = json.RawMessage(params)
	return run, nil
}

func GetTrialRecords(db *sql.DB, runID string) ([]domain.TrialRecord, error) {
	rows, err := db.Query(
		`SELECT nct_id, conditions, keywords, brief_title, eligibility_criteria
		 FROM trial_records WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.TrialRecord
	for rows.Next() {
		var r domain.TrialRecord
		if err := rows.Scan(&r.NCTId, &r.Conditions, &r.Keywords, &r.BriefTitle, &r.EligibilityCriteria); err != nil {
			return nil, err
		}
		records = append(records, r.WithConcatenatedText())
	}
	return records, rows.Err()
}

func GetLabExtractions(db *sql.DB, runID string) ([]domain.LabThresholdEntry, error) {
	rows, err := db.Query(
		`SELECT nct_id, lab_values, error_kind, error FROM lab_extractions WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LabThresholdEntry
	for rows.Next() {
		var e domain.LabThresholdEntry
		if err := rows.Scan(&e.NCTId, &e.LabValues, &e.ErrorKind, &e.Error); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func GetDatabaseReady(db *sql.DB, runID string) ([]domain.DatabaseReadyEntry, error) {
	rows, err := db.Query(
		`SELECT nct_id, lab_values, error_kind, error FROM database_ready WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.DatabaseReadyEntry
	for rows.Next() {
		var e domain.DatabaseReadyEntry
		if err := rows.Scan(&e.NCTId, &e.DatabaseReadyLabValues, &e.ErrorKind, &e.Error); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
