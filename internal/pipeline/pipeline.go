// Package pipeline runs the trial stages (filter, extract, normalize) and
// the schedule comparison, persisting each result so the next invocation can
// consume it.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"trialdesk/internal/config"
	"trialdesk/internal/domain"
	"trialdesk/internal/integrations/llm"
	"trialdesk/internal/labs"
	"trialdesk/internal/logging"
	"trialdesk/internal/storage/sqlite"
	"trialdesk/internal/trials"
)

// FilterResult is an immutable filtered selection of trial records.
type FilterResult struct {
	RunID    string
	Criteria trials.Criteria
	IDs      []string
	Records  []domain.TrialRecord
}

type ExtractionResult struct {
	RunID    string
	ParentID string
	Entries  []domain.LabThresholdEntry
}

type NormalizationResult struct {
	RunID    string
	ParentID string
	Mode     string
	Entries  []domain.DatabaseReadyEntry
}

type filterParams struct {
	DataPath string          `json:"data_path"`
	Criteria trials.Criteria `json:"criteria"`
	IDs      []string        `json:"ids,omitempty"`
}

type normalizeParams struct {
	Mode string `json:"mode"`
}

// Runner wires the stages to config, storage, and the model.
type Runner struct {
	Config    config.Config
	DB        *sql.DB
	Generator llm.TextGenerator
}

// Filter loads the snapshot, applies the criteria, optionally narrows to ids,
// and records the result.
func (r *Runner) Filter(criteria trials.Criteria, ids []string) (FilterResult, error) {
	all, err := trials.Load(r.Config.TrialsDataPath)
	if err != nil {
		return FilterResult{}, err
	}
	filtered := trials.Filter(all, criteria)
	selected := trials.Select(filtered, ids)
	logging.L().Infof("trials filter total=%d matched=%d selected=%d", len(all), len(filtered), len(selected))

	run, err := sqlite.SaveFilterRun(r.DB, filterParams{DataPath: r.Config.TrialsDataPath, Criteria: criteria, IDs: ids}, selected)
	if err != nil {
		return FilterResult{}, fmt.Errorf("saving filter run: %w", err)
	}
	return FilterResult{RunID: run.ID, Criteria: criteria, IDs: ids, Records: selected}, nil
}

// Extract sends the records of a filter run (the latest one when runID is
// empty) to the model.
func (r *Runner) Extract(ctx context.Context, runID string) (ExtractionResult, error) {
	if r.Generator == nil {
		return ExtractionResult{}, errors.New("no text generator configured")
	}
	parent, err := sqlite.GetRun(r.DB, sqlite.StageFilter, runID)
	if err != nil {
		return ExtractionResult{}, err
	}
	records, err := sqlite.GetTrialRecords(r.DB, parent.ID)
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("loading filter run %s: %w", parent.ID, err)
	}
	if len(records) == 0 {
		return ExtractionResult{}, fmt.Errorf("filter run %s selected no records", parent.ID)
	}

	prompt, err := llm.LoadPrompt(r.Config.LLMExtractionPromptPath, llm.ExtractionPrompt)
	if err != nil {
		return ExtractionResult{}, err
	}
	entries := llm.ExtractLabValues(ctx, r.Generator, prompt, records, r.Config.LLMConcurrency)
	if err := ctx.Err(); err != nil {
		return ExtractionResult{}, err
	}

	usage := llm.UsageOf(r.Generator)
	logging.L().Infof("llm extract usage tokens_in=%d tokens_out=%d", usage.InputTokens, usage.OutputTokens)

	run, err := sqlite.SaveExtractionRun(r.DB, parent.ID, r.Config.LLMProvider, r.Config.LLMModel, entries)
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("saving extraction run: %w", err)
	}
	return ExtractionResult{RunID: run.ID, ParentID: parent.ID, Entries: entries}, nil
}

// Normalize turns an extraction run into database-ready ANC ranges using the
// configured mode.
func (r *Runner) Normalize(ctx context.Context, runID string) (NormalizationResult, error) {
	parent, err := sqlite.GetRun(r.DB, sqlite.StageExtract, runID)
	if err != nil {
		return NormalizationResult{}, err
	}
	entries, err := sqlite.GetLabExtractions(r.DB, parent.ID)
	if err != nil {
		return NormalizationResult{}, fmt.Errorf("loading extraction run %s: %w", parent.ID, err)
	}

	var out []domain.DatabaseReadyEntry
	switch r.Config.NormalizeMode {
	case config.NormalizeLLM:
		if r.Generator == nil {
			return NormalizationResult{}, errors.New("normalize_mode=llm needs a text generator")
		}
		prompt, err := llm.LoadPrompt(r.Config.LLMNormalizationPromptPath, llm.NormalizationPrompt)
		if err != nil {
			return NormalizationResult{}, err
		}
		out = llm.NormalizeWithModel(ctx, r.Generator, prompt, entries, r.Config.LLMConcurrency)
		if err := ctx.Err(); err != nil {
			return NormalizationResult{}, err
		}
	default:
		out = NormalizeArithmetic(labs.Parser{StrictRanges: r.Config.StrictRanges}, entries)
	}
	logging.L().Infof("labs normalize mode=%s entries=%d output=%d", r.Config.NormalizeMode, len(entries), len(out))

	run, err := sqlite.SaveNormalizationRun(r.DB, parent.ID, normalizeParams{Mode: r.Config.NormalizeMode}, out)
	if err != nil {
		return NormalizationResult{}, fmt.Errorf("saving normalization run: %w", err)
	}
	return NormalizationResult{RunID: run.ID, ParentID: parent.ID, Mode: r.Config.NormalizeMode, Entries: out}, nil
}

// NormalizeArithmetic applies the fixed ANC operator rules to each entry.
// Failed extractions and entries without an ANC value produce no output. An
// unusable ANC value, or an ANC range the parser rejects in strict mode,
// produces an entry carrying the error.
func NormalizeArithmetic(p labs.Parser, entries []domain.LabThresholdEntry) []domain.DatabaseReadyEntry {
	var out []domain.DatabaseReadyEntry
	for _, e := range entries {
		if e.Failed() {
			continue
		}
		m, err := p.Parse(e.LabValues)
		if err != nil {
			logging.L().Warnf("labs parse nct_id=%s: %v", e.NCTId, err)
			if re, rejected := labs.RejectedRange(err, labs.ANC); rejected {
				out = append(out, domain.DatabaseReadyEntry{NCTId: e.NCTId, ErrorKind: "invalid_range", Error: re.Error()})
				continue
			}
		}
		r, ok, err := labs.NormalizeANC(m)
		if err != nil {
			out = append(out, domain.DatabaseReadyEntry{NCTId: e.NCTId, ErrorKind: normalizeErrorKind(err), Error: err.Error()})
			continue
		}
		if !ok {
			continue
		}
		out = append(out, domain.DatabaseReadyEntry{NCTId: e.NCTId, DatabaseReadyLabValues: labs.DatabaseReadyText(r)})
	}
	return out
}

func normalizeErrorKind(err error) string {
	switch {
	case errors.Is(err, labs.ErrUnsupportedOperator):
		return "unsupported_operator"
	case errors.Is(err, labs.ErrNoNumericValue):
		return "no_numeric_value"
	default:
		return "invalid_range"
	}
}
