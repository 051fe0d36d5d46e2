package llm

import (
	"context"
	"strings"

	"trialdesk/internal/domain"
	"trialdesk/internal/logging"
)

// ExtractLabValues sends each record's concatenated text to the model and
// returns one entry per record in input order. A failed call yields an entry
// carrying the error kind instead of aborting the batch.
func ExtractLabValues(ctx context.Context, gen TextGenerator, prompt string, records []domain.TrialRecord, limit int) []domain.LabThresholdEntry {
	inputs := make([]string, len(records))
	for i, rec := range records {
		inputs[i] = rec.ConcatenatedText
	}

	logging.L().Infof("llm extract records=%d concurrency=%d", len(records), batchConcurrencyLimit(len(records), limit))
	results := GenerateAll(ctx, gen, prompt, inputs, limit)

	entries := make([]domain.LabThresholdEntry, len(records))
	failed := 0
	for i, res := range results {
		entries[i] = domain.LabThresholdEntry{NCTId: records[i].NCTId, LabValues: res.Reply}
		if res.Err != nil {
			failed++
			entries[i].LabValues = ""
			entries[i].ErrorKind = errorKindLabel(res.Err)
			entries[i].Error = res.Err.Error()
			logging.L().Warnf("llm extract failed nct_id=%s kind=%s: %v", records[i].NCTId, entries[i].ErrorKind, res.Err)
		}
	}
	logging.L().Infof("llm extract done records=%d failed=%d", len(records), failed)
	return entries
}

// NormalizeWithModel asks the model for the ANC range of each extraction.
// Entries that already failed are carried over as failures, and replies of
// None, null, or nothing produce no output entry.
func NormalizeWithModel(ctx context.Context, gen TextGenerator, prompt string, entries []domain.LabThresholdEntry, limit int) []domain.DatabaseReadyEntry {
	var (
		pending []domain.LabThresholdEntry
		inputs  []string
		out     []domain.DatabaseReadyEntry
	)
	for _, e := range entries {
		if e.Failed() {
			continue
		}
		pending = append(pending, e)
		inputs = append(inputs, e.LabValues)
	}

	results := GenerateAll(ctx, gen, prompt, inputs, limit)
	for i, res := range results {
		id := pending[i].NCTId
		if res.Err != nil {
			logging.L().Warnf("llm normalize failed nct_id=%s: %v", id, res.Err)
			out = append(out, domain.DatabaseReadyEntry{NCTId: id, ErrorKind: errorKindLabel(res.Err), Error: res.Err.Error()})
			continue
		}
		if isNoneReply(res.Reply) {
			continue
		}
		out = append(out, domain.DatabaseReadyEntry{NCTId: id, DatabaseReadyLabValues: res.Reply})
	}
	return out
}

func isNoneReply(reply string) bool {
	switch strings.ToLower(strings.TrimSpace(reply)) {
	case "", "none", "null", "{}":
		return true
	}
	return false
}

func errorKindLabel(err error) string {
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
