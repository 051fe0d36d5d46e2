package trials

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"trialdesk/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadCSVRenamesColumnsPositionally(t *testing.T) {
	path := writeFile(t, "trials.csv", "id,cond,kw,title,elig\n"+
		"NCT001,Leukemia,,Study A,\"ANC >= 1.5 x10^9/L\"\n"+
		"NCT002,,,Study B,\n")

	records, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].NCTId != "NCT001" || records[0].Conditions.String != "Leukemia" {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[0].Keywords.Valid {
		t.Fatal("empty cell should load as null")
	}
	if records[0].ConcatenatedText != "NCT001\nLeukemia\n\nStudy A\nANC >= 1.5 x10^9/L" {
		t.Fatalf("unexpected concatenated text %q", records[0].ConcatenatedText)
	}
}

func TestLoadCSVRejectsWrongColumnCount(t *testing.T) {
	path := writeFile(t, "trials.csv", "a,b,c\n1,2,3\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "expected 5 columns") {
		t.Fatalf("expected column count error, got %v", err)
	}
}

func TestLoadJSONJoinsLists(t *testing.T) {
	path := writeFile(t, "trials.json", `[
  {"NCTId": "NCT010", "Conditions": ["Lymphoma", "Myeloma"], "Keywords": null, "BriefTitle": "T", "EligibilityCriteria": "Platelets > 100"}
]`)
	records, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	want := domain.TrialRecord{
		NCTId:               "NCT010",
		Conditions:          domain.Text("Lymphoma, Myeloma"),
		BriefTitle:          domain.Text("T"),
		EligibilityCriteria: domain.Text("Platelets > 100"),
	}.WithConcatenatedText()
	if diff := cmp.Diff(want, records[0]); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clinical_trials_data_filtered.csv")
	_, err := Load(path)
	if !errors.Is(err, ErrDataFileNotFound) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrDataFileNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "Please ensure '"+path+"' is in the project directory.") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func sampleRecords() []domain.TrialRecord {
	return []domain.TrialRecord{
		{NCTId: "NCT001", Conditions: domain.Text("Acute Myeloid Leukemia"), BriefTitle: domain.Text("Venetoclax study"), EligibilityCriteria: domain.Text("ANC ≥ 1.0")},
		{NCTId: "NCT002", Conditions: domain.Text("Breast Cancer"), BriefTitle: domain.Text("HER2 trial"), EligibilityCriteria: sql.NullString{}},
		{NCTId: "NCT003", Conditions: sql.NullString{}, BriefTitle: domain.Text("Leukemia registry"), EligibilityCriteria: domain.Text("none")},
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		want     []string
	}{
		{name: "empty keeps all including nulls", criteria: Criteria{}, want: []string{"NCT001", "NCT002", "NCT003"}},
		{name: "case insensitive", criteria: Criteria{Conditions: "LEUKEMIA"}, want: []string{"NCT001"}},
		{name: "null field fails non-empty pattern", criteria: Criteria{EligibilityCriteria: "n"}, want: []string{"NCT001", "NCT003"}},
		{name: "conjunctive", criteria: Criteria{NCTId: "nct00", BriefTitle: "trial"}, want: []string{"NCT002"}},
		{name: "no match", criteria: Criteria{NCTId: "NCT9"}, want: []string{}},
		{name: "plain substring not regex", criteria: Criteria{BriefTitle: "H.R2"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IDs(Filter(sampleRecords(), tt.criteria))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("filter mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFilterIsSubsetAndEveryRowMatches(t *testing.T) {
	records := sampleRecords()
	c := Criteria{Conditions: "e"}
	out := Filter(records, c)
	if len(out) > len(records) {
		t.Fatalf("filter grew the table: %d > %d", len(out), len(records))
	}
	for _, rec := range out {
		if !c.Match(rec) {
			t.Fatalf("row %s in output does not match", rec.NCTId)
		}
	}
}

func TestFilterUnicodeFolding(t *testing.T) {
	records := []domain.TrialRecord{{NCTId: "X", Conditions: domain.Text("STRASSE syndrome")}}
	if got := Filter(records, Criteria{Conditions: "straße"}); len(got) != 1 {
		t.Fatalf("expected full case folding to match ß, got %d rows", len(got))
	}
}

func TestSelect(t *testing.T) {
	records := sampleRecords()
	if got := IDs(Select(records, []string{"NCT003", "NCT001"})); !cmp.Equal(got, []string{"NCT001", "NCT003"}) {
		t.Fatalf("Select should keep table order, got %v", got)
	}
	if got := Select(records, nil); len(got) != 3 {
		t.Fatalf("empty selection should keep all rows, got %d", len(got))
	}
}
