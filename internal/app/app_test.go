package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"trialdesk/internal/config"
	"trialdesk/internal/export"
	"trialdesk/internal/integrations/llm"
	"trialdesk/internal/labs"
)

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, prompt, input string) (string, error) {
	if strings.Contains(input, "NCT001") {
		return `{"` + labs.ANC + `": [">=", "1500 cells/uL"]}`, nil
	}
	return `{}`, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	posts   []string
	uploads []string
}

func (f *fakeNotifier) PostSummary(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, text)
	return nil
}

func (f *fakeNotifier) UploadFile(ctx context.Context, path, title, comment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, filepath.Base(path))
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// newTestCLI writes a config pointing every path into a temp dir.
func newTestCLI(t *testing.T, extraYAML string) (*cli, string) {
	t.Helper()
	for _, key := range []string{"LLM_PROVIDER", "NORMALIZE_MODE", "TRIALS_DATA_PATH", "DB_PATH", "EXPORT_OUTPUT_DIR",
		"SLACK_BOT_TOKEN", "SLACK_CHANNEL_ID", "WATCH_SCHEDULE", "TIMEZONE", "GEMINI_API_KEY"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	data := writeFile(t, dir, "trials.csv", "NCTId,Conditions,Keywords,BriefTitle,EligibilityCriteria\n"+
		"NCT001,Leukemia,,Induction study,ANC >= 1500/uL\n"+
		"NCT002,Asthma,,Inhaler study,none\n")
	cfg := "trials_data_path: " + data + "\n" +
		"db_path: " + filepath.Join(dir, "trialdesk.db") + "\n" +
		"export_output_dir: " + filepath.Join(dir, "exports") + "\n" +
		"gemini_api_key: test\n" +
		"timezone: UTC\n" + extraYAML
	cfgPath := writeFile(t, dir, "config.yaml", cfg)

	c := newCLI()
	c.configPath = cfgPath
	c.newGenerator = func(ctx context.Context, cfg config.Config) (llm.TextGenerator, error) {
		return stubGenerator{}, nil
	}
	return c, dir
}

func execute(t *testing.T, c *cli, args ...string) (string, error) {
	t.Helper()
	root := c.rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", c.configPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTrialsCommandsChain(t *testing.T) {
	c, dir := newTestCLI(t, "")

	out, err := execute(t, c, "trials", "filter", "--conditions", "LEUK")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if !strings.Contains(out, "1 records") || !strings.Contains(out, "NCT001") {
		t.Fatalf("unexpected filter output:\n%s", out)
	}

	if out, err = execute(t, c, "trials", "extract"); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(out, "1 entries, 0 failed") {
		t.Fatalf("unexpected extract output:\n%s", out)
	}

	if out, err = execute(t, c, "trials", "normalize"); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !strings.Contains(out, "mode arithmetic") {
		t.Fatalf("unexpected normalize output:\n%s", out)
	}

	for _, name := range []string{export.LabValuesCSV, export.LabValuesJSON, export.DatabaseReadyCSV, export.DatabaseReadyJSON} {
		if _, err := os.Stat(filepath.Join(dir, "exports", name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}
	csv, err := os.ReadFile(filepath.Join(dir, "exports", export.DatabaseReadyCSV))
	if err != nil {
		t.Fatalf("read database-ready csv: %v", err)
	}
	if !strings.Contains(string(csv), "1.5") {
		t.Fatalf("expected the per-uL value scaled to 1.5, got:\n%s", csv)
	}

	if err := os.RemoveAll(filepath.Join(dir, "exports")); err != nil {
		t.Fatalf("remove exports: %v", err)
	}
	if out, err = execute(t, c, "trials", "export"); err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "1 entries") {
		t.Fatalf("unexpected export output:\n%s", out)
	}
	again, err := os.ReadFile(filepath.Join(dir, "exports", export.DatabaseReadyCSV))
	if err != nil {
		t.Fatalf("read re-exported csv: %v", err)
	}
	if string(again) != string(csv) {
		t.Fatalf("re-export differs:\n%s\nwant:\n%s", again, csv)
	}

	out, err = execute(t, c, "trials", "runs")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	for _, stage := range []string{"filter", "extract", "normalize"} {
		if !strings.Contains(out, stage) {
			t.Fatalf("runs output missing %s:\n%s", stage, out)
		}
	}
}

func TestExtractWithoutFilterRunFails(t *testing.T) {
	c, _ := newTestCLI(t, "")
	if _, err := execute(t, c, "trials", "extract"); err == nil {
		t.Fatal("expected extract without a filter run to fail")
	}
}

func TestExportWithoutNormalizationRunFails(t *testing.T) {
	c, _ := newTestCLI(t, "")
	if _, err := execute(t, c, "trials", "export"); err == nil {
		t.Fatal("expected export without a normalization run to fail")
	}
}

func TestMissingConfigFileFails(t *testing.T) {
	c, dir := newTestCLI(t, "")
	c.configPath = filepath.Join(dir, "nope.yaml")
	if _, err := execute(t, c, "trials", "runs"); err == nil {
		t.Fatal("expected error for missing --config file")
	}
}

func scheduleInputs(t *testing.T, dir string) (string, string) {
	t.Helper()
	baseline := writeFile(t, dir, "baseline.csv",
		"Project,Project (child),Project Status,Baseline,Baseline Status,Activity,Activity (child),Baseline Start Date,Baseline Finish Date\n"+
			"P1,c,Active,2,Approved,00.01,x,2024-01-01,2024-02-01\n"+
			"P1,c,Active,2,Approved,00.03,x,2024-03-01,2024-06-01\n")
	current := writeFile(t, dir, "current.csv",
		"Project ID,Feasibility Start,Feasibility Finish,Design Start,Design Finish,Execution Start,Execution Finish,Closure Start,Closure Finish\n"+
			"P1,2024-01-11,2024-02-01,,,2024-03-01,,,\n")
	return baseline, current
}

func TestScheduleCompareNotifies(t *testing.T) {
	c, dir := newTestCLI(t, "slack_bot_token: xoxb-test\nslack_channel_id: C123\n")
	fake := &fakeNotifier{}
	c.newNotifier = func(config.Config) notifier { return fake }
	baseline, current := scheduleInputs(t, dir)

	out, err := execute(t, c, "schedule", "compare", baseline, current, "--notify")
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if !strings.Contains(out, "LN vs CLB comparison: 4 rows") {
		t.Fatalf("unexpected compare output:\n%s", out)
	}
	if len(fake.posts) != 1 {
		t.Fatalf("expected one summary post, got %v", fake.posts)
	}
	want := map[string]bool{export.ChartsFile: true, export.ComparisonFile: true}
	if len(fake.uploads) != 2 || !want[fake.uploads[0]] || !want[fake.uploads[1]] {
		t.Fatalf("unexpected uploads %v", fake.uploads)
	}

	out, err = execute(t, c, "schedule", "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "cli") || !strings.Contains(out, "current.csv") {
		t.Fatalf("unexpected history output:\n%s", out)
	}
}

func TestScheduleCompareNotifyNeedsSlack(t *testing.T) {
	c, dir := newTestCLI(t, "")
	baseline, current := scheduleInputs(t, dir)
	if _, err := execute(t, c, "schedule", "compare", baseline, current, "--notify"); err == nil {
		t.Fatal("expected --notify without slack config to fail")
	}
}

func TestScheduleBaselineAndPivot(t *testing.T) {
	c, dir := newTestCLI(t, "")
	baseline, current := scheduleInputs(t, dir)

	out, err := execute(t, c, "schedule", "baseline", baseline)
	if err != nil || !strings.Contains(out, "Baseline: 2 rows") {
		t.Fatalf("baseline: err=%v output:\n%s", err, out)
	}
	out, err = execute(t, c, "schedule", "pivot", current)
	if err != nil || !strings.Contains(out, "Pivot: 4 rows") {
		t.Fatalf("pivot: err=%v output:\n%s", err, out)
	}
}

func TestWatchRequiresSchedule(t *testing.T) {
	c, _ := newTestCLI(t, "")
	if _, err := execute(t, c, "schedule", "watch"); err == nil || !strings.Contains(err.Error(), "watch_schedule") {
		t.Fatalf("expected watch_schedule error, got %v", err)
	}
}

func TestWatchRequiresPaths(t *testing.T) {
	c, _ := newTestCLI(t, "watch_schedule: \"0 7 * * 1-5\"\n")
	if _, err := execute(t, c, "schedule", "watch"); err == nil || !strings.Contains(err.Error(), "watch_baseline_path") {
		t.Fatalf("expected watch path error, got %v", err)
	}
}

func TestWatchLoopRunsTicksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var waits []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) > 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}
	ticks := 0
	tick := func(context.Context) error {
		ticks++
		if ticks == 2 {
			return errors.New("workbook locked")
		}
		return nil
	}

	if err := watchLoop(ctx, cron.Every(time.Hour), time.UTC, sleep, tick); err != nil {
		t.Fatalf("watchLoop returned error: %v", err)
	}
	if ticks != 3 {
		t.Fatalf("expected 3 ticks despite a failure, got %d", ticks)
	}
	for _, w := range waits {
		if w <= 0 || w > time.Hour {
			t.Fatalf("unexpected wait %s", w)
		}
	}
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
