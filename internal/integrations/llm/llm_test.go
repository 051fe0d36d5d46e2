package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trialdesk/internal/domain"
)

// fakeGenerator replies from a function and records what it was asked.
type fakeGenerator struct {
	mu       sync.Mutex
	inputs   []string
	inFlight int32
	peak     int32
	reply    func(input string) (string, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt, input string) (string, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&f.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&f.peak, peak, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()
	return f.reply(input)
}

func TestGenerateAllKeepsOrderAndLimit(t *testing.T) {
	gen := &fakeGenerator{reply: func(input string) (string, error) {
		return "reply:" + input, nil
	}}
	var inputs []string
	for i := 0; i < 12; i++ {
		inputs = append(inputs, fmt.Sprintf("in%d", i))
	}

	results := GenerateAll(context.Background(), gen, "prompt", inputs, 3)

	if len(results) != len(inputs) {
		t.Fatalf("expected %d results, got %d", len(inputs), len(results))
	}
	for i, res := range results {
		if res.Err != nil || res.Reply != "reply:"+inputs[i] {
			t.Fatalf("result %d out of order: %+v", i, res)
		}
	}
	if peak := atomic.LoadInt32(&gen.peak); peak > 3 {
		t.Fatalf("expected at most 3 calls in flight, saw %d", peak)
	}
}

func TestBatchConcurrencyLimit(t *testing.T) {
	tests := []struct {
		total, configured, want int
	}{
		{total: 10, configured: 4, want: 4},
		{total: 2, configured: 4, want: 2},
		{total: 10, configured: 0, want: 1},
		{total: 0, configured: 4, want: 4},
	}
	for _, tt := range tests {
		if got := batchConcurrencyLimit(tt.total, tt.configured); got != tt.want {
			t.Fatalf("batchConcurrencyLimit(%d, %d) = %d, want %d", tt.total, tt.configured, got, tt.want)
		}
	}
}

func TestExtractLabValuesMarksFailuresPerRecord(t *testing.T) {
	gen := &fakeGenerator{reply: func(input string) (string, error) {
		if strings.Contains(input, "NCT2") {
			return "", &ServiceError{Provider: "fake", Kind: KindRejected, StatusCode: 400, Err: errors.New("blocked")}
		}
		return `{"Hemoglobin required": ["greater than", "9 g/dL"]}`, nil
	}}
	records := []domain.TrialRecord{
		domain.TrialRecord{NCTId: "NCT1"}.WithConcatenatedText(),
		domain.TrialRecord{NCTId: "NCT2"}.WithConcatenatedText(),
		domain.TrialRecord{NCTId: "NCT3"}.WithConcatenatedText(),
	}

	entries := ExtractLabValues(context.Background(), gen, ExtractionPrompt, records, 2)

	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"NCT1", "NCT2", "NCT3"} {
		if entries[i].NCTId != want {
			t.Fatalf("entry %d has id %s, want %s", i, entries[i].NCTId, want)
		}
	}
	if !entries[1].Failed() || entries[1].ErrorKind != string(KindRejected) || entries[1].LabValues != "" {
		t.Fatalf("expected NCT2 to carry a rejected marker, got %+v", entries[1])
	}
	if entries[0].Failed() || !strings.Contains(entries[0].LabValues, "Hemoglobin") {
		t.Fatalf("unexpected NCT1 entry: %+v", entries[0])
	}
}

func TestNormalizeWithModelSkipsNoneAndFailures(t *testing.T) {
	gen := &fakeGenerator{reply: func(input string) (string, error) {
		if input == "no-anc" {
			return "None", nil
		}
		return `{"ANC": [1.5, 9.9]}`, nil
	}}
	entries := []domain.LabThresholdEntry{
		{NCTId: "A", LabValues: "has-anc"},
		{NCTId: "B", LabValues: "no-anc"},
		{NCTId: "C", ErrorKind: "network", Error: "timeout"},
	}

	out := NormalizeWithModel(context.Background(), gen, NormalizationPrompt, entries, 2)

	if len(out) != 1 || out[0].NCTId != "A" {
		t.Fatalf("expected only A to produce output, got %+v", out)
	}
	if len(gen.inputs) != 2 {
		t.Fatalf("failed extraction should not be sent to the model, sent %v", gen.inputs)
	}
}

func TestWithRetryRetriesTransientErrors(t *testing.T) {
	calls := 0
	gen := &fakeGenerator{reply: func(string) (string, error) {
		calls++
		if calls < 3 {
			return "", &ServiceError{Provider: "fake", Kind: KindRateLimit, StatusCode: 429, Err: errors.New("slow down")}
		}
		return "ok", nil
	}}
	r := WithRetry(gen, 3, time.Millisecond).(*retryingGenerator)
	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	reply, err := r.Generate(context.Background(), "p", "in")
	if err != nil || reply != "ok" {
		t.Fatalf("expected success after retries, got %q err=%v", reply, err)
	}
	if len(slept) != 2 || slept[1] != 2*slept[0] {
		t.Fatalf("expected exponential backoff, got %v", slept)
	}
}

func TestWithRetryStopsOnRejected(t *testing.T) {
	calls := 0
	gen := &fakeGenerator{reply: func(string) (string, error) {
		calls++
		return "", &ServiceError{Provider: "fake", Kind: KindRejected, StatusCode: 400, Err: errors.New("bad request")}
	}}
	r := WithRetry(gen, 5, 0)
	if _, err := r.Generate(context.Background(), "p", "in"); KindOf(err) != KindRejected {
		t.Fatalf("expected rejected error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("rejected errors must not be retried, got %d calls", calls)
	}
}

func TestWithRetryGivesUpAfterMax(t *testing.T) {
	calls := 0
	gen := &fakeGenerator{reply: func(string) (string, error) {
		calls++
		return "", &ServiceError{Provider: "fake", Kind: KindNetwork, Err: errors.New("reset")}
	}}
	r := WithRetry(gen, 2, 0)
	if _, err := r.Generate(context.Background(), "p", "in"); KindOf(err) != KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 1 call plus 2 retries, got %d", calls)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		err    error
		want   ErrorKind
	}{
		{status: 429, err: errors.New("too many"), want: KindRateLimit},
		{status: 503, err: errors.New("unavailable"), want: KindNetwork},
		{status: 408, err: errors.New("timeout"), want: KindNetwork},
		{status: 400, err: errors.New("invalid"), want: KindRejected},
		{status: 403, err: errors.New("quota exceeded for project"), want: KindRateLimit},
	}
	for _, tt := range tests {
		if got := classifyStatus("x", tt.status, tt.err).Kind; got != tt.want {
			t.Fatalf("classifyStatus(%d, %v) = %s, want %s", tt.status, tt.err, got, tt.want)
		}
	}
	if got := classifyTransport("x", context.DeadlineExceeded).Kind; got != KindNetwork {
		t.Fatalf("deadline should be a network error, got %s", got)
	}
}

func TestOpenAIGenerator(t *testing.T) {
	var got openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Fatalf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` + "```json\\n{\\\"a\\\": 1}\\n```" + `"}}],"usage":{"prompt_tokens":7,"completion_tokens":3}}`))
	}))
	defer server.Close()

	gen := newOpenAIGenerator("sk-test", "gpt-test")
	gen.baseURL = server.URL
	gen.client = server.Client()

	reply, err := gen.Generate(context.Background(), "system prompt", "trial text")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if reply != `{"a": 1}` {
		t.Fatalf("expected fenced reply to be cleaned, got %q", reply)
	}
	if len(got.Messages) != 2 || got.Messages[0].Content != "system prompt" || got.Messages[1].Content != "Text: trial text\nAnswer:" {
		t.Fatalf("unexpected request messages: %+v", got.Messages)
	}
	if usage := UsageOf(gen); usage.TotalTokens() != 10 {
		t.Fatalf("expected 10 tokens of usage, got %d", usage.TotalTokens())
	}
}

func TestOpenAIGeneratorClassifiesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	}))
	defer server.Close()

	gen := newOpenAIGenerator("sk-test", "gpt-test")
	gen.baseURL = server.URL
	gen.client = server.Client()

	_, err := gen.Generate(context.Background(), "p", "in")
	var se *ServiceError
	if !errors.As(err, &se) || se.Kind != KindRateLimit || se.StatusCode != 429 {
		t.Fatalf("expected rate limit service error, got %v", err)
	}
}

func TestLoadPrompt(t *testing.T) {
	if p, err := LoadPrompt("", ExtractionPrompt); err != nil || p != ExtractionPrompt {
		t.Fatalf("expected builtin prompt, err=%v", err)
	}
	if !strings.Contains(ExtractionPrompt, "Bilirubin required") || !strings.Contains(NormalizationPrompt, "9.9") {
		t.Fatal("embedded prompts look incomplete")
	}
	if _, err := LoadPrompt("/no/such/prompt.txt", ExtractionPrompt); err == nil {
		t.Fatal("expected error for missing prompt file")
	}
}

func TestCleanReply(t *testing.T) {
	if got := cleanReply("```json\n{\"x\": 1}\n```"); got != `{"x": 1}` {
		t.Fatalf("unexpected cleaned reply %q", got)
	}
	if got := cleanReply("  None "); got != "None" {
		t.Fatalf("unexpected cleaned reply %q", got)
	}
}
