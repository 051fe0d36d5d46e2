package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"google.golang.org/genai"
)

func newGeminiTestGenerator(t *testing.T, server *httptest.Server) *geminiGenerator {
	t.Helper()
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "gemini-test",
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  server.Client(),
		HTTPOptions: genai.HTTPOptions{BaseURL: server.URL},
	})
	if err != nil {
		t.Fatalf("genai.NewClient: %v", err)
	}
	return &geminiGenerator{client: client, model: "gemini-test"}
}

func TestGeminiGenerator(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "models/gemini-test:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"` + "```json\\n{\\\"a\\\": 1}\\n```" + `"}]}}],` +
			`"usageMetadata":{"promptTokenCount":6,"candidatesTokenCount":2}}`))
	}))
	defer server.Close()

	gen := newGeminiTestGenerator(t, server)
	reply, err := gen.Generate(context.Background(), "system prompt", "trial text")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if reply != `{"a": 1}` {
		t.Fatalf("expected fenced reply to be cleaned, got %q", reply)
	}
	raw, _ := json.Marshal(body)
	if !strings.Contains(string(raw), "system prompt") || !strings.Contains(string(raw), `Text: trial text\nAnswer:`) {
		t.Fatalf("request is missing the prompt or the user turn: %s", raw)
	}
	if usage := UsageOf(gen); usage.TotalTokens() != 8 {
		t.Fatalf("expected 8 tokens of usage, got %d", usage.TotalTokens())
	}
}

func TestGeminiGeneratorClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{"resource exhausted", 429, `{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`, KindRateLimit},
		{"server error", 503, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`, KindNetwork},
		{"bad request", 400, `{"error":{"code":400,"message":"bad model","status":"INVALID_ARGUMENT"}}`, KindRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newGeminiTestGenerator(t, server).Generate(context.Background(), "p", "in")
			var se *ServiceError
			if !errors.As(err, &se) || se.Kind != tt.want || se.StatusCode != tt.status {
				t.Fatalf("expected %s service error with status %d, got %v", tt.want, tt.status, err)
			}
		})
	}
}

func TestClassifyGeminiErrorStatusName(t *testing.T) {
	se := classifyGeminiError(genai.APIError{Code: 400, Status: "RESOURCE_EXHAUSTED", Message: "quota"})
	if se.Kind != KindRateLimit || !se.Retryable() {
		t.Fatalf("expected retryable rate limit, got %+v", se)
	}
	if se := classifyGeminiError(&genai.APIError{Code: 500}); se.Kind != KindNetwork {
		t.Fatalf("expected network kind for pointer APIError, got %+v", se)
	}
}

func TestAnthropicGenerator(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "sk-ant-test" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",` +
			`"content":[{"type":"text","text":"{\"b\": 2}"}],"stop_reason":"end_turn",` +
			`"usage":{"input_tokens":7,"output_tokens":4,"cache_read_input_tokens":5}}`))
	}))
	defer server.Close()

	gen := newAnthropicGenerator("sk-ant-test", "claude-test", option.WithBaseURL(server.URL), option.WithHTTPClient(server.Client()))
	reply, err := gen.Generate(context.Background(), "system prompt", "trial text")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if reply != `{"b": 2}` {
		t.Fatalf("unexpected reply %q", reply)
	}
	raw, _ := json.Marshal(body["system"])
	if !strings.Contains(string(raw), "system prompt") || !strings.Contains(string(raw), "ephemeral") {
		t.Fatalf("expected a cached system prompt, got %s", raw)
	}
	usage := UsageOf(gen)
	if usage.TotalTokens() != 11 || usage.CacheReadInputTokens != 5 {
		t.Fatalf("unexpected usage %+v", usage)
	}
}

func TestAnthropicGeneratorClassifiesStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   ErrorKind
	}{
		{"rate limited", 429, KindRateLimit},
		{"overloaded", 529, KindNetwork},
		{"unauthorized", 401, KindRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"nope"}}`))
			}))
			defer server.Close()

			gen := newAnthropicGenerator("sk-ant-test", "claude-test", option.WithBaseURL(server.URL), option.WithHTTPClient(server.Client()))
			_, err := gen.Generate(context.Background(), "p", "in")
			var se *ServiceError
			if !errors.As(err, &se) || se.Kind != tt.want || se.StatusCode != tt.status {
				t.Fatalf("expected %s service error with status %d, got %v", tt.want, tt.status, err)
			}
			if n := calls.Load(); n != 1 {
				t.Fatalf("the SDK should not retry on its own, got %d calls", n)
			}
		})
	}
}
