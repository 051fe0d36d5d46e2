package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"trialdesk/internal/config"
	"trialdesk/internal/httpx"
)

type Config = config.Config

var externalHTTPClient = httpx.ExternalHTTPClient()

const defaultGeminiModel = "gemini-2.0-flash"
const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "gpt-4o-mini"

// TextGenerator is the opaque generative-text capability: a fixed
// instruction prompt plus one input text in, reply text out.
type TextGenerator interface {
	Generate(ctx context.Context, prompt, input string) (string, error)
}

type LLMUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u LLMUsage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *LLMUsage) Add(other LLMUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

// usageMeter accumulates token usage across concurrent calls.
type usageMeter struct {
	mu    sync.Mutex
	total LLMUsage
}

func (m *usageMeter) add(u LLMUsage) {
	m.mu.Lock()
	m.total.Add(u)
	m.mu.Unlock()
}

func (m *usageMeter) Usage() LLMUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// UsageReporter is implemented by generators that count tokens.
type UsageReporter interface {
	Usage() LLMUsage
}

// UsageOf returns the accumulated usage of g, unwrapping the retry layer.
func UsageOf(g TextGenerator) LLMUsage {
	if r, ok := g.(*retryingGenerator); ok {
		g = r.next
	}
	if u, ok := g.(UsageReporter); ok {
		return u.Usage()
	}
	return LLMUsage{}
}

// NewGenerator builds the configured provider wrapped with retries.
func NewGenerator(ctx context.Context, cfg Config) (TextGenerator, error) {
	if err := cfg.ValidateLLM(); err != nil {
		return nil, err
	}
	var (
		gen TextGenerator
		err error
	)
	switch cfg.LLMProvider {
	case "anthropic":
		gen = newAnthropicGenerator(cfg.AnthropicAPIKey, modelOrDefault(cfg.LLMModel, defaultAnthropicModel))
	case "openai":
		gen = newOpenAIGenerator(cfg.OpenAIAPIKey, modelOrDefault(cfg.LLMModel, defaultOpenAIModel))
	case "gemini":
		gen, err = newGeminiGenerator(ctx, cfg.GeminiAPIKey, modelOrDefault(cfg.LLMModel, defaultGeminiModel))
	default:
		err = fmt.Errorf("unknown llm_provider '%s'", cfg.LLMProvider)
	}
	if err != nil {
		return nil, err
	}
	return WithRetry(gen, cfg.LLMMaxRetries, cfg.RetryBackoff()), nil
}

func modelOrDefault(model, fallback string) string {
	if strings.TrimSpace(model) == "" {
		return fallback
	}
	return model
}

// userTurn wraps one record's text for the user message. The instruction
// prompt travels separately as the system instruction.
func userTurn(input string) string {
	return "Text: " + input + "\nAnswer:"
}

// cleanReply strips a markdown code fence around a reply.
func cleanReply(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
