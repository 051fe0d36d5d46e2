package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"trialdesk/internal/logging"
)

type geminiGenerator struct {
	client *genai.Client
	model  string
	usageMeter
}

func newGeminiGenerator(ctx context.Context, apiKey, model string) (*geminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: externalHTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &geminiGenerator{client: client, model: model}, nil
}

func (g *geminiGenerator) Generate(ctx context.Context, prompt, input string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(userTurn(input)), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt, genai.RoleUser),
	})
	if err != nil {
		logging.L().Warnf("llm gemini error: %v", err)
		return "", classifyGeminiError(err)
	}

	usage := LLMUsage{}
	if resp.UsageMetadata != nil {
		usage.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
		usage.CacheReadInputTokens = int64(resp.UsageMetadata.CachedContentTokenCount)
	}
	g.add(usage)

	text := resp.Text()
	if text == "" {
		return "", malformed("gemini", "no text content in response")
	}
	logging.L().Debugf("llm gemini response size=%d tokens_in=%d tokens_out=%d", len(text), usage.InputTokens, usage.OutputTokens)
	return cleanReply(text), nil
}

func classifyGeminiError(err error) *ServiceError {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		se := classifyStatus("gemini", apiErr.Code, err)
		if apiErr.Status == "RESOURCE_EXHAUSTED" {
			se.Kind = KindRateLimit
		}
		return se
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return classifyStatus("gemini", apiErrPtr.Code, err)
	}
	return classifyTransport("gemini", err)
}
