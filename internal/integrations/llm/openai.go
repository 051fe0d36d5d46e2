package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"trialdesk/internal/logging"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type openAIGenerator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	usageMeter
}

func newOpenAIGenerator(apiKey, model string) *openAIGenerator {
	return &openAIGenerator{apiKey: apiKey, model: model, baseURL: defaultOpenAIBaseURL, client: externalHTTPClient}
}

func (g *openAIGenerator) Generate(ctx context.Context, prompt, input string) (string, error) {
	reqBody := openAIRequest{
		Model: g.model,
		Messages: []openAIMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: userTurn(input)},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		logging.L().Warnf("llm openai error: %v", err)
		return "", classifyTransport("openai", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransport("openai", fmt.Errorf("reading response: %w", err))
	}

	var openAIResp openAIResponse
	parseErr := json.Unmarshal(respBody, &openAIResp)

	if resp.StatusCode >= 400 {
		msg := http.StatusText(resp.StatusCode)
		if parseErr == nil && openAIResp.Error != nil {
			msg = openAIResp.Error.Message
		}
		logging.L().Warnf("llm openai api error status=%d: %s", resp.StatusCode, msg)
		return "", classifyStatus("openai", resp.StatusCode, fmt.Errorf("%s", msg))
	}
	if parseErr != nil {
		return "", malformed("openai", "parsing response: %v", parseErr)
	}
	if openAIResp.Error != nil {
		return "", classifyStatus("openai", resp.StatusCode, fmt.Errorf("%s", openAIResp.Error.Message))
	}
	if len(openAIResp.Choices) == 0 {
		return "", malformed("openai", "no choices in response")
	}

	usage := LLMUsage{}
	if openAIResp.Usage != nil {
		usage.InputTokens = openAIResp.Usage.PromptTokens
		usage.OutputTokens = openAIResp.Usage.CompletionTokens
	}
	g.add(usage)

	content := openAIResp.Choices[0].Message.Content
	logging.L().Debugf("llm openai response size=%d tokens_in=%d tokens_out=%d", len(content), usage.InputTokens, usage.OutputTokens)
	return cleanReply(content), nil
}
