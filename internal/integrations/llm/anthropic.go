package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"trialdesk/internal/logging"
)

type anthropicGenerator struct {
	client anthropic.Client
	model  string
	usageMeter
}

func newAnthropicGenerator(apiKey, model string, opts ...option.RequestOption) *anthropicGenerator {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(externalHTTPClient),
		// Retries are handled by WithRetry so every provider backs off the same way.
		option.WithMaxRetries(0),
	}, opts...)
	return &anthropicGenerator{client: anthropic.NewClient(opts...), model: model}
}

func (g *anthropicGenerator) Generate(ctx context.Context, prompt, input string) (string, error) {
	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: prompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userTurn(input))),
		},
	})
	if err != nil {
		logging.L().Warnf("llm anthropic error: %v", err)
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", classifyStatus("anthropic", apiErr.StatusCode, err)
		}
		return "", classifyTransport("anthropic", err)
	}
	usage := LLMUsage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}
	g.add(usage)

	for _, block := range message.Content {
		if block.Type == "text" {
			logging.L().Debugf("llm anthropic response size=%d tokens_in=%d tokens_out=%d cache_create=%d cache_read=%d", len(block.Text), usage.InputTokens, usage.OutputTokens, usage.CacheCreationInputTokens, usage.CacheReadInputTokens)
			return cleanReply(block.Text), nil
		}
	}
	return "", malformed("anthropic", "no text content in response")
}

var _ TextGenerator = (*anthropicGenerator)(nil)

func (g *anthropicGenerator) String() string {
	return fmt.Sprintf("anthropic(%s)", g.model)
}
