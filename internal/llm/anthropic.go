package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

func newAnthropicClient(model string, maxTokens int) (*anthropicClient, error) {
	apiKey, err := apiKeyFromEnv("SKYHOOK_ANTHROPIC_KEY", "ANTHROPIC_API_KEY")
	if err != nil {
		return nil, err
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}

	return &anthropicClient{
		client:    &client,
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (c *anthropicClient) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("empty response from anthropic")
}
