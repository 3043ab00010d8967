package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

type openAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int
}

func newOpenAIClient(model string, maxTokens int) (*openAIClient, error) {
	apiKey, err := apiKeyFromEnv("SKYHOOK_OPENAI_KEY", "OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}

	if model == "" {
		model = "gpt-4o"
	}

	return &openAIClient{
		client:    openai.NewClient(apiKey),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (c *openAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}
