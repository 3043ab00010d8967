// Package llm wraps the text-generation providers behind a single client
// interface so callers never touch vendor SDKs directly.
package llm

import (
	"context"
	"fmt"
	"os"
)

// Client produces a completion for a system and user prompt pair.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// New builds a client for the named provider.
func New(provider, model string, maxTokens int) (Client, error) {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	switch provider {
	case "anthropic", "claude":
		return newAnthropicClient(model, maxTokens)
	case "openai", "gpt":
		return newOpenAIClient(model, maxTokens)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s (supported: anthropic, openai)", provider)
	}
}

func apiKeyFromEnv(names ...string) (string, error) {
	for _, name := range names {
		if key := os.Getenv(name); key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("%s environment variable required", names[0])
}
