package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/skyhookqa/skyhook/internal/llm"
)

const plannerSystemPrompt = `You are the retry planner for a web QA pipeline.

A pipeline stage failed. You will receive the stage name, the error message,
and the attempt number. Decide whether retrying could plausibly succeed, and
optionally adjust run parameters for the next attempt.

Transient failures (timeouts, rate limits, flaky network, element races) are
worth retrying, often with a longer timeout or reduced depth. Permanent
failures (invalid URL, authentication, malformed configuration) are not.

Respond ONLY with JSON:
{"should_retry": bool, "reason": "short explanation", "adjusted_params": {...}}

adjusted_params may include keys like "page_timeout_seconds", "max_depth",
or "max_parallelism". Omit it when no adjustment helps.`

// permanentMarkers short-circuits the model for failures that are never
// retry-eligible, keeping them out of the token budget.
var permanentMarkers = []string{
	"invalid url",
	"unsafe url",
	"unsupported scheme",
	"unauthorized",
	"forbidden",
	"malformed",
	"no handler for stage",
}

// LLMPlanner analyzes stage failures with the text-generation capability.
type LLMPlanner struct {
	client llm.Client
	logger *zap.Logger
}

// NewLLMPlanner returns a planner backed by the given client.
func NewLLMPlanner(client llm.Client, logger *zap.Logger) *LLMPlanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMPlanner{client: client, logger: logger}
}

// AnalyzeFailure classifies the failure and produces a retry decision.
// Known-permanent failures are decided locally without a model call.
func (p *LLMPlanner) AnalyzeFailure(ctx context.Context, stage Stage, failure error, attempt int) (Decision, error) {
	msg := failure.Error()
	lower := strings.ToLower(msg)
	for _, marker := range permanentMarkers {
		if strings.Contains(lower, marker) {
			return Decision{ShouldRetry: false, Reason: "permanent failure: " + marker}, nil
		}
	}

	payload, err := json.Marshal(map[string]any{
		"stage":   string(stage),
		"error":   msg,
		"attempt": attempt,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("marshal failure context: %w", err)
	}

	resp, err := p.client.Complete(ctx, plannerSystemPrompt, string(payload))
	if err != nil {
		return Decision{}, fmt.Errorf("planner completion: %w", err)
	}
	var decision Decision
	if err := llm.DecodeJSON(resp, &decision); err != nil {
		return Decision{}, fmt.Errorf("planner response: %w", err)
	}

	p.logger.Debug("planner decision",
		zap.String("stage", string(stage)),
		zap.Bool("should_retry", decision.ShouldRetry),
		zap.String("reason", decision.Reason),
	)
	return decision, nil
}
