package selector

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Locator resolves a selector to a match count. browser.Page satisfies this
// through a thin adapter in the runner.
type Locator interface {
	CountMatches(ctx context.Context, sel Resilient) (int, error)
}

// HealResult reports the outcome of one element lookup attempt.
type HealResult struct {
	Found    bool
	Healed   bool
	Used     Resilient
	Original *Resilient
	Message  string
}

// Healer walks locator chains in trust order, falling back past selectors
// that no longer resolve.
type Healer struct {
	logger *zap.Logger
}

// NewHealer constructs a Healer.
func NewHealer(logger *zap.Logger) *Healer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Healer{logger: logger}
}

// FindElement tries each selector in the chain until one resolves to at least
// one element. A resolution error on a candidate counts as not-found and the
// walk continues; it never aborts the chain. The first candidate succeeding
// means no healing happened; any later candidate succeeding reports a heal
// against the chain head.
func (h *Healer) FindElement(ctx context.Context, page Locator, chain []Resilient) HealResult {
	for i, sel := range chain {
		count, err := page.CountMatches(ctx, sel)
		if err != nil {
			h.logger.Debug("selector resolution failed, trying next candidate",
				zap.String("selector", sel.Describe()),
				zap.Error(err),
			)
			continue
		}
		if count == 0 {
			continue
		}
		if i == 0 {
			return HealResult{Found: true, Used: sel}
		}
		original := chain[0]
		return HealResult{
			Found:    true,
			Healed:   true,
			Used:     sel,
			Original: &original,
			Message: fmt.Sprintf("Selector healed: preferred %s failed, fell back to %s",
				original.Describe(), sel.Describe()),
		}
	}
	return HealResult{Found: false}
}
