// Package selector implements resilient element locator chains and the
// self-healing lookup walk used during test execution.
package selector

import (
	"encoding/json"
	"fmt"
)

// Strategy is a closed set of element location strategies, ordered by trust.
type Strategy int

// Strategies in trust-ranked order. A chain is always sorted so higher-trust
// strategies are tried first.
const (
	StrategyTestID Strategy = iota
	StrategyRole
	StrategyText
	StrategySemantic
	StrategyStructural
	StrategyCSS
	strategyUnknown
)

var strategyNames = map[Strategy]string{
	StrategyTestID:     "test_id",
	StrategyRole:       "role",
	StrategyText:       "text",
	StrategySemantic:   "semantic",
	StrategyStructural: "structural",
	StrategyCSS:        "css",
}

var strategyValues = map[string]Strategy{
	"test_id":    StrategyTestID,
	"role":       StrategyRole,
	"text":       StrategyText,
	"semantic":   StrategySemantic,
	"structural": StrategyStructural,
	"css":        StrategyCSS,
}

// String returns the wire name of the strategy.
func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

// Rank returns the sort position; unknown strategies sort last.
func (s Strategy) Rank() int {
	if _, ok := strategyNames[s]; ok {
		return int(s)
	}
	return int(strategyUnknown)
}

// ParseStrategy maps a wire string back to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	if s, ok := strategyValues[name]; ok {
		return s, nil
	}
	return strategyUnknown, fmt.Errorf("unknown selector strategy %q", name)
}

// MarshalJSON encodes the strategy as its wire string.
func (s Strategy) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the strategy from its wire string.
func (s *Strategy) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("decode selector strategy: %w", err)
	}
	parsed, err := ParseStrategy(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Resilient is one alternative way of locating a UI element.
type Resilient struct {
	Strategy Strategy `json:"strategy"`
	Value    string   `json:"value"`
	Name     string   `json:"name,omitempty"`
}

// Describe renders the selector as STRATEGY(VALUE) for log and heal messages.
func (r Resilient) Describe() string {
	return fmt.Sprintf("%s(%s)", r.Strategy, r.Value)
}
