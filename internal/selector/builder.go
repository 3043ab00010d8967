package selector

import (
	"fmt"
	"sort"
	"strings"
)

const maxTextSelectorLen = 100

// Metadata carries the DOM facts a locator chain can be inferred from.
type Metadata struct {
	TestID    string
	Role      string
	RoleName  string
	Text      string
	AriaLabel string
	Tag       string
	ID        string
	Classes   []string
	CSSPath   string
}

// BuildChain merges a component's explicit selectors with selectors inferred
// from its metadata. Inferred selectors are added only for strategies not
// already present, duplicates by (strategy, value) are removed, and the result
// is sorted by strategy rank.
func BuildChain(explicit []Resilient, meta Metadata) []Resilient {
	chain := append([]Resilient(nil), explicit...)

	present := make(map[Strategy]bool, len(chain))
	for _, sel := range chain {
		present[sel.Strategy] = true
	}
	for _, inferred := range inferSelectors(meta) {
		if present[inferred.Strategy] {
			continue
		}
		chain = append(chain, inferred)
		present[inferred.Strategy] = true
	}

	chain = dedupe(chain)
	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].Strategy.Rank() < chain[j].Strategy.Rank()
	})
	return chain
}

func inferSelectors(meta Metadata) []Resilient {
	var out []Resilient
	if meta.TestID != "" {
		out = append(out, Resilient{Strategy: StrategyTestID, Value: meta.TestID})
	}
	if meta.Role != "" {
		out = append(out, Resilient{Strategy: StrategyRole, Value: meta.Role, Name: meta.RoleName})
	}
	if text := strings.TrimSpace(meta.Text); text != "" && len(text) < maxTextSelectorLen {
		out = append(out, Resilient{Strategy: StrategyText, Value: text})
	}
	if meta.AriaLabel != "" {
		out = append(out, Resilient{Strategy: StrategySemantic, Value: fmt.Sprintf(`[aria-label=%q]`, meta.AriaLabel)})
	}
	if meta.CSSPath != "" {
		out = append(out, Resilient{Strategy: StrategyStructural, Value: meta.CSSPath})
	}
	if css := directCSS(meta); css != "" {
		out = append(out, Resilient{Strategy: StrategyCSS, Value: css})
	}
	return out
}

func directCSS(meta Metadata) string {
	if meta.ID != "" {
		return "#" + meta.ID
	}
	if meta.Tag != "" && len(meta.Classes) > 0 {
		classes := meta.Classes
		if len(classes) > 2 {
			classes = classes[:2]
		}
		return meta.Tag + "." + strings.Join(classes, ".")
	}
	return ""
}

func dedupe(chain []Resilient) []Resilient {
	type key struct {
		strategy Strategy
		value    string
	}
	seen := make(map[key]bool, len(chain))
	out := chain[:0]
	for _, sel := range chain {
		k := key{sel.Strategy, sel.Value}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, sel)
	}
	return out
}
