package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
	"go.uber.org/zap"

	"github.com/skyhookqa/skyhook/internal/crawl"
	"github.com/skyhookqa/skyhook/internal/llm"
)

// Options tunes test synthesis.
type Options struct {
	// IgnoreAPIGlobs skips API endpoints whose URL matches any pattern.
	IgnoreAPIGlobs []string
	// VisualExcludeRoutes skips visual cases for the listed routes.
	VisualExcludeRoutes []string
	// MaxFunctionalPerPage caps functional cases per page. Zero means no cap.
	MaxFunctionalPerPage int
}

// Generator synthesizes test cases from a site model. The step plan is
// derived deterministically from the model; the text-generation client only
// produces test code and component classifications, so a nil client still
// yields runnable cases.
type Generator struct {
	client    llm.Client
	opts      Options
	ignoreAPI []glob.Glob
	logger    *zap.Logger
}

// New returns a generator. client may be nil to skip code generation.
// Malformed ignore globs are dropped with a warning.
func New(client llm.Client, opts Options, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{client: client, opts: opts, logger: logger}
	for _, pattern := range opts.IgnoreAPIGlobs {
		compiled, err := glob.Compile(pattern)
		if err != nil {
			logger.Warn("invalid api ignore pattern", zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		g.ignoreAPI = append(g.ignoreAPI, compiled)
	}
	return g
}

// Generate builds the test cases for one crawled site.
func (g *Generator) Generate(ctx context.Context, site *crawl.SiteMap) ([]TestCase, error) {
	if site == nil {
		return nil, fmt.Errorf("generate: nil site model")
	}

	var cases []TestCase
	names := map[string]int{}

	for _, page := range site.Pages {
		cases = append(cases, g.functionalCases(page, names)...)
		if vc, ok := g.visualCase(page, names); ok {
			cases = append(cases, vc)
		}
	}
	for _, endpoint := range site.APIEndpoints {
		if g.ignoredAPI(endpoint) {
			continue
		}
		cases = append(cases, TestCase{
			Name:     uniqueName(names, "api-"+slug(endpoint)),
			Category: CategoryAPI,
			Steps:    []TestStep{{Action: "http_get", Target: endpoint}},
		})
	}

	for i := range cases {
		code, err := g.generateCode(ctx, cases[i])
		if err != nil {
			// Code is an enrichment; the step plan alone is executable.
			g.logger.Warn("test code generation failed",
				zap.String("case", cases[i].Name),
				zap.Error(err),
			)
			continue
		}
		cases[i].Code = code
	}

	g.logger.Info("test cases generated",
		zap.Int("total", len(cases)),
		zap.Int("pages", len(site.Pages)),
	)
	return cases, nil
}

func (g *Generator) functionalCases(page crawl.PageData, names map[string]int) []TestCase {
	var out []TestCase
	for _, it := range page.Interactions {
		if len(it.Selectors) == 0 {
			continue
		}
		if g.opts.MaxFunctionalPerPage > 0 && len(out) >= g.opts.MaxFunctionalPerPage {
			break
		}

		action := "click"
		value := ""
		switch it.Kind {
		case "fill":
			action, value = "fill", "test input"
		case "select", "check", "click":
			action = "click"
		default:
			continue
		}

		label := it.Label
		if label == "" {
			label = it.Selectors[0].Value
		}
		steps := []TestStep{
			{Action: "navigate", Target: page.URL},
			{Action: action, Target: label, Value: value, Selectors: it.Selectors},
			{Action: "assert_visible", Target: label, Selectors: it.Selectors},
		}
		out = append(out, TestCase{
			Name:     uniqueName(names, fmt.Sprintf("%s-%s-on-%s", action, slug(label), slug(page.Path))),
			Category: CategoryFunctional,
			Route:    page.Path,
			Steps:    steps,
		})
	}
	return out
}

func (g *Generator) visualCase(page crawl.PageData, names map[string]int) (TestCase, bool) {
	for _, route := range g.opts.VisualExcludeRoutes {
		if route == page.Path {
			return TestCase{}, false
		}
	}
	return TestCase{
		Name:     uniqueName(names, "visual-"+slug(page.Path)),
		Category: CategoryVisual,
		Route:    page.Path,
		Steps: []TestStep{
			{Action: "navigate", Target: page.URL},
			{Action: "compare_screenshot", Target: page.Path},
		},
	}, true
}

func (g *Generator) ignoredAPI(endpoint string) bool {
	for _, pattern := range g.ignoreAPI {
		if pattern.Match(endpoint) {
			return true
		}
	}
	return false
}

func (g *Generator) generateCode(ctx context.Context, tc TestCase) (string, error) {
	if g.client == nil {
		return "", nil
	}
	payload, err := json.MarshalIndent(tc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal test case: %w", err)
	}
	code, err := g.client.Complete(ctx, codeSystemPrompt, string(payload))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}

// classifiedComponent is one entry of the classifier's JSON response.
type classifiedComponent struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
}

// ClassifyComponents asks the model to assign a type to each component and
// returns the types indexed like the input. Components the model skipped keep
// their original type.
func (g *Generator) ClassifyComponents(ctx context.Context, comps []crawl.ComponentInfo) ([]string, error) {
	types := make([]string, len(comps))
	for i, c := range comps {
		types[i] = c.Type
	}
	if g.client == nil || len(comps) == 0 {
		return types, nil
	}

	type compView struct {
		Index int    `json:"index"`
		Type  string `json:"type"`
		Label string `json:"label,omitempty"`
	}
	views := make([]compView, len(comps))
	for i, c := range comps {
		views[i] = compView{Index: i, Type: c.Type, Label: c.Label}
	}
	payload, err := json.Marshal(views)
	if err != nil {
		return nil, fmt.Errorf("marshal components: %w", err)
	}

	resp, err := g.client.Complete(ctx, classifySystemPrompt, string(payload))
	if err != nil {
		return nil, fmt.Errorf("classify components: %w", err)
	}
	var parsed []classifiedComponent
	if err := llm.DecodeJSON(resp, &parsed); err != nil {
		return nil, fmt.Errorf("classify components: %w", err)
	}
	for _, p := range parsed {
		if p.Index >= 0 && p.Index < len(types) && p.Type != "" {
			types[p.Index] = p.Type
		}
	}
	return types, nil
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	s = strings.ToLower(s)
	s = slugStrip.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "root"
	}
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}

func uniqueName(names map[string]int, base string) string {
	names[base]++
	if names[base] == 1 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, names[base])
}
