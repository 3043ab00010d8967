// Package runner executes an execution plan: suites run concurrently, cases
// within a suite run on the suite's worker pool, UI steps resolve elements
// through the self-healing selector chain.
package runner

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skyhookqa/skyhook/internal/browser"
	"github.com/skyhookqa/skyhook/internal/generate"
	"github.com/skyhookqa/skyhook/internal/metrics"
	"github.com/skyhookqa/skyhook/internal/schedule"
	"github.com/skyhookqa/skyhook/internal/selector"
	"github.com/skyhookqa/skyhook/internal/visual"
)

// Status is the outcome of one test case.
type Status string

// Case outcomes.
const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// TestResult records the outcome of one executed case.
type TestResult struct {
	Case      string            `json:"case"`
	Suite     string            `json:"suite"`
	Category  generate.Category `json:"category"`
	Status    Status            `json:"status"`
	Error     string            `json:"error,omitempty"`
	Healed    bool              `json:"healed"`
	HealNotes []string          `json:"heal_notes,omitempty"`
	Visual    *visual.Result    `json:"visual,omitempty"`
	Duration  time.Duration     `json:"duration"`
}

// Summary aggregates a run's results.
type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// Summarize counts outcomes across results.
func Summarize(results []TestResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// Options configures the runner's on-disk layout and HTTP behavior.
type Options struct {
	BaselineDir string
	CurrentDir  string
	DiffDir     string
	HTTPTimeout time.Duration
}

// Runner executes plans against a live browser.
type Runner struct {
	browser browser.Browser
	healer  *selector.Healer
	differ  *visual.Differ
	client  *http.Client
	opts    Options
	logger  *zap.Logger
}

// New returns a runner. differ may be nil when the plan has no visual cases.
func New(b browser.Browser, healer *selector.Healer, differ *visual.Differ, opts Options, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 30 * time.Second
	}
	return &Runner{
		browser: b,
		healer:  healer,
		differ:  differ,
		client:  &http.Client{Timeout: opts.HTTPTimeout},
		opts:    opts,
		logger:  logger,
	}
}

// Run executes every suite of the plan. Suites run concurrently; a failing
// case is recorded, never aborts the run. Only context cancellation returns
// an error.
func (r *Runner) Run(ctx context.Context, plan *schedule.Plan) ([]TestResult, error) {
	var (
		mu      sync.Mutex
		results []TestResult
	)
	record := func(res TestResult) {
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, suite := range plan.Suites {
		suite := suite
		g.Go(func() error {
			return r.runSuite(ctx, suite, record)
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	sum := Summarize(results)
	r.logger.Info("run finished",
		zap.Int("total", sum.Total),
		zap.Int("passed", sum.Passed),
		zap.Int("failed", sum.Failed),
	)
	return results, nil
}

func (r *Runner) runSuite(ctx context.Context, suite schedule.Suite, record func(TestResult)) error {
	if suite.Workers <= 1 {
		// A shared-context suite reuses one page across its cases so
		// session state carries from one case to the next.
		var shared browser.Page
		if suite.SharedContext {
			page, err := r.browser.NewPage(ctx, browser.PageOptions{})
			if err != nil {
				r.logger.Warn("shared context unavailable, cases run isolated",
					zap.String("suite", suite.Name),
					zap.Error(err),
				)
			} else {
				shared = page
				defer page.Close()
			}
		}
		for _, tc := range suite.Cases {
			if err := ctx.Err(); err != nil {
				return err
			}
			record(r.runCase(ctx, suite.Name, tc, shared))
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(suite.Workers)
	for _, tc := range suite.Cases {
		tc := tc
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			record(r.runCase(ctx, suite.Name, tc, nil))
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) runCase(ctx context.Context, suiteName string, tc generate.TestCase, shared browser.Page) TestResult {
	start := time.Now()
	res := TestResult{Case: tc.Name, Suite: suiteName, Category: tc.Category, Status: StatusPassed}

	var err error
	switch tc.Category {
	case generate.CategoryAPI:
		err = r.runAPICase(ctx, tc)
	default:
		err = r.runUICase(ctx, tc, &res, shared)
	}
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
	}
	res.Duration = time.Since(start)

	metrics.CaseFinished(string(res.Status))
	r.logger.Debug("case finished",
		zap.String("case", tc.Name),
		zap.String("suite", suiteName),
		zap.String("status", string(res.Status)),
		zap.Duration("duration", res.Duration),
	)
	return res
}

func (r *Runner) runAPICase(ctx context.Context, tc generate.TestCase) error {
	for _, step := range tc.Steps {
		if step.Action != "http_get" {
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, step.Target, nil)
		if err != nil {
			return fmt.Errorf("build request for %s: %w", step.Target, err)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return fmt.Errorf("GET %s: %w", step.Target, err)
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("GET %s: unexpected status %d", step.Target, resp.StatusCode)
		}
	}
	return nil
}

func (r *Runner) runUICase(ctx context.Context, tc generate.TestCase, res *TestResult, shared browser.Page) error {
	page := shared
	if page == nil {
		isolated, err := r.browser.NewPage(ctx, browser.PageOptions{})
		if err != nil {
			return fmt.Errorf("open page: %w", err)
		}
		defer isolated.Close()
		page = isolated
	}

	loc := pageLocator{page: page}
	for _, step := range tc.Steps {
		switch step.Action {
		case "navigate":
			if err := page.Navigate(ctx, step.Target); err != nil {
				return fmt.Errorf("navigate to %s: %w", step.Target, err)
			}
		case "click", "fill", "assert_visible":
			heal := r.healer.FindElement(ctx, loc, step.Selectors)
			if !heal.Found {
				metrics.SelectorLookup("missed")
				return fmt.Errorf("element not found: %s", step.Target)
			}
			if heal.Healed {
				metrics.SelectorLookup("healed")
				res.Healed = true
				res.HealNotes = append(res.HealNotes, heal.Message)
			} else {
				metrics.SelectorLookup("found")
			}
			target := toLocator(heal.Used)
			switch step.Action {
			case "click":
				if err := page.Click(ctx, target); err != nil {
					return fmt.Errorf("click %s: %w", heal.Used.Describe(), err)
				}
			case "fill":
				if err := page.Fill(ctx, target, step.Value); err != nil {
					return fmt.Errorf("fill %s: %w", heal.Used.Describe(), err)
				}
			}
		case "compare_screenshot":
			vr, err := r.compareScreenshot(ctx, page, step.Target)
			if err != nil {
				return err
			}
			res.Visual = &vr
			if !vr.Matches {
				return fmt.Errorf("visual regression on %s: %.1f%% of pixels differ", step.Target, vr.DiffPercentage*100)
			}
		default:
			return fmt.Errorf("unknown step action %q", step.Action)
		}
	}
	return nil
}

func (r *Runner) compareScreenshot(ctx context.Context, page browser.Page, route string) (visual.Result, error) {
	if r.differ == nil {
		return visual.Result{}, fmt.Errorf("visual comparison not configured")
	}
	shot, err := page.Screenshot(ctx)
	if err != nil {
		return visual.Result{}, fmt.Errorf("screenshot %s: %w", route, err)
	}

	name := routeFile(route)
	currentPath := filepath.Join(r.opts.CurrentDir, name)
	baselinePath := filepath.Join(r.opts.BaselineDir, name)
	diffPath := filepath.Join(r.opts.DiffDir, name)

	if err := writeFile(currentPath, shot); err != nil {
		return visual.Result{}, err
	}
	vr, err := r.differ.Compare(baselinePath, currentPath, diffPath)
	if err != nil {
		return visual.Result{}, fmt.Errorf("compare %s: %w", route, err)
	}
	if vr.IsNewBaseline {
		// First run accepts the current capture as the baseline.
		if err := writeFile(baselinePath, shot); err != nil {
			return vr, err
		}
	}
	return vr, nil
}

// pageLocator adapts a browser page to the healer's lookup contract.
type pageLocator struct {
	page browser.Page
}

func (l pageLocator) CountMatches(ctx context.Context, sel selector.Resilient) (int, error) {
	return l.page.Count(ctx, toLocator(sel))
}

func toLocator(sel selector.Resilient) browser.Locator {
	return browser.Locator{Kind: sel.Strategy.String(), Value: sel.Value, Name: sel.Name}
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

var routeStrip = regexp.MustCompile(`[^a-z0-9]+`)

func routeFile(route string) string {
	s := routeStrip.ReplaceAllString(strings.ToLower(route), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "root"
	}
	return s + ".png"
}
