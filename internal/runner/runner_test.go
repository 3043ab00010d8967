package runner

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyhookqa/skyhook/internal/browser"
	"github.com/skyhookqa/skyhook/internal/generate"
	"github.com/skyhookqa/skyhook/internal/schedule"
	"github.com/skyhookqa/skyhook/internal/selector"
	"github.com/skyhookqa/skyhook/internal/visual"
)

type fakePage struct {
	mu      sync.Mutex
	counts  map[string]int
	actions []string
	shot    []byte
	navErr  error
	closed  bool
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, "navigate "+url)
	return p.navErr
}

func (p *fakePage) Evaluate(_ context.Context, _ string, _ any) error { return nil }

func (p *fakePage) Count(_ context.Context, loc browser.Locator) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[loc.Kind+":"+loc.Value], nil
}

func (p *fakePage) Click(_ context.Context, loc browser.Locator) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, "click "+loc.Value)
	return nil
}

func (p *fakePage) Fill(_ context.Context, loc browser.Locator, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, "fill "+loc.Value+"="+value)
	return nil
}

func (p *fakePage) Screenshot(_ context.Context) ([]byte, error) { return p.shot, nil }

func (p *fakePage) Location(_ context.Context) (string, error) { return "", nil }

func (p *fakePage) StopVideo() [][]byte { return nil }

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type fakeBrowser struct {
	mu    sync.Mutex
	page  *fakePage
	opens int
}

func (b *fakeBrowser) NewPage(_ context.Context, _ browser.PageOptions) (browser.Page, error) {
	b.mu.Lock()
	b.opens++
	b.mu.Unlock()
	return b.page, nil
}

func (b *fakeBrowser) Close() {}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestRunner(t *testing.T, page *fakePage) *Runner {
	t.Helper()
	dir := t.TempDir()
	return New(
		&fakeBrowser{page: page},
		selector.NewHealer(nil),
		visual.NewDiffer(0.1),
		Options{
			BaselineDir: filepath.Join(dir, "baselines"),
			CurrentDir:  filepath.Join(dir, "current"),
			DiffDir:     filepath.Join(dir, "diffs"),
		},
		nil,
	)
}

func singleSuite(workers int, cases ...generate.TestCase) *schedule.Plan {
	return &schedule.Plan{Suites: []schedule.Suite{{Name: "test", Workers: workers, Cases: cases}}}
}

func TestRunAPICase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := newTestRunner(t, &fakePage{})
	results, err := r.Run(context.Background(), singleSuite(1,
		generate.TestCase{Name: "ok", Category: generate.CategoryAPI, Steps: []generate.TestStep{{Action: "http_get", Target: srv.URL + "/ok"}}},
		generate.TestCase{Name: "boom", Category: generate.CategoryAPI, Steps: []generate.TestStep{{Action: "http_get", Target: srv.URL + "/boom"}}},
	))
	require.NoError(t, err)
	require.Len(t, results, 2)

	byName := map[string]TestResult{}
	for _, res := range results {
		byName[res.Case] = res
	}
	assert.Equal(t, StatusPassed, byName["ok"].Status)
	assert.Equal(t, StatusFailed, byName["boom"].Status)
	assert.Contains(t, byName["boom"].Error, "unexpected status 500")
}

func TestRunUICaseHealing(t *testing.T) {
	page := &fakePage{counts: map[string]int{"css:#submit": 1}}
	r := newTestRunner(t, page)

	chain := []selector.Resilient{
		{Strategy: selector.StrategyTestID, Value: "submit"},
		{Strategy: selector.StrategyCSS, Value: "#submit"},
	}
	results, err := r.Run(context.Background(), singleSuite(1, generate.TestCase{
		Name:     "click-submit",
		Category: generate.CategoryFunctional,
		Steps: []generate.TestStep{
			{Action: "navigate", Target: "https://example.com/"},
			{Action: "click", Target: "Submit", Selectors: chain},
		},
	}))
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, StatusPassed, res.Status)
	assert.True(t, res.Healed)
	require.Len(t, res.HealNotes, 1)
	assert.Equal(t, "Selector healed: preferred test_id(submit) failed, fell back to css(#submit)", res.HealNotes[0])
	assert.Contains(t, page.actions, "click #submit")
	assert.True(t, page.closed)
}

func TestRunUICaseElementMissing(t *testing.T) {
	page := &fakePage{counts: map[string]int{}}
	r := newTestRunner(t, page)

	results, err := r.Run(context.Background(), singleSuite(1, generate.TestCase{
		Name:     "missing",
		Category: generate.CategoryFunctional,
		Steps: []generate.TestStep{
			{Action: "assert_visible", Target: "Ghost", Selectors: []selector.Resilient{{Strategy: selector.StrategyCSS, Value: "#ghost"}}},
		},
	}))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "element not found: Ghost")
}

func TestRunVisualNewBaseline(t *testing.T) {
	page := &fakePage{shot: pngBytes(t, color.White)}
	r := newTestRunner(t, page)

	results, err := r.Run(context.Background(), singleSuite(1, generate.TestCase{
		Name:     "visual-root",
		Category: generate.CategoryVisual,
		Steps: []generate.TestStep{
			{Action: "navigate", Target: "https://example.com/"},
			{Action: "compare_screenshot", Target: "/"},
		},
	}))
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, StatusPassed, res.Status)
	require.NotNil(t, res.Visual)
	assert.True(t, res.Visual.IsNewBaseline)

	_, statErr := os.Stat(filepath.Join(r.opts.BaselineDir, "root.png"))
	assert.NoError(t, statErr)
}

func TestRunVisualRegression(t *testing.T) {
	page := &fakePage{shot: pngBytes(t, color.White)}
	r := newTestRunner(t, page)

	// Seed a fully black baseline so every pixel differs.
	require.NoError(t, os.MkdirAll(r.opts.BaselineDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(r.opts.BaselineDir, "root.png"), pngBytes(t, color.Black), 0o644))

	results, err := r.Run(context.Background(), singleSuite(1, generate.TestCase{
		Name:     "visual-root",
		Category: generate.CategoryVisual,
		Steps:    []generate.TestStep{{Action: "compare_screenshot", Target: "/"}},
	}))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "visual regression on /")
}

func TestRunParallelSuiteCollectsAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var cases []generate.TestCase
	for i := 0; i < 8; i++ {
		cases = append(cases, generate.TestCase{
			Name:     "api-" + string(rune('a'+i)),
			Category: generate.CategoryAPI,
			Steps:    []generate.TestStep{{Action: "http_get", Target: srv.URL}},
		})
	}
	r := newTestRunner(t, &fakePage{})
	results, err := r.Run(context.Background(), singleSuite(4, cases...))
	require.NoError(t, err)
	assert.Len(t, results, 8)

	sum := Summarize(results)
	assert.Equal(t, 8, sum.Passed)
	assert.Equal(t, 0, sum.Failed)
}

func TestRunSharedContextSuiteReusesPage(t *testing.T) {
	page := &fakePage{counts: map[string]int{"css:#go": 1}}
	b := &fakeBrowser{page: page}
	r := New(b, selector.NewHealer(nil), nil, Options{}, nil)

	chain := []selector.Resilient{{Strategy: selector.StrategyCSS, Value: "#go"}}
	step := func(name string) generate.TestCase {
		return generate.TestCase{
			Name:     name,
			Category: generate.CategoryFunctional,
			Steps: []generate.TestStep{
				{Action: "navigate", Target: "https://example.com/flow"},
				{Action: "click", Target: "Go", Selectors: chain},
			},
		}
	}
	plan := &schedule.Plan{Suites: []schedule.Suite{{
		Name:          "checkout-flow",
		Workers:       1,
		SharedContext: true,
		Cases:         []generate.TestCase{step("step-one"), step("step-two")},
	}}}

	results, err := r.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, StatusPassed, res.Status)
	}
	// Both cases ran in the one shared page.
	assert.Equal(t, 1, b.opens)
	assert.True(t, page.closed)
}

func TestSummarize(t *testing.T) {
	sum := Summarize([]TestResult{
		{Status: StatusPassed},
		{Status: StatusFailed},
		{Status: StatusPassed},
		{Status: StatusSkipped},
	})
	assert.Equal(t, Summary{Total: 4, Passed: 2, Failed: 1}, sum)
}
