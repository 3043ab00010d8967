package generate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyhookqa/skyhook/internal/crawl"
	"github.com/skyhookqa/skyhook/internal/selector"
)

type fakeClient struct {
	fn    func(system, user string) (string, error)
	calls int
}

func (f *fakeClient) Complete(_ context.Context, system, user string) (string, error) {
	f.calls++
	return f.fn(system, user)
}

func sampleSite() *crawl.SiteMap {
	chain := []selector.Resilient{{Strategy: selector.StrategyTestID, Value: "submit"}}
	return &crawl.SiteMap{
		BaseURL: "https://shop.example.com",
		Pages: []crawl.PageData{
			{
				URL:  "https://shop.example.com/",
				Path: "/",
				Interactions: []crawl.InteractionInfo{
					{Kind: "click", Label: "Submit", Selectors: chain},
					{Kind: "fill", Label: "Email", Selectors: chain},
					{Kind: "hover", Label: "Ignored", Selectors: chain},
				},
			},
			{
				URL:  "https://shop.example.com/about",
				Path: "/about",
			},
		},
		APIEndpoints: []string{
			"https://shop.example.com/api/products",
			"https://shop.example.com/api/health",
		},
	}
}

func TestGenerateCases(t *testing.T) {
	g := New(nil, Options{}, nil)
	cases, err := g.Generate(context.Background(), sampleSite())
	require.NoError(t, err)

	var functional, visual, api int
	for _, tc := range cases {
		switch tc.Category {
		case CategoryFunctional:
			functional++
			assert.Equal(t, "/", tc.Route)
			require.GreaterOrEqual(t, len(tc.Steps), 3)
			assert.Equal(t, "navigate", tc.Steps[0].Action)
			assert.Equal(t, "assert_visible", tc.Steps[len(tc.Steps)-1].Action)
		case CategoryVisual:
			visual++
			require.Len(t, tc.Steps, 2)
			assert.Equal(t, "compare_screenshot", tc.Steps[1].Action)
		case CategoryAPI:
			api++
			assert.Equal(t, "", tc.Route)
			require.Len(t, tc.Steps, 1)
			assert.Equal(t, "http_get", tc.Steps[0].Action)
		}
	}
	// Unknown interaction kinds are skipped.
	assert.Equal(t, 2, functional)
	assert.Equal(t, 2, visual)
	assert.Equal(t, 2, api)
}

func TestGenerateFillCarriesValue(t *testing.T) {
	g := New(nil, Options{}, nil)
	cases, err := g.Generate(context.Background(), sampleSite())
	require.NoError(t, err)

	var found bool
	for _, tc := range cases {
		for _, step := range tc.Steps {
			if step.Action == "fill" {
				found = true
				assert.NotEmpty(t, step.Value)
			}
		}
	}
	assert.True(t, found)
}

func TestGenerateAPIIgnoreGlobs(t *testing.T) {
	g := New(nil, Options{IgnoreAPIGlobs: []string{"*/api/health"}}, nil)
	cases, err := g.Generate(context.Background(), sampleSite())
	require.NoError(t, err)

	for _, tc := range cases {
		if tc.Category == CategoryAPI {
			assert.NotContains(t, tc.Steps[0].Target, "health")
		}
	}
}

func TestGenerateVisualExcludeRoutes(t *testing.T) {
	g := New(nil, Options{VisualExcludeRoutes: []string{"/about"}}, nil)
	cases, err := g.Generate(context.Background(), sampleSite())
	require.NoError(t, err)

	for _, tc := range cases {
		if tc.Category == CategoryVisual {
			assert.NotEqual(t, "/about", tc.Route)
		}
	}
}

func TestGenerateCodeBestEffort(t *testing.T) {
	client := &fakeClient{fn: func(system, user string) (string, error) {
		if strings.Contains(user, "visual") {
			return "", errors.New("rate limited")
		}
		return "test('x', async ({ page }) => {});", nil
	}}
	g := New(client, Options{}, nil)
	cases, err := g.Generate(context.Background(), sampleSite())
	require.NoError(t, err)

	for _, tc := range cases {
		if tc.Category == CategoryFunctional {
			assert.NotEmpty(t, tc.Code)
		}
	}
	assert.Equal(t, len(cases), client.calls)
}

func TestGenerateUniqueNames(t *testing.T) {
	site := sampleSite()
	// Duplicate the first page so case names collide.
	site.Pages = append(site.Pages, site.Pages[0])

	g := New(nil, Options{}, nil)
	cases, err := g.Generate(context.Background(), site)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, tc := range cases {
		assert.False(t, seen[tc.Name], "duplicate name %s", tc.Name)
		seen[tc.Name] = true
	}
}

func TestClassifyComponents(t *testing.T) {
	client := &fakeClient{fn: func(system, user string) (string, error) {
		return `Here you go: [{"index": 0, "type": "navigation"}, {"index": 5, "type": "out-of-range"}]`, nil
	}}
	g := New(client, Options{}, nil)

	comps := []crawl.ComponentInfo{
		{Type: "nav", Label: "Main"},
		{Type: "form", Label: "Login"},
	}
	types, err := g.ClassifyComponents(context.Background(), comps)
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "navigation", types[0])
	// Unclassified components keep their extractor-assigned type.
	assert.Equal(t, "form", types[1])
}

func TestClassifyComponentsNilClient(t *testing.T) {
	g := New(nil, Options{}, nil)
	types, err := g.ClassifyComponents(context.Background(), []crawl.ComponentInfo{{Type: "nav"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"nav"}, types)
}

func TestCategoryWireFormat(t *testing.T) {
	for _, name := range []string{"functional", "visual", "api"} {
		c, err := ParseCategory(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.String())
	}
	_, err := ParseCategory("fuzz")
	assert.Error(t, err)

	assert.True(t, CategoryFunctional.IsUI())
	assert.True(t, CategoryVisual.IsUI())
	assert.False(t, CategoryAPI.IsUI())
}
