// Package crawl implements the BFS crawl engine: navigation gating, network
// capture, DOM extraction, and the crawler facade that assembles a site model.
package crawl

import (
	"net/url"
	"sort"
	"time"

	"github.com/skyhookqa/skyhook/internal/selector"
)

// SiteMap is the structural model of one crawled site. It is built once per
// crawl and immutable afterwards.
type SiteMap struct {
	BaseURL      string     `json:"base_url"`
	Pages        []PageData `json:"pages"`
	APIEndpoints []string   `json:"api_endpoints"`
}

// PageData describes one visited route. It is created once per route,
// appended to while the page is being processed, and frozen when emitted.
type PageData struct {
	URL            string            `json:"url"`
	Path           string            `json:"path"`
	Title          string            `json:"title"`
	Components     []ComponentInfo   `json:"components"`
	Interactions   []InteractionInfo `json:"interactions"`
	APICalls       []APICall         `json:"api_calls"`
	ScreenshotPath string            `json:"screenshot_path,omitempty"`
	VideoPath      string            `json:"video_path,omitempty"`
	NavigatesTo    []string          `json:"navigates_to"`
}

// ComponentInfo is a structural DOM element with its resilient locator chain.
type ComponentInfo struct {
	Type      string               `json:"type"`
	Label     string               `json:"label,omitempty"`
	Selectors []selector.Resilient `json:"selectors"`
}

// InteractionInfo is an interactive DOM element with its locator chain.
type InteractionInfo struct {
	Kind      string               `json:"kind"` // click, fill, select, check
	Label     string               `json:"label,omitempty"`
	Href      string               `json:"href,omitempty"`
	Selectors []selector.Resilient `json:"selectors"`
}

// APICall is one captured XHR/fetch exchange.
type APICall struct {
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	Status       int               `json:"status"`
	Headers      map[string]string `json:"headers,omitempty"`
	ResponseBody string            `json:"response_body,omitempty"`
	Action       string            `json:"action"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  time.Time         `json:"completed_at,omitempty"`
	Completed    bool              `json:"completed"`
}

// NormalizePath reduces a URL to its route identity: the path with query and
// fragment stripped. An empty path normalizes to "/".
func NormalizePath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

// dedupeEndpoints collects the unique API endpoint URLs across all pages.
func dedupeEndpoints(pages []PageData) []string {
	seen := map[string]bool{}
	var out []string
	for _, page := range pages {
		for _, call := range page.APICalls {
			if seen[call.URL] {
				continue
			}
			seen[call.URL] = true
			out = append(out, call.URL)
		}
	}
	sort.Strings(out)
	return out
}
