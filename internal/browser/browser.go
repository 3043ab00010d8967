// Package browser defines the automation surface the QA engine drives.
// The crawl engine, the selector healer, and the test runner depend only on
// these interfaces; chromedp supplies the production implementation.
package browser

import (
	"context"
	"time"
)

// Locator identifies one way of finding elements on a page.
type Locator struct {
	Kind  string // test_id, role, text, semantic, structural, css
	Value string
	Name  string // accessible name, used with role locators
}

// Request describes an outgoing XHR/fetch call observed on a page.
type Request struct {
	URL    string
	Method string
	Body   string
}

// Response describes the answer to a previously observed request.
type Response struct {
	URL     string
	Status  int
	Headers map[string]string
	Body    string
}

// NetworkTap receives XHR/fetch traffic from an instrumented page.
// Implementations must be safe for concurrent use; CDP events arrive
// on the browser's event goroutine.
type NetworkTap interface {
	OnRequest(req Request)
	OnResponse(resp Response)
}

// PageOptions configures a freshly opened page.
type PageOptions struct {
	Tap         NetworkTap
	RecordVideo bool
}

// Page is one isolated browsing context.
type Page interface {
	// Navigate loads the URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error
	// Evaluate runs a JavaScript expression and unmarshals the result into out.
	Evaluate(ctx context.Context, js string, out any) error
	// Count returns how many elements the locator resolves to.
	Count(ctx context.Context, loc Locator) (int, error)
	// Click clicks the first element the locator resolves to.
	Click(ctx context.Context, loc Locator) error
	// Fill types text into the first element the locator resolves to.
	Fill(ctx context.Context, loc Locator, value string) error
	// Screenshot captures the full page as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	// Location reports the page's current URL.
	Location(ctx context.Context) (string, error)
	// StopVideo ends screencast recording and returns the captured frames.
	// It returns nil when the page was opened without RecordVideo.
	StopVideo() [][]byte
	// Close tears the browsing context down.
	Close() error
}

// Browser opens isolated pages.
type Browser interface {
	NewPage(ctx context.Context, opts PageOptions) (Page, error)
	Close()
}

// Config controls the chromedp-backed browser.
type Config struct {
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	NavTimeout     time.Duration
}
