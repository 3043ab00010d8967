package crawl

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skyhookqa/skyhook/internal/artifact"
	"github.com/skyhookqa/skyhook/internal/browser"
	"github.com/skyhookqa/skyhook/internal/progress"
	"github.com/skyhookqa/skyhook/internal/visual"
)

// Rules are the crawl knobs sourced from project configuration. The struct is
// decoupled from Viper so the crawler stays testable on its own.
type Rules struct {
	MaxDepth          int
	SkipURLs          []string
	ExtraDomains      []string
	MaxScrollAttempts int
	MaxNavClicks      int
	RecordVideo       bool
	InteractionPause  time.Duration
}

// overlayCandidates are common cookie-banner and modal dismissal selectors.
// Each is tried best effort; a failure moves on to the next candidate.
var overlayCandidates = []browser.Locator{
	{Kind: "css", Value: `[data-testid="cookie-accept"]`},
	{Kind: "css", Value: `button[aria-label="Accept cookies"]`},
	{Kind: "css", Value: `#onetrust-accept-btn-handler`},
	{Kind: "text", Value: "Accept all"},
	{Kind: "text", Value: "Accept"},
	{Kind: "text", Value: "Got it"},
	{Kind: "css", Value: `[aria-label="Close"], button.modal-close, .modal [class*="close"]`},
}

// Crawler walks a site breadth first and assembles its structural model.
type Crawler struct {
	browser   browser.Browser
	store     artifact.Store
	extractor Extractor
	rules     Rules
	bus       *progress.Bus
	logger    *zap.Logger
}

// NewCrawler constructs a Crawler. bus may be nil.
func NewCrawler(b browser.Browser, store artifact.Store, rules Rules, bus *progress.Bus, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rules.MaxScrollAttempts <= 0 {
		rules.MaxScrollAttempts = 10
	}
	if rules.MaxNavClicks <= 0 {
		rules.MaxNavClicks = 10
	}
	if rules.InteractionPause <= 0 {
		rules.InteractionPause = 300 * time.Millisecond
	}
	return &Crawler{
		browser: b,
		store:   store,
		rules:   rules,
		bus:     bus,
		logger:  logger,
	}
}

type target struct {
	url   string
	depth int
}

// Crawl traverses the site starting at baseURL, visiting routes breadth first
// up to the configured depth, and returns the assembled SiteMap. An unsafe
// seed URL short-circuits to an empty model with one logged warning.
func (c *Crawler) Crawl(ctx context.Context, project, runID, baseURL string) (*SiteMap, error) {
	site := &SiteMap{BaseURL: baseURL}

	if err := CheckURLSafety(baseURL); err != nil {
		c.logger.Warn("refusing unsafe crawl target", zap.String("url", baseURL), zap.Error(err))
		return site, nil
	}

	nav, err := NewNavigator(baseURL, c.rules.ExtraDomains, c.rules.SkipURLs, c.rules.MaxDepth)
	if err != nil {
		return nil, fmt.Errorf("build navigator: %w", err)
	}

	queue := []target{{url: baseURL, depth: 0}}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("crawl canceled: %w", err)
		}
		next := queue[0]
		queue = queue[1:]

		if !nav.IsWithinDepth(next.depth) || !nav.ShouldVisit(next.url) {
			continue
		}
		if err := CheckURLSafety(next.url); err != nil {
			c.logger.Warn("skipping unsafe url", zap.String("url", next.url), zap.Error(err))
			c.emit(progress.EventPageSkipped, runID, next.url, "unsafe")
			continue
		}
		nav.MarkVisited(next.url)

		page, links, err := c.visit(ctx, project, runID, next.url)
		if err != nil {
			c.logger.Warn("page visit failed", zap.String("url", next.url), zap.Error(err))
			c.emit(progress.EventPageSkipped, runID, next.url, err.Error())
			continue
		}
		site.Pages = append(site.Pages, *page)
		c.emit(progress.EventPageVisited, runID, next.url, page.Title)

		for _, link := range links {
			queue = append(queue, target{url: link, depth: next.depth + 1})
		}
	}

	site.APIEndpoints = dedupeEndpoints(site.Pages)
	return site, nil
}

// visit processes one route in an isolated browsing context and returns its
// PageData plus the absolute links to enqueue.
func (c *Crawler) visit(ctx context.Context, project, runID, pageURL string) (*PageData, []string, error) {
	tap := NewNetworkInterceptor()
	page, err := c.browser.NewPage(ctx, browser.PageOptions{
		Tap:         tap,
		RecordVideo: c.rules.RecordVideo,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open page: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			c.logger.Debug("page close failed", zap.Error(cerr))
		}
	}()

	tap.SetAction("navigate " + pageURL)
	if err := page.Navigate(ctx, pageURL); err != nil {
		return nil, nil, err
	}
	if err := installSPAListener(ctx, page); err != nil {
		c.logger.Debug("spa listener install failed", zap.Error(err))
	}

	c.dismissOverlays(ctx, page)
	c.scrollThrough(ctx, page)

	data := &PageData{
		URL:  pageURL,
		Path: NormalizePath(pageURL),
	}
	if err := page.Evaluate(ctx, `document.title`, &data.Title); err != nil {
		c.logger.Debug("title read failed", zap.Error(err))
	}

	spaRoutes := c.clickNavLinks(ctx, project, runID, page, tap, pageURL, data.Path)

	components, interactions, err := c.extractor.Extract(ctx, page)
	if err != nil {
		c.logger.Debug("element extraction failed", zap.Error(err))
	}
	data.Components = components
	data.Interactions = interactions

	if shot, err := page.Screenshot(ctx); err == nil {
		key := artifact.Key{Project: project, Run: runID, Name: "screenshots/" + routeSlug(data.Path) + ".png"}
		if uri, err := c.store.Save(ctx, key, "image/png", shot); err == nil {
			data.ScreenshotPath = uri
		} else {
			c.logger.Warn("screenshot save failed", zap.Error(err))
		}
		if thumb, err := visual.Thumbnail(shot); err == nil {
			thumbKey := artifact.Key{Project: project, Run: runID, Name: "screenshots/" + routeSlug(data.Path) + "_thumb.png"}
			if _, err := c.store.Save(ctx, thumbKey, "image/png", thumb); err != nil {
				c.logger.Debug("thumbnail save failed", zap.Error(err))
			}
		}
	} else {
		c.logger.Debug("screenshot capture failed", zap.Error(err))
	}

	if frames := page.StopVideo(); len(frames) > 0 {
		data.VideoPath = c.saveVideo(ctx, project, runID, data.Path, frames)
	}

	tap.SetAction("")
	data.APICalls = tap.Flush()

	if routes, err := drainSPARoutes(ctx, page); err == nil {
		spaRoutes = append(spaRoutes, routes...)
	}

	domLinks := collectHrefs(pageURL, data.Interactions)
	data.NavigatesTo = mergeLinks(domLinks, resolveAll(pageURL, spaRoutes))

	return data, data.NavigatesTo, nil
}

// dismissOverlays tries each candidate selector once and swallows failures;
// one bad selector never fails the visit.
func (c *Crawler) dismissOverlays(ctx context.Context, page browser.Page) {
	for _, loc := range overlayCandidates {
		count, err := page.Count(ctx, loc)
		if err != nil || count == 0 {
			continue
		}
		if err := page.Click(ctx, loc); err != nil {
			c.logger.Debug("overlay dismissal failed", zap.String("selector", loc.Value), zap.Error(err))
			continue
		}
		time.Sleep(c.rules.InteractionPause)
	}
}

// scrollThrough scrolls to the bottom in increments to trigger lazy loading,
// stopping when the document stops growing or the attempt cap is hit, then
// returns to the top.
func (c *Crawler) scrollThrough(ctx context.Context, page browser.Page) {
	lastHeight := -1
	for attempt := 0; attempt < c.rules.MaxScrollAttempts; attempt++ {
		var height int
		err := page.Evaluate(ctx,
			`(function() { window.scrollBy(0, window.innerHeight); return document.body.scrollHeight; })()`,
			&height)
		if err != nil {
			c.logger.Debug("scroll failed", zap.Error(err))
			break
		}
		if height == lastHeight {
			break
		}
		lastHeight = height
		time.Sleep(c.rules.InteractionPause)
	}
	if err := page.Evaluate(ctx, `window.scrollTo(0, 0)`, nil); err != nil {
		c.logger.Debug("scroll to top failed", zap.Error(err))
	}
}

// navLinksJS lists clickable navigation entries with a stable CSS handle.
const navLinksJS = `(function() {
	const out = [];
	const seen = new Set();
	document.querySelectorAll('nav a[href], header a[href], [role="navigation"] a[href]').forEach((el) => {
		const href = el.getAttribute('href');
		if (!href || href === '#' || href.startsWith('javascript:')) { return; }
		if (seen.has(href)) { return; }
		seen.add(href);
		out.push({ href: href, selector: el.id ? '#' + el.id : 'a[href="' + href + '"]' });
	});
	return out;
})()`

// clickNavLinks clicks up to MaxNavClicks navigation entries to surface SPA
// routes, bracketing each click with before/after screenshots. Every failure
// is swallowed. After each click the page location is checked: a click that
// navigated away gets the original URL re-loaded, so later clicks still hit
// the selectors scanned from it.
func (c *Crawler) clickNavLinks(ctx context.Context, project, runID string, page browser.Page, tap *NetworkInterceptor, pageURL, route string) []string {
	var navLinks []struct {
		Href     string `json:"href"`
		Selector string `json:"selector"`
	}
	if err := page.Evaluate(ctx, navLinksJS, &navLinks); err != nil {
		c.logger.Debug("nav link scan failed", zap.Error(err))
		return nil
	}

	var discovered []string
	clicks := 0
	for _, link := range navLinks {
		if clicks >= c.rules.MaxNavClicks {
			break
		}
		clicks++
		tap.SetAction("click nav " + link.Href)

		c.saveNavShot(ctx, project, runID, route, clicks, "before", page)

		if err := page.Click(ctx, browser.Locator{Kind: "css", Value: link.Selector}); err != nil {
			c.logger.Debug("nav click failed", zap.String("selector", link.Selector), zap.Error(err))
			continue
		}
		time.Sleep(c.rules.InteractionPause)

		c.saveNavShot(ctx, project, runID, route, clicks, "after", page)

		if routes, err := drainSPARoutes(ctx, page); err == nil {
			discovered = append(discovered, routes...)
		}
		c.restoreLocation(ctx, page, pageURL)
		time.Sleep(c.rules.InteractionPause)
	}
	tap.SetAction("")
	return discovered
}

// restoreLocation brings the page back to pageURL when a click navigated it
// elsewhere. Re-navigating also re-installs the SPA listener, which a full
// page load wipes.
func (c *Crawler) restoreLocation(ctx context.Context, page browser.Page, pageURL string) {
	loc, err := page.Location(ctx)
	if err != nil {
		c.logger.Debug("location check failed", zap.Error(err))
		return
	}
	if NormalizePath(loc) == NormalizePath(pageURL) {
		return
	}
	if err := page.Navigate(ctx, pageURL); err != nil {
		c.logger.Debug("navigation restore failed", zap.String("url", pageURL), zap.Error(err))
		return
	}
	if err := installSPAListener(ctx, page); err != nil {
		c.logger.Debug("spa listener reinstall failed", zap.Error(err))
	}
}

func (c *Crawler) saveNavShot(ctx context.Context, project, runID, route string, idx int, phase string, page browser.Page) {
	shot, err := page.Screenshot(ctx)
	if err != nil {
		return
	}
	name := fmt.Sprintf("navclicks/%s/%02d-%s.png", routeSlug(route), idx, phase)
	key := artifact.Key{Project: project, Run: runID, Name: name}
	if _, err := c.store.Save(ctx, key, "image/png", shot); err != nil {
		c.logger.Debug("nav screenshot save failed", zap.Error(err))
	}
}

func (c *Crawler) saveVideo(ctx context.Context, project, runID, route string, frames [][]byte) string {
	prefix := "video/" + routeSlug(route)
	var first string
	for i, frame := range frames {
		name := fmt.Sprintf("%s/frame-%04d.jpg", prefix, i)
		key := artifact.Key{Project: project, Run: runID, Name: name}
		uri, err := c.store.Save(ctx, key, "image/jpeg", frame)
		if err != nil {
			c.logger.Warn("video frame save failed", zap.Error(err))
			return first
		}
		if i == 0 {
			first = strings.TrimSuffix(uri, "/frame-0000.jpg")
		}
	}
	return first
}

func (c *Crawler) emit(t progress.EventType, runID, subject, detail string) {
	if c.bus == nil {
		return
	}
	c.bus.Emit(progress.Event{Type: t, RunID: runID, Subject: subject, Detail: detail})
}

// collectHrefs resolves link interactions into absolute same-site URLs.
func collectHrefs(base string, interactions []InteractionInfo) []string {
	var out []string
	for _, in := range interactions {
		if in.Href == "" {
			continue
		}
		if resolved := resolveLink(base, in.Href); resolved != "" {
			out = append(out, resolved)
		}
	}
	return out
}

func resolveAll(base string, raw []string) []string {
	var out []string
	for _, r := range raw {
		if resolved := resolveLink(base, r); resolved != "" {
			out = append(out, resolved)
		}
	}
	return out
}

func resolveLink(base, href string) string {
	if strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := baseURL.ResolveReference(ref)
	resolved.Fragment = ""
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// mergeLinks unions DOM links and SPA route changes, deduplicated, order
// stable for the DOM portion.
func mergeLinks(dom, spa []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, link := range dom {
		if !seen[link] {
			seen[link] = true
			out = append(out, link)
		}
	}
	extra := append([]string(nil), spa...)
	sort.Strings(extra)
	for _, link := range extra {
		if !seen[link] {
			seen[link] = true
			out = append(out, link)
		}
	}
	return out
}

func routeSlug(path string) string {
	slug := strings.Trim(path, "/")
	if slug == "" {
		return "home"
	}
	slug = strings.ReplaceAll(slug, "/", "-")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, slug)
}
