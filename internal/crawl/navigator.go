package crawl

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// Navigator gates which URLs a crawl may visit: domain allow-list, visited
// set, skip globs, and the depth boundary.
type Navigator struct {
	mu       sync.Mutex
	visited  map[string]bool
	allowed  map[string]bool
	skip     []glob.Glob
	maxDepth int
}

// NewNavigator builds a Navigator rooted at baseURL. extraDomains widens the
// allow-list beyond the base host; skipPatterns are glob-matched against the
// URL path.
func NewNavigator(baseURL string, extraDomains, skipPatterns []string, maxDepth int) (*Navigator, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Hostname() == "" {
		return nil, fmt.Errorf("base url %q has no host", baseURL)
	}

	allowed := map[string]bool{strings.ToLower(base.Hostname()): true}
	for _, domain := range extraDomains {
		if domain = strings.ToLower(strings.TrimSpace(domain)); domain != "" {
			allowed[domain] = true
		}
	}

	skip := make([]glob.Glob, 0, len(skipPatterns))
	for _, pattern := range skipPatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile skip pattern %q: %w", pattern, err)
		}
		skip = append(skip, g)
	}

	return &Navigator{
		visited:  make(map[string]bool),
		allowed:  allowed,
		skip:     skip,
		maxDepth: maxDepth,
	}, nil
}

// ShouldVisit reports whether the URL is new, on an allowed domain, and not
// matched by any skip glob.
func (n *Navigator) ShouldVisit(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if !n.allowed[strings.ToLower(u.Hostname())] {
		return false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	for _, g := range n.skip {
		if g.Match(path) || g.Match(raw) {
			return false
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.visited[n.visitKey(u)]
}

// IsWithinDepth reports whether depth d is still crawlable; the boundary is
// inclusive.
func (n *Navigator) IsWithinDepth(d int) bool {
	return d <= n.maxDepth
}

// MarkVisited records the URL's route identity as seen.
func (n *Navigator) MarkVisited(raw string) {
	u, err := url.Parse(raw)
	if err != nil {
		return
	}
	n.mu.Lock()
	n.visited[n.visitKey(u)] = true
	n.mu.Unlock()
}

// VisitedCount reports how many distinct routes have been marked.
func (n *Navigator) VisitedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.visited)
}

func (n *Navigator) visitKey(u *url.URL) string {
	path := u.Path
	if path == "" {
		path = "/"
	}
	return strings.ToLower(u.Hostname()) + path
}
