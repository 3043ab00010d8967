package crawl

import (
	"context"
	"fmt"

	"github.com/skyhookqa/skyhook/internal/browser"
)

// spaListenerJS wraps the History API so client-side route changes are
// observable. Install is idempotent per page.
const spaListenerJS = `(function() {
	if (window.__skyhookRoutes) { return true; }
	window.__skyhookRoutes = [];
	const record = () => { window.__skyhookRoutes.push(window.location.href); };
	const origPush = history.pushState;
	history.pushState = function() { origPush.apply(this, arguments); record(); };
	const origReplace = history.replaceState;
	history.replaceState = function() { origReplace.apply(this, arguments); record(); };
	window.addEventListener('popstate', record);
	window.addEventListener('hashchange', record);
	return true;
})()`

// spaDrainJS consumes and clears the recorded route changes.
const spaDrainJS = `(function() {
	const routes = window.__skyhookRoutes || [];
	window.__skyhookRoutes = [];
	return routes;
})()`

// installSPAListener injects the History API hooks into the page.
func installSPAListener(ctx context.Context, page browser.Page) error {
	var ok bool
	if err := page.Evaluate(ctx, spaListenerJS, &ok); err != nil {
		return fmt.Errorf("install spa listener: %w", err)
	}
	return nil
}

// drainSPARoutes returns route changes recorded since the last drain. Each
// change is reported exactly once.
func drainSPARoutes(ctx context.Context, page browser.Page) ([]string, error) {
	var routes []string
	if err := page.Evaluate(ctx, spaDrainJS, &routes); err != nil {
		return nil, fmt.Errorf("drain spa routes: %w", err)
	}
	return routes, nil
}
