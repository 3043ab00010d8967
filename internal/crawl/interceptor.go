package crawl

import (
	"sync"
	"time"

	"github.com/skyhookqa/skyhook/internal/browser"
	"github.com/skyhookqa/skyhook/internal/metrics"
)

// NetworkInterceptor records XHR/fetch traffic during a page visit. Pending
// requests are keyed by URL only: a second in-flight request to the same URL
// overwrites the pending slot, so its response data is attributed to whichever
// resolves first. Known limitation, kept deliberately.
type NetworkInterceptor struct {
	mu        sync.Mutex
	action    string
	pending   map[string]APICall
	completed []APICall
	now       func() time.Time
}

// NewNetworkInterceptor builds an interceptor ready to be attached to a page.
func NewNetworkInterceptor() *NetworkInterceptor {
	return &NetworkInterceptor{
		pending: make(map[string]APICall),
		now:     time.Now,
	}
}

// SetAction labels subsequently captured requests with the navigation or
// interaction currently in progress.
func (n *NetworkInterceptor) SetAction(label string) {
	n.mu.Lock()
	n.action = label
	n.mu.Unlock()
}

// OnRequest opens a pending record for the request URL.
func (n *NetworkInterceptor) OnRequest(req browser.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending[req.URL] = APICall{
		URL:       req.URL,
		Method:    req.Method,
		Action:    n.action,
		StartedAt: n.now(),
	}
}

// OnResponse closes the matching pending record, filling status, headers, and
// the best-effort decoded body. Responses without a pending record are dropped.
func (n *NetworkInterceptor) OnResponse(resp browser.Response) {
	n.mu.Lock()
	defer n.mu.Unlock()
	call, ok := n.pending[resp.URL]
	if !ok {
		return
	}
	delete(n.pending, resp.URL)
	call.Status = resp.Status
	call.Headers = resp.Headers
	call.ResponseBody = resp.Body
	call.CompletedAt = n.now()
	call.Completed = true
	n.completed = append(n.completed, call)
	metrics.APICallCaptured()
}

// Flush returns all completed calls plus any still-pending records, clearing
// the interceptor for the next page visit. Pending records are returned
// unclosed so slow endpoints still show up in the site model.
func (n *NetworkInterceptor) Flush() []APICall {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.completed
	n.completed = nil
	for _, call := range n.pending {
		out = append(out, call)
	}
	n.pending = make(map[string]APICall)
	return out
}
