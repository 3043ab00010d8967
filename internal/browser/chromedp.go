package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const defaultNavTimeout = 30 * time.Second

// Chrome implements Browser using chromedp and headless Chrome. Every page
// opened through it gets its own browser context, so cookies and storage do
// not leak between routes.
type Chrome struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChrome starts a shared Chrome allocator.
func NewChrome(cfg Config) *Chrome {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = defaultNavTimeout
	}
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = 1280
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = 800
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Chrome{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}
}

// Close tears down the allocator and every page spawned from it.
func (c *Chrome) Close() {
	c.allocCancel()
}

// NewPage opens an isolated browsing context, wires the network tap, and
// optionally starts screencast recording.
func (c *Chrome) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	taskCtx, cancel := chromedp.NewContext(c.allocator)

	p := &chromePage{
		cfg:    c.cfg,
		ctx:    taskCtx,
		cancel: cancel,
		tap:    opts.Tap,
	}
	if opts.Tap != nil || opts.RecordVideo {
		chromedp.ListenTarget(taskCtx, p.handleEvent)
	}

	actions := []chromedp.Action{
		network.Enable(),
		emulation.SetDeviceMetricsOverride(int64(c.cfg.ViewportWidth), int64(c.cfg.ViewportHeight), 1, false),
	}
	if c.cfg.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(c.cfg.UserAgent))
	}
	if opts.RecordVideo {
		p.recording = true
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return cdppage.StartScreencast().
				WithFormat(cdppage.ScreencastFormatJpeg).
				WithEveryNthFrame(2).
				Do(ctx)
		}))
	}

	runCtx, runCancel := p.deadline(ctx)
	defer runCancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		cancel()
		return nil, fmt.Errorf("open page: %w", err)
	}
	return p, nil
}

type chromePage struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	tap    NetworkTap

	recording bool
	frameMu   sync.Mutex
	frames    [][]byte

	pendingMu sync.Mutex
	pending   map[network.RequestID]Response
}

func (p *chromePage) handleEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if p.tap == nil || !isAPIResource(e.Type) {
			return
		}
		p.tap.OnRequest(Request{
			URL:    e.Request.URL,
			Method: e.Request.Method,
		})
	case *network.EventResponseReceived:
		if p.tap == nil || !isAPIResource(e.Type) || e.Response == nil {
			return
		}
		p.pendingMu.Lock()
		if p.pending == nil {
			p.pending = make(map[network.RequestID]Response)
		}
		p.pending[e.RequestID] = Response{
			URL:     e.Response.URL,
			Status:  int(e.Response.Status),
			Headers: flattenHeaders(e.Response.Headers),
		}
		p.pendingMu.Unlock()
	case *network.EventLoadingFinished:
		if p.tap == nil {
			return
		}
		p.pendingMu.Lock()
		resp, ok := p.pending[e.RequestID]
		delete(p.pending, e.RequestID)
		p.pendingMu.Unlock()
		if !ok {
			return
		}
		// Body retrieval is best effort; a missing body still closes the record.
		go p.emitResponse(e.RequestID, resp)
	case *cdppage.EventScreencastFrame:
		data, err := base64.StdEncoding.DecodeString(e.Data)
		if err == nil {
			p.frameMu.Lock()
			p.frames = append(p.frames, data)
			p.frameMu.Unlock()
		}
		go p.ackFrame(e.SessionID)
	}
}

func (p *chromePage) emitResponse(id network.RequestID, resp Response) {
	c := chromedp.FromContext(p.ctx)
	if c != nil && c.Target != nil {
		body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(p.ctx, c.Target))
		if err == nil {
			resp.Body = string(body)
		}
	}
	p.tap.OnResponse(resp)
}

func (p *chromePage) ackFrame(sessionID int64) {
	c := chromedp.FromContext(p.ctx)
	if c == nil || c.Target == nil {
		return
	}
	_ = cdppage.ScreencastFrameAck(sessionID).Do(cdp.WithExecutor(p.ctx, c.Target))
}

// Navigate loads the URL, waits for the DOM to be ready, and gives in-flight
// requests a short settle window.
func (p *chromePage) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := p.deadline(ctx)
	defer cancel()

	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *chromePage) Evaluate(ctx context.Context, js string, out any) error {
	runCtx, cancel := p.deadline(ctx)
	defer cancel()

	if out == nil {
		var sink json.RawMessage
		out = &sink
	}
	if err := chromedp.Run(runCtx, chromedp.Evaluate(js, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (p *chromePage) Count(ctx context.Context, loc Locator) (int, error) {
	var count int
	if err := p.Evaluate(ctx, countExpr(loc), &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (p *chromePage) Click(ctx context.Context, loc Locator) error {
	var clicked bool
	if err := p.Evaluate(ctx, clickExpr(loc), &clicked); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("click: no element matched %s(%s)", loc.Kind, loc.Value)
	}
	return nil
}

func (p *chromePage) Fill(ctx context.Context, loc Locator, value string) error {
	var filled bool
	if err := p.Evaluate(ctx, fillExpr(loc, value), &filled); err != nil {
		return err
	}
	if !filled {
		return fmt.Errorf("fill: no element matched %s(%s)", loc.Kind, loc.Value)
	}
	return nil
}

func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	runCtx, cancel := p.deadline(ctx)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

func (p *chromePage) Location(ctx context.Context) (string, error) {
	runCtx, cancel := p.deadline(ctx)
	defer cancel()

	var url string
	if err := chromedp.Run(runCtx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("location: %w", err)
	}
	return url, nil
}

func (p *chromePage) StopVideo() [][]byte {
	if !p.recording {
		return nil
	}
	c := chromedp.FromContext(p.ctx)
	if c != nil && c.Target != nil {
		_ = cdppage.StopScreencast().Do(cdp.WithExecutor(p.ctx, c.Target))
	}
	p.recording = false

	p.frameMu.Lock()
	defer p.frameMu.Unlock()
	frames := p.frames
	p.frames = nil
	return frames
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

func (p *chromePage) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := p.cfg.NavTimeout
	if timeout <= 0 {
		timeout = defaultNavTimeout
	}
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func isAPIResource(t network.ResourceType) bool {
	return t == network.ResourceTypeXHR || t == network.ResourceTypeFetch
}

func flattenHeaders(h network.Headers) map[string]string {
	if len(h) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(h))
	for key, value := range h {
		out[key] = fmt.Sprint(value)
	}
	return out
}
