package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/pageprobe/internal/browser"
	"github.com/ibeckermayer/pageprobe/internal/types"
)

// idleQuiet is how long the network must stay quiet to count as idle.
const idleQuiet = 500 * time.Millisecond

const pollInterval = 200 * time.Millisecond

// Chromedp launches a local Chrome through chromedp.
type Chromedp struct{}

type chromedpPage struct {
	ctx        context.Context
	cancel     func()
	slowMotion time.Duration
	navTimeout time.Duration
	events     EventLog

	mu           sync.Mutex
	inflight     map[network.RequestID]string
	lastActivity time.Time
	waiter       *responseWaiter
}

type responseWaiter struct {
	match   func(string) bool
	pending map[network.RequestID]*Response
	done    chan network.RequestID
}

// Launch starts Chrome with the shared allocator options and opens a tab.
func (Chromedp) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, browser.Options(opts.Headless, opts.Width, opts.Height)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	p := &chromedpPage{
		ctx:        tabCtx,
		slowMotion: opts.SlowMotion,
		navTimeout: opts.NavigationTimeout,
		inflight:   make(map[network.RequestID]string),
	}
	p.cancel = func() {
		_ = chromedp.Cancel(tabCtx)
		tabCancel()
		allocCancel()
	}

	chromedp.ListenTarget(tabCtx, p.onEvent)

	// The first Run starts the browser process.
	if err := chromedp.Run(tabCtx, network.Enable(), runtime.Enable()); err != nil {
		p.cancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	return p, nil
}

// onEvent runs on chromedp's event goroutine and must not block or call
// back into chromedp.Run.
func (p *chromedpPage) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		p.mu.Lock()
		p.inflight[e.RequestID] = e.Request.URL
		p.lastActivity = time.Now()
		p.mu.Unlock()

	case *network.EventResponseReceived:
		status := int(e.Response.Status)
		p.mu.Lock()
		if p.waiter != nil && p.waiter.match(e.Response.URL) {
			p.waiter.pending[e.RequestID] = &Response{URL: e.Response.URL, Status: status}
		}
		p.mu.Unlock()
		if status >= 400 {
			p.events.Add(Event{Kind: EventResponse, URL: e.Response.URL, Status: status})
		}

	case *network.EventLoadingFinished:
		p.mu.Lock()
		delete(p.inflight, e.RequestID)
		p.lastActivity = time.Now()
		if p.waiter != nil {
			if _, ok := p.waiter.pending[e.RequestID]; ok {
				select {
				case p.waiter.done <- e.RequestID:
				default:
				}
			}
		}
		p.mu.Unlock()

	case *network.EventLoadingFailed:
		p.mu.Lock()
		url := p.inflight[e.RequestID]
		delete(p.inflight, e.RequestID)
		p.lastActivity = time.Now()
		p.mu.Unlock()
		if !e.Canceled {
			p.events.Add(Event{Kind: EventFailed, URL: url, Text: e.ErrorText})
		}

	case *runtime.EventConsoleAPICalled:
		parts := make([]string, 0, len(e.Args))
		for _, arg := range e.Args {
			if len(arg.Value) > 0 {
				parts = append(parts, strings.Trim(string(arg.Value), `"`))
			} else {
				parts = append(parts, arg.Description)
			}
		}
		p.events.Add(Event{Kind: EventConsole, Level: string(e.Type), Text: strings.Join(parts, " ")})

	case *runtime.EventExceptionThrown:
		if e.ExceptionDetails != nil {
			p.events.Add(Event{Kind: EventPageError, Text: e.ExceptionDetails.Error()})
		}
	}
}

func (p *chromedpPage) pause() {
	if p.slowMotion > 0 {
		time.Sleep(p.slowMotion)
	}
}

// tab scopes ctx to this page's chromedp target.
func (p *chromedpPage) tab(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	tctx, cancel := context.WithCancel(p.ctx)
	stop := context.AfterFunc(ctx, cancel)
	if timeout > 0 {
		var tcancel context.CancelFunc
		tctx, tcancel = context.WithTimeout(tctx, timeout)
		return tctx, func() { tcancel(); stop(); cancel() }
	}
	return tctx, func() { stop(); cancel() }
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) (int, error) {
	tctx, cancel := p.tab(ctx, p.navTimeout)
	defer cancel()

	resp, err := chromedp.RunResponse(tctx, chromedp.Navigate(url))
	if err != nil {
		return 0, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	p.pause()
	if resp == nil {
		return 0, nil
	}
	return int(resp.Status), nil
}

func (p *chromedpPage) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			p.mu.Lock()
			n := len(p.inflight)
			p.mu.Unlock()
			return fmt.Errorf("%w after %v (%d requests in flight)", types.ErrNavigationTimeout, timeout, n)
		case <-ticker.C:
			p.mu.Lock()
			idle := len(p.inflight) == 0 && time.Since(p.lastActivity) >= idleQuiet
			p.mu.Unlock()
			if idle {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *chromedpPage) URL(ctx context.Context) (string, error) {
	tctx, cancel := p.tab(ctx, 0)
	defer cancel()

	var url string
	err := chromedp.Run(tctx, chromedp.Location(&url))
	return url, err
}

func (p *chromedpPage) Title(ctx context.Context) (string, error) {
	tctx, cancel := p.tab(ctx, 0)
	defer cancel()

	var title string
	err := chromedp.Run(tctx, chromedp.Title(&title))
	return title, err
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func (p *chromedpPage) Count(ctx context.Context, selector string) (int, error) {
	tctx, cancel := p.tab(ctx, 0)
	defer cancel()

	var n int
	err := chromedp.Run(tctx,
		chromedp.Evaluate(fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector)), &n),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	return n, nil
}

type lookup struct {
	Found bool   `json:"found"`
	Value string `json:"value"`
}

func (p *chromedpPage) Text(ctx context.Context, selector string) (string, bool, error) {
	tctx, cancel := p.tab(ctx, 0)
	defer cancel()

	var res lookup
	js := fmt.Sprintf(`(function(sel) {
		const el = document.querySelector(sel);
		if (!el) return {found: false, value: ''};
		return {found: true, value: (el.innerText || el.textContent || '').trim()};
	})(%s)`, jsString(selector))
	if err := chromedp.Run(tctx, chromedp.Evaluate(js, &res)); err != nil {
		return "", false, fmt.Errorf("failed to read text of %s: %w", selector, err)
	}
	return res.Value, res.Found, nil
}

func (p *chromedpPage) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	tctx, cancel := p.tab(ctx, 0)
	defer cancel()

	var res lookup
	js := fmt.Sprintf(`(function(sel, name) {
		const el = document.querySelector(sel);
		if (!el || !el.hasAttribute(name)) return {found: false, value: ''};
		return {found: true, value: el.getAttribute(name)};
	})(%s, %s)`, jsString(selector), jsString(name))
	if err := chromedp.Run(tctx, chromedp.Evaluate(js, &res)); err != nil {
		return "", false, fmt.Errorf("failed to read %s of %s: %w", name, selector, err)
	}
	return res.Value, res.Found, nil
}

func (p *chromedpPage) Attributes(ctx context.Context, selector, name string) ([]string, error) {
	tctx, cancel := p.tab(ctx, 0)
	defer cancel()

	var values []string
	js := fmt.Sprintf(`Array.from(document.querySelectorAll(%s))
		.filter(el => el.hasAttribute(%s))
		.map(el => el.getAttribute(%s))`, jsString(selector), jsString(name), jsString(name))
	if err := chromedp.Run(tctx, chromedp.Evaluate(js, &values)); err != nil {
		return nil, fmt.Errorf("failed to read %s of %s: %w", name, selector, err)
	}
	return values, nil
}

func (p *chromedpPage) Fill(ctx context.Context, selector, value string) error {
	tctx, cancel := p.tab(ctx, p.navTimeout)
	defer cancel()

	// SendKeys fires the key events controlled inputs listen for.
	err := chromedp.Run(tctx,
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to fill %s: %w", selector, err)
	}
	p.pause()
	return nil
}

func (p *chromedpPage) Click(ctx context.Context, selector string) error {
	tctx, cancel := p.tab(ctx, p.navTimeout)
	defer cancel()

	if err := chromedp.Run(tctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	p.pause()
	return nil
}

func (p *chromedpPage) SetFiles(ctx context.Context, selector string, files []string) error {
	tctx, cancel := p.tab(ctx, p.navTimeout)
	defer cancel()

	abs := make([]string, 0, len(files))
	for _, f := range files {
		a, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		abs = append(abs, a)
	}
	if err := chromedp.Run(tctx, chromedp.SetUploadFiles(selector, abs, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to set files on %s: %w", selector, err)
	}
	p.pause()
	return nil
}

func (p *chromedpPage) WaitURL(ctx context.Context, match func(string) bool, timeout time.Duration) (string, error) {
	deadline := time.After(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var url string
	for {
		select {
		case <-deadline:
			return url, fmt.Errorf("url wait timed out after %v (at %s)", timeout, url)
		case <-ticker.C:
			current, err := p.URL(ctx)
			if err != nil {
				continue
			}
			url = current
			if match(url) {
				return url, nil
			}
		case <-ctx.Done():
			return url, ctx.Err()
		}
	}
}

func (p *chromedpPage) ExpectResponse(ctx context.Context, match func(string) bool, trigger func() error, timeout time.Duration) (*Response, error) {
	w := &responseWaiter{
		match:   match,
		pending: make(map[network.RequestID]*Response),
		done:    make(chan network.RequestID, 1),
	}
	p.mu.Lock()
	p.waiter = w
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.waiter = nil
		p.mu.Unlock()
	}()

	if err := trigger(); err != nil {
		return nil, err
	}

	var id network.RequestID
	select {
	case id = <-w.done:
	case <-time.After(timeout):
		return nil, fmt.Errorf("no matching response within %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	resp := w.pending[id]
	p.mu.Unlock()

	tctx, cancel := p.tab(ctx, timeout)
	defer cancel()

	err := chromedp.Run(tctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			body, err := network.GetResponseBody(id).Do(ctx)
			resp.Body = body
			return err
		}),
	)
	if err != nil {
		return resp, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp, nil
}

func (p *chromedpPage) Screenshot(ctx context.Context, path string) error {
	tctx, cancel := p.tab(ctx, p.navTimeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(tctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for screenshot: %w", err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	return nil
}

func (p *chromedpPage) Cookies(ctx context.Context) ([]Cookie, error) {
	tctx, cancel := p.tab(ctx, 0)
	defer cancel()

	var raw []*network.Cookie
	err := chromedp.Run(tctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			raw, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		var exp time.Time
		if c.Expires > 0 {
			exp = time.Unix(int64(c.Expires), 0)
		}
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  exp,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return cookies, nil
}

func (p *chromedpPage) DrainEvents() []Event {
	return p.events.Drain()
}

func (p *chromedpPage) Close() error {
	p.cancel()
	return nil
}
