package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/ibeckermayer/pageprobe/internal/types"
)

// Playwright launches Chromium through playwright-go. Install downloads
// the driver and browsers on first use.
type Playwright struct {
	Install bool
}

type playwrightPage struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	events  EventLog
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

// Launch starts the playwright driver, a Chromium browser and one page.
func (l Playwright) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if l.Install {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.SlowMotion > 0 {
		launchOpts.SlowMo = ms(opts.SlowMotion)
	}
	b, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	width, height := opts.Width, opts.Height
	if width <= 0 || height <= 0 {
		width, height = 1280, 720
	}
	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: width, Height: height},
	})
	if err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	if opts.NavigationTimeout > 0 {
		page.SetDefaultTimeout(float64(opts.NavigationTimeout.Milliseconds()))
	}

	p := &playwrightPage{pw: pw, browser: b, context: bctx, page: page}
	page.OnConsole(func(m playwright.ConsoleMessage) {
		p.events.Add(Event{Kind: EventConsole, Level: m.Type(), Text: m.Text()})
	})
	page.OnPageError(func(err error) {
		p.events.Add(Event{Kind: EventPageError, Text: err.Error()})
	})
	page.OnResponse(func(r playwright.Response) {
		if r.Status() >= 400 {
			p.events.Add(Event{Kind: EventResponse, URL: r.URL(), Status: r.Status()})
		}
	})
	page.OnRequestFailed(func(r playwright.Request) {
		text := ""
		if f := r.Failure(); f != nil {
			text = f.Error()
		}
		p.events.Add(Event{Kind: EventFailed, URL: r.URL(), Text: text})
	})

	return p, nil
}

func (p *playwrightPage) Navigate(ctx context.Context, url string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	resp, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if resp == nil {
		return 0, nil
	}
	return resp.Status(), nil
}

func (p *playwrightPage) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: ms(timeout),
	})
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w after %v", types.ErrNavigationTimeout, timeout)
	}
	return err
}

func (p *playwrightPage) URL(ctx context.Context) (string, error) {
	return p.page.URL(), ctx.Err()
}

func (p *playwrightPage) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Title()
}

func (p *playwrightPage) Count(ctx context.Context, selector string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.page.Locator(selector).Count()
	if err != nil {
		return 0, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	return n, nil
}

func (p *playwrightPage) Text(ctx context.Context, selector string) (string, bool, error) {
	n, err := p.Count(ctx, selector)
	if err != nil || n == 0 {
		return "", false, err
	}
	text, err := p.page.Locator(selector).First().InnerText()
	if err != nil {
		return "", true, fmt.Errorf("failed to read text of %s: %w", selector, err)
	}
	return text, true, nil
}

func (p *playwrightPage) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	n, err := p.Count(ctx, selector)
	if err != nil || n == 0 {
		return "", false, err
	}
	res, err := p.page.Locator(selector).First().Evaluate(
		`(el, name) => el.hasAttribute(name) ? el.getAttribute(name) : null`, name)
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s of %s: %w", name, selector, err)
	}
	v, ok := res.(string)
	return v, ok, nil
}

func (p *playwrightPage) Attributes(ctx context.Context, selector, name string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := p.page.Locator(selector).EvaluateAll(
		`(els, name) => els.filter(el => el.hasAttribute(name)).map(el => el.getAttribute(name))`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s of %s: %w", name, selector, err)
	}
	items, _ := res.([]interface{})
	values := make([]string, 0, len(items))
	for _, v := range items {
		if s, ok := v.(string); ok {
			values = append(values, s)
		}
	}
	return values, nil
}

func (p *playwrightPage) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.Locator(selector).First().Fill(value); err != nil {
		return fmt.Errorf("failed to fill %s: %w", selector, err)
	}
	return nil
}

func (p *playwrightPage) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.Locator(selector).First().Click(); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

func (p *playwrightPage) SetFiles(ctx context.Context, selector string, files []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.Locator(selector).First().SetInputFiles(files); err != nil {
		return fmt.Errorf("failed to set files on %s: %w", selector, err)
	}
	return nil
}

func (p *playwrightPage) WaitURL(ctx context.Context, match func(string) bool, timeout time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	err := p.page.WaitForURL(match, playwright.PageWaitForURLOptions{Timeout: ms(timeout)})
	if err != nil {
		return p.page.URL(), fmt.Errorf("url wait timed out after %v (at %s): %w", timeout, p.page.URL(), err)
	}
	return p.page.URL(), nil
}

func (p *playwrightPage) ExpectResponse(ctx context.Context, match func(string) bool, trigger func() error, timeout time.Duration) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := p.page.ExpectResponse(func(r playwright.Response) bool {
		return match(r.URL())
	}, trigger, playwright.PageExpectResponseOptions{Timeout: ms(timeout)})
	if err != nil {
		return nil, err
	}

	resp := &Response{URL: r.URL(), Status: r.Status()}
	body, err := r.Body()
	if err != nil {
		return resp, fmt.Errorf("failed to read response body: %w", err)
	}
	resp.Body = body
	return resp, nil
}

func (p *playwrightPage) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for screenshot: %w", err)
	}
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return nil
}

func (p *playwrightPage) Cookies(ctx context.Context) ([]Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := p.context.Cookies()
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
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		})
	}
	return cookies, nil
}

func (p *playwrightPage) DrainEvents() []Event {
	return p.events.Drain()
}

// Close releases page, context, browser and driver, ignoring errors
// until the driver is stopped.
func (p *playwrightPage) Close() error {
	_ = p.page.Close()
	_ = p.context.Close()
	_ = p.browser.Close()
	return p.pw.Stop()
}
