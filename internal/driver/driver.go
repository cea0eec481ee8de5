// Package driver is the browser capability set the prober consumes:
// launch, navigate, fill, click, query, wait, screenshot and event
// observation. Backends wrap chromedp and playwright-go.
package driver

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LaunchOptions configures a new browser and page.
type LaunchOptions struct {
	Headless bool
	// SlowMotion is a pause after every navigation and interaction.
	SlowMotion        time.Duration
	Width             int
	Height            int
	NavigationTimeout time.Duration
}

// Launcher starts a browser with one open page.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Page, error)
}

// Response is a network response captured while waiting for it.
type Response struct {
	URL    string
	Status int
	Body   []byte
}

// Cookie is a browser cookie, independent of backend.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	HTTPOnly bool
	Secure   bool
}

// Page is one open browser tab. Implementations are not safe for
// concurrent use; the prober drives a page from a single goroutine.
type Page interface {
	// Navigate loads url and returns the main document's HTTP status
	// (0 when the backend saw no response).
	Navigate(ctx context.Context, url string) (int, error)
	// WaitNetworkIdle blocks until no requests are in flight, or returns
	// an error wrapping types.ErrNavigationTimeout after timeout.
	WaitNetworkIdle(ctx context.Context, timeout time.Duration) error
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Count(ctx context.Context, selector string) (int, error)
	// Text returns the inner text of the first match.
	Text(ctx context.Context, selector string) (text string, found bool, err error)
	Attribute(ctx context.Context, selector, name string) (value string, found bool, err error)
	// Attributes returns the named attribute of every match that has it,
	// in document order.
	Attributes(ctx context.Context, selector, name string) ([]string, error)
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	SetFiles(ctx context.Context, selector string, files []string) error
	// WaitURL polls the page URL until match returns true.
	WaitURL(ctx context.Context, match func(string) bool, timeout time.Duration) (string, error)
	// ExpectResponse runs trigger and waits for a response whose URL
	// satisfies match.
	ExpectResponse(ctx context.Context, match func(string) bool, trigger func() error, timeout time.Duration) (*Response, error)
	Screenshot(ctx context.Context, path string) error
	Cookies(ctx context.Context) ([]Cookie, error)
	// DrainEvents returns and clears events observed since the last drain.
	DrainEvents() []Event
	Close() error
}

// EventKind classifies an observed browser event.
type EventKind string

const (
	EventConsole   EventKind = "console"
	EventPageError EventKind = "pageerror"
	EventResponse  EventKind = "response"
	EventFailed    EventKind = "requestfailed"
)

// Event is a console message, uncaught page error or network outcome.
type Event struct {
	Kind   EventKind
	Level  string
	Text   string
	URL    string
	Status int
}

func (e Event) String() string {
	switch e.Kind {
	case EventConsole:
		return fmt.Sprintf("[%s] %s", e.Level, e.Text)
	case EventPageError:
		return "page error: " + e.Text
	case EventResponse:
		return fmt.Sprintf("%d %s", e.Status, e.URL)
	case EventFailed:
		return fmt.Sprintf("failed %s: %s", e.URL, e.Text)
	}
	return e.Text
}

// EventLog collects events from backend listener goroutines.
type EventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *EventLog) Add(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *EventLog) Drain() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.events
	l.events = nil
	return out
}

// New returns the launcher for a driver name.
func New(name string) (Launcher, error) {
	switch name {
	case "", "chromedp":
		return Chromedp{}, nil
	case "playwright":
		return Playwright{Install: true}, nil
	default:
		return nil, fmt.Errorf("unknown driver: %s", name)
	}
}
