// Package prober logs into a web application once and then captures a
// list of pages: navigate, wait for the network to settle, check DOM
// facts, screenshot, report.
package prober

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/ibeckermayer/pageprobe/internal/driver"
	"github.com/ibeckermayer/pageprobe/internal/types"
)

// SessionOptions configures one browser session.
type SessionOptions struct {
	BaseURL            string
	Headless           bool
	SlowMotion         time.Duration
	Width              int
	Height             int
	NavigationTimeout  time.Duration
	NetworkIdleTimeout time.Duration
	ScreenshotDir      string
}

// Session is one live browser and page, owned by a single run.
type Session struct {
	opts     SessionOptions
	page     driver.Page
	loggedIn bool
	shots    shotNames
	closed   bool
}

// OpenSession launches a browser and page. Launch failures wrap
// types.ErrLaunch.
func OpenSession(ctx context.Context, launcher driver.Launcher, opts SessionOptions) (*Session, error) {
	if opts.NetworkIdleTimeout <= 0 {
		opts.NetworkIdleTimeout = 10 * time.Second
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}

	log.Printf("[prober] Launching browser (headless=%v, slow motion=%v)", opts.Headless, opts.SlowMotion)
	page, err := launcher.Launch(ctx, driver.LaunchOptions{
		Headless:          opts.Headless,
		SlowMotion:        opts.SlowMotion,
		Width:             opts.Width,
		Height:            opts.Height,
		NavigationTimeout: opts.NavigationTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrLaunch, err)
	}

	return &Session{
		opts:  opts,
		page:  page,
		shots: make(shotNames),
	}, nil
}

// Close releases the page and browser. Safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	log.Println("[prober] Closing browser")
	return s.page.Close()
}

// pageURL joins the base URL and a path.
func (s *Session) pageURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(s.opts.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// capture screenshots the page under a name derived from path.
func (s *Session) capture(ctx context.Context, path string) (string, error) {
	name := s.shots.reserve(Slug(path))
	file := filepath.Join(s.opts.ScreenshotDir, name+".png")
	if err := s.page.Screenshot(ctx, file); err != nil {
		return "", err
	}
	return file, nil
}

// resolve returns the first candidate selector that matches anything.
func (s *Session) resolve(ctx context.Context, field string, candidates []string) (string, error) {
	for _, sel := range candidates {
		n, err := s.page.Count(ctx, sel)
		if err != nil {
			log.Printf("[prober] Skipping %s candidate %s: %v", field, sel, err)
			continue
		}
		if n > 0 {
			return sel, nil
		}
	}
	return "", fmt.Errorf("%w: no %s field matched any of %s", types.ErrSelectorNotFound, field, strings.Join(candidates, " | "))
}
