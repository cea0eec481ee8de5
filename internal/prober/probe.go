package prober

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/ibeckermayer/pageprobe/internal/driver"
	"github.com/ibeckermayer/pageprobe/internal/types"
)

const maxSnippetLen = 200

// Probe visits one target and records what it found. It never returns an
// error: failures become a failed or partial result with a message.
func (s *Session) Probe(ctx context.Context, target types.ProbeTarget) (res types.ProbeResult) {
	start := time.Now()
	res = types.ProbeResult{
		Target:   targetName(target),
		Path:     target.Path,
		Snippets: make(map[string]string),
	}
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Message = fmt.Sprintf("probe aborted: %v", r)
		}
		res.Duration = time.Since(start)
	}()

	if !s.loggedIn {
		res.Message = "session is not logged in"
		return res
	}

	var notes []string
	s.page.DrainEvents()

	status, err := s.page.Navigate(ctx, s.pageURL(target.Path))
	res.Status = status
	if err != nil {
		notes = append(notes, err.Error())
		if shot, err := s.capture(ctx, target.Path); err == nil {
			res.Screenshot = shot
		}
		res.URL, _ = s.page.URL(ctx)
		res.Message = strings.Join(notes, "; ")
		return res
	}

	if err := s.page.WaitNetworkIdle(ctx, s.opts.NetworkIdleTimeout); err != nil {
		res.Partial = true
		notes = append(notes, err.Error())
	}

	actionsOK := true
	for i, a := range target.Actions {
		if err := s.act(ctx, a); err != nil {
			actionsOK = false
			notes = append(notes, fmt.Sprintf("action %d (%s): %v", i+1, a.Kind, err))
		}
	}

	res.URL, _ = s.page.URL(ctx)
	res.Title, _ = s.page.Title(ctx)

	for _, q := range target.Queries {
		name := queryName(q)
		ok, snippet, err := s.evaluate(ctx, q)
		if ok {
			res.Matched = append(res.Matched, name)
		} else {
			res.Missing = append(res.Missing, name)
		}
		if snippet != "" {
			res.Snippets[name] = snippet
		}
		if err != nil {
			notes = append(notes, fmt.Sprintf("%s: %v", name, err))
		}
	}

	shot, shotErr := s.capture(ctx, target.Path)
	if shotErr != nil {
		notes = append(notes, shotErr.Error())
	}
	res.Screenshot = shot

	for _, e := range s.page.DrainEvents() {
		switch e.Kind {
		case driver.EventConsole, driver.EventPageError:
			res.Console = append(res.Console, e.String())
		case driver.EventResponse, driver.EventFailed:
			res.FailedRequests = append(res.FailedRequests, e.String())
		}
	}

	statusOK := status < 400
	if !statusOK {
		notes = append(notes, fmt.Sprintf("HTTP %d", status))
	}

	res.Success = statusOK && actionsOK && shotErr == nil && len(res.Missing) == 0
	res.Message = strings.Join(notes, "; ")
	log.Printf("[prober] %s: status=%d matched=%d missing=%d partial=%v", res.Target, status, len(res.Matched), len(res.Missing), res.Partial)
	return res
}

// evaluate checks one query. Missing elements are reported as not ok
// with an error wrapping types.ErrSelectorNotFound.
func (s *Session) evaluate(ctx context.Context, q types.Query) (bool, string, error) {
	n, err := s.page.Count(ctx, q.Selector)
	if err != nil {
		return false, "", err
	}

	if q.Absent {
		if n == 0 {
			return true, "", nil
		}
		text, _, _ := s.page.Text(ctx, q.Selector)
		return false, snippet(text), fmt.Errorf("expected no match for %s, found %d", q.Selector, n)
	}

	if n == 0 {
		return false, "", fmt.Errorf("%w: %s", types.ErrSelectorNotFound, q.Selector)
	}

	text, err := s.readQuery(ctx, q)
	if err != nil {
		return false, "", err
	}

	minCount := q.MinCount
	if minCount <= 0 {
		minCount = 1
	}
	if n < minCount {
		return false, snippet(text), fmt.Errorf("found %d of %s, want at least %d", n, q.Selector, minCount)
	}
	if q.Contains != "" && !strings.Contains(text, q.Contains) {
		return false, snippet(text), fmt.Errorf("text does not contain %q", q.Contains)
	}
	return true, snippet(text), nil
}

// readQuery returns the first match's inner text, or the named attribute
// when the query asks for one.
func (s *Session) readQuery(ctx context.Context, q types.Query) (string, error) {
	if q.Attribute == "" {
		text, _, err := s.page.Text(ctx, q.Selector)
		return text, err
	}
	value, found, err := s.page.Attribute(ctx, q.Selector, q.Attribute)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%s has no %s attribute", q.Selector, q.Attribute)
	}
	return value, nil
}

// act runs one pre-capture interaction.
func (s *Session) act(ctx context.Context, a types.Action) error {
	switch a.Kind {
	case types.ActionClick, types.ActionFill, types.ActionUpload:
		n, err := s.page.Count(ctx, a.Selector)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", types.ErrSelectorNotFound, a.Selector)
		}
	}

	switch a.Kind {
	case types.ActionClick:
		if err := s.page.Click(ctx, a.Selector); err != nil {
			return err
		}
	case types.ActionFill:
		if err := s.page.Fill(ctx, a.Selector, a.Value); err != nil {
			return err
		}
	case types.ActionUpload:
		files := strings.Split(a.Value, ",")
		for i := range files {
			files[i] = strings.TrimSpace(files[i])
		}
		if err := s.page.SetFiles(ctx, a.Selector, files); err != nil {
			return err
		}
	case types.ActionWait:
		return s.wait(ctx, a)
	default:
		return fmt.Errorf("unknown action %q", a.Kind)
	}

	// Let whatever the interaction kicked off settle; a timeout here is
	// not a failure of the action.
	if err := s.page.WaitNetworkIdle(ctx, s.opts.NetworkIdleTimeout); err != nil && !errors.Is(err, types.ErrNavigationTimeout) {
		return err
	}
	return nil
}

// wait pauses for a fixed duration or until a selector appears.
func (s *Session) wait(ctx context.Context, a types.Action) error {
	if a.Selector == "" {
		d, err := time.ParseDuration(a.Value)
		if err != nil {
			return fmt.Errorf("invalid wait duration %q: %w", a.Value, err)
		}
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	timeout := s.opts.NetworkIdleTimeout
	if a.Value != "" {
		d, err := time.ParseDuration(a.Value)
		if err != nil {
			return fmt.Errorf("invalid wait duration %q: %w", a.Value, err)
		}
		timeout = d
	}

	deadline := time.After(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		n, err := s.page.Count(ctx, a.Selector)
		if err == nil && n > 0 {
			return nil
		}
		select {
		case <-deadline:
			return fmt.Errorf("%w: %s after %v", types.ErrSelectorNotFound, a.Selector, timeout)
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func targetName(t types.ProbeTarget) string {
	if t.Name != "" {
		return t.Name
	}
	return t.Path
}

func queryName(q types.Query) string {
	if q.Name != "" {
		return q.Name
	}
	return q.Selector
}

// snippet collapses whitespace and caps the length of captured text.
func snippet(text string) string {
	s := strings.Join(strings.Fields(text), " ")
	return ansi.Truncate(s, maxSnippetLen, "...")
}
