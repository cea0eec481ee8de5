package prober

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/ibeckermayer/pageprobe/internal/auth"
	"github.com/ibeckermayer/pageprobe/internal/driver"
	"github.com/ibeckermayer/pageprobe/internal/types"
)

// LoginForm describes where and how to log in.
type LoginForm struct {
	Path string
	// Candidate selectors are tried in order; the first match wins.
	UsernameSelectors []string
	PasswordSelectors []string
	SubmitSelectors   []string
	ErrorSelectors    []string
	// EndpointPattern is a glob for the login API URL whose JSON body
	// decides success. Empty means judge by URL only.
	EndpointPattern string
	// SuccessPattern optionally constrains where the login should land.
	SuccessPattern string
	SessionCookie  string
	Timeout        time.Duration
}

func compileGlob(pattern string) (glob.Glob, error) {
	if pattern == "" {
		return nil, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid url pattern %q: %w", pattern, err)
	}
	return g, nil
}

// onLoginPage reports whether rawURL is still on a path containing the
// login marker.
func onLoginPage(rawURL, loginPath string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	marker := strings.Trim(loginPath, "/")
	if marker == "" {
		return u.Path == "" || u.Path == "/"
	}
	return strings.Contains(u.Path, marker)
}

// Login fills and submits the login form.
//
// The login endpoint's JSON success field is the success criterion. If
// no endpoint response is seen before the timeout, the URL decides: still
// on the login path means failure. A missing form field fails the attempt
// before anything is typed. Rejected credentials return Success=false and
// a nil error; a malformed or non-2xx/401/403 endpoint response returns
// an error wrapping types.ErrUnexpectedResponse.
func (s *Session) Login(ctx context.Context, creds types.Credentials, form LoginForm) (types.LoginOutcome, error) {
	var outcome types.LoginOutcome

	if form.Timeout <= 0 {
		form.Timeout = 10 * time.Second
	}
	endpoint, err := compileGlob(form.EndpointPattern)
	if err != nil {
		return outcome, err
	}
	landing, err := compileGlob(form.SuccessPattern)
	if err != nil {
		return outcome, err
	}

	loginURL := s.pageURL(form.Path)
	log.Printf("[login] Navigating to %s", loginURL)
	if _, err := s.page.Navigate(ctx, loginURL); err != nil {
		return outcome, fmt.Errorf("%w: %w", types.ErrLoginFailed, err)
	}
	if err := s.page.WaitNetworkIdle(ctx, s.opts.NetworkIdleTimeout); err != nil {
		log.Printf("[login] Continuing without network idle: %v", err)
	}

	// Resolve every field before typing so a missing one leaves no
	// half-filled form behind.
	userSel, err := s.resolve(ctx, "username", form.UsernameSelectors)
	if err != nil {
		return outcome, err
	}
	passSel, err := s.resolve(ctx, "password", form.PasswordSelectors)
	if err != nil {
		return outcome, err
	}
	submitSel, err := s.resolve(ctx, "submit", form.SubmitSelectors)
	if err != nil {
		return outcome, err
	}

	log.Printf("[login] Filling %s as %s", userSel, creds.Username)
	if err := s.page.Fill(ctx, userSel, creds.Username); err != nil {
		return outcome, fmt.Errorf("%w: %w", types.ErrLoginFailed, err)
	}
	log.Printf("[login] Filling %s (%d chars)", passSel, len(creds.Password))
	if err := s.page.Fill(ctx, passSel, creds.Password); err != nil {
		return outcome, fmt.Errorf("%w: %w", types.ErrLoginFailed, err)
	}

	s.page.DrainEvents()

	var clickErr error
	submit := func() error {
		clickErr = s.page.Click(ctx, submitSel)
		return clickErr
	}

	var resp *driver.Response
	if endpoint != nil {
		resp, err = s.page.ExpectResponse(ctx, endpoint.Match, submit, form.Timeout)
		if clickErr != nil {
			return outcome, fmt.Errorf("%w: %w", types.ErrLoginFailed, clickErr)
		}
		if err != nil {
			log.Printf("[login] No login response observed: %v", err)
			resp = nil
		}
	} else if err := submit(); err != nil {
		return outcome, fmt.Errorf("%w: %w", types.ErrLoginFailed, err)
	}

	leftLogin := func(u string) bool {
		if onLoginPage(u, form.Path) {
			return false
		}
		return landing == nil || landing.Match(u)
	}

	var parseErr error
	switch {
	case resp != nil:
		parsed, err := auth.ParseLoginResponse(resp.Status, resp.Body)
		outcome.Status = resp.Status
		outcome.UserName = parsed.UserName
		outcome.UserRole = parsed.UserRole
		outcome.Success = err == nil && parsed.Success
		parseErr = err
		if parsed.Error != "" {
			outcome.ObservedErrorText = parsed.Error
		}
		if outcome.Success {
			// The app redirects client-side after a good login.
			if u, err := s.page.WaitURL(ctx, leftLogin, form.Timeout); err != nil {
				log.Printf("[login] Endpoint accepted login but page stayed at %s", u)
			}
		}
		outcome.ResultingURL, _ = s.page.URL(ctx)
	default:
		u, err := s.page.WaitURL(ctx, leftLogin, form.Timeout)
		outcome.Success = err == nil
		outcome.ResultingURL = u
	}

	if !outcome.Success {
		if text := s.firstText(ctx, form.ErrorSelectors); text != "" {
			outcome.ObservedErrorText = text
		}
	} else if form.SessionCookie != "" {
		s.checkSessionCookie(ctx, form.SessionCookie)
	}

	if shot, err := s.capture(ctx, "login"); err != nil {
		log.Printf("[login] Failed to capture screenshot: %v", err)
	} else {
		outcome.Screenshot = shot
	}

	s.loggedIn = outcome.Success
	if outcome.Success {
		log.Printf("[login] Logged in as %s (%s), now at %s", outcome.UserName, outcome.UserRole, outcome.ResultingURL)
	} else {
		log.Printf("[login] Login failed at %s: %s", outcome.ResultingURL, outcome.ObservedErrorText)
	}

	if parseErr != nil {
		return outcome, parseErr
	}
	return outcome, nil
}

// firstText returns the text of the first selector with visible text.
func (s *Session) firstText(ctx context.Context, selectors []string) string {
	for _, sel := range selectors {
		text, found, err := s.page.Text(ctx, sel)
		if err != nil || !found {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return ""
}

// checkSessionCookie reports whether the session cookie is set and still
// valid. The verdict stays with the login response; this only warns.
func (s *Session) checkSessionCookie(ctx context.Context, name string) bool {
	cookies, err := s.page.Cookies(ctx)
	if err != nil {
		log.Printf("[login] Failed to read cookies: %v", err)
		return false
	}
	state := auth.SessionCookie(cookies, name)
	valid := state.Valid(time.Now())
	switch {
	case !state.Present:
		log.Printf("[login] Session cookie %s was not set", name)
	case !valid:
		log.Printf("[login] WARNING: session cookie %s for %s already expired at %s", name, state.Domain, state.ExpiresAt.Format(time.RFC3339))
	case state.ExpiresAt.IsZero():
		log.Printf("[login] Session cookie %s set for %s (browser session)", name, state.Domain)
	default:
		log.Printf("[login] Session cookie %s set for %s, expires %s", name, state.Domain, state.ExpiresAt.Format(time.RFC3339))
	}
	return valid
}
