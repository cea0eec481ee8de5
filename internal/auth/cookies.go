package auth

import (
	"time"

	"github.com/ibeckermayer/pageprobe/internal/driver"
)

// SessionState describes the session cookie a successful login sets.
type SessionState struct {
	Present   bool
	Domain    string
	ExpiresAt time.Time
}

// SessionCookie looks for the named session cookie. Cookies are only
// inspected, never stored.
func SessionCookie(cookies []driver.Cookie, name string) SessionState {
	for _, c := range cookies {
		if c.Name == name && c.Value != "" {
			return SessionState{Present: true, Domain: c.Domain, ExpiresAt: c.Expires}
		}
	}
	return SessionState{}
}

// Valid reports whether the cookie exists and has not expired. Session
// cookies without an expiry are valid until the browser closes.
func (s SessionState) Valid(now time.Time) bool {
	if !s.Present {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}
