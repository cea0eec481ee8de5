package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ibeckermayer/pageprobe/internal/driver"
)

func TestSessionCookie(t *testing.T) {
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	cookies := []driver.Cookie{
		{Name: "theme", Value: "dark", Domain: "app.test"},
		{Name: "auth-token", Value: "", Domain: "stale.test"},
		{Name: "auth-token", Value: "abc", Domain: "app.test", Expires: expires, HTTPOnly: true},
	}

	state := SessionCookie(cookies, "auth-token")
	assert.True(t, state.Present)
	assert.Equal(t, "app.test", state.Domain)
	assert.Equal(t, expires, state.ExpiresAt)

	assert.False(t, SessionCookie(cookies, "session").Present)
	assert.False(t, SessionCookie(nil, "auth-token").Present)
}

func TestSessionState_Valid(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, SessionState{}.Valid(now))
	assert.True(t, SessionState{Present: true}.Valid(now), "no expiry means a browser-session cookie")
	assert.True(t, SessionState{Present: true, ExpiresAt: now.Add(time.Hour)}.Valid(now))
	assert.False(t, SessionState{Present: true, ExpiresAt: now.Add(-time.Minute)}.Valid(now))
}
