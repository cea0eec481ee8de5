package report

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/ibeckermayer/pageprobe/internal/store"
	"github.com/ibeckermayer/pageprobe/internal/types"
)

func TestLine(t *testing.T) {
	pass := types.ProbeResult{Path: "/admin", Status: 200, Title: "Admin", Success: true, Screenshot: "shots/admin.png"}
	line := Line(pass)
	assert.Contains(t, line, "PASS")
	assert.Contains(t, line, "/admin")
	assert.Contains(t, line, "[200]")
	assert.Contains(t, line, `"Admin"`)
	assert.Contains(t, line, "shots/admin.png")

	partial := pass
	partial.Partial = true
	assert.Contains(t, Line(partial), "PARTIAL")

	fail := types.ProbeResult{Path: "/admin/staff", Status: 200, Missing: []string{"table", "tabs"}, Message: "table: selector not found"}
	line = Line(fail)
	assert.Contains(t, line, "FAIL")
	assert.Contains(t, line, "missing: table, tabs")
	assert.Contains(t, line, "selector not found")
	assert.NotContains(t, line, "\n")
}

func TestLoginLine(t *testing.T) {
	ok := LoginLine(types.LoginOutcome{Success: true, ResultingURL: "http://app.test/admin", UserName: "Alice", UserRole: "admin"})
	assert.Contains(t, ok, "LOGIN")
	assert.Contains(t, ok, "as Alice (admin)")

	bad := LoginLine(types.LoginOutcome{ResultingURL: "http://app.test/login", ObservedErrorText: "Invalid credentials"})
	assert.Contains(t, bad, "http://app.test/login")
	assert.Contains(t, bad, "Invalid credentials")
}

func TestSummary(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := &types.RunReport{
		ID:         "0f8fad5b-d9cb-469f-a165-70867728950e",
		BaseURL:    "http://app.test",
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		State:      types.StateClosed,
		Results: []types.ProbeResult{
			{Path: "/a", Success: true},
			{Path: "/b", Success: true, Partial: true},
			{Path: "/c"},
		},
	}

	out := Summary(r)
	assert.Contains(t, out, "Run 0f8fad5b")
	assert.Contains(t, out, "http://app.test in 3s")
	assert.Contains(t, out, "2 passed, 1 failed")
	assert.Contains(t, out, "1 partial")
	assert.NotContains(t, out, "aborted")

	r.State = types.StateAborted
	r.Err = errors.New("login failed: Invalid credentials")
	r.Error = r.Err.Error()
	assert.Contains(t, Summary(r), "aborted: login failed: Invalid credentials")
}

func TestLine_MultibyteTextStaysValid(t *testing.T) {
	res := types.ProbeResult{
		Path:    "/réservations",
		Title:   strings.Repeat("Réservations ", 10),
		Message: strings.Repeat("élément introuvable ", 20),
	}

	line := Line(res)
	assert.True(t, utf8.ValidString(line))
	assert.Contains(t, line, "...")

	login := LoginLine(types.LoginOutcome{ResultingURL: "http://app.test/login", ObservedErrorText: strings.Repeat("日本語のエラー", 40)})
	assert.True(t, utf8.ValidString(login))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))

	cut := truncate(strings.Repeat("é", 150), 60)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, strings.Repeat("é", 57)+"...", cut)
}

func TestHistory(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	runs := []store.RunSummary{
		{ID: "0f8fad5b-d9cb-469f-a165-70867728950e", BaseURL: "http://app.test", StartedAt: start, State: types.StateClosed, Passed: 3},
		{ID: "7c9e6679-7425-40de-944b-e07fc1f90ae7", BaseURL: "http://app.test", StartedAt: start.Add(-time.Hour), State: types.StateAborted, Error: "login failed"},
	}

	out := History(runs)
	for _, want := range []string{"STARTED", "RUN", "STATE", "BASE URL", "0f8fad5b", "7c9e6679", "closed", "aborted", "http://app.test"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "d9cb")
	assert.Contains(t, out, "│", "rendered as a bordered table")

	assert.Contains(t, History(nil), "No runs recorded yet.")
}

func TestRunDetail(t *testing.T) {
	run := store.RunSummary{ID: "0f8fad5b-d9cb-469f-a165-70867728950e", BaseURL: "http://app.test", State: types.StateAborted, Error: "context canceled"}
	out := RunDetail(run, []types.ProbeResult{
		{Path: "/admin", Status: 200, Success: true},
		{Path: "/admin/staff", Missing: []string{"table"}},
	})

	assert.Contains(t, out, "Run 0f8fad5b")
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "/admin/staff")
	assert.Contains(t, out, "aborted: context canceled")
}
