package types

import (
	"errors"
	"time"
)

// Run-level and step-level failure kinds. Callers match with errors.Is.
var (
	ErrLaunch             = errors.New("browser launch failed")
	ErrSelectorNotFound   = errors.New("selector not found")
	ErrNavigationTimeout  = errors.New("network idle wait timed out")
	ErrLoginFailed        = errors.New("login failed")
	ErrUnexpectedResponse = errors.New("unexpected login response")
)

// Credentials is the username/password pair handed to the login step.
type Credentials struct {
	Username string
	Password string
}

// Query is one named DOM fact to check on a probed page.
type Query struct {
	Name     string `toml:"name" json:"name"`
	Selector string `toml:"selector" json:"selector"`
	// Attribute, when set, reads that attribute of the first match
	// instead of its inner text.
	Attribute string `toml:"attribute,omitempty" json:"attribute,omitempty"`
	// Contains, when set, must appear in the first match's text or
	// attribute value.
	Contains string `toml:"contains,omitempty" json:"contains,omitempty"`
	// MinCount is the minimum number of matching elements (default 1).
	MinCount int `toml:"min_count,omitempty" json:"min_count,omitempty"`
	// Absent inverts the check: the selector must not match anything.
	Absent bool `toml:"absent,omitempty" json:"absent,omitempty"`
}

// ActionKind names a page interaction run before a probe is evaluated.
type ActionKind string

const (
	ActionClick  ActionKind = "click"
	ActionFill   ActionKind = "fill"
	ActionUpload ActionKind = "upload"
	ActionWait   ActionKind = "wait"
)

// Action is an interaction performed after the page settles and before
// queries are evaluated. For ActionWait, Value is a duration string.
type Action struct {
	Kind     ActionKind `toml:"kind" json:"kind"`
	Selector string     `toml:"selector,omitempty" json:"selector,omitempty"`
	Value    string     `toml:"value,omitempty" json:"value,omitempty"`
}

// ProbeTarget is a page path plus the DOM facts to check on it.
type ProbeTarget struct {
	Name    string   `toml:"name" json:"name"`
	Path    string   `toml:"path" json:"path"`
	Queries []Query  `toml:"queries" json:"queries"`
	Actions []Action `toml:"actions,omitempty" json:"actions,omitempty"`
}

// ProbeResult is the recorded outcome of visiting one ProbeTarget.
type ProbeResult struct {
	Target         string            `json:"target"`
	Path           string            `json:"path"`
	URL            string            `json:"url"`
	Title          string            `json:"title"`
	Status         int               `json:"status"`
	Matched        []string          `json:"matched"`
	Missing        []string          `json:"missing"`
	Snippets       map[string]string `json:"snippets"`
	Console        []string          `json:"console,omitempty"`
	FailedRequests []string          `json:"failed_requests,omitempty"`
	Screenshot     string            `json:"screenshot"`
	Partial        bool              `json:"partial"`
	Success        bool              `json:"success"`
	Message        string            `json:"message,omitempty"`
	Duration       time.Duration     `json:"duration"`
}

// LoginOutcome describes one login attempt.
type LoginOutcome struct {
	Success           bool   `json:"success"`
	ResultingURL      string `json:"resulting_url"`
	ObservedErrorText string `json:"observed_error_text,omitempty"`
	Status            int    `json:"status,omitempty"`
	UserName          string `json:"user_name,omitempty"`
	UserRole          string `json:"user_role,omitempty"`
	Screenshot        string `json:"screenshot,omitempty"`
}

// RunState is a node in the per-run state machine.
type RunState string

const (
	StateIdle        RunState = "idle"
	StateSessionOpen RunState = "session_open"
	StateLoggedIn    RunState = "logged_in"
	StateProbing     RunState = "probing"
	StateClosed      RunState = "closed"
	StateAborted     RunState = "aborted"
)

// RunReport is everything one run produced.
type RunReport struct {
	ID         string        `json:"id"`
	BaseURL    string        `json:"base_url"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	State      RunState      `json:"state"`
	Login      *LoginOutcome `json:"login,omitempty"`
	Results    []ProbeResult `json:"results"`
	Error      string        `json:"error,omitempty"`
	Err        error         `json:"-"`
}

// Passed counts successful results.
func (r *RunReport) Passed() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}

// Failed counts unsuccessful results.
func (r *RunReport) Failed() int {
	return len(r.Results) - r.Passed()
}

// OK reports whether the run finished normally with every probe passing.
func (r *RunReport) OK() bool {
	return r.State == StateClosed && r.Err == nil && r.Failed() == 0
}
