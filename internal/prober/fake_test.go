package prober

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ibeckermayer/pageprobe/internal/driver"
	"github.com/ibeckermayer/pageprobe/internal/types"
)

const testBaseURL = "http://app.test"

// fakeDoc is a page as seen through selectors: each selector maps to the
// inner texts of its matches.
type fakeDoc struct {
	title  string
	status int
	elems  map[string][]string
	attrs  map[string]map[string]string
	// lists holds every match's attribute, keyed "selector@name".
	lists  map[string][]string
	events []driver.Event
}

// fakePage is a scripted in-memory driver.Page.
type fakePage struct {
	docs    map[string]fakeDoc
	url     string
	doc     fakeDoc
	idleErr error

	submitSelector string
	onSubmit       func(f *fakePage) *driver.Response
	lastResp       *driver.Response

	navigations []string
	filled      map[string]string
	clicks      []string
	uploads     map[string][]string
	shots       []string
	shotErr     error
	cookies     []driver.Cookie
	events      []driver.Event
	closed      int
}

func newFakePage(docs map[string]fakeDoc) *fakePage {
	return &fakePage{
		docs:           docs,
		submitSelector: `button[type="submit"]`,
		filled:         make(map[string]string),
		uploads:        make(map[string][]string),
	}
}

// goTo switches the current document without a navigation, like a
// client-side redirect.
func (f *fakePage) goTo(path string) {
	f.url = testBaseURL + path
	f.doc = f.docs[path]
}

func (f *fakePage) Navigate(ctx context.Context, url string) (int, error) {
	f.navigations = append(f.navigations, url)
	f.url = url
	f.doc = f.docs[url[len(testBaseURL):]]
	f.events = append(f.events, f.doc.events...)
	if f.doc.status == 0 {
		return 200, nil
	}
	return f.doc.status, nil
}

func (f *fakePage) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	return f.idleErr
}

func (f *fakePage) URL(ctx context.Context) (string, error) { return f.url, nil }

func (f *fakePage) Title(ctx context.Context) (string, error) { return f.doc.title, nil }

func (f *fakePage) Count(ctx context.Context, selector string) (int, error) {
	return len(f.doc.elems[selector]), nil
}

func (f *fakePage) Text(ctx context.Context, selector string) (string, bool, error) {
	texts := f.doc.elems[selector]
	if len(texts) == 0 {
		return "", false, nil
	}
	return texts[0], true, nil
}

func (f *fakePage) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	v, ok := f.doc.attrs[selector][name]
	return v, ok, nil
}

func (f *fakePage) Attributes(ctx context.Context, selector, name string) ([]string, error) {
	return f.doc.lists[selector+"@"+name], nil
}

func (f *fakePage) Fill(ctx context.Context, selector, value string) error {
	f.filled[selector] = value
	return nil
}

func (f *fakePage) Click(ctx context.Context, selector string) error {
	f.clicks = append(f.clicks, selector)
	if selector == f.submitSelector && f.onSubmit != nil {
		f.lastResp = f.onSubmit(f)
	}
	return nil
}

func (f *fakePage) SetFiles(ctx context.Context, selector string, files []string) error {
	f.uploads[selector] = files
	return nil
}

func (f *fakePage) WaitURL(ctx context.Context, match func(string) bool, timeout time.Duration) (string, error) {
	if match(f.url) {
		return f.url, nil
	}
	return f.url, errors.New("url wait timed out")
}

func (f *fakePage) ExpectResponse(ctx context.Context, match func(string) bool, trigger func() error, timeout time.Duration) (*driver.Response, error) {
	if err := trigger(); err != nil {
		return nil, err
	}
	if f.lastResp == nil || !match(f.lastResp.URL) {
		return nil, errors.New("response wait timed out")
	}
	return f.lastResp, nil
}

func (f *fakePage) Screenshot(ctx context.Context, path string) error {
	if f.shotErr != nil {
		return f.shotErr
	}
	f.shots = append(f.shots, path)
	return nil
}

func (f *fakePage) Cookies(ctx context.Context) ([]driver.Cookie, error) { return f.cookies, nil }

func (f *fakePage) DrainEvents() []driver.Event {
	out := f.events
	f.events = nil
	return out
}

func (f *fakePage) Close() error {
	f.closed++
	return nil
}

// mockLauncher hands out a prepared page.
type mockLauncher struct {
	mock.Mock
}

func (m *mockLauncher) Launch(ctx context.Context, opts driver.LaunchOptions) (driver.Page, error) {
	args := m.Called(ctx, opts)
	page, _ := args.Get(0).(driver.Page)
	return page, args.Error(1)
}

func launcherFor(page driver.Page) *mockLauncher {
	l := &mockLauncher{}
	l.On("Launch", mock.Anything, mock.Anything).Return(page, nil)
	return l
}

func loginDoc() fakeDoc {
	return fakeDoc{
		title: "Sign in",
		elems: map[string][]string{
			"#username":             {""},
			"#password":             {""},
			`button[type="submit"]`: {"Sign in"},
		},
	}
}

func adminDoc() fakeDoc {
	return fakeDoc{
		title: "Admin",
		elems: map[string][]string{
			"h1":   {"Dashboard"},
			"main": {"Dashboard\n\n  Welcome back,   Alice"},
			"tr":   {"row 1", "row 2", "row 3"},
		},
	}
}

func testForm() LoginForm {
	return LoginForm{
		Path:              "/login",
		UsernameSelectors: []string{"#username", `input[type="email"]`},
		PasswordSelectors: []string{"#password", `input[type="password"]`},
		SubmitSelectors:   []string{`button[type="submit"]`},
		ErrorSelectors:    []string{".bg-red-50", `[role="alert"]`},
		EndpointPattern:   "*/api/auth/login*",
		SessionCookie:     "auth-token",
		Timeout:           time.Second,
	}
}

var testCreds = types.Credentials{Username: "alice@example.com", Password: "hunter22"}

// acceptLogin answers the login POST with success and redirects to /admin.
func acceptLogin(f *fakePage) *driver.Response {
	f.goTo("/admin")
	f.cookies = []driver.Cookie{{Name: "auth-token", Value: "tok", Domain: "app.test"}}
	return &driver.Response{
		URL:    testBaseURL + "/api/auth/login",
		Status: 200,
		Body:   []byte(`{"success":true,"user":{"name":"Alice","role":"admin"}}`),
	}
}

// rejectLogin answers with 401 and shows an error banner.
func rejectLogin(f *fakePage) *driver.Response {
	f.doc.elems[".bg-red-50"] = []string{"  Invalid username or password  "}
	return &driver.Response{
		URL:    testBaseURL + "/api/auth/login",
		Status: 401,
		Body:   []byte(`{"success":false,"error":"Invalid credentials"}`),
	}
}

func sessionOpts(dir string) SessionOptions {
	return SessionOptions{
		BaseURL:            testBaseURL,
		Headless:           true,
		NetworkIdleTimeout: time.Second,
		ScreenshotDir:      dir,
	}
}
