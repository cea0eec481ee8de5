package prober

import "github.com/ibeckermayer/pageprobe/internal/types"

// Page selectors used when a target is given on the command line
// without its own queries. Keep them generic: admin pages differ.
const (
	HeadingSelector     = `h1`
	MainSelector        = `main, [role="main"], body`
	ErrorBannerSelector = `[role="alert"], .bg-red-50, .alert-error`
)

// DefaultQueries is what `probe <path>` checks on every page.
func DefaultQueries() []types.Query {
	return []types.Query{
		{Name: "heading", Selector: HeadingSelector},
		{Name: "content", Selector: MainSelector},
		{Name: "error banner", Selector: ErrorBannerSelector, Absent: true},
	}
}
