// Package report renders run reports for the terminal.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/ibeckermayer/pageprobe/internal/types"
)

var (
	passStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	partialStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
)

// Line renders one probe result as a single status line.
func Line(res types.ProbeResult) string {
	var tag string
	switch {
	case res.Success && res.Partial:
		tag = partialStyle.Render("PARTIAL")
	case res.Success:
		tag = passStyle.Render("PASS")
	default:
		tag = failStyle.Render("FAIL")
	}

	line := fmt.Sprintf("%s %s", tag, res.Path)
	if res.Status > 0 {
		line += dimStyle.Render(fmt.Sprintf(" [%d]", res.Status))
	}
	if res.Title != "" {
		line += fmt.Sprintf(" %q", truncate(res.Title, 60))
	}
	if len(res.Missing) > 0 {
		line += " missing: " + strings.Join(res.Missing, ", ")
	}
	if !res.Success && res.Message != "" {
		line += dimStyle.Render(" (" + truncate(res.Message, 160) + ")")
	}
	if res.Screenshot != "" {
		line += dimStyle.Render(" -> " + res.Screenshot)
	}
	return line
}

// LoginLine renders the outcome of the login step.
func LoginLine(o types.LoginOutcome) string {
	if o.Success {
		who := o.UserName
		if o.UserRole != "" {
			who = fmt.Sprintf("%s (%s)", o.UserName, o.UserRole)
		}
		line := passStyle.Render("LOGIN") + " " + o.ResultingURL
		if strings.TrimSpace(who) != "" {
			line += " as " + who
		}
		return line
	}

	line := failStyle.Render("LOGIN") + " " + o.ResultingURL
	if o.ObservedErrorText != "" {
		line += dimStyle.Render(fmt.Sprintf(" (%s)", truncate(o.ObservedErrorText, 160)))
	}
	return line
}

// Summary renders the closing block of a run: totals, then the reason the
// run stopped if it was aborted.
func Summary(r *types.RunReport) string {
	var buf bytes.Buffer

	elapsed := r.FinishedAt.Sub(r.StartedAt).Round(100 * time.Millisecond)
	buf.WriteString(titleStyle.Render(fmt.Sprintf("Run %s", shortID(r.ID))))
	buf.WriteString(fmt.Sprintf(" %s in %v\n", r.BaseURL, elapsed))

	counts := fmt.Sprintf("%d passed, %d failed", r.Passed(), r.Failed())
	if r.OK() {
		buf.WriteString(passStyle.Render(counts))
	} else {
		buf.WriteString(failStyle.Render(counts))
	}
	if partial := countPartial(r.Results); partial > 0 {
		buf.WriteString(partialStyle.Render(fmt.Sprintf(", %d partial", partial)))
	}
	buf.WriteString("\n")

	if r.State == types.StateAborted && r.Error != "" {
		buf.WriteString(failStyle.Render("aborted: ") + r.Error + "\n")
	}
	return buf.String()
}

func countPartial(results []types.ProbeResult) int {
	n := 0
	for _, res := range results {
		if res.Partial {
			n++
		}
	}
	return n
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate shortens s to maxLen terminal cells without splitting a
// character.
func truncate(s string, maxLen int) string {
	return ansi.Truncate(s, maxLen, "...")
}
