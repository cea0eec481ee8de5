package report

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ibeckermayer/pageprobe/internal/store"
	"github.com/ibeckermayer/pageprobe/internal/types"
)

var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// History renders recorded runs as a table, newest first as given.
func History(runs []store.RunSummary) string {
	if len(runs) == 0 {
		return dimStyle.Render("No runs recorded yet.")
	}

	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			shortID(r.ID),
			string(r.State),
			fmt.Sprint(r.Passed),
			fmt.Sprint(r.Failed),
			r.BaseURL,
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("STARTED", "RUN", "STATE", "PASSED", "FAILED", "BASE URL").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return titleStyle.Padding(0, 1)
			}
			if col == 2 && row >= 0 && row < len(runs) {
				if runs[row].OK() {
					return passStyle.Padding(0, 1)
				}
				return failStyle.Padding(0, 1)
			}
			return cellStyle
		})

	return t.String()
}

// RunDetail renders the stored results of one run, one line each.
func RunDetail(run store.RunSummary, results []types.ProbeResult) string {
	out := titleStyle.Render(fmt.Sprintf("Run %s", shortID(run.ID)))
	out += fmt.Sprintf(" %s %s (%s)\n", run.BaseURL, run.StartedAt.Local().Format("2006-01-02 15:04:05"), run.State)
	for _, res := range results {
		out += Line(res) + "\n"
	}
	if run.Error != "" {
		out += failStyle.Render("aborted: ") + run.Error + "\n"
	}
	return out
}
