package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ghtracker/internal/tracker"
	"github.com/ghtracker/pkg/models"
)

const maxTitleWidth = 80

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	doneStyle   = cellStyle.Foreground(lipgloss.Color("240")).Italic(true)
	futureStyle = cellStyle.Foreground(lipgloss.Color("240"))
	blockStyle  = cellStyle.Foreground(lipgloss.Color("9"))
	activeStyle = cellStyle.Foreground(lipgloss.Color("12"))
	ignoreStyle = cellStyle.Foreground(lipgloss.Color("238")).Strikethrough(true)
)

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func statusLabel(item models.Item) string {
	label := strings.ReplaceAll(string(item.CustomStatus), "_", " ")
	if item.CustomStatus == models.StatusNone || item.CustomStatus == "" {
		label = ""
	}
	if item.IsIgnored {
		label = strings.TrimSpace("ignored " + label)
	}
	return label
}

func rowStyle(item models.Item) lipgloss.Style {
	switch {
	case item.IsIgnored:
		return ignoreStyle
	case item.CustomStatus == models.StatusDone:
		return doneStyle
	case item.CustomStatus == models.StatusFuture:
		return futureStyle
	case item.CustomStatus == models.StatusBlocked:
		return blockStyle
	case item.CustomStatus == models.StatusInProgress:
		return activeStyle
	default:
		return cellStyle
	}
}

// renderItems prints the listing table
func renderItems(w io.Writer, items []models.Item) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		kind := string(item.DetectedType)
		rows = append(rows, []string{
			statusLabel(item),
			kind,
			"#" + strconv.Itoa(item.Number),
			item.RepositoryName,
			truncate(item.Title, maxTitleWidth),
			item.UpdatedAt.Local().Format("2006-01-02"),
			truncate(item.CustomNote, 40),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("STATUS", "TYPE", "NUMBER", "REPOSITORY", "TITLE", "UPDATED", "NOTE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row < 0 || row >= len(items) {
				return cellStyle
			}
			return rowStyle(items[row])
		})

	fmt.Fprintln(w, t.String())
}

type failureJSON struct {
	Repository string `json:"repository"`
	Stage      string `json:"stage"`
	Error      string `json:"error"`
}

type listJSON struct {
	Template string        `json:"template"`
	RunID    string        `json:"run_id"`
	Origin   string        `json:"origin"`
	Count    int           `json:"count"`
	Items    []models.Item `json:"items"`
	Failures []failureJSON `json:"failures,omitempty"`
}

func writeJSON(w io.Writer, template string, result *tracker.Result, items []models.Item) error {
	out := listJSON{
		Template: template,
		RunID:    result.RunID,
		Origin:   string(result.Origin),
		Count:    len(items),
		Items:    items,
	}
	for _, f := range result.Failures {
		out.Failures = append(out.Failures, failureJSON{Repository: f.Repo, Stage: string(f.Stage), Error: f.Err.Error()})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printFailures(w io.Writer, failures []tracker.Failure) {
	for _, f := range failures {
		fmt.Fprintf(w, "warning: %s\n", f.Error())
	}
}
