package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/urfave/cli/v2"

	"github.com/ghtracker/internal/templates"
)

// TemplatesCommand returns the templates command
func TemplatesCommand() *cli.Command {
	return &cli.Command{
		Name:   "templates",
		Usage:  "List the query templates, most recently used first",
		Action: runTemplates,
	}
}

func runTemplates(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := templates.List(s.cfg.Templates.Dir, s.usage)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(c.App.Writer, "No templates in %s\n", s.cfg.Templates.Dir)
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		lastUsed := "never"
		if !e.Usage.LastUsed.IsZero() {
			lastUsed = e.Usage.LastUsed.Local().Format("2006-01-02 15:04")
		}
		detail := strings.Join(e.Repositories, ", ")
		if e.Err != nil {
			detail = "error: " + e.Err.Error()
		}
		rows = append(rows, []string{
			filepath.Base(e.Path),
			e.Name,
			truncate(detail, 60),
			lastUsed,
			fmt.Sprint(e.Usage.UseCount),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("FILE", "NAME", "REPOSITORIES", "LAST USED", "USES").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row >= 0 && row < len(entries) && entries[row].Err != nil {
				return blockStyle
			}
			return cellStyle
		})
	fmt.Fprintln(c.App.Writer, t.String())
	return nil
}
