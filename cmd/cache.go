package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/urfave/cli/v2"
)

// CacheCommand returns the cache command
func CacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear cached results",
		Subcommands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "Show the cached entries",
				Action: runCacheInfo,
			},
			{
				Name:      "clear",
				Usage:     "Remove the entry of TEMPLATE, or every entry when omitted",
				ArgsUsage: "[TEMPLATE]",
				Action:    runCacheClear,
			},
		},
	}
}

func runCacheInfo(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.store.Info()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(c.App.Writer, "Cache at %s is empty\n", s.store.Dir())
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		state := "fresh"
		if e.Expired {
			state = "expired"
		}
		rows = append(rows, []string{
			e.TemplateName,
			fmt.Sprint(e.IssueCount),
			strings.Join(e.Repositories, ", "),
			e.CachedAt.Local().Format("2006-01-02 15:04"),
			state,
			e.Fingerprint[:12],
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("TEMPLATE", "ITEMS", "REPOSITORIES", "CACHED", "STATE", "KEY").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(c.App.Writer, t.String())
	fmt.Fprintf(c.App.Writer, "%d entries in %s\n", len(entries), s.store.Dir())
	return nil
}

func runCacheClear(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if c.NArg() == 0 {
		removed, err := s.store.InvalidateAll()
		if err != nil {
			return err
		}
		s.log.Info().Int("removed", removed).Msg("cache cleared")
		fmt.Fprintf(c.App.Writer, "Removed %d cache files\n", removed)
		return nil
	}

	_, q, err := s.loadTemplate(c.Args().First())
	if err != nil {
		return err
	}
	if err := s.store.Invalidate(q); err != nil {
		return err
	}
	s.log.Info().Str("template", q.Name).Msg("cache entry cleared")
	fmt.Fprintf(c.App.Writer, "Cleared cached results of %q\n", q.Name)
	return nil
}
