package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ghtracker/internal/tracker"
	"github.com/ghtracker/pkg/models"
)

// ListCommand returns the list command
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "Fetch, filter and print the items selected by a template",
		ArgsUsage: "TEMPLATE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "refresh",
				Aliases: []string{"r"},
				Usage:   "Ignore cached results and fetch again",
			},
			&cli.StringFlag{
				Name:    "sort",
				Aliases: []string{"s"},
				Usage:   "Sort by status, type, number, repo, title or updated",
			},
			&cli.BoolFlag{
				Name:  "asc",
				Usage: "Sort ascending",
			},
			&cli.BoolFlag{
				Name:  "desc",
				Usage: "Sort descending",
			},
			&cli.BoolFlag{
				Name:  "show-ignored",
				Usage: "Include ignored items",
			},
			&cli.StringFlag{
				Name:  "search",
				Usage: "Only show items mentioning `TEXT`",
			},
			&cli.StringFlag{
				Name:  "state",
				Usage: "Override the template state for this run (open, closed, all)",
			},
			&cli.BoolFlag{
				Name:  "discussions",
				Usage: "Include discussions for this run",
			},
			&cli.BoolFlag{
				Name:  "no-discussions",
				Usage: "Leave discussions out for this run",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print JSON instead of a table",
			},
		},
		Action: runList,
	}
}

func runList(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("list requires exactly one TEMPLATE argument", 2)
	}
	if c.Bool("asc") && c.Bool("desc") {
		return cli.Exit("--asc and --desc are mutually exclusive", 2)
	}

	var sortKey tracker.SortKey
	if raw := c.String("sort"); raw != "" {
		key, err := tracker.ParseSortKey(raw)
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		sortKey = key
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	_, q, err := s.loadTemplate(c.Args().First())
	if err != nil {
		return err
	}
	if err := applyRunOverrides(c, q); err != nil {
		return err
	}

	p, err := s.pipeline()
	if err != nil {
		return err
	}
	result, err := p.Load(c.Context, q, tracker.LoadOptions{ForceRefresh: c.Bool("refresh")})
	if err != nil {
		return err
	}

	items := tracker.Visible(result.Items, c.Bool("show-ignored"))
	items = tracker.Search(items, c.String("search"))
	if sortKey != "" {
		desc := tracker.DefaultDescending(sortKey)
		switch {
		case c.Bool("asc"):
			desc = false
		case c.Bool("desc"):
			desc = true
		}
		tracker.SortBy(items, sortKey, desc)
	}

	if c.Bool("json") {
		return writeJSON(c.App.Writer, q.Name, result, items)
	}

	printFailures(c.App.ErrWriter, result.Failures)
	if len(items) == 0 {
		fmt.Fprintf(c.App.Writer, "No items match template %q\n", q.Name)
		return nil
	}
	renderItems(c.App.Writer, items)
	fmt.Fprintf(c.App.Writer, "%d items from %s in %s\n", len(items), result.Origin, result.Elapsed.Round(time.Millisecond))
	return nil
}

// applyRunOverrides changes the in-memory query for this run only
func applyRunOverrides(c *cli.Context, q *models.QueryDefinition) error {
	if raw := c.String("state"); raw != "" {
		switch state := models.State(raw); state {
		case models.StateOpen, models.StateClosed, models.StateAll:
			q.State = state
		default:
			return cli.Exit(fmt.Sprintf("invalid --state %q: expected open, closed or all", raw), 2)
		}
	}
	switch {
	case c.Bool("discussions") && c.Bool("no-discussions"):
		return cli.Exit("--discussions and --no-discussions are mutually exclusive", 2)
	case c.IsSet("discussions"):
		q.IncludeDiscussions = c.Bool("discussions")
	case c.Bool("no-discussions"):
		q.IncludeDiscussions = false
	}
	return nil
}
