package cmd

import (
	"fmt"
	"strings"

	"github.com/pkg/browser"
	"github.com/urfave/cli/v2"

	"github.com/ghtracker/internal/tracker"
	"github.com/ghtracker/pkg/models"
)

var openURL = browser.OpenURL

// OpenCommand returns the open command
func OpenCommand() *cli.Command {
	return &cli.Command{
		Name:      "open",
		Usage:     "Open an item of a template in the browser",
		ArgsUsage: "TEMPLATE NUMBER",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "repo",
				Usage: "Pick the item from `OWNER/REPO` when the number exists in several repositories",
			},
			&cli.BoolFlag{
				Name:  "print",
				Usage: "Print the URL instead of opening it",
			},
		},
		Action: runOpen,
	}
}

func runOpen(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("open requires TEMPLATE NUMBER", 2)
	}
	n, err := parseNumber(c.Args().Get(1))
	if err != nil {
		return err
	}
	var repo *models.RepositoryRef
	if raw := c.String("repo"); raw != "" {
		ref, err := models.ParseRepositoryRef(raw)
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		repo = &ref
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
	p, err := s.pipeline()
	if err != nil {
		return err
	}
	result, err := p.Load(c.Context, q, tracker.LoadOptions{})
	if err != nil {
		return err
	}

	item, err := findItem(result.Items, n, repo)
	if err != nil {
		return err
	}

	if c.Bool("print") {
		fmt.Fprintln(c.App.Writer, item.URL)
		return nil
	}
	s.log.Debug().Str("url", item.URL).Msg("opening item")
	if err := openURL(item.URL); err != nil {
		return fmt.Errorf("failed to open %s: %w", item.URL, err)
	}
	return nil
}

func findItem(items []models.Item, number int, repo *models.RepositoryRef) (models.Item, error) {
	var matches []models.Item
	for _, item := range items {
		if item.Number != number {
			continue
		}
		if repo != nil && item.RepositoryName != repo.FullName() {
			continue
		}
		matches = append(matches, item)
	}

	switch len(matches) {
	case 0:
		return models.Item{}, fmt.Errorf("no item #%d in the template's results", number)
	case 1:
		return matches[0], nil
	default:
		repos := make([]string, 0, len(matches))
		for _, m := range matches {
			repos = append(repos, m.RepositoryName)
		}
		return models.Item{}, fmt.Errorf("#%d exists in %s, pick one with --repo", number, strings.Join(repos, ", "))
	}
}
