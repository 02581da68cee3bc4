package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ghtracker/internal/templates"
	"github.com/ghtracker/pkg/models"
)

// AnnotateCommands returns the commands that edit a template's annotations
func AnnotateCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "ignore",
			Usage:     "Hide items from the listing",
			ArgsUsage: "TEMPLATE NUMBER...",
			Action: func(c *cli.Context) error {
				return editNumbers(c, func(q *models.QueryDefinition, n int) string {
					q.Ignore(n)
					return fmt.Sprintf("#%d ignored", n)
				})
			},
		},
		{
			Name:      "unignore",
			Usage:     "Show previously ignored items again",
			ArgsUsage: "TEMPLATE NUMBER...",
			Action: func(c *cli.Context) error {
				return editNumbers(c, func(q *models.QueryDefinition, n int) string {
					q.Unignore(n)
					return fmt.Sprintf("#%d no longer ignored", n)
				})
			},
		},
		{
			Name:      "status",
			Usage:     "Set a status override, or advance to the next status when STATUS is omitted",
			ArgsUsage: "TEMPLATE NUMBER [STATUS]",
			Action:    runStatus,
		},
		{
			Name:      "note",
			Usage:     "Attach a note to an item, or remove it when TEXT is omitted",
			ArgsUsage: "TEMPLATE NUMBER [TEXT...]",
			Action:    runNote,
		},
	}
}

func parseNumber(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(s, "#"))
	if err != nil || n <= 0 {
		return 0, cli.Exit(fmt.Sprintf("invalid item number %q", s), 2)
	}
	return n, nil
}

// editTemplate loads the template, applies edit and saves it back in its own format
func editTemplate(c *cli.Context, edit func(q *models.QueryDefinition) ([]string, error)) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	path, q, err := s.loadTemplate(c.Args().First())
	if err != nil {
		return err
	}

	messages, err := edit(q)
	if err != nil {
		return err
	}
	if err := templates.Save(path, q); err != nil {
		return err
	}
	s.log.Info().Str("template", path).Strs("changes", messages).Msg("annotations saved")

	for _, m := range messages {
		fmt.Fprintln(c.App.Writer, m)
	}
	return nil
}

func editNumbers(c *cli.Context, apply func(q *models.QueryDefinition, n int) string) error {
	if c.NArg() < 2 {
		return cli.Exit(c.Command.Name+" requires TEMPLATE and at least one NUMBER", 2)
	}
	numbers := make([]int, 0, c.NArg()-1)
	for _, arg := range c.Args().Tail() {
		n, err := parseNumber(arg)
		if err != nil {
			return err
		}
		numbers = append(numbers, n)
	}

	return editTemplate(c, func(q *models.QueryDefinition) ([]string, error) {
		messages := make([]string, 0, len(numbers))
		for _, n := range numbers {
			messages = append(messages, apply(q, n))
		}
		return messages, nil
	})
}

func runStatus(c *cli.Context) error {
	if c.NArg() < 2 || c.NArg() > 3 {
		return cli.Exit("status requires TEMPLATE NUMBER [STATUS]", 2)
	}
	n, err := parseNumber(c.Args().Get(1))
	if err != nil {
		return err
	}

	var explicit models.Status
	if c.NArg() == 3 {
		explicit, err = models.ParseStatus(c.Args().Get(2))
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
	}

	return editTemplate(c, func(q *models.QueryDefinition) ([]string, error) {
		status := explicit
		if status == "" {
			current, ok := q.StatusOverrides[n]
			if !ok {
				current = models.StatusNone
			}
			status = current.Next()
		}
		q.SetStatus(n, status)
		if status == models.StatusNone {
			return []string{fmt.Sprintf("#%d status cleared", n)}, nil
		}
		return []string{fmt.Sprintf("#%d status set to %s", n, status)}, nil
	})
}

func runNote(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.Exit("note requires TEMPLATE NUMBER [TEXT...]", 2)
	}
	n, err := parseNumber(c.Args().Get(1))
	if err != nil {
		return err
	}
	text := strings.TrimSpace(strings.Join(c.Args().Slice()[2:], " "))

	return editTemplate(c, func(q *models.QueryDefinition) ([]string, error) {
		q.SetNote(n, text)
		if text == "" {
			return []string{fmt.Sprintf("#%d note removed", n)}, nil
		}
		return []string{fmt.Sprintf("#%d note saved", n)}, nil
	})
}
