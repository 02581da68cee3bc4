package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ghtracker/internal/config"
)

// ConfigCommand groups the commands that write and check ghtracker.toml
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Write or check the tracker configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a commented sample ghtracker.toml",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the sample to `FILE`",
						Value:   "ghtracker.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Load the configuration, report problems and show where the GitHub token comes from",
				Action: runConfigValidate,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	target := c.String("output")
	if err := config.InitConfig(target); err != nil {
		return cli.Exit(fmt.Sprintf("config init: %v", err), 1)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Wrote sample configuration to %s\n", target)
	fmt.Fprintf(w, "Point ghtracker at it with --config %s or move it to ./ghtracker.toml\n", target)
	return nil
}

func runConfigValidate(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("config validate: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validate: %w", err)
	}

	w := c.App.Writer
	source := cfg.Path
	if source == "" {
		source = "built-in defaults (no ghtracker.toml found)"
	}
	fmt.Fprintf(w, "Settings from %s look good\n", source)
	fmt.Fprintf(w, "Templates: %s, cache: %s (ttl %s), logs: %s\n",
		cfg.Templates.Dir, cfg.Cache.Dir, cfg.Cache.TTL, cfg.Logging.Dir)

	token, from := ResolveToken(c.Context, c.String("token"), cfg.GitHub.Token)
	PrintCredentialCheck(w, CredentialCheck{Source: from, Masked: maskSecret(token)})
	return nil
}
