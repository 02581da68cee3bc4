package cmd

import (
	"github.com/urfave/cli/v2"
)

// GlobalFlags are accepted by every command
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Load configuration from `FILE` (default ./ghtracker.toml, then ~/.ghtracker.toml)",
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "GitHub token",
			EnvVars: []string{"GITHUB_TOKEN"},
		},
		// no -v alias, urfave/cli claims it for --version
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Log debug output to the console",
		},
	}
}

// NewApp assembles the command line application. Exit codes are left to the caller.
func NewApp(version string) *cli.App {
	commands := []*cli.Command{
		ListCommand(),
		OpenCommand(),
		TemplatesCommand(),
		CacheCommand(),
		ConfigCommand(),
	}
	commands = append(commands, AnnotateCommands()...)

	return &cli.App{
		Name:                 "ghtracker",
		Usage:                "Track GitHub issues and discussions across repositories with saved queries",
		Version:              version,
		Flags:                GlobalFlags(),
		Commands:             commands,
		EnableBashCompletion: true,
		ExitErrHandler:       func(*cli.Context, error) {},
	}
}
