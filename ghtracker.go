package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ghtracker/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	if err := cmd.LoadEnvFiles(cmd.EnvFiles...); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cmd.NewApp(version)
	err := app.RunContext(ctx, os.Args)
	if err == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	code := 1
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	stop()
	os.Exit(code)
}
