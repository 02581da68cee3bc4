package cmd

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	TokenSourceFlag   = "flag"
	TokenSourceEnv    = "env"
	TokenSourceConfig = "config"
	TokenSourceGH     = "gh"
	TokenSourceNone   = "none"
)

const ghTimeout = 5 * time.Second

// ghAuthToken asks the GitHub CLI for its stored token
var ghAuthToken = func(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ghTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "gh", "auth", "token").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ResolveToken picks the token from the --token flag, GITHUB_TOKEN, the config file and
// finally `gh auth token`. An empty token means anonymous access.
func ResolveToken(ctx context.Context, flagValue, configValue string) (string, string) {
	if flagValue != "" {
		if flagValue == os.Getenv("GITHUB_TOKEN") {
			return flagValue, TokenSourceEnv
		}
		return flagValue, TokenSourceFlag
	}
	if env := os.Getenv("GITHUB_TOKEN"); env != "" {
		return env, TokenSourceEnv
	}
	if configValue != "" {
		return configValue, TokenSourceConfig
	}
	if token, err := ghAuthToken(ctx); err == nil && token != "" {
		return token, TokenSourceGH
	}
	return "", TokenSourceNone
}
