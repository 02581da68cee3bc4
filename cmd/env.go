package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// EnvFiles are loaded in order at startup. Variables already set in the
// environment take precedence.
var EnvFiles = []string{".env", ".env.local"}

// LoadEnvFiles loads the dotenv files that exist. Missing files are skipped.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// CredentialCheck describes where the GitHub token would come from
type CredentialCheck struct {
	Source string // flag, env, config, gh or none
	Masked string
}

// PrintCredentialCheck prints the outcome of token resolution
func PrintCredentialCheck(w io.Writer, check CredentialCheck) {
	if check.Source == TokenSourceNone {
		fmt.Fprintln(w, "GitHub token: not configured, requests are anonymous and heavily rate limited")
		return
	}
	fmt.Fprintf(w, "GitHub token: %s (from %s)\n", check.Masked, check.Source)
}

// maskSecret masks a secret value for display, showing only first and last 2 chars
func maskSecret(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:2] + "****" + value[len(value)-2:]
}
