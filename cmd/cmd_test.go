package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ghtracker/internal/templates"
	"github.com/ghtracker/pkg/models"
)

const trackerIssues = `[
  {"id": 1, "node_id": "I_1", "number": 12, "title": "Crash on save", "state": "open",
   "html_url": "https://github.com/acme/api/issues/12",
   "created_at": "2024-03-01T10:00:00Z", "updated_at": "2024-03-05T10:00:00Z",
   "user": {"login": "octocat"}, "labels": [{"name": "bug"}]},
  {"id": 2, "node_id": "I_2", "number": 15, "title": "Slow listing", "state": "open",
   "html_url": "https://github.com/acme/api/issues/15",
   "created_at": "2024-03-02T10:00:00Z", "updated_at": "2024-03-06T10:00:00Z",
   "user": {"login": "hubot"}, "labels": [{"name": "bug"}, {"name": "perf"}]},
  {"id": 3, "node_id": "I_3", "number": 16, "title": "Add dark mode", "state": "open",
   "html_url": "https://github.com/acme/api/issues/16",
   "created_at": "2024-03-03T10:00:00Z", "updated_at": "2024-03-07T10:00:00Z",
   "user": {"login": "hubot"}, "labels": [{"name": "enhancement"}]},
  {"id": 4, "node_id": "PR_4", "number": 17, "title": "Fix crash", "state": "open",
   "html_url": "https://github.com/acme/api/pull/17",
   "created_at": "2024-03-04T10:00:00Z", "updated_at": "2024-03-08T10:00:00Z",
   "user": {"login": "octocat"}, "labels": [{"name": "bug"}],
   "pull_request": {"url": "https://api.github.com/repos/acme/api/pulls/17"}}
]`

const bugsTemplate = `name: API bugs
repositories:
  - owner: acme
    repo: api
conditions:
  - type: label
    value: bug
`

type testEnv struct {
	dir      string
	config   string
	template string
	calls    atomic.Int32
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{dir: t.TempDir()}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.calls.Add(1)
		require.Equal(t, "/repos/acme/api/issues", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, trackerIssues)
	}))
	t.Cleanup(srv.Close)

	tplDir := filepath.Join(env.dir, "templates")
	require.NoError(t, os.MkdirAll(tplDir, 0o755))
	env.template = filepath.Join(tplDir, "bugs.yaml")
	require.NoError(t, os.WriteFile(env.template, []byte(bugsTemplate), 0o644))

	env.config = filepath.Join(env.dir, "ghtracker.toml")
	cfg := fmt.Sprintf(`[github]
api_url = %q
graphql_url = %q

[cache]
dir = %q

[retry]
base_delay = "1ms"
max_delay = "2ms"

[logging]
dir = %q

[templates]
dir = %q
usage_file = %q
`, srv.URL, srv.URL+"/graphql", filepath.Join(env.dir, "cache"), filepath.Join(env.dir, "logs"),
		tplDir, filepath.Join(env.dir, "usage.json"))
	require.NoError(t, os.WriteFile(env.config, []byte(cfg), 0o644))

	t.Setenv("GITHUB_TOKEN", "test-token")
	stubGHAuth(t, "", errors.New("gh not installed"))
	return env
}

func stubGHAuth(t *testing.T, token string, err error) {
	t.Helper()
	orig := ghAuthToken
	ghAuthToken = func(context.Context) (string, error) { return token, err }
	t.Cleanup(func() { ghAuthToken = orig })
}

func (e *testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := NewApp("test")
	app.Writer = &stdout
	app.ErrWriter = &stderr

	argv := append([]string{"ghtracker", "--config", e.config}, args...)
	err := app.RunContext(context.Background(), argv)
	return stdout.String(), stderr.String(), err
}

func decodeList(t *testing.T, out string) listJSON {
	t.Helper()
	var got listJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	return got
}

func itemNumbers(items []models.Item) []int {
	out := make([]int, 0, len(items))
	for _, i := range items {
		out = append(out, i.Number)
	}
	return out
}

func TestList_JSONThenCache(t *testing.T) {
	env := newTestEnv(t)

	out, _, err := env.run(t, "list", "--json", "bugs")
	require.NoError(t, err)
	first := decodeList(t, out)
	require.Equal(t, "API bugs", first.Template)
	require.Equal(t, "network", first.Origin)
	require.Equal(t, 2, first.Count)
	require.ElementsMatch(t, []int{12, 15}, itemNumbers(first.Items))
	require.NotEmpty(t, first.RunID)
	require.Equal(t, int32(1), env.calls.Load())

	out, _, err = env.run(t, "list", "--json", "--sort", "number", "--asc", "bugs")
	require.NoError(t, err)
	second := decodeList(t, out)
	require.Equal(t, "cache", second.Origin)
	require.Equal(t, []int{12, 15}, itemNumbers(second.Items))
	require.Equal(t, int32(1), env.calls.Load(), "cache hit must not fetch")

	out, _, err = env.run(t, "list", "--json", "--refresh", "bugs")
	require.NoError(t, err)
	require.Equal(t, "network", decodeList(t, out).Origin)
	require.Equal(t, int32(2), env.calls.Load())

	usage := templates.LoadUsage(filepath.Join(env.dir, "usage.json"))
	require.Equal(t, 3, usage.Get(env.template).UseCount)
}

func TestList_TableSearchAndIgnored(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.run(t, "ignore", "bugs", "12")
	require.NoError(t, err)

	out, _, err := env.run(t, "list", "bugs")
	require.NoError(t, err)
	require.Contains(t, out, "#15")
	require.NotContains(t, out, "#12")
	require.Contains(t, out, "1 items from network")

	out, _, err = env.run(t, "list", "--show-ignored", "--search", "CRASH", "bugs")
	require.NoError(t, err)
	require.Contains(t, out, "#12")
	require.NotContains(t, out, "#15")

	out, _, err = env.run(t, "list", "--search", "nothing-matches", "bugs")
	require.NoError(t, err)
	require.Contains(t, out, `No items match template "API bugs"`)
}

func TestList_UsageErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := map[string][]string{
		"no template":   {"list"},
		"bad sort key":  {"list", "--sort", "priority", "bugs"},
		"asc and desc":  {"list", "--asc", "--desc", "bugs"},
		"bad state":     {"list", "--state", "merged", "bugs"},
		"unknown":       {"list", "missing-template"},
		"bad number":    {"ignore", "bugs", "twelve"},
		"status args":   {"status", "bugs"},
		"bad status":    {"status", "bugs", "12", "later"},
		"open no args":  {"open", "bugs"},
		"open bad repo": {"open", "--repo", "acme", "bugs", "12"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := env.run(t, args...)
			require.Error(t, err)
		})
	}
	require.Zero(t, env.calls.Load())
}

func TestAnnotateCommands_SaveTemplate(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.run(t, "ignore", "bugs", "12", "#15")
	require.NoError(t, err)
	_, _, err = env.run(t, "unignore", "bugs", "15")
	require.NoError(t, err)

	out, _, err := env.run(t, "status", "bugs", "12")
	require.NoError(t, err)
	require.Contains(t, out, "#12 status set to in_progress")
	_, _, err = env.run(t, "status", "bugs", "12")
	require.NoError(t, err)
	_, _, err = env.run(t, "status", "bugs", "15", "waiting")
	require.NoError(t, err)

	_, _, err = env.run(t, "note", "bugs", "15", "needs", "a", "profile")
	require.NoError(t, err)

	q, err := templates.Load(env.template)
	require.NoError(t, err)
	require.Equal(t, []int{12}, q.IgnoredIssues)
	require.Equal(t, models.StatusBlocked, q.StatusOverrides[12])
	require.Equal(t, models.StatusWaiting, q.StatusOverrides[15])
	require.Equal(t, "needs a profile", q.Notes[15])

	out, _, err = env.run(t, "status", "bugs", "12", "none")
	require.NoError(t, err)
	require.Contains(t, out, "#12 status cleared")
	_, _, err = env.run(t, "note", "bugs", "15")
	require.NoError(t, err)

	q, err = templates.Load(env.template)
	require.NoError(t, err)
	require.NotContains(t, q.StatusOverrides, 12)
	require.Empty(t, q.Notes)

	out, _, err = env.run(t, "list", "--json", "--show-ignored", "bugs")
	require.NoError(t, err)
	got := decodeList(t, out)
	for _, item := range got.Items {
		switch item.Number {
		case 12:
			require.True(t, item.IsIgnored)
			require.Equal(t, models.StatusNone, item.CustomStatus)
		case 15:
			require.False(t, item.IsIgnored)
			require.Equal(t, models.StatusWaiting, item.CustomStatus)
		}
	}
}

func TestOpen(t *testing.T) {
	env := newTestEnv(t)

	var opened []string
	orig := openURL
	openURL = func(url string) error {
		opened = append(opened, url)
		return nil
	}
	t.Cleanup(func() { openURL = orig })

	out, _, err := env.run(t, "open", "--print", "bugs", "15")
	require.NoError(t, err)
	require.Equal(t, "https://github.com/acme/api/issues/15\n", out)
	require.Empty(t, opened)

	_, _, err = env.run(t, "open", "--repo", "acme/api", "bugs", "#12")
	require.NoError(t, err)
	require.Equal(t, []string{"https://github.com/acme/api/issues/12"}, opened)

	_, _, err = env.run(t, "open", "bugs", "16")
	require.ErrorContains(t, err, "no item #16")
}

func TestFindItem_Ambiguous(t *testing.T) {
	items := []models.Item{
		{Number: 3, RepositoryName: "acme/api", URL: "a"},
		{Number: 3, RepositoryName: "acme/web", URL: "b"},
	}

	_, err := findItem(items, 3, nil)
	require.ErrorContains(t, err, "acme/api, acme/web")

	item, err := findItem(items, 3, &models.RepositoryRef{Owner: "acme", Repo: "web"})
	require.NoError(t, err)
	require.Equal(t, "b", item.URL)
}

func TestCacheCommands(t *testing.T) {
	env := newTestEnv(t)

	out, _, err := env.run(t, "cache", "info")
	require.NoError(t, err)
	require.Contains(t, out, "is empty")

	_, _, err = env.run(t, "list", "--json", "bugs")
	require.NoError(t, err)

	out, _, err = env.run(t, "cache", "info")
	require.NoError(t, err)
	require.Contains(t, out, "API bugs")
	require.Contains(t, out, "fresh")
	require.Contains(t, out, "1 entries")

	out, _, err = env.run(t, "cache", "clear", "bugs")
	require.NoError(t, err)
	require.Contains(t, out, `Cleared cached results of "API bugs"`)

	_, _, err = env.run(t, "list", "--json", "bugs")
	require.NoError(t, err)
	require.Equal(t, int32(2), env.calls.Load())

	out, _, err = env.run(t, "cache", "clear")
	require.NoError(t, err)
	require.Contains(t, out, "Removed 2 cache files")
}

func TestTemplatesCommand(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "templates", "broken.yaml"), []byte("name: ["), 0o644))

	out, _, err := env.run(t, "templates")
	require.NoError(t, err)
	require.Contains(t, out, "bugs.yaml")
	require.Contains(t, out, "acme/api")
	require.Contains(t, out, "never")
	require.Contains(t, out, "broken.yaml")
}

func TestConfigCommands(t *testing.T) {
	env := newTestEnv(t)

	out, _, err := env.run(t, "config", "validate")
	require.NoError(t, err)
	require.Contains(t, out, "Settings from "+env.config+" look good")
	require.Contains(t, out, "te****en (from env)")

	target := filepath.Join(env.dir, "new.toml")
	out, _, err = env.run(t, "config", "init", "--output", target)
	require.NoError(t, err)
	require.Contains(t, out, target)
	require.FileExists(t, target)

	_, _, err = env.run(t, "config", "init", "--output", target)
	require.ErrorContains(t, err, "already exists")
}

func TestResolveToken(t *testing.T) {
	tests := map[string]struct {
		flag, env, config, gh string
		wantToken, wantSource string
	}{
		"flag wins":         {flag: "f", env: "e", config: "c", gh: "g", wantToken: "f", wantSource: TokenSourceFlag},
		"flag fed from env": {flag: "e", env: "e", wantToken: "e", wantSource: TokenSourceEnv},
		"env":               {env: "e", config: "c", gh: "g", wantToken: "e", wantSource: TokenSourceEnv},
		"config":            {config: "c", gh: "g", wantToken: "c", wantSource: TokenSourceConfig},
		"gh cli":            {gh: "g", wantToken: "g", wantSource: TokenSourceGH},
		"anonymous":         {wantSource: TokenSourceNone},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("GITHUB_TOKEN", tt.env)
			var ghErr error
			if tt.gh == "" {
				ghErr = errors.New("not logged in")
			}
			stubGHAuth(t, tt.gh, ghErr)

			token, source := ResolveToken(context.Background(), tt.flag, tt.config)
			require.Equal(t, tt.wantToken, token)
			require.Equal(t, tt.wantSource, source)
		})
	}
}

func TestMaskSecretAndCredentialCheck(t *testing.T) {
	require.Equal(t, "****", maskSecret("short"))
	require.Equal(t, "gh****yz", maskSecret("ghp_abcdefxyz"))

	var buf bytes.Buffer
	PrintCredentialCheck(&buf, CredentialCheck{Source: TokenSourceNone})
	require.Contains(t, buf.String(), "not configured")
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("GHTRACKER_TEST_VALUE=from-file\nGHTRACKER_TEST_KEPT=from-file\n"), 0o644))
	t.Setenv("GHTRACKER_TEST_KEPT", "from-env")
	t.Setenv("GHTRACKER_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("GHTRACKER_TEST_VALUE"))

	require.NoError(t, LoadEnvFiles(envFile, filepath.Join(dir, ".env.local")))
	require.Equal(t, "from-file", os.Getenv("GHTRACKER_TEST_VALUE"))
	require.Equal(t, "from-env", os.Getenv("GHTRACKER_TEST_KEPT"))
}

func TestList_CapturesResponses(t *testing.T) {
	env := newTestEnv(t)
	captureDir := filepath.Join(env.dir, "captures")

	data, err := os.ReadFile(env.config)
	require.NoError(t, err)
	withCapture := bytes.Replace(data, []byte("[github]\n"), []byte(fmt.Sprintf("[github]\ncapture_dir = %q\n", captureDir)), 1)
	require.NoError(t, os.WriteFile(env.config, withCapture, 0o644))

	_, _, err = env.run(t, "list", "--json", "bugs")
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(captureDir, "*", "issues-*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestApp_VerboseAndVersionFlags(t *testing.T) {
	env := newTestEnv(t)

	out, stderr, err := env.run(t, "--verbose", "list", "--json", "bugs")
	require.NoError(t, err)
	require.Equal(t, 2, decodeList(t, out).Count)
	require.Contains(t, stderr, "issues fetched", "verbose tees info logs to the console")

	out, _, err = env.run(t, "--version")
	require.NoError(t, err)
	require.Contains(t, out, "ghtracker version test")
}

func TestList_DiscussionsOverride(t *testing.T) {
	env := newTestEnv(t)
	withDiscussions := bugsTemplate + "include_discussions: true\n"
	require.NoError(t, os.WriteFile(env.template, []byte(withDiscussions), 0o644))

	out, _, err := env.run(t, "list", "--json", "--no-discussions", "bugs")
	require.NoError(t, err)
	require.Equal(t, 2, decodeList(t, out).Count)
	require.Equal(t, int32(1), env.calls.Load(), "only the issue listing is requested")

	q, err := templates.Load(env.template)
	require.NoError(t, err)
	require.True(t, q.IncludeDiscussions, "run overrides are not saved")

	_, _, err = env.run(t, "list", "--discussions", "--no-discussions", "bugs")
	require.ErrorContains(t, err, "mutually exclusive")
}
