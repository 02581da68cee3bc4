// Package tracker turns a query definition into an annotated, sorted list of items.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ghtracker/internal/cache"
	"github.com/ghtracker/internal/conditions"
	"github.com/ghtracker/internal/providers"
	"github.com/ghtracker/internal/retry"
	"github.com/ghtracker/pkg/models"
)

// Stage names the part of a repository fetch that failed
type Stage string

const (
	StageIssues      Stage = "issues"
	StageDiscussions Stage = "discussions"
)

// Failure is a reported, non-fatal problem with one repository
type Failure struct {
	Repo  string `json:"repository"`
	Stage Stage  `json:"stage"`
	Err   error  `json:"-"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Repo, f.Stage, f.Err)
}

// Fetcher walks the paginated listings of each repository with retries and
// memoizes complete walks in the ephemeral tier
type Fetcher struct {
	source providers.Source
	policy retry.Policy
	memo   *cache.Memory
	log    zerolog.Logger
	now    func() time.Time
}

// NewFetcher returns a Fetcher. A nil memo disables memoization.
func NewFetcher(source providers.Source, policy retry.Policy, memo *cache.Memory, log zerolog.Logger) *Fetcher {
	policy.Logger = log
	return &Fetcher{
		source: source,
		policy: policy,
		memo:   memo,
		log:    log,
		now:    time.Now,
	}
}

// Since returns the lower bound on updated_at for a max age in months
func Since(now time.Time, maxAgeMonths int) time.Time {
	return now.Add(-time.Duration(maxAgeMonths) * 30 * 24 * time.Hour)
}

func issuesKey(repo models.RepositoryRef, state models.State, months int) string {
	return fmt.Sprintf("issues:%s:%s:%d", repo.FullName(), state, months)
}

func discussionsKey(repo models.RepositoryRef) string {
	return "discussions:" + repo.FullName()
}

// FetchIssues pages through the repository's issues, skipping pull requests. When a page
// fails after retries the issues from earlier pages are returned along with the error.
func (f *Fetcher) FetchIssues(ctx context.Context, repo models.RepositoryRef, state models.State, maxAgeMonths int) ([]models.Item, error) {
	key := issuesKey(repo, state, maxAgeMonths)
	if f.memo != nil {
		if items, ok := f.memo.Get(key); ok {
			f.log.Debug().Str("repo", repo.FullName()).Int("count", len(items)).Msg("issues served from memory")
			return items, nil
		}
	}

	since := Since(f.now(), maxAgeMonths)
	items := make([]models.Item, 0)
	skipped := 0

	for page := 1; ; page++ {
		var result *providers.IssuePage
		err := f.policy.Do(ctx, func(ctx context.Context) error {
			p, err := f.source.ListIssues(ctx, repo, providers.IssuePageQuery{
				State: state,
				Since: since,
				Page:  page,
			})
			if err != nil {
				if !providers.IsRetryable(err) {
					return retry.Permanent(err)
				}
				return err
			}
			result = p
			return nil
		})
		if err != nil {
			f.log.Error().Err(err).
				Str("repo", repo.FullName()).
				Int("page", page).
				Int("kept", len(items)).
				Msg("issue pagination failed, keeping earlier pages")
			return items, fmt.Errorf("fetch issues %s page %d: %w", repo.FullName(), page, err)
		}

		raw := result.Raw()
		if raw == 0 {
			break
		}
		for _, entry := range result.Entries {
			if entry.PullRequest {
				skipped++
				continue
			}
			entry.Item.RepositoryName = repo.FullName()
			items = append(items, entry.Item)
		}
		f.log.Debug().Str("repo", repo.FullName()).Int("page", page).Int("raw", raw).Msg("issue page fetched")

		if raw < providers.IssuePageSize {
			break
		}
	}

	f.log.Info().
		Str("repo", repo.FullName()).
		Int("count", len(items)).
		Int("pull_requests_skipped", skipped).
		Msg("issues fetched")

	if f.memo != nil {
		f.memo.Add(key, items)
	}
	return items, nil
}

// FetchDiscussions walks the discussions connection until the last page. Any failure
// drops every discussion collected for the repository.
func (f *Fetcher) FetchDiscussions(ctx context.Context, repo models.RepositoryRef) ([]models.Item, error) {
	key := discussionsKey(repo)
	if f.memo != nil {
		if items, ok := f.memo.Get(key); ok {
			f.log.Debug().Str("repo", repo.FullName()).Int("count", len(items)).Msg("discussions served from memory")
			return items, nil
		}
	}

	items := make([]models.Item, 0)
	cursor := ""
	for {
		var result *providers.DiscussionPage
		err := f.policy.Do(ctx, func(ctx context.Context) error {
			p, err := f.source.ListDiscussions(ctx, repo, cursor)
			if err != nil {
				if !providers.IsRetryable(err) {
					return retry.Permanent(err)
				}
				return err
			}
			result = p
			return nil
		})
		if err != nil {
			f.log.Error().Err(err).
				Str("repo", repo.FullName()).
				Int("discarded", len(items)).
				Msg("discussion fetch failed, dropping repository discussions")
			return nil, fmt.Errorf("fetch discussions %s: %w", repo.FullName(), err)
		}

		for _, item := range result.Items {
			item.RepositoryName = repo.FullName()
			item.IsDiscussion = true
			items = append(items, item)
		}
		if !result.HasNextPage || result.EndCursor == "" {
			break
		}
		cursor = result.EndCursor
	}

	f.log.Info().Str("repo", repo.FullName()).Int("count", len(items)).Msg("discussions fetched")

	if f.memo != nil {
		f.memo.Add(key, items)
	}
	return items, nil
}

// FetchRepoData fetches one repository and keeps the items matching the query.
// Items whose conditions cannot be evaluated are logged and excluded.
func (f *Fetcher) FetchRepoData(ctx context.Context, repo models.RepositoryRef, q *models.QueryDefinition) ([]models.Item, []Failure) {
	var failures []Failure

	raw, err := f.FetchIssues(ctx, repo, q.State, q.MaxAgeMonths)
	if err != nil {
		failures = append(failures, Failure{Repo: repo.FullName(), Stage: StageIssues, Err: err})
	}

	if q.IncludeDiscussions {
		discussions, err := f.FetchDiscussions(ctx, repo)
		if err != nil {
			failures = append(failures, Failure{Repo: repo.FullName(), Stage: StageDiscussions, Err: err})
		} else {
			raw = append(raw, discussions...)
		}
	}

	matched := make([]models.Item, 0, len(raw))
	for _, item := range raw {
		ok, err := conditions.Evaluate(item, q.Conditions, q.ConditionLogic)
		if err != nil {
			f.log.Warn().Err(err).Str("item", item.Key()).Msg("condition evaluation failed, excluding item")
			continue
		}
		if ok {
			matched = append(matched, item)
		}
	}

	f.log.Debug().
		Str("repo", repo.FullName()).
		Int("fetched", len(raw)).
		Int("matched", len(matched)).
		Msg("repository filtered")
	return matched, failures
}

// FetchAll fetches every repository of the query in order. A failing repository is
// recorded and the rest still run. Cancellation stops the walk early.
func (f *Fetcher) FetchAll(ctx context.Context, q *models.QueryDefinition) ([]models.Item, []Failure) {
	var (
		items    []models.Item
		failures []Failure
	)
	for _, repo := range q.Repositories {
		if ctx.Err() != nil {
			break
		}
		matched, repoFailures := f.FetchRepoData(ctx, repo, q)
		for _, fail := range repoFailures {
			f.log.Warn().Err(fail.Err).Str("repo", fail.Repo).Str("stage", string(fail.Stage)).Msg("repository fetch incomplete")
		}
		items = append(items, matched...)
		failures = append(failures, repoFailures...)
	}
	return items, failures
}

// PurgeMemory drops every memoized fetch
func (f *Fetcher) PurgeMemory() {
	if f.memo != nil {
		f.memo.Purge()
	}
}
