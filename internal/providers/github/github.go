package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/go-github/v74/github"

	"github.com/ghtracker/internal/providers"
	"github.com/ghtracker/pkg/models"
)

// Client reads issues over REST and discussions over GraphQL
type Client struct {
	rest       *github.Client
	http       *http.Client
	graphqlURL string
}

var _ providers.Source = (*Client)(nil)

// New returns a Client using httpClient for both APIs. A nil httpClient is built from cfg.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = NewHTTPClient(cfg)
	}

	rest := github.NewClient(httpClient)
	if cfg.APIURL != "" && cfg.APIURL != DefaultAPIURL {
		baseURL, err := url.Parse(strings.TrimSuffix(cfg.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid github.api_url %q: %w", cfg.APIURL, err)
		}
		rest.BaseURL = baseURL
	}

	graphqlURL := cfg.GraphQLURL
	if graphqlURL == "" {
		graphqlURL = DefaultGraphQLURL
	}

	return &Client{
		rest:       rest,
		http:       httpClient,
		graphqlURL: graphqlURL,
	}, nil
}

// ListIssues returns one page of the repository's issue listing, most recently updated first
func (c *Client) ListIssues(ctx context.Context, repo models.RepositoryRef, q providers.IssuePageQuery) (*providers.IssuePage, error) {
	opts := &github.IssueListByRepoOptions{
		State:     string(q.State),
		Sort:      "updated",
		Direction: "desc",
		Since:     q.Since,
		ListOptions: github.ListOptions{
			Page:    q.Page,
			PerPage: providers.IssuePageSize,
		},
	}

	issues, _, err := c.rest.Issues.ListByRepo(ctx, repo.Owner, repo.Repo, opts)
	if err != nil {
		return nil, fmt.Errorf("list issues %s page %d: %w", repo.FullName(), q.Page, convertError(err))
	}

	page := &providers.IssuePage{Entries: make([]providers.IssueEntry, 0, len(issues))}
	for _, issue := range issues {
		if issue == nil {
			continue
		}
		page.Entries = append(page.Entries, providers.IssueEntry{
			Item:        issueToItem(repo.FullName(), issue),
			PullRequest: issue.IsPullRequest(),
		})
	}
	return page, nil
}

func issueToItem(repoName string, issue *github.Issue) models.Item {
	item := models.Item{
		ID:             issue.GetNodeID(),
		Number:         issue.GetNumber(),
		Title:          issue.GetTitle(),
		Body:           issue.GetBody(),
		State:          issue.GetState(),
		URL:            issue.GetHTMLURL(),
		CreatedAt:      issue.GetCreatedAt().Time,
		UpdatedAt:      issue.GetUpdatedAt().Time,
		Author:         issue.GetUser().GetLogin(),
		Assignee:       issue.GetAssignee().GetLogin(),
		CommentCount:   issue.GetComments(),
		RepositoryName: repoName,
	}
	if item.ID == "" {
		item.ID = strconv.FormatInt(issue.GetID(), 10)
	}
	if issue.ClosedAt != nil {
		closed := issue.ClosedAt.Time
		item.ClosedAt = &closed
	}
	for _, u := range issue.Assignees {
		if login := u.GetLogin(); login != "" {
			item.Assignees = append(item.Assignees, login)
		}
	}
	if item.Assignee == "" && len(item.Assignees) > 0 {
		item.Assignee = item.Assignees[0]
	}
	for _, l := range issue.Labels {
		item.Labels = append(item.Labels, models.Label{
			Name:        l.GetName(),
			Color:       l.GetColor(),
			Description: l.GetDescription(),
		})
	}
	return item
}

// convertError maps REST API failures onto provider errors. Rate limit errors are
// kept as they are so the caller retries them.
func convertError(err error) error {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return &providers.StatusError{
			StatusCode: errResp.Response.StatusCode,
			Message:    errResp.Message,
		}
	}
	return err
}
