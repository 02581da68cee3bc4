package providers

import (
	"context"
	"time"

	"github.com/ghtracker/pkg/models"
)

// IssuePageSize is the number of entries requested per REST page
const IssuePageSize = 100

// Source lists raw issues and discussions of a repository one page at a time.
// Retries and pagination are driven by the caller.
type Source interface {
	ListIssues(ctx context.Context, repo models.RepositoryRef, q IssuePageQuery) (*IssuePage, error)
	ListDiscussions(ctx context.Context, repo models.RepositoryRef, cursor string) (*DiscussionPage, error)
}

// IssuePageQuery selects one page of the issue listing
type IssuePageQuery struct {
	State models.State
	Since time.Time
	Page  int // 1-based
}

// IssueEntry is a raw listing entry. Pull requests appear in the issue listing
// and are flagged rather than dropped so the page size stays observable.
type IssueEntry struct {
	Item        models.Item
	PullRequest bool
}

// IssuePage is one page of the issue listing
type IssuePage struct {
	Entries []IssueEntry
}

// Raw returns the number of entries on the page, pull requests included
func (p *IssuePage) Raw() int {
	if p == nil {
		return 0
	}
	return len(p.Entries)
}

// DiscussionPage is one page of the discussions connection
type DiscussionPage struct {
	Items       []models.Item
	HasNextPage bool
	EndCursor   string
}
