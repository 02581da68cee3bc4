package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ghtracker/internal/providers"
	"github.com/ghtracker/pkg/models"
)

const discussionsQuery = `query($owner: String!, $repo: String!, $cursor: String) {
  repository(owner: $owner, name: $repo) {
    discussions(first: 100, after: $cursor) {
      pageInfo {
        hasNextPage
        endCursor
      }
      nodes {
        id
        number
        title
        body
        createdAt
        updatedAt
        closedAt
        closed
        url
        author {
          login
        }
        labels(first: 10) {
          nodes {
            name
            color
            description
          }
        }
        comments {
          totalCount
        }
      }
    }
  }
}`

// graphQLRequest is the POST body of a GraphQL call
type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// graphQLResponse keeps data raw until errors have been checked
type graphQLResponse struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []struct {
		Message string `json:"message"`
		Type    string `json:"type,omitempty"`
	} `json:"errors,omitempty"`
}

type discussionsData struct {
	Repository *struct {
		Discussions struct {
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Nodes []*discussionNode `json:"nodes"`
		} `json:"discussions"`
	} `json:"repository"`
}

type discussionNode struct {
	ID        string     `json:"id"`
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ClosedAt  *time.Time `json:"closedAt"`
	Closed    bool       `json:"closed"`
	URL       string     `json:"url"`
	Author    *struct {
		Login string `json:"login"`
	} `json:"author"`
	Labels struct {
		Nodes []*struct {
			Name        string `json:"name"`
			Color       string `json:"color"`
			Description string `json:"description"`
		} `json:"nodes"`
	} `json:"labels"`
	Comments struct {
		TotalCount int `json:"totalCount"`
	} `json:"comments"`
}

// ListDiscussions returns one page of the repository's discussions starting after cursor.
// An error payload in the response is returned as *providers.GraphQLError.
func (c *Client) ListDiscussions(ctx context.Context, repo models.RepositoryRef, cursor string) (*providers.DiscussionPage, error) {
	vars := map[string]interface{}{
		"owner":  repo.Owner,
		"repo":   repo.Repo,
		"cursor": nil,
	}
	if cursor != "" {
		vars["cursor"] = cursor
	}

	var data discussionsData
	if err := c.query(ctx, graphQLRequest{Query: discussionsQuery, Variables: vars}, &data); err != nil {
		return nil, fmt.Errorf("list discussions %s: %w", repo.FullName(), err)
	}
	if data.Repository == nil {
		return nil, fmt.Errorf("list discussions %s: %w", repo.FullName(),
			&providers.GraphQLError{Messages: []string{"repository not found"}})
	}

	conn := data.Repository.Discussions
	page := &providers.DiscussionPage{
		Items:       make([]models.Item, 0, len(conn.Nodes)),
		HasNextPage: conn.PageInfo.HasNextPage,
		EndCursor:   conn.PageInfo.EndCursor,
	}
	for _, node := range conn.Nodes {
		if node == nil {
			continue
		}
		page.Items = append(page.Items, node.toItem(repo.FullName()))
	}
	return page, nil
}

func (n *discussionNode) toItem(repoName string) models.Item {
	item := models.Item{
		ID:             n.ID,
		Number:         n.Number,
		Title:          n.Title,
		Body:           n.Body,
		State:          string(models.StateOpen),
		URL:            n.URL,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
		ClosedAt:       n.ClosedAt,
		Author:         "unknown",
		CommentCount:   n.Comments.TotalCount,
		RepositoryName: repoName,
		IsDiscussion:   true,
	}
	if n.Closed {
		item.State = string(models.StateClosed)
	}
	if n.Author != nil && n.Author.Login != "" {
		item.Author = n.Author.Login
	}
	for _, l := range n.Labels.Nodes {
		if l == nil {
			continue
		}
		item.Labels = append(item.Labels, models.Label{Name: l.Name, Color: l.Color, Description: l.Description})
	}
	return item
}

// query posts req and decodes the data member into out
func (c *Client) query(ctx context.Context, req graphQLRequest, out interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal GraphQL request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create GraphQL request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute GraphQL request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read GraphQL response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &providers.StatusError{StatusCode: resp.StatusCode, Message: truncate(string(respBody), 200)}
	}

	var gqlResp graphQLResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return fmt.Errorf("failed to unmarshal GraphQL response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		gqlErr := &providers.GraphQLError{}
		for _, e := range gqlResp.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
		}
		return gqlErr
	}
	if len(gqlResp.Data) == 0 {
		return &providers.GraphQLError{Messages: []string{"response has no data"}}
	}
	if err := json.Unmarshal(gqlResp.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal GraphQL data: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
