package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shurcooL/githubv4"
	"github.com/wesm/gerrit-issue-sync/internal/models"
)

// GraphQLClient represents a client for the GitHub GraphQL API
type GraphQLClient struct {
	client *githubv4.Client
}

// NewGraphQLClient creates a new GraphQL client
func NewGraphQLClient(httpClient *http.Client) *GraphQLClient {
	return &GraphQLClient{client: githubv4.NewClient(httpClient)}
}

type pageInfo struct {
	EndCursor   githubv4.String
	HasNextPage githubv4.Boolean
}

// Comment represents a GitHub issue comment in GraphQL
type Comment struct {
	DatabaseID githubv4.Int
	Body       githubv4.String
	CreatedAt  githubv4.DateTime
	Author     struct {
		Login githubv4.String
	}
}

// Issue represents an open GitHub issue in GraphQL
type Issue struct {
	Number    githubv4.Int
	Title     githubv4.String
	State     githubv4.String
	URL       githubv4.URI
	CreatedAt githubv4.DateTime
	Labels    struct {
		Nodes []struct {
			Name githubv4.String
		}
	} `graphql:"labels(first: 50)"`
	Assignees struct {
		Nodes []struct {
			Login githubv4.String
		}
	} `graphql:"assignees(first: 20)"`
	Comments struct {
		Nodes    []Comment
		PageInfo pageInfo
	} `graphql:"comments(first: $commentsPerPage)"`
}

// OpenIssueThreads gets all open issues of a repository with their comments
func (c *GraphQLClient) OpenIssueThreads(ctx context.Context, owner, name string) ([]models.IssueThread, error) {
	var threads []models.IssueThread
	var cursor *githubv4.String

	for {
		var query struct {
			Repository struct {
				Issues struct {
					Nodes    []Issue
					PageInfo pageInfo
				} `graphql:"issues(first: $issuesPerPage, after: $issuesEndCursor, states: OPEN, orderBy: {field: CREATED_AT, direction: ASC})"`
			} `graphql:"repository(owner: $owner, name: $name)"`
		}

		variables := map[string]interface{}{
			"owner":           githubv4.String(owner),
			"name":            githubv4.String(name),
			"issuesPerPage":   githubv4.Int(50),
			"issuesEndCursor": cursor,
			"commentsPerPage": githubv4.Int(100),
		}

		if err := c.client.Query(ctx, &query, variables); err != nil {
			return nil, fmt.Errorf("failed to query open issues: %w", err)
		}

		for _, issue := range query.Repository.Issues.Nodes {
			thread := models.IssueThread{Issue: convertIssue(issue)}
			for _, comment := range issue.Comments.Nodes {
				thread.Comments = append(thread.Comments, convertComment(comment))
			}

			if bool(issue.Comments.PageInfo.HasNextPage) {
				more, err := c.fetchAdditionalComments(ctx, owner, name, int(issue.Number), issue.Comments.PageInfo.EndCursor)
				if err != nil {
					thread.Err = err
				}
				thread.Comments = append(thread.Comments, more...)
			}

			threads = append(threads, thread)
		}

		if !bool(query.Repository.Issues.PageInfo.HasNextPage) {
			break
		}
		end := query.Repository.Issues.PageInfo.EndCursor
		cursor = &end
	}

	return threads, nil
}

// fetchAdditionalComments fetches the remaining comment pages of one issue
func (c *GraphQLClient) fetchAdditionalComments(
	ctx context.Context,
	owner, name string,
	issueNumber int,
	afterCursor githubv4.String,
) ([]*models.Comment, error) {
	var allComments []*models.Comment
	currentCursor := afterCursor

	for {
		var query struct {
			Repository struct {
				Issue struct {
					Comments struct {
						Nodes    []Comment
						PageInfo pageInfo
					} `graphql:"comments(first: $commentsPerPage, after: $commentsEndCursor)"`
				} `graphql:"issue(number: $issueNumber)"`
			} `graphql:"repository(owner: $owner, name: $name)"`
		}

		variables := map[string]interface{}{
			"owner":             githubv4.String(owner),
			"name":              githubv4.String(name),
			"issueNumber":       githubv4.Int(issueNumber),
			"commentsPerPage":   githubv4.Int(100),
			"commentsEndCursor": currentCursor,
		}

		if err := c.client.Query(ctx, &query, variables); err != nil {
			return nil, fmt.Errorf("failed to query comments of issue #%d: %w", issueNumber, err)
		}

		for _, comment := range query.Repository.Issue.Comments.Nodes {
			allComments = append(allComments, convertComment(comment))
		}

		if !bool(query.Repository.Issue.Comments.PageInfo.HasNextPage) {
			break
		}
		currentCursor = query.Repository.Issue.Comments.PageInfo.EndCursor
	}

	return allComments, nil
}

func convertIssue(issue Issue) *models.Issue {
	labels := make([]string, 0, len(issue.Labels.Nodes))
	for _, l := range issue.Labels.Nodes {
		labels = append(labels, string(l.Name))
	}
	assignees := make([]string, 0, len(issue.Assignees.Nodes))
	for _, a := range issue.Assignees.Nodes {
		assignees = append(assignees, string(a.Login))
	}

	var htmlURL string
	if issue.URL.URL != nil {
		htmlURL = issue.URL.String()
	}

	return &models.Issue{
		Number:    int(issue.Number),
		Title:     string(issue.Title),
		State:     strings.ToLower(string(issue.State)),
		Labels:    labels,
		Assignees: assignees,
		CreatedAt: issue.CreatedAt.Time,
		HTMLURL:   htmlURL,
	}
}

func convertComment(comment Comment) *models.Comment {
	return &models.Comment{
		ID:        int64(comment.DatabaseID),
		Author:    string(comment.Author.Login),
		Body:      string(comment.Body),
		CreatedAt: comment.CreatedAt.Time,
	}
}
