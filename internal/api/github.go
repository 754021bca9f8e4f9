package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v57/github"
	"github.com/wesm/gerrit-issue-sync/internal/models"
	"golang.org/x/oauth2"
)

// ErrNotFound is returned when GitHub answers 404 for an issue, label or card
var ErrNotFound = errors.New("not found")

// Credentials holds GitHub authentication. A token is preferred over a
// username and password.
type Credentials struct {
	Token    string
	Username string
	Password string
}

// NewHTTPClient creates an authenticated HTTP client for the GitHub APIs
func NewHTTPClient(creds Credentials) *http.Client {
	if creds.Token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: creds.Token},
		)
		return oauth2.NewClient(context.Background(), ts)
	}

	if creds.Username != "" && creds.Password != "" {
		tp := &github.BasicAuthTransport{
			Username: creds.Username,
			Password: creds.Password,
		}
		return tp.Client()
	}

	return http.DefaultClient
}

// GitHubClient accesses the issues of a single GitHub repository
type GitHubClient struct {
	client  *github.Client
	graphql *GraphQLClient
	owner   string
	name    string
}

// NewGitHubClient creates a client for owner/name
func NewGitHubClient(httpClient *http.Client, owner, name string) *GitHubClient {
	return &GitHubClient{
		client:  github.NewClient(httpClient),
		graphql: NewGraphQLClient(httpClient),
		owner:   owner,
		name:    name,
	}
}

// Repository returns the "owner/name" the client is bound to
func (c *GitHubClient) Repository() string {
	return c.owner + "/" + c.name
}

// AuthenticatedLogin returns the login of the account the client acts as
func (c *GitHubClient) AuthenticatedLogin(ctx context.Context) (string, error) {
	user, _, err := c.client.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to get authenticated user: %w", classify(err))
	}
	return user.GetLogin(), nil
}

// GetIssue gets an issue by number
func (c *GitHubClient) GetIssue(ctx context.Context, number int) (*models.Issue, error) {
	issue, _, err := c.client.Issues.Get(ctx, c.owner, c.name, number)
	if err != nil {
		return nil, fmt.Errorf("failed to get issue #%d: %w", number, classify(err))
	}
	return ConvertGitHubIssue(issue), nil
}

// ListComments gets all comments of an issue in chronological order
func (c *GitHubClient) ListComments(ctx context.Context, number int) ([]*models.Comment, error) {
	var allComments []*models.Comment
	opts := &github.IssueListCommentsOptions{
		Sort:      github.String("created"),
		Direction: github.String("asc"),
		ListOptions: github.ListOptions{
			PerPage: 100,
		},
	}

	for {
		comments, resp, err := c.client.Issues.ListComments(ctx, c.owner, c.name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list comments for issue #%d: %w", number, classify(err))
		}

		for _, comment := range comments {
			allComments = append(allComments, ConvertGitHubComment(comment))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allComments, nil
}

// AddLabel adds a label to an issue
func (c *GitHubClient) AddLabel(ctx context.Context, number int, label string) error {
	if _, _, err := c.client.Issues.AddLabelsToIssue(ctx, c.owner, c.name, number, []string{label}); err != nil {
		return fmt.Errorf("failed to add label %q to issue #%d: %w", label, number, classify(err))
	}
	return nil
}

// RemoveLabel removes a label from an issue. A label that is not on the
// issue is not an error.
func (c *GitHubClient) RemoveLabel(ctx context.Context, number int, label string) error {
	_, err := c.client.Issues.RemoveLabelForIssue(ctx, c.owner, c.name, number, label)
	if err == nil {
		return nil
	}
	err = classify(err)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return fmt.Errorf("failed to remove label %q from issue #%d: %w", label, number, err)
}

// SetState opens or closes an issue
func (c *GitHubClient) SetState(ctx context.Context, number int, state string) error {
	req := &github.IssueRequest{State: github.String(state)}
	if _, _, err := c.client.Issues.Edit(ctx, c.owner, c.name, number, req); err != nil {
		return fmt.Errorf("failed to set issue #%d %s: %w", number, state, classify(err))
	}
	return nil
}

// AddAssignees assigns users to an issue
func (c *GitHubClient) AddAssignees(ctx context.Context, number int, logins []string) error {
	if _, _, err := c.client.Issues.AddAssignees(ctx, c.owner, c.name, number, logins); err != nil {
		return fmt.Errorf("failed to assign %v to issue #%d: %w", logins, number, classify(err))
	}
	return nil
}

// RemoveAssignees unassigns users from an issue
func (c *GitHubClient) RemoveAssignees(ctx context.Context, number int, logins []string) error {
	if _, _, err := c.client.Issues.RemoveAssignees(ctx, c.owner, c.name, number, logins); err != nil {
		return fmt.Errorf("failed to unassign %v from issue #%d: %w", logins, number, classify(err))
	}
	return nil
}

// CreateComment posts a new comment on an issue
func (c *GitHubClient) CreateComment(ctx context.Context, number int, body string) error {
	comment := &github.IssueComment{Body: github.String(body)}
	if _, _, err := c.client.Issues.CreateComment(ctx, c.owner, c.name, number, comment); err != nil {
		return fmt.Errorf("failed to comment on issue #%d: %w", number, classify(err))
	}
	return nil
}

// EditComment replaces the body of an existing comment
func (c *GitHubClient) EditComment(ctx context.Context, commentID int64, body string) error {
	comment := &github.IssueComment{Body: github.String(body)}
	if _, _, err := c.client.Issues.EditComment(ctx, c.owner, c.name, commentID, comment); err != nil {
		return fmt.Errorf("failed to edit comment %d: %w", commentID, classify(err))
	}
	return nil
}

// OpenIssueThreads gets every open issue of the repository with its comments
func (c *GitHubClient) OpenIssueThreads(ctx context.Context) ([]models.IssueThread, error) {
	return c.graphql.OpenIssueThreads(ctx, c.owner, c.name)
}

// classify maps a GitHub 404 onto ErrNotFound, keeping the original message
func classify(err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, ghErr.Message)
	}
	return err
}

// ConvertGitHubIssue converts a GitHub issue to our model
func ConvertGitHubIssue(issue *github.Issue) *models.Issue {
	labels := make([]string, 0, len(issue.Labels))
	for _, label := range issue.Labels {
		labels = append(labels, label.GetName())
	}

	assignees := make([]string, 0, len(issue.Assignees))
	for _, user := range issue.Assignees {
		assignees = append(assignees, user.GetLogin())
	}

	return &models.Issue{
		Number:        issue.GetNumber(),
		Title:         issue.GetTitle(),
		State:         issue.GetState(),
		Labels:        labels,
		Assignees:     assignees,
		CreatedAt:     issue.GetCreatedAt().Time,
		URL:           issue.GetURL(),
		HTMLURL:       issue.GetHTMLURL(),
		IsPullRequest: issue.IsPullRequest(),
	}
}

// ConvertGitHubComment converts a GitHub comment to our model
func ConvertGitHubComment(comment *github.IssueComment) *models.Comment {
	return &models.Comment{
		ID:        comment.GetID(),
		Author:    comment.GetUser().GetLogin(),
		Body:      comment.GetBody(),
		CreatedAt: comment.GetCreatedAt().Time,
	}
}
