package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/go-github/v57/github"
	"github.com/wesm/gerrit-issue-sync/internal/models"
)

var (
	// ErrColumnNotFound is returned when the board has no column with the requested name
	ErrColumnNotFound = errors.New("project column not found")
	// ErrCardNotFound is returned when the issue has no card on the board
	ErrCardNotFound = errors.New("project card not found")
)

// ProjectBoard moves issue cards between the columns of a classic project board
type ProjectBoard struct {
	client    *github.Client
	projectID int64
}

// NewProjectBoard creates a board for the project with the given id
func (c *GitHubClient) NewProjectBoard(projectID int64) *ProjectBoard {
	return &ProjectBoard{client: c.client, projectID: projectID}
}

// MoveIssue moves the issue's card to the top of the named column. A card
// that already sits in that column is left alone and false is returned.
func (b *ProjectBoard) MoveIssue(ctx context.Context, issue *models.Issue, column string) (bool, error) {
	if issue.URL == "" {
		return false, fmt.Errorf("%w: issue #%d has no API URL", ErrCardNotFound, issue.Number)
	}

	columns, _, err := b.client.Projects.ListProjectColumns(ctx, b.projectID, &github.ListOptions{PerPage: 100})
	if err != nil {
		return false, fmt.Errorf("failed to list columns of project %d: %w", b.projectID, classify(err))
	}

	var target *github.ProjectColumn
	var card *github.ProjectCard
	for _, col := range columns {
		if col.GetName() == column {
			target = col
		}
		found, err := b.findCard(ctx, col.GetID(), issue.URL)
		if err != nil {
			return false, err
		}
		if found != nil {
			if col.GetName() == column {
				return false, nil
			}
			card = found
		}
	}

	if target == nil {
		return false, fmt.Errorf("%w: %q in project %d", ErrColumnNotFound, column, b.projectID)
	}
	if card == nil {
		return false, fmt.Errorf("%w: issue #%d in project %d", ErrCardNotFound, issue.Number, b.projectID)
	}

	opts := &github.ProjectCardMoveOptions{
		Position: "top",
		ColumnID: target.GetID(),
	}
	if _, err := b.client.Projects.MoveProjectCard(ctx, card.GetID(), opts); err != nil {
		return false, fmt.Errorf("failed to move issue #%d to %q: %w", issue.Number, column, classify(err))
	}
	return true, nil
}

func (b *ProjectBoard) findCard(ctx context.Context, columnID int64, contentURL string) (*github.ProjectCard, error) {
	opts := &github.ProjectCardListOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		cards, resp, err := b.client.Projects.ListProjectCards(ctx, columnID, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list cards of column %d: %w", columnID, classify(err))
		}

		for _, card := range cards {
			if card.GetContentURL() == contentURL {
				return card, nil
			}
		}

		if resp.NextPage == 0 {
			return nil, nil
		}
		opts.Page = resp.NextPage
	}
}
