// Package assign grants "/assign" requests left in issue comments.
package assign

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wesm/gerrit-issue-sync/internal/models"
)

const (
	// RequestToken is the comment text that asks for an issue
	RequestToken = "/assign"

	// DefaultStaleAfter is how old an assigned issue must be before a new
	// request takes it over
	DefaultStaleAfter = 30 * 24 * time.Hour

	// DefaultMaintainers is the group pointed at when a request is declined
	DefaultMaintainers = "@airshipit/airship-cores"
)

// Tracker is the subset of the issue tracker the resolver reads and mutates
type Tracker interface {
	OpenIssueThreads(ctx context.Context) ([]models.IssueThread, error)
	AddAssignees(ctx context.Context, number int, logins []string) error
	RemoveAssignees(ctx context.Context, number int, logins []string) error
	CreateComment(ctx context.Context, number int, body string) error
}

// Journal records applied mutations
type Journal interface {
	Record(ctx context.Context, action models.Action) error
}

// Outcome is what the resolver did with an issue
type Outcome int

const (
	NoRequest Outcome = iota
	AlreadyHandled
	Assigned
	Reassigned
	Declined
	Confirmed
)

func (o Outcome) String() string {
	switch o {
	case AlreadyHandled:
		return "already handled"
	case Assigned:
		return "assigned"
	case Reassigned:
		return "reassigned"
	case Declined:
		return "declined"
	case Confirmed:
		return "confirmed"
	default:
		return "no request"
	}
}

// Resolver decides /assign requests
type Resolver struct {
	Tracker     Tracker
	BotLogin    string
	Maintainers string
	StaleAfter  time.Duration
	Now         func() time.Time
	Journal     Journal
	Logger      *slog.Logger

	// Errors counts issues whose request could not be applied
	Errors int
}

// New creates a resolver with the default policy
func New(tracker Tracker, botLogin string, logger *slog.Logger) *Resolver {
	return &Resolver{
		Tracker:     tracker,
		BotLogin:    botLogin,
		Maintainers: DefaultMaintainers,
		StaleAfter:  DefaultStaleAfter,
		Now:         time.Now,
		Logger:      logger,
	}
}

// Run resolves the latest request on every open issue. A failure on one
// issue is logged and does not stop the others.
func (r *Resolver) Run(ctx context.Context) error {
	threads, err := r.Tracker.OpenIssueThreads(ctx)
	if err != nil {
		return fmt.Errorf("failed to list open issues: %w", err)
	}

	r.Logger.Debug("Scanning open issues for assignment requests", "issues", len(threads))
	for _, thread := range threads {
		if thread.Issue.IsPullRequest {
			continue
		}
		if thread.Err != nil {
			r.Errors++
			r.Logger.Error("Skipping issue with incomplete comments", "issue", thread.Issue.Number, "error", thread.Err)
			continue
		}
		outcome, err := r.Resolve(ctx, thread)
		if err != nil {
			r.Errors++
			r.Logger.Error("Failed to resolve assignment request", "issue", thread.Issue.Number, "error", err)
			continue
		}
		if outcome != NoRequest {
			r.Logger.Info("Resolved assignment request", "issue", thread.Issue.Number, "outcome", outcome.String())
		}
	}
	return nil
}

// LatestRequest returns the most recent comment asking for the issue, and
// whether the bot has already replied to it. The bot's own comments are
// never requests.
func (r *Resolver) LatestRequest(comments []*models.Comment) (*models.Comment, bool) {
	answered := false
	for i := len(comments) - 1; i >= 0; i-- {
		c := comments[i]
		if c.Author == r.BotLogin {
			if isReply(c.Body) {
				answered = true
			}
			continue
		}
		if strings.Contains(c.Body, RequestToken) {
			return c, answered
		}
	}
	return nil, false
}

func isReply(body string) bool {
	return strings.HasPrefix(body, "assigned ") ||
		strings.HasPrefix(body, "unassigned: ") ||
		strings.HasPrefix(body, "Unable to assign ")
}

// Resolve applies the assignment policy to one issue
func (r *Resolver) Resolve(ctx context.Context, thread models.IssueThread) (Outcome, error) {
	issue := thread.Issue
	request, answered := r.LatestRequest(thread.Comments)
	if request == nil {
		return NoRequest, nil
	}
	requester := request.Author
	if answered {
		return AlreadyHandled, nil
	}
	if issue.HasAssignee(requester) {
		// assigned by an earlier run whose reply was not posted
		return Confirmed, r.Tracker.CreateComment(ctx, issue.Number, fmt.Sprintf("assigned %s", requester))
	}

	if len(issue.Assignees) == 0 {
		if err := r.Tracker.AddAssignees(ctx, issue.Number, []string{requester}); err != nil {
			return NoRequest, err
		}
		r.record(ctx, models.Action{Kind: models.ActionAssigned, Issue: issue.Number, Detail: requester})
		return Assigned, r.Tracker.CreateComment(ctx, issue.Number, fmt.Sprintf("assigned %s", requester))
	}

	if r.ageInDays(issue) > int(r.StaleAfter/(24*time.Hour)) {
		previous := append([]string(nil), issue.Assignees...)
		if err := r.Tracker.RemoveAssignees(ctx, issue.Number, previous); err != nil {
			return NoRequest, err
		}
		r.record(ctx, models.Action{Kind: models.ActionUnassigned, Issue: issue.Number, Detail: strings.Join(previous, ", ")})
		if err := r.Tracker.AddAssignees(ctx, issue.Number, []string{requester}); err != nil {
			return NoRequest, err
		}
		r.record(ctx, models.Action{Kind: models.ActionAssigned, Issue: issue.Number, Detail: requester})

		body := fmt.Sprintf("unassigned: %s\nassigned %s", strings.Join(previous, ", "), requester)
		return Reassigned, r.Tracker.CreateComment(ctx, issue.Number, body)
	}

	body := fmt.Sprintf("Unable to assign %s. Please contact a member of the %s team for help with assignments",
		requester, r.Maintainers)
	r.record(ctx, models.Action{Kind: models.ActionAssignDeclined, Issue: issue.Number, Detail: requester})
	return Declined, r.Tracker.CreateComment(ctx, issue.Number, body)
}

// ageInDays counts whole days since the issue was created
func (r *Resolver) ageInDays(issue *models.Issue) int {
	return int(r.Now().Sub(issue.CreatedAt) / (24 * time.Hour))
}

func (r *Resolver) record(ctx context.Context, action models.Action) {
	if r.Journal == nil {
		return
	}
	if err := r.Journal.Record(ctx, action); err != nil {
		r.Logger.Warn("Failed to record action", "kind", action.Kind, "error", err)
	}
}
