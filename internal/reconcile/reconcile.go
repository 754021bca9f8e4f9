// Package reconcile applies the state of Gerrit changes to the GitHub issues
// they reference.
//
// Every decision is derived from what GitHub reports at the time of the call,
// so running the same batch again converges instead of duplicating work:
// labels are only added when absent and removed when present, and each
// (issue, change) pair owns exactly one bot comment that is edited in place.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/wesm/gerrit-issue-sync/internal/api"
	"github.com/wesm/gerrit-issue-sync/internal/models"
	"github.com/wesm/gerrit-issue-sync/internal/parser"
)

// Process labels
const (
	LabelWIP   = "wip"
	LabelReady = "ready for review"
)

// Board columns
const (
	ColumnInProgress = "In Progress"
	ColumnSubmitted  = "Submitted on Gerrit"
)

// Status is the aggregate review state of an issue
type Status int

const (
	// StatusReady means at least one change is open and none is WIP
	StatusReady Status = iota
	// StatusWIP means at least one change is marked WIP or DNM
	StatusWIP
	// StatusDone means every change is merged or abandoned
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusWIP:
		return "wip"
	case StatusDone:
		return "done"
	default:
		return "ready"
	}
}

// Tracker is the subset of the issue tracker the reconciler mutates
type Tracker interface {
	GetIssue(ctx context.Context, number int) (*models.Issue, error)
	ListComments(ctx context.Context, number int) ([]*models.Comment, error)
	AddLabel(ctx context.Context, number int, label string) error
	RemoveLabel(ctx context.Context, number int, label string) error
	SetState(ctx context.Context, number int, state string) error
	CreateComment(ctx context.Context, number int, body string) error
	EditComment(ctx context.Context, commentID int64, body string) error
}

// Board moves issue cards on a project board. MoveIssue reports false when
// the card was already in the column.
type Board interface {
	MoveIssue(ctx context.Context, issue *models.Issue, column string) (bool, error)
}

// Journal records applied mutations
type Journal interface {
	Record(ctx context.Context, action models.Action) error
}

// Reconciler makes issues reflect the changes that reference them
type Reconciler struct {
	Tracker       Tracker
	Board         Board
	BotLogin      string
	SkipApprovals bool
	Location      *time.Location
	Now           func() time.Time
	Journal       Journal
	Logger        *slog.Logger

	// Errors counts failed GitHub calls since the reconciler was created
	Errors int
}

// New creates a reconciler for the given tracker and bot identity
func New(tracker Tracker, botLogin string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		Tracker:  tracker,
		BotLogin: botLogin,
		Location: time.UTC,
		Now:      time.Now,
		Logger:   logger,
	}
}

// SyncComments posts or refreshes the status comment for change on every
// issue it references, reopening closed issues that have not yet been told
// about the change.
func (r *Reconciler) SyncComments(ctx context.Context, change models.Change, refs models.References) {
	for _, relation := range models.Relations {
		for _, number := range refs[relation] {
			r.syncComment(ctx, change, relation, number)
		}
	}
}

func (r *Reconciler) syncComment(ctx context.Context, change models.Change, relation models.Relation, number int) {
	logger := r.Logger.With("issue", number, "change", change.Number)

	issue, err := r.Tracker.GetIssue(ctx, number)
	if err != nil {
		r.fail(logger, "Issue not available, skipping change", err)
		return
	}

	comments, err := r.Tracker.ListComments(ctx, number)
	if err != nil {
		r.fail(logger, "Failed to list comments", err)
		return
	}
	existing := FindBotComment(comments, r.BotLogin, change)

	body := FormatComment(change, relation, r.SkipApprovals, r.Now().In(r.Location), r.Logger)

	if issue.IsClosed() && existing == nil {
		logger.Debug("Issue was closed, reopening")
		if err := r.Tracker.SetState(ctx, number, models.IssueStateOpen); err != nil {
			r.fail(logger, "Failed to reopen issue", err)
			return
		}
		r.record(ctx, models.Action{Kind: models.ActionReopened, Issue: number, Change: change.Number})
		body = reopenNote + body
	}

	if existing == nil {
		logger.Debug("Creating comment", "body", body)
		if err := r.Tracker.CreateComment(ctx, number, body); err != nil {
			r.fail(logger, "Failed to post comment", err)
			return
		}
		logger.Info("Comment posted to issue")
		r.record(ctx, models.Action{Kind: models.ActionCommentCreated, Issue: number, Change: change.Number})
		return
	}

	logger.Debug("Editing comment", "comment", existing.ID, "body", body)
	if err := r.Tracker.EditComment(ctx, existing.ID, body); err != nil {
		r.fail(logger, "Failed to edit comment", err)
		return
	}
	logger.Info("Comment edited on issue", "comment", existing.ID)
	r.record(ctx, models.Action{Kind: models.ActionCommentEdited, Issue: number, Change: change.Number})
}

// FindBotComment returns the comment the bot previously posted about change
func FindBotComment(comments []*models.Comment, botLogin string, change models.Change) *models.Comment {
	token := CommentToken(change)
	for _, c := range comments {
		if c.Author == botLogin && strings.Contains(c.Body, token) {
			return c
		}
	}
	return nil
}

// Decide computes the aggregate status of an issue from every change that
// references it. WIP wins over everything else.
func Decide(changes []models.Change) Status {
	done := true
	for _, c := range changes {
		if parser.IsWIP(c.CommitMessage) {
			return StatusWIP
		}
		if c.IsOpen() {
			done = false
		}
	}
	if done {
		return StatusDone
	}
	return StatusReady
}

// SyncLabels sets the process label and board column of an issue to match
// the aggregate status of the changes referencing it.
func (r *Reconciler) SyncLabels(ctx context.Context, number int, changes []models.Change) {
	logger := r.Logger.With("issue", number)

	issue, err := r.Tracker.GetIssue(ctx, number)
	if err != nil {
		r.fail(logger, "Issue not available, skipping labels", err)
		return
	}

	status := Decide(changes)
	logger.Debug("Computed issue status", "status", status.String(), "changes", len(changes))

	switch status {
	case StatusDone:
		r.removeLabel(ctx, logger, issue, LabelWIP)
		r.removeLabel(ctx, logger, issue, LabelReady)
	case StatusWIP:
		r.removeLabel(ctx, logger, issue, LabelReady)
		r.addLabel(ctx, logger, issue, LabelWIP)
		r.moveIssue(ctx, logger, issue, ColumnInProgress)
	default:
		r.removeLabel(ctx, logger, issue, LabelWIP)
		r.addLabel(ctx, logger, issue, LabelReady)
		r.moveIssue(ctx, logger, issue, ColumnSubmitted)
	}
}

func (r *Reconciler) addLabel(ctx context.Context, logger *slog.Logger, issue *models.Issue, label string) {
	if issue.HasLabel(label) {
		return
	}
	if err := r.Tracker.AddLabel(ctx, issue.Number, label); err != nil {
		r.fail(logger, "Failed to add label", err, "label", label)
		return
	}
	logger.Info("Added label", "label", label)
	r.record(ctx, models.Action{Kind: models.ActionLabelAdded, Issue: issue.Number, Detail: label})
}

func (r *Reconciler) removeLabel(ctx context.Context, logger *slog.Logger, issue *models.Issue, label string) {
	if !issue.HasLabel(label) {
		return
	}
	if err := r.Tracker.RemoveLabel(ctx, issue.Number, label); err != nil {
		r.fail(logger, "Failed to remove label", err, "label", label)
		return
	}
	logger.Info("Removed label", "label", label)
	r.record(ctx, models.Action{Kind: models.ActionLabelRemoved, Issue: issue.Number, Detail: label})
}

func (r *Reconciler) moveIssue(ctx context.Context, logger *slog.Logger, issue *models.Issue, column string) {
	if r.Board == nil {
		return
	}
	moved, err := r.Board.MoveIssue(ctx, issue, column)
	if err != nil {
		logger.Warn("Could not move issue on project board", "column", column, "error", err)
		return
	}
	if !moved {
		logger.Debug("Issue already in board column", "column", column)
		return
	}
	logger.Info("Moved issue on project board", "column", column)
	r.record(ctx, models.Action{Kind: models.ActionCardMoved, Issue: issue.Number, Detail: column})
}

func (r *Reconciler) fail(logger *slog.Logger, msg string, err error, args ...any) {
	args = append(args, "error", err)
	if errors.Is(err, api.ErrNotFound) {
		logger.Warn(msg, args...)
		return
	}
	r.Errors++
	logger.Error(msg, args...)
}

func (r *Reconciler) record(ctx context.Context, action models.Action) {
	if r.Journal == nil {
		return
	}
	if err := r.Journal.Record(ctx, action); err != nil {
		r.Logger.Warn("Failed to record action", "kind", action.Kind, "error", err)
	}
}
