package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wesm/gerrit-issue-sync/internal/api"
	"github.com/wesm/gerrit-issue-sync/internal/models"
)

var discard = slog.New(slog.DiscardHandler)

// fakeTracker is an in-memory issue tracker that logs every mutation
type fakeTracker struct {
	issues    map[int]*models.Issue
	comments  map[int][]*models.Comment
	nextID    int64
	mutations []string
	failures  map[string]error
	login     string
}

func newFakeTracker(login string, issues ...*models.Issue) *fakeTracker {
	f := &fakeTracker{
		issues:   map[int]*models.Issue{},
		comments: map[int][]*models.Comment{},
		failures: map[string]error{},
		nextID:   1000,
		login:    login,
	}
	for _, issue := range issues {
		f.issues[issue.Number] = issue
	}
	return f
}

func (f *fakeTracker) fail(op string, number int) error {
	return f.failures[fmt.Sprintf("%s:%d", op, number)]
}

func (f *fakeTracker) GetIssue(ctx context.Context, number int) (*models.Issue, error) {
	if err := f.fail("get", number); err != nil {
		return nil, err
	}
	issue, ok := f.issues[number]
	if !ok {
		return nil, fmt.Errorf("failed to get issue #%d: %w", number, api.ErrNotFound)
	}
	cp := *issue
	cp.Labels = append([]string(nil), issue.Labels...)
	return &cp, nil
}

func (f *fakeTracker) ListComments(ctx context.Context, number int) ([]*models.Comment, error) {
	if err := f.fail("comments", number); err != nil {
		return nil, err
	}
	return f.comments[number], nil
}

func (f *fakeTracker) AddLabel(ctx context.Context, number int, label string) error {
	if err := f.fail("label", number); err != nil {
		return err
	}
	f.mutations = append(f.mutations, fmt.Sprintf("add-label #%d %s", number, label))
	f.issues[number].Labels = append(f.issues[number].Labels, label)
	return nil
}

func (f *fakeTracker) RemoveLabel(ctx context.Context, number int, label string) error {
	if err := f.fail("label", number); err != nil {
		return err
	}
	f.mutations = append(f.mutations, fmt.Sprintf("remove-label #%d %s", number, label))
	issue := f.issues[number]
	kept := issue.Labels[:0]
	for _, l := range issue.Labels {
		if l != label {
			kept = append(kept, l)
		}
	}
	issue.Labels = kept
	return nil
}

func (f *fakeTracker) SetState(ctx context.Context, number int, state string) error {
	f.mutations = append(f.mutations, fmt.Sprintf("state #%d %s", number, state))
	f.issues[number].State = state
	return nil
}

func (f *fakeTracker) CreateComment(ctx context.Context, number int, body string) error {
	if err := f.fail("create", number); err != nil {
		return err
	}
	f.nextID++
	f.mutations = append(f.mutations, fmt.Sprintf("create-comment #%d", number))
	f.comments[number] = append(f.comments[number], &models.Comment{
		ID:     f.nextID,
		Author: f.login,
		Body:   body,
	})
	return nil
}

func (f *fakeTracker) EditComment(ctx context.Context, commentID int64, body string) error {
	for number, comments := range f.comments {
		for _, c := range comments {
			if c.ID == commentID {
				f.mutations = append(f.mutations, fmt.Sprintf("edit-comment #%d %d", number, commentID))
				c.Body = body
				return nil
			}
		}
	}
	return fmt.Errorf("comment %d: %w", commentID, api.ErrNotFound)
}

// labelMutations returns only the label changes logged so far
func (f *fakeTracker) labelMutations() []string {
	var out []string
	for _, m := range f.mutations {
		if strings.HasPrefix(m, "add-label") || strings.HasPrefix(m, "remove-label") {
			out = append(out, m)
		}
	}
	return out
}

type fakeBoard struct {
	columns map[int]string
	err     error
}

func (b *fakeBoard) MoveIssue(ctx context.Context, issue *models.Issue, column string) (bool, error) {
	if b.err != nil {
		return false, b.err
	}
	if b.columns[issue.Number] == column {
		return false, nil
	}
	b.columns[issue.Number] = column
	return true, nil
}

type fakeJournal struct {
	actions []models.Action
}

func (j *fakeJournal) Record(ctx context.Context, action models.Action) error {
	j.actions = append(j.actions, action)
	return nil
}

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func newTestReconciler(tracker *fakeTracker) *Reconciler {
	r := New(tracker, "gerrit-bot", discard)
	r.Now = func() time.Time { return fixedNow }
	return r
}
