package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/wesm/gerrit-issue-sync/internal/assign"
	"github.com/wesm/gerrit-issue-sync/internal/gerrit"
	"github.com/wesm/gerrit-issue-sync/internal/models"
	"github.com/wesm/gerrit-issue-sync/internal/parser"
	"github.com/wesm/gerrit-issue-sync/internal/reconcile"
)

// RunJournal brackets a sync run in the journal
type RunJournal interface {
	StartRun(ctx context.Context, startedAt time.Time) (int64, error)
	FinishRun(ctx context.Context, finishedAt time.Time, changes, issues, errors int) error
}

// Result summarizes one sync run
type Result struct {
	RunID   int64
	Changes int
	Skipped int
	Issues  int
	Errors  int
}

// Syncer runs one full pass from Gerrit to GitHub
type Syncer struct {
	source     gerrit.ChangeSource
	reconciler *reconcile.Reconciler
	resolver   *assign.Resolver
	journal    RunJournal
	logger     *slog.Logger
}

// New creates a new syncer
func New(source gerrit.ChangeSource, reconciler *reconcile.Reconciler, logger *slog.Logger) *Syncer {
	return &Syncer{
		source:     source,
		reconciler: reconciler,
		logger:     logger,
	}
}

// SetResolver enables the /assign scan after labels are synced
func (s *Syncer) SetResolver(resolver *assign.Resolver) {
	s.resolver = resolver
}

// SetJournal records each run in the journal
func (s *Syncer) SetJournal(journal RunJournal) {
	s.journal = journal
}

// Run fetches every change from Gerrit and brings the referenced issues up
// to date. Only a failure to read changes aborts the run; per-issue failures
// are logged and counted in the result.
func (s *Syncer) Run(ctx context.Context) (*Result, error) {
	result := &Result{}

	if s.journal != nil {
		id, err := s.journal.StartRun(ctx, time.Now())
		if err != nil {
			s.logger.Warn("Failed to start journal run", "error", err)
		}
		result.RunID = id
	}

	s.logger.Info("Fetching changes from Gerrit")
	changes, err := s.source.Changes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get changes: %w", err)
	}
	result.Changes = len(changes)
	s.logger.Info("Found changes", "count", len(changes))

	byIssue := make(map[int][]models.Change)
	for _, change := range changes {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		logger := s.logger.With("change", change.Number)
		refs := parser.RemoveDuplicatedIssueNumbers(parser.Parse(change.CommitMessage, logger))
		numbers := refs.IssueNumbers()
		if len(numbers) == 0 {
			logger.Warn("Change has no associated issues, skipping", "subject", change.Subject)
			result.Skipped++
			continue
		}
		logger.Debug("Parsed issue references", "related", refs[models.RelationRelated], "closes", refs[models.RelationCloses])

		s.reconciler.SyncComments(ctx, change, refs)
		for _, number := range numbers {
			byIssue[number] = append(byIssue[number], change)
		}
	}

	issues := make([]int, 0, len(byIssue))
	for number := range byIssue {
		issues = append(issues, number)
	}
	sort.Ints(issues)
	result.Issues = len(issues)

	s.logger.Info("Syncing labels", "issues", len(issues))
	for _, number := range issues {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.reconciler.SyncLabels(ctx, number, byIssue[number])
	}
	result.Errors = s.reconciler.Errors

	if s.resolver != nil {
		s.logger.Info("Resolving assignment requests")
		if err := s.resolver.Run(ctx); err != nil {
			s.logger.Error("Assignment scan failed", "error", err)
			result.Errors++
		}
		result.Errors += s.resolver.Errors
	}

	if result.Errors > 0 {
		s.logger.Warn(fmt.Sprintf("Completed with %d errors", result.Errors))
	}

	if s.journal != nil && result.RunID != 0 {
		if err := s.journal.FinishRun(ctx, time.Now(), result.Changes, result.Issues, result.Errors); err != nil {
			s.logger.Warn("Failed to finish journal run", "error", err)
		}
	}

	s.logger.Info("Sync finished", "changes", result.Changes, "skipped", result.Skipped, "issues", result.Issues, "errors", result.Errors)
	return result, nil
}

// ParseRepositoryString parses a repository string in the format "owner/name"
func ParseRepositoryString(repoStr string) (string, string, error) {
	parts := strings.Split(repoStr, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository format, expected 'owner/name', got '%s'", repoStr)
	}
	return parts[0], parts[1], nil
}
