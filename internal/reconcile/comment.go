package reconcile

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wesm/gerrit-issue-sync/internal/models"
)

const (
	reopenNote = "Issue reopened due to new activity on Gerrit.\n\n"
	closesNote = "This change will close this issue when merged.\n\n"

	timestampLayout = "2006-01-02 15:04:05 MST"
)

// approvalTypes lists the approval categories rendered in a comment, in order
var approvalTypes = []string{"Code-Review", "Verified", "Workflow"}

// CommentToken identifies the bot comment that reports on a change
func CommentToken(change models.Change) string {
	return fmt.Sprintf("[#%d](%s)", change.Number, change.URL)
}

// FormatComment renders the status comment posted for a change on an issue
func FormatComment(change models.Change, relation models.Relation, skipApprovals bool, updated time.Time, logger *slog.Logger) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Related Change %s\n\n", CommentToken(change))
	fmt.Fprintf(&b, "**Subject:** %s\n", change.Subject)
	fmt.Fprintf(&b, "**Link:** %s\n", change.URL)
	fmt.Fprintf(&b, "**Status:** %s\n", change.Status)
	fmt.Fprintf(&b, "**Owner:** %s (%s)\n\n", change.Owner.Name, change.Owner.Email)

	if relation == models.RelationCloses {
		b.WriteString(closesNote)
	}

	if !skipApprovals {
		b.WriteString("### Approvals\n```diff\n")
		b.WriteString(FormatApprovals(change.Approvals, logger))
		b.WriteString("```")
	}

	fmt.Fprintf(&b, "\n\n*Last Updated: %s*", strings.TrimSpace(updated.Format(timestampLayout)))
	return b.String()
}

// FormatApprovals renders votes grouped by approval type. Positive values
// get a "+" prefix and an empty group is shown as "! None".
func FormatApprovals(approvals []models.Approval, logger *slog.Logger) string {
	byType := make(map[string][]models.Approval, len(approvalTypes))
	for _, t := range approvalTypes {
		byType[t] = nil
	}
	for _, a := range approvals {
		if _, known := byType[a.Type]; !known {
			logger.Warn("Unknown approval type", "type", a.Type)
			continue
		}
		byType[a.Type] = append(byType[a.Type], a)
	}

	var b strings.Builder
	for _, t := range approvalTypes {
		b.WriteString(t + "\n")
		if len(byType[t]) == 0 {
			b.WriteString("! None\n")
			continue
		}
		for _, a := range byType[t] {
			if a.Value > 0 {
				b.WriteString("+")
			}
			fmt.Fprintf(&b, "%d %s\n", a.Value, a.By)
		}
	}
	return b.String()
}
