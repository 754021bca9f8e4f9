package output

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/wesm/gerrit-issue-sync/internal/models"
)

// UI prints command results for operators
type UI struct {
	Out    io.Writer
	ErrOut io.Writer
}

// New creates a UI with default stdout/stderr writers.
func New() *UI {
	return &UI{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
}

var (
	successPrefix = color.New(color.FgHiGreen).Sprint("✓")
	warningPrefix = color.New(color.FgHiYellow).Sprint("⚠")
	errorPrefix   = color.New(color.FgHiRed).Sprint("✗")
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
)

// KindColor colors an action kind by how disruptive it is
func KindColor(kind string) string {
	switch kind {
	case models.ActionCommentCreated, models.ActionLabelAdded, models.ActionAssigned:
		return green(kind)
	case models.ActionCommentEdited, models.ActionCardMoved:
		return cyan(kind)
	case models.ActionReopened, models.ActionUnassigned, models.ActionLabelRemoved:
		return yellow(kind)
	case models.ActionAssignDeclined:
		return red(kind)
	default:
		return kind
	}
}

func (u *UI) Success(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorPrefix, fmt.Sprintf(format, a...))
}

// Summary reports the totals of a finished run
func (u *UI) Summary(changes, skipped, issues, errors int) {
	if errors > 0 {
		u.Warning("Synced %d issues from %d changes (%d skipped) with %d errors", issues, changes, skipped, errors)
		return
	}
	u.Success("Synced %d issues from %d changes (%d skipped)", issues, changes, skipped)
}

// Table creates a new tablewriter configured with consistent styling.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

// Actions prints journal actions, newest first
func (u *UI) Actions(actions []models.Action, loc *time.Location) {
	if len(actions) == 0 {
		u.Warning("No actions recorded yet")
		return
	}

	table := u.Table([]string{"When", "Action", "Issue", "Change", "Detail"})
	for _, a := range actions {
		change := ""
		if a.Change != 0 {
			change = strconv.Itoa(a.Change)
		}
		_ = table.Append([]string{
			a.CreatedAt.In(loc).Format("2006-01-02 15:04:05"),
			KindColor(a.Kind),
			"#" + strconv.Itoa(a.Issue),
			change,
			a.Detail,
		})
	}
	_ = table.Render()
}
