package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesm/gerrit-issue-sync/config"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the most recent actions recorded in the journal",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of actions to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	if cfg.JournalPath == "" {
		return fmt.Errorf("%w: no journal configured, set --journal or journal_path", config.ErrConfiguration)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	journal, err := openJournal(cfg.JournalPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	ctx := cmd.Context()
	run, err := journal.LastRun(ctx)
	if err != nil {
		return err
	}
	if run != nil {
		when := run.StartedAt.In(loc).Format("2006-01-02 15:04:05 MST")
		if run.FinishedAt == nil {
			ui.Warning("Last run #%d started %s did not finish", run.ID, when)
		} else {
			ui.Success("Last run #%d at %s: %d changes, %d issues, %d errors", run.ID, when, run.Changes, run.Issues, run.Errors)
		}
	}

	actions, err := journal.RecentActions(ctx, limit)
	if err != nil {
		return err
	}
	ui.Actions(actions, loc)
	return nil
}
