package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wesm/gerrit-issue-sync/config"
	"github.com/wesm/gerrit-issue-sync/internal/api"
	"github.com/wesm/gerrit-issue-sync/internal/assign"
	"github.com/wesm/gerrit-issue-sync/internal/db"
	"github.com/wesm/gerrit-issue-sync/internal/gerrit"
	"github.com/wesm/gerrit-issue-sync/internal/logging"
	"github.com/wesm/gerrit-issue-sync/internal/output"
	"github.com/wesm/gerrit-issue-sync/internal/reconcile"
	"github.com/wesm/gerrit-issue-sync/internal/sync"
)

var ui = output.New()

var rootCmd = &cobra.Command{
	Use:   "gerrit-issue-sync [flags] <gerrit-project> <github-repo>",
	Short: "Synchronize GitHub Issues with changes found in Gerrit",
	Long: `gerrit-issue-sync evaluates every change of a Gerrit project:

1. Extract the issues it references ("Relates-To: #3", "Closes: #3" or "[#3]").
2. Post a status comment for the change on each issue, or update the one posted earlier.
3. Reopen closed issues that have new activity on Gerrit.
4. Label each issue "wip" when any change is marked WIP or DNM, "ready for review"
   when changes are open, and neither once every change is merged or abandoned.
5. Move the issue's card on the project board, when one is configured.
6. Answer "/assign" requests left in open issues.

The project and repository can also be set in the config file.`,
	Args:          projectArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSync,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file (YAML or JSON)")
	pf.BoolP("verbose", "v", false, "Enable debug logging, overrides --log-level")
	pf.String("log-file", "", "Also write logs to this file, rotated")
	pf.Bool("log-json", false, "Write logs as JSON")
	pf.String("log-level", "info", "Log level: debug, info, warn or error")
	pf.String("journal", "", "SQLite journal recording runs and applied actions")
	pf.String("timezone", "", "Timezone for comment timestamps (default America/Chicago)")

	f := rootCmd.Flags()
	f.StringP("gerrit-url", "g", "", "Gerrit host, env GERRIT_URL")
	f.Int("gerrit-port", gerrit.DefaultPort, "Gerrit SSH port")
	f.String("gerrit-user", "", "Gerrit SSH user")
	f.String("change-age", "", "Only query changes updated within this age, e.g. 2w")
	f.StringP("github-user", "u", "", "GitHub username, must be used with a password, env GITHUB_USER")
	f.StringP("github-password", "p", "", "GitHub password, env GITHUB_PW")
	f.StringP("github-token", "t", "", "GitHub token, preferred over user and password, env GITHUB_TOKEN")
	f.String("bot-login", "", "Login the bot comments as (default: the authenticated user)")
	f.Int64("project-id", 0, "Classic project board to move issue cards on")
	f.Bool("skip-approvals", false, "Leave approvals out of status comments")
	f.Bool("skip-assign", false, "Do not answer /assign requests")
	f.String("maintainers", "", "Team named when an /assign request is declined")

	rootCmd.AddCommand(historyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.Error("%v", err)
		os.Exit(1)
	}
}

func projectArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 0 && len(args) != 2 {
		return fmt.Errorf("expected <gerrit-project> <github-repo>, got %d arguments", len(args))
	}
	return nil
}

// loadConfig reads the configuration and applies the positional arguments
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if len(args) == 2 {
		cfg.Gerrit.Project = args[0]
		cfg.GitHub.Repository = args[1]
	}
	return cfg, nil
}

func logLevel(cfg *config.Config) slog.Level {
	if cfg.Verbose {
		return slog.LevelDebug
	}
	return logging.ParseLevel(cfg.LogLevel)
}

func newLogger(cfg *config.Config) (*slog.Logger, io.Closer) {
	return logging.New(logging.Options{Level: logLevel(cfg), JSON: cfg.LogJSON, File: cfg.LogFile})
}

func openJournal(path string) (*db.DB, error) {
	database, err := db.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := database.Initialize(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}
	return database, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	owner, name, err := sync.ParseRepositoryString(cfg.GitHub.Repository)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	logger, closer := newLogger(cfg)
	defer closer.Close()

	ctx := cmd.Context()
	client := api.NewGitHubClient(api.NewHTTPClient(cfg.Credentials()), owner, name)

	botLogin := cfg.GitHub.BotLogin
	if botLogin == "" {
		botLogin, err = client.AuthenticatedLogin(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve bot login: %w", err)
		}
	}
	logger.Debug("Using bot identity", "login", botLogin, "repository", client.Repository())

	source := gerrit.NewSSHSource(cfg.Gerrit.Host, cfg.Gerrit.Project, logger)
	source.Port = cfg.Gerrit.Port
	source.User = cfg.Gerrit.User
	source.ChangeAge = cfg.Gerrit.ChangeAge

	reconciler := reconcile.New(client, botLogin, logger)
	reconciler.SkipApprovals = cfg.SkipApprovals
	reconciler.Location = loc
	if cfg.GitHub.ProjectID != 0 {
		reconciler.Board = client.NewProjectBoard(cfg.GitHub.ProjectID)
	}

	syncer := sync.New(source, reconciler, logger)

	var resolver *assign.Resolver
	if !cfg.SkipAssign {
		resolver = assign.New(client, botLogin, logger)
		resolver.Maintainers = cfg.Maintainers
		syncer.SetResolver(resolver)
	}

	if cfg.JournalPath != "" {
		journal, err := openJournal(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer journal.Close()

		reconciler.Journal = journal
		if resolver != nil {
			resolver.Journal = journal
		}
		syncer.SetJournal(journal)
	}

	result, err := syncer.Run(ctx)
	if err != nil {
		return err
	}

	ui.Summary(result.Changes, result.Skipped, result.Issues, result.Errors)
	return nil
}
