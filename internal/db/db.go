package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/wesm/gerrit-issue-sync/internal/models"
)

// DB is the run journal: a record of every sync run and the mutations it
// applied. Sync decisions never read from it.
type DB struct {
	*sql.DB
	runID int64
}

// Run summarizes one sync run
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	Changes    int
	Issues     int
	Errors     int
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Initialize creates the database schema if it doesn't exist
func (db *DB) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		changes INTEGER NOT NULL DEFAULT 0,
		issues INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		issue INTEGER NOT NULL,
		change INTEGER,
		detail TEXT,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_actions_run ON actions(run_id);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// StartRun opens a new run; subsequent actions are attached to it
func (db *DB) StartRun(ctx context.Context, startedAt time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `INSERT INTO runs (started_at) VALUES (?)`, startedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to start run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}
	db.runID = id
	return id, nil
}

// FinishRun stores the totals of the current run
func (db *DB) FinishRun(ctx context.Context, finishedAt time.Time, changes, issues, errors int) error {
	query := `
	UPDATE runs SET finished_at = ?, changes = ?, issues = ?, errors = ?
	WHERE id = ?
	`

	_, err := db.ExecContext(ctx, query, finishedAt, changes, issues, errors, db.runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %d: %w", db.runID, err)
	}

	return nil
}

// Record saves an action under the current run
func (db *DB) Record(ctx context.Context, action models.Action) error {
	if db.runID == 0 {
		return fmt.Errorf("no run started")
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}

	var change sql.NullInt64
	if action.Change != 0 {
		change = sql.NullInt64{Int64: int64(action.Change), Valid: true}
	}

	query := `
	INSERT INTO actions (run_id, kind, issue, change, detail, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query, db.runID, action.Kind, action.Issue, change, action.Detail, action.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}

	return nil
}

// RecentActions gets the latest actions across all runs, newest first
func (db *DB) RecentActions(ctx context.Context, limit int) ([]models.Action, error) {
	query := `
	SELECT kind, issue, change, detail, created_at
	FROM actions
	ORDER BY id DESC
	LIMIT ?
	`

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var actions []models.Action
	for rows.Next() {
		var a models.Action
		var change sql.NullInt64
		var detail sql.NullString
		if err := rows.Scan(&a.Kind, &a.Issue, &change, &detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		a.Change = int(change.Int64)
		a.Detail = detail.String
		actions = append(actions, a)
	}

	return actions, rows.Err()
}

// LastRun gets the most recent run, or nil if the journal is empty
func (db *DB) LastRun(ctx context.Context) (*Run, error) {
	query := `
	SELECT id, started_at, finished_at, changes, issues, errors
	FROM runs ORDER BY id DESC LIMIT 1
	`

	var run Run
	var finished sql.NullTime
	err := db.QueryRowContext(ctx, query).Scan(&run.ID, &run.StartedAt, &finished, &run.Changes, &run.Issues, &run.Errors)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last run: %w", err)
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}

	return &run, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
