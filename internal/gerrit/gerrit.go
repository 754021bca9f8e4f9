// Package gerrit fetches changes from a Gerrit project.
package gerrit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/wesm/gerrit-issue-sync/internal/models"
)

// DefaultPort is the Gerrit SSH daemon port
const DefaultPort = 29418

// ChangeSource provides the changes of a Gerrit project
type ChangeSource interface {
	Changes(ctx context.Context) ([]models.Change, error)
}

// Runner executes a command and returns its standard output
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// SSHSource queries Gerrit with "gerrit query" over ssh
type SSHSource struct {
	Host      string
	Port      int
	User      string
	Project   string
	ChangeAge string

	run    Runner
	logger *slog.Logger
}

// NewSSHSource creates a change source for a Gerrit project
func NewSSHSource(host, project string, logger *slog.Logger) *SSHSource {
	return &SSHSource{
		Host:    host,
		Port:    DefaultPort,
		Project: project,
		run:     runCommand,
		logger:  logger,
	}
}

// Changes runs the query and returns every well-formed change in the result
func (s *SSHSource) Changes(ctx context.Context) ([]models.Change, error) {
	target := s.Host
	if s.User != "" {
		target = s.User + "@" + s.Host
	}

	args := []string{"-p", strconv.Itoa(s.Port), target}
	args = append(args, s.queryArgs()...)

	s.logger.Debug("Querying Gerrit", "host", s.Host, "project", s.Project, "change_age", s.ChangeAge)
	out, err := s.run(ctx, "ssh", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query gerrit project %s: %w", s.Project, err)
	}

	return DecodeChanges(bytes.NewReader(out), s.Host, s.logger)
}

func (s *SSHSource) queryArgs() []string {
	args := []string{"gerrit", "query", "--format=JSON", "--current-patch-set", "project:" + s.Project}
	if s.ChangeAge != "" {
		args = append(args, "--", "-age:"+s.ChangeAge)
	}
	return args
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%s: %s", name, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// changeRecord is one row of "gerrit query --format=JSON" output
type changeRecord struct {
	Type          string      `json:"type"`
	Message       string      `json:"message"`
	Number        json.Number `json:"number"`
	Subject       string      `json:"subject"`
	URL           string      `json:"url"`
	Status        string      `json:"status"`
	CommitMessage *string     `json:"commitMessage"`
	Owner         struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"owner"`
	CurrentPatchSet struct {
		Approvals []approvalRecord `json:"approvals"`
	} `json:"currentPatchSet"`
}

type approvalRecord struct {
	Type string `json:"type"`
	By   struct {
		Name string `json:"name"`
	} `json:"by"`
	Value string `json:"value"`
}

// DecodeChanges reads JSON-lines query output. The trailing stats row,
// malformed lines and records without a commit message are skipped.
// Error rows are logged as warnings.
func DecodeChanges(r io.Reader, host string, logger *slog.Logger) ([]models.Change, error) {
	var changes []models.Change

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec changeRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			logger.Warn("Skipping malformed Gerrit record", "error", err)
			continue
		}
		if rec.Type == "error" {
			logger.Warn("Gerrit query reported an error", "message", rec.Message)
			continue
		}
		if rec.Type == "stats" {
			logger.Debug("Skipping Gerrit query metadata", "type", rec.Type)
			continue
		}

		change, ok := toChange(rec, host, logger)
		if !ok {
			continue
		}
		changes = append(changes, change)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read gerrit query output: %w", err)
	}

	return changes, nil
}

func toChange(rec changeRecord, host string, logger *slog.Logger) (models.Change, bool) {
	number, err := strconv.Atoi(rec.Number.String())
	if err != nil {
		logger.Warn("Skipping Gerrit record without a valid change number", "number", rec.Number.String())
		return models.Change{}, false
	}
	if rec.CommitMessage == nil {
		logger.Warn("Skipping Gerrit change without a commit message", "change", number)
		return models.Change{}, false
	}

	url := rec.URL
	if url == "" {
		url = ChangeURL(host, number)
	}

	change := models.Change{
		Number:        number,
		Subject:       rec.Subject,
		URL:           url,
		Status:        rec.Status,
		CommitMessage: *rec.CommitMessage,
		Owner: models.Owner{
			Name:  rec.Owner.Name,
			Email: rec.Owner.Email,
		},
	}

	for _, a := range rec.CurrentPatchSet.Approvals {
		value, err := strconv.Atoi(strings.TrimSpace(a.Value))
		if err != nil {
			logger.Warn("Ignoring approval with a non-numeric value",
				"change", number, "type", a.Type, "value", a.Value)
			continue
		}
		change.Approvals = append(change.Approvals, models.Approval{
			Type:  a.Type,
			By:    a.By.Name,
			Value: value,
		})
	}

	return change, true
}

// ChangeURL builds the web URL of a change on a Gerrit host
func ChangeURL(host string, number int) string {
	return fmt.Sprintf("https://%s/%d", host, number)
}
