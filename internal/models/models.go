package models

import (
	"time"
)

// Gerrit change statuses
const (
	ChangeStatusNew       = "NEW"
	ChangeStatusMerged    = "MERGED"
	ChangeStatusAbandoned = "ABANDONED"
)

// Issue states
const (
	IssueStateOpen   = "open"
	IssueStateClosed = "closed"
)

// Owner represents the owner of a Gerrit change
type Owner struct {
	Name  string
	Email string
}

// Approval represents a reviewer's vote on the current patch set
type Approval struct {
	Type  string
	By    string
	Value int
}

// Change represents one Gerrit change as seen in a single sync run
type Change struct {
	Number        int
	Subject       string
	URL           string
	Status        string
	CommitMessage string
	Owner         Owner
	Approvals     []Approval
}

// IsOpen reports whether the change is still under review
func (c Change) IsOpen() bool {
	return c.Status == ChangeStatusNew
}

// Relation is the kind of link a commit message declares to an issue
type Relation string

const (
	RelationRelated Relation = "related"
	RelationCloses  Relation = "closes"
)

// Relations lists the relation kinds in processing order
var Relations = []Relation{RelationRelated, RelationCloses}

// References maps a relation kind to the issue numbers a commit message
// references under it. An empty map means the change has no issue association.
type References map[Relation][]int

// IssueNumbers returns every referenced issue number, related first
func (r References) IssueNumbers() []int {
	var numbers []int
	for _, kind := range Relations {
		numbers = append(numbers, r[kind]...)
	}
	return numbers
}

// Issue represents a GitHub issue
type Issue struct {
	Number        int
	Title         string
	State         string
	Labels        []string
	Assignees     []string
	CreatedAt     time.Time
	URL           string
	HTMLURL       string
	IsPullRequest bool
}

// IsClosed reports whether the issue is closed
func (i *Issue) IsClosed() bool {
	return i.State == IssueStateClosed
}

// HasLabel reports whether the issue currently carries the label
func (i *Issue) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// HasAssignee reports whether login is among the issue's assignees
func (i *Issue) HasAssignee(login string) bool {
	for _, a := range i.Assignees {
		if a == login {
			return true
		}
	}
	return false
}

// Comment represents a GitHub issue comment
type Comment struct {
	ID        int64
	Author    string
	Body      string
	CreatedAt time.Time
}

// IssueThread is an issue together with its comments in chronological order
type IssueThread struct {
	Issue    *Issue
	Comments []*Comment
	// Err is set when not every comment could be fetched
	Err error
}

// Action kinds recorded in the journal
const (
	ActionCommentCreated = "comment_created"
	ActionCommentEdited  = "comment_edited"
	ActionReopened       = "reopened"
	ActionLabelAdded     = "label_added"
	ActionLabelRemoved   = "label_removed"
	ActionCardMoved      = "card_moved"
	ActionAssigned       = "assigned"
	ActionUnassigned     = "unassigned"
	ActionAssignDeclined = "assign_declined"
)

// Action is a single mutation applied to the issue tracker
type Action struct {
	Kind      string
	Issue     int
	Change    int
	Detail    string
	CreatedAt time.Time
}
