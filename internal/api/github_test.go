package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-github/v57/github"
	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/gerrit-issue-sync/internal/models"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *GitHubClient {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gh := github.NewClient(srv.Client())
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base

	return &GitHubClient{
		client:  gh,
		graphql: &GraphQLClient{client: githubv4.NewEnterpriseClient(srv.URL+"/graphql", srv.Client())},
		owner:   "airshipit",
		name:    "airshipctl",
	}
}

func notFound(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprint(w, `{"message":"Not Found"}`)
}

func TestGetIssue(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/airshipit/airshipctl/issues/12", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"number": 12,
			"title": "Broken config",
			"state": "closed",
			"url": "https://api.github.com/repos/airshipit/airshipctl/issues/12",
			"created_at": "2026-01-02T03:04:05Z",
			"labels": [{"name": "wip"}, {"name": "bug"}],
			"assignees": [{"login": "bob"}]
		}`)
	})
	mux.HandleFunc("GET /repos/airshipit/airshipctl/issues/13", func(w http.ResponseWriter, r *http.Request) {
		notFound(w)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	issue, err := c.GetIssue(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, issue.Number)
	assert.True(t, issue.IsClosed())
	assert.Equal(t, []string{"wip", "bug"}, issue.Labels)
	assert.Equal(t, []string{"bob"}, issue.Assignees)
	assert.Equal(t, "https://api.github.com/repos/airshipit/airshipctl/issues/12", issue.URL)
	assert.Equal(t, 2026, issue.CreatedAt.Year())

	_, err = c.GetIssue(ctx, 13)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRemoveLabel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /repos/airshipit/airshipctl/issues/1/labels/wip", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})
	mux.HandleFunc("DELETE /repos/airshipit/airshipctl/issues/2/labels/wip", func(w http.ResponseWriter, r *http.Request) {
		notFound(w)
	})
	mux.HandleFunc("DELETE /repos/airshipit/airshipctl/issues/3/labels/wip", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message":"boom"}`)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	assert.NoError(t, c.RemoveLabel(ctx, 1, "wip"))
	assert.NoError(t, c.RemoveLabel(ctx, 2, "wip"), "absent label is not an error")

	err := c.RemoveLabel(ctx, 3, "wip")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestCommentMutations(t *testing.T) {
	var created, edited string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/airshipit/airshipctl/issues/4/comments", func(w http.ResponseWriter, r *http.Request) {
		var c github.IssueComment
		require.NoError(t, json.NewDecoder(r.Body).Decode(&c))
		created = c.GetBody()
		fmt.Fprint(w, `{"id": 99}`)
	})
	mux.HandleFunc("PATCH /repos/airshipit/airshipctl/issues/comments/99", func(w http.ResponseWriter, r *http.Request) {
		var c github.IssueComment
		require.NoError(t, json.NewDecoder(r.Body).Decode(&c))
		edited = c.GetBody()
		fmt.Fprint(w, `{"id": 99}`)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	require.NoError(t, c.CreateComment(ctx, 4, "hello"))
	require.NoError(t, c.EditComment(ctx, 99, "updated"))
	assert.Equal(t, "hello", created)
	assert.Equal(t, "updated", edited)
}

func TestListComments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/airshipit/airshipctl/issues/4/comments", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "asc", r.URL.Query().Get("direction"))
		fmt.Fprint(w, `[
			{"id": 1, "body": "first", "user": {"login": "alice"}, "created_at": "2026-01-01T00:00:00Z"},
			{"id": 2, "body": "second", "user": {"login": "gerrit-bot"}, "created_at": "2026-01-02T00:00:00Z"}
		]`)
	})
	c := newTestClient(t, mux)

	comments, err := c.ListComments(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, &models.Comment{ID: 2, Author: "gerrit-bot", Body: "second", CreatedAt: comments[1].CreatedAt}, comments[1])
	assert.Equal(t, "alice", comments[0].Author)
}

func TestAssignees(t *testing.T) {
	var added, removed []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/airshipit/airshipctl/issues/5/assignees", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Assignees []string `json:"assignees"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		added = body.Assignees
		fmt.Fprint(w, `{"number": 5}`)
	})
	mux.HandleFunc("DELETE /repos/airshipit/airshipctl/issues/5/assignees", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body struct {
			Assignees []string `json:"assignees"`
		}
		require.NoError(t, json.Unmarshal(data, &body))
		removed = body.Assignees
		fmt.Fprint(w, `{"number": 5}`)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	require.NoError(t, c.RemoveAssignees(ctx, 5, []string{"bob"}))
	require.NoError(t, c.AddAssignees(ctx, 5, []string{"carol"}))
	assert.Equal(t, []string{"bob"}, removed)
	assert.Equal(t, []string{"carol"}, added)
}

func TestOpenIssueThreads(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /graphql", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": {"repository": {"issues": {
			"nodes": [{
				"number": 7,
				"title": "Take me",
				"state": "OPEN",
				"url": "https://github.com/airshipit/airshipctl/issues/7",
				"createdAt": "2026-01-01T00:00:00Z",
				"labels": {"nodes": [{"name": "good first issue"}]},
				"assignees": {"nodes": []},
				"comments": {
					"nodes": [{"databaseId": 70, "body": "/assign", "createdAt": "2026-01-03T00:00:00Z", "author": {"login": "alice"}}],
					"pageInfo": {"endCursor": "c1", "hasNextPage": false}
				}
			}],
			"pageInfo": {"endCursor": "i1", "hasNextPage": false}
		}}}}`)
	})
	c := newTestClient(t, mux)

	threads, err := c.OpenIssueThreads(context.Background())
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, 7, threads[0].Issue.Number)
	assert.Equal(t, models.IssueStateOpen, threads[0].Issue.State)
	assert.Equal(t, []string{"good first issue"}, threads[0].Issue.Labels)
	assert.Empty(t, threads[0].Issue.Assignees)
	require.Len(t, threads[0].Comments, 1)
	assert.Equal(t, "alice", threads[0].Comments[0].Author)
	assert.Equal(t, int64(70), threads[0].Comments[0].ID)
}

func TestOpenIssueThreads_CommentPageFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /graphql", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "issue(number:") {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"message":"bad gateway"}`)
			return
		}
		fmt.Fprint(w, `{"data": {"repository": {"issues": {
			"nodes": [{
				"number": 7,
				"title": "Busy",
				"state": "OPEN",
				"url": "https://github.com/airshipit/airshipctl/issues/7",
				"createdAt": "2026-01-01T00:00:00Z",
				"labels": {"nodes": []},
				"assignees": {"nodes": []},
				"comments": {
					"nodes": [{"databaseId": 70, "body": "first", "createdAt": "2026-01-03T00:00:00Z", "author": {"login": "alice"}}],
					"pageInfo": {"endCursor": "c1", "hasNextPage": true}
				}
			}, {
				"number": 8,
				"title": "Quiet",
				"state": "OPEN",
				"url": "https://github.com/airshipit/airshipctl/issues/8",
				"createdAt": "2026-01-02T00:00:00Z",
				"labels": {"nodes": []},
				"assignees": {"nodes": []},
				"comments": {
					"nodes": [{"databaseId": 80, "body": "/assign", "createdAt": "2026-01-04T00:00:00Z", "author": {"login": "bob"}}],
					"pageInfo": {"endCursor": "c2", "hasNextPage": false}
				}
			}],
			"pageInfo": {"endCursor": "i1", "hasNextPage": false}
		}}}}`)
	})
	c := newTestClient(t, mux)

	threads, err := c.OpenIssueThreads(context.Background())
	require.NoError(t, err)
	require.Len(t, threads, 2)

	assert.Equal(t, 7, threads[0].Issue.Number)
	assert.Error(t, threads[0].Err, "partial comments are flagged")
	assert.Len(t, threads[0].Comments, 1)

	assert.Equal(t, 8, threads[1].Issue.Number)
	assert.NoError(t, threads[1].Err)
	require.Len(t, threads[1].Comments, 1)
}

func TestNewHTTPClient(t *testing.T) {
	assert.Same(t, http.DefaultClient, NewHTTPClient(Credentials{}))
	assert.NotSame(t, http.DefaultClient, NewHTTPClient(Credentials{Token: "t"}))
	assert.NotSame(t, http.DefaultClient, NewHTTPClient(Credentials{Username: "u", Password: "p"}))
}
