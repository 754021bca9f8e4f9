package parser

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wesm/gerrit-issue-sync/internal/models"
)

var discard = slog.New(slog.DiscardHandler)

func TestParse_RelatesToOnly(t *testing.T) {
	refs := Parse("Add feature\n\nRelates-To: #3\nRelates-To: #4\n", discard)
	assert.Equal(t, models.References{
		models.RelationRelated: {3, 4},
		models.RelationCloses:  {},
	}, refs)
}

func TestParse_TaggedFormIgnoresLegacyTags(t *testing.T) {
	refs := Parse("[#9] Fix thing\n\nRelates-To: #12\n", discard)
	assert.Equal(t, []int{12}, refs[models.RelationRelated])
	assert.Empty(t, refs[models.RelationCloses])
	assert.NotContains(t, refs.IssueNumbers(), 9)
}

func TestParse_ClosesOnly(t *testing.T) {
	refs := Parse("Fix crash\n\nCloses: #7\n", discard)
	assert.Equal(t, []int{7}, refs[models.RelationCloses])
	assert.Empty(t, refs[models.RelationRelated])
	_, ok := refs[models.RelationRelated]
	assert.True(t, ok, "tagged form always reports both kinds")
}

func TestParse_LegacyTag(t *testing.T) {
	refs := Parse("fix bug [#9]", discard)
	assert.Equal(t, models.References{models.RelationRelated: {9}}, refs)
}

func TestParse_NoTags(t *testing.T) {
	refs := Parse("Refactor the world\n\nChange-Id: I123\n", discard)
	assert.Empty(t, refs)
}

func TestParse_NonNumericDiscarded(t *testing.T) {
	refs := Parse("Relates-To: #abc\nRelates-To: #5\n", discard)
	assert.Equal(t, []int{5}, refs[models.RelationRelated])

	legacy := Parse("see [#x] and [#2]", discard)
	assert.Equal(t, []int{2}, legacy[models.RelationRelated])
}

func TestParse_DuplicatesCollapsed(t *testing.T) {
	refs := Parse("[#2] [#2] [#1]", discard)
	assert.Equal(t, []int{2, 1}, refs[models.RelationRelated])
}

func TestRemoveDuplicatedIssueNumbers(t *testing.T) {
	refs := RemoveDuplicatedIssueNumbers(Parse("Relates-To: #12\nCloses: #12\n", discard))
	assert.Empty(t, refs[models.RelationRelated])
	assert.Equal(t, []int{12}, refs[models.RelationCloses])

	refs = RemoveDuplicatedIssueNumbers(Parse("Closes: #5\nRelates-To: #5\nRelates-To: #6\n", discard))
	assert.Equal(t, []int{6}, refs[models.RelationRelated])
	assert.Equal(t, []int{5}, refs[models.RelationCloses])
}

func TestRemoveDuplicatedIssueNumbers_LegacyUntouched(t *testing.T) {
	refs := RemoveDuplicatedIssueNumbers(models.References{models.RelationRelated: {1, 2}})
	assert.Equal(t, []int{1, 2}, refs[models.RelationRelated])
}

func TestIsWIP(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"WIP: new parser", true},
		{"[dnm] do not merge", true},
		{"wip", true},
		{"Ready to go", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsWIP(tt.msg), tt.msg)
	}
}
