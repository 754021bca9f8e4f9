// Package parser extracts GitHub issue references from Gerrit commit messages.
package parser

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/wesm/gerrit-issue-sync/internal/models"
)

var (
	relatesToRe = regexp.MustCompile(`Relates-To: #(.*)`)
	closesRe    = regexp.MustCompile(`Closes: #(.*)`)
	legacyRe    = regexp.MustCompile(`\[#(.*?)\]`)
)

// Parse returns the issues referenced by a commit message.
//
// Relates-To and Closes tags take priority: if either appears, both kinds are
// returned and legacy "[#N]" tags are ignored. Otherwise legacy tags are
// reported as related. A message with no recognizable tag yields an empty map.
func Parse(commitMessage string, logger *slog.Logger) models.References {
	related := captures(relatesToRe, commitMessage)
	closes := captures(closesRe, commitMessage)
	logger.Debug("Captured tagged issues", "related", related, "closes", closes)

	if len(related) > 0 || len(closes) > 0 {
		return models.References{
			models.RelationRelated: toIssueNumbers(related, logger),
			models.RelationCloses:  toIssueNumbers(closes, logger),
		}
	}

	legacy := captures(legacyRe, commitMessage)
	logger.Debug("Falling back to legacy tags", "captured", legacy)
	if len(legacy) == 0 {
		return models.References{}
	}
	return models.References{
		models.RelationRelated: toIssueNumbers(legacy, logger),
	}
}

// RemoveDuplicatedIssueNumbers drops every closed issue from the related set
// so the two kinds are disjoint.
func RemoveDuplicatedIssueNumbers(refs models.References) models.References {
	closes, ok := refs[models.RelationCloses]
	if !ok {
		return refs
	}
	closing := make(map[int]struct{}, len(closes))
	for _, n := range closes {
		closing[n] = struct{}{}
	}

	related := make([]int, 0, len(refs[models.RelationRelated]))
	for _, n := range refs[models.RelationRelated] {
		if _, dup := closing[n]; !dup {
			related = append(related, n)
		}
	}
	refs[models.RelationRelated] = related
	return refs
}

// IsWIP reports whether a commit message marks its change as work in
// progress or do-not-merge.
func IsWIP(commitMessage string) bool {
	upper := strings.ToUpper(commitMessage)
	return strings.Contains(upper, "WIP") || strings.Contains(upper, "DNM")
}

func captures(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

// toIssueNumbers converts captured tokens to unique issue numbers, keeping
// first-seen order. Tokens that are not integers are dropped.
func toIssueNumbers(tokens []string, logger *slog.Logger) []int {
	numbers := make([]int, 0, len(tokens))
	seen := make(map[int]struct{}, len(tokens))
	for _, tok := range tokens {
		n, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			logger.Warn("Issue reference is not a number, ignoring it", "value", tok)
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		numbers = append(numbers, n)
	}
	return numbers
}
