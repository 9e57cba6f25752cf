package changeset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestForURLDispatch(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/acme/widget.git", "github"},
		{"git@github.com:acme/widget.git", "github"},
		{"https://gitlab.com/acme/widget.git", "gitlab"},
		{"https://gitlab.example.org/team/tool", "gitlab"},
		{"/srv/repos/widget", "local"},
		{"file:///srv/repos/widget", "local"},
		{"https://bitbucket.org/acme/widget", "local"},
	}

	for _, tt := range tests {
		a := ForURL(tt.url, t.TempDir())
		assert.Equal(t, tt.want, a.Platform(), "url %q", tt.url)
	}
}

func TestPlatformsAreRegistered(t *testing.T) {
	got := Platforms()
	assert.Contains(t, got, "github")
	assert.Contains(t, got, "gitlab")
}

func TestLocalFeatureMatrix(t *testing.T) {
	a := NewLocal(t.TempDir())
	assert.True(t, a.SupportsFeature(FeatureApprovalWorkflow))
	for _, f := range []Feature{
		FeatureDraftChangesets, FeatureFileComments, FeatureSuggestedChanges,
		FeatureAutoMerge, FeatureBranchProtection, FeatureStatusChecks,
		FeatureAssigneeManagement, FeatureLabelManagement, FeatureMilestoneTracking,
	} {
		assert.False(t, a.SupportsFeature(f), "feature %s", f)
	}
}

func TestFilterMatches(t *testing.T) {
	cs := &Changeset{
		Status:       StatusOpen,
		Author:       Author{Username: "ada"},
		TargetBranch: "main",
	}

	assert.True(t, filterMatches(ListFilter{}, cs))
	assert.True(t, filterMatches(ListFilter{Status: StatusOpen}, cs))
	assert.True(t, filterMatches(ListFilter{Author: "ada", TargetBranch: "main"}, cs))

	assert.False(t, filterMatches(ListFilter{Status: StatusMerged}, cs))
	assert.False(t, filterMatches(ListFilter{Author: "bob"}, cs))
	assert.False(t, filterMatches(ListFilter{TargetBranch: "develop"}, cs))
}

func TestMatchesScope(t *testing.T) {
	cs := &Changeset{Title: "Fix login bug", Description: "Repairs the session check"}

	assert.True(t, matchesScope(cs, "login", ScopeTitle))
	assert.False(t, matchesScope(cs, "session", ScopeTitle))

	assert.True(t, matchesScope(cs, "session", ScopeBody))
	assert.False(t, matchesScope(cs, "login", ScopeBody))

	assert.True(t, matchesScope(cs, "login", ScopeAll))
	assert.True(t, matchesScope(cs, "session", ScopeAll))
	assert.False(t, matchesScope(cs, "absent", ScopeAll))

	// Local changesets carry no comments, so a comment-scoped search never
	// matches.
	assert.False(t, matchesScope(cs, "login", ScopeComments))
}

func TestChangesetApproved(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		reviews []Review
		want    bool
	}{
		{"no reviews", nil, false},
		{"pending only", []Review{{Status: ReviewPending}}, false},
		{"approved", []Review{{Status: ReviewApproved, SubmittedAt: now}}, true},
		{"approved then changes requested", []Review{
			{Status: ReviewApproved},
			{Status: ReviewChangesRequested},
		}, false},
		{"changes requested then approved", []Review{
			{Status: ReviewChangesRequested},
			{Status: ReviewApproved},
		}, false},
		{"dismissed does not approve", []Review{{Status: ReviewDismissed}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Changeset{Reviews: tt.reviews}
			assert.Equal(t, tt.want, c.Approved())
		})
	}
}
