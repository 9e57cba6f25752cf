package changeset

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devsess.io/cli/cmd/devsess/cli/fault"
)

func git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Ada", "GIT_AUTHOR_EMAIL=ada@example.org",
		"GIT_COMMITTER_NAME=Ada", "GIT_COMMITTER_EMAIL=ada@example.org",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return string(out)
}

func commitFile(t *testing.T, dir, name, content, message string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	git(t, dir, "add", name)
	git(t, dir, "commit", "-m", message)
}

// initWorkRepo builds a checkout with a main branch and a work branch one
// commit ahead.
func initWorkRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	git(t, dir, "init", "--initial-branch=main")
	git(t, dir, "config", "user.name", "Ada")
	git(t, dir, "config", "user.email", "ada@example.org")
	commitFile(t, dir, "base.txt", "base\n", "Initial commit")
	git(t, dir, "checkout", "-b", "work")
	commitFile(t, dir, "feature.txt", "feature\n", "Add feature")
	return dir
}

func TestLocalCreateAndGet(t *testing.T) {
	ctx := context.Background()
	dir := initWorkRepo(t)
	a := NewLocal(dir)

	cs, err := a.Create(ctx, CreateOptions{
		Title:        "Add feature",
		Description:  "Adds the feature file.",
		SourceBranch: "work",
		SessionName:  "add-feature",
	})
	require.NoError(t, err)
	assert.Equal(t, "pr/add-feature", cs.ID)
	assert.Equal(t, StatusOpen, cs.Status)
	assert.Equal(t, "main", cs.TargetBranch)
	assert.Equal(t, "Add feature", cs.Title)
	assert.Equal(t, "Adds the feature file.", cs.Description)
	assert.Equal(t, "add-feature", cs.SessionName)
	require.NotNil(t, cs.Metadata.Local)
	assert.NotEmpty(t, cs.Metadata.Local.MergeBase)
	assert.NotEmpty(t, cs.Metadata.Local.BranchTip)

	// Get accepts the ID with or without the pr/ prefix.
	got, err := a.Get(ctx, "add-feature")
	require.NoError(t, err)
	assert.Equal(t, cs.ID, got.ID)

	got, err = a.Get(ctx, "pr/add-feature")
	require.NoError(t, err)
	assert.Equal(t, cs.ID, got.ID)
}

func TestLocalGetUnknownBranch(t *testing.T) {
	dir := initWorkRepo(t)
	a := NewLocal(dir)

	_, err := a.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestLocalListAndFilter(t *testing.T) {
	ctx := context.Background()
	dir := initWorkRepo(t)
	a := NewLocal(dir)

	_, err := a.Create(ctx, CreateOptions{Title: "Add feature", SourceBranch: "work", SessionName: "add-feature"})
	require.NoError(t, err)

	all, err := a.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "pr/add-feature", all[0].ID)

	open, err := a.List(ctx, ListFilter{Status: StatusOpen})
	require.NoError(t, err)
	assert.Len(t, open, 1)

	merged, err := a.List(ctx, ListFilter{Status: StatusMerged})
	require.NoError(t, err)
	assert.Empty(t, merged)
}

func TestLocalMerge(t *testing.T) {
	ctx := context.Background()
	dir := initWorkRepo(t)
	a := NewLocal(dir)

	cs, err := a.Create(ctx, CreateOptions{Title: "Add feature", SourceBranch: "work", SessionName: "add-feature"})
	require.NoError(t, err)

	merged, err := a.Merge(ctx, cs.ID, MergeOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusMerged, merged.Status)

	// The feature landed on main.
	git(t, dir, "checkout", "main")
	data, err := os.ReadFile(filepath.Join(dir, "feature.txt"))
	require.NoError(t, err)
	assert.Equal(t, "feature\n", string(data))

	// Merging again is a no-op, not an error.
	again, err := a.Merge(ctx, cs.ID, MergeOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusMerged, again.Status)
}

func TestLocalUpdateRewritesMessage(t *testing.T) {
	ctx := context.Background()
	dir := initWorkRepo(t)
	a := NewLocal(dir)

	cs, err := a.Create(ctx, CreateOptions{Title: "Old title", SourceBranch: "work", SessionName: "add-feature"})
	require.NoError(t, err)
	tipBefore := cs.Metadata.Local.BranchTip

	newTitle := "New title"
	newBody := "New body."
	updated, err := a.Update(ctx, cs.ID, UpdatePatch{Title: &newTitle, Description: &newBody})
	require.NoError(t, err)
	assert.Equal(t, "New title", updated.Title)
	assert.Equal(t, "New body.", updated.Description)
	assert.NotEqual(t, tipBefore, updated.Metadata.Local.BranchTip, "rewritten commit has a new hash")

	// The rewritten proposal still merges cleanly.
	merged, err := a.Merge(ctx, cs.ID, MergeOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusMerged, merged.Status)
}

func TestLocalSearch(t *testing.T) {
	ctx := context.Background()
	dir := initWorkRepo(t)
	a := NewLocal(dir)

	_, err := a.Create(ctx, CreateOptions{
		Title:        "Fix login flow",
		Description:  "Repairs session handling.",
		SourceBranch: "work",
		SessionName:  "fix-login",
	})
	require.NoError(t, err)

	hits, err := a.Search(ctx, "login", ScopeTitle)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = a.Search(ctx, "session", ScopeBody)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = a.Search(ctx, "absent", ScopeAll)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLocalTargetBranchFallsBackToMaster(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	git(t, dir, "init", "--initial-branch=master")
	git(t, dir, "config", "user.name", "Ada")
	git(t, dir, "config", "user.email", "ada@example.org")
	commitFile(t, dir, "base.txt", "base\n", "Initial commit")
	git(t, dir, "checkout", "-b", "work")
	commitFile(t, dir, "feature.txt", "feature\n", "Add feature")

	a := NewLocal(dir)
	cs, err := a.Create(ctx, CreateOptions{Title: "Add feature", SourceBranch: "work", SessionName: "s"})
	require.NoError(t, err)
	assert.Equal(t, "master", cs.TargetBranch)
}

func TestLocalCommitsListedAgainstTarget(t *testing.T) {
	ctx := context.Background()
	dir := initWorkRepo(t)
	commitFile(t, dir, "second.txt", "more\n", "Second commit")

	a := NewLocal(dir)
	cs, err := a.Create(ctx, CreateOptions{Title: "Work", SourceBranch: "work", SessionName: "s"})
	require.NoError(t, err)

	// Two work commits plus the prepared merge commit itself.
	require.Len(t, cs.Commits, 3)
	assert.Equal(t, "Ada", cs.Commits[1].Author.Username)
}
