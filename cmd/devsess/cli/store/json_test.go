package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devsess.io/cli/cmd/devsess/cli/fault"
)

func newTestJSONBackend(t *testing.T) *JSONBackend {
	t.Helper()
	dir := t.TempDir()
	b := NewJSONBackend(filepath.Join(dir, "sessions.json"), dir)
	require.NoError(t, b.Initialize(context.Background()))
	return b
}

func TestJSONBackendInitializeRewritesEmptyFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	b := NewJSONBackend(path, dir)
	require.NoError(t, b.Initialize(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data, "zero-byte store file must be rewritten as empty state")

	report := CheckStoreFile(ctx, FormatJSON, path)
	assert.True(t, report.IsValid, "issues: %v", report.Issues)
}

func TestJSONBackendInitializeKeepsExistingData(t *testing.T) {
	ctx := context.Background()
	b := newTestJSONBackend(t)
	require.NoError(t, b.Create(ctx, SessionRecord{Session: "s1", RepoName: "a/b", RepoURL: "a/b"}))

	require.NoError(t, b.Initialize(ctx))

	got, err := b.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got, "reinitializing must not clobber existing records")
}

func TestJSONBackendCreateGet(t *testing.T) {
	ctx := context.Background()
	b := newTestJSONBackend(t)

	rec := SessionRecord{Session: "fix-login", RepoName: "acme/widget", RepoURL: "acme/widget", TaskID: "#23"}
	require.NoError(t, b.Create(ctx, rec))

	got, err := b.Get(ctx, "fix-login")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "acme/widget", got.RepoName)

	absent, err := b.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, absent, "absent session must be (nil, nil), not an error")
}

func TestJSONBackendCreateDuplicateConflicts(t *testing.T) {
	ctx := context.Background()
	b := newTestJSONBackend(t)

	rec := SessionRecord{Session: "s1", RepoName: "a/b", RepoURL: "a/b"}
	require.NoError(t, b.Create(ctx, rec))
	err := b.Create(ctx, rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrConflict)
}

func TestJSONBackendUpdate(t *testing.T) {
	ctx := context.Background()
	b := newTestJSONBackend(t)

	require.NoError(t, b.Create(ctx, SessionRecord{Session: "s1", RepoName: "a/b", RepoURL: "a/b"}))

	updated, err := b.Update(ctx, "s1", Patch{
		PRBranch:   StringPtr("pr/s1"),
		PRApproved: true,
	})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "pr/s1", updated.PRBranch)
	assert.Equal(t, true, updated.PRApproved)

	// Updating an absent session is a no-op, not an error.
	missing, err := b.Update(ctx, "ghost", Patch{PRApproved: true})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestJSONBackendDelete(t *testing.T) {
	ctx := context.Background()
	b := newTestJSONBackend(t)

	require.NoError(t, b.Create(ctx, SessionRecord{Session: "s1", RepoName: "a/b", RepoURL: "a/b"}))

	removed, err := b.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = b.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, removed, "second delete reports nothing removed")
}

func TestJSONBackendPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")

	b := NewJSONBackend(path, dir)
	require.NoError(t, b.Initialize(ctx))
	require.NoError(t, b.Create(ctx, SessionRecord{Session: "s1", RepoName: "a/b", RepoURL: "a/b", PRApproved: false}))

	reopened := NewJSONBackend(path, dir)
	got, err := reopened.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a/b", got.RepoName)
	assert.Equal(t, false, got.PRApproved)
}

func TestJSONBackendAcceptsLegacyArrayFormat(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")

	legacy := `[{"session":"old-one","repoName":"a/b","repoUrl":"a/b","createdAt":"2024-01-01T00:00:00Z"}]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	b := NewJSONBackend(path, dir)
	got, err := b.Get(ctx, "old-one")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a/b", got.RepoName)
}

func TestJSONBackendCorruptFileYieldsEmptyState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	b := NewJSONBackend(path, dir)
	records, err := b.GetAll(ctx, nil)
	require.NoError(t, err, "corrupt file must degrade to empty, not fail")
	assert.Empty(t, records)
}

func TestJSONBackendPreservesNonBooleanApproval(t *testing.T) {
	// A record persisted with a string "true" must come back as the string,
	// not coerced to a boolean; the approval gate depends on seeing the
	// real value.
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")

	raw := `{"sessions":[{"session":"s1","repoName":"a/b","repoUrl":"a/b","createdAt":"2024-01-01T00:00:00Z","prBranch":"pr/s1","prApproved":"true"}],"baseDir":""}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	b := NewJSONBackend(path, dir)
	got, err := b.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "true", got.PRApproved)
	assert.False(t, got.Approved())
}

func TestJSONBackendGetAllFilter(t *testing.T) {
	ctx := context.Background()
	b := newTestJSONBackend(t)

	require.NoError(t, b.Create(ctx, SessionRecord{Session: "s1", RepoName: "a/b", RepoURL: "a/b", TaskID: "#23"}))
	require.NoError(t, b.Create(ctx, SessionRecord{Session: "s2", RepoName: "a/b", RepoURL: "a/b", TaskID: "#24"}))
	require.NoError(t, b.Create(ctx, SessionRecord{Session: "s3", RepoName: "c/d", RepoURL: "c/d"}))

	byTask, err := b.GetAll(ctx, &Filter{TaskID: "23"})
	require.NoError(t, err)
	require.Len(t, byTask, 1)
	assert.Equal(t, "s1", byTask[0].Session)

	byRepo, err := b.GetAll(ctx, &Filter{RepoName: "a/b"})
	require.NoError(t, err)
	assert.Len(t, byRepo, 2)

	// Records without a task ID never match a positive task filter.
	none, err := b.GetAll(ctx, &Filter{TaskID: "#99"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStoreAddValidatesAndNormalizes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b := NewJSONBackend(filepath.Join(dir, "sessions.json"), dir)
	s := New(b, dir)

	err := s.Add(ctx, SessionRecord{Session: "../escape", RepoName: "a/b", RepoURL: "a/b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrInvalidInput)

	require.NoError(t, s.Add(ctx, SessionRecord{Session: "ok", RepoName: "a/b", RepoURL: "a/b", TaskID: "md#007"}))
	rec, ok := s.Get(ctx, "ok")
	require.True(t, ok)
	assert.Equal(t, "md#7", string(rec.TaskID))
	assert.False(t, rec.CreatedAt.IsZero(), "CreatedAt is stamped on add")
}

func TestStoreGetByTaskID(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := New(NewJSONBackend(filepath.Join(dir, "sessions.json"), dir), dir)

	require.NoError(t, s.Add(ctx, SessionRecord{Session: "s1", RepoName: "a/b", RepoURL: "a/b", TaskID: "#23"}))

	for _, form := range []string{"23", "#23", "#023"} {
		rec, ok := s.GetByTaskID(ctx, form)
		require.True(t, ok, "form %q", form)
		assert.Equal(t, "s1", rec.Session)
	}

	_, ok := s.GetByTaskID(ctx, "md#23")
	assert.False(t, ok, "backend-qualified ID is a different task")
}

func TestStoreRepoPathUsesSessionOnly(t *testing.T) {
	dir := t.TempDir()
	s := New(NewJSONBackend(filepath.Join(dir, "sessions.json"), dir), dir)

	rec := &SessionRecord{Session: "fix-login", RepoName: "acme/widget"}
	assert.Equal(t, filepath.Join(dir, "sessions", "fix-login"), s.RepoPath(rec))

	rec.RepoName = "other/name"
	assert.Equal(t, filepath.Join(dir, "sessions", "fix-login"), s.RepoPath(rec),
		"workspace path must not depend on the repository name")
}

func TestRecordCloneIsDeep(t *testing.T) {
	orig := SessionRecord{
		Session: "s1",
		PRState: &PRState{BranchName: "pr/s1", Exists: true},
	}
	clone := orig.Clone()
	clone.PRState.BranchName = "changed"
	assert.Equal(t, "pr/s1", orig.PRState.BranchName)
}

func TestPatchApply(t *testing.T) {
	rec := SessionRecord{Session: "s1", Branch: "work", PRApproved: true}

	Patch{Branch: StringPtr("other")}.Apply(&rec)
	assert.Equal(t, "other", rec.Branch)
	assert.Equal(t, true, rec.PRApproved, "unset patch fields leave the record alone")

	Patch{ClearPRApproved: true}.Apply(&rec)
	assert.Nil(t, rec.PRApproved)
}

func TestApprovedIsStrict(t *testing.T) {
	tests := []struct {
		value any
		want  bool
	}{
		{true, true},
		{false, false},
		{nil, false},
		{"true", false},
		{1, false},
		{float64(1), false},
	}
	for _, tt := range tests {
		r := SessionRecord{PRApproved: tt.value}
		if got := r.Approved(); got != tt.want {
			t.Errorf("Approved() with %v (%T) = %t, want %t", tt.value, tt.value, got, tt.want)
		}
	}
}

func TestJSONBackendConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	b := newTestJSONBackend(t)

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(n int) {
			done <- b.Create(ctx, SessionRecord{
				Session:  "s" + string(rune('a'+n)),
				RepoName: "a/b",
				RepoURL:  "a/b",
			})
		}(i)
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-done)
	}

	records, err := b.GetAll(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, records, 10)
}

func TestJSONBackendCanceledContext(t *testing.T) {
	b := newTestJSONBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.GetAll(ctx, nil)
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error kind: %v", err)
	}
}
