package cli

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devsess.io/cli/cmd/devsess/cli/paths"
	"devsess.io/cli/cmd/devsess/cli/store"
)

// useStateDir points the command layer at a fresh state directory.
func useStateDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(paths.BaseDirEnvVar, dir)
	paths.ClearBaseDirCache()
	t.Cleanup(paths.ClearBaseDirCache)
	return dir
}

func TestSessionCreateCloneFailureUnwindsRegistration(t *testing.T) {
	ctx := context.Background()
	base := useStateDir(t)

	// An existing directory that is not a git repository passes URI
	// validation but fails the clone.
	notARepo := t.TempDir()

	err := runSessionCreate(ctx, "fix-login", notARepo, "", "", false)
	require.Error(t, err)

	require.NoError(t, withStore(ctx, func(s *store.Store) error {
		_, ok := s.Get(ctx, "fix-login")
		assert.False(t, ok, "failed create must not leave a registered session")
		return nil
	}))

	_, statErr := os.Stat(paths.SessionDir(base, "fix-login"))
	assert.True(t, os.IsNotExist(statErr), "partial workspace must be removed")

	// The name is free again; a retry does not hit a conflict.
	require.NoError(t, runSessionCreate(ctx, "fix-login", notARepo, "", "", true))
}

func TestSessionCreateNoCloneRegistersOnly(t *testing.T) {
	ctx := context.Background()
	base := useStateDir(t)
	repo := t.TempDir()

	require.NoError(t, runSessionCreate(ctx, "s1", repo, "23", "work", true))

	require.NoError(t, withStore(ctx, func(s *store.Store) error {
		rec, ok := s.Get(ctx, "s1")
		require.True(t, ok)
		assert.Equal(t, "#23", string(rec.TaskID))
		assert.Equal(t, "work", rec.Branch)
		return nil
	}))

	_, statErr := os.Stat(paths.SessionDir(base, "s1"))
	assert.True(t, os.IsNotExist(statErr), "no-clone must not create the workspace")
}
