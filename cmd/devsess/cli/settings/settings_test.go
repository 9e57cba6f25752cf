package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devsess.io/cli/cmd/devsess/cli/paths"
)

// useStateDir points the settings loader at a fresh state directory.
func useStateDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(paths.BaseDirEnvVar, dir)
	paths.ClearBaseDirCache()
	t.Cleanup(paths.ClearBaseDirCache)
	return dir
}

func TestLoadDefaultsWhenNoFiles(t *testing.T) {
	useStateDir(t)

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultBackendName, s.Backend)
	assert.Empty(t, s.PostgresURL)
	assert.Empty(t, s.LogLevel)
}

func TestLoadFromSettingsFile(t *testing.T) {
	dir := useStateDir(t)
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, SettingsFileName),
		[]byte(`{"backend":"sqlite","log_level":"debug"}`), 0o600))

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", s.Backend)
	assert.Equal(t, "debug", s.LogLevel)
}

func TestLocalSettingsOverride(t *testing.T) {
	dir := useStateDir(t)
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, SettingsFileName),
		[]byte(`{"backend":"sqlite","log_level":"debug","default_target_branch":"main"}`), 0o600))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, LocalSettingsFileName),
		[]byte(`{"backend":"postgres","postgres_url":"postgres://db/sessions"}`), 0o600))

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", s.Backend)
	assert.Equal(t, "postgres://db/sessions", s.PostgresURL)
	// Fields absent from the local file keep their base values.
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, "main", s.DefaultTargetBranch)
}

func TestLocalSettingsEmptyStringsDoNotOverride(t *testing.T) {
	dir := useStateDir(t)
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, SettingsFileName),
		[]byte(`{"backend":"sqlite"}`), 0o600))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, LocalSettingsFileName),
		[]byte(`{"backend":""}`), 0o600))

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", s.Backend)
}

func TestBackendOptionsMerge(t *testing.T) {
	dir := useStateDir(t)
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, SettingsFileName),
		[]byte(`{"backend_options":{"a":"base","b":"base"}}`), 0o600))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, LocalSettingsFileName),
		[]byte(`{"backend_options":{"b":"local","c":"local"}}`), 0o600))

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "base", s.BackendOptions["a"])
	assert.Equal(t, "local", s.BackendOptions["b"])
	assert.Equal(t, "local", s.BackendOptions["c"])
}

func TestLoadRejectsMalformedSettings(t *testing.T) {
	dir := useStateDir(t)
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, SettingsFileName),
		[]byte(`{"backend": [broken`), 0o600))

	_, err := Load()
	require.Error(t, err)
}

func TestResolvePostgresURL(t *testing.T) {
	const envVar = "DEVSESS_TEST_POSTGRES_URL"

	s := &Settings{PostgresURL: "postgres://from-file/db"}
	t.Setenv(envVar, "")
	assert.Equal(t, "postgres://from-file/db", s.ResolvePostgresURL(envVar))

	t.Setenv(envVar, "postgres://from-env/db")
	assert.Equal(t, "postgres://from-env/db", s.ResolvePostgresURL(envVar))
}
