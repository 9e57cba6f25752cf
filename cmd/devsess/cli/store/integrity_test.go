package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckStoreFileMissing(t *testing.T) {
	dir := t.TempDir()
	report := CheckStoreFile(context.Background(), FormatJSON, filepath.Join(dir, "sessions.json"))

	assert.Equal(t, FormatEmpty, report.ActualFormat)
	assert.False(t, report.IsValid)
	require.NotEmpty(t, report.SuggestedActions)
	assert.Equal(t, ActionCreate, report.SuggestedActions[0].Type)
	assert.True(t, report.SuggestedActions[0].AutoExecutable)
}

func TestCheckStoreFileMissingWithBackup(t *testing.T) {
	dir := t.TempDir()
	backup := filepath.Join(dir, "sessions.json.bak")
	require.NoError(t, os.WriteFile(backup, []byte(`{"sessions":[]}`), 0o600))

	report := CheckStoreFile(context.Background(), FormatJSON, filepath.Join(dir, "sessions.json"))

	assert.Equal(t, FormatEmpty, report.ActualFormat)
	require.Len(t, report.BackupsFound, 1)
	assert.Equal(t, backup, report.BackupsFound[0].Path)
	assert.Equal(t, FormatJSON, report.BackupsFound[0].Format)
	require.NotEmpty(t, report.SuggestedActions)
	assert.Equal(t, ActionRestore, report.SuggestedActions[0].Type)
}

func TestCheckStoreFileFindsBackupsInChildDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "backups"), 0o750))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "backups", "sessions-backup-2025-01-01.json"),
		[]byte(`{"sessions":[]}`), 0o600))

	report := CheckStoreFile(context.Background(), FormatJSON, filepath.Join(dir, "sessions.json"))
	require.Len(t, report.BackupsFound, 1)
}

func TestCheckStoreFileValidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sessions":[],"baseDir":""}`), 0o600))

	report := CheckStoreFile(context.Background(), FormatJSON, path)
	assert.True(t, report.IsValid)
	assert.Equal(t, FormatJSON, report.ActualFormat)
	assert.Empty(t, report.Issues)
}

func TestCheckStoreFileLegacyArrayWarns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o600))

	report := CheckStoreFile(context.Background(), FormatJSON, path)
	assert.True(t, report.IsValid, "legacy array form is valid, only worth a warning")
	require.NotEmpty(t, report.Warnings)
	assert.Contains(t, report.Warnings[0], "legacy array form")
}

func TestCheckStoreFileFormatMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")
	magic := append([]byte("SQLite format 3\x00"), make([]byte, 32)...)
	require.NoError(t, os.WriteFile(path, magic, 0o600))

	report := CheckStoreFile(context.Background(), FormatJSON, path)
	assert.False(t, report.IsValid)
	assert.Equal(t, FormatSQLite, report.ActualFormat)
	require.NotEmpty(t, report.SuggestedActions)
	assert.Equal(t, ActionMigrate, report.SuggestedActions[0].Type)
}

func TestCheckStoreFileEmptyExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	report := CheckStoreFile(context.Background(), FormatJSON, path)
	assert.False(t, report.IsValid)
	assert.Equal(t, FormatEmpty, report.ActualFormat)
	require.NotEmpty(t, report.Issues)
	assert.Contains(t, report.Issues[0], "empty")
	require.NotEmpty(t, report.SuggestedActions)
	assert.Equal(t, ActionCreate, report.SuggestedActions[0].Type)
	assert.True(t, report.SuggestedActions[0].AutoExecutable)
	for _, a := range report.SuggestedActions {
		assert.NotEqual(t, ActionMigrate, a.Type)
	}
}

func TestCheckStoreFileWhitespaceOnlyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("  \n\t\n"), 0o600))

	report := CheckStoreFile(context.Background(), FormatJSON, path)
	assert.Equal(t, FormatEmpty, report.ActualFormat)
	require.NotEmpty(t, report.SuggestedActions)
	assert.Equal(t, ActionCreate, report.SuggestedActions[0].Type)
}

func TestCheckStoreFileCorruptJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sessions": [truncated`), 0o600))

	report := CheckStoreFile(context.Background(), FormatJSON, path)
	assert.False(t, report.IsValid)
	require.NotEmpty(t, report.Issues)
	assert.Contains(t, report.Issues[0], "not valid JSON")
	require.NotEmpty(t, report.SuggestedActions)
	assert.Equal(t, ActionRestore, report.SuggestedActions[0].Type)
}

func TestCheckStoreFileJSONWithoutSessionsKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"other": 1}`), 0o600))

	report := CheckStoreFile(context.Background(), FormatJSON, path)
	assert.False(t, report.IsValid)
	require.NotEmpty(t, report.Issues)
	assert.Contains(t, report.Issues[0], "no sessions array")
}

func TestSniffFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"sqlite magic", []byte("SQLite format 3\x00rest"), FormatSQLite},
		{"json object", []byte(`  {"sessions":[]}`), FormatJSON},
		{"json array", []byte("\n[]"), FormatJSON},
		{"empty", []byte("  \n"), FormatEmpty},
		{"garbage", []byte("hello"), FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sniffFormat(tt.data))
		})
	}
}

func TestCheckSQLiteStoreValid(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.db")

	b, err := NewSQLiteBackend(path, dir)
	require.NoError(t, err)
	require.NoError(t, b.Initialize(ctx))
	require.NoError(t, b.Close())

	report := CheckStoreFile(ctx, FormatSQLite, path)
	assert.True(t, report.IsValid, "issues: %v", report.Issues)
	assert.Equal(t, FormatSQLite, report.ActualFormat)
}
