// Package paths resolves the on-disk layout of the devsess state directory.
//
// The canonical workspace for a session s is <baseDir>/sessions/<s>. The
// legacy layout <baseDir>/git/<repoName>/sessions/<s> is never generated
// here; only the migrator recognizes it. Keeping a single resolver for the
// canonical path is what guarantees the session store and git subprocess
// invocations agree on the workdir.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Directory names under the state base directory.
const (
	// SessionsDirName holds one workspace per session in the current layout.
	SessionsDirName = "sessions"

	// LegacyGitDirName is the root of the legacy per-repo layout. Recognized
	// only by the migrator.
	LegacyGitDirName = "git"

	// BackupsDirName is scanned by the integrity checker for store backups.
	BackupsDirName = "backups"
)

// BaseDirEnvVar overrides the state base directory. Used by tests and by
// deployments that keep session state outside the default location.
const BaseDirEnvVar = "DEVSESS_STATE_DIR"

// MigrationBackupPrefix prefixes timestamped migration backup directories.
const MigrationBackupPrefix = "migration-backup-"

// baseDirCache caches the resolved base directory.
var (
	baseDirMu    sync.RWMutex
	baseDirCache string
)

// BaseDir returns the state base directory.
//
// Resolution order: DEVSESS_STATE_DIR, then $XDG_STATE_HOME/devsess, then
// $HOME/.local/state/devsess. Falls back to ".devsess" in the current
// directory when no home can be determined. The result is cached.
func BaseDir() string {
	baseDirMu.RLock()
	if baseDirCache != "" {
		cached := baseDirCache
		baseDirMu.RUnlock()
		return cached
	}
	baseDirMu.RUnlock()

	dir := resolveBaseDir()

	baseDirMu.Lock()
	baseDirCache = dir
	baseDirMu.Unlock()

	return dir
}

// ClearBaseDirCache clears the cached base directory.
// This is primarily useful for testing when changing environment variables.
func ClearBaseDirCache() {
	baseDirMu.Lock()
	baseDirCache = ""
	baseDirMu.Unlock()
}

func resolveBaseDir() string {
	if dir := os.Getenv(BaseDirEnvVar); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "devsess")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".devsess"
	}
	return filepath.Join(home, ".local", "state", "devsess")
}

// SessionDir returns the canonical workspace path for a session under the
// given base directory: <base>/sessions/<session>.
func SessionDir(base, session string) string {
	return filepath.Join(base, SessionsDirName, session)
}

// LegacySessionDir returns the legacy workspace path for a session:
// <base>/git/<repoName>/sessions/<session>.
//
// Only the migrator may use this; nothing else generates legacy paths.
func LegacySessionDir(base, repoName, session string) string {
	return filepath.Join(base, LegacyGitDirName, repoName, SessionsDirName, session)
}

// MigrationBackupDir returns the timestamped backup directory for a migration
// started at t: <base>/migration-backup-<UTC timestamp>.
func MigrationBackupDir(base string, t time.Time) string {
	stamp := t.UTC().Format("2006-01-02T15-04-05Z")
	return filepath.Join(base, MigrationBackupPrefix+stamp)
}

// sessionNameRegex matches session names safe for use as directory names.
var sessionNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\-]*$`)

// ValidateSessionName validates that a session name is non-empty, contains no
// path separators, and cannot traverse out of the sessions directory.
func ValidateSessionName(name string) error {
	if name == "" {
		return errors.New("session name cannot be empty")
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("invalid session name %q: contains path separators", name)
	}
	if name == "." || name == ".." || !sessionNameRegex.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must start with an alphanumeric and contain only alphanumerics, dots, underscores, or hyphens", name)
	}
	return nil
}
