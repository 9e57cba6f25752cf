// Package migrate moves session workspaces from the legacy per-repo layout
// <base>/git/<repoName>/sessions/<id> to the flat layout <base>/sessions/<id>.
//
// The migration runs in phases: detect, plan, backup (optional), migrate,
// report. Individual session failures never abort the batch; the result
// records them per session. A backup directory written before migration can
// restore the legacy tree via Rollback.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"devsess.io/cli/cmd/devsess/cli/fault"
	"devsess.io/cli/cmd/devsess/cli/jsonutil"
	"devsess.io/cli/cmd/devsess/cli/logging"
	"devsess.io/cli/cmd/devsess/cli/paths"
)

// BackupMetadataFileName is written inside every backup directory.
const BackupMetadataFileName = "backup-metadata.json"

// Options configure a migration run.
type Options struct {
	// BaseDir is the state base directory containing git/ and sessions/.
	BaseDir string

	// DryRun logs what would happen without touching the filesystem.
	DryRun bool

	// Backup copies the legacy tree (and any existing sessions tree) into a
	// timestamped backup directory before migrating.
	Backup bool
}

// SessionFailure records one session that could not be migrated.
type SessionFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Result reports a migration run. Success is true iff every detected
// session migrated.
type Result struct {
	Success          bool             `json:"success"`
	MigratedSessions []string         `json:"migratedSessions"`
	FailedSessions   []SessionFailure `json:"failedSessions"`
	BackupPath       string           `json:"backupPath,omitempty"`
	TotalProcessed   int              `json:"totalProcessed"`
}

// backupMetadata describes a backup directory's origin so Rollback can
// restore without guessing.
type backupMetadata struct {
	CreatedAt  time.Time `json:"createdAt"`
	BaseDir    string    `json:"baseDir"`
	LegacyRoot string    `json:"legacyRoot"`
	NewRoot    string    `json:"newRoot"`
}

// LegacySession is one detected session in the legacy layout.
type LegacySession struct {
	ID       string
	RepoName string
	Source   string
	Dest     string
}

// Detect enumerates sessions in the legacy layout. A directory only counts
// as a session when it contains a .git child; anything else is skipped.
func Detect(ctx context.Context, baseDir string) ([]LegacySession, error) {
	gitRoot := filepath.Join(baseDir, paths.LegacyGitDirName)
	repoDirs, err := os.ReadDir(gitRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading legacy layout at %s: %v", fault.ErrTransientIO, gitRoot, err)
	}

	var sessions []LegacySession
	for _, repoDir := range repoDirs {
		if !repoDir.IsDir() {
			continue
		}
		sessionsDir := filepath.Join(gitRoot, repoDir.Name(), paths.SessionsDirName)
		entries, err := os.ReadDir(sessionsDir)
		if err != nil {
			continue // repo dir without a sessions child
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			src := filepath.Join(sessionsDir, e.Name())
			if !isGitCheckout(src) {
				logging.Debug(ctx, "skipping non-session directory",
					slog.String("path", src))
				continue
			}
			sessions = append(sessions, LegacySession{
				ID:       e.Name(),
				RepoName: repoDir.Name(),
				Source:   src,
				Dest:     paths.SessionDir(baseDir, e.Name()),
			})
		}
	}
	return sessions, nil
}

// Run executes the migration per the options.
func Run(ctx context.Context, opts Options) (*Result, error) {
	ctx = logging.WithComponent(ctx, "migrate")
	result := &Result{
		MigratedSessions: []string{},
		FailedSessions:   []SessionFailure{},
	}

	sessions, err := Detect(ctx, opts.BaseDir)
	if err != nil {
		return nil, err
	}
	result.TotalProcessed = len(sessions)
	if len(sessions) == 0 {
		result.Success = true
		logging.Info(ctx, "no legacy sessions found, nothing to migrate")
		return result, nil
	}

	if opts.Backup && !opts.DryRun {
		backupPath, err := writeBackup(ctx, opts.BaseDir, time.Now())
		if err != nil {
			return nil, err
		}
		result.BackupPath = backupPath
	}

	for _, s := range sessions {
		if err := ctx.Err(); err != nil {
			result.FailedSessions = append(result.FailedSessions, SessionFailure{
				ID: s.ID, Error: fmt.Sprintf("migration canceled: %v", err),
			})
			continue
		}

		if opts.DryRun {
			logging.Info(ctx, "dry-run: would migrate session",
				slog.String("session", s.ID),
				slog.String("from", s.Source),
				slog.String("to", s.Dest))
			result.MigratedSessions = append(result.MigratedSessions, s.ID)
			continue
		}

		if err := migrateOne(ctx, s); err != nil {
			logging.Warn(ctx, "session migration failed",
				slog.String("session", s.ID),
				slog.String("error", err.Error()))
			result.FailedSessions = append(result.FailedSessions, SessionFailure{
				ID: s.ID, Error: err.Error(),
			})
			continue
		}
		result.MigratedSessions = append(result.MigratedSessions, s.ID)
	}

	result.Success = len(result.FailedSessions) == 0
	logging.Info(ctx, "migration finished",
		slog.Int("total", result.TotalProcessed),
		slog.Int("migrated", len(result.MigratedSessions)),
		slog.Int("failed", len(result.FailedSessions)),
		slog.Bool("dry_run", opts.DryRun))
	return result, nil
}

// migrateOne copies one session to the flat layout and verifies the copy.
// On any failure the partially written destination is removed so the
// destination is never left half-present.
func migrateOne(ctx context.Context, s LegacySession) error {
	if _, err := os.Stat(s.Dest); err == nil {
		return fmt.Errorf("%w: destination %s already exists", fault.ErrConflict, s.Dest)
	}
	if err := os.MkdirAll(filepath.Dir(s.Dest), 0o750); err != nil {
		return fmt.Errorf("%w: creating sessions directory: %v", fault.ErrTransientIO, err)
	}

	if err := copyTree(ctx, s.Source, s.Dest); err != nil {
		_ = os.RemoveAll(s.Dest)
		return fmt.Errorf("%w: copying session: %v", fault.ErrTransientIO, err)
	}

	if err := verifyMigrated(s.Dest); err != nil {
		_ = os.RemoveAll(s.Dest)
		return err
	}
	return nil
}

// verifyMigrated confirms the destination exists, contains a .git child, and
// is non-empty.
func verifyMigrated(dest string) error {
	entries, err := os.ReadDir(dest)
	if err != nil {
		return fmt.Errorf("%w: verifying migrated session at %s: %v", fault.ErrTransientIO, dest, err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: migrated session at %s is empty", fault.ErrValidation, dest)
	}
	if !isGitCheckout(dest) {
		return fmt.Errorf("%w: migrated session at %s has no .git directory", fault.ErrValidation, dest)
	}
	return nil
}

// Cleanup removes the legacy tree. Call only after a fully successful
// migration.
func Cleanup(ctx context.Context, baseDir string) error {
	gitRoot := filepath.Join(baseDir, paths.LegacyGitDirName)
	if err := os.RemoveAll(gitRoot); err != nil {
		return fmt.Errorf("%w: removing legacy tree at %s: %v", fault.ErrTransientIO, gitRoot, err)
	}
	logging.Info(ctx, "removed legacy session tree", slog.String("path", gitRoot))
	return nil
}

// writeBackup copies the legacy tree and any existing new-layout tree into a
// timestamped backup directory and records metadata for rollback.
func writeBackup(ctx context.Context, baseDir string, now time.Time) (string, error) {
	backupDir := paths.MigrationBackupDir(baseDir, now)
	if err := os.MkdirAll(backupDir, 0o750); err != nil {
		return "", fmt.Errorf("%w: creating backup directory: %v", fault.ErrTransientIO, err)
	}

	gitRoot := filepath.Join(baseDir, paths.LegacyGitDirName)
	newRoot := filepath.Join(baseDir, paths.SessionsDirName)

	if _, err := os.Stat(gitRoot); err == nil {
		if err := copyTree(ctx, gitRoot, filepath.Join(backupDir, paths.LegacyGitDirName)); err != nil {
			return "", fmt.Errorf("%w: backing up legacy tree: %v", fault.ErrTransientIO, err)
		}
	}
	if _, err := os.Stat(newRoot); err == nil {
		if err := copyTree(ctx, newRoot, filepath.Join(backupDir, paths.SessionsDirName)); err != nil {
			return "", fmt.Errorf("%w: backing up sessions tree: %v", fault.ErrTransientIO, err)
		}
	}

	meta := backupMetadata{
		CreatedAt:  now.UTC(),
		BaseDir:    baseDir,
		LegacyRoot: gitRoot,
		NewRoot:    newRoot,
	}
	data, err := jsonutil.MarshalIndentWithNewline(meta, "", "  ")
	if err != nil {
		return "", err
	}
	metaPath := filepath.Join(backupDir, BackupMetadataFileName)
	if err := os.WriteFile(metaPath, data, 0o600); err != nil {
		return "", fmt.Errorf("%w: writing backup metadata: %v", fault.ErrTransientIO, err)
	}

	logging.Info(ctx, "wrote migration backup", slog.String("path", backupDir))
	return backupDir, nil
}

// Rollback restores the legacy tree from a backup directory: the new-layout
// tree is replaced by the backed-up one (or removed if none was backed up)
// and the legacy git tree is repopulated.
func Rollback(ctx context.Context, backupDir string) error {
	ctx = logging.WithComponent(ctx, "migrate")

	data, err := os.ReadFile(filepath.Join(backupDir, BackupMetadataFileName))
	if err != nil {
		return fmt.Errorf("%w: reading backup metadata in %s: %v", fault.ErrInvalidInput, backupDir, err)
	}
	var meta backupMetadata
	if err := jsonutil.UnmarshalStrict(data, &meta); err != nil {
		return fmt.Errorf("%w: parsing backup metadata: %v", fault.ErrCorruption, err)
	}

	backupGit := filepath.Join(backupDir, paths.LegacyGitDirName)
	backupSessions := filepath.Join(backupDir, paths.SessionsDirName)

	if err := os.RemoveAll(meta.NewRoot); err != nil {
		return fmt.Errorf("%w: removing new-layout tree: %v", fault.ErrTransientIO, err)
	}
	if _, err := os.Stat(backupSessions); err == nil {
		if err := copyTree(ctx, backupSessions, meta.NewRoot); err != nil {
			return fmt.Errorf("%w: restoring sessions tree: %v", fault.ErrTransientIO, err)
		}
	}

	if _, err := os.Stat(backupGit); err == nil {
		if err := os.RemoveAll(meta.LegacyRoot); err != nil {
			return fmt.Errorf("%w: clearing legacy tree: %v", fault.ErrTransientIO, err)
		}
		if err := copyTree(ctx, backupGit, meta.LegacyRoot); err != nil {
			return fmt.Errorf("%w: restoring legacy tree: %v", fault.ErrTransientIO, err)
		}
	}

	logging.Info(ctx, "rolled back migration from backup", slog.String("backup", backupDir))
	return nil
}

// isGitCheckout reports whether dir contains a .git child (directory or
// worktree pointer file).
func isGitCheckout(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// copyTree copies src into dst recursively, preserving file modes and
// following the context for cancellation between entries.
func copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src) //nolint:gosec // paths derive from the managed state dir
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm) //nolint:gosec // see above
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// ErrNothingToRollback is returned by FindLatestBackup when no backup
// directories exist under the base directory.
var ErrNothingToRollback = errors.New("no migration backups found")

// FindLatestBackup returns the most recent migration backup directory under
// baseDir.
func FindLatestBackup(baseDir string) (string, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", fault.ErrTransientIO, baseDir, err)
	}
	latest := ""
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) > len(paths.MigrationBackupPrefix) && name[:len(paths.MigrationBackupPrefix)] == paths.MigrationBackupPrefix {
			if name > latest {
				latest = name
			}
		}
	}
	if latest == "" {
		return "", ErrNothingToRollback
	}
	return filepath.Join(baseDir, latest), nil
}
