package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Store file formats recognized by the integrity checker.
const (
	FormatJSON    = "json"
	FormatSQLite  = "sqlite"
	FormatEmpty   = "empty"
	FormatUnknown = "unknown"
)

// ActionType classifies a suggested recovery action.
type ActionType string

const (
	ActionMigrate ActionType = "migrate"
	ActionRestore ActionType = "restore"
	ActionRepair  ActionType = "repair"
	ActionCreate  ActionType = "create"
	ActionWarning ActionType = "warning"
)

// Action is one typed recovery suggestion. Command, when set, is a shell
// command the user (or an explicit repair invocation) can run; the checker
// itself never executes anything.
type Action struct {
	Type           ActionType `json:"type"`
	Description    string     `json:"description"`
	Command        string     `json:"command,omitempty"`
	Priority       int        `json:"priority"`
	AutoExecutable bool       `json:"autoExecutable"`
}

// BackupCandidate is a possible restore source found near the store file.
type BackupCandidate struct {
	Path    string `json:"path"`
	Format  string `json:"format"`
	ModTime string `json:"modTime"`
	Size    int64  `json:"size"`
}

// Report is the structured result of a store file check. The checker is
// read-only: it diagnoses and suggests, it never repairs.
type Report struct {
	IsValid          bool              `json:"isValid"`
	ActualFormat     string            `json:"actualFormat"`
	ExpectedFormat   string            `json:"expectedFormat"`
	Path             string            `json:"path"`
	Issues           []string          `json:"issues"`
	Warnings         []string          `json:"warnings"`
	BackupsFound     []BackupCandidate `json:"backupsFound"`
	SuggestedActions []Action          `json:"suggestedActions"`
}

// sqliteMagic is the first 16 bytes of every SQLite database file.
var sqliteMagic = []byte("SQLite format 3\x00")

// backupNameRegex matches backup file names produced by this tool or by
// hand-copied `.bak` siblings.
var backupNameRegex = regexp.MustCompile(`^sessions.*\.(json|db)(\.bak|\.backup)?$|^sessions.*-backup.*$`)

// CheckStoreFile validates the store file at path against the expected
// format (FormatJSON or FormatSQLite) and returns a structured report.
func CheckStoreFile(ctx context.Context, expectedFormat, path string) *Report {
	report := &Report{
		ExpectedFormat: expectedFormat,
		Path:           path,
		Issues:         []string{},
		Warnings:       []string{},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		report.ActualFormat = FormatEmpty
		report.BackupsFound = findBackups(path)
		if len(report.BackupsFound) > 0 {
			report.SuggestedActions = append(report.SuggestedActions, Action{
				Type:        ActionRestore,
				Description: fmt.Sprintf("store file missing; %d backup(s) found, most recent: %s", len(report.BackupsFound), report.BackupsFound[0].Path),
				Command:     fmt.Sprintf("cp %s %s", report.BackupsFound[0].Path, path),
				Priority:    1,
			})
		} else {
			report.SuggestedActions = append(report.SuggestedActions, Action{
				Type:           ActionCreate,
				Description:    "store file missing and no backups found; initialize an empty store",
				Command:        "devsess doctor --init",
				Priority:       1,
				AutoExecutable: true,
			})
		}
		return report
	}
	if err != nil {
		report.ActualFormat = FormatUnknown
		report.Issues = append(report.Issues, fmt.Sprintf("cannot read store file: %v", err))
		return report
	}

	report.ActualFormat = sniffFormat(data)

	// An empty file is an uninitialized store, not a wrong-format one; it
	// gets the same create action as a missing file would.
	if report.ActualFormat == FormatEmpty {
		report.Issues = append(report.Issues, "store file exists but is empty")
		report.SuggestedActions = append(report.SuggestedActions, Action{
			Type:           ActionCreate,
			Description:    "store file is empty; initialize an empty store",
			Command:        "devsess doctor --init",
			Priority:       1,
			AutoExecutable: true,
		})
		return report
	}

	if report.ActualFormat != expectedFormat {
		report.Issues = append(report.Issues,
			fmt.Sprintf("store file is %s but configured backend expects %s", report.ActualFormat, expectedFormat))
		report.SuggestedActions = append(report.SuggestedActions, Action{
			Type:        ActionMigrate,
			Description: fmt.Sprintf("migrate store from %s to %s", report.ActualFormat, expectedFormat),
			Priority:    1,
		})
		return report
	}

	switch expectedFormat {
	case FormatJSON:
		checkJSONStore(data, report)
	case FormatSQLite:
		checkSQLiteStore(ctx, path, report)
	default:
		report.Warnings = append(report.Warnings, fmt.Sprintf("unknown expected format %q", expectedFormat))
	}

	report.IsValid = len(report.Issues) == 0
	return report
}

// sniffFormat detects the file format from its leading bytes.
func sniffFormat(data []byte) string {
	if len(data) >= len(sqliteMagic) && bytes.Equal(data[:len(sqliteMagic)], sqliteMagic) {
		return FormatSQLite
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	if len(trimmed) == 0 {
		return FormatEmpty
	}
	return FormatUnknown
}

// checkJSONStore verifies the JSON structure: either the current object form
// with a sessions array, or the legacy bare array.
func checkJSONStore(data []byte, report *Report) {
	var state DBState
	if err := json.Unmarshal(data, &state); err == nil && state.Sessions != nil {
		return
	}

	var legacy []SessionRecord
	if err := json.Unmarshal(data, &legacy); err == nil {
		report.Warnings = append(report.Warnings,
			"store uses the legacy array form; it will be rewritten in the object form on next write")
		return
	}

	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("store file is not valid JSON: %v", err))
		report.SuggestedActions = append(report.SuggestedActions, Action{
			Type:        ActionRestore,
			Description: "store file is corrupt; restore from a backup or reinitialize",
			Priority:    1,
		})
		return
	}
	report.Issues = append(report.Issues, "store file is valid JSON but has no sessions array")
	report.SuggestedActions = append(report.SuggestedActions, Action{
		Type:        ActionRepair,
		Description: "wrap existing content in the current object form",
		Priority:    2,
	})
}

// checkSQLiteStore runs PRAGMA integrity_check and verifies the sessions
// table exists. The database is opened read-only.
func checkSQLiteStore(ctx context.Context, path string, report *Report) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("cannot open database: %v", err))
		return
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("integrity check failed to run: %v", err))
		return
	}
	if !strings.EqualFold(result, "ok") {
		report.Issues = append(report.Issues, "integrity check failed: "+result)
		report.SuggestedActions = append(report.SuggestedActions, Action{
			Type:        ActionRestore,
			Description: "database failed PRAGMA integrity_check; restore from a backup",
			Priority:    1,
		})
		return
	}

	var name string
	err = db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'sessions'").Scan(&name)
	if err != nil {
		report.Issues = append(report.Issues, "database has no sessions table")
		report.SuggestedActions = append(report.SuggestedActions, Action{
			Type:           ActionCreate,
			Description:    "create the sessions schema",
			Command:        "devsess doctor --init",
			Priority:       2,
			AutoExecutable: true,
		})
	}
}

// findBackups scans the store file's directory and its backups/ child for
// files matching known backup name patterns, most recent first.
func findBackups(storePath string) []BackupCandidate {
	dir := filepath.Dir(storePath)
	var found []BackupCandidate

	for _, scanDir := range []string{dir, filepath.Join(dir, "backups")} {
		entries, err := os.ReadDir(scanDir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !backupNameRegex.MatchString(e.Name()) {
				continue
			}
			full := filepath.Join(scanDir, e.Name())
			if full == storePath {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			data, err := os.ReadFile(full)
			if err != nil {
				continue
			}
			found = append(found, BackupCandidate{
				Path:    full,
				Format:  sniffFormat(data),
				ModTime: info.ModTime().UTC().Format("2006-01-02T15:04:05Z"),
				Size:    info.Size(),
			})
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].ModTime > found[j].ModTime })
	return found
}
