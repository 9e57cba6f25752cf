// Package store is the durable session registry: a mapping from session
// names to task IDs and filesystem workspaces, with pluggable persistence
// backends (JSON file, SQLite, Postgres).
package store

import (
	"encoding/json"
	"strings"
	"time"

	"devsess.io/cli/cmd/devsess/cli/task"
)

// PRState tracks the prepared change-proposal branch of a session.
type PRState struct {
	BranchName  string     `json:"branchName"`
	Exists      bool       `json:"exists"`
	LastChecked time.Time  `json:"lastChecked"`
	CreatedAt   time.Time  `json:"createdAt"`
	MergedAt    *time.Time `json:"mergedAt,omitempty"`
	CommitHash  string     `json:"commitHash,omitempty"`
}

// SessionRecord is one row of the session registry. Session is the primary
// key and is immutable after creation; Update cannot rename it.
//
// PRApproved is deliberately untyped. Only the boolean true permits a merge;
// persistence layers decode it without coercion so that an upstream bug that
// wrote "true" (string) or 1 (number) surfaces in the approval gate's error
// with the recorded value and its type, instead of being silently accepted.
type SessionRecord struct {
	Session     string          `json:"session"`
	RepoName    string          `json:"repoName"`
	RepoURL     string          `json:"repoUrl"`
	CreatedAt   time.Time       `json:"createdAt"`
	TaskID      task.ID         `json:"taskId,omitempty"`
	Branch      string          `json:"branch,omitempty"`
	PRBranch    string          `json:"prBranch,omitempty"`
	PRApproved  any             `json:"prApproved,omitempty"`
	PRState     *PRState        `json:"prState,omitempty"`
	BackendType string          `json:"backendType,omitempty"`
	PullRequest json.RawMessage `json:"pullRequest,omitempty"`
}

// Approved reports whether the record carries the strict boolean true.
func (r *SessionRecord) Approved() bool {
	b, ok := r.PRApproved.(bool)
	return ok && b
}

// Clone returns a deep copy. Consumers always receive copies; the store
// exclusively owns the canonical values.
func (r *SessionRecord) Clone() SessionRecord {
	out := *r
	if r.PRState != nil {
		st := *r.PRState
		out.PRState = &st
	}
	if r.PullRequest != nil {
		out.PullRequest = append(json.RawMessage(nil), r.PullRequest...)
	}
	return out
}

// DBState is the full on-disk state of the registry. The JSON backend writes
// this object form; readers also accept a legacy bare array of records.
type DBState struct {
	Sessions []SessionRecord `json:"sessions"`
	BaseDir  string          `json:"baseDir"`
}

// Patch is a partial SessionRecord for Update. Nil fields leave the record
// unchanged. There is no Session field: the primary key cannot be renamed.
type Patch struct {
	RepoName        *string
	RepoURL         *string
	TaskID          *task.ID
	Branch          *string
	PRBranch        *string
	PRApproved      any // nil leaves unchanged; see ClearPRApproved
	ClearPRApproved bool
	PRState         *PRState
	BackendType     *string
	PullRequest     json.RawMessage
}

// Apply merges the patch into the record in place.
func (p Patch) Apply(r *SessionRecord) {
	if p.RepoName != nil {
		r.RepoName = *p.RepoName
	}
	if p.RepoURL != nil {
		r.RepoURL = *p.RepoURL
	}
	if p.TaskID != nil {
		r.TaskID = *p.TaskID
	}
	if p.Branch != nil {
		r.Branch = *p.Branch
	}
	if p.PRBranch != nil {
		r.PRBranch = *p.PRBranch
	}
	if p.ClearPRApproved {
		r.PRApproved = nil
	} else if p.PRApproved != nil {
		r.PRApproved = p.PRApproved
	}
	if p.PRState != nil {
		st := *p.PRState
		r.PRState = &st
	}
	if p.BackendType != nil {
		r.BackendType = *p.BackendType
	}
	if p.PullRequest != nil {
		r.PullRequest = append(json.RawMessage(nil), p.PullRequest...)
	}
}

// StringPtr is a convenience for building patches.
func StringPtr(s string) *string { return &s }

// Filter narrows GetAll results. Zero values match everything.
type Filter struct {
	TaskID   string
	RepoName string
	Branch   string
}

// Matches reports whether the record satisfies the filter. Task IDs are
// compared after stripping a leading "#"; records without a task ID never
// match a positive TaskID filter.
func (f *Filter) Matches(r *SessionRecord) bool {
	if f == nil {
		return true
	}
	if f.TaskID != "" {
		if r.TaskID == "" {
			return false
		}
		if normalizeFilterTaskID(f.TaskID) != normalizeFilterTaskID(string(r.TaskID)) {
			return false
		}
	}
	if f.RepoName != "" && r.RepoName != f.RepoName {
		return false
	}
	if f.Branch != "" && r.Branch != f.Branch {
		return false
	}
	return true
}

func normalizeFilterTaskID(s string) string {
	if id, err := task.Normalize(s); err == nil {
		return string(id)
	}
	return strings.TrimPrefix(strings.TrimSpace(s), "#")
}
