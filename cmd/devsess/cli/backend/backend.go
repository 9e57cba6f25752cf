// Package backend abstracts the hosting platforms a session's change
// proposal can live on. Each variant turns the uniform capability set into
// concrete git subprocess or forge API calls; none of them holds mutable
// state beyond its HTTP client.
//
// Approval policy does not live here: backends perform the mechanical
// operation they are asked for, and the engine package enforces the approval
// gate before ever calling MergePullRequest.
package backend

import (
	"context"
	"strings"
	"time"

	"devsess.io/cli/cmd/devsess/cli/store"
)

// Type identifies a backend variant.
type Type string

const (
	TypeLocal  Type = "local"
	TypeGitHub Type = "github"
	TypeGitLab Type = "gitlab"
)

// PullRequest is the platform-level result of creating a change proposal.
// Number is zero for the local backend.
type PullRequest struct {
	Branch string `json:"branch"`
	Number int    `json:"number,omitempty"`
	URL    string `json:"url,omitempty"`
}

// CreateOptions parameterize proposal creation.
type CreateOptions struct {
	Title        string
	Description  string
	TargetBranch string // empty means the repository default
}

// UpdateOptions carry partial updates; nil fields are unchanged.
type UpdateOptions struct {
	Title       *string
	Description *string
}

// MergeResult reports a completed merge.
type MergeResult struct {
	CommitHash string
	MergedAt   time.Time
}

// Status is the platform view of a session's proposal.
type Status struct {
	Exists bool
	Merged bool
	Branch string
	Number int
	State  string
}

// Backend is the capability set every platform variant implements.
type Backend interface {
	// Type identifies the variant.
	Type() Type

	// CreatePullRequest prepares a change proposal from the session's work.
	CreatePullRequest(ctx context.Context, rec *store.SessionRecord, opts CreateOptions) (*PullRequest, error)

	// UpdatePullRequest edits the proposal's title or description.
	UpdatePullRequest(ctx context.Context, rec *store.SessionRecord, opts UpdateOptions) error

	// MergePullRequest merges the proposal. Callers must have passed the
	// approval gate; backends do not re-check it.
	MergePullRequest(ctx context.Context, rec *store.SessionRecord) (*MergeResult, error)

	// ApprovePullRequest performs the platform-side approval action. The
	// local variant has none; forges submit an approving review.
	ApprovePullRequest(ctx context.Context, rec *store.SessionRecord) error

	// GetPullRequestDiff returns the proposal's diff as rendered text.
	GetPullRequestDiff(ctx context.Context, rec *store.SessionRecord) (string, error)

	// GetStatus reports the platform view of the proposal.
	GetStatus(ctx context.Context, rec *store.SessionRecord) (*Status, error)
}

// TypeForURL selects a backend type from a repository URL: a github.com host
// maps to GitHub, a host mentioning gitlab maps to GitLab, anything else is
// local.
func TypeForURL(url string) Type {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "github.com"):
		return TypeGitHub
	case strings.Contains(lower, "gitlab"):
		return TypeGitLab
	default:
		return TypeLocal
	}
}

// PRBranchName is the prepared proposal branch for a session.
func PRBranchName(session string) string {
	return "pr/" + session
}
