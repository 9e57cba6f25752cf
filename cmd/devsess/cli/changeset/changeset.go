// Package changeset presents a platform-agnostic view of change proposals.
//
// A changeset is a derived projection: on forges it is a pull/merge request
// fetched on demand; locally it is a pr/<session> branch with a prepared
// merge commit. The only persistent state tied to a changeset lives on the
// session record (prBranch, prApproved, prState).
package changeset

import (
	"time"

	"devsess.io/cli/cmd/devsess/cli/task"
)

// Status of a changeset.
type Status string

const (
	StatusOpen   Status = "open"
	StatusMerged Status = "merged"
	StatusClosed Status = "closed"
	StatusDraft  Status = "draft"
)

// ReviewStatus of a single review.
type ReviewStatus string

const (
	ReviewPending          ReviewStatus = "pending"
	ReviewApproved         ReviewStatus = "approved"
	ReviewChangesRequested ReviewStatus = "changes_requested"
	ReviewDismissed        ReviewStatus = "dismissed"
)

// Author identifies the person behind a changeset, commit, review, or
// comment.
type Author struct {
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Commit is one commit in a changeset.
type Commit struct {
	Hash    string `json:"hash"`
	Author  Author `json:"author"`
	Message string `json:"message"`
}

// Review is one review on a changeset.
type Review struct {
	Author      Author       `json:"author"`
	Status      ReviewStatus `json:"status"`
	SubmittedAt time.Time    `json:"submittedAt,omitzero"`
}

// Comment is one discussion comment on a changeset.
type Comment struct {
	Author    Author    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Metadata is the platform-specific tail of a changeset, tagged by platform
// so each platform carries its own struct without losing type safety.
type Metadata struct {
	Platform string          `json:"platform"`
	GitHub   *GitHubMetadata `json:"github,omitempty"`
	GitLab   *GitLabMetadata `json:"gitlab,omitempty"`
	Local    *LocalMetadata  `json:"local,omitempty"`
}

// GitHubMetadata carries GitHub-only fields.
type GitHubMetadata struct {
	Number    int      `json:"number"`
	HTMLURL   string   `json:"htmlUrl,omitempty"`
	Labels    []string `json:"labels,omitempty"`
	Draft     bool     `json:"draft,omitempty"`
	Mergeable *bool    `json:"mergeable,omitempty"`
}

// GitLabMetadata carries GitLab-only fields.
type GitLabMetadata struct {
	IID    int    `json:"iid"`
	WebURL string `json:"webUrl,omitempty"`
}

// LocalMetadata carries local-backend fields.
type LocalMetadata struct {
	MergeBase  string `json:"mergeBase,omitempty"`
	BranchTip  string `json:"branchTip,omitempty"`
	TargetName string `json:"targetName,omitempty"`
}

// Changeset is the uniform change-proposal projection.
type Changeset struct {
	ID           string    `json:"id"`
	Platform     string    `json:"platform"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Author       Author    `json:"author"`
	Status       Status    `json:"status"`
	TargetBranch string    `json:"targetBranch"`
	SourceBranch string    `json:"sourceBranch,omitempty"`
	Commits      []Commit  `json:"commits,omitempty"`
	Reviews      []Review  `json:"reviews,omitempty"`
	Comments     []Comment `json:"comments,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitzero"`
	UpdatedAt    time.Time `json:"updatedAt,omitzero"`
	Metadata     Metadata  `json:"metadata"`
	SessionName  string    `json:"sessionName,omitempty"`
	TaskID       task.ID   `json:"taskId,omitempty"`
}

// Approved reports whether any review approved the changeset and none
// currently requests changes.
func (c *Changeset) Approved() bool {
	approved := false
	for _, r := range c.Reviews {
		switch r.Status {
		case ReviewApproved:
			approved = true
		case ReviewChangesRequested:
			return false
		}
	}
	return approved
}
