package backend

import (
	"context"
	"fmt"
	"os"

	gl "github.com/xanzy/go-gitlab"

	"devsess.io/cli/cmd/devsess/cli/fault"
	"devsess.io/cli/cmd/devsess/cli/store"
)

// GitLab is a placeholder for GitLab merge-request support. It constructs a
// real API client so the wiring is in place, but every operation fails with
// fault.ErrNotImplemented until the variant is realized.
//
// Callers must not read the changeset feature matrix as a readiness signal
// for this backend.
type GitLab struct {
	client  *gl.Client
	project string // owner/repo path
}

// NewGitLab builds the placeholder backend for the given project path.
// Client construction errors are deferred to the first operation so that
// selecting the backend never fails.
func NewGitLab(project string) *GitLab {
	client, err := gl.NewClient(os.Getenv("GITLAB_TOKEN"))
	if err != nil {
		client = nil
	}
	return &GitLab{client: client, project: project}
}

func (g *GitLab) Type() Type { return TypeGitLab }

func (g *GitLab) notImplemented(op string) error {
	return fmt.Errorf("%w: gitlab backend does not support %s yet", fault.ErrNotImplemented, op)
}

func (g *GitLab) CreatePullRequest(ctx context.Context, rec *store.SessionRecord, opts CreateOptions) (*PullRequest, error) {
	return nil, g.notImplemented("createPullRequest")
}

func (g *GitLab) UpdatePullRequest(ctx context.Context, rec *store.SessionRecord, opts UpdateOptions) error {
	return g.notImplemented("updatePullRequest")
}

func (g *GitLab) MergePullRequest(ctx context.Context, rec *store.SessionRecord) (*MergeResult, error) {
	return nil, g.notImplemented("mergePullRequest")
}

func (g *GitLab) ApprovePullRequest(ctx context.Context, rec *store.SessionRecord) error {
	return g.notImplemented("approvePullRequest")
}

func (g *GitLab) GetPullRequestDiff(ctx context.Context, rec *store.SessionRecord) (string, error) {
	return "", g.notImplemented("getPullRequestDiff")
}

func (g *GitLab) GetStatus(ctx context.Context, rec *store.SessionRecord) (*Status, error) {
	return nil, g.notImplemented("getStatus")
}
