package changeset

import (
	"context"
	"fmt"
	"os"
	"strings"

	gl "github.com/xanzy/go-gitlab"

	"devsess.io/cli/cmd/devsess/cli/fault"
	"devsess.io/cli/cmd/devsess/cli/repouri"
)

func init() {
	Register(Factory{
		Name: "gitlab",
		CanHandle: func(url string) bool {
			return strings.Contains(repouri.Parse(url).Host, "gitlab")
		},
		New: func(url, _ string) Adapter {
			u := repouri.Parse(url)
			return NewGitLab(u.Owner + "/" + u.Repo)
		},
	})
}

// gitlabFeatures advertises what the GitLab adapter will support once it is
// realized. The matrix is capability metadata about the platform, not a
// readiness signal; every operation below still fails with
// fault.ErrNotImplemented.
var gitlabFeatures = map[Feature]bool{
	FeatureApprovalWorkflow:   true,
	FeatureDraftChangesets:    true,
	FeatureFileComments:       true,
	FeatureSuggestedChanges:   true,
	FeatureAutoMerge:          true,
	FeatureBranchProtection:   true,
	FeatureStatusChecks:       true,
	FeatureAssigneeManagement: true,
	FeatureLabelManagement:    true,
	FeatureMilestoneTracking:  true,
}

// GitLabAdapter is a placeholder for GitLab merge-request support. The API
// client is wired so the variant has a home, but no operation is implemented.
type GitLabAdapter struct {
	client  *gl.Client
	project string
}

// NewGitLab builds the placeholder adapter for a project path ("owner/repo").
// Client construction errors are deferred to first use.
func NewGitLab(project string) *GitLabAdapter {
	client, err := gl.NewClient(os.Getenv("GITLAB_TOKEN"))
	if err != nil {
		client = nil
	}
	return &GitLabAdapter{client: client, project: project}
}

func (a *GitLabAdapter) Platform() string { return "gitlab" }

func (a *GitLabAdapter) SupportsFeature(f Feature) bool { return gitlabFeatures[f] }

func (a *GitLabAdapter) notImplemented(op string) error {
	return fmt.Errorf("%w: gitlab adapter does not support %s yet", fault.ErrNotImplemented, op)
}

func (a *GitLabAdapter) List(ctx context.Context, filter ListFilter) ([]Changeset, error) {
	return nil, a.notImplemented("list")
}

func (a *GitLabAdapter) Get(ctx context.Context, id string) (*Changeset, error) {
	return nil, a.notImplemented("get")
}

func (a *GitLabAdapter) Search(ctx context.Context, query string, scope SearchScope) ([]Changeset, error) {
	return nil, a.notImplemented("search")
}

func (a *GitLabAdapter) Create(ctx context.Context, opts CreateOptions) (*Changeset, error) {
	return nil, a.notImplemented("create")
}

func (a *GitLabAdapter) Update(ctx context.Context, id string, patch UpdatePatch) (*Changeset, error) {
	return nil, a.notImplemented("update")
}

func (a *GitLabAdapter) Merge(ctx context.Context, id string, opts MergeOptions) (*Changeset, error) {
	return nil, a.notImplemented("merge")
}

func (a *GitLabAdapter) GetDetails(ctx context.Context, id string) (*Changeset, error) {
	return nil, a.notImplemented("getDetails")
}
