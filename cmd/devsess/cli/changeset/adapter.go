package changeset

import (
	"context"
	"sort"
	"sync"
)

// Feature is one capability a platform adapter may support. Adapters answer
// SupportsFeature statically; callers must treat unsupported features as
// no-ops or explicit errors, and must not treat a positive answer from a
// placeholder adapter as a readiness signal.
type Feature string

const (
	FeatureApprovalWorkflow   Feature = "approval_workflow"
	FeatureDraftChangesets    Feature = "draft_changesets"
	FeatureFileComments       Feature = "file_comments"
	FeatureSuggestedChanges   Feature = "suggested_changes"
	FeatureAutoMerge          Feature = "auto_merge"
	FeatureBranchProtection   Feature = "branch_protection"
	FeatureStatusChecks       Feature = "status_checks"
	FeatureAssigneeManagement Feature = "assignee_management"
	FeatureLabelManagement    Feature = "label_management"
	FeatureMilestoneTracking  Feature = "milestone_tracking"
)

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Status       Status
	Author       string
	TargetBranch string
}

// SearchScope selects which fields Search matches against.
type SearchScope string

const (
	ScopeTitle    SearchScope = "title"
	ScopeBody     SearchScope = "body"
	ScopeComments SearchScope = "comments"
	ScopeAll      SearchScope = "all"
)

// CreateOptions parameterize Create.
type CreateOptions struct {
	Title        string
	Description  string
	SourceBranch string
	TargetBranch string
	Draft        bool
	SessionName  string
}

// UpdatePatch carries partial changeset edits; nil fields are unchanged.
type UpdatePatch struct {
	Title       *string
	Description *string
	Status      *Status
}

// MergeOptions parameterize Merge.
type MergeOptions struct {
	CommitMessage string
	Squash        bool
}

// Adapter is the uniform changeset interface over a repository backend.
type Adapter interface {
	// Platform names the adapter ("local", "github", "gitlab").
	Platform() string

	// List returns changesets matching the filter.
	List(ctx context.Context, filter ListFilter) ([]Changeset, error)

	// Get returns a changeset by ID (branch name locally, PR number on
	// forges).
	Get(ctx context.Context, id string) (*Changeset, error)

	// Search returns changesets whose scoped fields match the query.
	Search(ctx context.Context, query string, scope SearchScope) ([]Changeset, error)

	// Create opens a new changeset.
	Create(ctx context.Context, opts CreateOptions) (*Changeset, error)

	// Update edits an existing changeset.
	Update(ctx context.Context, id string, patch UpdatePatch) (*Changeset, error)

	// Merge merges the changeset. Approval gating happens in the engine,
	// not here.
	Merge(ctx context.Context, id string, opts MergeOptions) (*Changeset, error)

	// GetDetails returns the changeset with commits, reviews, and comments
	// populated.
	GetDetails(ctx context.Context, id string) (*Changeset, error)

	// SupportsFeature answers the static feature matrix.
	SupportsFeature(f Feature) bool
}

// Factory builds an adapter for a repository URL. CanHandle decides whether
// this factory owns the URL; New constructs the adapter. Workdir is the
// local checkout used by the local adapter (ignored by forge adapters).
type Factory struct {
	Name      string
	CanHandle func(url string) bool
	New       func(url, workdir string) Adapter
}

var (
	registryMu sync.RWMutex
	registry   []Factory
)

// Register adds an adapter factory. Typically called from init() in the
// adapter implementations. Registration order is the match order, except
// that the fallback (CanHandle always true) should be registered last; the
// CLI registers local last for that reason.
func Register(f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, f)
}

// ForURL selects the adapter for a repository URL. The local adapter is the
// fallback for URLs no forge factory claims.
func ForURL(url, workdir string) Adapter {
	registryMu.RLock()
	defer registryMu.RUnlock()

	for _, f := range registry {
		if f.CanHandle(url) {
			return f.New(url, workdir)
		}
	}
	return NewLocal(workdir)
}

// Platforms lists registered factory names in sorted order.
func Platforms() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for _, f := range registry {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}
