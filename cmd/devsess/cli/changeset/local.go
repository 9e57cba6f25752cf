package changeset

import (
	"context"
	"fmt"
	"strings"
	"time"

	"devsess.io/cli/cmd/devsess/cli/fault"
	"devsess.io/cli/cmd/devsess/cli/gitexec"
)

// prRefPrefix is the branch namespace holding local change proposals.
const prRefPrefix = "pr/"

// LocalAdapter derives changesets from pr/* branches in a git checkout.
// Nothing is fetched or persisted: every view is computed from refs, and
// merged-ness is derived by comparing the branch tip to
// merge-base(target, branch).
type LocalAdapter struct {
	run *gitexec.Runner
}

// NewLocal returns the local adapter rooted at the checkout workdir.
func NewLocal(workdir string) *LocalAdapter {
	return &LocalAdapter{run: gitexec.New(workdir)}
}

func (a *LocalAdapter) Platform() string { return "local" }

// SupportsFeature: locally only the approval workflow exists (the approval
// flag on the session record); everything else is forge machinery.
func (a *LocalAdapter) SupportsFeature(f Feature) bool {
	return f == FeatureApprovalWorkflow
}

// targetBranch resolves the merge target: main, then master.
func (a *LocalAdapter) targetBranch(ctx context.Context) (string, error) {
	for _, name := range []string{"main", "master"} {
		if _, err := a.run.Run(ctx, "rev-parse", "--verify", "--quiet", "refs/heads/"+name); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: repository has neither main nor master", fault.ErrValidation)
}

// List enumerates refs under pr/ and builds one changeset per branch.
func (a *LocalAdapter) List(ctx context.Context, filter ListFilter) ([]Changeset, error) {
	out, err := a.run.Run(ctx, "for-each-ref", "--format=%(refname:short)", "refs/heads/"+prRefPrefix)
	if err != nil {
		return nil, fmt.Errorf("enumerating proposal branches: %w", err)
	}

	target, err := a.targetBranch(ctx)
	if err != nil {
		return nil, err
	}

	var result []Changeset
	for _, branch := range gitexec.ParseBranchList(out) {
		cs, err := a.build(ctx, branch, target)
		if err != nil {
			return nil, err
		}
		if filterMatches(filter, cs) {
			result = append(result, *cs)
		}
	}
	return result, nil
}

func filterMatches(f ListFilter, c *Changeset) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Author != "" && c.Author.Username != f.Author {
		return false
	}
	if f.TargetBranch != "" && c.TargetBranch != f.TargetBranch {
		return false
	}
	return true
}

// build assembles the changeset for one pr/ branch.
func (a *LocalAdapter) build(ctx context.Context, branch, target string) (*Changeset, error) {
	tip, err := a.run.Run(ctx, "rev-parse", branch)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", branch, err)
	}
	mergeBase, err := a.run.Run(ctx, "merge-base", target, branch)
	if err != nil {
		return nil, fmt.Errorf("computing merge base for %q: %w", branch, err)
	}

	status := StatusOpen
	if strings.TrimSpace(tip) == strings.TrimSpace(mergeBase) {
		status = StatusMerged
	}

	logOut, err := a.run.Run(ctx, "log", "--pretty=format:"+gitexec.LogFormat, target+".."+branch)
	if err != nil {
		return nil, fmt.Errorf("listing commits for %q: %w", branch, err)
	}

	var commits []Commit
	for _, e := range gitexec.ParseLog(logOut) {
		commits = append(commits, Commit{
			Hash:    e.Hash,
			Author:  Author{Username: e.Author, Email: e.Email},
			Message: e.Subject,
		})
	}

	title, _ := a.run.Run(ctx, "log", "-1", "--pretty=%s", branch)
	body, _ := a.run.Run(ctx, "log", "-1", "--pretty=%b", branch)
	authorName, _ := a.run.Run(ctx, "log", "-1", "--pretty=%an", branch)
	authorEmail, _ := a.run.Run(ctx, "log", "-1", "--pretty=%ae", branch)

	return &Changeset{
		ID:           branch,
		Platform:     "local",
		Title:        title,
		Description:  strings.TrimSpace(body),
		Author:       Author{Username: authorName, Email: authorEmail},
		Status:       status,
		TargetBranch: target,
		SourceBranch: branch,
		Commits:      commits,
		SessionName:  strings.TrimPrefix(branch, prRefPrefix),
		Metadata: Metadata{
			Platform: "local",
			Local: &LocalMetadata{
				MergeBase:  mergeBase,
				BranchTip:  tip,
				TargetName: target,
			},
		},
	}, nil
}

func (a *LocalAdapter) Get(ctx context.Context, id string) (*Changeset, error) {
	if !strings.HasPrefix(id, prRefPrefix) {
		id = prRefPrefix + id
	}
	if _, err := a.run.Run(ctx, "rev-parse", "--verify", "--quiet", "refs/heads/"+id); err != nil {
		return nil, fault.NewNotFound("changeset", id)
	}
	target, err := a.targetBranch(ctx)
	if err != nil {
		return nil, err
	}
	return a.build(ctx, id, target)
}

// GetDetails is identical to Get locally: refs carry everything there is.
func (a *LocalAdapter) GetDetails(ctx context.Context, id string) (*Changeset, error) {
	return a.Get(ctx, id)
}

// Search lists and filters post-hoc; there is no query engine over refs.
func (a *LocalAdapter) Search(ctx context.Context, query string, scope SearchScope) ([]Changeset, error) {
	all, err := a.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	var out []Changeset
	for _, c := range all {
		if matchesScope(&c, needle, scope) {
			out = append(out, c)
		}
	}
	return out, nil
}

func matchesScope(c *Changeset, needle string, scope SearchScope) bool {
	inTitle := strings.Contains(strings.ToLower(c.Title), needle)
	inBody := strings.Contains(strings.ToLower(c.Description), needle)
	switch scope {
	case ScopeTitle:
		return inTitle
	case ScopeBody:
		return inBody
	case ScopeComments:
		return false // local changesets have no comments
	default:
		return inTitle || inBody
	}
}

// Create prepares a merge commit from the source branch and points the
// pr/ branch at it. The commit's tree is the source tree and its parents
// are (target, source tip), so fast-forwarding the target realizes the
// change set.
func (a *LocalAdapter) Create(ctx context.Context, opts CreateOptions) (*Changeset, error) {
	source := opts.SourceBranch
	if source == "" {
		source = "HEAD"
	}
	target := opts.TargetBranch
	if target == "" {
		var err error
		if target, err = a.targetBranch(ctx); err != nil {
			return nil, err
		}
	}

	name := opts.SessionName
	if name == "" {
		name = strings.TrimPrefix(source, "refs/heads/")
	}
	branch := prRefPrefix + name

	base, err := a.run.Run(ctx, "rev-parse", target)
	if err != nil {
		return nil, fmt.Errorf("resolving target %q: %w", target, err)
	}
	tip, err := a.run.Run(ctx, "rev-parse", source)
	if err != nil {
		return nil, fmt.Errorf("resolving source %q: %w", source, err)
	}
	tree, err := a.run.Run(ctx, "rev-parse", source+"^{tree}")
	if err != nil {
		return nil, fmt.Errorf("resolving source tree: %w", err)
	}

	message := opts.Title
	if message == "" {
		message = "Prepared merge for " + name
	}
	if opts.Description != "" {
		message += "\n\n" + opts.Description
	}

	mergeCommit, err := a.run.Run(ctx, "commit-tree", tree, "-p", base, "-p", tip, "-m", message)
	if err != nil {
		return nil, fmt.Errorf("preparing merge commit: %w", err)
	}
	if _, err := a.run.Run(ctx, "branch", "-f", branch, mergeCommit); err != nil {
		return nil, fmt.Errorf("creating proposal branch %q: %w", branch, err)
	}

	return a.build(ctx, branch, target)
}

// Update rewrites the prepared merge commit's message, keeping its tree and
// parents.
func (a *LocalAdapter) Update(ctx context.Context, id string, patch UpdatePatch) (*Changeset, error) {
	cs, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	title := cs.Title
	if patch.Title != nil {
		title = *patch.Title
	}
	body := cs.Description
	if patch.Description != nil {
		body = *patch.Description
	}
	message := title
	if body != "" {
		message += "\n\n" + body
	}

	tree, err := a.run.Run(ctx, "rev-parse", cs.ID+"^{tree}")
	if err != nil {
		return nil, fmt.Errorf("resolving proposal tree: %w", err)
	}
	parents, err := a.run.RunLines(ctx, "log", "-1", "--pretty=%P", cs.ID)
	if err != nil || len(parents) == 0 {
		return nil, fmt.Errorf("resolving proposal parents: %w", err)
	}

	args := []string{"commit-tree", tree}
	for _, p := range strings.Fields(parents[0]) {
		args = append(args, "-p", p)
	}
	args = append(args, "-m", message)

	rewritten, err := a.run.Run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("rewriting merge commit: %w", err)
	}
	if _, err := a.run.Run(ctx, "branch", "-f", cs.ID, rewritten); err != nil {
		return nil, fmt.Errorf("moving proposal branch: %w", err)
	}
	return a.Get(ctx, cs.ID)
}

// Merge fast-forwards the target branch onto the prepared merge commit.
func (a *LocalAdapter) Merge(ctx context.Context, id string, opts MergeOptions) (*Changeset, error) {
	cs, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cs.Status == StatusMerged {
		return cs, nil
	}

	if _, err := a.run.Run(ctx, "checkout", cs.TargetBranch); err != nil {
		return nil, fmt.Errorf("checking out %q: %w", cs.TargetBranch, err)
	}
	if _, err := a.run.Run(ctx, "merge", "--ff-only", cs.ID); err != nil {
		return nil, fmt.Errorf("fast-forwarding %q onto %q: %w", cs.TargetBranch, cs.ID, err)
	}

	merged, err := a.Get(ctx, cs.ID)
	if err != nil {
		return nil, err
	}
	merged.UpdatedAt = time.Now().UTC()
	return merged, nil
}
