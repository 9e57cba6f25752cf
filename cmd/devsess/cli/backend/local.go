package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"devsess.io/cli/cmd/devsess/cli/fault"
	"devsess.io/cli/cmd/devsess/cli/gitexec"
	"devsess.io/cli/cmd/devsess/cli/store"
)

// Local operates on the session's git checkout directly. The change proposal
// is a pr/<session> branch holding a prepared merge commit: a commit whose
// tree is the session branch's tree and whose parents are (target, session
// tip), so that fast-forwarding the target branch realizes the change set
// deterministically.
type Local struct {
	workdir func(rec *store.SessionRecord) string
}

// NewLocal returns a local backend. workdir maps a record to its session
// workspace; typically (*store.Store).RepoPath.
func NewLocal(workdir func(rec *store.SessionRecord) string) *Local {
	return &Local{workdir: workdir}
}

func (l *Local) Type() Type { return TypeLocal }

func (l *Local) runner(rec *store.SessionRecord) *gitexec.Runner {
	return gitexec.New(l.workdir(rec))
}

// defaultBranch resolves the target branch of the session repo: main, then
// master, using go-git ref inspection.
func (l *Local) defaultBranch(rec *store.SessionRecord) (string, error) {
	repo, err := gogit.PlainOpen(l.workdir(rec))
	if err != nil {
		return "", fmt.Errorf("opening session repository: %w", err)
	}
	for _, name := range []string{"main", "master"} {
		if _, err := repo.Reference(plumbing.NewBranchReferenceName(name), true); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: session repository has neither main nor master", fault.ErrValidation)
}

func (l *Local) branchExists(rec *store.SessionRecord, branch string) bool {
	repo, err := gogit.PlainOpen(l.workdir(rec))
	if err != nil {
		return false
	}
	_, err = repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	return err == nil
}

// CreatePullRequest builds the prepared merge commit and points pr/<session>
// at it.
func (l *Local) CreatePullRequest(ctx context.Context, rec *store.SessionRecord, opts CreateOptions) (*PullRequest, error) {
	run := l.runner(rec)

	target := opts.TargetBranch
	if target == "" {
		var err error
		if target, err = l.defaultBranch(rec); err != nil {
			return nil, err
		}
	}

	base, err := run.Run(ctx, "rev-parse", target)
	if err != nil {
		return nil, fmt.Errorf("resolving target branch %q: %w", target, err)
	}
	tip, err := run.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolving session HEAD: %w", err)
	}
	tree, err := run.Run(ctx, "rev-parse", "HEAD^{tree}")
	if err != nil {
		return nil, fmt.Errorf("resolving session tree: %w", err)
	}

	message := opts.Title
	if message == "" {
		message = "Prepared merge for session " + rec.Session
	}
	if opts.Description != "" {
		message += "\n\n" + opts.Description
	}

	mergeCommit, err := run.Run(ctx, "commit-tree", tree, "-p", base, "-p", tip, "-m", message)
	if err != nil {
		return nil, fmt.Errorf("preparing merge commit: %w", err)
	}

	branch := PRBranchName(rec.Session)
	if _, err := run.Run(ctx, "branch", "-f", branch, mergeCommit); err != nil {
		return nil, fmt.Errorf("creating proposal branch %q: %w", branch, err)
	}

	return &PullRequest{Branch: branch}, nil
}

// UpdatePullRequest rebuilds the prepared merge commit with the new message.
// Only the commit message changes; the tree is taken from the current
// session HEAD, matching what a fresh create would produce.
func (l *Local) UpdatePullRequest(ctx context.Context, rec *store.SessionRecord, opts UpdateOptions) error {
	if rec.PRBranch == "" {
		return fmt.Errorf("%w: session %q has no proposal branch", fault.ErrValidation, rec.Session)
	}
	create := CreateOptions{}
	if opts.Title != nil {
		create.Title = *opts.Title
	}
	if opts.Description != nil {
		create.Description = *opts.Description
	}
	_, err := l.CreatePullRequest(ctx, rec, create)
	return err
}

// MergePullRequest fast-forwards the target branch onto the prepared merge
// commit. The merge commit's first parent is the target tip, so --ff-only
// always applies when the target has not moved.
func (l *Local) MergePullRequest(ctx context.Context, rec *store.SessionRecord) (*MergeResult, error) {
	branch := rec.PRBranch
	if branch == "" {
		branch = PRBranchName(rec.Session)
	}
	if !l.branchExists(rec, branch) {
		return nil, fmt.Errorf("%w: proposal branch %q does not exist", fault.ErrValidation, branch)
	}

	run := l.runner(rec)
	target, err := l.defaultBranch(rec)
	if err != nil {
		return nil, err
	}

	if _, err := run.Run(ctx, "checkout", target); err != nil {
		return nil, fmt.Errorf("checking out %q: %w", target, err)
	}
	if _, err := run.Run(ctx, "merge", "--ff-only", branch); err != nil {
		return nil, fmt.Errorf("fast-forwarding %q onto %q: %w", target, branch, err)
	}

	hash, err := run.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("reading merged commit: %w", err)
	}

	return &MergeResult{CommitHash: hash, MergedAt: time.Now().UTC()}, nil
}

// ApprovePullRequest is purely local: the approval flag lives on the session
// record and is written by the engine. Nothing to do here.
func (l *Local) ApprovePullRequest(ctx context.Context, rec *store.SessionRecord) error {
	return nil
}

// GetPullRequestDiff renders the proposal diff against the target branch.
func (l *Local) GetPullRequestDiff(ctx context.Context, rec *store.SessionRecord) (string, error) {
	branch := rec.PRBranch
	if branch == "" {
		branch = PRBranchName(rec.Session)
	}
	target, err := l.defaultBranch(rec)
	if err != nil {
		return "", err
	}
	diff, err := l.runner(rec).Run(ctx, "diff", target+"..."+branch)
	if err != nil {
		return "", fmt.Errorf("rendering proposal diff: %w", err)
	}
	return diff, nil
}

// GetStatus derives the proposal state from refs: merged iff the branch tip
// equals merge-base(target, branch).
func (l *Local) GetStatus(ctx context.Context, rec *store.SessionRecord) (*Status, error) {
	branch := rec.PRBranch
	if branch == "" {
		branch = PRBranchName(rec.Session)
	}
	if !l.branchExists(rec, branch) {
		return &Status{Exists: false, Branch: branch, State: "missing"}, nil
	}

	run := l.runner(rec)
	target, err := l.defaultBranch(rec)
	if err != nil {
		return nil, err
	}

	tip, err := run.Run(ctx, "rev-parse", branch)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", branch, err)
	}
	mergeBase, err := run.Run(ctx, "merge-base", target, branch)
	if err != nil {
		return nil, fmt.Errorf("computing merge base: %w", err)
	}

	merged := strings.TrimSpace(tip) == strings.TrimSpace(mergeBase)
	state := "open"
	if merged {
		state = "merged"
	}
	return &Status{Exists: true, Merged: merged, Branch: branch, State: state}, nil
}
