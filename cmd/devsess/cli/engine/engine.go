// Package engine coordinates sessions, tasks, and repository backends for
// the proposal lifecycle. Policy lives here and only here: the approval gate
// runs before any backend merge is attempted, and task status transitions are
// driven from proposal events.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"devsess.io/cli/cmd/devsess/cli/backend"
	"devsess.io/cli/cmd/devsess/cli/fault"
	"devsess.io/cli/cmd/devsess/cli/logging"
	"devsess.io/cli/cmd/devsess/cli/store"
	"devsess.io/cli/cmd/devsess/cli/task"
)

// BackendFunc builds the repository backend for a record. It exists so tests
// can substitute a fake without a git repository or a forge.
type BackendFunc func(rec *store.SessionRecord) backend.Backend

// Engine drives the proposal lifecycle over a session store, an optional task
// store, and per-record repository backends.
type Engine struct {
	store      *store.Store
	tasks      task.Store // nil when no task backend is configured
	backendFor BackendFunc
}

// New builds an engine. tasks may be nil; task transitions are then skipped.
func New(s *store.Store, tasks task.Store) *Engine {
	return &Engine{
		store: s,
		tasks: tasks,
		backendFor: func(rec *store.SessionRecord) backend.Backend {
			return backend.ForRecord(rec, s.RepoPath)
		},
	}
}

// NewWithBackend builds an engine with an injected backend constructor.
func NewWithBackend(s *store.Store, tasks task.Store, f BackendFunc) *Engine {
	return &Engine{store: s, tasks: tasks, backendFor: f}
}

// Store exposes the session store for read paths the CLI serves directly.
func (e *Engine) Store() *store.Store { return e.store }

// resolve loads the session record or reports it missing.
func (e *Engine) resolve(ctx context.Context, session string) (*store.SessionRecord, error) {
	rec, ok := e.store.Get(ctx, session)
	if !ok {
		return nil, fault.NewNotFound("session", session)
	}
	return rec, nil
}

// ResolveTask maps a task ID to its session record. The task itself is
// checked first when a task store is configured, so an unknown task reports
// the task as missing rather than the (necessarily absent) session.
func (e *Engine) ResolveTask(ctx context.Context, taskID string) (*store.SessionRecord, error) {
	id, err := task.Normalize(taskID)
	if err != nil {
		return nil, err
	}
	if e.tasks != nil {
		if _, err := e.tasks.GetTask(ctx, string(id)); err != nil {
			if errors.Is(err, fault.ErrNotFound) {
				return nil, fault.NewNotFound("task", string(id))
			}
			return nil, fmt.Errorf("failed to look up task %s: %w", id, err)
		}
	}
	rec, ok := e.store.GetByTaskID(ctx, string(id))
	if !ok {
		return nil, fault.NewNotFound("session for task", string(id))
	}
	return rec, nil
}

// CreateOptions parameterize CreateProposal.
type CreateOptions struct {
	Title        string
	Description  string
	TargetBranch string

	// SkipTaskUpdate leaves the linked task's status untouched.
	SkipTaskUpdate bool
}

// CreateProposal prepares the change proposal for a session: the backend
// creates it, the record is stamped with the proposal branch and a fresh
// unapproved state, and the linked task moves to IN-REVIEW.
//
// A session with a live proposal (prBranch set and prState.exists) refuses a
// second create: the stamp below resets approval, so recreating over a live
// proposal would silently revoke a granted approval. The record frees up once
// the proposal branch is gone (Status observes exists=false).
func (e *Engine) CreateProposal(ctx context.Context, session string, opts CreateOptions) (*store.SessionRecord, error) {
	rec, err := e.resolve(ctx, session)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithSession(ctx, session)

	if rec.PRBranch != "" && rec.PRState != nil && rec.PRState.Exists {
		return nil, fmt.Errorf("%w: session %q already has a change proposal on %q",
			fault.ErrConflict, session, rec.PRBranch)
	}

	b := e.backendFor(rec)
	pr, err := b.CreatePullRequest(ctx, rec, backend.CreateOptions{
		Title:        opts.Title,
		Description:  opts.Description,
		TargetBranch: opts.TargetBranch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create proposal for session %q: %w", session, err)
	}

	now := time.Now().UTC()
	prJSON, err := json.Marshal(pr)
	if err != nil {
		return nil, fmt.Errorf("failed to encode proposal metadata: %w", err)
	}

	updated, err := e.store.Update(ctx, session, store.Patch{
		PRBranch:   store.StringPtr(pr.Branch),
		PRApproved: false,
		PRState: &store.PRState{
			BranchName:  pr.Branch,
			Exists:      true,
			CreatedAt:   now,
			LastChecked: now,
		},
		BackendType: store.StringPtr(string(b.Type())),
		PullRequest: prJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record proposal for session %q: %w", session, err)
	}

	if !opts.SkipTaskUpdate {
		e.advanceTaskToReview(ctx, rec.TaskID)
	}
	logging.Info(ctx, "created change proposal", "branch", pr.Branch, "backend", b.Type())
	return updated, nil
}

// Approve records approval for the session's proposal. Forge backends also
// submit the platform-side approval; the local backend has none. Approving a
// session without a proposal fails the same way merging one does.
func (e *Engine) Approve(ctx context.Context, session string) (*store.SessionRecord, error) {
	rec, err := e.resolve(ctx, session)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithSession(ctx, session)

	if rec.PRBranch == "" {
		return nil, &fault.ApprovalError{Session: session, Reason: fault.NoProposal}
	}

	if err := e.backendFor(rec).ApprovePullRequest(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to approve proposal for session %q: %w", session, err)
	}

	updated, err := e.store.Update(ctx, session, store.Patch{PRApproved: true})
	if err != nil {
		return nil, fmt.Errorf("failed to record approval for session %q: %w", session, err)
	}
	logging.Info(ctx, "approved change proposal", "branch", rec.PRBranch)
	return updated, nil
}

// Merge merges the session's proposal after the approval gate.
//
// The gate runs three checks in order and fails closed: a session without a
// proposal branch cannot merge; a proposal that was never approved cannot
// merge; and a recorded approval that is anything but the boolean true is
// treated as corrupt, not as approval. The backend is never invoked when the
// gate refuses.
func (e *Engine) Merge(ctx context.Context, session string) (*store.SessionRecord, error) {
	rec, err := e.resolve(ctx, session)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithSession(ctx, session)

	if err := checkApproval(rec); err != nil {
		return nil, err
	}

	result, err := e.backendFor(rec).MergePullRequest(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to merge proposal for session %q: %w", session, err)
	}

	state := store.PRState{
		BranchName:  rec.PRBranch,
		Exists:      true,
		LastChecked: time.Now().UTC(),
		MergedAt:    &result.MergedAt,
		CommitHash:  result.CommitHash,
	}
	if rec.PRState != nil {
		state.CreatedAt = rec.PRState.CreatedAt
	}
	updated, err := e.store.Update(ctx, session, store.Patch{PRState: &state})
	if err != nil {
		return nil, fmt.Errorf("failed to record merge for session %q: %w", session, err)
	}

	e.moveTask(ctx, rec.TaskID, task.StatusDone)
	logging.Info(ctx, "merged change proposal", "branch", rec.PRBranch, "commit", result.CommitHash)
	return updated, nil
}

// MergeByTask resolves the task to its session and merges that session's
// proposal.
func (e *Engine) MergeByTask(ctx context.Context, taskID string) (*store.SessionRecord, error) {
	rec, err := e.ResolveTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return e.Merge(ctx, rec.Session)
}

// checkApproval is the merge gate. Order matters: the missing-proposal case
// masks any approval value, and only then is the value itself inspected.
func checkApproval(rec *store.SessionRecord) error {
	if rec.PRBranch == "" {
		return &fault.ApprovalError{Session: rec.Session, Reason: fault.NoProposal}
	}
	if rec.Approved() {
		return nil
	}
	if isFalsy(rec.PRApproved) {
		return &fault.ApprovalError{
			Session:  rec.Session,
			Reason:   fault.NotApproved,
			Recorded: rec.PRApproved,
		}
	}
	return &fault.ApprovalError{
		Session:      rec.Session,
		Reason:       fault.InvalidApprovalState,
		Recorded:     rec.PRApproved,
		RecordedType: fmt.Sprintf("%T", rec.PRApproved),
	}
}

// isFalsy classifies recorded approval values that plainly mean "not
// approved": absent, false, empty string, or numeric zero. Anything else
// truthy that is not the boolean true is an invalid state, not a denial.
func isFalsy(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case string:
		return x == ""
	case float64:
		return x == 0
	case int:
		return x == 0
	case int64:
		return x == 0
	default:
		return false
	}
}

// Diff returns the proposal diff for a session.
func (e *Engine) Diff(ctx context.Context, session string) (string, error) {
	rec, err := e.resolve(ctx, session)
	if err != nil {
		return "", err
	}
	if rec.PRBranch == "" {
		return "", &fault.ApprovalError{Session: session, Reason: fault.NoProposal}
	}
	return e.backendFor(rec).GetPullRequestDiff(logging.WithSession(ctx, session), rec)
}

// Status reports the backend view of the session's proposal and refreshes
// the record's lastChecked stamp.
func (e *Engine) Status(ctx context.Context, session string) (*backend.Status, error) {
	rec, err := e.resolve(ctx, session)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithSession(ctx, session)

	st, err := e.backendFor(rec).GetStatus(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to check proposal status for session %q: %w", session, err)
	}

	if rec.PRState != nil {
		state := *rec.PRState
		state.Exists = st.Exists
		state.LastChecked = time.Now().UTC()
		if _, err := e.store.Update(ctx, session, store.Patch{PRState: &state}); err != nil {
			logging.Warn(ctx, "failed to refresh proposal state", "error", err)
		}
	}
	return st, nil
}

// advanceTaskToReview moves a task to IN-REVIEW, but only forward: a task
// already DONE, BLOCKED, or CLOSED is left alone.
func (e *Engine) advanceTaskToReview(ctx context.Context, id task.ID) {
	if e.tasks == nil || id == "" {
		return
	}
	current, err := e.tasks.GetTaskStatus(ctx, string(id))
	if err != nil {
		logging.Warn(ctx, "failed to read task status", "task", id, "error", err)
		return
	}
	switch current {
	case task.StatusTodo, task.StatusInProgress:
		e.moveTask(ctx, id, task.StatusInReview)
	}
}

// moveTask transitions the linked task, tolerating task-store failures: the
// merge or proposal already happened, so a task update failure is logged and
// swallowed rather than unwinding the operation.
func (e *Engine) moveTask(ctx context.Context, id task.ID, status task.Status) {
	if e.tasks == nil || id == "" {
		return
	}
	if err := e.tasks.SetTaskStatus(ctx, string(id), status); err != nil {
		logging.Warn(ctx, "failed to update task status",
			"task", id, "status", status, "error", err)
	}
}
