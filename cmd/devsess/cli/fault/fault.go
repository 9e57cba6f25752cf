// Package fault defines the error kinds shared across the session core.
//
// Callers classify failures with errors.Is against the sentinel values and
// extract structured detail with errors.As. Packages wrap these sentinels
// rather than defining their own parallel taxonomies so that the CLI boundary
// can render a single-line message for any failure.
package fault

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. See the propagation policy in the package comment.
var (
	// ErrInvalidInput marks malformed task IDs, URIs, or option sets.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a missing resource. Prefer wrapping NotFoundError so
	// the resource type and ID survive to the caller.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks a failed invariant check. Fail-closed.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks duplicate creation or an already-occupied destination.
	ErrConflict = errors.New("conflict")

	// ErrTransientIO marks filesystem or subprocess failures that may succeed
	// on retry. The caller decides whether to retry.
	ErrTransientIO = errors.New("transient I/O failure")

	// ErrBackendUnavailable marks an unreachable forge or refused database
	// connection.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrCorruption marks a store file that failed its integrity check.
	ErrCorruption = errors.New("store corruption")

	// ErrNotImplemented marks operations on placeholder backends.
	ErrNotImplemented = errors.New("not implemented")
)

// NotFoundError identifies the missing resource by type and ID.
type NotFoundError struct {
	Resource string // "task", "session", "changeset", ...
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFound returns a NotFoundError for the given resource type and ID.
func NewNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ApprovalError reports a merge refused by the approval gate. Recorded and
// RecordedType carry the persisted prApproved value and its Go type so a
// caller that wrote a non-boolean truthy value is diagnosable from the error
// alone.
type ApprovalError struct {
	Session      string
	Reason       ApprovalFailure
	Recorded     any
	RecordedType string
}

// ApprovalFailure distinguishes the three merge guards.
type ApprovalFailure string

const (
	// NoProposal: the session has no prepared change-proposal branch.
	NoProposal ApprovalFailure = "no-proposal"
	// NotApproved: prApproved is absent or falsy.
	NotApproved ApprovalFailure = "not-approved"
	// InvalidApprovalState: prApproved is truthy but not the boolean true.
	InvalidApprovalState ApprovalFailure = "invalid-approval-state"
)

func (e *ApprovalError) Error() string {
	switch e.Reason {
	case NoProposal:
		return fmt.Sprintf("session %q has no change proposal to merge", e.Session)
	case NotApproved:
		return fmt.Sprintf("session %q must be approved before merge (prApproved=%v)", e.Session, e.Recorded)
	case InvalidApprovalState:
		return fmt.Sprintf("session %q has invalid approval state: prApproved=%v (%s), expected boolean true",
			e.Session, e.Recorded, e.RecordedType)
	default:
		return fmt.Sprintf("session %q failed approval validation", e.Session)
	}
}

func (e *ApprovalError) Unwrap() error { return ErrValidation }
