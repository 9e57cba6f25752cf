// Package task defines the task identifier and status vocabulary shared by
// the session store, changeset adapters, and the approval/merge engine.
//
// The task body store itself (markdown files, issue trackers) is an external
// collaborator; this package only defines the Store interface it must satisfy.
package task

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"devsess.io/cli/cmd/devsess/cli/fault"
)

// ID is a normalized task identifier: "#" + decimal digits, optionally
// qualified with a backend prefix, e.g. "#42" or "md#42".
type ID string

// Normalize parses any accepted task ID form and returns the canonical
// rendering. Accepted forms: "23", "#23", "#023", "md#23", "md#023", with
// surrounding whitespace ignored. Leading zeros collapse: "#023" and "#23"
// refer to the same logical task.
func Normalize(raw string) (ID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty task ID", fault.ErrInvalidInput)
	}

	backend := ""
	numPart := s
	if idx := strings.Index(s, "#"); idx >= 0 {
		backend = s[:idx]
		numPart = s[idx+1:]
	}

	n, err := strconv.Atoi(numPart)
	if err != nil || n < 0 {
		return "", fmt.Errorf("%w: task ID %q is not numeric", fault.ErrInvalidInput, raw)
	}

	return ID(backend + "#" + strconv.Itoa(n)), nil
}

// MustNormalize is Normalize for inputs known to be valid; it panics on error.
// Intended for tests and constants.
func MustNormalize(raw string) ID {
	id, err := Normalize(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// Same reports whether two raw task ID forms refer to the same logical task.
// Either side failing to normalize makes them not the same.
func Same(a, b string) bool {
	na, errA := Normalize(a)
	nb, errB := Normalize(b)
	return errA == nil && errB == nil && na == nb
}

// Backend returns the backend qualifier of the ID, or empty for unqualified IDs.
func (id ID) Backend() string {
	s := string(id)
	if idx := strings.Index(s, "#"); idx > 0 {
		return s[:idx]
	}
	return ""
}

// Number returns the numeric part of the ID.
func (id ID) Number() int {
	s := string(id)
	if idx := strings.Index(s, "#"); idx >= 0 {
		s = s[idx+1:]
	}
	n, _ := strconv.Atoi(s)
	return n
}

func (id ID) String() string { return string(id) }

// Status is the fixed task status enumeration.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN-PROGRESS"
	StatusInReview   Status = "IN-REVIEW"
	StatusDone       Status = "DONE"
	StatusBlocked    Status = "BLOCKED"
	StatusClosed     Status = "CLOSED"
)

// Statuses lists every valid status in declaration order.
var Statuses = []Status{
	StatusTodo,
	StatusInProgress,
	StatusInReview,
	StatusDone,
	StatusBlocked,
	StatusClosed,
}

// markers maps each status to its markdown checkbox marker.
var markers = map[Status]string{
	StatusTodo:       "[ ]",
	StatusInProgress: "[-]",
	StatusInReview:   "[+]",
	StatusDone:       "[x]",
	StatusBlocked:    "[!]",
	StatusClosed:     "[~]",
}

// Marker returns the markdown checkbox marker for the status.
// Unknown statuses render as TODO.
func (s Status) Marker() string {
	if m, ok := markers[s]; ok {
		return m
	}
	return markers[StatusTodo]
}

// Valid reports whether s is one of the fixed statuses.
func (s Status) Valid() bool {
	_, ok := markers[s]
	return ok
}

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown task status %q", fault.ErrInvalidInput, raw)
	}
	return s, nil
}

// ParseMarker maps a markdown checkbox marker back to its status.
func ParseMarker(marker string) (Status, error) {
	for s, m := range markers {
		if m == marker {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status marker %q", fault.ErrInvalidInput, marker)
}

// Task is the minimal task projection the session core needs.
type Task struct {
	ID     ID
	Title  string
	Status Status
}

// Spec describes a task to create.
type Spec struct {
	Title  string
	Status Status
	Body   string
}

// ListFilter narrows ListTasks results. Zero values match everything.
type ListFilter struct {
	Status  Status
	Backend string
}

// Store is the external task-body backend. Implementations must accept task
// IDs in any form Normalize accepts.
type Store interface {
	// GetTask returns the task, or a fault.ErrNotFound error if absent.
	GetTask(ctx context.Context, id string) (*Task, error)

	// GetTaskStatus returns the status of the task.
	GetTaskStatus(ctx context.Context, id string) (Status, error)

	// SetTaskStatus updates the status of the task.
	SetTaskStatus(ctx context.Context, id string, status Status) error

	// ListTasks returns tasks matching the filter.
	ListTasks(ctx context.Context, filter ListFilter) ([]Task, error)

	// CreateTask creates a task and returns its assigned ID.
	CreateTask(ctx context.Context, spec Spec) (ID, error)
}
