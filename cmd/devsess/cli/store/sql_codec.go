package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"devsess.io/cli/cmd/devsess/cli/task"
)

// Column layout shared by the SQLite and Postgres backends. On-disk names
// are snake_case; the in-memory record is camelCase. JSON-typed columns hold
// prApproved, prState, and the platform pullRequest record.
var sessionColumns = []string{
	"session",
	"repo_name",
	"repo_url",
	"created_at",
	"task_id",
	"branch",
	"pr_branch",
	"pr_approved",
	"pr_state",
	"backend_type",
	"pull_request",
}

// recordValues encodes a record into column order matching sessionColumns.
func recordValues(r *SessionRecord) ([]any, error) {
	prApproved, err := encodeJSONColumn(r.PRApproved)
	if err != nil {
		return nil, fmt.Errorf("encoding pr_approved for session %q: %w", r.Session, err)
	}

	var prState any
	if r.PRState != nil {
		data, err := json.Marshal(r.PRState)
		if err != nil {
			return nil, fmt.Errorf("encoding pr_state for session %q: %w", r.Session, err)
		}
		prState = string(data)
	}

	var pullRequest any
	if len(r.PullRequest) > 0 {
		pullRequest = string(r.PullRequest)
	}

	return []any{
		r.Session,
		r.RepoName,
		r.RepoURL,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
		nullIfEmpty(string(r.TaskID)),
		nullIfEmpty(r.Branch),
		nullIfEmpty(r.PRBranch),
		prApproved,
		prState,
		nullIfEmpty(r.BackendType),
		pullRequest,
	}, nil
}

func encodeJSONColumn(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRecord decodes one row in sessionColumns order.
//
// pr_approved decodes into the untyped PRApproved field without coercion: a
// historical migration bug left string "true" values in some databases, and
// those must surface in the approval gate, not silently pass as approved.
func scanRecord(s scanner) (*SessionRecord, error) {
	var (
		session, repoName, repoURL, createdAt         string
		taskID, branch, prBranch, backendType         sql.NullString
		prApproved, prState, pullRequest              sql.NullString
	)

	if err := s.Scan(
		&session, &repoName, &repoURL, &createdAt,
		&taskID, &branch, &prBranch,
		&prApproved, &prState, &backendType, &pullRequest,
	); err != nil {
		return nil, err
	}

	rec := &SessionRecord{
		Session:     session,
		RepoName:    repoName,
		RepoURL:     repoURL,
		TaskID:      task.ID(taskID.String),
		Branch:      branch.String,
		PRBranch:    prBranch.String,
		BackendType: backendType.String,
	}

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		rec.CreatedAt = t
	}

	if prApproved.Valid && prApproved.String != "" {
		var v any
		if err := json.Unmarshal([]byte(prApproved.String), &v); err != nil {
			// Unparseable cell: keep the raw text so the approval gate can
			// report exactly what was recorded.
			v = prApproved.String
		}
		rec.PRApproved = v
	}

	if prState.Valid && prState.String != "" {
		var st PRState
		if err := json.Unmarshal([]byte(prState.String), &st); err != nil {
			return nil, fmt.Errorf("decoding pr_state for session %q: %w", session, err)
		}
		rec.PRState = &st
	}

	if pullRequest.Valid && pullRequest.String != "" {
		rec.PullRequest = json.RawMessage(pullRequest.String)
	}

	return rec, nil
}

// insertBatchSize bounds multi-row inserts in WriteState.
const insertBatchSize = 250
