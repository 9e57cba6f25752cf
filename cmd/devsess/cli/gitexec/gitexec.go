// Package gitexec runs git subprocesses with context cancellation and
// timeouts, and parses their text output defensively.
//
// go-git covers ref and object inspection; operations that need real git
// semantics (clone, merge, fast-forward, diff rendering) go through this
// package instead. Output parsing lives in separate pure functions so it is
// unit-testable without a repository.
package gitexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"devsess.io/cli/cmd/devsess/cli/fault"
	"devsess.io/cli/cmd/devsess/cli/redact"
)

// DefaultTimeout bounds a single git invocation unless overridden per call.
const DefaultTimeout = 30 * time.Second

// Runner executes git commands in a fixed working directory.
type Runner struct {
	// Dir is the working directory for every invocation. Empty means the
	// process working directory.
	Dir string

	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration

	// Env entries appended to the subprocess environment, "KEY=VALUE" form.
	Env []string
}

// New returns a Runner rooted at dir.
func New(dir string) *Runner {
	return &Runner{Dir: dir}
}

// Run executes git with the given arguments and returns trimmed stdout.
// The context bounds the subprocess; on expiry or cancellation the process
// is killed and the error reports fault.ErrTransientIO.
func (r *Runner) Run(ctx context.Context, args ...string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	if r.Dir != "" {
		cmd.Dir = r.Dir
	}
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: git %s interrupted: %v", fault.ErrTransientIO, firstArg(args), ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		// Remotes cloned with embedded credentials echo them in stderr.
		msg = redact.String(msg)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("git %s failed (exit %d): %s", firstArg(args), exitErr.ExitCode(), msg)
		}
		return "", fmt.Errorf("%w: git %s: %s", fault.ErrTransientIO, firstArg(args), msg)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// RunLines executes git and returns its output split into cleaned lines.
func (r *Runner) RunLines(ctx context.Context, args ...string) ([]string, error) {
	out, err := r.Run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return SplitLines(out), nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// SplitLines splits git output into lines, tolerating CRLF endings and
// dropping empty lines. Git output varies by platform and version; callers
// should never see the raw line endings.
func SplitLines(out string) []string {
	if out == "" {
		return nil
	}
	raw := strings.Split(out, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	if len(lines) == 0 {
		return nil
	}
	return lines
}

// LogEntry is one commit parsed from git log output.
type LogEntry struct {
	Hash    string
	Author  string
	Email   string
	Subject string
}

// logFieldSep separates fields in the pretty format used by ParseLog.
// \x1f (unit separator) cannot appear in hashes, author names, or subjects.
const logFieldSep = "\x1f"

// LogFormat is the --pretty format matching ParseLog.
const LogFormat = "%H" + logFieldSep + "%an" + logFieldSep + "%ae" + logFieldSep + "%s"

// ParseLog parses output produced with --pretty=format:LogFormat.
// Malformed lines are skipped rather than failing the whole parse.
func ParseLog(out string) []LogEntry {
	var entries []LogEntry
	for _, line := range SplitLines(out) {
		parts := strings.SplitN(line, logFieldSep, 4)
		if len(parts) != 4 {
			continue
		}
		entries = append(entries, LogEntry{
			Hash:    parts[0],
			Author:  parts[1],
			Email:   parts[2],
			Subject: parts[3],
		})
	}
	return entries
}

// ParseBranchList parses `git branch --list --format=%(refname:short)` or
// `git for-each-ref --format=%(refname:short)` output.
func ParseBranchList(out string) []string {
	var branches []string
	for _, line := range SplitLines(out) {
		// Tolerate decorated output from plain `git branch`.
		line = strings.TrimPrefix(line, "* ")
		line = strings.TrimSpace(line)
		if line != "" {
			branches = append(branches, line)
		}
	}
	return branches
}
