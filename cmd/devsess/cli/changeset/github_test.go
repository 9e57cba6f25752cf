package changeset

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v75/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devsess.io/cli/cmd/devsess/cli/fault"
)

// newGitHubTestAdapter points the adapter at a stub API server.
func newGitHubTestAdapter(t *testing.T, mux *http.ServeMux) *GitHubAdapter {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	return NewGitHubWithClient(client, "acme", "widget")
}

func TestGitHubGet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"number": 42,
			"title": "Fix login",
			"body": "Repairs the session check.",
			"state": "open",
			"user": {"login": "ada"},
			"base": {"ref": "main"},
			"head": {"ref": "fix-login"},
			"labels": [{"name": "bug"}],
			"html_url": "https://github.com/acme/widget/pull/42"
		}`)
	})

	a := newGitHubTestAdapter(t, mux)
	cs, err := a.Get(context.Background(), "42")
	require.NoError(t, err)

	assert.Equal(t, "42", cs.ID)
	assert.Equal(t, "github", cs.Platform)
	assert.Equal(t, "Fix login", cs.Title)
	assert.Equal(t, StatusOpen, cs.Status)
	assert.Equal(t, "ada", cs.Author.Username)
	assert.Equal(t, "main", cs.TargetBranch)
	assert.Equal(t, "fix-login", cs.SourceBranch)
	require.NotNil(t, cs.Metadata.GitHub)
	assert.Equal(t, 42, cs.Metadata.GitHub.Number)
	assert.Equal(t, []string{"bug"}, cs.Metadata.GitHub.Labels)
}

func TestGitHubGetAcceptsHashPrefix(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number": 7, "state": "open"}`)
	})

	a := newGitHubTestAdapter(t, mux)
	cs, err := a.Get(context.Background(), "#7")
	require.NoError(t, err)
	assert.Equal(t, "7", cs.ID)
}

func TestGitHubGetNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/pulls/99", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	})

	a := newGitHubTestAdapter(t, mux)
	_, err := a.Get(context.Background(), "99")
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestGitHubUnreachableBackend(t *testing.T) {
	client := github.NewClient(nil)
	base, err := url.Parse("http://127.0.0.1:1/")
	require.NoError(t, err)
	client.BaseURL = base

	a := NewGitHubWithClient(client, "acme", "widget")
	_, err = a.Get(context.Background(), "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrBackendUnavailable)
}

func TestGitHubRejectsNonNumericID(t *testing.T) {
	a := NewGitHubWithClient(github.NewClient(nil), "acme", "widget")

	for _, id := range []string{"", "abc", "#", "-1", "0"} {
		_, err := a.Get(context.Background(), id)
		assert.ErrorIs(t, err, fault.ErrInvalidInput, "id %q", id)
	}
}

func TestGitHubMergeRefused(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/pulls/5/merge", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"merged": false, "message": "required status checks pending"}`)
	})

	a := newGitHubTestAdapter(t, mux)
	_, err := a.Merge(context.Background(), "5", MergeOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrValidation)
	assert.Contains(t, err.Error(), "required status checks pending")
}

func TestGitHubStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		pr   *github.PullRequest
		want Status
	}{
		{"open", &github.PullRequest{State: github.Ptr("open")}, StatusOpen},
		{"draft", &github.PullRequest{State: github.Ptr("open"), Draft: github.Ptr(true)}, StatusDraft},
		{"closed", &github.PullRequest{State: github.Ptr("closed")}, StatusClosed},
		{"merged", &github.PullRequest{State: github.Ptr("closed"), Merged: github.Ptr(true)}, StatusMerged},
	}

	a := NewGitHubWithClient(github.NewClient(nil), "acme", "widget")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.fromPR(tt.pr).Status)
		})
	}
}

func TestReviewStatusMapping(t *testing.T) {
	tests := []struct {
		state string
		want  ReviewStatus
	}{
		{"APPROVED", ReviewApproved},
		{"approved", ReviewApproved},
		{"CHANGES_REQUESTED", ReviewChangesRequested},
		{"DISMISSED", ReviewDismissed},
		{"COMMENTED", ReviewPending},
		{"", ReviewPending},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reviewStatus(tt.state), "state %q", tt.state)
	}
}

func TestGitHubFeatureMatrix(t *testing.T) {
	a := NewGitHubWithClient(github.NewClient(nil), "acme", "widget")
	assert.True(t, a.SupportsFeature(FeatureDraftChangesets))
	assert.True(t, a.SupportsFeature(FeatureApprovalWorkflow))
	assert.False(t, a.SupportsFeature(Feature("nonexistent")))
}
