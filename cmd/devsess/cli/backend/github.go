package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"

	"devsess.io/cli/cmd/devsess/cli/fault"
	"devsess.io/cli/cmd/devsess/cli/store"
)

// GitHub token environment variables, checked in order.
var githubTokenEnvVars = []string{"GITHUB_TOKEN", "GH_TOKEN"}

// GitHub delegates proposal operations to the GitHub REST API. Owner and
// repo come from the session record's normalized repository name.
type GitHub struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHub builds a GitHub backend for owner/repo. A token is read from
// GITHUB_TOKEN or GH_TOKEN; without one the client is unauthenticated, which
// is enough for read operations on public repositories.
func NewGitHub(owner, repo string) *GitHub {
	var httpClient *http.Client
	if token := githubToken(); token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	return &GitHub{
		client: github.NewClient(httpClient),
		owner:  owner,
		repo:   repo,
	}
}

// NewGitHubWithClient injects a preconfigured client; used by tests against
// a stub server.
func NewGitHubWithClient(client *github.Client, owner, repo string) *GitHub {
	return &GitHub{client: client, owner: owner, repo: repo}
}

func githubToken() string {
	for _, key := range githubTokenEnvVars {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func (g *GitHub) Type() Type { return TypeGitHub }

// prNumber extracts the PR number persisted on the record.
func prNumber(rec *store.SessionRecord) (int, error) {
	if len(rec.PullRequest) == 0 {
		return 0, fmt.Errorf("%w: session %q has no recorded pull request", fault.ErrValidation, rec.Session)
	}
	var pr PullRequest
	if err := json.Unmarshal(rec.PullRequest, &pr); err != nil {
		return 0, fmt.Errorf("%w: decoding recorded pull request for %q: %v", fault.ErrCorruption, rec.Session, err)
	}
	if pr.Number == 0 {
		return 0, fmt.Errorf("%w: recorded pull request for %q has no number", fault.ErrValidation, rec.Session)
	}
	return pr.Number, nil
}

func (g *GitHub) CreatePullRequest(ctx context.Context, rec *store.SessionRecord, opts CreateOptions) (*PullRequest, error) {
	base := opts.TargetBranch
	if base == "" {
		base = "main"
	}
	head := rec.Branch
	if head == "" {
		head = PRBranchName(rec.Session)
	}
	title := opts.Title
	if title == "" {
		title = "Session " + rec.Session
	}

	pr, _, err := g.client.PullRequests.Create(ctx, g.owner, g.repo, &github.NewPullRequest{
		Title: github.Ptr(title),
		Head:  github.Ptr(head),
		Base:  github.Ptr(base),
		Body:  github.Ptr(opts.Description),
	})
	if err != nil {
		return nil, classifyForgeErr("creating pull request", err)
	}

	return &PullRequest{
		Branch: head,
		Number: pr.GetNumber(),
		URL:    pr.GetHTMLURL(),
	}, nil
}

func (g *GitHub) UpdatePullRequest(ctx context.Context, rec *store.SessionRecord, opts UpdateOptions) error {
	number, err := prNumber(rec)
	if err != nil {
		return err
	}
	patch := &github.PullRequest{}
	if opts.Title != nil {
		patch.Title = opts.Title
	}
	if opts.Description != nil {
		patch.Body = opts.Description
	}
	if _, _, err := g.client.PullRequests.Edit(ctx, g.owner, g.repo, number, patch); err != nil {
		return classifyForgeErr("updating pull request", err)
	}
	return nil
}

func (g *GitHub) MergePullRequest(ctx context.Context, rec *store.SessionRecord) (*MergeResult, error) {
	number, err := prNumber(rec)
	if err != nil {
		return nil, err
	}
	result, _, err := g.client.PullRequests.Merge(ctx, g.owner, g.repo, number, "", &github.PullRequestOptions{})
	if err != nil {
		return nil, classifyForgeErr("merging pull request", err)
	}
	if !result.GetMerged() {
		return nil, fmt.Errorf("%w: forge refused merge of PR %d: %s", fault.ErrValidation, number, result.GetMessage())
	}
	return &MergeResult{CommitHash: result.GetSHA(), MergedAt: time.Now().UTC()}, nil
}

// ApprovePullRequest submits a review with the APPROVE event.
func (g *GitHub) ApprovePullRequest(ctx context.Context, rec *store.SessionRecord) error {
	number, err := prNumber(rec)
	if err != nil {
		return err
	}
	_, _, err = g.client.PullRequests.CreateReview(ctx, g.owner, g.repo, number, &github.PullRequestReviewRequest{
		Event: github.Ptr("APPROVE"),
	})
	if err != nil {
		return classifyForgeErr("approving pull request", err)
	}
	return nil
}

func (g *GitHub) GetPullRequestDiff(ctx context.Context, rec *store.SessionRecord) (string, error) {
	number, err := prNumber(rec)
	if err != nil {
		return "", err
	}
	diff, _, err := g.client.PullRequests.GetRaw(ctx, g.owner, g.repo, number, github.RawOptions{Type: github.Diff})
	if err != nil {
		return "", classifyForgeErr("fetching pull request diff", err)
	}
	return diff, nil
}

func (g *GitHub) GetStatus(ctx context.Context, rec *store.SessionRecord) (*Status, error) {
	number, err := prNumber(rec)
	if err != nil {
		return nil, err
	}
	pr, _, err := g.client.PullRequests.Get(ctx, g.owner, g.repo, number)
	if err != nil {
		return nil, classifyForgeErr("fetching pull request", err)
	}
	return &Status{
		Exists: true,
		Merged: pr.GetMerged(),
		Branch: pr.GetHead().GetRef(),
		Number: number,
		State:  pr.GetState(),
	}, nil
}

// classifyForgeErr maps API failures onto the shared error kinds. Responses
// the forge answered are surfaced as-is; transport failures are classified
// unavailable.
func classifyForgeErr(op string, err error) error {
	var errResp *github.ErrorResponse
	if ok := asGitHubError(err, &errResp); ok {
		if errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s: %v", fault.ErrNotFound, op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", fault.ErrBackendUnavailable, op, err)
}

func asGitHubError(err error, target **github.ErrorResponse) bool {
	for err != nil {
		if e, ok := err.(*github.ErrorResponse); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
