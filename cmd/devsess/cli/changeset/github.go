package changeset

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"devsess.io/cli/cmd/devsess/cli/fault"
	"devsess.io/cli/cmd/devsess/cli/repouri"
)

func init() {
	Register(Factory{
		Name: "github",
		CanHandle: func(url string) bool {
			return repouri.Parse(url).Host == "github.com"
		},
		New: func(url, _ string) Adapter {
			u := repouri.Parse(url)
			return NewGitHub(u.Owner, u.Repo)
		},
	})
}

// githubFeatures is the static capability matrix for GitHub.
var githubFeatures = map[Feature]bool{
	FeatureApprovalWorkflow:   true,
	FeatureDraftChangesets:    true,
	FeatureFileComments:       true,
	FeatureSuggestedChanges:   true,
	FeatureAutoMerge:          true,
	FeatureBranchProtection:   true,
	FeatureStatusChecks:       true,
	FeatureAssigneeManagement: true,
	FeatureLabelManagement:    true,
	FeatureMilestoneTracking:  true,
}

// GitHubAdapter projects GitHub pull requests as changesets. IDs are PR
// numbers in decimal.
type GitHubAdapter struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHub builds the adapter for owner/repo, authenticating from
// GITHUB_TOKEN or GH_TOKEN when present.
func NewGitHub(owner, repo string) *GitHubAdapter {
	var httpClient *http.Client
	for _, key := range []string{"GITHUB_TOKEN", "GH_TOKEN"} {
		if token := os.Getenv(key); token != "" {
			ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
			httpClient = oauth2.NewClient(context.Background(), ts)
			break
		}
	}
	return &GitHubAdapter{client: github.NewClient(httpClient), owner: owner, repo: repo}
}

// NewGitHubWithClient injects a preconfigured client; used by tests.
func NewGitHubWithClient(client *github.Client, owner, repo string) *GitHubAdapter {
	return &GitHubAdapter{client: client, owner: owner, repo: repo}
}

func (a *GitHubAdapter) Platform() string { return "github" }

func (a *GitHubAdapter) SupportsFeature(f Feature) bool { return githubFeatures[f] }

func (a *GitHubAdapter) number(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "#"))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: changeset ID %q is not a pull request number", fault.ErrInvalidInput, id)
	}
	return n, nil
}

func (a *GitHubAdapter) List(ctx context.Context, filter ListFilter) ([]Changeset, error) {
	state := "open"
	switch filter.Status {
	case StatusMerged, StatusClosed:
		state = "closed"
	case "":
		state = "all"
	}

	opts := &github.PullRequestListOptions{
		State:       state,
		Base:        filter.TargetBranch,
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var result []Changeset
	for {
		prs, resp, err := a.client.PullRequests.List(ctx, a.owner, a.repo, opts)
		if err != nil {
			return nil, a.classify("listing pull requests", err)
		}
		for _, pr := range prs {
			cs := a.fromPR(pr)
			if filter.Status != "" && cs.Status != filter.Status {
				continue
			}
			if filter.Author != "" && cs.Author.Username != filter.Author {
				continue
			}
			result = append(result, *cs)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return result, nil
}

func (a *GitHubAdapter) Get(ctx context.Context, id string) (*Changeset, error) {
	n, err := a.number(id)
	if err != nil {
		return nil, err
	}
	pr, _, err := a.client.PullRequests.Get(ctx, a.owner, a.repo, n)
	if err != nil {
		return nil, a.classify("fetching pull request", err)
	}
	return a.fromPR(pr), nil
}

// GetDetails fetches reviews, commits, and comments in parallel and attaches
// them to the base changeset.
func (a *GitHubAdapter) GetDetails(ctx context.Context, id string) (*Changeset, error) {
	n, err := a.number(id)
	if err != nil {
		return nil, err
	}

	var (
		pr       *github.PullRequest
		reviews  []*github.PullRequestReview
		commits  []*github.RepositoryCommit
		comments []*github.IssueComment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pr, _, err = a.client.PullRequests.Get(gctx, a.owner, a.repo, n)
		return err
	})
	g.Go(func() error {
		var err error
		reviews, _, err = a.client.PullRequests.ListReviews(gctx, a.owner, a.repo, n, nil)
		return err
	})
	g.Go(func() error {
		var err error
		commits, _, err = a.client.PullRequests.ListCommits(gctx, a.owner, a.repo, n, nil)
		return err
	})
	g.Go(func() error {
		var err error
		comments, _, err = a.client.Issues.ListComments(gctx, a.owner, a.repo, n, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, a.classify("fetching pull request details", err)
	}

	cs := a.fromPR(pr)
	for _, r := range reviews {
		cs.Reviews = append(cs.Reviews, Review{
			Author:      Author{Username: r.GetUser().GetLogin()},
			Status:      reviewStatus(r.GetState()),
			SubmittedAt: r.GetSubmittedAt().Time,
		})
	}
	for _, c := range commits {
		cs.Commits = append(cs.Commits, Commit{
			Hash: c.GetSHA(),
			Author: Author{
				Username: c.GetAuthor().GetLogin(),
				Email:    c.GetCommit().GetAuthor().GetEmail(),
			},
			Message: c.GetCommit().GetMessage(),
		})
	}
	for _, c := range comments {
		cs.Comments = append(cs.Comments, Comment{
			Author:    Author{Username: c.GetUser().GetLogin()},
			Body:      c.GetBody(),
			CreatedAt: c.GetCreatedAt().Time,
		})
	}
	return cs, nil
}

func (a *GitHubAdapter) Search(ctx context.Context, query string, scope SearchScope) ([]Changeset, error) {
	q := fmt.Sprintf("repo:%s/%s is:pr %s", a.owner, a.repo, query)
	switch scope {
	case ScopeTitle:
		q += " in:title"
	case ScopeBody:
		q += " in:body"
	case ScopeComments:
		q += " in:comments"
	}

	res, _, err := a.client.Search.Issues(ctx, q, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, a.classify("searching pull requests", err)
	}

	var result []Changeset
	for _, issue := range res.Issues {
		if !issue.IsPullRequest() {
			continue
		}
		cs, err := a.Get(ctx, strconv.Itoa(issue.GetNumber()))
		if err != nil {
			return nil, err
		}
		result = append(result, *cs)
	}
	return result, nil
}

func (a *GitHubAdapter) Create(ctx context.Context, opts CreateOptions) (*Changeset, error) {
	base := opts.TargetBranch
	if base == "" {
		base = "main"
	}
	pr, _, err := a.client.PullRequests.Create(ctx, a.owner, a.repo, &github.NewPullRequest{
		Title: github.Ptr(opts.Title),
		Head:  github.Ptr(opts.SourceBranch),
		Base:  github.Ptr(base),
		Body:  github.Ptr(opts.Description),
		Draft: github.Ptr(opts.Draft),
	})
	if err != nil {
		return nil, a.classify("creating pull request", err)
	}
	return a.fromPR(pr), nil
}

func (a *GitHubAdapter) Update(ctx context.Context, id string, patch UpdatePatch) (*Changeset, error) {
	n, err := a.number(id)
	if err != nil {
		return nil, err
	}
	edit := &github.PullRequest{}
	if patch.Title != nil {
		edit.Title = patch.Title
	}
	if patch.Description != nil {
		edit.Body = patch.Description
	}
	if patch.Status != nil && *patch.Status == StatusClosed {
		edit.State = github.Ptr("closed")
	}
	pr, _, err := a.client.PullRequests.Edit(ctx, a.owner, a.repo, n, edit)
	if err != nil {
		return nil, a.classify("updating pull request", err)
	}
	return a.fromPR(pr), nil
}

func (a *GitHubAdapter) Merge(ctx context.Context, id string, opts MergeOptions) (*Changeset, error) {
	n, err := a.number(id)
	if err != nil {
		return nil, err
	}
	mergeOpts := &github.PullRequestOptions{}
	if opts.Squash {
		mergeOpts.MergeMethod = "squash"
	}
	result, _, err := a.client.PullRequests.Merge(ctx, a.owner, a.repo, n, opts.CommitMessage, mergeOpts)
	if err != nil {
		return nil, a.classify("merging pull request", err)
	}
	if !result.GetMerged() {
		return nil, fmt.Errorf("%w: forge refused merge of PR %d: %s", fault.ErrValidation, n, result.GetMessage())
	}
	return a.Get(ctx, id)
}

func (a *GitHubAdapter) fromPR(pr *github.PullRequest) *Changeset {
	status := StatusOpen
	switch {
	case pr.GetMerged() || pr.MergedAt != nil:
		status = StatusMerged
	case pr.GetState() == "closed":
		status = StatusClosed
	case pr.GetDraft():
		status = StatusDraft
	}

	var labels []string
	for _, l := range pr.Labels {
		labels = append(labels, l.GetName())
	}

	return &Changeset{
		ID:           strconv.Itoa(pr.GetNumber()),
		Platform:     "github",
		Title:        pr.GetTitle(),
		Description:  pr.GetBody(),
		Author:       Author{Username: pr.GetUser().GetLogin()},
		Status:       status,
		TargetBranch: pr.GetBase().GetRef(),
		SourceBranch: pr.GetHead().GetRef(),
		CreatedAt:    pr.GetCreatedAt().Time,
		UpdatedAt:    pr.GetUpdatedAt().Time,
		Metadata: Metadata{
			Platform: "github",
			GitHub: &GitHubMetadata{
				Number:    pr.GetNumber(),
				HTMLURL:   pr.GetHTMLURL(),
				Labels:    labels,
				Draft:     pr.GetDraft(),
				Mergeable: pr.Mergeable,
			},
		},
	}
}

func reviewStatus(state string) ReviewStatus {
	switch strings.ToUpper(state) {
	case "APPROVED":
		return ReviewApproved
	case "CHANGES_REQUESTED":
		return ReviewChangesRequested
	case "DISMISSED":
		return ReviewDismissed
	default:
		return ReviewPending
	}
}

func (a *GitHubAdapter) classify(op string, err error) error {
	var errResp *github.ErrorResponse
	for e := err; e != nil; {
		if r, ok := e.(*github.ErrorResponse); ok {
			errResp = r
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	if errResp != nil {
		if errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s: %v", fault.ErrNotFound, op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", fault.ErrBackendUnavailable, op, err)
}
