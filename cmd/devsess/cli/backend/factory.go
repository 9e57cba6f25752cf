package backend

import (
	"strings"

	"devsess.io/cli/cmd/devsess/cli/store"
)

// ForRecord selects and constructs the backend for a session record.
//
// An explicit backendType on the record wins; otherwise the repository URL
// decides. workdir maps records to their session workspace for the local
// variant.
func ForRecord(rec *store.SessionRecord, workdir func(*store.SessionRecord) string) Backend {
	t := Type(rec.BackendType)
	if t == "" {
		t = TypeForURL(rec.RepoURL)
	}

	switch t {
	case TypeGitHub:
		owner, repo := splitRepoName(rec.RepoName)
		return NewGitHub(owner, repo)
	case TypeGitLab:
		return NewGitLab(rec.RepoName)
	default:
		return NewLocal(workdir)
	}
}

// splitRepoName splits a normalized "owner/repo" name. Local names
// ("local/project") degrade gracefully: the caller only reaches here for
// forge backends, where the normalizer guarantees owner/repo.
func splitRepoName(name string) (owner, repo string) {
	owner, repo, found := strings.Cut(name, "/")
	if !found {
		return name, ""
	}
	return owner, repo
}
