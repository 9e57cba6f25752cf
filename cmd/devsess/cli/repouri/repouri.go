// Package repouri is the single normalization point for repository
// references. Every remote URL, local path, or owner/repo shorthand the CLI
// accepts goes through Parse, which is total: unrecognizable input degrades
// to a local path rather than an error.
package repouri

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"devsess.io/cli/cmd/devsess/cli/fault"
)

// Type tags the recognized repository reference forms.
type Type string

const (
	TypeHTTPS           Type = "https"
	TypeSSH             Type = "ssh"
	TypeFile            Type = "file"
	TypeLocalPath       Type = "local-path"
	TypeHostedShorthand Type = "hosted-shorthand"
)

// URI is a parsed, normalized repository reference.
//
// Normalized is "<owner>/<repo>" for remote forms (any .git suffix stripped)
// and "local/<basename>" for local forms. Original preserves the input
// verbatim.
type URI struct {
	Type       Type
	Scheme     string
	Host       string
	Owner      string
	Repo       string
	Path       string
	Normalized string
	Original   string
}

// sshRegex matches scp-like SSH remotes: git@host:owner/repo(.git)
var sshRegex = regexp.MustCompile(`^([^@]+)@([^:]+):([^/]+)/([^/]+?)(\.git)?$`)

// Parse parses any repository reference into a URI. It never fails.
//
// Recognition order: file:// URLs, scp-like SSH remotes, scheme URLs,
// owner/repo shorthand, and finally local paths.
func Parse(s string) URI {
	s = strings.TrimSpace(s)

	// 1. file://<path>
	if rest, ok := strings.CutPrefix(s, "file://"); ok {
		return URI{
			Type:       TypeFile,
			Scheme:     "file",
			Path:       rest,
			Normalized: "local/" + filepath.Base(rest),
			Original:   s,
		}
	}

	// 2. scp-like SSH form
	if m := sshRegex.FindStringSubmatch(s); m != nil {
		owner, repo := m[3], m[4]
		return URI{
			Type:       TypeSSH,
			Scheme:     "ssh",
			Host:       m[2],
			Owner:      owner,
			Repo:       repo,
			Normalized: owner + "/" + repo,
			Original:   s,
		}
	}

	// 3. URL with an explicit scheme
	if strings.Contains(s, "://") {
		if u, ok := parseSchemeURL(s); ok {
			return u
		}
		// Unparseable or incomplete URLs fall through.
	}

	// 4. owner/repo shorthand
	if isShorthand(s) {
		owner, repo, _ := strings.Cut(s, "/")
		repo = strings.TrimSuffix(repo, ".git")
		return URI{
			Type:       TypeHostedShorthand,
			Owner:      owner,
			Repo:       repo,
			Normalized: owner + "/" + repo,
			Original:   s,
		}
	}

	// 5. Anything else is a local path.
	return URI{
		Type:       TypeLocalPath,
		Path:       s,
		Normalized: "local/" + filepath.Base(s),
		Original:   s,
	}
}

// parseSchemeURL parses a scheme URL whose first two non-empty path segments
// form owner/repo. Returns ok=false when the URL cannot be parsed or has
// fewer than two segments.
func parseSchemeURL(s string) (URI, bool) {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return URI{}, false
	}

	var segments []string
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) < 2 {
		return URI{}, false
	}

	owner := segments[0]
	repo := strings.TrimSuffix(segments[1], ".git")

	return URI{
		Type:       TypeHTTPS,
		Scheme:     u.Scheme,
		Host:       u.Host,
		Owner:      owner,
		Repo:       repo,
		Path:       u.Path,
		Normalized: owner + "/" + repo,
		Original:   s,
	}, true
}

// isShorthand reports whether s looks like owner/repo: exactly one slash,
// no leading slash, and non-empty parts on both sides.
func isShorthand(s string) bool {
	if s == "" || strings.HasPrefix(s, "/") {
		return false
	}
	if strings.Count(s, "/") != 1 {
		return false
	}
	owner, repo, _ := strings.Cut(s, "/")
	return owner != "" && repo != ""
}

// IsLocal reports whether the URI refers to the local filesystem.
func IsLocal(u URI) bool {
	return u.Type == TypeFile || u.Type == TypeLocalPath
}

// Validation is the result of Validate.
type Validation struct {
	Valid      bool
	Err        error
	Components *URI
}

// Validate checks that a parsed URI is usable: remote forms need owner and
// repo, local forms need an existing path. This is the only operation in the
// package that produces fault.ErrInvalidInput.
func Validate(u URI) Validation {
	if IsLocal(u) {
		if u.Path == "" {
			return invalid(u, "empty local path")
		}
		if _, err := os.Stat(u.Path); err != nil {
			return invalid(u, fmt.Sprintf("local path %q does not exist", u.Path))
		}
		return Validation{Valid: true, Components: &u}
	}

	if u.Owner == "" || u.Repo == "" {
		return invalid(u, "missing owner or repository name")
	}
	return Validation{Valid: true, Components: &u}
}

func invalid(u URI, reason string) Validation {
	return Validation{
		Valid: false,
		Err:   fmt.Errorf("%w: invalid repository URI %q: %s", fault.ErrInvalidInput, u.Original, reason),
	}
}

// Convert re-renders a URI in the target form. Returns empty string when the
// conversion is incompatible (missing owner/repo for remote targets, or a
// local target for a remote URI).
func Convert(u URI, target Type) string {
	host := u.Host
	if host == "" {
		host = "github.com"
	}

	switch target {
	case TypeHTTPS:
		if u.Owner == "" || u.Repo == "" {
			return ""
		}
		return fmt.Sprintf("https://%s/%s/%s.git", host, u.Owner, u.Repo)
	case TypeSSH:
		if u.Owner == "" || u.Repo == "" {
			return ""
		}
		return fmt.Sprintf("git@%s:%s/%s.git", host, u.Owner, u.Repo)
	case TypeHostedShorthand:
		if u.Owner == "" || u.Repo == "" {
			return ""
		}
		return u.Owner + "/" + u.Repo
	case TypeFile:
		if u.Path == "" {
			return ""
		}
		return "file://" + u.Path
	case TypeLocalPath:
		if u.Path == "" {
			return ""
		}
		return u.Path
	default:
		return ""
	}
}

// ExpandShorthand expands an owner/repo shorthand into a full URL with the
// given scheme ("https" or "ssh"). Returns empty string for malformed input.
func ExpandShorthand(s, scheme string) string {
	if !isShorthand(s) {
		return ""
	}
	owner, repo, _ := strings.Cut(s, "/")
	repo = strings.TrimSuffix(repo, ".git")

	switch scheme {
	case "https", "":
		return "https://github.com/" + path.Join(owner, repo) + ".git"
	case "ssh":
		return fmt.Sprintf("git@github.com:%s/%s.git", owner, repo)
	default:
		return ""
	}
}
