package repouri

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want URI
	}{
		{
			name: "https url",
			in:   "https://github.com/acme/widget.git",
			want: URI{Type: TypeHTTPS, Scheme: "https", Host: "github.com", Owner: "acme", Repo: "widget", Normalized: "acme/widget"},
		},
		{
			name: "https url without git suffix",
			in:   "https://gitlab.com/acme/widget",
			want: URI{Type: TypeHTTPS, Scheme: "https", Host: "gitlab.com", Owner: "acme", Repo: "widget", Normalized: "acme/widget"},
		},
		{
			name: "scp-like ssh",
			in:   "git@github.com:acme/widget.git",
			want: URI{Type: TypeSSH, Scheme: "ssh", Host: "github.com", Owner: "acme", Repo: "widget", Normalized: "acme/widget"},
		},
		{
			name: "ssh without git suffix",
			in:   "git@example.org:team/tool",
			want: URI{Type: TypeSSH, Scheme: "ssh", Host: "example.org", Owner: "team", Repo: "tool", Normalized: "team/tool"},
		},
		{
			name: "file url",
			in:   "file:///srv/repos/widget",
			want: URI{Type: TypeFile, Scheme: "file", Path: "/srv/repos/widget", Normalized: "local/widget"},
		},
		{
			name: "shorthand",
			in:   "acme/widget",
			want: URI{Type: TypeHostedShorthand, Owner: "acme", Repo: "widget", Normalized: "acme/widget"},
		},
		{
			name: "shorthand with git suffix",
			in:   "acme/widget.git",
			want: URI{Type: TypeHostedShorthand, Owner: "acme", Repo: "widget", Normalized: "acme/widget"},
		},
		{
			name: "absolute path",
			in:   "/home/dev/widget",
			want: URI{Type: TypeLocalPath, Path: "/home/dev/widget", Normalized: "local/widget"},
		},
		{
			name: "relative path",
			in:   "./widget",
			want: URI{Type: TypeLocalPath, Path: "./widget", Normalized: "local/widget"},
		},
		{
			name: "url with too few segments degrades to path",
			in:   "https://example.com/widget",
			want: URI{Type: TypeLocalPath, Path: "https://example.com/widget", Normalized: "local/widget"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.in)
			assert.Equal(t, tt.want.Type, got.Type)
			assert.Equal(t, tt.want.Scheme, got.Scheme)
			assert.Equal(t, tt.want.Host, got.Host)
			assert.Equal(t, tt.want.Owner, got.Owner)
			assert.Equal(t, tt.want.Repo, got.Repo)
			assert.Equal(t, tt.want.Path, got.Path)
			assert.Equal(t, tt.want.Normalized, got.Normalized)
			assert.Equal(t, tt.in, got.Original)
		})
	}
}

func TestParseIsTotal(t *testing.T) {
	// Garbage never panics and always yields some classification.
	for _, in := range []string{"", "://", "a b c", "git@", "https://", "%%%"} {
		got := Parse(in)
		assert.NotEmpty(t, got.Type, "input %q", in)
	}
}

func TestValidate(t *testing.T) {
	t.Run("remote needs owner and repo", func(t *testing.T) {
		v := Validate(Parse("acme/widget"))
		require.True(t, v.Valid)
		require.NotNil(t, v.Components)
		assert.Equal(t, "acme", v.Components.Owner)
	})

	t.Run("local path must exist", func(t *testing.T) {
		dir := t.TempDir()
		v := Validate(Parse(dir))
		assert.True(t, v.Valid)

		v = Validate(Parse(dir + "/does-not-exist"))
		assert.False(t, v.Valid)
		assert.Error(t, v.Err)
	})
}

func TestConvert(t *testing.T) {
	u := Parse("git@github.com:acme/widget.git")

	assert.Equal(t, "https://github.com/acme/widget.git", Convert(u, TypeHTTPS))
	assert.Equal(t, "git@github.com:acme/widget.git", Convert(u, TypeSSH))
	assert.Equal(t, "acme/widget", Convert(u, TypeHostedShorthand))
	assert.Empty(t, Convert(u, TypeLocalPath), "remote URI has no local form")

	local := Parse("/srv/repos/widget")
	assert.Equal(t, "file:///srv/repos/widget", Convert(local, TypeFile))
	assert.Empty(t, Convert(local, TypeHTTPS), "local URI has no remote form")
}

func TestConvertRoundTrip(t *testing.T) {
	// https -> ssh -> https is stable for hosted repos.
	start := "https://github.com/acme/widget.git"
	ssh := Convert(Parse(start), TypeSSH)
	back := Convert(Parse(ssh), TypeHTTPS)
	assert.Equal(t, start, back)
}

func TestExpandShorthand(t *testing.T) {
	assert.Equal(t, "https://github.com/acme/widget.git", ExpandShorthand("acme/widget", "https"))
	assert.Equal(t, "https://github.com/acme/widget.git", ExpandShorthand("acme/widget", ""))
	assert.Equal(t, "git@github.com:acme/widget.git", ExpandShorthand("acme/widget", "ssh"))
	assert.Empty(t, ExpandShorthand("not-a-shorthand", "https"))
	assert.Empty(t, ExpandShorthand("acme/widget", "ftp"))
}

func TestIsLocal(t *testing.T) {
	assert.True(t, IsLocal(Parse("/srv/x")))
	assert.True(t, IsLocal(Parse("file:///srv/x")))
	assert.False(t, IsLocal(Parse("acme/widget")))
	assert.False(t, IsLocal(Parse("https://github.com/acme/widget")))
}
