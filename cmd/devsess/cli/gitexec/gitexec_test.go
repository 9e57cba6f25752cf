package gitexec

import (
	"context"
	"errors"
	"testing"
	"time"

	"devsess.io/cli/cmd/devsess/cli/fault"
)

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single", "main", []string{"main"}},
		{"multi", "main\ndev\n", []string{"main", "dev"}},
		{"crlf", "main\r\ndev\r\n", []string{"main", "dev"}},
		{"blank lines dropped", "main\n\n  \ndev", []string{"main", "dev"}},
		{"only blanks", "\n \n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitLines(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitLines(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("line %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseLog(t *testing.T) {
	out := "abc123\x1fAda\x1fada@example.org\x1fFix the widget\n" +
		"def456\x1fBob\x1fbob@example.org\x1fAdd tests"

	entries := ParseLog(out)
	if len(entries) != 2 {
		t.Fatalf("ParseLog returned %d entries, want 2", len(entries))
	}
	if entries[0].Hash != "abc123" || entries[0].Author != "Ada" ||
		entries[0].Email != "ada@example.org" || entries[0].Subject != "Fix the widget" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
}

func TestParseLogSkipsMalformedLines(t *testing.T) {
	out := "abc123\x1fAda\x1fada@example.org\x1fok\n" +
		"not a log line\n" +
		"def456\x1fBob" // too few fields

	entries := ParseLog(out)
	if len(entries) != 1 {
		t.Fatalf("ParseLog returned %d entries, want 1", len(entries))
	}
	if entries[0].Hash != "abc123" {
		t.Errorf("kept wrong entry: %+v", entries[0])
	}
}

func TestParseLogSubjectMayContainSeparatorText(t *testing.T) {
	// SplitN(4) keeps the whole tail as the subject.
	out := "abc\x1fAda\x1fa@x\x1fsubject with \x1f inside"
	entries := ParseLog(out)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Subject != "subject with \x1f inside" {
		t.Errorf("Subject = %q", entries[0].Subject)
	}
}

func TestParseBranchList(t *testing.T) {
	out := "* main\n  pr/fix-login\npr/add-tests\n"
	got := ParseBranchList(out)
	want := []string{"main", "pr/fix-login", "pr/add-tests"}
	if len(got) != len(want) {
		t.Fatalf("ParseBranchList = %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("branch %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRunReportsCancellationAsTransient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Runner{Dir: t.TempDir(), Timeout: time.Second}
	_, err := r.Run(ctx, "status")
	if err == nil {
		t.Fatal("Run with canceled context succeeded")
	}
	if !errors.Is(err, fault.ErrTransientIO) {
		t.Errorf("err = %v, want ErrTransientIO", err)
	}
}

func TestRunFailsOutsideRepository(t *testing.T) {
	r := New(t.TempDir())
	_, err := r.Run(context.Background(), "rev-parse", "HEAD")
	if err == nil {
		t.Fatal("rev-parse outside a repository succeeded")
	}
}
