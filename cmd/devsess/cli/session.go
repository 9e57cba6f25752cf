package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"devsess.io/cli/cmd/devsess/cli/gitexec"
	"devsess.io/cli/cmd/devsess/cli/jsonutil"
	"devsess.io/cli/cmd/devsess/cli/repouri"
	"devsess.io/cli/cmd/devsess/cli/store"
	"devsess.io/cli/cmd/devsess/cli/task"
)

// cloneTimeout bounds the initial clone; clones are the one git operation
// that legitimately outlives the default subprocess timeout.
const cloneTimeout = 10 * time.Minute

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Session registry management",
		Long:  "Commands for registering, inspecting, and removing task-scoped sessions",
	}

	cmd.AddCommand(newSessionCreateCmd())
	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionShowCmd())
	cmd.AddCommand(newSessionDeleteCmd())
	cmd.AddCommand(newSessionWorkdirCmd())

	return cmd
}

func newSessionCreateCmd() *cobra.Command {
	var (
		taskFlag    string
		branchFlag  string
		noCloneFlag bool
	)

	cmd := &cobra.Command{
		Use:   "create <name> <repo>",
		Short: "Register a session for a repository",
		Long: "Register a session bound to a repository and optionally a task,\n" +
			"cloning the repository into the session workspace",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionCreate(cmd.Context(), args[0], args[1], taskFlag, branchFlag, noCloneFlag)
		},
	}

	cmd.Flags().StringVarP(&taskFlag, "task", "t", "", "Task ID to bind the session to (e.g. #23 or md#23)")
	cmd.Flags().StringVarP(&branchFlag, "branch", "b", "", "Working branch name recorded on the session")
	cmd.Flags().BoolVar(&noCloneFlag, "no-clone", false, "Register the session without cloning the repository")

	return cmd
}

func runSessionCreate(ctx context.Context, name, repo, taskID, branch string, noClone bool) error {
	uri := repouri.Parse(repo)
	if v := repouri.Validate(uri); !v.Valid {
		return fmt.Errorf("invalid repository %q: %w", repo, v.Err)
	}

	record := store.SessionRecord{
		Session:  name,
		RepoName: uri.Normalized,
		RepoURL:  cloneSource(uri),
		TaskID:   task.ID(taskID),
		Branch:   branch,
	}

	return withStore(ctx, func(s *store.Store) error {
		if err := s.Add(ctx, record); err != nil {
			return err
		}

		dest := s.RepoPath(&record)
		if noClone {
			fmt.Printf("Registered session %s (workspace %s, not cloned)\n", name, dest)
			return nil
		}

		// A failed clone unwinds the registration: leaving the record behind
		// would make the retry fail with a conflict over a dead workspace.
		if err := os.MkdirAll(dest, 0o750); err != nil {
			s.Delete(ctx, name)
			return fmt.Errorf("failed to create session workspace: %w", err)
		}
		runner := &gitexec.Runner{Timeout: cloneTimeout}
		if _, err := runner.Run(ctx, "clone", record.RepoURL, dest); err != nil {
			_ = os.RemoveAll(dest)
			s.Delete(ctx, name)
			return fmt.Errorf("failed to clone %s: %w", record.RepoURL, err)
		}

		fmt.Printf("Registered session %s (workspace %s)\n", name, dest)
		return nil
	})
}

// cloneSource returns the URL handed to git clone, which is also what the
// record stores: local forms clone from the path, shorthand expands to an
// https URL, everything else clones verbatim.
func cloneSource(u repouri.URI) string {
	switch u.Type {
	case repouri.TypeLocalPath, repouri.TypeFile:
		return u.Path
	case repouri.TypeHostedShorthand:
		return repouri.ExpandShorthand(u.Original, "https")
	default:
		return u.Original
	}
}

func newSessionListCmd() *cobra.Command {
	var (
		taskFlag string
		repoFlag string
		jsonFlag bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSessionList(cmd.Context(), taskFlag, repoFlag, jsonFlag)
		},
	}

	cmd.Flags().StringVarP(&taskFlag, "task", "t", "", "Only sessions bound to this task ID")
	cmd.Flags().StringVarP(&repoFlag, "repo", "r", "", "Only sessions for this repository name")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Output as JSON")

	return cmd
}

func runSessionList(ctx context.Context, taskID, repoName string, asJSON bool) error {
	return withStore(ctx, func(s *store.Store) error {
		filter := store.Filter{TaskID: taskID, RepoName: repoName}
		var records []store.SessionRecord
		for _, r := range s.List(ctx) {
			if filter.Matches(&r) {
				records = append(records, r)
			}
		}
		sort.Slice(records, func(i, j int) bool { return records[i].Session < records[j].Session })

		if asJSON {
			data, err := jsonutil.MarshalIndentWithNewline(records, "", "  ")
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		}

		if len(records) == 0 {
			fmt.Println("No sessions registered.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tTASK\tREPO\tBRANCH\tPROPOSAL\tAPPROVED")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.Session, r.TaskID, r.RepoName, r.Branch, r.PRBranch, approvalCell(&r))
		}
		return w.Flush()
	})
}

// approvalCell renders the recorded approval value without coercing it: a
// non-boolean value is a visible anomaly, not something to paper over.
func approvalCell(r *store.SessionRecord) string {
	switch v := r.PRApproved.(type) {
	case nil:
		return "-"
	case bool:
		if v {
			return "yes"
		}
		return "no"
	default:
		return fmt.Sprintf("INVALID(%v)", v)
	}
}

func newSessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show the full record of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, func(s *store.Store) error {
				rec, ok := s.Get(ctx, args[0])
				if !ok {
					return fmt.Errorf("session not found: %s", args[0])
				}
				data, err := jsonutil.MarshalIndentWithNewline(rec, "", "  ")
				if err != nil {
					return err
				}
				fmt.Print(string(data))
				return nil
			})
		},
	}
}

func newSessionDeleteCmd() *cobra.Command {
	var (
		forceFlag bool
		purgeFlag bool
	)

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a session from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionDelete(cmd.Context(), args[0], forceFlag, purgeFlag)
		},
	}

	cmd.Flags().BoolVarP(&forceFlag, "force", "f", false, "Skip confirmation prompt")
	cmd.Flags().BoolVar(&purgeFlag, "purge", false, "Also remove the session workspace directory")

	return cmd
}

func runSessionDelete(ctx context.Context, name string, force, purge bool) error {
	return withStore(ctx, func(s *store.Store) error {
		rec, ok := s.Get(ctx, name)
		if !ok {
			return fmt.Errorf("session not found: %s", name)
		}

		if !force {
			description := fmt.Sprintf("Repository: %s", rec.RepoName)
			if purge {
				description += fmt.Sprintf("\nWorkspace %s will be removed.", s.RepoPath(rec))
			}
			confirmed, err := confirm(fmt.Sprintf("Delete session %s?", name), description)
			if err != nil {
				return fmt.Errorf("failed to get confirmation: %w", err)
			}
			if !confirmed {
				return nil
			}
		}

		if !s.Delete(ctx, name) {
			return fmt.Errorf("session not found: %s", name)
		}
		if purge {
			if err := os.RemoveAll(s.RepoPath(rec)); err != nil {
				return fmt.Errorf("failed to remove workspace: %w", err)
			}
		}
		fmt.Printf("Deleted session %s\n", name)
		return nil
	})
}

func newSessionWorkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workdir <name>",
		Short: "Print the canonical workspace path of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, func(s *store.Store) error {
				dir, ok := s.SessionWorkdir(ctx, args[0])
				if !ok {
					return fmt.Errorf("session not found: %s", args[0])
				}
				fmt.Println(dir)
				return nil
			})
		},
	}
}
