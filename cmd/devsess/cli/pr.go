package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"devsess.io/cli/cmd/devsess/cli/engine"
	"devsess.io/cli/cmd/devsess/cli/store"
)

func newPRCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pr",
		Short: "Change proposal lifecycle",
		Long:  "Create, approve, merge, and inspect a session's change proposal",
	}

	cmd.AddCommand(newPRCreateCmd())
	cmd.AddCommand(newPRApproveCmd())
	cmd.AddCommand(newPRMergeCmd())
	cmd.AddCommand(newPRDiffCmd())
	cmd.AddCommand(newPRStatusCmd())

	return cmd
}

// resolveSessionArg turns the positional argument or --task flag into a
// session name. Exactly one of them must be given.
func resolveSessionArg(ctx context.Context, e *engine.Engine, args []string, taskID string) (string, error) {
	switch {
	case len(args) == 1 && taskID != "":
		return "", fmt.Errorf("give either a session name or --task, not both")
	case len(args) == 1:
		return args[0], nil
	case taskID != "":
		rec, err := e.ResolveTask(ctx, taskID)
		if err != nil {
			return "", err
		}
		return rec.Session, nil
	default:
		return "", fmt.Errorf("a session name or --task is required")
	}
}

func newPRCreateCmd() *cobra.Command {
	var (
		taskFlag   string
		titleFlag  string
		bodyFlag   string
		targetFlag string
		noTaskFlag bool
	)

	cmd := &cobra.Command{
		Use:   "create [session]",
		Short: "Prepare the change proposal for a session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, func(s *store.Store) error {
				e := newEngine(s)
				session, err := resolveSessionArg(ctx, e, args, taskFlag)
				if err != nil {
					return err
				}
				rec, err := e.CreateProposal(ctx, session, engine.CreateOptions{
					Title:          titleFlag,
					Description:    bodyFlag,
					TargetBranch:   targetFlag,
					SkipTaskUpdate: noTaskFlag,
				})
				if err != nil {
					return err
				}
				fmt.Printf("Created proposal %s for session %s\n", rec.PRBranch, session)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&taskFlag, "task", "t", "", "Address the session by its task ID")
	cmd.Flags().StringVar(&titleFlag, "title", "", "Proposal title")
	cmd.Flags().StringVar(&bodyFlag, "body", "", "Proposal description")
	cmd.Flags().StringVar(&targetFlag, "target", "", "Target branch (default: repository default)")
	cmd.Flags().BoolVar(&noTaskFlag, "no-task-update", false, "Leave the linked task status unchanged")

	return cmd
}

func newPRApproveCmd() *cobra.Command {
	var taskFlag string

	cmd := &cobra.Command{
		Use:   "approve [session]",
		Short: "Approve the change proposal for a session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, func(s *store.Store) error {
				e := newEngine(s)
				session, err := resolveSessionArg(ctx, e, args, taskFlag)
				if err != nil {
					return err
				}
				if _, err := e.Approve(ctx, session); err != nil {
					return err
				}
				fmt.Printf("Approved proposal for session %s\n", session)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&taskFlag, "task", "t", "", "Address the session by its task ID")

	return cmd
}

func newPRMergeCmd() *cobra.Command {
	var taskFlag string

	cmd := &cobra.Command{
		Use:   "merge [session]",
		Short: "Merge an approved change proposal",
		Long: "Merge the session's change proposal. The merge is refused unless the\n" +
			"proposal exists and its recorded approval is the boolean true.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, func(s *store.Store) error {
				e := newEngine(s)
				session, err := resolveSessionArg(ctx, e, args, taskFlag)
				if err != nil {
					return err
				}
				rec, err := e.Merge(ctx, session)
				if err != nil {
					return err
				}
				if rec.PRState != nil && rec.PRState.CommitHash != "" {
					fmt.Printf("Merged proposal for session %s at %s\n", session, rec.PRState.CommitHash)
				} else {
					fmt.Printf("Merged proposal for session %s\n", session)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&taskFlag, "task", "t", "", "Address the session by its task ID")

	return cmd
}

func newPRDiffCmd() *cobra.Command {
	var taskFlag string

	cmd := &cobra.Command{
		Use:   "diff [session]",
		Short: "Show the change proposal diff",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, func(s *store.Store) error {
				e := newEngine(s)
				session, err := resolveSessionArg(ctx, e, args, taskFlag)
				if err != nil {
					return err
				}
				diff, err := e.Diff(ctx, session)
				if err != nil {
					return err
				}
				fmt.Print(diff)
				if len(diff) > 0 && diff[len(diff)-1] != '\n' {
					fmt.Println()
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&taskFlag, "task", "t", "", "Address the session by its task ID")

	return cmd
}

func newPRStatusCmd() *cobra.Command {
	var taskFlag string

	cmd := &cobra.Command{
		Use:   "status [session]",
		Short: "Show the backend view of the change proposal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, func(s *store.Store) error {
				e := newEngine(s)
				session, err := resolveSessionArg(ctx, e, args, taskFlag)
				if err != nil {
					return err
				}
				st, err := e.Status(ctx, session)
				if err != nil {
					return err
				}
				fmt.Printf("Session:  %s\n", session)
				fmt.Printf("Branch:   %s\n", st.Branch)
				fmt.Printf("Exists:   %t\n", st.Exists)
				fmt.Printf("Merged:   %t\n", st.Merged)
				if st.Number != 0 {
					fmt.Printf("Number:   %d\n", st.Number)
				}
				if st.State != "" {
					fmt.Printf("State:    %s\n", st.State)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&taskFlag, "task", "t", "", "Address the session by its task ID")

	return cmd
}
