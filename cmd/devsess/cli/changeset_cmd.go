package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"devsess.io/cli/cmd/devsess/cli/changeset"
	"devsess.io/cli/cmd/devsess/cli/jsonutil"
	"devsess.io/cli/cmd/devsess/cli/store"
)

func newChangesetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "changeset",
		Aliases: []string{"cs"},
		Short:   "Platform-agnostic changeset views",
		Long: "Inspect change proposals through the uniform changeset projection,\n" +
			"regardless of whether they live on a forge or in local pr/* branches",
	}

	cmd.AddCommand(newChangesetListCmd())
	cmd.AddCommand(newChangesetShowCmd())
	cmd.AddCommand(newChangesetSearchCmd())

	return cmd
}

// adapterForSession resolves the session record and builds the changeset
// adapter its repository URL selects.
func adapterForSession(ctx context.Context, s *store.Store, session string) (changeset.Adapter, error) {
	rec, ok := s.Get(ctx, session)
	if !ok {
		return nil, fmt.Errorf("session not found: %s", session)
	}
	return changeset.ForURL(rec.RepoURL, s.RepoPath(rec)), nil
}

func newChangesetListCmd() *cobra.Command {
	var (
		statusFlag string
		authorFlag string
		targetFlag string
		jsonFlag   bool
	)

	cmd := &cobra.Command{
		Use:   "list <session>",
		Short: "List changesets for a session's repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, func(s *store.Store) error {
				a, err := adapterForSession(ctx, s, args[0])
				if err != nil {
					return err
				}
				list, err := a.List(ctx, changeset.ListFilter{
					Status:       changeset.Status(statusFlag),
					Author:       authorFlag,
					TargetBranch: targetFlag,
				})
				if err != nil {
					return err
				}
				return printChangesets(list, jsonFlag)
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Only changesets with this status (open, merged, closed, draft)")
	cmd.Flags().StringVar(&authorFlag, "author", "", "Only changesets by this author")
	cmd.Flags().StringVar(&targetFlag, "target", "", "Only changesets against this target branch")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Output as JSON")

	return cmd
}

func newChangesetShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session> <id>",
		Short: "Show one changeset with commits, reviews, and comments",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, func(s *store.Store) error {
				a, err := adapterForSession(ctx, s, args[0])
				if err != nil {
					return err
				}
				cs, err := a.GetDetails(ctx, args[1])
				if err != nil {
					return err
				}
				data, err := jsonutil.MarshalIndentWithNewline(cs, "", "  ")
				if err != nil {
					return err
				}
				fmt.Print(string(data))
				return nil
			})
		},
	}
}

func newChangesetSearchCmd() *cobra.Command {
	var (
		scopeFlag string
		jsonFlag  bool
	)

	cmd := &cobra.Command{
		Use:   "search <session> <query>",
		Short: "Search changesets by text",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, func(s *store.Store) error {
				a, err := adapterForSession(ctx, s, args[0])
				if err != nil {
					return err
				}
				hits, err := a.Search(ctx, args[1], changeset.SearchScope(scopeFlag))
				if err != nil {
					return err
				}
				return printChangesets(hits, jsonFlag)
			})
		},
	}

	cmd.Flags().StringVar(&scopeFlag, "scope", string(changeset.ScopeAll), "Search scope (title, body, comments, all)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Output as JSON")

	return cmd
}

func printChangesets(list []changeset.Changeset, asJSON bool) error {
	if asJSON {
		data, err := jsonutil.MarshalIndentWithNewline(list, "", "  ")
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	}

	if len(list) == 0 {
		fmt.Println("No changesets found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPLATFORM\tSTATUS\tTARGET\tAUTHOR\tTITLE")
	for _, c := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.Platform, c.Status, c.TargetBranch, c.Author.Username, c.Title)
	}
	return w.Flush()
}
