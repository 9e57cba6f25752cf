package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"devsess.io/cli/cmd/devsess/cli/logging"
	"devsess.io/cli/cmd/devsess/cli/settings"
)

const gettingStarted = `

Getting Started:
  Run 'devsess session create <name> <repo>' to register a task-scoped
  session, then 'devsess pr create <name>' to prepare its change proposal.

`

const accessibilityHelp = `
Environment Variables:
  ACCESSIBLE    Set to any value (e.g., ACCESSIBLE=1) to enable accessibility
                mode. This uses simpler text prompts instead of interactive
                TUI elements, which works better with screen readers.
`

// Version information (can be set at build time)
var (
	Version = "dev"
	Commit  = "unknown"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devsess",
		Short: "Task-scoped development session manager",
		Long:  "Manage task-scoped development sessions and their change proposals" + gettingStarted + accessibilityHelp,
		// Let main.go handle error printing to avoid duplication
		SilenceErrors: true,
		SilenceUsage:  true,
		// Hide completion command from help but keep it functional
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logging.SetLogLevelGetter(func() string {
				cfg, err := settings.Load()
				if err != nil {
					return ""
				}
				return cfg.LogLevel
			})
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			logging.Close()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newSessionCmd())
	cmd.AddCommand(newPRCmd())
	cmd.AddCommand(newChangesetCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newRepoCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("devsess %s (%s)\n", Version, Commit)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
