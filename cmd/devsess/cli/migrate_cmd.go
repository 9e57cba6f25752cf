package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"devsess.io/cli/cmd/devsess/cli/migrate"
	"devsess.io/cli/cmd/devsess/cli/paths"
)

func newMigrateCmd() *cobra.Command {
	var (
		dryRunFlag   bool
		backupFlag   bool
		rollbackFlag bool
		cleanupFlag  bool
		forceFlag    bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate sessions from the legacy per-repository layout",
		Long: "Move session workspaces from the legacy git/<repo>/sessions/<id> layout\n" +
			"to the flat sessions/<id> layout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			switch {
			case rollbackFlag:
				return runMigrateRollback(ctx, forceFlag)
			case cleanupFlag:
				return runMigrateCleanup(ctx, forceFlag)
			default:
				return runMigrate(ctx, dryRunFlag, backupFlag)
			}
		},
	}

	cmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Report what would be migrated without writing")
	cmd.Flags().BoolVar(&backupFlag, "backup", false, "Back up both layouts before migrating")
	cmd.Flags().BoolVar(&rollbackFlag, "rollback", false, "Restore the most recent migration backup")
	cmd.Flags().BoolVar(&cleanupFlag, "cleanup", false, "Remove the legacy layout after a successful migration")
	cmd.Flags().BoolVarP(&forceFlag, "force", "f", false, "Skip confirmation prompts")

	return cmd
}

func runMigrate(ctx context.Context, dryRun, backup bool) error {
	result, err := migrate.Run(ctx, migrate.Options{
		BaseDir: paths.BaseDir(),
		DryRun:  dryRun,
		Backup:  backup,
	})
	if err != nil {
		return err
	}

	if result.TotalProcessed == 0 {
		fmt.Println("No legacy sessions found.")
		return nil
	}

	verb := "Migrated"
	if dryRun {
		verb = "Would migrate"
	}
	for _, id := range result.MigratedSessions {
		fmt.Printf("%s session %s\n", verb, id)
	}
	for _, f := range result.FailedSessions {
		fmt.Printf("Failed to migrate session %s: %s\n", f.ID, f.Error)
	}
	if result.BackupPath != "" {
		fmt.Printf("Backup written to %s\n", result.BackupPath)
	}

	if !result.Success {
		return NewSilentError(fmt.Errorf("%d of %d sessions failed to migrate",
			len(result.FailedSessions), result.TotalProcessed))
	}
	fmt.Printf("%s %d of %d sessions\n", verb, len(result.MigratedSessions), result.TotalProcessed)
	return nil
}

func runMigrateRollback(ctx context.Context, force bool) error {
	base := paths.BaseDir()
	backupDir, err := migrate.FindLatestBackup(base)
	if err != nil {
		if errors.Is(err, migrate.ErrNothingToRollback) {
			fmt.Println("No migration backups found.")
			return nil
		}
		return err
	}

	if !force {
		confirmed, err := confirm("Roll back the last migration?",
			fmt.Sprintf("Both layouts will be restored from %s.", backupDir))
		if err != nil {
			return fmt.Errorf("failed to get confirmation: %w", err)
		}
		if !confirmed {
			return nil
		}
	}

	if err := migrate.Rollback(ctx, backupDir); err != nil {
		return err
	}
	fmt.Printf("Restored from %s\n", backupDir)
	return nil
}

func runMigrateCleanup(ctx context.Context, force bool) error {
	if !force {
		confirmed, err := confirm("Remove the legacy session layout?",
			"The git/<repo>/sessions tree will be deleted. Run this only after a verified migration.")
		if err != nil {
			return fmt.Errorf("failed to get confirmation: %w", err)
		}
		if !confirmed {
			return nil
		}
	}

	if err := migrate.Cleanup(ctx, paths.BaseDir()); err != nil {
		return err
	}
	fmt.Println("Legacy layout removed.")
	return nil
}
