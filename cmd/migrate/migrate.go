package migrate

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/userbase/cmd/internal/app"
	"github.com/stokaro/userbase/migration/generator"
	"github.com/stokaro/userbase/migration/migrator"
)

const (
	targetFlag    = "target"
	stepsFlag     = "steps"
	nameFlag      = "name"
	outputDirFlag = "output-dir"
)

func upFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		targetFlag: &cobraflags.StringFlag{
			Name:  targetFlag,
			Value: "",
			Usage: "Apply migrations up to and including this version (default: all)",
		},
	}
}

func downFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		stepsFlag: &cobraflags.StringFlag{
			Name:  stepsFlag,
			Value: "1",
			Usage: "Number of most recent migrations to revert",
		},
	}
}

func newFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		nameFlag: &cobraflags.StringFlag{
			Name:  nameFlag,
			Value: "",
			Usage: "Name for the migration (required)",
		},
		outputDirFlag: &cobraflags.StringFlag{
			Name:  outputDirFlag,
			Value: "./migrations",
			Usage: "Directory where migration files will be saved",
		},
	}
}

func NewMigrateCommand(opts *app.Options) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, revert and inspect schema migrations",
		Long: `Apply, revert and inspect schema migrations.

Without --migrations-dir the bundled users schema for the database dialect is used.

Examples:
  userbase migrate up --db-url sqlite://app.db
  userbase migrate up --target 20250601120000
  userbase migrate down --steps 2
  userbase migrate status
  userbase migrate new --name add_user_avatars`,
	}

	migrateCmd.AddCommand(newUpCommand(opts))
	migrateCmd.AddCommand(newDownCommand(opts))
	migrateCmd.AddCommand(newStatusCommand(opts))
	migrateCmd.AddCommand(newNewCommand())
	migrateCmd.AddCommand(newUnlockCommand(opts))
	return migrateCmd
}

func newUpCommand(opts *app.Options) *cobra.Command {
	flags := upFlags()
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations in ascending version order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var target *int64
			if raw := flags[targetFlag].GetString(); raw != "" {
				v, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid --%s %q: %w", targetFlag, raw, err)
				}
				target = &v
			}
			return withMigrator(cmd, opts, func(ctx runContext) error {
				result, err := ctx.migrator.Up(ctx, target)
				printResult(cmd.OutOrStdout(), result, err)
				return err
			})
		},
	}

	cobraflags.RegisterMap(upCmd, flags)
	return upCmd
}

func newDownCommand(opts *app.Options) *cobra.Command {
	flags := downFlags()
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Revert the most recently applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw := flags[stepsFlag].GetString()
			steps, err := strconv.Atoi(raw)
			if err != nil || steps < 1 {
				return fmt.Errorf("invalid --%s %q: must be a positive integer", stepsFlag, raw)
			}
			return withMigrator(cmd, opts, func(ctx runContext) error {
				result, err := ctx.migrator.Down(ctx, steps)
				printResult(cmd.OutOrStdout(), result, err)
				return err
			})
		},
	}

	cobraflags.RegisterMap(downCmd, flags)
	return downCmd
}

func newStatusCommand(opts *app.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied, pending and drifted migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, opts, func(ctx runContext) error {
				status, err := ctx.migrator.GetMigrationStatus(ctx)
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), status)
				return nil
			})
		},
	}
}

func newUnlockCommand(opts *app.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Release a runner lock left behind by a crashed process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, opts, func(ctx runContext) error {
				if err := ctx.migrator.Unlock(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Migration lock released")
				return nil
			})
		},
	}
}

func newNewCommand() *cobra.Command {
	flags := newFlags()
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Generate empty migration files for manual editing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			migrationName := flags[nameFlag].GetString()
			outputDir := flags[outputDirFlag].GetString()

			if migrationName == "" {
				return errors.New("migration name is required (use --name flag)")
			}

			files, err := generator.GenerateEmptyMigration(generator.GenerateEmptyMigrationOptions{
				MigrationName: migrationName,
				OutputDir:     outputDir,
			})
			if err != nil {
				return fmt.Errorf("error generating migration files: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated migration files:\n")
			fmt.Fprintf(out, "  UP:   %s\n", files.UpFile)
			fmt.Fprintf(out, "  DOWN: %s\n", files.DownFile)
			fmt.Fprintf(out, "  Version: %d\n", files.Version)
			return nil
		},
	}

	cobraflags.RegisterMap(newCmd, flags)
	return newCmd
}

// printResult reports what committed, which on failure is what ran before the
// failing migration.
func printResult(w io.Writer, result *migrator.Result, err error) {
	if result == nil {
		return
	}
	if result.Count() == 0 {
		if err == nil {
			fmt.Fprintln(w, "Nothing to do")
		}
		return
	}
	for _, v := range result.Versions {
		fmt.Fprintf(w, "%s %d\n", result.Direction, v)
	}
	fmt.Fprintf(w, "%d migration(s) %s\n", result.Count(), result.Direction)
}

func printStatus(w io.Writer, status *migrator.MigrationStatus) {
	fmt.Fprintf(w, "Current version: %d\n", status.CurrentVersion)
	fmt.Fprintf(w, "Total migrations: %d\n", status.TotalMigrations)
	fmt.Fprintf(w, "Applied: %d\n", len(status.AppliedMigrations))
	fmt.Fprintf(w, "Pending: %d\n", len(status.PendingMigrations))
	for _, v := range status.PendingMigrations {
		fmt.Fprintf(w, "  pending %d\n", v)
	}
	for _, v := range status.DriftedMigrations {
		fmt.Fprintf(w, "  drifted %d\n", v)
	}
}
