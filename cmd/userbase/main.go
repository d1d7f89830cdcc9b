// Command userbase runs schema migrations and manages user accounts.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/stokaro/userbase/cmd/internal/app"
	"github.com/stokaro/userbase/cmd/migrate"
	"github.com/stokaro/userbase/cmd/user"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "userbase",
		Short:        "Versioned schema migrations and user account storage",
		SilenceUsage: true,
	}

	opts := app.Register(rootCmd)
	rootCmd.AddCommand(migrate.NewMigrateCommand(opts))
	rootCmd.AddCommand(user.NewUserCommand(opts))
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
