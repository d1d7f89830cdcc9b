package migrate

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/stokaro/userbase/cmd/internal/app"
	"github.com/stokaro/userbase/migration/migrator"
)

type runContext struct {
	context.Context
	migrator *migrator.Migrator
}

func withMigrator(cmd *cobra.Command, opts *app.Options, fn func(runContext) error) error {
	env, err := opts.Open(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	m, err := env.Migrator()
	if err != nil {
		return err
	}

	ctx, cancel := env.Context(cmd.Context())
	defer cancel()

	return fn(runContext{Context: ctx, migrator: m})
}
