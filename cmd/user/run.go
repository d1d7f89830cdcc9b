package user

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/stokaro/userbase/cmd/internal/app"
	"github.com/stokaro/userbase/users"
)

type runContext struct {
	context.Context
	repo *users.Repository
}

func withRepository(cmd *cobra.Command, opts *app.Options, fn func(runContext) error) error {
	env, err := opts.Open(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := env.Context(cmd.Context())
	defer cancel()

	return fn(runContext{Context: ctx, repo: users.NewRepository(env.Conn).WithLogger(env.Logger)})
}
