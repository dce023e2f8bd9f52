package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/tribunal/core"
	"github.com/trezcool/tribunal/storage/database"
)

var migrateFunc = migrate // mockable

func migrate(ctx context.Context, conf *core.Config, command string, args ...string) error {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return errors.Wrap(err, "creating database")
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return database.Migrate(ctx, db, command, args...)
}

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose command against the PostgreSQL store (up, down, status, version...)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrateFunc(cmd.Context(), cli.conf, args[0], args[1:]...)
		},
	}
}
