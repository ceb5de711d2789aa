package main

import (
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	appfs "github.com/trezcool/forma/fs"
)

var gooseRunFunc = goose.RunContext // mockable

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run the embedded database migrations",
		Long: `Run a goose command against the embedded migrations.

Commands: up, up-by-one, up-to VERSION, down, down-to VERSION, redo, reset, status, version, fix.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cli.db == nil {
				return errNoDatabase
			}
			goose.SetBaseFS(appfs.FS)
			if err := goose.SetDialect("postgres"); err != nil {
				return err
			}
			return gooseRunFunc(cmd.Context(), args[0], cli.db, "migrations", args[1:]...)
		},
	}
}
