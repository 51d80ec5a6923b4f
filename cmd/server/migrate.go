package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/config"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/database"
)

var errSQLiteMigrations = errors.New("the sqlite store manages its own schema; migrations apply to postgres only")

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres rate-limit schema",
	}

	cmd.AddCommand(
		migrateStepCmd("up", "Apply all pending migrations", nil),
		migrateStepCmd("down", "Roll back the last migration", func([]string) (database.MigrationStep, error) {
			return database.MigrationStep{Down: true}, nil
		}),
		migrateStepCmd("goto VERSION", "Migrate to a specific version", func(args []string) (database.MigrationStep, error) {
			if len(args) != 1 {
				return database.MigrationStep{}, errors.New("goto takes exactly one version")
			}
			v, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil || v == 0 {
				return database.MigrationStep{}, fmt.Errorf("invalid version %q", args[0])
			}
			return database.MigrationStep{Version: uint(v)}, nil
		}),
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			RunE: withApp(func(cmd *cobra.Command, a *app) error {
				return withPostgres(a, func(db *database.DB) error {
					version, dirty, err := db.MigrationVersion(a.cfg.Store.MigrationsPath)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%v)\n", version, dirty)
					return nil
				})
			}),
		},
	)
	return cmd
}

func migrateStepCmd(use, short string, parse func(args []string) (database.MigrationStep, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			var step database.MigrationStep
			if parse != nil {
				var err error
				if step, err = parse(cmd.Flags().Args()); err != nil {
					return err
				}
			}
			return withPostgres(a, func(db *database.DB) error {
				return db.Migrate(a.cfg.Store.MigrationsPath, step)
			})
		}),
	}
}

func withPostgres(a *app, fn func(db *database.DB) error) error {
	if a.cfg.Store.Driver == config.StoreDriverSQLite {
		return errSQLiteMigrations
	}
	db, err := database.New(&a.cfg.Database, a.log)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}
