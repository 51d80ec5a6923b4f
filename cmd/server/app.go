package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/config"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/database"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/repository"
	"github.com/Focerqc/CLONEpubparts.xyz/pkg/logger"
)

// app is the process-wide state shared by every subcommand
type app struct {
	cfg *config.Config
	log zerolog.Logger
}

func withApp(fn func(cmd *cobra.Command, a *app) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		log := logger.New(cfg.Log.Level, cfg.Log.Format)
		return fn(cmd, &app{cfg: cfg, log: log})
	}
}

// openStore connects the configured rate-limit store. Postgres is migrated on open;
// the sqlite schema is managed by gorm.
func (a *app) openStore(migrate bool) (*repository.Repositories, func(), error) {
	switch a.cfg.Store.Driver {
	case config.StoreDriverSQLite:
		db, err := database.OpenSQLite(a.cfg.Store.SQLitePath, a.log)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return &repository.Repositories{RateLimit: repository.NewSQLiteRateLimitRepo(db)}, closeFn, nil

	default:
		db, err := database.New(&a.cfg.Database, a.log)
		if err != nil {
			return nil, nil, err
		}
		if migrate {
			if err := db.Migrate(a.cfg.Store.MigrationsPath, database.MigrationStep{}); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		closeFn := func() { db.Close() }
		return &repository.Repositories{RateLimit: repository.NewRateLimitRepo(db)}, closeFn, nil
	}
}
