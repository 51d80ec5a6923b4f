package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/config"
)

const pingTimeout = 5 * time.Second

// DB is the postgres pool backing the rate-limit store
type DB struct {
	*sql.DB
	log zerolog.Logger
}

// New opens the pool and fails fast when postgres is unreachable
func New(cfg *config.DatabaseConfig, log zerolog.Logger) (*DB, error) {
	pool, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("open rate-limit store: %w", err)
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(cfg.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping rate-limit store at %s:%s: %w", cfg.Host, cfg.Port, err)
	}

	db := &DB{DB: pool, log: log.With().Str("component", "database").Logger()}
	db.log.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Name).
		Int("max_open_conns", cfg.MaxOpenConns).
		Msg("Rate-limit store connection established")
	return db, nil
}

// MigrationStep selects how Migrate moves the schema
type MigrationStep struct {
	// Down rolls back one migration; otherwise the schema moves up
	Down bool
	// Version pins an exact target version when non-zero
	Version uint
}

// Migrate applies migrations from migrationsPath. The zero step applies everything pending.
func (db *DB) Migrate(migrationsPath string, step MigrationStep) error {
	m, err := db.migrator(migrationsPath)
	if err != nil {
		return err
	}

	switch {
	case step.Version > 0:
		db.log.Info().Uint("version", step.Version).Msg("Migrating to version")
		err = m.Migrate(step.Version)
	case step.Down:
		db.log.Info().Msg("Rolling back last migration")
		err = m.Steps(-1)
	default:
		db.log.Info().Str("path", migrationsPath).Msg("Applying pending migrations")
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate rate-limit schema: %w", err)
	}

	version, dirty, err := db.version(m)
	if err != nil {
		return err
	}
	db.log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Schema at version")
	return nil
}

// MigrationVersion reports the applied schema version; 0 means no migration has run
func (db *DB) MigrationVersion(migrationsPath string) (uint, bool, error) {
	m, err := db.migrator(migrationsPath)
	if err != nil {
		return 0, false, err
	}
	return db.version(m)
}

func (db *DB) version(m *migrate.Migrate) (uint, bool, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

func (db *DB) migrator(migrationsPath string) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("load migrations from %s: %w", migrationsPath, err)
	}
	return m, nil
}
