package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// RateLimitRow is the gorm model of the sqlite rate-limit table
type RateLimitRow struct {
	Identity     string    `gorm:"primaryKey;column:identity"`
	LastAccepted time.Time `gorm:"column:last_accepted;not null;index"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

// TableName pins the table name shared with the postgres migration
func (RateLimitRow) TableName() string { return "rate_limits" }

// OpenSQLite opens (or creates) the sqlite rate-limit store and migrates its schema
func OpenSQLite(path string, log zerolog.Logger) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}

	if err := db.AutoMigrate(&RateLimitRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite store: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite rate-limit store ready")
	return db, nil
}
