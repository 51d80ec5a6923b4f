package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/database"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/errs"
)

// SQLiteRateLimitRepo stores rate-limit entries in sqlite through gorm
type SQLiteRateLimitRepo struct {
	db *gorm.DB
}

var _ RateLimitRepository = (*SQLiteRateLimitRepo)(nil)

// NewSQLiteRateLimitRepo creates a sqlite-backed rate-limit repository
func NewSQLiteRateLimitRepo(db *gorm.DB) *SQLiteRateLimitRepo {
	return &SQLiteRateLimitRepo{db: db}
}

func (r *SQLiteRateLimitRepo) LastAccepted(ctx context.Context, identity string) (time.Time, bool, error) {
	key := strings.TrimSpace(identity)
	if key == "" {
		return time.Time{}, false, errors.New("identity is required")
	}

	var row database.RateLimitRow
	if err := r.db.WithContext(ctx).Where("identity = ?", key).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, errs.Wrap(err, "query rate limit by identity")
	}
	return row.LastAccepted, true, nil
}

func (r *SQLiteRateLimitRepo) SetLastAccepted(ctx context.Context, identity string, at time.Time) error {
	key := strings.TrimSpace(identity)
	if key == "" {
		return errors.New("identity is required")
	}

	row := database.RateLimitRow{
		Identity:     key,
		LastAccepted: at.UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "identity"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_accepted": row.LastAccepted,
			"updated_at":    row.UpdatedAt,
		}),
	}).Create(&row).Error
	return errs.Wrap(err, "upsert rate limit entry")
}

func (r *SQLiteRateLimitRepo) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("last_accepted < ?", olderThan.UTC()).Delete(&database.RateLimitRow{})
	if result.Error != nil {
		return 0, errs.Wrap(result.Error, "prune rate limit entries")
	}
	return result.RowsAffected, nil
}
