package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/database"
)

// rateLimitRepo is the postgres implementation of RateLimitRepository
type rateLimitRepo struct {
	db *database.DB
}

// NewRateLimitRepo creates a postgres-backed rate-limit repository
func NewRateLimitRepo(db *database.DB) RateLimitRepository {
	return &rateLimitRepo{db: db}
}

// LastAccepted retrieves the last accepted submission time for identity
func (r *rateLimitRepo) LastAccepted(ctx context.Context, identity string) (time.Time, bool, error) {
	query := `SELECT last_accepted FROM rate_limits WHERE identity = $1`

	var at time.Time
	err := r.db.QueryRowContext(ctx, query, identity).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

// SetLastAccepted upserts the last accepted submission time for identity
func (r *rateLimitRepo) SetLastAccepted(ctx context.Context, identity string, at time.Time) error {
	query := `
		INSERT INTO rate_limits (identity, last_accepted, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (identity) DO UPDATE SET last_accepted = EXCLUDED.last_accepted, updated_at = now()
	`
	_, err := r.db.ExecContext(ctx, query, identity, at.UTC())
	return err
}

// Prune deletes stale entries
func (r *rateLimitRepo) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE last_accepted < $1`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
