package repository

import (
	"context"
	"time"
)

// RateLimitRepository is the durable key-value store holding the last accepted
// submission timestamp per submitter identity
type RateLimitRepository interface {
	// LastAccepted returns the stored timestamp and whether one exists
	LastAccepted(ctx context.Context, identity string) (time.Time, bool, error)
	// SetLastAccepted creates or overwrites the timestamp for identity
	SetLastAccepted(ctx context.Context, identity string, at time.Time) error
	// Prune removes entries older than the cutoff and returns how many were removed
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// Repositories holds all repository interfaces
type Repositories struct {
	RateLimit RateLimitRepository
}
