package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/repository"
)

// MockRateLimitRepository is a mock implementation of RateLimitRepository
type MockRateLimitRepository struct {
	mu      sync.Mutex
	Entries map[string]time.Time

	LastAcceptedFunc func(ctx context.Context, identity string) (time.Time, bool, error)
	SetError         error
	SetCalls         int
}

// Verify interface compliance
var _ repository.RateLimitRepository = (*MockRateLimitRepository)(nil)

func NewMockRateLimitRepository() *MockRateLimitRepository {
	return &MockRateLimitRepository{
		Entries: make(map[string]time.Time),
	}
}

func (m *MockRateLimitRepository) LastAccepted(ctx context.Context, identity string) (time.Time, bool, error) {
	if m.LastAcceptedFunc != nil {
		return m.LastAcceptedFunc(ctx, identity)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.Entries[identity]
	return at, ok, nil
}

func (m *MockRateLimitRepository) SetLastAccepted(ctx context.Context, identity string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetCalls++
	if m.SetError != nil {
		return m.SetError
	}
	m.Entries[identity] = at
	return nil
}

func (m *MockRateLimitRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for identity, at := range m.Entries {
		if at.Before(olderThan) {
			delete(m.Entries, identity)
			removed++
		}
	}
	return removed, nil
}

// Has reports whether identity has a stored timestamp
func (m *MockRateLimitRepository) Has(identity string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Entries[identity]
	return ok
}
