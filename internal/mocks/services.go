package mocks

import (
	"context"
	"sync"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/service"
)

// MockSubmissionService is a mock implementation of SubmissionService
type MockSubmissionService struct {
	mu         sync.Mutex
	SubmitFunc func(ctx context.Context, identity string, batch *models.SubmissionBatch) (*models.SubmissionResult, error)
	Identities []string
	Batches    []*models.SubmissionBatch
}

// Verify interface compliance
var _ service.SubmissionService = (*MockSubmissionService)(nil)

func NewMockSubmissionService() *MockSubmissionService {
	return &MockSubmissionService{}
}

func (m *MockSubmissionService) Submit(ctx context.Context, identity string, batch *models.SubmissionBatch) (*models.SubmissionResult, error) {
	m.mu.Lock()
	m.Identities = append(m.Identities, identity)
	m.Batches = append(m.Batches, batch)
	m.mu.Unlock()

	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, identity, batch)
	}
	return &models.SubmissionResult{Success: true, PRURL: "https://github.com/owner/repo/pull/1"}, nil
}

// MockAdminService is a mock implementation of AdminService
type MockAdminService struct {
	ListOpenFunc   func(ctx context.Context) ([]models.ReviewRequest, error)
	ContentFunc    func(ctx context.Context, number int) (*models.ReviewContent, error)
	MergeFunc      func(ctx context.Context, number int) error
	BatchFunc      func(ctx context.Context, action *models.BatchAction) (*models.BatchResult, error)
	DuplicatesFunc func(ctx context.Context) ([]models.DuplicateGroup, error)
	CategoriesFunc func(ctx context.Context) ([]string, error)

	Merged []int
}

// Verify interface compliance
var _ service.AdminService = (*MockAdminService)(nil)

func NewMockAdminService() *MockAdminService {
	return &MockAdminService{}
}

func (m *MockAdminService) ListOpen(ctx context.Context) ([]models.ReviewRequest, error) {
	if m.ListOpenFunc != nil {
		return m.ListOpenFunc(ctx)
	}
	return []models.ReviewRequest{}, nil
}

func (m *MockAdminService) Content(ctx context.Context, number int) (*models.ReviewContent, error) {
	if m.ContentFunc != nil {
		return m.ContentFunc(ctx, number)
	}
	return &models.ReviewContent{Number: number, Parts: []models.CatalogEntry{}, Files: []string{}}, nil
}

func (m *MockAdminService) Merge(ctx context.Context, number int) error {
	if m.MergeFunc != nil {
		return m.MergeFunc(ctx, number)
	}
	m.Merged = append(m.Merged, number)
	return nil
}

func (m *MockAdminService) Batch(ctx context.Context, action *models.BatchAction) (*models.BatchResult, error) {
	if m.BatchFunc != nil {
		return m.BatchFunc(ctx, action)
	}
	return &models.BatchResult{Merged: action.MergePRs}, nil
}

func (m *MockAdminService) Duplicates(ctx context.Context) ([]models.DuplicateGroup, error) {
	if m.DuplicatesFunc != nil {
		return m.DuplicatesFunc(ctx)
	}
	return []models.DuplicateGroup{}, nil
}

func (m *MockAdminService) Categories(ctx context.Context) ([]string, error) {
	if m.CategoriesFunc != nil {
		return m.CategoriesFunc(ctx)
	}
	return []string{}, nil
}

// MockResolverService is a mock implementation of ResolverService
type MockResolverService struct {
	ResolveFunc func(ctx context.Context, url string) models.MetadataResult
	URLs        []string
}

// Verify interface compliance
var _ service.ResolverService = (*MockResolverService)(nil)

func NewMockResolverService() *MockResolverService {
	return &MockResolverService{}
}

func (m *MockResolverService) Resolve(ctx context.Context, url string) models.MetadataResult {
	m.URLs = append(m.URLs, url)
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, url)
	}
	return models.MetadataResult{Success: true, Metadata: models.Metadata{Title: "Mock Part"}, Source: "html"}
}
