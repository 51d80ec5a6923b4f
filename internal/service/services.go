package service

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/catalog"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/changeset"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/config"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/publisher"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/ratelimit"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/repository"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/resolver"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/validation"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/vcs"
)

// SubmissionService runs the submitter-facing pipeline
type SubmissionService interface {
	Submit(ctx context.Context, identity string, batch *models.SubmissionBatch) (*models.SubmissionResult, error)
}

// AdminService backs the admin review console
type AdminService interface {
	ListOpen(ctx context.Context) ([]models.ReviewRequest, error)
	Content(ctx context.Context, number int) (*models.ReviewContent, error)
	Merge(ctx context.Context, number int) error
	Batch(ctx context.Context, action *models.BatchAction) (*models.BatchResult, error)
	Duplicates(ctx context.Context) ([]models.DuplicateGroup, error)
	Categories(ctx context.Context) ([]string, error)
}

// ResolverService resolves source URLs into part metadata
type ResolverService interface {
	Resolve(ctx context.Context, url string) models.MetadataResult
}

// Services holds all service interfaces
type Services struct {
	Submission SubmissionService
	Admin      AdminService
	Resolver   ResolverService
}

// NewServices creates all services on top of one hosting client and the rate-limit store
func NewServices(host vcs.Hosting, repos *repository.Repositories, cfg *config.Config, log zerolog.Logger) (*Services, error) {
	reader, err := catalog.NewReader(host, cfg.Content, log)
	if err != nil {
		return nil, err
	}

	builder := changeset.NewBuilder(host, reader, cfg.GitHub.BaseBranch, log)
	pub := publisher.NewPublisher(host, cfg.GitHub.BaseBranch, log)
	limiter := ratelimit.NewLimiter(repos.RateLimit, cfg.RateLimit, log)
	validator := validation.NewValidator(cfg.Submission)
	categories := &categorySource{reader: reader, base: cfg.GitHub.BaseBranch, fallback: cfg.Submission.KnownCategories}

	return &Services{
		Submission: newSubmissionService(validator, categories, limiter, builder, pub, cfg.Server.SubmitTimeout, log),
		Admin:      newAdminService(host, reader, builder, pub, cfg.GitHub.BaseBranch, categories, log),
		Resolver:   resolver.NewResolver(cfg.Resolver, &http.Client{}, log),
	}, nil
}
