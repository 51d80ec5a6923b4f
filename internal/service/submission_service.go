package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/changeset"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/errs"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/metrics"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/publisher"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/ratelimit"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/validation"
)

// submissionService is the concrete implementation of SubmissionService
type submissionService struct {
	validator  *validation.Validator
	categories *categorySource
	limiter    *ratelimit.Limiter
	builder    *changeset.Builder
	publisher  *publisher.Publisher
	timeout    time.Duration
	log        zerolog.Logger
}

// newSubmissionService creates a new SubmissionService
func newSubmissionService(
	validator *validation.Validator,
	categories *categorySource,
	limiter *ratelimit.Limiter,
	builder *changeset.Builder,
	pub *publisher.Publisher,
	timeout time.Duration,
	log zerolog.Logger,
) *submissionService {
	return &submissionService{
		validator:  validator,
		categories: categories,
		limiter:    limiter,
		builder:    builder,
		publisher:  pub,
		timeout:    timeout,
		log:        log.With().Str("service", "submission").Logger(),
	}
}

// Submit validates, throttles, stages and publishes one batch.
// For RETRY_LATER and FAILED outcomes both a result (manual link, branch) and an error are returned.
func (s *submissionService) Submit(ctx context.Context, identity string, batch *models.SubmissionBatch) (*models.SubmissionResult, error) {
	timer := metrics.NewTimer()
	log := s.log.With().Str("identity", identity).Logger()

	// the typeOfPart vocabulary is whatever the admin last merged into the base branch
	var categories []string
	if !validation.HasHoneypot(batch) {
		var err error
		if categories, err = s.categories.Load(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to read category vocabulary")
			metrics.RecordSubmission("rejected", 0, timer.Duration())
			return nil, hostingError("read categories", err)
		}
	}

	if err := s.validator.ValidateBatchWith(batch, categories); err != nil {
		if errors.Is(err, validation.ErrBotDetected) {
			log.Warn().Msg("Honeypot field filled, absorbing submission")
			metrics.RecordSubmission("bot", 0, timer.Duration())
			return &models.SubmissionResult{Success: true}, nil
		}
		log.Info().Err(err).Msg("Submission rejected by validation")
		metrics.RecordSubmission("invalid", 0, timer.Duration())
		return nil, errs.E(errs.KindInvalid, err.Error(), err)
	}

	decision, release, err := s.limiter.Claim(ctx, identity)
	if err != nil {
		metrics.RecordSubmission("rejected", 0, timer.Duration())
		return nil, err
	}
	if !decision.Allowed {
		metrics.RecordSubmission("rate_limited", 0, timer.Duration())
		return nil, ratelimit.DeniedError(decision)
	}
	defer release()

	buildCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	staged, parts, err := s.builder.StageParts(buildCtx, batch.Parts)
	if err != nil {
		metrics.RecordSubmission("build_failed", 0, timer.Duration())
		return nil, err
	}

	// the branch exists now; finish publishing even if the caller went away
	detached := context.WithoutCancel(ctx)
	out := s.publisher.Publish(detached, publisher.Request{
		Branch: staged.Branch,
		Title:  publisher.PartsTitle(parts),
		Body:   publisher.PartsBody(parts, staged.Files),
	})

	if out.State.Accepted() {
		if err := s.limiter.Record(detached, identity); err != nil {
			log.Error().Err(err).Msg("Failed to record accepted submission")
		}
	}
	metrics.RecordSubmission(string(out.State), len(parts), timer.Duration())

	log = log.With().Str("branch", staged.Branch).Str("state", string(out.State)).Logger()
	switch out.State {
	case publisher.StateOpen:
		log.Info().Str("pr_url", out.Review.URL).Int("parts", len(parts)).Msg("Submission published")
		return &models.SubmissionResult{Success: true, PRURL: out.Review.URL, Branch: staged.Branch}, nil
	case publisher.StateDegraded:
		log.Warn().Str("manual_url", out.ManualURL).Msg("Submission pushed without a pull request")
		return &models.SubmissionResult{Success: true, ManualURL: out.ManualURL, Warning: out.Warning, Branch: staged.Branch}, nil
	case publisher.StateRetryLater:
		return &models.SubmissionResult{ManualURL: out.ManualURL, Branch: staged.Branch},
			errs.E(errs.KindRateLimited, out.Message, out.Err)
	default:
		log.Error().Err(out.Err).Msg("Submission pushed but publishing failed")
		return &models.SubmissionResult{ManualURL: out.ManualURL, Branch: staged.Branch},
			errs.E(errs.KindUpstream, out.Message, out.Err)
	}
}
