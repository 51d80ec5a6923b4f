// Package publisher opens review requests for pushed changesets.
package publisher

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/metrics"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/vcs"
)

// State is the terminal state of one publish attempt
type State string

const (
	StateOpen       State = "OPEN"
	StateDegraded   State = "DEGRADED"
	StateRetryLater State = "RETRY_LATER"
	StateFailed     State = "FAILED"
)

// Accepted reports whether the submitted work is durably stored and reachable by a human
func (s State) Accepted() bool {
	return s == StateOpen || s == StateDegraded || s == StateRetryLater
}

const (
	degradedWarning   = "The changes were pushed but the pull request could not be opened automatically. Please open it manually using the link."
	retryLaterMessage = "GitHub API rate limit reached while opening the pull request. Your changes were pushed; open it manually using the link or try again later."
	failedMessage     = "Failed to open the pull request"
)

// Request is what to publish
type Request struct {
	Branch string
	Title  string
	Body   string
}

// Outcome is the result of Publish. Every outcome except OPEN carries a ManualURL.
type Outcome struct {
	State     State
	Review    *models.ReviewRequest
	ManualURL string
	Warning   string
	Message   string
	Err       error
}

// Publisher opens review requests against the base branch
type Publisher struct {
	host vcs.Hosting
	base string
	log  zerolog.Logger
}

// NewPublisher creates a publisher
func NewPublisher(host vcs.Hosting, baseBranch string, log zerolog.Logger) *Publisher {
	return &Publisher{
		host: host,
		base: baseBranch,
		log:  log.With().Str("component", "publisher").Logger(),
	}
}

// Publish attempts to open a review request for an already pushed branch.
// The branch is never deleted, whatever the outcome.
func (p *Publisher) Publish(ctx context.Context, req Request) Outcome {
	manual := p.host.CompareURL(p.base, req.Branch)
	log := p.log.With().Str("branch", req.Branch).Logger()

	review, err := p.host.OpenPullRequest(ctx, vcs.NewPullRequest{
		Title: req.Title,
		Body:  req.Body,
		Head:  req.Branch,
		Base:  p.base,
	})

	var out Outcome
	switch kind := vcs.KindOf(err); {
	case err == nil:
		out = Outcome{State: StateOpen, Review: review}
		log.Info().Int("number", review.Number).Str("url", review.URL).Msg("Pull request opened")
	case kind == vcs.KindPermission, kind == vcs.KindValidation, kind == vcs.KindTransient:
		out = Outcome{State: StateDegraded, ManualURL: manual, Warning: degradedWarning, Err: err}
		log.Warn().Err(err).Str("manual_url", manual).Msg("Pull request creation rejected, returning manual link")
	case kind == vcs.KindRateLimited:
		out = Outcome{State: StateRetryLater, ManualURL: manual, Message: retryLaterMessage, Err: err}
		log.Warn().Err(err).Msg("Hosting API throttled pull request creation")
	default:
		out = Outcome{State: StateFailed, ManualURL: manual, Message: failedMessage, Err: err}
		log.Error().Err(err).Msg("Pull request creation failed, branch left in place")
	}

	metrics.PublishOutcomes.WithLabelValues(string(out.State)).Inc()
	return out
}

// PartsTitle is the review request title for a set of records
func PartsTitle(parts []models.PartRecord) string {
	if len(parts) == 1 {
		return "Add Part: " + parts[0].Title
	}
	return fmt.Sprintf("Add %d Parts", len(parts))
}

// PartsBody summarizes every record with its title and source link
func PartsBody(parts []models.PartRecord, files []string) string {
	var b strings.Builder
	if len(parts) == 1 {
		b.WriteString("Auto-submitted part.\n\n")
	} else {
		fmt.Fprintf(&b, "Auto-submitted batch of %d parts.\n\n", len(parts))
	}
	for i, part := range parts {
		fmt.Fprintf(&b, "%d. **%s**\n", i+1, part.Title)
		fmt.Fprintf(&b, "   Original URL: %s\n", part.ExternalURL)
		if len(part.Platform) > 0 {
			fmt.Fprintf(&b, "   Platform: %s\n", strings.Join(part.Platform, ", "))
		}
		if len(part.TypeOfPart) > 0 {
			fmt.Fprintf(&b, "   Type: %s\n", strings.Join(part.TypeOfPart, ", "))
		}
	}
	if len(files) > 0 {
		b.WriteString("\nFiles:\n")
		for _, f := range files {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
	}
	return b.String()
}

// BatchBody summarizes an admin batch action
func BatchBody(deleted []string, categories []string) string {
	var b strings.Builder
	b.WriteString("Admin batch update.\n")
	if len(deleted) > 0 {
		b.WriteString("\nRemoved records:\n")
		for _, d := range deleted {
			fmt.Fprintf(&b, "- `%s`\n", d)
		}
	}
	if categories != nil {
		fmt.Fprintf(&b, "\nCategory vocabulary replaced (%d entries):\n", len(categories))
		for _, c := range categories {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	return b.String()
}
