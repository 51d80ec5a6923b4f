package service

import (
	"context"
	"fmt"
	"path"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/audit"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/catalog"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/changeset"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/config"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/errs"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/metrics"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/publisher"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/vcs"
)

const batchTitle = "Admin batch update"

// adminService is the concrete implementation of AdminService
type adminService struct {
	host       vcs.Hosting
	reader     *catalog.Reader
	builder    *changeset.Builder
	publisher  *publisher.Publisher
	base       string
	categories *categorySource
	log        zerolog.Logger
}

// newAdminService creates a new AdminService
func newAdminService(
	host vcs.Hosting,
	reader *catalog.Reader,
	builder *changeset.Builder,
	pub *publisher.Publisher,
	base string,
	categories *categorySource,
	log zerolog.Logger,
) *adminService {
	return &adminService{
		host:       host,
		reader:     reader,
		builder:    builder,
		publisher:  pub,
		base:       base,
		categories: categories,
		log:        log.With().Str("service", "admin").Logger(),
	}
}

// ListOpen returns the open review requests against the base branch
func (s *adminService) ListOpen(ctx context.Context) ([]models.ReviewRequest, error) {
	prs, err := s.host.ListOpenPullRequests(ctx, s.base)
	metrics.RecordAdminAction("list", err)
	if err != nil {
		return nil, hostingError("list pull requests", err)
	}
	if prs == nil {
		prs = []models.ReviewRequest{}
	}
	return prs, nil
}

// Content parses the records a review request proposes at its head commit
func (s *adminService) Content(ctx context.Context, number int) (*models.ReviewContent, error) {
	pr, err := s.host.GetPullRequest(ctx, number)
	if err != nil {
		metrics.RecordAdminAction("content", err)
		return nil, hostingError(fmt.Sprintf("load pull request #%d", number), err)
	}
	files, err := s.host.PullRequestFiles(ctx, number)
	if err != nil {
		metrics.RecordAdminAction("content", err)
		return nil, hostingError(fmt.Sprintf("list files of pull request #%d", number), err)
	}

	head := pr.HeadSHA
	if head == "" {
		head = pr.Branch
	}

	out := &models.ReviewContent{Number: number, Parts: []models.CatalogEntry{}, Files: []string{}}
	cfg := s.reader.Config()
	naming := s.reader.Naming()

	for _, f := range files {
		out.Files = append(out.Files, f.Path)

		if s.reader.Strategy() == config.StrategyArray {
			if f.Path != cfg.CatalogFile || f.Status == "removed" {
				continue
			}
			added, removed, err := s.arrayDiff(ctx, head)
			if err != nil {
				metrics.RecordAdminAction("content", err)
				return nil, hostingError("read catalog content", err)
			}
			out.Parts = append(out.Parts, added...)
			out.Removed = append(out.Removed, removed...)
			continue
		}

		name := path.Base(f.Path)
		if !naming.Matches(name) || naming.PathOf(name) != f.Path {
			continue
		}
		if f.Status == "removed" {
			out.Removed = append(out.Removed, name)
			continue
		}
		file, err := s.host.GetFile(ctx, f.Path, head)
		if err != nil {
			metrics.RecordAdminAction("content", err)
			return nil, hostingError("read "+f.Path, err)
		}
		part, err := catalog.ParsePart(file.Content)
		if err != nil {
			s.log.Warn().Err(err).Str("path", f.Path).Int("number", number).Msg("Skipping unparseable record in preview")
			continue
		}
		out.Parts = append(out.Parts, models.CatalogEntry{ID: name, Path: f.Path, Part: part})
	}

	metrics.RecordAdminAction("content", nil)
	return out, nil
}

// arrayDiff compares the catalog array at head against the base branch.
// Records are matched by their encoded form so reordering is not reported as a change.
func (s *adminService) arrayDiff(ctx context.Context, head string) ([]models.CatalogEntry, []string, error) {
	catalogFile := s.reader.Config().CatalogFile
	headParts, err := s.readArray(ctx, head)
	if err != nil {
		return nil, nil, err
	}
	baseParts, err := s.readArray(ctx, s.base)
	if err != nil {
		return nil, nil, err
	}

	remaining := make(map[string]int, len(baseParts))
	for _, p := range baseParts {
		remaining[encodedKey(p)]++
	}

	var added []models.CatalogEntry
	for i, p := range headParts {
		key := encodedKey(p)
		if remaining[key] > 0 {
			remaining[key]--
			continue
		}
		added = append(added, models.CatalogEntry{ID: strconv.Itoa(i + 1), Path: catalogFile, Part: p})
	}

	var removed []string
	for _, p := range baseParts {
		key := encodedKey(p)
		if remaining[key] > 0 {
			remaining[key]--
			removed = append(removed, p.Title)
		}
	}
	return added, removed, nil
}

func (s *adminService) readArray(ctx context.Context, ref string) ([]models.PartRecord, error) {
	file, err := s.host.GetFile(ctx, s.reader.Config().CatalogFile, ref)
	if vcs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return catalog.ParseArray(file.Content, s.reader.Marker())
}

func encodedKey(p models.PartRecord) string {
	b, err := catalog.EncodePart(p)
	if err != nil {
		return p.Title + "\x00" + p.ExternalURL
	}
	return string(b)
}

// Merge squash-merges a review request into the base branch
func (s *adminService) Merge(ctx context.Context, number int) error {
	if number <= 0 {
		return errs.E(errs.KindInvalid, "pull_number must be a positive integer", nil)
	}
	err := s.host.MergePullRequest(ctx, number, "")
	metrics.RecordAdminAction("merge", err)
	if err != nil {
		s.log.Error().Err(err).Int("number", number).Msg("Merge failed")
		return hostingError(fmt.Sprintf("merge pull request #%d", number), err)
	}
	s.log.Info().Int("number", number).Msg("Pull request merged")
	return nil
}

// Batch merges the requested review requests one after another, then stages deletions and the
// vocabulary update as one changeset on the new base tip, opens a review request for it and merges it.
// When work was already done before a failure, the partial result is returned with the error.
func (s *adminService) Batch(ctx context.Context, action *models.BatchAction) (*models.BatchResult, error) {
	if action == nil || action.IsEmpty() {
		return nil, errs.E(errs.KindInvalid, "Nothing to do: provide mergePrs, deleteFiles or updateCategories", nil)
	}

	log := s.log.With().Ints("merge", action.MergePRs).Strs("delete", action.DeleteFiles).Logger()
	result := &models.BatchResult{Merged: []int{}}

	seen := make(map[int]bool)
	for _, n := range action.MergePRs {
		if seen[n] {
			continue
		}
		seen[n] = true
		if err := s.Merge(ctx, n); err != nil {
			if result.MergeErrors == nil {
				result.MergeErrors = make(map[int]string)
			}
			result.MergeErrors[n] = errs.Message(err)
			continue
		}
		result.Merged = append(result.Merged, n)
	}

	if len(action.DeleteFiles) == 0 && action.UpdateCategories == nil {
		metrics.RecordAdminAction("batch", nil)
		log.Info().Ints("merged", result.Merged).Msg("Admin batch finished")
		return result, nil
	}

	staged, err := s.builder.StageBatch(ctx, action.DeleteFiles, action.UpdateCategories)
	if err != nil {
		metrics.RecordAdminAction("batch", err)
		log.Error().Err(err).Msg("Admin batch staging failed")
		return result, err
	}
	result.Deleted = staged.Deleted
	result.NotFound = staged.NotFound
	result.CategoriesUpdated = staged.CategoriesUpdated

	if staged.Branch == "" {
		metrics.RecordAdminAction("batch", nil)
		log.Info().Strs("not_found", staged.NotFound).Msg("Admin batch had nothing to commit")
		return result, nil
	}
	result.Branch = staged.Branch

	var categories []string
	if staged.CategoriesUpdated {
		categories = action.UpdateCategories
	}
	detached := context.WithoutCancel(ctx)
	out := s.publisher.Publish(detached, publisher.Request{
		Branch: staged.Branch,
		Title:  batchTitle,
		Body:   publisher.BatchBody(staged.Deleted, categories),
	})

	if out.State != publisher.StateOpen {
		result.ManualURL = out.ManualURL
		result.Warning = out.Warning
		if result.Warning == "" {
			result.Warning = out.Message
		}
		metrics.RecordAdminAction("batch", out.Err)
		return result, nil
	}

	result.PRURL = out.Review.URL
	if err := s.host.MergePullRequest(detached, out.Review.Number, ""); err != nil {
		result.Warning = fmt.Sprintf("Batch pull request #%d was opened but could not be merged automatically: %s",
			out.Review.Number, errs.Message(hostingError("merge batch pull request", err)))
		log.Warn().Err(err).Int("number", out.Review.Number).Msg("Batch pull request left open")
	}

	metrics.RecordAdminAction("batch", nil)
	log.Info().Str("branch", staged.Branch).Ints("merged", result.Merged).Strs("deleted", result.Deleted).Msg("Admin batch finished")
	return result, nil
}

// Duplicates audits the catalog at the base branch
func (s *adminService) Duplicates(ctx context.Context) ([]models.DuplicateGroup, error) {
	entries, err := s.reader.Snapshot(ctx, s.base)
	metrics.RecordAdminAction("duplicates", err)
	if err != nil {
		return nil, hostingError("read catalog", err)
	}
	return audit.FindDuplicates(entries), nil
}

// Categories returns the vocabulary stored at the base branch
func (s *adminService) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.categories.Load(ctx)
	if err != nil {
		return nil, hostingError("read categories", err)
	}
	return categories, nil
}

// hostingError maps a hosting failure onto an error kind the transport layer understands
func hostingError(action string, err error) error {
	switch vcs.KindOf(err) {
	case vcs.KindNotFound:
		return errs.E(errs.KindNotFound, "Not found: "+action, err)
	case vcs.KindConflict, vcs.KindValidation:
		return errs.E(errs.KindConflict, "Could not "+action, err)
	case vcs.KindRateLimited:
		return errs.E(errs.KindRateLimited, "GitHub API rate limit reached, please try again later", err)
	case vcs.KindTransient:
		return errs.E(errs.KindBusy, "System busy, please try again", err)
	case vcs.KindPermission:
		return errs.E(errs.KindUpstream, "GitHub token lacks permission to "+action, err)
	default:
		return errs.E(errs.KindUpstream, "Failed to "+action, err)
	}
}
