// Package changeset materializes catalog changes as a branch and commit on the hosting service.
package changeset

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/catalog"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/config"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/errs"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/metrics"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/vcs"
)

// Stage names one step of building a changeset
type Stage string

const (
	StageRefLookup    Stage = "ref lookup"
	StageBranchCheck  Stage = "branch check"
	StageContentFetch Stage = "content fetch"
	StageEncode       Stage = "content encoding"
	StageBranchCreate Stage = "branch creation"
	StageBlob         Stage = "blob creation"
	StageTree         Stage = "tree creation"
	StageCommit       Stage = "commit creation"
	StageRefUpdate    Stage = "ref update"
	StageFileUpdate   Stage = "file update"
)

// StageError identifies the stage at which building a changeset failed
type StageError struct {
	Stage  Stage
	Branch string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ErrBranchExists is reported when the generated branch name is already taken
var ErrBranchExists = errors.New("branch already exists")

// Result describes a pushed changeset
type Result struct {
	Branch    string
	BaseSHA   string
	CommitSHA string
	Files     []string
}

// BatchResult describes a pushed admin batch changeset
type BatchResult struct {
	Result
	Deleted           []string
	NotFound          []string
	CategoriesUpdated bool
}

// Builder stages catalog changes onto fresh branches cut from the base branch
type Builder struct {
	host   vcs.Hosting
	reader *catalog.Reader
	base   string
	now    func() time.Time
	suffix func() string
	log    zerolog.Logger
}

// NewBuilder creates a changeset builder
func NewBuilder(host vcs.Hosting, reader *catalog.Reader, baseBranch string, log zerolog.Logger) *Builder {
	return &Builder{
		host:   host,
		reader: reader,
		base:   baseBranch,
		now:    time.Now,
		suffix: func() string { return uuid.NewString()[:8] },
		log:    log.With().Str("component", "changeset").Logger(),
	}
}

// SetClock replaces the time source used for branch names and default dates
func (b *Builder) SetClock(now func() time.Time) { b.now = now }

// SetSuffix replaces the random branch-name suffix generator
func (b *Builder) SetSuffix(suffix func() string) { b.suffix = suffix }

// BaseBranch returns the branch changesets are cut from
func (b *Builder) BaseBranch() string { return b.base }

func (b *Builder) branchName(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, b.now().UnixMilli(), b.suffix())
}

// StageParts commits the records onto a new branch using the configured strategy.
// Records keep their batch order. The returned records are the normalized ones written.
func (b *Builder) StageParts(ctx context.Context, parts []models.PartRecord) (*Result, []models.PartRecord, error) {
	now := b.now()
	normalized := make([]models.PartRecord, len(parts))
	for i, p := range parts {
		normalized[i] = p.Normalize(now)
	}

	branch := b.branchName("add-parts")
	log := b.log.With().Str("branch", branch).Int("parts", len(parts)).Logger()

	baseSHA, err := b.host.BranchHead(ctx, b.base)
	if err != nil {
		return nil, nil, b.fail(StageRefLookup, branch, err)
	}

	var res *Result
	if b.reader.Strategy() == config.StrategyArray {
		res, err = b.stageArray(ctx, branch, baseSHA, normalized)
	} else {
		res, err = b.stageFiles(ctx, branch, baseSHA, normalized)
	}
	if err != nil {
		log.Error().Err(err).Msg("Changeset failed")
		return nil, nil, err
	}

	log.Info().Str("base_sha", baseSHA).Strs("files", res.Files).Msg("Changeset pushed")
	return res, normalized, nil
}

// stageFiles writes one file per record through a single tree and commit
func (b *Builder) stageFiles(ctx context.Context, branch, baseSHA string, parts []models.PartRecord) (*Result, error) {
	names, err := b.reader.ListRecordFiles(ctx, baseSHA)
	if err != nil {
		return nil, b.fail(StageContentFetch, branch, err)
	}

	naming := b.reader.Naming()
	next := naming.NextID(names)
	contents := make([][]byte, len(parts))
	paths := make([]string, len(parts))
	for i, part := range parts {
		encoded, err := catalog.EncodePart(part)
		if err != nil {
			return nil, b.fail(StageEncode, branch, err)
		}
		contents[i] = append(encoded, '\n')
		paths[i] = naming.Path(next + i)
	}

	ctx, err = b.createBranch(ctx, branch, baseSHA)
	if err != nil {
		return nil, err
	}

	changes := make([]vcs.TreeChange, 0, len(parts))
	for i := range parts {
		blob, err := b.host.CreateBlob(ctx, contents[i])
		if err != nil {
			return nil, b.fail(StageBlob, branch, err)
		}
		changes = append(changes, vcs.TreeChange{Path: paths[i], BlobSHA: blob})
	}

	commit, err := b.commit(ctx, branch, baseSHA, commitMessage(parts), changes)
	if err != nil {
		return nil, err
	}
	return &Result{Branch: branch, BaseSHA: baseSHA, CommitSHA: commit, Files: paths}, nil
}

// stageArray splices the records into the catalog array and writes it as one file update.
// The file SHA read here is handed back so the host rejects a stale write.
func (b *Builder) stageArray(ctx context.Context, branch, baseSHA string, parts []models.PartRecord) (*Result, error) {
	path := b.reader.Config().CatalogFile

	var content []byte
	var fileSHA string
	file, err := b.host.GetFile(ctx, path, baseSHA)
	switch {
	case vcs.IsNotFound(err):
		b.log.Info().Str("path", path).Msg("Catalog file not found, starting a new one")
	case err != nil:
		return nil, b.fail(StageContentFetch, branch, err)
	default:
		content, fileSHA = file.Content, file.SHA
	}

	updated, err := catalog.InsertIntoArray(content, b.reader.Marker(), parts)
	if err != nil {
		return nil, b.fail(StageEncode, branch, err)
	}

	ctx, err = b.createBranch(ctx, branch, baseSHA)
	if err != nil {
		return nil, err
	}

	if err := b.host.UpdateFile(ctx, path, branch, commitMessage(parts), updated, fileSHA); err != nil {
		return nil, b.fail(StageFileUpdate, branch, err)
	}
	return &Result{Branch: branch, BaseSHA: baseSHA, Files: []string{path}}, nil
}

// StageBatch stages record deletions and an optional vocabulary replacement as one commit.
// Identifiers that do not resolve to an existing record are reported in NotFound.
// When nothing remains to change no branch is created and Result.Branch is empty.
func (b *Builder) StageBatch(ctx context.Context, deletes []string, categories []string) (*BatchResult, error) {
	branch := b.branchName("admin-batch")
	out := &BatchResult{}

	baseSHA, err := b.host.BranchHead(ctx, b.base)
	if err != nil {
		return nil, b.fail(StageRefLookup, branch, err)
	}

	var contents [][]byte
	var paths []string
	var removals []vcs.TreeChange

	if len(deletes) > 0 {
		if b.reader.Strategy() == config.StrategyArray {
			content, deleted, notFound, err := b.arrayWithout(ctx, baseSHA, deletes)
			if err != nil {
				return nil, b.fail(StageContentFetch, branch, err)
			}
			out.Deleted, out.NotFound = deleted, notFound
			if len(deleted) > 0 {
				contents = append(contents, content)
				paths = append(paths, b.reader.Config().CatalogFile)
			}
		} else {
			existing, err := b.reader.ListRecordFiles(ctx, baseSHA)
			if err != nil {
				return nil, b.fail(StageContentFetch, branch, err)
			}
			present := make(map[string]bool, len(existing))
			for _, name := range existing {
				present[name] = true
			}
			naming := b.reader.Naming()
			seen := make(map[string]bool)
			for _, id := range deletes {
				name, err := naming.ResolveName(id)
				if err != nil || !present[name] {
					out.NotFound = append(out.NotFound, id)
					continue
				}
				if seen[name] {
					continue
				}
				seen[name] = true
				out.Deleted = append(out.Deleted, name)
				removals = append(removals, vcs.TreeChange{Path: naming.PathOf(name), Delete: true})
			}
		}
	}

	if categories != nil {
		encoded, err := catalog.EncodeVocabulary(categories)
		if err != nil {
			return nil, b.fail(StageEncode, branch, err)
		}
		contents = append(contents, append(encoded, '\n'))
		paths = append(paths, b.reader.Config().CategoriesFile)
		out.CategoriesUpdated = true
	}

	if len(contents) == 0 && len(removals) == 0 {
		return out, nil
	}

	ctx, err = b.createBranch(ctx, branch, baseSHA)
	if err != nil {
		return nil, err
	}

	changes := make([]vcs.TreeChange, 0, len(contents)+len(removals))
	for i, content := range contents {
		blob, err := b.host.CreateBlob(ctx, content)
		if err != nil {
			return nil, b.fail(StageBlob, branch, err)
		}
		changes = append(changes, vcs.TreeChange{Path: paths[i], BlobSHA: blob})
	}
	changes = append(changes, removals...)

	commit, err := b.commit(ctx, branch, baseSHA, batchMessage(len(out.Deleted), out.CategoriesUpdated), changes)
	if err != nil {
		return nil, err
	}

	files := append([]string(nil), paths...)
	for _, r := range removals {
		files = append(files, r.Path)
	}
	out.Result = Result{Branch: branch, BaseSHA: baseSHA, CommitSHA: commit, Files: files}
	b.log.Info().Str("branch", branch).Strs("deleted", out.Deleted).Bool("categories", out.CategoriesUpdated).Msg("Admin batch pushed")
	return out, nil
}

// arrayWithout removes 1-based record positions from the catalog array
func (b *Builder) arrayWithout(ctx context.Context, ref string, ids []string) ([]byte, []string, []string, error) {
	file, err := b.host.GetFile(ctx, b.reader.Config().CatalogFile, ref)
	if vcs.IsNotFound(err) {
		return nil, nil, ids, nil
	}
	if err != nil {
		return nil, nil, nil, err
	}
	parts, err := catalog.ParseArray(file.Content, b.reader.Marker())
	if err != nil {
		return nil, nil, nil, err
	}

	drop := make(map[int]bool)
	var deleted, notFound []string
	for _, id := range ids {
		n, err := strconv.Atoi(id)
		if err != nil || n < 1 || n > len(parts) {
			notFound = append(notFound, id)
			continue
		}
		if !drop[n-1] {
			drop[n-1] = true
			deleted = append(deleted, id)
		}
	}
	if len(deleted) == 0 {
		return nil, nil, notFound, nil
	}

	kept := make([]models.PartRecord, 0, len(parts)-len(drop))
	for i, p := range parts {
		if !drop[i] {
			kept = append(kept, p)
		}
	}
	content, err := catalog.ReplaceArray(file.Content, b.reader.Marker(), kept)
	if err != nil {
		return nil, nil, nil, err
	}
	return content, deleted, notFound, nil
}

// createBranch checks for a name collision and creates the branch.
// From here on the work is detached from caller cancellation so a started write is never abandoned.
func (b *Builder) createBranch(ctx context.Context, branch, baseSHA string) (context.Context, error) {
	exists, err := b.host.BranchExists(ctx, branch)
	if err != nil {
		return ctx, b.fail(StageBranchCheck, branch, err)
	}
	if exists {
		return ctx, b.fail(StageBranchCheck, branch, ErrBranchExists)
	}

	detached := context.WithoutCancel(ctx)
	if err := b.host.CreateBranch(detached, branch, baseSHA); err != nil {
		return ctx, b.fail(StageBranchCreate, branch, err)
	}
	return detached, nil
}

// commit builds a tree on top of the base commit's tree, commits it and advances the branch
func (b *Builder) commit(ctx context.Context, branch, baseSHA, message string, changes []vcs.TreeChange) (string, error) {
	baseTree, err := b.host.CommitTree(ctx, baseSHA)
	if err != nil {
		return "", b.fail(StageTree, branch, err)
	}
	tree, err := b.host.CreateTree(ctx, baseTree, changes)
	if err != nil {
		return "", b.fail(StageTree, branch, err)
	}
	commit, err := b.host.CreateCommit(ctx, message, tree, baseSHA)
	if err != nil {
		return "", b.fail(StageCommit, branch, err)
	}
	if err := b.host.UpdateBranch(ctx, branch, commit); err != nil {
		return "", b.fail(StageRefUpdate, branch, err)
	}
	return commit, nil
}

// fail wraps a stage failure into a kinded error the transport layer can map
func (b *Builder) fail(stage Stage, branch string, err error) error {
	se := &StageError{Stage: stage, Branch: branch, Err: err}
	kind := vcs.KindOf(err)
	metrics.HostingErrors.WithLabelValues(string(stage), string(kind)).Inc()

	switch {
	case errors.Is(err, ErrBranchExists):
		return errs.E(errs.KindConflict, "Branch name collision, please submit again", se)
	case errors.Is(err, context.DeadlineExceeded), kind == vcs.KindTransient:
		return errs.E(errs.KindBusy, "System busy, please try again", se)
	case kind == vcs.KindRateLimited:
		return errs.E(errs.KindRateLimited, "GitHub API rate limit reached, please try again later", se)
	case stage == StageRefLookup && kind == vcs.KindNotFound:
		return errs.E(errs.KindUpstream, fmt.Sprintf("Base branch %q not found", b.base), se)
	case stage == StageEncode:
		return errs.E(errs.KindInternal, "Could not encode catalog content", se)
	default:
		return errs.E(errs.KindUpstream, "Failed at "+string(stage), se)
	}
}

// commitMessage is "Add part: <title>" for one record and "Add N parts" otherwise
func commitMessage(parts []models.PartRecord) string {
	if len(parts) == 1 {
		return "Add part: " + parts[0].Title
	}
	return fmt.Sprintf("Add %d parts", len(parts))
}

func batchMessage(deleted int, categories bool) string {
	switch {
	case deleted > 0 && categories:
		return fmt.Sprintf("Admin batch: remove %d parts, update categories", deleted)
	case deleted > 0:
		return fmt.Sprintf("Admin batch: remove %d parts", deleted)
	default:
		return "Admin batch: update categories"
	}
}
