package catalog

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/config"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/vcs"
)

// maxParallelReads bounds concurrent file fetches while building a snapshot
const maxParallelReads = 8

// Reader loads the catalog as stored at a given ref. It never caches.
type Reader struct {
	host   vcs.Hosting
	cfg    config.ContentConfig
	naming *Naming
	marker *regexp.Regexp
	log    zerolog.Logger
}

// NewReader creates a catalog reader for the configured content layout
func NewReader(host vcs.Hosting, cfg config.ContentConfig, log zerolog.Logger) (*Reader, error) {
	marker, err := regexp.Compile(cfg.CatalogMarker)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog marker: %w", err)
	}
	return &Reader{
		host:   host,
		cfg:    cfg,
		naming: NewNaming(cfg.Dir, cfg.FilePrefix, cfg.IDWidth),
		marker: marker,
		log:    log.With().Str("component", "catalog").Logger(),
	}, nil
}

// Naming returns the file naming scheme of the content directory
func (r *Reader) Naming() *Naming { return r.naming }

// Marker returns the compiled closing-array marker
func (r *Reader) Marker() *regexp.Regexp { return r.marker }

// Strategy returns the configured materialization strategy
func (r *Reader) Strategy() string { return r.cfg.Strategy }

// Config returns the content layout
func (r *Reader) Config() config.ContentConfig { return r.cfg }

// Snapshot returns every catalog record at ref. A missing content path is an empty catalog.
func (r *Reader) Snapshot(ctx context.Context, ref string) ([]models.CatalogEntry, error) {
	if r.cfg.Strategy == config.StrategyArray {
		return r.arraySnapshot(ctx, ref)
	}
	return r.filesSnapshot(ctx, ref)
}

func (r *Reader) arraySnapshot(ctx context.Context, ref string) ([]models.CatalogEntry, error) {
	file, err := r.host.GetFile(ctx, r.cfg.CatalogFile, ref)
	if vcs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	parts, err := ParseArray(file.Content, r.marker)
	if err != nil {
		return nil, err
	}

	entries := make([]models.CatalogEntry, 0, len(parts))
	for i, part := range parts {
		entries = append(entries, models.CatalogEntry{
			ID:   strconv.Itoa(i + 1),
			Path: r.cfg.CatalogFile,
			Part: part,
		})
	}
	return entries, nil
}

func (r *Reader) filesSnapshot(ctx context.Context, ref string) ([]models.CatalogEntry, error) {
	names, err := r.ListRecordFiles(ctx, ref)
	if err != nil {
		return nil, err
	}

	entries := make([]models.CatalogEntry, len(names))
	valid := make([]bool, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i, name := range names {
		g.Go(func() error {
			path := r.naming.PathOf(name)
			file, err := r.host.GetFile(gctx, path, ref)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			part, err := ParsePart(file.Content)
			if err != nil {
				r.log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable record file")
				return nil
			}
			entries[i] = models.CatalogEntry{ID: name, Path: path, Part: part}
			valid[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := entries[:0]
	for i, entry := range entries {
		if valid[i] {
			out = append(out, entry)
		}
	}
	return out, nil
}

// ListRecordFiles returns the record file names in the content directory, ordered by sequence number
func (r *Reader) ListRecordFiles(ctx context.Context, ref string) ([]string, error) {
	dir, err := r.host.ListDir(ctx, r.cfg.Dir, ref)
	if vcs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range dir {
		if entry.Type == "file" && r.naming.Matches(entry.Name) {
			names = append(names, entry.Name)
		}
	}
	r.naming.SortNames(names)
	return names, nil
}

// Categories returns the category vocabulary at ref together with the blob SHA of its file.
// A missing file yields an empty vocabulary and an empty SHA.
func (r *Reader) Categories(ctx context.Context, ref string) ([]string, string, error) {
	file, err := r.host.GetFile(ctx, r.cfg.CategoriesFile, ref)
	if vcs.IsNotFound(err) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	categories, err := ParseVocabulary(file.Content)
	if err != nil {
		return nil, "", err
	}
	return categories, file.SHA, nil
}
