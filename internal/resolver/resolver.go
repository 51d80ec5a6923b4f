// Package resolver turns a product page URL into normalized part metadata
// using an ordered chain of strategies.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/config"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/errs"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/metrics"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
)

// ExhaustedMessage is returned when every strategy failed
const ExhaustedMessage = "Scrape Failed: Site is protected. Please enter the data manually or check your API credits."

const (
	SourceFirecrawl = "firecrawl"
	SourceGraphQL   = "graphql"
	SourceHTML      = "html"
	SourceProxy     = "proxy"

	maxBody     = 2 << 20
	snippetSize = 200
)

var printablesModel = regexp.MustCompile(`(?i)printables\.com/.*model/(\d+)`)

const printablesQuery = `query PrintResults($id: ID!) { print(id: $id) { name description images { filePath } tags { name } } }`

// Resolver runs the strategy chain. It is safe for concurrent use.
type Resolver struct {
	cfg    config.ResolverConfig
	client *http.Client
	log    zerolog.Logger
}

// NewResolver creates a resolver. A nil client uses a default one; stage deadlines come from the config.
func NewResolver(cfg config.ResolverConfig, client *http.Client, log zerolog.Logger) *Resolver {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 10 * time.Second
	}
	return &Resolver{
		cfg:    cfg,
		client: client,
		log:    log.With().Str("component", "resolver").Logger(),
	}
}

// ParseTarget validates a user supplied source URL
func ParseTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errs.E(errs.KindInvalid, "Missing url parameter", nil)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errs.E(errs.KindInvalid, "Invalid url parameter", err)
	}
	return u, nil
}

// stage is one strategy of the chain. A nil metadata with a nil error means the stage did not apply.
type stage struct {
	name string
	run  func(ctx context.Context, target *url.URL, attempt *models.ResolveAttempt) (*models.Metadata, error)
}

// Resolve runs every strategy in order and returns the first result with a title.
// It never returns an error; failures are reported in the result with the attempt log.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) models.MetadataResult {
	target, err := ParseTarget(rawURL)
	if err != nil {
		var e *errs.Error
		errors.As(err, &e)
		return models.MetadataResult{Error: e.Message}
	}

	log := r.log.With().Str("url", target.String()).Logger()
	var attempts []models.ResolveAttempt

	for _, st := range r.stages() {
		if ctx.Err() != nil {
			break
		}

		attempt := models.ResolveAttempt{Strategy: st.name}
		timer := metrics.NewTimer()

		stageCtx, cancel := context.WithTimeout(ctx, r.cfg.StageTimeout)
		meta, err := st.run(stageCtx, target, &attempt)
		cancel()

		if meta == nil && err == nil {
			continue
		}

		if err == nil {
			meta.Image = resolveImage(meta.Image, target)
			meta.Tags = cleanTags(meta.Tags)
			if strings.TrimSpace(meta.Title) == "" {
				err = errors.New("no title found")
			}
		}

		attempt.DurationMs = timer.Duration().Milliseconds()
		metrics.RecordResolverAttempt(metricLabel(st.name), err == nil, timer.Duration())
		if err != nil {
			attempt.Error = err.Error()
		}
		attempts = append(attempts, attempt)

		log.Debug().
			Str("strategy", st.name).
			Int("status", attempt.StatusCode).
			Str("snippet", attempt.Snippet).
			Int64("duration_ms", attempt.DurationMs).
			AnErr("error", err).
			Msg("Resolver attempt")

		if err == nil {
			meta.Title = strings.TrimSpace(meta.Title)
			meta.Description = strings.TrimSpace(meta.Description)
			log.Info().Str("source", st.name).Msg("Metadata resolved")
			return models.MetadataResult{
				Success:  true,
				Metadata: *meta,
				Source:   st.name,
				Attempts: attempts,
			}
		}
	}

	log.Warn().Int("attempts", len(attempts)).Msg("All resolver strategies failed")
	return models.MetadataResult{Error: ExhaustedMessage, Attempts: attempts}
}

func (r *Resolver) stages() []stage {
	stages := []stage{
		{name: SourceFirecrawl, run: r.firecrawl},
		{name: SourceGraphQL, run: r.printables},
		{name: SourceHTML, run: r.direct},
	}
	for _, tmpl := range r.cfg.Proxies {
		stages = append(stages, stage{
			name: SourceProxy + ":" + proxyName(tmpl),
			run: func(ctx context.Context, target *url.URL, attempt *models.ResolveAttempt) (*models.Metadata, error) {
				return r.proxy(ctx, tmpl, target, attempt)
			},
		})
	}
	return stages
}

type firecrawlResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Extract *models.Metadata `json:"extract"`
	} `json:"data"`
}

func (r *Resolver) firecrawl(ctx context.Context, target *url.URL, attempt *models.ResolveAttempt) (*models.Metadata, error) {
	if r.cfg.FirecrawlAPIKey == "" || r.cfg.FirecrawlURL == "" {
		return nil, nil
	}

	payload := map[string]any{
		"url":     target.String(),
		"formats": []string{"extract"},
		"extract": map[string]any{
			"schema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":       map[string]string{"type": "string"},
					"description": map[string]string{"type": "string"},
					"image":       map[string]string{"type": "string"},
					"tags":        map[string]any{"type": "array", "items": map[string]string{"type": "string"}},
				},
				"required": []string{"title", "image"},
			},
		},
	}

	body, err := r.postJSON(ctx, r.cfg.FirecrawlURL, "Bearer "+r.cfg.FirecrawlAPIKey, payload, attempt)
	if err != nil {
		return nil, err
	}

	var resp firecrawlResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !resp.Success || resp.Data.Extract == nil {
		return nil, errors.New("no extract in response")
	}
	return resp.Data.Extract, nil
}

type printablesResponse struct {
	Data struct {
		Print *struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Images      []struct {
				FilePath string `json:"filePath"`
			} `json:"images"`
			Tags []struct {
				Name string `json:"name"`
			} `json:"tags"`
		} `json:"print"`
	} `json:"data"`
}

func (r *Resolver) printables(ctx context.Context, target *url.URL, attempt *models.ResolveAttempt) (*models.Metadata, error) {
	m := printablesModel.FindStringSubmatch(target.String())
	if m == nil || r.cfg.PrintablesURL == "" {
		return nil, nil
	}

	payload := map[string]any{
		"query":     printablesQuery,
		"variables": map[string]string{"id": m[1]},
	}
	body, err := r.postJSON(ctx, r.cfg.PrintablesURL, "", payload, attempt)
	if err != nil {
		return nil, err
	}

	var resp printablesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	p := resp.Data.Print
	if p == nil {
		return nil, errors.New("model not found")
	}

	meta := &models.Metadata{Title: p.Name, Description: p.Description}
	if len(p.Images) > 0 && p.Images[0].FilePath != "" {
		path := p.Images[0].FilePath
		if strings.HasPrefix(path, "http") {
			meta.Image = path
		} else {
			meta.Image = strings.TrimRight(r.cfg.PrintablesMedia, "/") + "/" + strings.TrimLeft(path, "/")
		}
	}
	for _, t := range p.Tags {
		meta.Tags = append(meta.Tags, t.Name)
	}
	return meta, nil
}

func (r *Resolver) direct(ctx context.Context, target *url.URL, attempt *models.ResolveAttempt) (*models.Metadata, error) {
	return r.fetchPage(ctx, target.String(), target, attempt)
}

func (r *Resolver) proxy(ctx context.Context, tmpl string, target *url.URL, attempt *models.ResolveAttempt) (*models.Metadata, error) {
	attempt.Proxy = proxyName(tmpl)
	return r.fetchPage(ctx, fmt.Sprintf(tmpl, url.QueryEscape(target.String())), target, attempt)
}

// fetchPage GETs an HTML document and scans its head. Relative images resolve against page.
func (r *Resolver) fetchPage(ctx context.Context, fetchURL string, page *url.URL, attempt *models.ResolveAttempt) (*models.Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	body, header, err := r.do(req, attempt)
	if err != nil {
		return nil, err
	}
	meta := parseMeta(bytes.NewReader(body), page)
	if reason := challengeReason(header, meta.Title, body); reason != "" {
		return nil, fmt.Errorf("anti-bot challenge (%s)", reason)
	}
	return &meta, nil
}

func (r *Resolver) postJSON(ctx context.Context, endpoint, auth string, payload any, attempt *models.ResolveAttempt) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	body, _, err := r.do(req, attempt)
	return body, err
}

// do performs req, records status and snippet on attempt, and fails on non-2xx
func (r *Resolver) do(req *http.Request, attempt *models.ResolveAttempt) ([]byte, http.Header, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	attempt.StatusCode = resp.StatusCode
	attempt.Snippet = snippet(body)
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, resp.Header, nil
}

func snippet(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) <= snippetSize {
		return s
	}
	cut := snippetSize
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// proxyName is the host of a relay template, used in sources and metric labels
func proxyName(tmpl string) string {
	u, err := url.Parse(strings.ReplaceAll(tmpl, "%s", ""))
	if err != nil || u.Host == "" {
		return "relay"
	}
	return u.Host
}

func metricLabel(name string) string {
	if strings.HasPrefix(name, SourceProxy+":") {
		return SourceProxy
	}
	return name
}
