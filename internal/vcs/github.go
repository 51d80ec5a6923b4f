package vcs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/config"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
)

// GitHubClient implements Hosting against the GitHub REST API
type GitHubClient struct {
	client *github.Client
	owner  string
	repo   string
	webURL string
	log    zerolog.Logger
}

var _ Hosting = (*GitHubClient)(nil)

// NewGitHubClient builds a token-authenticated client for the configured repository
func NewGitHubClient(cfg config.GitHubConfig, log zerolog.Logger) (*GitHubClient, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = 30 * time.Second

	client := github.NewClient(httpClient)
	if cfg.APIURL != "" {
		base := cfg.APIURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid GITHUB_API_URL: %w", err)
		}
		client.BaseURL = u
	}

	webURL := strings.TrimRight(cfg.WebURL, "/")
	if webURL == "" {
		webURL = "https://github.com"
	}

	return &GitHubClient{
		client: client,
		owner:  cfg.Owner,
		repo:   cfg.Repo,
		webURL: webURL,
		log:    log.With().Str("component", "github").Logger(),
	}, nil
}

// BranchHead returns the commit SHA at the tip of branch
func (c *GitHubClient) BranchHead(ctx context.Context, branch string) (string, error) {
	ref, resp, err := c.client.Git.GetRef(ctx, c.owner, c.repo, "heads/"+branch)
	if err != nil {
		return "", classify("get ref", resp, err)
	}
	return ref.GetObject().GetSHA(), nil
}

// BranchExists reports whether branch is already present
func (c *GitHubClient) BranchExists(ctx context.Context, branch string) (bool, error) {
	_, resp, err := c.client.Git.GetRef(ctx, c.owner, c.repo, "heads/"+branch)
	if err != nil {
		herr := classify("get ref", resp, err)
		if IsNotFound(herr) {
			return false, nil
		}
		return false, herr
	}
	return true, nil
}

// CreateBranch creates refs/heads/<branch> pointing at sha
func (c *GitHubClient) CreateBranch(ctx context.Context, branch, sha string) error {
	_, resp, err := c.client.Git.CreateRef(ctx, c.owner, c.repo, &github.Reference{
		Ref:    github.Ptr("refs/heads/" + branch),
		Object: &github.GitObject{SHA: github.Ptr(sha)},
	})
	return classify("create ref", resp, err)
}

// UpdateBranch fast-forwards branch to sha
func (c *GitHubClient) UpdateBranch(ctx context.Context, branch, sha string) error {
	_, resp, err := c.client.Git.UpdateRef(ctx, c.owner, c.repo, &github.Reference{
		Ref:    github.Ptr("refs/heads/" + branch),
		Object: &github.GitObject{SHA: github.Ptr(sha)},
	}, false)
	return classify("update ref", resp, err)
}

// CommitTree returns the tree SHA of a commit
func (c *GitHubClient) CommitTree(ctx context.Context, commitSHA string) (string, error) {
	commit, resp, err := c.client.Git.GetCommit(ctx, c.owner, c.repo, commitSHA)
	if err != nil {
		return "", classify("get commit", resp, err)
	}
	return commit.GetTree().GetSHA(), nil
}

// CreateBlob uploads content as a base64 blob
func (c *GitHubClient) CreateBlob(ctx context.Context, content []byte) (string, error) {
	blob, resp, err := c.client.Git.CreateBlob(ctx, c.owner, c.repo, &github.Blob{
		Content:  github.Ptr(base64.StdEncoding.EncodeToString(content)),
		Encoding: github.Ptr("base64"),
	})
	if err != nil {
		return "", classify("create blob", resp, err)
	}
	return blob.GetSHA(), nil
}

// CreateTree creates a tree on top of baseTree
func (c *GitHubClient) CreateTree(ctx context.Context, baseTree string, changes []TreeChange) (string, error) {
	entries := make([]*github.TreeEntry, 0, len(changes))
	for _, ch := range changes {
		entry := &github.TreeEntry{
			Path: github.Ptr(ch.Path),
			Mode: github.Ptr("100644"),
			Type: github.Ptr("blob"),
		}
		// go-github encodes an entry with neither SHA nor Content as a deletion
		if !ch.Delete {
			entry.SHA = github.Ptr(ch.BlobSHA)
		}
		entries = append(entries, entry)
	}

	tree, resp, err := c.client.Git.CreateTree(ctx, c.owner, c.repo, baseTree, entries)
	if err != nil {
		return "", classify("create tree", resp, err)
	}
	return tree.GetSHA(), nil
}

// CreateCommit creates a commit with a single parent
func (c *GitHubClient) CreateCommit(ctx context.Context, message, treeSHA, parentSHA string) (string, error) {
	commit, resp, err := c.client.Git.CreateCommit(ctx, c.owner, c.repo, &github.Commit{
		Message: github.Ptr(message),
		Tree:    &github.Tree{SHA: github.Ptr(treeSHA)},
		Parents: []*github.Commit{{SHA: github.Ptr(parentSHA)}},
	}, nil)
	if err != nil {
		return "", classify("create commit", resp, err)
	}
	return commit.GetSHA(), nil
}

// GetFile reads a file at ref. Files above the contents API size limit are read through the blob API.
func (c *GitHubClient) GetFile(ctx context.Context, path, ref string) (*File, error) {
	fc, _, resp, err := c.client.Repositories.GetContents(ctx, c.owner, c.repo, path,
		&github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, classify("get contents", resp, err)
	}
	if fc == nil {
		return nil, &Error{Op: "get contents", Kind: KindValidation, Err: fmt.Errorf("%s is a directory", path)}
	}

	if fc.GetEncoding() == "none" || (fc.Content == nil && fc.GetSize() > 0) {
		raw, resp, err := c.client.Git.GetBlobRaw(ctx, c.owner, c.repo, fc.GetSHA())
		if err != nil {
			return nil, classify("get blob", resp, err)
		}
		return &File{Path: fc.GetPath(), SHA: fc.GetSHA(), Content: raw}, nil
	}

	content, err := fc.GetContent()
	if err != nil {
		return nil, &Error{Op: "decode contents", Kind: KindUnknown, Err: err}
	}
	return &File{Path: fc.GetPath(), SHA: fc.GetSHA(), Content: []byte(content)}, nil
}

// ListDir lists a directory at ref
func (c *GitHubClient) ListDir(ctx context.Context, path, ref string) ([]DirEntry, error) {
	fc, dir, resp, err := c.client.Repositories.GetContents(ctx, c.owner, c.repo, path,
		&github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, classify("list contents", resp, err)
	}
	if fc != nil {
		return nil, &Error{Op: "list contents", Kind: KindValidation, Err: fmt.Errorf("%s is a file", path)}
	}

	entries := make([]DirEntry, 0, len(dir))
	for _, item := range dir {
		entries = append(entries, DirEntry{
			Name: item.GetName(),
			Path: item.GetPath(),
			SHA:  item.GetSHA(),
			Type: item.GetType(),
		})
	}
	return entries, nil
}

// UpdateFile writes a whole file on branch. An empty sha creates the file;
// otherwise the hosting API rejects the write when sha is stale.
func (c *GitHubClient) UpdateFile(ctx context.Context, path, branch, message string, content []byte, sha string) error {
	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(message),
		Content: content,
		Branch:  github.Ptr(branch),
	}
	if sha == "" {
		_, resp, err := c.client.Repositories.CreateFile(ctx, c.owner, c.repo, path, opts)
		return classify("create file", resp, err)
	}
	opts.SHA = github.Ptr(sha)
	_, resp, err := c.client.Repositories.UpdateFile(ctx, c.owner, c.repo, path, opts)
	return classify("update file", resp, err)
}

// OpenPullRequest opens a pull request from pr.Head onto pr.Base
func (c *GitHubClient) OpenPullRequest(ctx context.Context, pr NewPullRequest) (*models.ReviewRequest, error) {
	created, resp, err := c.client.PullRequests.Create(ctx, c.owner, c.repo, &github.NewPullRequest{
		Title:               github.Ptr(pr.Title),
		Head:                github.Ptr(pr.Head),
		Base:                github.Ptr(pr.Base),
		Body:                github.Ptr(pr.Body),
		MaintainerCanModify: github.Ptr(true),
	})
	if err != nil {
		return nil, classify("create pull request", resp, err)
	}
	rr := toReviewRequest(created)
	return &rr, nil
}

// ListOpenPullRequests returns every open pull request against base
func (c *GitHubClient) ListOpenPullRequests(ctx context.Context, base string) ([]models.ReviewRequest, error) {
	opts := &github.PullRequestListOptions{
		State:       "open",
		Base:        base,
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var out []models.ReviewRequest
	for {
		prs, resp, err := c.client.PullRequests.List(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, classify("list pull requests", resp, err)
		}
		for _, pr := range prs {
			out = append(out, toReviewRequest(pr))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// GetPullRequest fetches one pull request
func (c *GitHubClient) GetPullRequest(ctx context.Context, number int) (*models.ReviewRequest, error) {
	pr, resp, err := c.client.PullRequests.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, classify("get pull request", resp, err)
	}
	rr := toReviewRequest(pr)
	return &rr, nil
}

// PullRequestFiles lists files changed by a pull request
func (c *GitHubClient) PullRequestFiles(ctx context.Context, number int) ([]ChangedFile, error) {
	opts := &github.ListOptions{PerPage: 100}

	var out []ChangedFile
	for {
		files, resp, err := c.client.PullRequests.ListFiles(ctx, c.owner, c.repo, number, opts)
		if err != nil {
			return nil, classify("list pull request files", resp, err)
		}
		for _, f := range files {
			out = append(out, ChangedFile{
				Path:   f.GetFilename(),
				Status: f.GetStatus(),
				Patch:  f.GetPatch(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// MergePullRequest squash-merges a pull request
func (c *GitHubClient) MergePullRequest(ctx context.Context, number int, message string) error {
	result, resp, err := c.client.PullRequests.Merge(ctx, c.owner, c.repo, number, message,
		&github.PullRequestOptions{MergeMethod: "squash"})
	if err != nil {
		return classify("merge pull request", resp, err)
	}
	if !result.GetMerged() {
		return &Error{Op: "merge pull request", Kind: KindConflict, Err: errors.New(result.GetMessage())}
	}
	c.log.Info().Int("number", number).Str("sha", result.GetSHA()).Msg("Pull request merged")
	return nil
}

// CompareURL is the web link a human uses to open a pull request manually
func (c *GitHubClient) CompareURL(base, head string) string {
	return CompareURL(c.webURL, c.owner, c.repo, base, head)
}

// CompareURL builds a compare link for any repository on a GitHub-compatible host
func CompareURL(webURL, owner, repo, base, head string) string {
	return fmt.Sprintf("%s/%s/%s/compare/%s...%s?expand=1",
		strings.TrimRight(webURL, "/"), owner, repo, url.PathEscape(base), url.PathEscape(head))
}

func toReviewRequest(pr *github.PullRequest) models.ReviewRequest {
	status := models.ReviewStatusOpen
	switch {
	case pr.GetMerged():
		status = models.ReviewStatusMerged
	case pr.GetState() == "closed":
		status = models.ReviewStatusAbandoned
	}
	return models.ReviewRequest{
		Number:     pr.GetNumber(),
		Title:      pr.GetTitle(),
		Body:       pr.GetBody(),
		Author:     pr.GetUser().GetLogin(),
		Branch:     pr.GetHead().GetRef(),
		HeadSHA:    pr.GetHead().GetSHA(),
		BaseBranch: pr.GetBase().GetRef(),
		URL:        pr.GetHTMLURL(),
		Status:     status,
		CreatedAt:  pr.GetCreatedAt().Time,
	}
}

// classify converts a go-github failure into *Error
func classify(op string, resp *github.Response, err error) error {
	if err == nil {
		return nil
	}

	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	var netErr net.Error

	kind := KindForStatus(status)
	switch {
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		kind = KindRateLimited
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTransient
	case errors.Is(err, context.Canceled):
		kind = KindUnknown
	case status == 0 && errors.As(err, &netErr):
		kind = KindTransient
	}

	return &Error{Op: op, Kind: kind, StatusCode: status, Err: err}
}
