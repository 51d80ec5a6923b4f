// Package vcs talks to the version-control hosting API that stores the catalog.
package vcs

import (
	"context"
	"errors"
	"fmt"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
)

// File is a repository file read at a specific ref
type File struct {
	Path    string
	SHA     string
	Content []byte
}

// DirEntry is one item of a directory listing
type DirEntry struct {
	Name string
	Path string
	SHA  string
	Type string // "file" or "dir"
}

// TreeChange adds, replaces or deletes one path in a new tree.
// A change with Delete set removes Path; otherwise Path points at BlobSHA.
type TreeChange struct {
	Path    string
	BlobSHA string
	Delete  bool
}

// ChangedFile is a file touched by a pull request
type ChangedFile struct {
	Path   string
	Status string // added, modified, removed, renamed
	Patch  string
}

// NewPullRequest describes a review request to open
type NewPullRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
}

// Hosting is the subset of the hosting API the changeset pipeline needs.
// Implementations must surface failures as *Error so callers can branch on Kind.
type Hosting interface {
	BranchHead(ctx context.Context, branch string) (string, error)
	BranchExists(ctx context.Context, branch string) (bool, error)
	CreateBranch(ctx context.Context, branch, sha string) error
	UpdateBranch(ctx context.Context, branch, sha string) error

	CommitTree(ctx context.Context, commitSHA string) (string, error)
	CreateBlob(ctx context.Context, content []byte) (string, error)
	CreateTree(ctx context.Context, baseTree string, changes []TreeChange) (string, error)
	CreateCommit(ctx context.Context, message, treeSHA, parentSHA string) (string, error)

	GetFile(ctx context.Context, path, ref string) (*File, error)
	ListDir(ctx context.Context, path, ref string) ([]DirEntry, error)
	UpdateFile(ctx context.Context, path, branch, message string, content []byte, sha string) error

	OpenPullRequest(ctx context.Context, pr NewPullRequest) (*models.ReviewRequest, error)
	ListOpenPullRequests(ctx context.Context, base string) ([]models.ReviewRequest, error)
	GetPullRequest(ctx context.Context, number int) (*models.ReviewRequest, error)
	PullRequestFiles(ctx context.Context, number int) ([]ChangedFile, error)
	MergePullRequest(ctx context.Context, number int, message string) error

	CompareURL(base, head string) string
}

// Kind classifies a hosting failure
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindPermission  Kind = "permission"
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindRateLimited Kind = "rate_limited"
	KindTransient   Kind = "transient"
	KindUnknown     Kind = "unknown"
)

// Error is a classified hosting API failure
type Error struct {
	Op         string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the hosting kind of err, KindUnknown when err is not a hosting error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusOf returns the HTTP status attached to a hosting error, or 0
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a hosting 404
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// KindForStatus maps an HTTP status to a Kind
func KindForStatus(status int) Kind {
	switch {
	case status == 404:
		return KindNotFound
	case status == 401 || status == 403:
		return KindPermission
	case status == 405 || status == 409:
		return KindConflict
	case status == 422:
		return KindValidation
	case status == 429:
		return KindRateLimited
	case status == 502 || status == 503 || status == 504:
		return KindTransient
	default:
		return KindUnknown
	}
}
