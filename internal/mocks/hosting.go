package mocks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/vcs"
)

type mockCommit struct {
	tree    string
	parent  string
	message string
}

type mockPull struct {
	pr      models.ReviewRequest
	baseSHA string
}

// MockHosting is an in-memory git host. Trees are flat path→blob maps.
type MockHosting struct {
	mu sync.Mutex

	Owner string
	Repo  string

	refs    map[string]string
	commits map[string]mockCommit
	trees   map[string]map[string]string
	blobs   map[string][]byte
	pulls   map[int]*mockPull
	seq     int
	nextPR  int

	// Errors forces the named operation (e.g. "CreateBranch") to fail
	Errors map[string]error
	// Calls records every operation name in order
	Calls []string
}

// Verify interface compliance
var _ vcs.Hosting = (*MockHosting)(nil)

// NewMockHosting creates a host whose base branch points at an empty commit
func NewMockHosting(base string) *MockHosting {
	m := &MockHosting{
		Owner:   "owner",
		Repo:    "repo",
		refs:    make(map[string]string),
		commits: make(map[string]mockCommit),
		trees:   map[string]map[string]string{"tree-0": {}},
		blobs:   make(map[string][]byte),
		pulls:   make(map[int]*mockPull),
		nextPR:  1,
		Errors:  make(map[string]error),
	}
	m.commits["commit-0"] = mockCommit{tree: "tree-0", message: "initial"}
	m.refs[base] = "commit-0"
	return m
}

// HostError builds a classified hosting error with the given status
func HostError(op string, status int) error {
	return &vcs.Error{Op: op, Kind: vcs.KindForStatus(status), StatusCode: status, Err: errors.New(http.StatusText(status))}
}

// Seed commits files directly onto branch
func (m *MockHosting) Seed(branch string, files map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	head := m.refs[branch]
	tree := copyTree(m.trees[m.commits[head].tree])
	for path, content := range files {
		tree[path] = m.putBlob([]byte(content))
	}
	m.refs[branch] = m.putCommit(m.putTree(tree), head, "seed")
}

// FileAt returns file content at a branch or commit, for assertions
func (m *MockHosting) FileAt(ref, path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tree, ok := m.treeOf(ref)
	if !ok {
		return "", false
	}
	blob, ok := tree[path]
	if !ok {
		return "", false
	}
	return string(m.blobs[blob]), true
}

// Branches lists every branch name
func (m *MockHosting) Branches() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.refs))
	for name := range m.refs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CommitMessage returns the message of the commit at the tip of branch
func (m *MockHosting) CommitMessage(branch string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits[m.refs[branch]].message
}

// Pull returns a pull request by number
func (m *MockHosting) Pull(number int) (models.ReviewRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pulls[number]
	if !ok {
		return models.ReviewRequest{}, false
	}
	return p.pr, true
}

// Called reports whether op was invoked at least once
func (m *MockHosting) Called(op string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Calls {
		if c == op {
			return true
		}
	}
	return false
}

func (m *MockHosting) enter(op string) error {
	m.Calls = append(m.Calls, op)
	return m.Errors[op]
}

func (m *MockHosting) BranchHead(ctx context.Context, branch string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("BranchHead"); err != nil {
		return "", err
	}
	sha, ok := m.refs[branch]
	if !ok {
		return "", HostError("get ref", http.StatusNotFound)
	}
	return sha, nil
}

func (m *MockHosting) BranchExists(ctx context.Context, branch string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("BranchExists"); err != nil {
		return false, err
	}
	_, ok := m.refs[branch]
	return ok, nil
}

func (m *MockHosting) CreateBranch(ctx context.Context, branch, sha string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateBranch"); err != nil {
		return err
	}
	if _, ok := m.refs[branch]; ok {
		return HostError("create ref", http.StatusUnprocessableEntity)
	}
	if _, ok := m.commits[sha]; !ok {
		return HostError("create ref", http.StatusUnprocessableEntity)
	}
	m.refs[branch] = sha
	return nil
}

func (m *MockHosting) UpdateBranch(ctx context.Context, branch, sha string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateBranch"); err != nil {
		return err
	}
	if _, ok := m.refs[branch]; !ok {
		return HostError("update ref", http.StatusNotFound)
	}
	m.refs[branch] = sha
	return nil
}

func (m *MockHosting) CommitTree(ctx context.Context, commitSHA string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CommitTree"); err != nil {
		return "", err
	}
	c, ok := m.commits[commitSHA]
	if !ok {
		return "", HostError("get commit", http.StatusNotFound)
	}
	return c.tree, nil
}

func (m *MockHosting) CreateBlob(ctx context.Context, content []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateBlob"); err != nil {
		return "", err
	}
	return m.putBlob(content), nil
}

func (m *MockHosting) CreateTree(ctx context.Context, baseTree string, changes []vcs.TreeChange) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateTree"); err != nil {
		return "", err
	}
	base, ok := m.trees[baseTree]
	if !ok {
		return "", HostError("create tree", http.StatusUnprocessableEntity)
	}
	tree := copyTree(base)
	for _, ch := range changes {
		if ch.Delete {
			if _, ok := tree[ch.Path]; !ok {
				return "", HostError("create tree", http.StatusUnprocessableEntity)
			}
			delete(tree, ch.Path)
			continue
		}
		if _, ok := m.blobs[ch.BlobSHA]; !ok {
			return "", HostError("create tree", http.StatusUnprocessableEntity)
		}
		tree[ch.Path] = ch.BlobSHA
	}
	return m.putTree(tree), nil
}

func (m *MockHosting) CreateCommit(ctx context.Context, message, treeSHA, parentSHA string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateCommit"); err != nil {
		return "", err
	}
	if _, ok := m.trees[treeSHA]; !ok {
		return "", HostError("create commit", http.StatusUnprocessableEntity)
	}
	return m.putCommit(treeSHA, parentSHA, message), nil
}

func (m *MockHosting) GetFile(ctx context.Context, path, ref string) (*vcs.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetFile"); err != nil {
		return nil, err
	}
	tree, ok := m.treeOf(ref)
	if !ok {
		return nil, HostError("get contents", http.StatusNotFound)
	}
	blob, ok := tree[path]
	if !ok {
		return nil, HostError("get contents", http.StatusNotFound)
	}
	content := append([]byte(nil), m.blobs[blob]...)
	return &vcs.File{Path: path, SHA: blob, Content: content}, nil
}

func (m *MockHosting) ListDir(ctx context.Context, dir, ref string) ([]vcs.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListDir"); err != nil {
		return nil, err
	}
	tree, ok := m.treeOf(ref)
	if !ok {
		return nil, HostError("list contents", http.StatusNotFound)
	}

	prefix := strings.TrimRight(dir, "/") + "/"
	seenDirs := make(map[string]bool)
	var entries []vcs.DirEntry
	for path, blob := range tree {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := strings.TrimPrefix(path, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			name := rest[:i]
			if !seenDirs[name] {
				seenDirs[name] = true
				entries = append(entries, vcs.DirEntry{Name: name, Path: prefix + name, Type: "dir"})
			}
			continue
		}
		entries = append(entries, vcs.DirEntry{Name: rest, Path: path, SHA: blob, Type: "file"})
	}
	if len(entries) == 0 {
		return nil, HostError("list contents", http.StatusNotFound)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (m *MockHosting) UpdateFile(ctx context.Context, path, branch, message string, content []byte, sha string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateFile"); err != nil {
		return err
	}
	head, ok := m.refs[branch]
	if !ok {
		return HostError("update file", http.StatusNotFound)
	}
	tree := copyTree(m.trees[m.commits[head].tree])
	current, exists := tree[path]
	switch {
	case sha == "" && exists:
		return HostError("update file", http.StatusUnprocessableEntity)
	case sha != "" && current != sha:
		return HostError("update file", http.StatusConflict)
	}
	tree[path] = m.putBlob(content)
	m.refs[branch] = m.putCommit(m.putTree(tree), head, message)
	return nil
}

func (m *MockHosting) OpenPullRequest(ctx context.Context, pr vcs.NewPullRequest) (*models.ReviewRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("OpenPullRequest"); err != nil {
		return nil, err
	}
	head, ok := m.refs[pr.Head]
	if !ok {
		return nil, HostError("create pull request", http.StatusUnprocessableEntity)
	}
	baseSHA, ok := m.refs[pr.Base]
	if !ok {
		return nil, HostError("create pull request", http.StatusUnprocessableEntity)
	}

	number := m.nextPR
	m.nextPR++
	rr := models.ReviewRequest{
		Number:     number,
		Title:      pr.Title,
		Body:       pr.Body,
		Author:     "parts-bot",
		Branch:     pr.Head,
		BaseBranch: pr.Base,
		HeadSHA:    head,
		URL:        fmt.Sprintf("https://github.com/%s/%s/pull/%d", m.Owner, m.Repo, number),
		Status:     models.ReviewStatusOpen,
		CreatedAt:  time.Date(2024, 5, 1, 10, 0, number, 0, time.UTC),
	}
	m.pulls[number] = &mockPull{pr: rr, baseSHA: baseSHA}
	out := rr
	return &out, nil
}

func (m *MockHosting) ListOpenPullRequests(ctx context.Context, base string) ([]models.ReviewRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListOpenPullRequests"); err != nil {
		return nil, err
	}
	var out []models.ReviewRequest
	for _, p := range m.pulls {
		if p.pr.Status == models.ReviewStatusOpen && p.pr.BaseBranch == base {
			out = append(out, p.pr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *MockHosting) GetPullRequest(ctx context.Context, number int) (*models.ReviewRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetPullRequest"); err != nil {
		return nil, err
	}
	p, ok := m.pulls[number]
	if !ok {
		return nil, HostError("get pull request", http.StatusNotFound)
	}
	out := p.pr
	out.HeadSHA = m.refs[p.pr.Branch]
	return &out, nil
}

func (m *MockHosting) PullRequestFiles(ctx context.Context, number int) ([]vcs.ChangedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("PullRequestFiles"); err != nil {
		return nil, err
	}
	p, ok := m.pulls[number]
	if !ok {
		return nil, HostError("list pull request files", http.StatusNotFound)
	}
	base := m.trees[m.commits[p.baseSHA].tree]
	head := m.trees[m.commits[m.refs[p.pr.Branch]].tree]
	return diffTrees(base, head), nil
}

func (m *MockHosting) MergePullRequest(ctx context.Context, number int, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("MergePullRequest"); err != nil {
		return err
	}
	p, ok := m.pulls[number]
	if !ok {
		return HostError("merge pull request", http.StatusNotFound)
	}
	if p.pr.Status != models.ReviewStatusOpen {
		return HostError("merge pull request", http.StatusMethodNotAllowed)
	}

	base := m.trees[m.commits[p.baseSHA].tree]
	head := m.trees[m.commits[m.refs[p.pr.Branch]].tree]
	target := m.refs[p.pr.BaseBranch]
	merged := copyTree(m.trees[m.commits[target].tree])
	for _, f := range diffTrees(base, head) {
		if f.Status == "removed" {
			delete(merged, f.Path)
			continue
		}
		merged[f.Path] = head[f.Path]
	}
	if message == "" {
		message = p.pr.Title
	}
	m.refs[p.pr.BaseBranch] = m.putCommit(m.putTree(merged), target, message)
	p.pr.Status = models.ReviewStatusMerged
	return nil
}

func (m *MockHosting) CompareURL(base, head string) string {
	return vcs.CompareURL("https://github.com", m.Owner, m.Repo, base, head)
}

// treeOf resolves a branch name or commit SHA to its tree
func (m *MockHosting) treeOf(ref string) (map[string]string, bool) {
	sha, ok := m.refs[ref]
	if !ok {
		sha = ref
	}
	c, ok := m.commits[sha]
	if !ok {
		return nil, false
	}
	return m.trees[c.tree], true
}

func (m *MockHosting) putBlob(content []byte) string {
	m.seq++
	sha := fmt.Sprintf("blob-%d", m.seq)
	m.blobs[sha] = append([]byte(nil), content...)
	return sha
}

func (m *MockHosting) putTree(tree map[string]string) string {
	m.seq++
	sha := fmt.Sprintf("tree-%d", m.seq)
	m.trees[sha] = tree
	return sha
}

func (m *MockHosting) putCommit(tree, parent, message string) string {
	m.seq++
	sha := fmt.Sprintf("commit-%d", m.seq)
	m.commits[sha] = mockCommit{tree: tree, parent: parent, message: message}
	return sha
}

func copyTree(tree map[string]string) map[string]string {
	out := make(map[string]string, len(tree))
	for k, v := range tree {
		out[k] = v
	}
	return out
}

func diffTrees(base, head map[string]string) []vcs.ChangedFile {
	var out []vcs.ChangedFile
	for path, blob := range head {
		prev, ok := base[path]
		switch {
		case !ok:
			out = append(out, vcs.ChangedFile{Path: path, Status: "added"})
		case prev != blob:
			out = append(out, vcs.ChangedFile{Path: path, Status: "modified"})
		}
	}
	for path := range base {
		if _, ok := head[path]; !ok {
			out = append(out, vcs.ChangedFile{Path: path, Status: "removed"})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
