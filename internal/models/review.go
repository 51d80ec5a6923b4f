package models

import "time"

// ReviewStatus represents the lifecycle state of a review request
type ReviewStatus string

const (
	ReviewStatusOpen      ReviewStatus = "open"
	ReviewStatusMerged    ReviewStatus = "merged"
	ReviewStatusAbandoned ReviewStatus = "abandoned"
)

// ReviewRequest represents a change proposal against the base branch
type ReviewRequest struct {
	Number     int          `json:"number"`
	Title      string       `json:"title"`
	Body       string       `json:"body"`
	Author     string       `json:"author"`
	Branch     string       `json:"branch"`
	BaseBranch string       `json:"base"`
	HeadSHA    string       `json:"head_sha,omitempty"`
	URL        string       `json:"html_url,omitempty"`
	Status     ReviewStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
}

// ReviewContent is the structured preview of the records a review request proposes
type ReviewContent struct {
	Number  int            `json:"number"`
	Parts   []CatalogEntry `json:"parts"`
	Removed []string       `json:"removed,omitempty"`
	Files   []string       `json:"files"`
}

// SubmissionResult is returned to the submitter once the pipeline finished
type SubmissionResult struct {
	Success   bool   `json:"success"`
	PRURL     string `json:"prUrl,omitempty"`
	ManualURL string `json:"manualUrl,omitempty"`
	Warning   string `json:"warning,omitempty"`
	Branch    string `json:"branch,omitempty"`
}

// BatchAction is the admin payload combining merges, deletions and a vocabulary update
type BatchAction struct {
	MergePRs         []int    `json:"mergePrs"`
	DeleteFiles      []string `json:"deleteFiles"`
	UpdateCategories []string `json:"updateCategories"`
}

// IsEmpty reports whether the action requests no work at all
func (a *BatchAction) IsEmpty() bool {
	return len(a.MergePRs) == 0 && len(a.DeleteFiles) == 0 && a.UpdateCategories == nil
}

// BatchResult summarizes the outcome of a batch action
type BatchResult struct {
	Merged            []int          `json:"merged"`
	MergeErrors       map[int]string `json:"mergeErrors,omitempty"`
	Deleted           []string       `json:"deleted,omitempty"`
	NotFound          []string       `json:"notFound,omitempty"`
	CategoriesUpdated bool           `json:"categoriesUpdated"`
	Branch            string         `json:"branch,omitempty"`
	PRURL             string         `json:"prUrl,omitempty"`
	ManualURL         string         `json:"manualUrl,omitempty"`
	Warning           string         `json:"warning,omitempty"`
}
