package models

// Metadata is the normalized record produced by a resolver strategy
type Metadata struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Image       string   `json:"image,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// ResolveAttempt is one diagnostic entry of the resolver chain
type ResolveAttempt struct {
	Strategy   string `json:"strategy"`
	Proxy      string `json:"proxy,omitempty"`
	StatusCode int    `json:"status,omitempty"`
	Snippet    string `json:"snippet,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// MetadataResult is the outcome of resolving a source URL
type MetadataResult struct {
	Success bool `json:"success"`
	Metadata
	Source   string           `json:"source,omitempty"`
	Error    string           `json:"error,omitempty"`
	Attempts []ResolveAttempt `json:"attempts,omitempty"`
}
