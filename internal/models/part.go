package models

import (
	"strings"
	"time"
)

// DefaultFabricationMethod is used when a submitter leaves fabricationMethod empty
const DefaultFabricationMethod = "3d Printed"

// OEMTag is the synthetic typeOfPart marker injected for OEM parts
const OEMTag = "OEM"

// PartRecord represents a catalog entry
type PartRecord struct {
	Title                 string   `json:"title"`
	ImageSrc              string   `json:"imageSrc"`
	Platform              []string `json:"platform"`
	FabricationMethod     []string `json:"fabricationMethod"`
	TypeOfPart            []string `json:"typeOfPart"`
	DropboxURL            string   `json:"dropboxUrl"`
	DropboxZipLastUpdated string   `json:"dropboxZipLastUpdated"`
	ExternalURL           string   `json:"externalUrl"`
	IsOEM                 bool     `json:"isOem,omitempty"`
}

// SubmissionBatch is one or more parts submitted together.
// HPField is the honeypot input; humans never fill it.
type SubmissionBatch struct {
	Parts   []PartRecord `json:"parts"`
	HPField string       `json:"hp_field,omitempty"`
}

// LegacySubmission is the single-part request shape sent by older clients
type LegacySubmission struct {
	PrintablesURL string      `json:"printablesUrl"`
	EditedPart    *PartRecord `json:"editedPart"`
}

// SubmissionRequest accepts both the batch and the legacy request body
type SubmissionRequest struct {
	Parts         []PartRecord `json:"parts"`
	HPField       string       `json:"hp_field,omitempty"`
	PrintablesURL string       `json:"printablesUrl,omitempty"`
	EditedPart    *PartRecord  `json:"editedPart,omitempty"`
}

// ToBatch converts either request shape into a SubmissionBatch
func (r *SubmissionRequest) ToBatch() *SubmissionBatch {
	batch := &SubmissionBatch{Parts: r.Parts, HPField: r.HPField}
	if len(batch.Parts) == 0 && r.EditedPart != nil {
		part := *r.EditedPart
		if strings.TrimSpace(part.ExternalURL) == "" {
			part.ExternalURL = r.PrintablesURL
		}
		batch.Parts = []PartRecord{part}
	}
	return batch
}

// Normalize applies defaults to a validated record. It returns a copy.
func (p PartRecord) Normalize(now time.Time) PartRecord {
	out := p
	out.Title = strings.TrimSpace(p.Title)
	out.ImageSrc = strings.TrimSpace(p.ImageSrc)
	out.ExternalURL = strings.TrimSpace(p.ExternalURL)
	out.DropboxURL = strings.TrimSpace(p.DropboxURL)
	out.Platform = cleanSet(p.Platform)
	out.TypeOfPart = cleanSet(p.TypeOfPart)
	out.FabricationMethod = cleanSet(p.FabricationMethod)
	if len(out.FabricationMethod) == 0 {
		out.FabricationMethod = []string{DefaultFabricationMethod}
	}
	if strings.TrimSpace(out.DropboxZipLastUpdated) == "" {
		out.DropboxZipLastUpdated = now.Format("2006-01-02")
	}
	if out.IsOEM && !containsFold(out.TypeOfPart, OEMTag) {
		out.TypeOfPart = append(out.TypeOfPart, OEMTag)
	}
	return out
}

// cleanSet trims values, drops empties and removes duplicates while keeping order
func cleanSet(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

// CatalogEntry is a persisted part together with the identifier of its backing file or array slot
type CatalogEntry struct {
	ID   string     `json:"id"`
	Path string     `json:"path"`
	Part PartRecord `json:"part"`
}
