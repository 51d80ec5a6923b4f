package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/config"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
)

// ErrBotDetected is returned when the honeypot field is filled.
// Callers answer with an apparent success and do nothing else.
var ErrBotDetected = errors.New("honeypot field filled")

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// BatchError reports the first offending record of a batch.
// Record is 1-based; 0 means the batch as a whole is invalid.
type BatchError struct {
	Record int
	Errors []ValidationError
}

func (e *BatchError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		msgs = append(msgs, ve.Message)
	}
	if e.Record == 0 {
		return strings.Join(msgs, "; ")
	}
	return fmt.Sprintf("Part %d: %s", e.Record, strings.Join(msgs, "; "))
}

// Fields returns the offending field names
func (e *BatchError) Fields() []string {
	fields := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		fields = append(fields, ve.Field)
	}
	return fields
}

// Validator checks submission batches. It holds no per-request state.
type Validator struct {
	maxBatch   int
	platforms  map[string]bool
	categories map[string]bool
}

// NewValidator creates a new validator instance.
// An empty vocabulary accepts any value for that field.
func NewValidator(cfg config.SubmissionConfig) *Validator {
	maxBatch := cfg.MaxBatchSize
	if maxBatch < 1 {
		maxBatch = 10
	}
	return &Validator{
		maxBatch:   maxBatch,
		platforms:  vocabulary(cfg.KnownPlatforms),
		categories: vocabulary(cfg.KnownCategories),
	}
}

func vocabulary(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			set[v] = true
		}
	}
	return set
}

// ValidateBatch checks the batch in order and stops at the first violation:
// honeypot, non-empty batch, per-record required fields, batch size cap.
// The batch is never modified.
func (v *Validator) ValidateBatch(batch *models.SubmissionBatch) error {
	return v.validateBatch(batch, v.categories)
}

// ValidateBatchWith is ValidateBatch against a typeOfPart vocabulary read at request time.
// A nil vocabulary falls back to the configured one.
func (v *Validator) ValidateBatchWith(batch *models.SubmissionBatch, categories []string) error {
	if categories == nil {
		return v.validateBatch(batch, v.categories)
	}
	return v.validateBatch(batch, vocabulary(categories))
}

func (v *Validator) validateBatch(batch *models.SubmissionBatch, categories map[string]bool) error {
	if batch == nil {
		return &BatchError{Errors: []ValidationError{{Field: "parts", Message: "At least one part is required"}}}
	}
	if HasHoneypot(batch) {
		return ErrBotDetected
	}
	if len(batch.Parts) == 0 {
		return &BatchError{Errors: []ValidationError{{Field: "parts", Message: "At least one part is required"}}}
	}

	for i := range batch.Parts {
		if errs := v.validatePart(&batch.Parts[i], categories); len(errs) > 0 {
			return &BatchError{Record: i + 1, Errors: errs}
		}
	}

	if len(batch.Parts) > v.maxBatch {
		return &BatchError{Errors: []ValidationError{{
			Field:   "parts",
			Message: fmt.Sprintf("Too many parts in one submission (max %d)", v.maxBatch),
			Value:   len(batch.Parts),
		}}}
	}
	return nil
}

// ValidatePart returns every problem of a single record
func (v *Validator) ValidatePart(part *models.PartRecord) []ValidationError {
	return v.validatePart(part, v.categories)
}

func (v *Validator) validatePart(part *models.PartRecord, categories map[string]bool) []ValidationError {
	var errors []ValidationError
	var missing []string

	if strings.TrimSpace(part.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(part.ExternalURL) == "" {
		missing = append(missing, "externalUrl")
	}
	if !hasValue(part.Platform) {
		missing = append(missing, "platform")
	}
	if !hasValue(part.TypeOfPart) {
		missing = append(missing, "typeOfPart")
	}
	for _, field := range missing {
		errors = append(errors, ValidationError{Field: field, Message: field + " is required"})
	}
	if len(errors) > 0 {
		return errors
	}

	// Validate URLs
	if !isHTTPURL(part.ExternalURL) {
		errors = append(errors, ValidationError{Field: "externalUrl", Message: "externalUrl must be an http(s) URL", Value: part.ExternalURL})
	}
	if part.ImageSrc != "" && !isHTTPURL(part.ImageSrc) {
		errors = append(errors, ValidationError{Field: "imageSrc", Message: "imageSrc must be an http(s) URL", Value: part.ImageSrc})
	}
	if part.DropboxURL != "" && !isHTTPURL(part.DropboxURL) {
		errors = append(errors, ValidationError{Field: "dropboxUrl", Message: "dropboxUrl must be an http(s) URL", Value: part.DropboxURL})
	}

	// Validate vocabularies
	if !recognized(v.platforms, part.Platform) {
		errors = append(errors, ValidationError{Field: "platform", Message: "platform has no recognized value", Value: part.Platform})
	}
	if !recognized(categories, part.TypeOfPart) && !(part.IsOEM && categories[strings.ToLower(models.OEMTag)]) {
		errors = append(errors, ValidationError{Field: "typeOfPart", Message: "typeOfPart has no recognized value", Value: part.TypeOfPart})
	}

	return errors
}

func hasValue(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

func recognized(set map[string]bool, values []string) bool {
	if len(set) == 0 {
		return true
	}
	for _, v := range values {
		if set[strings.ToLower(strings.TrimSpace(v))] {
			return true
		}
	}
	return false
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// HasHoneypot reports whether the batch carries the bot trap value
func HasHoneypot(batch *models.SubmissionBatch) bool {
	return batch != nil && strings.TrimSpace(batch.HPField) != ""
}
