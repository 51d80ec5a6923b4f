package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/config"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
)

func newTestValidator() *Validator {
	return NewValidator(config.SubmissionConfig{
		MaxBatchSize:    10,
		KnownPlatforms:  config.DefaultPlatforms,
		KnownCategories: config.DefaultCategories,
	})
}

func validPart() models.PartRecord {
	return models.PartRecord{
		Title:       "Motor Mount",
		Platform:    []string{"MBoards"},
		TypeOfPart:  []string{"Mount"},
		ExternalURL: "https://www.printables.com/model/123-mount",
	}
}

func TestValidatePart(t *testing.T) {
	validator := newTestValidator()

	tests := []struct {
		name       string
		modify     func(p *models.PartRecord)
		wantFields []string
	}{
		{
			name:   "valid part",
			modify: func(p *models.PartRecord) {},
		},
		{
			name:       "missing title",
			modify:     func(p *models.PartRecord) { p.Title = "   " },
			wantFields: []string{"title"},
		},
		{
			name: "missing several fields reports all of them",
			modify: func(p *models.PartRecord) {
				p.ExternalURL = ""
				p.TypeOfPart = nil
			},
			wantFields: []string{"externalUrl", "typeOfPart"},
		},
		{
			name:       "blank platform values count as missing",
			modify:     func(p *models.PartRecord) { p.Platform = []string{"", " "} },
			wantFields: []string{"platform"},
		},
		{
			name:       "external URL must be http",
			modify:     func(p *models.PartRecord) { p.ExternalURL = "javascript:alert(1)" },
			wantFields: []string{"externalUrl"},
		},
		{
			name:       "image must be http when present",
			modify:     func(p *models.PartRecord) { p.ImageSrc = "/relative.png" },
			wantFields: []string{"imageSrc"},
		},
		{
			name:       "unrecognized platform",
			modify:     func(p *models.PartRecord) { p.Platform = []string{"Hoverboard"} },
			wantFields: []string{"platform"},
		},
		{
			name:   "one recognized platform is enough",
			modify: func(p *models.PartRecord) { p.Platform = []string{"Hoverboard", "meepo"} },
		},
		{
			name:       "unrecognized category",
			modify:     func(p *models.PartRecord) { p.TypeOfPart = []string{"Sticker"} },
			wantFields: []string{"typeOfPart"},
		},
		{
			name: "oem flag supplies a recognized category",
			modify: func(p *models.PartRecord) {
				p.TypeOfPart = []string{"Sticker"}
				p.IsOEM = true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			part := validPart()
			tt.modify(&part)

			errs := validator.ValidatePart(&part)
			if len(errs) != len(tt.wantFields) {
				t.Fatalf("Expected %d errors, got %d: %+v", len(tt.wantFields), len(errs), errs)
			}
			for i, field := range tt.wantFields {
				if errs[i].Field != field {
					t.Errorf("Expected error on %s, got %s", field, errs[i].Field)
				}
			}
		})
	}
}

func TestValidateBatch_SecondRecordMissingType(t *testing.T) {
	validator := newTestValidator()

	second := validPart()
	second.Title = "Battery Box"
	second.TypeOfPart = nil
	batch := &models.SubmissionBatch{Parts: []models.PartRecord{validPart(), second}}

	err := validator.ValidateBatch(batch)
	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("Expected BatchError, got %v", err)
	}
	if batchErr.Record != 2 {
		t.Errorf("Expected record 2, got %d", batchErr.Record)
	}
	if got := batchErr.Fields(); len(got) != 1 || got[0] != "typeOfPart" {
		t.Errorf("Expected typeOfPart, got %v", got)
	}
	if !strings.Contains(err.Error(), "Part 2") || !strings.Contains(err.Error(), "typeOfPart") {
		t.Errorf("Unexpected message %q", err.Error())
	}
}

func TestValidateBatch_Order(t *testing.T) {
	validator := newTestValidator()

	t.Run("honeypot wins over everything", func(t *testing.T) {
		err := validator.ValidateBatch(&models.SubmissionBatch{HPField: "http://spam"})
		if !errors.Is(err, ErrBotDetected) {
			t.Errorf("Expected ErrBotDetected, got %v", err)
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		err := validator.ValidateBatch(&models.SubmissionBatch{})
		var batchErr *BatchError
		if !errors.As(err, &batchErr) || batchErr.Record != 0 {
			t.Errorf("Expected batch-level error, got %v", err)
		}
	})

	t.Run("record errors reported before size cap", func(t *testing.T) {
		parts := make([]models.PartRecord, 11)
		for i := range parts {
			parts[i] = validPart()
		}
		parts[4].Title = ""

		err := validator.ValidateBatch(&models.SubmissionBatch{Parts: parts})
		var batchErr *BatchError
		if !errors.As(err, &batchErr) || batchErr.Record != 5 {
			t.Errorf("Expected record 5, got %v", err)
		}
	})

	t.Run("size cap", func(t *testing.T) {
		parts := make([]models.PartRecord, 11)
		for i := range parts {
			parts[i] = validPart()
		}
		err := validator.ValidateBatch(&models.SubmissionBatch{Parts: parts})
		if err == nil || !strings.Contains(err.Error(), "max 10") {
			t.Errorf("Expected size cap error, got %v", err)
		}
	})

	t.Run("ten records pass", func(t *testing.T) {
		parts := make([]models.PartRecord, 10)
		for i := range parts {
			parts[i] = validPart()
		}
		if err := validator.ValidateBatch(&models.SubmissionBatch{Parts: parts}); err != nil {
			t.Errorf("Expected valid batch, got %v", err)
		}
	})
}

func TestValidateBatch_Idempotent(t *testing.T) {
	validator := newTestValidator()

	bad := validPart()
	bad.Platform = nil
	batches := []*models.SubmissionBatch{
		{Parts: []models.PartRecord{validPart()}},
		{Parts: []models.PartRecord{validPart(), bad}},
	}

	for _, batch := range batches {
		before := len(batch.Parts[0].TypeOfPart)
		first := validator.ValidateBatch(batch)
		second := validator.ValidateBatch(batch)

		if (first == nil) != (second == nil) {
			t.Fatalf("Decisions differ: %v vs %v", first, second)
		}
		if first != nil && first.Error() != second.Error() {
			t.Errorf("Messages differ: %q vs %q", first.Error(), second.Error())
		}
		if len(batch.Parts[0].TypeOfPart) != before {
			t.Error("Expected the batch to stay unmodified")
		}
	}
}

func TestEmptyVocabularyAcceptsAnything(t *testing.T) {
	validator := NewValidator(config.SubmissionConfig{MaxBatchSize: 10})
	part := validPart()
	part.Platform = []string{"Anything"}
	part.TypeOfPart = []string{"Whatever"}

	if errs := validator.ValidatePart(&part); len(errs) != 0 {
		t.Errorf("Expected no errors, got %+v", errs)
	}
}
