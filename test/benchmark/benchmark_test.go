package benchmark

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/audit"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/catalog"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/config"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/mocks"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/ratelimit"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/validation"
)

func part(i int) models.PartRecord {
	return models.PartRecord{
		Title:       fmt.Sprintf("Motor Mount %04d", i),
		ImageSrc:    "https://media.printables.com/media/prints/mount.png",
		Platform:    []string{"MBoards"},
		TypeOfPart:  []string{"Mount"},
		ExternalURL: fmt.Sprintf("https://www.printables.com/model/%d-mount", i),
	}
}

// BenchmarkValidateBatch benchmarks validation of a full-size batch
func BenchmarkValidateBatch(b *testing.B) {
	validator := validation.NewValidator(config.SubmissionConfig{
		MaxBatchSize:    10,
		KnownPlatforms:  config.DefaultPlatforms,
		KnownCategories: config.DefaultCategories,
	})

	batch := &models.SubmissionBatch{Parts: make([]models.PartRecord, 10)}
	for i := range batch.Parts {
		batch.Parts[i] = part(i)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if err := validator.ValidateBatch(batch); err != nil {
			b.Fatal(err)
		}
	}

	b.ReportMetric(float64(10*b.N)/b.Elapsed().Seconds(), "records/sec")
}

// BenchmarkInsertIntoArray benchmarks textual insertion into a large catalog array
func BenchmarkInsertIntoArray(b *testing.B) {
	existing := make([]models.PartRecord, 2000)
	for i := range existing {
		existing[i] = part(i)
	}
	content, err := catalog.EncodeArray(existing)
	if err != nil {
		b.Fatal(err)
	}
	marker := regexp.MustCompile(`\]\s*$`)
	added := []models.PartRecord{part(5000)}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := catalog.InsertIntoArray(content, marker, added); err != nil {
			b.Fatal(err)
		}
	}

	b.ReportMetric(float64(len(content)*b.N)/b.Elapsed().Seconds()/1e6, "MB/sec")
}

// BenchmarkFindDuplicates benchmarks the audit over a catalog with one duplicate in ten
func BenchmarkFindDuplicates(b *testing.B) {
	entries := make([]models.CatalogEntry, 5000)
	for i := range entries {
		p := part(i)
		if i%10 == 0 {
			p.ExternalURL = fmt.Sprintf("http://printables.com/model/%d-copy/", i+1)
		}
		entries[i] = models.CatalogEntry{ID: fmt.Sprintf("part-%04d.json", i), Part: p}
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		audit.FindDuplicates(entries)
	}

	b.ReportMetric(float64(5000*b.N)/b.Elapsed().Seconds(), "rows/sec")
}

// BenchmarkLimiterParallel benchmarks concurrent check-and-record over many identities
func BenchmarkLimiterParallel(b *testing.B) {
	limiter := ratelimit.NewLimiter(mocks.NewMockRateLimitRepository(), config.RateLimitConfig{}, zerolog.Nop())
	ctx := context.Background()

	var mu sync.Mutex
	next := 0

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		mu.Lock()
		worker := next
		next++
		mu.Unlock()

		i := 0
		for pb.Next() {
			identity := fmt.Sprintf("198.51.%d.%d", worker%256, i%256)
			if _, err := limiter.Check(ctx, identity); err != nil {
				b.Error(err)
				return
			}
			if err := limiter.Record(ctx, identity); err != nil {
				b.Error(err)
				return
			}
			i++
		}
	})
}
