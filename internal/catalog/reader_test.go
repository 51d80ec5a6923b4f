package catalog_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/catalog"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/config"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/mocks"
)

func contentConfig(strategy string) config.ContentConfig {
	return config.ContentConfig{
		Strategy:       strategy,
		Dir:            "src/data/parts",
		FilePrefix:     "part-",
		IDWidth:        4,
		CatalogFile:    "src/data/parts.json",
		CatalogMarker:  `\]\s*$`,
		CategoriesFile: "src/data/categories.json",
	}
}

func TestSnapshot_Files(t *testing.T) {
	host := mocks.NewMockHosting("master")
	host.Seed("master", map[string]string{
		"src/data/parts/part-0002.json": `{"title":"B","externalUrl":"https://b"}`,
		"src/data/parts/part-0001.json": `{"title":"A","externalUrl":"https://a"}`,
		"src/data/parts/part-0003.json": `not json`,
		"src/data/parts/notes.txt":      `ignored`,
	})

	reader, err := catalog.NewReader(host, contentConfig(config.StrategyFiles), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}

	entries, err := reader.Snapshot(context.Background(), "master")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 readable entries, got %d", len(entries))
	}
	if entries[0].ID != "part-0001.json" || entries[0].Part.Title != "A" {
		t.Errorf("Unexpected first entry %+v", entries[0])
	}
	if entries[1].Path != "src/data/parts/part-0002.json" {
		t.Errorf("Unexpected path %s", entries[1].Path)
	}
}

func TestSnapshot_MissingContentIsEmpty(t *testing.T) {
	host := mocks.NewMockHosting("master")

	for _, strategy := range []string{config.StrategyFiles, config.StrategyArray} {
		reader, _ := catalog.NewReader(host, contentConfig(strategy), zerolog.Nop())
		entries, err := reader.Snapshot(context.Background(), "master")
		if err != nil {
			t.Errorf("%s: Snapshot() error = %v", strategy, err)
		}
		if len(entries) != 0 {
			t.Errorf("%s: expected empty catalog, got %d", strategy, len(entries))
		}
	}
}

func TestSnapshot_Array(t *testing.T) {
	host := mocks.NewMockHosting("master")
	host.Seed("master", map[string]string{
		"src/data/parts.json": `[{"title":"A"},{"title":"B"}]`,
	})

	reader, _ := catalog.NewReader(host, contentConfig(config.StrategyArray), zerolog.Nop())
	entries, err := reader.Snapshot(context.Background(), "master")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(entries) != 2 || entries[1].ID != "2" || entries[1].Part.Title != "B" {
		t.Errorf("Unexpected entries %+v", entries)
	}
}

func TestCategories(t *testing.T) {
	host := mocks.NewMockHosting("master")
	reader, _ := catalog.NewReader(host, contentConfig(config.StrategyFiles), zerolog.Nop())

	categories, sha, err := reader.Categories(context.Background(), "master")
	if err != nil || categories != nil || sha != "" {
		t.Errorf("Expected empty vocabulary for missing file, got %v %q %v", categories, sha, err)
	}

	host.Seed("master", map[string]string{"src/data/categories.json": `["Deck","Motor"]`})
	categories, sha, err = reader.Categories(context.Background(), "master")
	if err != nil {
		t.Fatalf("Categories() error = %v", err)
	}
	if len(categories) != 2 || sha == "" {
		t.Errorf("Unexpected vocabulary %v (sha %q)", categories, sha)
	}
}

func TestNewReader_InvalidMarker(t *testing.T) {
	cfg := contentConfig(config.StrategyArray)
	cfg.CatalogMarker = `(`
	if _, err := catalog.NewReader(mocks.NewMockHosting("master"), cfg, zerolog.Nop()); err == nil {
		t.Error("Expected error for invalid marker")
	}
}
