package audit

import (
	"testing"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
)

func entry(id, url string) models.CatalogEntry {
	return models.CatalogEntry{ID: id, Part: models.PartRecord{Title: id, ExternalURL: url}}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "printables slug", in: "https://www.printables.com/model/555-x", want: "printables-555"},
		{name: "printables uppercase trailing slash", in: "https://PRINTABLES.com/model/555-x/", want: "printables-555"},
		{name: "printables locale and query", in: "https://www.printables.com/de/model/555-x/files?lang=de#comments", want: "printables-555"},
		{name: "thingiverse", in: "https://www.thingiverse.com/thing:4242/files", want: "thingiverse-4242"},
		{name: "makerworld", in: "https://makerworld.com/en/models/98765#profileId-1", want: "makerworld-98765"},
		{name: "generic", in: "  HTTPS://www.Example.com/Parts/Deck/  ", want: "example.com/parts/deck"},
		{name: "generic http", in: "http://shop.example.com/item", want: "shop.example.com/item"},
		{name: "printables non-model page", in: "https://www.printables.com/@someone/collections", want: "printables.com/@someone/collections"},
		{name: "marketplace only in query", in: "https://example.com/?ref=printables.com/model/5", want: "example.com/?ref=printables.com/model/5"},
		{name: "marketplace only in fragment", in: "https://example.com/page#thingiverse.com/thing:7", want: "example.com/page#thingiverse.com/thing:7"},
		{name: "lookalike host", in: "https://notprintables.com/model/5", want: "notprintables.com/model/5"},
		{name: "no scheme", in: "printables.com/model/5-deck", want: "printables-5"},
		{name: "empty", in: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeURL(tt.in); got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFindDuplicates(t *testing.T) {
	entries := []models.CatalogEntry{
		entry("part-0001.json", "https://www.printables.com/model/555-x"),
		entry("part-0002.json", "https://example.com/deck"),
		entry("part-0003.json", "https://PRINTABLES.com/model/555-x/"),
		entry("part-0004.json", "https://www.example.com/deck/"),
		entry("part-0005.json", "https://example.com/unique"),
		entry("part-0006.json", ""),
		entry("part-0007.json", ""),
	}

	groups := FindDuplicates(entries)
	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d: %+v", len(groups), groups)
	}
	if groups[0].Key != "example.com/deck" || groups[1].Key != "printables-555" {
		t.Errorf("Unexpected keys %s, %s", groups[0].Key, groups[1].Key)
	}
	if groups[1].Entries[0].ID != "part-0001.json" || groups[1].Entries[1].ID != "part-0003.json" {
		t.Errorf("Expected catalog order inside group, got %+v", groups[1].Entries)
	}
}

func TestFindDuplicates_Symmetric(t *testing.T) {
	a := entry("a", "https://www.printables.com/model/555-x")
	b := entry("b", "https://PRINTABLES.com/model/555-x/")
	other := entry("c", "https://example.com/c")

	orders := [][]models.CatalogEntry{
		{a, b, other},
		{b, a, other},
		{other, b, a},
	}

	for i, order := range orders {
		groups := FindDuplicates(order)
		if len(groups) != 1 {
			t.Fatalf("order %d: expected one group, got %d", i, len(groups))
		}
		ids := map[string]bool{}
		for _, e := range groups[0].Entries {
			ids[e.ID] = true
		}
		if !ids["a"] || !ids["b"] || len(ids) != 2 {
			t.Errorf("order %d: expected a and b together, got %v", i, ids)
		}
	}
}

func TestFindDuplicates_NoneIsEmptySlice(t *testing.T) {
	groups := FindDuplicates([]models.CatalogEntry{entry("a", "https://a.example")})
	if groups == nil || len(groups) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", groups)
	}
}
