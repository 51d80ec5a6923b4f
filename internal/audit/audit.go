// Package audit groups catalog entries that point at the same external source.
package audit

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
)

// marketplace reduces item-page URLs of a known site to "<name>-<id>"
type marketplace struct {
	name string
	host string
	path *regexp.Regexp
}

var marketplaces = []marketplace{
	{name: "printables", host: "printables.com", path: regexp.MustCompile(`^/(?:[a-z]{2}/)?model/(\d+)`)},
	{name: "thingiverse", host: "thingiverse.com", path: regexp.MustCompile(`^/thing:(\d+)`)},
	{name: "makerworld", host: "makerworld.com", path: regexp.MustCompile(`^/(?:[a-z]{2}/)?models/(\d+)`)},
}

// NormalizeURL returns the grouping key of an external URL.
// Known marketplace item pages collapse to "<marketplace>-<id>"; anything else
// loses its protocol, a leading "www." and trailing slashes.
// Marketplaces are recognized from the host and path only, never the query.
func NormalizeURL(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return ""
	}

	if id, name := marketplaceID(key); id != "" {
		return name + "-" + id
	}

	if i := strings.Index(key, "://"); i >= 0 {
		key = key[i+3:]
	}
	key = strings.TrimPrefix(key, "www.")
	return strings.TrimRight(key, "/")
}

func marketplaceID(key string) (string, string) {
	if !strings.Contains(key, "://") {
		key = "//" + key
	}
	u, err := url.Parse(key)
	if err != nil || u.Host == "" {
		return "", ""
	}
	host := u.Hostname()
	for _, m := range marketplaces {
		if host != m.host && !strings.HasSuffix(host, "."+m.host) {
			continue
		}
		if match := m.path.FindStringSubmatch(u.Path); match != nil {
			return match[1], m.name
		}
	}
	return "", ""
}

// FindDuplicates returns every group of two or more entries sharing a key.
// Groups are ordered by key; entries keep their catalog order.
func FindDuplicates(entries []models.CatalogEntry) []models.DuplicateGroup {
	byKey := make(map[string][]models.CatalogEntry)
	for _, entry := range entries {
		key := NormalizeURL(entry.Part.ExternalURL)
		if key == "" {
			continue
		}
		byKey[key] = append(byKey[key], entry)
	}

	groups := make([]models.DuplicateGroup, 0)
	for key, members := range byKey {
		if len(members) < 2 {
			continue
		}
		groups = append(groups, models.DuplicateGroup{Key: key, Entries: members})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}
