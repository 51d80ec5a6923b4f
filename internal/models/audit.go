package models

// DuplicateGroup is a set of catalog entries sharing one normalized external URL key
type DuplicateGroup struct {
	Key     string         `json:"key"`
	Entries []CatalogEntry `json:"entries"`
}
