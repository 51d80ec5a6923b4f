package service

import (
	"context"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/catalog"
)

// categorySource reads the admin-owned typeOfPart vocabulary from the base branch
type categorySource struct {
	reader   *catalog.Reader
	base     string
	fallback []string
}

// Load returns the stored vocabulary, or the configured one while the repository has no vocabulary file
func (c *categorySource) Load(ctx context.Context) ([]string, error) {
	categories, _, err := c.reader.Categories(ctx, c.base)
	if err != nil {
		return nil, err
	}
	if categories == nil {
		return append([]string{}, c.fallback...), nil
	}
	return categories, nil
}
