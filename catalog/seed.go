// Package catalog holds the category taxonomy and seeds it into a store.
package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/wallet-ledger/ledger"
)

// Saver is the slice of ledger.Store seeding needs.
type Saver interface {
	SaveCategory(ctx context.Context, c ledger.Category) (ledger.Category, error)
}

type Result struct {
	Categories    int
	Subcategories int
}

// Seed upserts groups by (type, name). Running it twice changes nothing.
func Seed(ctx context.Context, s Saver, groups []Group, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var res Result
	for _, g := range groups {
		c := ledger.Category{Type: g.Type, Name: g.Name}
		for _, name := range g.Subcategories {
			c.Subcategories = append(c.Subcategories, ledger.Subcategory{Name: name})
		}
		stored, err := s.SaveCategory(ctx, c)
		if err != nil {
			return res, fmt.Errorf("seed category %s/%s: %w", g.Type, g.Name, err)
		}
		res.Categories++
		res.Subcategories += len(stored.Subcategories)
		logger.Debug("category seeded",
			zap.String("category_id", string(stored.ID)),
			zap.String("type", string(stored.Type)),
			zap.String("name", stored.Name),
			zap.Int("subcategories", len(stored.Subcategories)))
	}
	logger.Info("catalog seeded",
		zap.Int("categories", res.Categories),
		zap.Int("subcategories", res.Subcategories))
	return res, nil
}
