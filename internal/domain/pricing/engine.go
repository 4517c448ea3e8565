package pricing

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/product"
)

// Engine recomputes product pricing against live offers and writes the
// result back to the catalog when it changed.
type Engine struct {
	products product.Repository
	offers   OfferRepository
	now      func() time.Time
}

// NewEngine creates an Engine backed by the catalog and offer repositories.
func NewEngine(products product.Repository, offers OfferRepository) *Engine {
	return &Engine{products: products, offers: offers, now: time.Now}
}

// Refresh updates p.EffectiveDiscount and p.SalePrice from the best offer
// attached to the product or its category, falling back to the base
// p.DiscountPercent once no offer applies. The category is loaded when c is
// nil. The catalog is only written when the derived values differ from the
// stored ones.
func (e *Engine) Refresh(ctx context.Context, p *product.Product, c *product.Category) error {
	if c == nil && p.CategoryID != "" {
		cat, err := e.products.GetCategory(ctx, p.CategoryID)
		if err != nil && !errors.Is(err, product.ErrCategoryNotFound) {
			return errors.Wrap(err, "get category")
		}
		c = cat
	}

	ids := append([]string(nil), p.OfferIDs...)
	if c != nil {
		ids = append(ids, c.OfferIDs...)
	}

	var offers []Offer
	if len(ids) > 0 {
		var err error
		offers, err = e.offers.GetOffers(ctx, ids)
		if err != nil {
			return errors.Wrap(err, "get offers")
		}
	}

	pct, err := BestDiscount(p.RegularPrice, p.DiscountPercent, offers, e.now())
	if err != nil {
		return errors.Wrapf(err, "best discount for %s", p.ID)
	}
	sale, err := SalePrice(p.RegularPrice, pct)
	if err != nil {
		return errors.Wrapf(err, "sale price for %s", p.ID)
	}

	if pct.Equal(p.EffectiveDiscount) && sale.Equal(p.SalePrice) {
		return nil
	}
	p.EffectiveDiscount = pct
	p.SalePrice = sale

	if err := e.products.UpdatePricing(ctx, p.ID, pct, sale); err != nil {
		return errors.Wrap(err, "update pricing")
	}
	return nil
}
