package memory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
)

// Products implements product.Repository.
type Products struct{ s *Store }

var _ product.Repository = (*Products)(nil)

func (r *Products) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return cloneProduct(p), nil
}

func (r *Products) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := make(map[string]bool, len(ids))
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := r.s.products[id]; ok {
			out = append(out, *cloneProduct(p))
		}
	}
	return out, nil
}

func (r *Products) GetCategory(_ context.Context, id string) (*product.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.categories[id]
	if !ok {
		return nil, product.ErrCategoryNotFound
	}
	cp := *c
	cp.OfferIDs = append([]string(nil), c.OfferIDs...)
	return &cp, nil
}

func (r *Products) UpdatePricing(_ context.Context, id string, effectiveDiscount, salePrice decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return product.ErrNotFound
	}
	p.EffectiveDiscount = effectiveDiscount
	p.SalePrice = salePrice
	return nil
}

// Offers implements pricing.OfferRepository.
type Offers struct{ s *Store }

var _ pricing.OfferRepository = (*Offers)(nil)

func (r *Offers) GetOffers(_ context.Context, ids []string) ([]pricing.Offer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]pricing.Offer, 0, len(ids))
	for _, id := range ids {
		if o, ok := r.s.offers[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}
