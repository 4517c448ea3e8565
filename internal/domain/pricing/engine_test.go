package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/product"
)

type mockCatalog struct {
	categories map[string]*product.Category
	updates    int
	updateErr  error
	lastPct    decimal.Decimal
	lastSale   decimal.Decimal
}

func (m *mockCatalog) GetByID(_ context.Context, _ string) (*product.Product, error) {
	return nil, product.ErrNotFound
}

func (m *mockCatalog) GetByIDs(_ context.Context, _ []string) ([]product.Product, error) {
	return nil, nil
}

func (m *mockCatalog) GetCategory(_ context.Context, id string) (*product.Category, error) {
	c, ok := m.categories[id]
	if !ok {
		return nil, product.ErrCategoryNotFound
	}
	return c, nil
}

func (m *mockCatalog) UpdatePricing(_ context.Context, _ string, pct, sale decimal.Decimal) error {
	m.updates++
	m.lastPct, m.lastSale = pct, sale
	return m.updateErr
}

type mockOffers struct {
	byID map[string]Offer
	err  error
}

func (m *mockOffers) GetOffers(_ context.Context, ids []string) ([]Offer, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []Offer
	for _, id := range ids {
		if o, ok := m.byID[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func TestEngine_Refresh(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	catalog := &mockCatalog{categories: map[string]*product.Category{
		"shoes": {ID: "shoes", Active: true, OfferIDs: []string{"cat-20"}},
	}}
	offers := &mockOffers{byID: map[string]Offer{
		"prod-10": {ID: "prod-10", Type: OfferPercentage, Value: d("10"), Active: true, StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour)},
		"cat-20":  {ID: "cat-20", Type: OfferPercentage, Value: d("20"), Active: true, StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour)},
	}}
	e := NewEngine(catalog, offers)
	e.now = func() time.Time { return now }

	p := &product.Product{
		ID:           "p1",
		CategoryID:   "shoes",
		RegularPrice: d("1000"),
		SalePrice:    d("1000"),
		OfferIDs:     []string{"prod-10"},
	}

	require.NoError(t, e.Refresh(context.Background(), p, nil))
	assert.True(t, d("20").Equal(p.EffectiveDiscount))
	assert.True(t, d("800").Equal(p.SalePrice))
	assert.True(t, p.DiscountPercent.IsZero(), "base discount untouched")
	assert.Equal(t, 1, catalog.updates)
	assert.True(t, d("20").Equal(catalog.lastPct))

	// Second refresh sees unchanged values and does not write.
	require.NoError(t, e.Refresh(context.Background(), p, nil))
	assert.Equal(t, 1, catalog.updates)
}

func TestEngine_RefreshNoOffersKeepsStoredDiscount(t *testing.T) {
	catalog := &mockCatalog{}
	e := NewEngine(catalog, &mockOffers{})

	p := &product.Product{
		ID:              "p1",
		RegularPrice:    d("1000"),
		DiscountPercent:   d("10"),
		EffectiveDiscount: d("10"),
		SalePrice:         d("900"),
	}

	require.NoError(t, e.Refresh(context.Background(), p, nil))
	assert.True(t, d("900").Equal(p.SalePrice))
	assert.Zero(t, catalog.updates)
}

func TestEngine_RefreshOfferLeavesWindow(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(7 * 24 * time.Hour)

	for _, tt := range []struct {
		name  string
		offer Offer
		at    time.Time
	}{
		{
			name:  "Expired",
			offer: Offer{ID: "sale", Type: OfferPercentage, Value: d("30"), Active: true, StartDate: start, EndDate: end},
			at:    end.Add(48 * time.Hour),
		},
		{
			name:  "NotStarted",
			offer: Offer{ID: "sale", Type: OfferPercentage, Value: d("30"), Active: true, StartDate: end, EndDate: end.Add(time.Hour)},
			at:    start.Add(time.Hour),
		},
		{
			name:  "Deactivated",
			offer: Offer{ID: "sale", Type: OfferPercentage, Value: d("30"), Active: false, StartDate: start, EndDate: end},
			at:    start.Add(time.Hour),
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			catalog := &mockCatalog{}
			e := NewEngine(catalog, &mockOffers{byID: map[string]Offer{"sale": tt.offer}})

			// Cached pricing from when the 30% offer was live.
			p := &product.Product{
				ID:                "p1",
				RegularPrice:      d("1000"),
				DiscountPercent:   d("10"),
				EffectiveDiscount: d("30"),
				SalePrice:         d("700"),
				OfferIDs:          []string{"sale"},
			}
			e.now = func() time.Time { return tt.at }

			require.NoError(t, e.Refresh(context.Background(), p, nil))
			assert.True(t, d("10").Equal(p.EffectiveDiscount), "got %s", p.EffectiveDiscount)
			assert.True(t, d("900").Equal(p.SalePrice), "got %s", p.SalePrice)
			assert.True(t, d("10").Equal(p.DiscountPercent))
			assert.Equal(t, 1, catalog.updates)
			assert.True(t, d("900").Equal(catalog.lastSale))
		})
	}
}

func TestEngine_RefreshAcrossOfferLifetime(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	catalog := &mockCatalog{}
	e := NewEngine(catalog, &mockOffers{byID: map[string]Offer{
		"sale": {ID: "sale", Type: OfferPercentage, Value: d("30"), Active: true, StartDate: start, EndDate: end},
	}})

	p := &product.Product{
		ID:                "p1",
		RegularPrice:      d("1000"),
		DiscountPercent:   d("10"),
		EffectiveDiscount: d("10"),
		SalePrice:         d("900"),
		OfferIDs:          []string{"sale"},
	}

	e.now = func() time.Time { return start.Add(time.Hour) }
	require.NoError(t, e.Refresh(context.Background(), p, nil))
	assert.True(t, d("700").Equal(p.SalePrice))

	e.now = func() time.Time { return end.Add(48 * time.Hour) }
	require.NoError(t, e.Refresh(context.Background(), p, nil))
	assert.True(t, d("900").Equal(p.SalePrice))
	assert.True(t, d("10").Equal(p.EffectiveDiscount))
	assert.Equal(t, 2, catalog.updates)
}

func TestEngine_RefreshErrors(t *testing.T) {
	catalog := &mockCatalog{updateErr: errors.New("db down")}
	e := NewEngine(catalog, &mockOffers{})

	p := &product.Product{ID: "p1", RegularPrice: d("100"), DiscountPercent: d("10"), SalePrice: d("100")}
	err := e.Refresh(context.Background(), p, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update pricing")

	e = NewEngine(&mockCatalog{}, &mockOffers{err: errors.New("offers down")})
	p = &product.Product{ID: "p1", RegularPrice: d("100"), OfferIDs: []string{"x"}}
	err = e.Refresh(context.Background(), p, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get offers")
}
