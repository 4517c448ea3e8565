package cart

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/product"
)

type mockCarts struct {
	carts map[string]*Cart
	saves int
}

func newMockCarts() *mockCarts {
	return &mockCarts{carts: make(map[string]*Cart)}
}

func (m *mockCarts) Get(_ context.Context, userID string) (*Cart, error) {
	c, ok := m.carts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	cp.Items = append([]Item(nil), c.Items...)
	return &cp, nil
}

func (m *mockCarts) Save(_ context.Context, c *Cart) error {
	m.saves++
	cp := *c
	cp.Items = append([]Item(nil), c.Items...)
	m.carts[c.UserID] = &cp
	return nil
}

type mockProducts struct {
	products   map[string]*product.Product
	categories map[string]*product.Category
}

func (m *mockProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockProducts) GetCategory(_ context.Context, id string) (*product.Category, error) {
	c, ok := m.categories[id]
	if !ok {
		return nil, product.ErrCategoryNotFound
	}
	return c, nil
}

func (m *mockProducts) UpdatePricing(_ context.Context, _ string, _, _ decimal.Decimal) error {
	return nil
}

type noopPricer struct{}

func (noopPricer) Refresh(context.Context, *product.Product, *product.Category) error { return nil }

func newFixture() (*Service, *mockCarts, *mockProducts) {
	products := &mockProducts{
		products: map[string]*product.Product{
			"p1": {
				ID: "p1", Name: "Runner", CategoryID: "shoes", Active: true,
				RegularPrice: decimal.NewFromInt(1000), SalePrice: decimal.NewFromInt(900),
				Sizes: []product.Size{{Size: "M", Quantity: 10, InStock: true}, {Size: "L", Quantity: 2, InStock: true}},
			},
			"p2": {
				ID: "p2", Name: "Walker", CategoryID: "shoes", Active: true,
				RegularPrice: decimal.NewFromInt(500), SalePrice: decimal.NewFromInt(500),
				Sizes: []product.Size{{Size: "M", Quantity: 3, InStock: true}},
			},
		},
		categories: map[string]*product.Category{
			"shoes": {ID: "shoes", Active: true},
		},
	}
	carts := newMockCarts()
	return NewService(carts, products, noopPricer{}), carts, products
}

func TestService_AddItem(t *testing.T) {
	ctx := context.Background()
	svc, carts, _ := newFixture()

	c, err := svc.AddItem(ctx, AddItemRequest{UserID: "u1", ProductID: "p1", Size: "M", Quantity: 2})
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.True(t, decimal.NewFromInt(1000).Equal(c.Items[0].Price))
	assert.True(t, decimal.NewFromInt(900).Equal(c.Items[0].DiscountedPrice))
	assert.True(t, decimal.NewFromInt(1800).Equal(c.TotalAmount))

	c, err = svc.AddItem(ctx, AddItemRequest{UserID: "u1", ProductID: "p1", Size: "M", Quantity: 3})
	require.NoError(t, err)
	require.Len(t, c.Items, 1, "same product and size merge into one line")
	assert.Equal(t, 5, c.Items[0].Quantity)

	_, err = svc.AddItem(ctx, AddItemRequest{UserID: "u1", ProductID: "p1", Size: "M", Quantity: 1})
	require.ErrorIs(t, err, ErrQuantityLimit)
	assert.Equal(t, 5, carts.carts["u1"].Items[0].Quantity, "rejected add leaves cart unchanged")
}

func TestService_AddItem_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		req   AddItemRequest
		setup func(*mockProducts)
		check func(t *testing.T, err error)
	}{
		{
			name: "zero quantity",
			req:  AddItemRequest{UserID: "u1", ProductID: "p1", Size: "M", Quantity: 0},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrInvalidQuantity)
			},
		},
		{
			name: "over limit",
			req:  AddItemRequest{UserID: "u1", ProductID: "p1", Size: "M", Quantity: 6},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrQuantityLimit)
			},
		},
		{
			name: "unknown product",
			req:  AddItemRequest{UserID: "u1", ProductID: "nope", Size: "M", Quantity: 1},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, product.ErrNotFound)
			},
		},
		{
			name: "unknown size",
			req:  AddItemRequest{UserID: "u1", ProductID: "p1", Size: "XXL", Quantity: 1},
			check: func(t *testing.T, err error) {
				var sizeErr *product.UnknownSizeError
				require.True(t, errors.As(err, &sizeErr))
			},
		},
		{
			name: "more than stock",
			req:  AddItemRequest{UserID: "u1", ProductID: "p1", Size: "L", Quantity: 3},
			check: func(t *testing.T, err error) {
				var stockErr *product.InsufficientStockError
				require.True(t, errors.As(err, &stockErr))
				assert.Equal(t, 2, stockErr.Available)
				assert.Equal(t, 3, stockErr.Requested)
			},
		},
		{
			name:  "inactive product",
			req:   AddItemRequest{UserID: "u1", ProductID: "p1", Size: "M", Quantity: 1},
			setup: func(m *mockProducts) { m.products["p1"].Active = false },
			check: func(t *testing.T, err error) {
				var inactive *product.InactiveError
				require.True(t, errors.As(err, &inactive))
				assert.Empty(t, inactive.CategoryID)
			},
		},
		{
			name:  "inactive category",
			req:   AddItemRequest{UserID: "u1", ProductID: "p1", Size: "M", Quantity: 1},
			setup: func(m *mockProducts) { m.categories["shoes"].Active = false },
			check: func(t *testing.T, err error) {
				var inactive *product.InactiveError
				require.True(t, errors.As(err, &inactive))
				assert.Equal(t, "shoes", inactive.CategoryID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, carts, products := newFixture()
			if tt.setup != nil {
				tt.setup(products)
			}
			_, err := svc.AddItem(ctx, tt.req)
			require.Error(t, err)
			tt.check(t, err)
			assert.Zero(t, carts.saves)
		})
	}
}

func TestService_UpdateItem(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture()

	c, err := svc.AddItem(ctx, AddItemRequest{UserID: "u1", ProductID: "p1", Size: "M", Quantity: 1})
	require.NoError(t, err)
	lineID := c.Items[0].ID

	c, err = svc.UpdateItem(ctx, UpdateItemRequest{UserID: "u1", ItemID: lineID, Size: "L", Quantity: 2})
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "L", c.Items[0].Size)
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(1800).Equal(c.TotalAmount))

	_, err = svc.UpdateItem(ctx, UpdateItemRequest{UserID: "u1", ItemID: lineID, Quantity: 3})
	var stockErr *product.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))

	_, err = svc.UpdateItem(ctx, UpdateItemRequest{UserID: "u1", ItemID: "missing", Quantity: 1})
	require.ErrorIs(t, err, ErrItemNotFound)

	_, err = svc.AddItem(ctx, AddItemRequest{UserID: "u1", ProductID: "p1", Size: "M", Quantity: 1})
	require.NoError(t, err)
	_, err = svc.UpdateItem(ctx, UpdateItemRequest{UserID: "u1", ItemID: lineID, Size: "M", Quantity: 1})
	require.ErrorIs(t, err, ErrDuplicateItem)
}

func TestService_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture()

	c, err := svc.AddItem(ctx, AddItemRequest{UserID: "u1", ProductID: "p1", Size: "M", Quantity: 1})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, AddItemRequest{UserID: "u1", ProductID: "p2", Size: "M", Quantity: 2})
	require.NoError(t, err)

	c, err = svc.RemoveItem(ctx, "u1", c.Items[0].ID)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "p2", c.Items[0].ProductID)
	assert.True(t, decimal.NewFromInt(1000).Equal(c.TotalAmount))

	_, err = svc.RemoveItem(ctx, "u1", "missing")
	require.ErrorIs(t, err, ErrItemNotFound)

	c, err = svc.Clear(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.True(t, c.TotalAmount.IsZero())
}

func TestService_Get_FiltersUnavailable(t *testing.T) {
	ctx := context.Background()
	svc, carts, products := newFixture()

	_, err := svc.AddItem(ctx, AddItemRequest{UserID: "u1", ProductID: "p1", Size: "M", Quantity: 1})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, AddItemRequest{UserID: "u1", ProductID: "p2", Size: "M", Quantity: 1})
	require.NoError(t, err)

	delete(products.products, "p2")

	c, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.True(t, decimal.NewFromInt(900).Equal(c.TotalAmount))
	assert.Len(t, carts.carts["u1"].Items, 2, "reads do not rewrite the stored cart")

	_, err = svc.AddItem(ctx, AddItemRequest{UserID: "u1", ProductID: "p1", Size: "L", Quantity: 1})
	require.NoError(t, err)
	assert.Len(t, carts.carts["u1"].Items, 2, "writes drop dangling lines")
}

func TestService_Get_EmptyCart(t *testing.T) {
	svc, _, _ := newFixture()
	c, err := svc.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.True(t, c.TotalAmount.IsZero())
}
