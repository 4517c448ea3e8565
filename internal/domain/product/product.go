package product

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
)

// Sentinel errors for catalog lookups.
var (
	ErrNotFound         = apperr.New(apperr.KindNotFound, "product not found")
	ErrCategoryNotFound = apperr.New(apperr.KindNotFound, "category not found")
)

// Product represents a catalog item with per-size inventory.
//
// DiscountPercent is the admin-set base discount. EffectiveDiscount is the
// percent SalePrice was last derived from: the best live offer, or the base
// when no offer applies.
type Product struct {
	ID                string
	Name              string
	CategoryID        string
	RegularPrice      decimal.Decimal
	DiscountPercent   decimal.Decimal
	EffectiveDiscount decimal.Decimal
	SalePrice         decimal.Decimal
	Sizes             []Size
	Active            bool
	OutOfStock        bool
	OfferIDs          []string
}

// Size is the inventory of a product in a single size.
type Size struct {
	Size     string
	Quantity int
	InStock  bool
}

// Category groups products and may carry category-wide offers.
type Category struct {
	ID       string
	Name     string
	Active   bool
	OfferIDs []string
}

// FindSize returns the inventory entry for size, or nil.
func (p *Product) FindSize(size string) *Size {
	for i := range p.Sizes {
		if p.Sizes[i].Size == size {
			return &p.Sizes[i]
		}
	}
	return nil
}

// TotalStock sums the quantity across all sizes.
func (p *Product) TotalStock() int {
	n := 0
	for _, s := range p.Sizes {
		n += s.Quantity
	}
	return n
}

// ApplyDelta adjusts the quantity of one size and recomputes the derived
// stock flags. It refuses to push a quantity below zero.
func (p *Product) ApplyDelta(size string, delta int) error {
	s := p.FindSize(size)
	if s == nil {
		return &UnknownSizeError{ProductID: p.ID, Size: size}
	}
	if s.Quantity+delta < 0 {
		return &InsufficientStockError{ProductID: p.ID, Name: p.Name, Size: size, Available: s.Quantity, Requested: -delta}
	}
	s.Quantity += delta
	s.InStock = s.Quantity > 0
	p.OutOfStock = p.TotalStock() == 0
	return nil
}

// StockDelta is a signed change of inventory for one (product, size) pair.
// Negative values take stock, positive values restore it.
type StockDelta struct {
	ProductID string
	Size      string
	Quantity  int
}

// UnknownSizeError indicates a product does not offer the requested size.
type UnknownSizeError struct {
	ProductID string
	Size      string
}

func (e *UnknownSizeError) Error() string {
	return fmt.Sprintf("size %s is not available for product %s", e.Size, e.ProductID)
}

func (e *UnknownSizeError) Kind() apperr.Kind { return apperr.KindValidation }

// InsufficientStockError indicates that a size cannot satisfy the requested
// quantity. When raised by a conditional decrement at commit time it is the
// authoritative out-of-stock signal.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Size      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s in size %s", name, e.Size)
}

func (e *InsufficientStockError) Kind() apperr.Kind { return apperr.KindConflict }

// InactiveError indicates a product or its category is no longer sold.
type InactiveError struct {
	ProductID  string
	Name       string
	CategoryID string
}

func (e *InactiveError) Error() string {
	if e.CategoryID != "" {
		return fmt.Sprintf("category of product %s is not available", e.Name)
	}
	return fmt.Sprintf("product %s is not available", e.Name)
}

func (e *InactiveError) Kind() apperr.Kind { return apperr.KindValidation }

// Repository defines catalog reads and the pricing cache write-back.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	GetCategory(ctx context.Context, id string) (*Category, error)
	UpdatePricing(ctx context.Context, id string, effectiveDiscount, salePrice decimal.Decimal) error
}
