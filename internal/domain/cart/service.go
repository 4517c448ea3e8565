// Package cart maintains per-user baskets with quantity and stock caps.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

// Pricer refreshes a product's sale price from live offers.
type Pricer interface {
	Refresh(ctx context.Context, p *product.Product, c *product.Category) error
}

// AddItemRequest holds the input for adding a line.
type AddItemRequest struct {
	UserID    string
	ProductID string
	Size      string
	Quantity  int
}

// UpdateItemRequest changes the size and quantity of an existing line.
type UpdateItemRequest struct {
	UserID   string
	ItemID   string
	Size     string
	Quantity int
}

// Service implements cart operations.
type Service struct {
	carts    Repository
	products product.Repository
	pricer   Pricer
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository, pricer Pricer) *Service {
	return &Service{carts: carts, products: products, pricer: pricer, now: time.Now}
}

// AddItem adds quantity units of productID in size to the user's cart,
// merging with an existing line for the same pair. The merged quantity must
// stay within MaxQuantity and the available stock; otherwise nothing is
// written.
func (s *Service) AddItem(ctx context.Context, req AddItemRequest) (*Cart, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if req.Quantity > MaxQuantity {
		return nil, ErrQuantityLimit
	}

	p, err := s.sellable(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	c, err := s.load(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	qty := req.Quantity
	idx := c.Find(req.ProductID, req.Size)
	if idx >= 0 {
		qty += c.Items[idx].Quantity
	}
	if qty > MaxQuantity {
		return nil, ErrQuantityLimit
	}
	if err := checkStock(p, req.Size, qty); err != nil {
		return nil, err
	}

	line := Item{
		ProductID:       p.ID,
		Name:            p.Name,
		Size:            req.Size,
		Quantity:        qty,
		Price:           p.RegularPrice,
		DiscountedPrice: p.SalePrice,
	}
	if idx >= 0 {
		line.ID = c.Items[idx].ID
		c.Items[idx] = line
	} else {
		line.ID = uuid.New().String()
		c.Items = append(c.Items, line)
	}

	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateItem replaces the size and quantity of a line after re-validating
// stock exactly like AddItem, without merging.
func (s *Service) UpdateItem(ctx context.Context, req UpdateItemRequest) (*Cart, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if req.Quantity > MaxQuantity {
		return nil, ErrQuantityLimit
	}

	c, err := s.carts.Get(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, errors.Wrap(err, "get cart")
	}
	idx := c.FindByID(req.ItemID)
	if idx < 0 {
		return nil, ErrItemNotFound
	}

	size := req.Size
	if size == "" {
		size = c.Items[idx].Size
	}
	if other := c.Find(c.Items[idx].ProductID, size); other >= 0 && other != idx {
		return nil, ErrDuplicateItem
	}

	p, err := s.sellable(ctx, c.Items[idx].ProductID)
	if err != nil {
		return nil, err
	}
	if err := checkStock(p, size, req.Quantity); err != nil {
		return nil, err
	}

	c.Items[idx].Size = size
	c.Items[idx].Quantity = req.Quantity
	c.Items[idx].Price = p.RegularPrice
	c.Items[idx].DiscountedPrice = p.SalePrice

	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveItem deletes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) (*Cart, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, errors.Wrap(err, "get cart")
	}
	idx := c.FindByID(itemID)
	if idx < 0 {
		return nil, ErrItemNotFound
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)

	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Clear empties the cart without deleting it.
func (s *Service) Clear(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.Items = nil
	c.Recalculate()
	c.UpdatedAt = s.now()
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// Get returns the user's cart with lines whose product was removed or
// deactivated filtered out. Storage is left untouched; the next write drops
// those lines for good.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.dropUnavailable(ctx, c); err != nil {
		return nil, err
	}
	c.Recalculate()
	return c, nil
}

func (s *Service) load(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Cart{UserID: userID, TotalAmount: decimal.Zero}, nil
		}
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

func (s *Service) save(ctx context.Context, c *Cart) error {
	if err := s.dropUnavailable(ctx, c); err != nil {
		return err
	}
	c.Recalculate()
	c.UpdatedAt = s.now()
	if err := s.carts.Save(ctx, c); err != nil {
		return errors.Wrap(err, "save cart")
	}
	return nil
}

// sellable loads a product with fresh pricing and checks that it and its
// category are active.
func (s *Service) sellable(ctx context.Context, productID string) (*product.Product, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrap(err, "get product")
	}
	if !p.Active {
		return nil, &product.InactiveError{ProductID: p.ID, Name: p.Name}
	}

	cat, err := s.products.GetCategory(ctx, p.CategoryID)
	if err != nil && !errors.Is(err, product.ErrCategoryNotFound) {
		return nil, errors.Wrap(err, "get category")
	}
	if cat == nil || !cat.Active {
		return nil, &product.InactiveError{ProductID: p.ID, Name: p.Name, CategoryID: p.CategoryID}
	}

	if err := s.pricer.Refresh(ctx, p, cat); err != nil {
		return nil, errors.Wrap(err, "refresh pricing")
	}
	return p, nil
}

// dropUnavailable removes lines whose product no longer exists or is no
// longer sold.
func (s *Service) dropUnavailable(ctx context.Context, c *Cart) error {
	if len(c.Items) == 0 {
		return nil
	}
	ids := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "get products")
	}

	categories := make(map[string]bool)
	available := make(map[string]bool, len(products))
	for _, p := range products {
		if !p.Active {
			continue
		}
		active, seen := categories[p.CategoryID]
		if !seen {
			cat, err := s.products.GetCategory(ctx, p.CategoryID)
			if err != nil && !errors.Is(err, product.ErrCategoryNotFound) {
				return errors.Wrap(err, "get category")
			}
			active = cat != nil && cat.Active
			categories[p.CategoryID] = active
		}
		if active {
			available[p.ID] = true
		}
	}

	kept := c.Items[:0]
	for _, it := range c.Items {
		if available[it.ProductID] {
			kept = append(kept, it)
		}
	}
	c.Items = kept
	return nil
}

func checkStock(p *product.Product, size string, qty int) error {
	sz := p.FindSize(size)
	if sz == nil {
		return &product.UnknownSizeError{ProductID: p.ID, Size: size}
	}
	if qty > sz.Quantity {
		return &product.InsufficientStockError{
			ProductID: p.ID,
			Name:      p.Name,
			Size:      size,
			Available: sz.Quantity,
			Requested: qty,
		}
	}
	return nil
}
