package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
)

// MaxQuantity is the largest quantity of one (product, size) pair a cart may hold.
const MaxQuantity = 5

var (
	// ErrNotFound is returned by repositories for a user without a cart.
	ErrNotFound = apperr.New(apperr.KindNotFound, "cart not found")
	// ErrEmpty is returned when an operation needs at least one line.
	ErrEmpty = apperr.New(apperr.KindValidation, "cart is empty")
	// ErrItemNotFound is returned when a line id does not exist in the cart.
	ErrItemNotFound = apperr.New(apperr.KindNotFound, "cart item not found")
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = apperr.New(apperr.KindValidation, "quantity must be greater than 0")
	// ErrQuantityLimit is returned when a line would exceed MaxQuantity.
	ErrQuantityLimit = apperr.Errorf(apperr.KindValidation, "maximum %d units per item", MaxQuantity)
	// ErrDuplicateItem is returned when an update would collide with another line.
	ErrDuplicateItem = apperr.New(apperr.KindValidation, "item with this size is already in the cart")
)

// Item is a cart line. Price and DiscountedPrice are snapshots taken when
// the line was last written.
type Item struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"product_id"`
	Name            string          `json:"name"`
	Size            string          `json:"size"`
	Quantity        int             `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	DiscountedPrice decimal.Decimal `json:"discounted_price"`
}

// Total returns DiscountedPrice * Quantity.
func (i Item) Total() decimal.Decimal {
	return i.DiscountedPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the per-user basket. Version is bumped by the repository on every
// write; a cart that was never saved is at version 0.
type Cart struct {
	UserID      string
	Items       []Item
	TotalAmount decimal.Decimal
	UpdatedAt   time.Time
	Version     int
}

// Recalculate sets TotalAmount to the sum of line totals.
func (c *Cart) Recalculate() {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Total())
	}
	c.TotalAmount = total.Round(2)
}

// Find returns the index of the line for (productID, size), or -1.
func (c *Cart) Find(productID, size string) int {
	for i, it := range c.Items {
		if it.ProductID == productID && it.Size == size {
			return i
		}
	}
	return -1
}

// FindByID returns the index of the line with the given id, or -1.
func (c *Cart) FindByID(id string) int {
	for i, it := range c.Items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// Repository persists carts.
type Repository interface {
	// Get returns the user's cart or ErrNotFound.
	Get(ctx context.Context, userID string) (*Cart, error)
	// Save upserts the cart and sets c.Version to the stored version.
	Save(ctx context.Context, c *Cart) error
}
