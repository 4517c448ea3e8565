package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/wallet"
)

// Sentinel errors for order operations.
var (
	ErrNotFound         = apperr.New(apperr.KindNotFound, "order not found")
	ErrItemNotFound     = apperr.New(apperr.KindNotFound, "order item not found")
	ErrEmptyCart        = apperr.New(apperr.KindValidation, "cart is empty")
	ErrMissingAddress   = apperr.New(apperr.KindValidation, "shipping address is required")
	ErrInvalidMethod    = apperr.New(apperr.KindValidation, "unsupported payment method")
	ErrForbidden        = apperr.New(apperr.KindAuthorization, "order does not belong to the user")
	ErrAdminOnly        = apperr.New(apperr.KindAuthorization, "operation requires admin role")
	ErrVersionConflict  = apperr.New(apperr.KindConflict, "order was modified concurrently, retry")
	ErrInvalidSignature = apperr.New(apperr.KindValidation, "invalid payment signature")
	ErrNotCaptured      = apperr.New(apperr.KindValidation, "payment is not captured")
	ErrNotGatewayOrder  = apperr.New(apperr.KindValidation, "order is not paid through the gateway")
	ErrNoGatewayPayment = apperr.New(apperr.KindValidation, "order has no captured gateway payment")
	ErrCartChanged      = apperr.New(apperr.KindConflict, "cart changed during checkout, retry")
)

// PaymentMethod is how the customer pays for an order.
type PaymentMethod string

const (
	MethodCard           PaymentMethod = "card"
	MethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	MethodUPI            PaymentMethod = "upi"
	MethodGateway        PaymentMethod = "razorpay"
	MethodWallet         PaymentMethod = "wallet"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodCashOnDelivery, MethodUPI, MethodGateway, MethodWallet:
		return true
	}
	return false
}

// SettledOnDelivery reports whether payment is collected outside the
// gateway and confirmed when the order is delivered.
func (m PaymentMethod) SettledOnDelivery() bool {
	switch m {
	case MethodCard, MethodCashOnDelivery, MethodUPI:
		return true
	}
	return false
}

// RefundDestination selects where approved return money goes.
type RefundDestination string

const (
	RefundToWallet  RefundDestination = "wallet"
	RefundToGateway RefundDestination = "gateway"
)

// Item is an order line snapshot.
type Item struct {
	ID        string
	ProductID string
	Name      string
	Size      string
	Quantity  int
	// Price is the regular unit price at order time.
	Price decimal.Decimal
	// DiscountedPrice is the unit price after sale pricing and the line's
	// share of the coupon.
	DiscountedPrice decimal.Decimal
	// Total is what the customer pays for the line. Line totals sum to the
	// order's CurrentAmount at creation.
	Total decimal.Decimal
	// CurrentPrice is Total while the line is live and zero once cancelled.
	CurrentPrice decimal.Decimal
	Status       ItemStatus

	CancelReason      string
	CancelledAt       *time.Time
	ReturnReason      string
	ReturnRequestedAt *time.Time
	RefundStatus      RefundStatus
	RefundAmount      decimal.Decimal
	RefundedAt        *time.Time
}

// AppliedCoupon records the coupon redeemed on an order.
type AppliedCoupon struct {
	CouponID       string
	Code           string
	DiscountAmount decimal.Decimal
}

// Refund is a refund history entry.
type Refund struct {
	ID              string
	ItemID          string
	Amount          decimal.Decimal
	Destination     RefundDestination
	Status          RefundStatus
	GatewayRefundID string
	CreatedAt       time.Time
	ProcessedAt     *time.Time
}

// Order is a placed order.
type Order struct {
	ID                string
	UserID            string
	ShippingAddressID string
	Items             []Item
	PaymentMethod     PaymentMethod
	PaymentStatus     PaymentStatus
	Status            Status
	// OriginalAmount and InitialTotalAmount are fixed at creation.
	OriginalAmount     decimal.Decimal
	InitialTotalAmount decimal.Decimal
	// CurrentAmount is the running payable total, reduced by cancellations
	// and refunds.
	CurrentAmount     decimal.Decimal
	Coupon            *AppliedCoupon
	GatewayOrderID    string
	GatewayPaymentID  string
	TotalRefundAmount decimal.Decimal
	Refunds           []Refund
	CancelReason      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int
}

// FindItem returns the index of the item with id, or -1.
func (o *Order) FindItem(id string) int {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// ProcessedRefundTotal sums processed refund history entries.
func (o *Order) ProcessedRefundTotal() decimal.Decimal {
	total := decimal.Zero
	for _, r := range o.Refunds {
		if r.Status == RefundProcessed {
			total = total.Add(r.Amount)
		}
	}
	return total.Round(2)
}

// Settlement is everything committed atomically when an order is placed.
type Settlement struct {
	Order *Order
	// CartVersion is the version of the cart the order was priced from. The
	// commit fails with ErrCartChanged when the stored cart has moved on.
	CartVersion int
	// Stock holds negative deltas. Each must be applied with a conditional
	// decrement that fails when the size has fewer units left.
	Stock []product.StockDelta
	// Coupon is set when a coupon was redeemed.
	Coupon *coupon.Usage
	// WalletDebit is set when the order is paid from the wallet.
	WalletDebit *wallet.Entry
}

// Effects are side effects committed together with an order update.
type Effects struct {
	// Restock holds positive stock deltas.
	Restock      []product.StockDelta
	WalletCredit *wallet.Entry
}

// Repository persists orders.
type Repository interface {
	// Settle commits a new order together with its stock, coupon and wallet
	// effects and clears the user's cart. Nothing is written when any
	// conditional update fails; a cart no longer at CartVersion is reported
	// as ErrCartChanged, stock shortfalls as *product.InsufficientStockError,
	// exhausted coupons as coupon errors and short wallets as
	// wallet.ErrInsufficientBalance.
	Settle(ctx context.Context, s Settlement) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error)
	// Save writes o if its stored version equals o.Version, then bumps the
	// version. Effects are applied in the same commit.
	Save(ctx context.Context, o *Order, fx Effects) error
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]Order, int, error)
}
