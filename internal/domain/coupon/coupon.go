package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
)

var (
	// ErrMissingInput is returned when code, cart total or user is absent.
	ErrMissingInput = apperr.New(apperr.KindValidation, "coupon code, cart total and user are required")
	// ErrNotFound is returned when no active coupon matches the code.
	ErrNotFound = apperr.New(apperr.KindNotFound, "invalid coupon code")
	// ErrExpired is returned when the coupon's expiry has passed.
	ErrExpired = apperr.New(apperr.KindValidation, "coupon expired")
	// ErrGlobalLimitReached is returned when the coupon has been used
	// maxGlobalUsage times.
	ErrGlobalLimitReached = apperr.New(apperr.KindConflict, "coupon usage limit reached")
	// ErrUserLimitReached is returned when the caller exhausted their uses.
	ErrUserLimitReached = apperr.New(apperr.KindConflict, "coupon already used the maximum number of times")
)

// MinimumPurchaseError is returned when the cart total is below the
// coupon's minimum price.
type MinimumPurchaseError struct {
	Minimum decimal.Decimal
}

func (e *MinimumPurchaseError) Error() string {
	return fmt.Sprintf("minimum purchase of %s required for this coupon", e.Minimum.StringFixed(2))
}

func (e *MinimumPurchaseError) Kind() apperr.Kind { return apperr.KindValidation }

// Coupon is a code-based discount with global and per-user usage caps.
type Coupon struct {
	ID              string
	Code            string
	OfferPercentage decimal.Decimal
	MinimumPrice    decimal.Decimal
	MaximumDiscount decimal.Decimal
	UsageLimit      int
	MaxGlobalUsage  int
	UsedCount       int
	ExpiresOn       time.Time
	Active          bool
}

// Usage identifies one consumption of a coupon by a user. Limit is the
// per-user cap the increment is conditioned on.
type Usage struct {
	CouponID string
	UserID   string
	Limit    int
}

// Repository provides lookup and atomic mutation of coupons.
type Repository interface {
	// FindByCode returns the active coupon with the given upper-cased code,
	// or ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// UserUsage returns how many times userID used the coupon.
	UserUsage(ctx context.Context, couponID, userID string) (int, error)
	// MarkUsed increments the global and per-user counters only while both
	// are below their caps, deactivating the coupon when the global cap is
	// reached. It returns ErrGlobalLimitReached or ErrUserLimitReached when
	// the condition fails.
	MarkUsed(ctx context.Context, u Usage) error
}
