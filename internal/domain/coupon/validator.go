package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ValidateRequest holds the input of a coupon check.
type ValidateRequest struct {
	Code      string
	CartTotal decimal.Decimal
	UserID    string
}

// Result is the outcome of a successful validation.
type Result struct {
	CouponID       string
	Code           string
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	UsageLimit     int
}

// Validator checks a coupon against a cart total without mutating usage.
type Validator interface {
	Validate(ctx context.Context, req ValidateRequest) (*Result, error)
}

// Service implements Validator on top of a Repository and owns the only
// write path for usage counters.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a coupon Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

var _ Validator = (*Service)(nil)

// Validate looks up the coupon, checks expiry, the global and per-user caps
// and the minimum purchase, and computes the capped discount. It has no side
// effects and may be called any number of times.
func (s *Service) Validate(ctx context.Context, req ValidateRequest) (*Result, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" || req.UserID == "" || !req.CartTotal.IsPositive() {
		return nil, ErrMissingInput
	}

	c, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if !c.Active {
		return nil, ErrNotFound
	}
	if !s.now().Before(c.ExpiresOn) {
		return nil, ErrExpired
	}
	if c.UsedCount >= c.MaxGlobalUsage {
		return nil, ErrGlobalLimitReached
	}

	used, err := s.repo.UserUsage(ctx, c.ID, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "lookup coupon usage")
	}
	if used >= c.UsageLimit {
		return nil, ErrUserLimitReached
	}

	if req.CartTotal.LessThan(c.MinimumPrice) {
		return nil, &MinimumPurchaseError{Minimum: c.MinimumPrice}
	}

	discount := Discount(c, req.CartTotal)
	return &Result{
		CouponID:       c.ID,
		Code:           c.Code,
		DiscountAmount: discount,
		FinalAmount:    req.CartTotal.Sub(discount),
		UsageLimit:     c.UsageLimit,
	}, nil
}

// MarkUsed records one use of the coupon by userID. It must be called once
// per placed order; order settlement performs the same increment inside its
// own commit.
func (s *Service) MarkUsed(ctx context.Context, couponID, userID string, usageLimit int) error {
	if err := s.repo.MarkUsed(ctx, Usage{CouponID: couponID, UserID: userID, Limit: usageLimit}); err != nil {
		return errors.Wrap(err, "mark coupon used")
	}
	return nil
}

// Discount returns min(total*percentage/100, maximumDiscount) rounded to
// cents, never more than total. A coupon with a zero maximum discounts
// nothing.
func Discount(c *Coupon, total decimal.Decimal) decimal.Decimal {
	amount := decimal.Min(total.Mul(c.OfferPercentage).Div(hundred), c.MaximumDiscount)
	if amount.GreaterThan(total) {
		amount = total
	}
	return amount.Round(2)
}
