// Package pricing derives sale prices from regular prices, stored discounts
// and time-bounded offers.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
)

var (
	// ErrNegativePrice is returned for a regular price below zero.
	ErrNegativePrice = apperr.New(apperr.KindValidation, "price must not be negative")
	// ErrInvalidPercent is returned for a percentage outside [0, 100].
	ErrInvalidPercent = apperr.New(apperr.KindValidation, "discount percent must be between 0 and 100")
	// ErrInvalidOffer is returned for an offer with an out-of-range value.
	ErrInvalidOffer = apperr.New(apperr.KindValidation, "malformed offer")
)

var hundred = decimal.NewFromInt(100)

// SalePrice returns regular - regular*percent/100, clamped at zero and
// rounded to two decimal places.
func SalePrice(regular, percent decimal.Decimal) (decimal.Decimal, error) {
	if regular.IsNegative() {
		return decimal.Zero, ErrNegativePrice
	}
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return decimal.Zero, ErrInvalidPercent
	}
	sale := regular.Sub(regular.Mul(percent).Div(hundred))
	if sale.IsNegative() {
		sale = decimal.Zero
	}
	return sale.Round(2), nil
}

// OfferPercent converts an offer into a percentage of regular.
func OfferPercent(o Offer, regular decimal.Decimal) (decimal.Decimal, error) {
	switch o.Type {
	case OfferPercentage, "":
		if o.Value.IsNegative() || o.Value.GreaterThan(hundred) {
			return decimal.Zero, ErrInvalidOffer
		}
		return o.Value, nil
	case OfferFlat:
		if o.Value.IsNegative() {
			return decimal.Zero, ErrInvalidOffer
		}
		if !regular.IsPositive() {
			return decimal.Zero, nil
		}
		pct := o.Value.Div(regular).Mul(hundred)
		if pct.GreaterThan(hundred) {
			pct = hundred
		}
		return pct.Round(2), nil
	default:
		return decimal.Zero, ErrInvalidOffer
	}
}

// BestDiscount returns the highest percentage among offers applicable at
// now. Ties keep the first offer encountered. When no offer applies the
// fallback percent is returned unchanged.
func BestDiscount(regular, fallback decimal.Decimal, offers []Offer, now time.Time) (decimal.Decimal, error) {
	var (
		best  decimal.Decimal
		found bool
	)
	for _, o := range offers {
		if !o.AppliesAt(now) {
			continue
		}
		pct, err := OfferPercent(o, regular)
		if err != nil {
			return decimal.Zero, err
		}
		if !found || pct.GreaterThan(best) {
			best = pct
			found = true
		}
	}
	if !found {
		return fallback, nil
	}
	return best, nil
}
