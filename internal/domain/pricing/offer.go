package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OfferType enumerates how an offer expresses its discount.
type OfferType string

const (
	// OfferPercentage discounts a percentage of the regular price.
	OfferPercentage OfferType = "percentage"
	// OfferFlat discounts a fixed amount, converted to a percentage of the
	// regular price before comparison.
	OfferFlat OfferType = "flat"
)

// TargetType tells whether an offer is attached to a product or a category.
type TargetType string

const (
	TargetProduct  TargetType = "product"
	TargetCategory TargetType = "category"
)

// Offer is a time-bounded discount attached to a product or a category.
type Offer struct {
	ID         string
	Name       string
	Type       OfferType
	Value      decimal.Decimal
	StartDate  time.Time
	EndDate    time.Time
	TargetID   string
	TargetType TargetType
	Active     bool
}

// AppliesAt reports whether the offer is active and now lies within its window.
func (o Offer) AppliesAt(now time.Time) bool {
	return o.Active && !now.Before(o.StartDate) && !now.After(o.EndDate)
}

// OfferRepository loads offers by id.
type OfferRepository interface {
	GetOffers(ctx context.Context, ids []string) ([]Offer, error)
}
