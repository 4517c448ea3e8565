package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/pricing"
)

const getOffersSQL = `SELECT id, name, offer_type, value, start_date, end_date, target_id, target_type, active
	FROM offers WHERE id = ANY($1)`

var _ pricing.OfferRepository = (*OfferRepository)(nil)

// OfferRepository implements pricing.OfferRepository backed by PostgreSQL.
type OfferRepository struct {
	pool *pgxpool.Pool
}

// NewOfferRepository returns an OfferRepository that uses the given pool.
func NewOfferRepository(pool *pgxpool.Pool) *OfferRepository {
	return &OfferRepository{pool: pool}
}

// GetOffers returns the offers that exist among ids.
func (r *OfferRepository) GetOffers(ctx context.Context, ids []string) ([]pricing.Offer, error) {
	rows, err := r.pool.Query(ctx, getOffersSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get offers")
	}
	offers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (pricing.Offer, error) {
		var (
			o                      pricing.Offer
			offerType, targetType string
		)
		err := row.Scan(&o.ID, &o.Name, &offerType, &o.Value, &o.StartDate, &o.EndDate, &o.TargetID, &targetType, &o.Active)
		o.Type = pricing.OfferType(offerType)
		o.TargetType = pricing.TargetType(targetType)
		return o, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan offers")
	}
	return offers, nil
}
