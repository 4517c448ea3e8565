package repository

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
)

// Catalog and coupon writes used by the seed and ingest commands.

const (
	upsertCategorySQL = `INSERT INTO categories (id, name, active, offer_ids) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active, offer_ids = EXCLUDED.offer_ids`
	upsertProductSQL = `INSERT INTO products (id, name, category_id, regular_price, discount_percent,
			effective_discount, sale_price, active, out_of_stock, offer_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, category_id = EXCLUDED.category_id,
			regular_price = EXCLUDED.regular_price, discount_percent = EXCLUDED.discount_percent,
			effective_discount = EXCLUDED.effective_discount,
			sale_price = EXCLUDED.sale_price, active = EXCLUDED.active,
			out_of_stock = EXCLUDED.out_of_stock, offer_ids = EXCLUDED.offer_ids`
	upsertSizeSQL = `INSERT INTO product_sizes (product_id, size, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (product_id, size) DO UPDATE SET quantity = EXCLUDED.quantity`
	upsertOfferSQL = `INSERT INTO offers (id, name, offer_type, value, start_date, end_date, target_id, target_type, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, offer_type = EXCLUDED.offer_type,
			value = EXCLUDED.value, start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
			target_id = EXCLUDED.target_id, target_type = EXCLUDED.target_type, active = EXCLUDED.active`
	// Usage counters survive re-seeding.
	upsertCouponSQL = `INSERT INTO coupons (id, code, offer_percentage, minimum_price, maximum_discount,
			usage_limit, max_global_usage, expires_on, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, offer_percentage = EXCLUDED.offer_percentage,
			minimum_price = EXCLUDED.minimum_price, maximum_discount = EXCLUDED.maximum_discount,
			usage_limit = EXCLUDED.usage_limit,
			max_global_usage = GREATEST(EXCLUDED.max_global_usage, coupons.used_count),
			expires_on = EXCLUDED.expires_on, active = EXCLUDED.active`
)

// UpsertCategory stores a category.
func (r *ProductRepository) UpsertCategory(ctx context.Context, c product.Category) error {
	if _, err := r.pool.Exec(ctx, upsertCategorySQL, c.ID, c.Name, c.Active, nonNil(c.OfferIDs)); err != nil {
		return errors.Wrapf(err, "upsert category %q", c.ID)
	}
	return nil
}

// UpsertProduct stores a product and sets the stock of each of its sizes.
func (r *ProductRepository) UpsertProduct(ctx context.Context, p product.Product) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.CategoryID, p.RegularPrice,
			p.DiscountPercent, p.EffectiveDiscount, p.SalePrice, p.Active, p.TotalStock() == 0, nonNil(p.OfferIDs),
		); err != nil {
			return errors.Wrapf(err, "upsert product %q", p.ID)
		}
		for _, s := range p.Sizes {
			if _, err := tx.Exec(ctx, upsertSizeSQL, p.ID, s.Size, s.Quantity); err != nil {
				return errors.Wrapf(err, "upsert size %s of %q", s.Size, p.ID)
			}
		}
		return nil
	})
}

// Upsert stores an offer.
func (r *OfferRepository) Upsert(ctx context.Context, o pricing.Offer) error {
	if _, err := r.pool.Exec(ctx, upsertOfferSQL, o.ID, o.Name, string(o.Type), o.Value,
		o.StartDate, o.EndDate, o.TargetID, string(o.TargetType), o.Active,
	); err != nil {
		return errors.Wrapf(err, "upsert offer %q", o.ID)
	}
	return nil
}

// UpsertMany stores coupons in one round trip.
func (r *CouponRepository) UpsertMany(ctx context.Context, coupons []coupon.Coupon) error {
	if len(coupons) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, c := range coupons {
		b.Queue(upsertCouponSQL, c.ID, strings.ToUpper(c.Code), c.OfferPercentage, c.MinimumPrice,
			c.MaximumDiscount, c.UsageLimit, c.MaxGlobalUsage, c.ExpiresOn, c.Active)
	}
	if err := r.pool.SendBatch(ctx, b).Close(); err != nil {
		return errors.Wrapf(err, "upsert %d coupons", len(coupons))
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
