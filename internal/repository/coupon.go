package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT id, code, offer_percentage, minimum_price, maximum_discount,
		usage_limit, max_global_usage, used_count, expires_on, active
		FROM coupons WHERE UPPER(code) = UPPER($1)`

	getCouponUsageSQL = `SELECT usage_count FROM coupon_usage WHERE coupon_id = $1 AND user_id = $2`

	redeemCouponSQL = `UPDATE coupons
		SET used_count = used_count + 1, active = used_count + 1 < max_global_usage
		WHERE id = $1 AND active AND used_count < max_global_usage`

	redeemCouponUsageSQL = `INSERT INTO coupon_usage (coupon_id, user_id, usage_count) VALUES ($1, $2, 1)
		ON CONFLICT (coupon_id, user_id) DO UPDATE SET usage_count = coupon_usage.usage_count + 1
		WHERE coupon_usage.usage_count < $3`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code, case-insensitively.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	var c coupon.Coupon
	err := r.pool.QueryRow(ctx, getCouponByCodeSQL, code).Scan(
		&c.ID, &c.Code, &c.OfferPercentage, &c.MinimumPrice, &c.MaximumDiscount,
		&c.UsageLimit, &c.MaxGlobalUsage, &c.UsedCount, &c.ExpiresOn, &c.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	return &c, nil
}

// UserUsage returns how many times userID redeemed the coupon.
func (r *CouponRepository) UserUsage(ctx context.Context, couponID, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, getCouponUsageSQL, couponID, userID).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "get coupon usage")
	}
	return n, nil
}

// MarkUsed redeems the coupon for the user in its own transaction.
func (r *CouponRepository) MarkUsed(ctx context.Context, u coupon.Usage) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		return redeemCoupon(ctx, tx, u)
	})
}

// redeemCoupon increments the global and per-user counters inside q, failing
// when either cap is already reached.
func redeemCoupon(ctx context.Context, q dbtx, u coupon.Usage) error {
	if u.Limit <= 0 {
		return coupon.ErrUserLimitReached
	}
	tag, err := q.Exec(ctx, redeemCouponSQL, u.CouponID)
	if err != nil {
		return errors.Wrap(err, "redeem coupon")
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrGlobalLimitReached
	}
	tag, err = q.Exec(ctx, redeemCouponUsageSQL, u.CouponID, u.UserID, u.Limit)
	if err != nil {
		return errors.Wrap(err, "record coupon usage")
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrUserLimitReached
	}
	return nil
}
