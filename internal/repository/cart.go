package repository

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
)

const (
	getCartSQL  = `SELECT user_id, items, total_amount, updated_at, version FROM carts WHERE user_id = $1`
	saveCartSQL = `INSERT INTO carts (user_id, items, total_amount, updated_at, version) VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (user_id) DO UPDATE SET items = EXCLUDED.items,
		total_amount = EXCLUDED.total_amount, updated_at = EXCLUDED.updated_at,
		version = carts.version + 1
		RETURNING version`
	clearCartSQL = `UPDATE carts SET items = '[]', total_amount = 0, updated_at = NOW(), version = version + 1
		WHERE user_id = $1 AND version = $2`
	cartExistsSQL = `SELECT EXISTS (SELECT 1 FROM carts WHERE user_id = $1)`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Lines are
// stored as a JSONB array on the cart row.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the user's cart.
func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	var (
		c     cart.Cart
		items []byte
	)
	err := r.pool.QueryRow(ctx, getCartSQL, userID).Scan(&c.UserID, &items, &c.TotalAmount, &c.UpdatedAt, &c.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get cart of %q", userID)
	}
	if err := json.Unmarshal(items, &c.Items); err != nil {
		return nil, errors.Wrap(err, "decode cart items")
	}
	return &c, nil
}

// Save upserts the cart.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	items := c.Items
	if items == nil {
		items = []cart.Item{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "encode cart items")
	}
	err = r.pool.QueryRow(ctx, saveCartSQL, c.UserID, data, c.TotalAmount, c.UpdatedAt).Scan(&c.Version)
	if err != nil {
		return errors.Wrapf(err, "save cart of %q", c.UserID)
	}
	return nil
}

// clearCart empties the cart when it is still at the given version. A user
// without a cart row counts as version 0.
func clearCart(ctx context.Context, tx pgx.Tx, userID string, version int) error {
	tag, err := tx.Exec(ctx, clearCartSQL, userID, version)
	if err != nil {
		return errors.Wrap(err, "clear cart")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := tx.QueryRow(ctx, cartExistsSQL, userID).Scan(&exists); err != nil {
		return errors.Wrap(err, "check cart")
	}
	if exists || version != 0 {
		return order.ErrCartChanged
	}
	return nil
}
