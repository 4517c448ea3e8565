package repository

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, user_id, gateway_order_id, status, payment_status,
		payment_method, original_amount, current_amount, data, version, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	updateOrderSQL = `UPDATE orders SET gateway_order_id = NULLIF($3, ''), status = $4,
		payment_status = $5, current_amount = $6, data = $7, version = version + 1, updated_at = $8
		WHERE id = $1 AND version = $2`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	getOrderSQL          = `SELECT data, version FROM orders WHERE id = $1`
	getOrderByGatewaySQL = `SELECT data, version FROM orders WHERE gateway_order_id = $1`
	listUserOrdersSQL    = `SELECT data, version FROM orders WHERE user_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	countUserOrdersSQL = `SELECT COUNT(*) FROM orders WHERE user_id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. The
// order document is stored as JSONB next to the columns that are queried or
// constrained.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Settle empties the user's cart if it is still at s.CartVersion, then
// inserts the order and applies its stock, coupon and wallet effects, all in
// one transaction. The cart row is locked first so a concurrent checkout of
// the same cart waits and then fails the version check.
func (r *OrderRepository) Settle(ctx context.Context, s order.Settlement) error {
	o := s.Order
	data, err := json.Marshal(o)
	if err != nil {
		return errors.Wrap(err, "encode order")
	}
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := clearCart(ctx, tx, o.UserID, s.CartVersion); err != nil {
			return err
		}
		if err := applyStock(ctx, tx, s.Stock); err != nil {
			return err
		}
		if s.Coupon != nil {
			if err := redeemCoupon(ctx, tx, *s.Coupon); err != nil {
				return err
			}
		}
		if s.WalletDebit != nil {
			if _, err := debitWallet(ctx, tx, *s.WalletDebit); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, o.UserID, o.GatewayOrderID, string(o.Status), string(o.PaymentStatus),
			string(o.PaymentMethod), o.OriginalAmount, o.CurrentAmount, data, o.Version,
			o.CreatedAt, o.UpdatedAt,
		); err != nil {
			return errors.Wrapf(err, "insert order %q", o.ID)
		}
		return nil
	})
}

// Save updates the order when its stored version matches o.Version and
// applies the effects in the same transaction.
func (r *OrderRepository) Save(ctx context.Context, o *order.Order, fx order.Effects) error {
	data, err := json.Marshal(o)
	if err != nil {
		return errors.Wrap(err, "encode order")
	}
	err = inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateOrderSQL,
			o.ID, o.Version, o.GatewayOrderID, string(o.Status), string(o.PaymentStatus),
			o.CurrentAmount, data, o.UpdatedAt,
		)
		if err != nil {
			return errors.Wrapf(err, "update order %q", o.ID)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, orderExistsSQL, o.ID).Scan(&exists); err != nil {
				return errors.Wrap(err, "check order")
			}
			if !exists {
				return order.ErrNotFound
			}
			return order.ErrVersionConflict
		}
		if err := applyStock(ctx, tx, fx.Restock); err != nil {
			return err
		}
		if fx.WalletCredit != nil {
			if _, err := creditWallet(ctx, tx, *fx.WalletCredit); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	o.Version++
	return nil
}

// Get returns an order by id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderSQL, id)
}

// GetByGatewayOrderID returns the order paid through a gateway order.
func (r *OrderRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByGatewaySQL, gatewayOrderID)
}

// ListByUser returns a newest-first page of the user's orders.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]order.Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, countUserOrdersSQL, userID).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}
	rows, err := r.pool.Query(ctx, listUserOrdersSQL, userID, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, errors.Wrap(err, "scan orders")
	}
	return orders, total, nil
}

func (r *OrderRepository) getOne(ctx context.Context, sql, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o       order.Order
		data    []byte
		version int
	)
	if err := row.Scan(&data, &version); err != nil {
		return o, err
	}
	if err := json.Unmarshal(data, &o); err != nil {
		return o, errors.Wrap(err, "decode order")
	}
	o.Version = version
	return o, nil
}
