package repository

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/wallet"
)

const (
	getWalletSQL = `SELECT user_id, balance, updated_at FROM wallets WHERE user_id = $1`

	creditWalletSQL = `INSERT INTO wallets (user_id, balance, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance,
		updated_at = EXCLUDED.updated_at`

	debitWalletSQL = `UPDATE wallets SET balance = balance - $2, updated_at = $3
		WHERE user_id = $1 AND balance >= $2`

	insertWalletTxSQL = `INSERT INTO wallet_transactions
		(id, user_id, amount, tx_type, order_id, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	listWalletTxSQL = `SELECT id, user_id, amount, tx_type, order_id, description, status, created_at
		FROM wallet_transactions WHERE user_id = $1 ORDER BY seq DESC LIMIT $2 OFFSET $3`

	countWalletTxSQL = `SELECT COUNT(*) FROM wallet_transactions WHERE user_id = $1`

	walletTotalsSQL = `SELECT
		COALESCE(SUM(amount) FILTER (WHERE tx_type = 'credit'), 0),
		COALESCE(SUM(amount) FILTER (WHERE tx_type = 'debit'), 0)
		FROM wallet_transactions WHERE user_id = $1`
)

var _ wallet.Repository = (*WalletRepository)(nil)

// WalletRepository implements wallet.Repository backed by PostgreSQL.
type WalletRepository struct {
	pool *pgxpool.Pool
}

// NewWalletRepository returns a WalletRepository that uses the given pool.
func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

// Get returns the user's wallet, or an empty one.
func (r *WalletRepository) Get(ctx context.Context, userID string) (*wallet.Wallet, error) {
	var w wallet.Wallet
	err := r.pool.QueryRow(ctx, getWalletSQL, userID).Scan(&w.UserID, &w.Balance, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &wallet.Wallet{UserID: userID, Balance: decimal.Zero}, nil
		}
		return nil, errors.Wrapf(err, "get wallet of %q", userID)
	}
	return &w, nil
}

// Credit adds to the balance and records the transaction.
func (r *WalletRepository) Credit(ctx context.Context, e wallet.Entry) (*wallet.Transaction, error) {
	var tx *wallet.Transaction
	err := inTx(ctx, r.pool, func(q pgx.Tx) error {
		var err error
		tx, err = creditWallet(ctx, q, e)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Debit takes from the balance and records the transaction.
func (r *WalletRepository) Debit(ctx context.Context, e wallet.Entry) (*wallet.Transaction, error) {
	var tx *wallet.Transaction
	err := inTx(ctx, r.pool, func(q pgx.Tx) error {
		var err error
		tx, err = debitWallet(ctx, q, e)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Transactions returns a newest-first page.
func (r *WalletRepository) Transactions(ctx context.Context, userID string, offset, limit int) ([]wallet.Transaction, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, countWalletTxSQL, userID).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count wallet transactions")
	}
	rows, err := r.pool.Query(ctx, listWalletTxSQL, userID, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list wallet transactions")
	}
	txs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (wallet.Transaction, error) {
		var (
			t           wallet.Transaction
			typ, status string
		)
		err := row.Scan(&t.ID, &t.UserID, &t.Amount, &typ, &t.OrderID, &t.Description, &status, &t.CreatedAt)
		t.Type = wallet.TxType(typ)
		t.Status = wallet.TxStatus(status)
		return t, err
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, "scan wallet transactions")
	}
	return txs, total, nil
}

// Totals sums credits and debits over the whole history.
func (r *WalletRepository) Totals(ctx context.Context, userID string) (in, out decimal.Decimal, err error) {
	if err := r.pool.QueryRow(ctx, walletTotalsSQL, userID).Scan(&in, &out); err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "sum wallet transactions")
	}
	return in, out, nil
}

func creditWallet(ctx context.Context, q dbtx, e wallet.Entry) (*wallet.Transaction, error) {
	now := time.Now()
	if _, err := q.Exec(ctx, creditWalletSQL, e.UserID, e.Amount, now); err != nil {
		return nil, errors.Wrap(err, "credit wallet")
	}
	return insertWalletTx(ctx, q, e, wallet.Credit, now)
}

func debitWallet(ctx context.Context, q dbtx, e wallet.Entry) (*wallet.Transaction, error) {
	now := time.Now()
	tag, err := q.Exec(ctx, debitWalletSQL, e.UserID, e.Amount, now)
	if err != nil {
		return nil, errors.Wrap(err, "debit wallet")
	}
	if tag.RowsAffected() == 0 {
		return nil, wallet.ErrInsufficientBalance
	}
	return insertWalletTx(ctx, q, e, wallet.Debit, now)
}

func insertWalletTx(ctx context.Context, q dbtx, e wallet.Entry, typ wallet.TxType, now time.Time) (*wallet.Transaction, error) {
	t := &wallet.Transaction{
		ID:          uuid.New().String(),
		UserID:      e.UserID,
		Amount:      e.Amount.Round(2),
		Type:        typ,
		OrderID:     e.OrderID,
		Description: e.Description,
		Status:      wallet.StatusCompleted,
		CreatedAt:   now,
	}
	_, err := q.Exec(ctx, insertWalletTxSQL,
		t.ID, t.UserID, t.Amount, string(t.Type), t.OrderID, t.Description, string(t.Status), t.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "insert wallet transaction")
	}
	return t, nil
}
