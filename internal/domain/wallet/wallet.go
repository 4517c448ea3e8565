// Package wallet implements the per-user store-credit ledger used as a refund
// sink and as an alternative payment source.
package wallet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = apperr.New(apperr.KindConflict, "insufficient wallet balance")
	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = apperr.New(apperr.KindValidation, "amount must be greater than 0")
	// ErrMissingUser is returned when no user is given.
	ErrMissingUser = apperr.New(apperr.KindValidation, "user is required")
)

// TxType distinguishes money entering and leaving the wallet.
type TxType string

const (
	Credit TxType = "credit"
	Debit  TxType = "debit"
)

// TxStatus is the settlement state of a ledger entry.
type TxStatus string

const (
	StatusCompleted TxStatus = "completed"
)

// Transaction is an append-only ledger entry.
type Transaction struct {
	ID          string
	UserID      string
	Amount      decimal.Decimal
	Type        TxType
	OrderID     string
	Description string
	Status      TxStatus
	CreatedAt   time.Time
}

// Wallet is the stored balance of a user. Balance always equals the sum of
// credits minus the sum of debits.
type Wallet struct {
	UserID    string
	Balance   decimal.Decimal
	UpdatedAt time.Time
}

// Entry describes a credit or debit to apply. Settlement and the refund
// workflow pass entries to their repositories so that the ledger write joins
// their commit.
type Entry struct {
	UserID      string
	Amount      decimal.Decimal
	OrderID     string
	Description string
}

// Ledger is a page of transactions with totals over the entire history.
type Ledger struct {
	Wallet        Wallet
	Transactions  []Transaction
	Total         int
	Page          int
	Limit         int
	TotalMoneyIn  decimal.Decimal
	TotalMoneyOut decimal.Decimal
}

// Repository persists wallets. Credit and Debit update the balance and append
// the transaction atomically; Debit only succeeds while balance >= amount and
// returns ErrInsufficientBalance otherwise.
type Repository interface {
	// Get returns an empty wallet when the user has none yet.
	Get(ctx context.Context, userID string) (*Wallet, error)
	Credit(ctx context.Context, e Entry) (*Transaction, error)
	Debit(ctx context.Context, e Entry) (*Transaction, error)
	// Transactions returns a newest-first page and the total count.
	Transactions(ctx context.Context, userID string, offset, limit int) ([]Transaction, int, error)
	// Totals sums credits and debits over the whole history.
	Totals(ctx context.Context, userID string) (in, out decimal.Decimal, err error)
}
