package wallet

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Service exposes wallet operations.
type Service struct {
	repo Repository
}

// NewService creates a wallet Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Credit appends a credit and increases the balance, creating the wallet on
// first use.
func (s *Service) Credit(ctx context.Context, e Entry) (*Transaction, error) {
	if err := validateEntry(e); err != nil {
		return nil, err
	}
	e.Amount = e.Amount.Round(2)
	tx, err := s.repo.Credit(ctx, e)
	if err != nil {
		return nil, errors.Wrap(err, "credit wallet")
	}
	zctx.From(ctx).Info("Wallet credited",
		zap.String("user_id", e.UserID),
		zap.String("order_id", e.OrderID),
		zap.String("amount", e.Amount.StringFixed(2)),
	)
	return tx, nil
}

// Debit appends a debit and decreases the balance. It fails with
// ErrInsufficientBalance when amount exceeds the balance.
func (s *Service) Debit(ctx context.Context, e Entry) (*Transaction, error) {
	if err := validateEntry(e); err != nil {
		return nil, err
	}
	e.Amount = e.Amount.Round(2)
	tx, err := s.repo.Debit(ctx, e)
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			return nil, ErrInsufficientBalance
		}
		return nil, errors.Wrap(err, "debit wallet")
	}
	return tx, nil
}

// Ledger returns a newest-first page of the user's transactions and the
// money-in/money-out totals of the whole history. A missing wallet reads as
// an empty one.
func (s *Service) Ledger(ctx context.Context, userID string, page, limit int) (*Ledger, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	w, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get wallet")
	}
	txs, total, err := s.repo.Transactions(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list transactions")
	}
	in, out, err := s.repo.Totals(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "sum transactions")
	}

	return &Ledger{
		Wallet:        *w,
		Transactions:  txs,
		Total:         total,
		Page:          page,
		Limit:         limit,
		TotalMoneyIn:  in,
		TotalMoneyOut: out,
	}, nil
}

func validateEntry(e Entry) error {
	if e.UserID == "" {
		return ErrMissingUser
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}
