package memory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/wallet"
)

// Wallets implements wallet.Repository.
type Wallets struct{ s *Store }

var _ wallet.Repository = (*Wallets)(nil)

func (r *Wallets) Get(_ context.Context, userID string) (*wallet.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if w, ok := r.s.wallets[userID]; ok {
		cp := *w
		return &cp, nil
	}
	return &wallet.Wallet{UserID: userID, Balance: decimal.Zero}, nil
}

func (r *Wallets) Credit(_ context.Context, e wallet.Entry) (*wallet.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx := r.s.appendTx(e, wallet.Credit)
	return &tx, nil
}

func (r *Wallets) Debit(_ context.Context, e wallet.Entry) (*wallet.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.balance(e.UserID).LessThan(e.Amount) {
		return nil, wallet.ErrInsufficientBalance
	}
	tx := r.s.appendTx(e, wallet.Debit)
	return &tx, nil
}

func (r *Wallets) Transactions(_ context.Context, userID string, offset, limit int) ([]wallet.Transaction, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.s.txs[userID]
	total := len(all)
	out := make([]wallet.Transaction, 0, limit)
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, total, nil
}

func (r *Wallets) Totals(_ context.Context, userID string) (in, out decimal.Decimal, err error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	in, out = decimal.Zero, decimal.Zero
	for _, tx := range r.s.txs[userID] {
		switch tx.Type {
		case wallet.Credit:
			in = in.Add(tx.Amount)
		case wallet.Debit:
			out = out.Add(tx.Amount)
		}
	}
	return in, out, nil
}
