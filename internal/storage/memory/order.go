package memory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/wallet"
)

// Orders implements order.Repository.
type Orders struct{ s *Store }

var _ order.Repository = (*Orders)(nil)

// Settle checks every condition before touching state, so a failed
// settlement leaves the store unchanged. The cart must still be at the
// version the order was priced from.
func (r *Orders) Settle(_ context.Context, st order.Settlement) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	c, hasCart := s.carts[st.Order.UserID]
	cartVersion := 0
	if hasCart {
		cartVersion = c.Version
	}
	if cartVersion != st.CartVersion {
		return order.ErrCartChanged
	}
	touched, err := s.applyStock(st.Stock)
	if err != nil {
		return err
	}
	if st.Coupon != nil {
		if err := s.checkCoupon(*st.Coupon); err != nil {
			return err
		}
	}
	if st.WalletDebit != nil && s.balance(st.WalletDebit.UserID).LessThan(st.WalletDebit.Amount) {
		return wallet.ErrInsufficientBalance
	}

	for id, p := range touched {
		s.products[id] = p
	}
	if st.Coupon != nil {
		s.markCoupon(*st.Coupon)
	}
	if st.WalletDebit != nil {
		s.appendTx(*st.WalletDebit, wallet.Debit)
	}
	o := cloneOrder(st.Order)
	s.orders[o.ID] = o
	s.orderSeq = append(s.orderSeq, o.ID)
	if hasCart {
		c.Items = nil
		c.TotalAmount = decimal.Zero
		c.UpdatedAt = s.now()
		c.Version++
	}
	return nil
}

func (r *Orders) Get(_ context.Context, id string) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *Orders) GetByGatewayOrderID(_ context.Context, gatewayOrderID string) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if gatewayOrderID != "" && o.GatewayOrderID == gatewayOrderID {
			return cloneOrder(o), nil
		}
	}
	return nil, order.ErrNotFound
}

func (r *Orders) Save(_ context.Context, o *order.Order, fx order.Effects) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[o.ID]
	if !ok {
		return order.ErrNotFound
	}
	if stored.Version != o.Version {
		return order.ErrVersionConflict
	}
	touched, err := s.applyStock(fx.Restock)
	if err != nil {
		return err
	}

	for id, p := range touched {
		s.products[id] = p
	}
	if fx.WalletCredit != nil {
		s.appendTx(*fx.WalletCredit, wallet.Credit)
	}
	o.Version++
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *Orders) ListByUser(_ context.Context, userID string, offset, limit int) ([]order.Order, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var mine []string
	for _, id := range r.s.orderSeq {
		if r.s.orders[id].UserID == userID {
			mine = append(mine, id)
		}
	}
	out := make([]order.Order, 0, limit)
	for i := len(mine) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, *cloneOrder(r.s.orders[mine[i]]))
	}
	return out, len(mine), nil
}
