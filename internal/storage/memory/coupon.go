package memory

import (
	"context"
	"strings"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// Coupons implements coupon.Repository.
type Coupons struct{ s *Store }

var _ coupon.Repository = (*Coupons)(nil)

func (r *Coupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.coupons {
		if strings.EqualFold(c.Code, code) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (r *Coupons) UserUsage(_ context.Context, couponID, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.usage[usageKey{couponID: couponID, userID: userID}], nil
}

func (r *Coupons) MarkUsed(_ context.Context, u coupon.Usage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.checkCoupon(u); err != nil {
		return err
	}
	r.s.markCoupon(u)
	return nil
}

func (s *Store) checkCoupon(u coupon.Usage) error {
	c, ok := s.coupons[u.CouponID]
	if !ok {
		return coupon.ErrNotFound
	}
	if !c.Active || c.UsedCount >= c.MaxGlobalUsage {
		return coupon.ErrGlobalLimitReached
	}
	if s.usage[usageKey{couponID: u.CouponID, userID: u.UserID}] >= u.Limit {
		return coupon.ErrUserLimitReached
	}
	return nil
}

func (s *Store) markCoupon(u coupon.Usage) {
	c := s.coupons[u.CouponID]
	c.UsedCount++
	if c.UsedCount >= c.MaxGlobalUsage {
		c.Active = false
	}
	s.usage[usageKey{couponID: u.CouponID, userID: u.UserID}]++
}
