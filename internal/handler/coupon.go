package handler

import (
	"net/http"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// validateCoupon checks a code against an explicit cart total.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := h.bind(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.coupons.Validate(r.Context(), coupon.ValidateRequest{
		Code:      req.Code,
		CartTotal: req.CartTotal,
		UserID:    identity(r).UserID,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Coupon is valid", encodeCoupon(res))
}

// applyCoupon previews a code against the caller's current cart. Nothing is
// redeemed until the order is placed.
func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := h.bind(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	id := identity(r)
	c, err := h.carts.Get(r.Context(), id.UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.coupons.Validate(r.Context(), coupon.ValidateRequest{
		Code:      req.Code,
		CartTotal: c.TotalAmount,
		UserID:    id.UserID,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Coupon applied", encodeCoupon(res))
}
