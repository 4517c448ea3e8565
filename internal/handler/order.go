package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/idempotency"
)

const headerIdempotencyKey = "Idempotency-Key"

// placeOrder checks out the caller's cart. A repeated Idempotency-Key
// returns the order created by the first request instead of placing another.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := h.bind(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	ctx := r.Context()
	id := identity(r)

	var key string
	if k := r.Header.Get(headerIdempotencyKey); k != "" && h.idem != nil {
		if len(k) > 128 {
			fail(w, r, apperr.New(apperr.KindValidation, "idempotency key is too long"))
			return
		}
		key = idempotency.Key("order", id.UserID, k)
		orderID, err := h.idem.Reserve(ctx, key)
		if err != nil {
			fail(w, r, err)
			return
		}
		if orderID != "" {
			o, err := h.orders.Get(ctx, id, orderID)
			if err != nil {
				fail(w, r, err)
				return
			}
			respond(w, http.StatusOK, "Order already placed", encodePlacedOrder(o, nil))
			return
		}
	}

	res, err := h.orders.PlaceOrder(ctx, order.PlaceOrderRequest{
		UserID:            id.UserID,
		ShippingAddressID: req.ShippingAddressID,
		PaymentMethod:     order.PaymentMethod(req.PaymentMethod),
		CouponCode:        req.CouponCode,
	})
	if key != "" {
		if err != nil {
			if rerr := h.idem.Release(ctx, key); rerr != nil {
				zctx.From(ctx).Warn("Release idempotency key", zap.Error(rerr))
			}
		} else if cerr := h.idem.Complete(ctx, key, res.Order.ID); cerr != nil {
			zctx.From(ctx).Warn("Complete idempotency key", zap.Error(cerr))
		}
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "Order placed", encodePlacedOrder(res.Order, res.Intent))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.orders.List(r.Context(), identity(r).UserID, page, limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Orders retrieved", encodeOrderPage(p))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), identity(r), chi.URLParam(r, "orderID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Order retrieved", encodeOrder(o))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := h.bind(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.orders.CancelOrder(r.Context(), identity(r), chi.URLParam(r, "orderID"), req.Reason)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Order cancelled", encodeOrder(o))
}

func (h *Handler) cancelOrderItem(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := h.bind(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.orders.CancelItem(r.Context(), identity(r),
		chi.URLParam(r, "orderID"), chi.URLParam(r, "itemID"), req.Reason)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Item cancelled", encodeOrder(o))
}

func (h *Handler) requestReturn(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := h.bind(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.orders.RequestReturn(r.Context(), identity(r),
		chi.URLParam(r, "orderID"), chi.URLParam(r, "itemID"), req.Reason)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Return requested", encodeOrder(o))
}

func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := h.bind(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.orders.VerifyPayment(r.Context(), identity(r), order.VerifyPaymentRequest{
		GatewayOrderID:   req.OrderID,
		GatewayPaymentID: req.PaymentID,
		Signature:        req.Signature,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Payment verified", encodeOrder(o))
}
