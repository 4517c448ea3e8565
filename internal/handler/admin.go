package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/order"
)

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := h.bind(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), identity(r), chi.URLParam(r, "orderID"), order.Status(req.Status))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Order status updated", encodeOrder(o))
}

func (h *Handler) approveReturn(w http.ResponseWriter, r *http.Request) {
	var req approveReturnRequest
	if err := h.bind(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.orders.ApproveReturn(r.Context(), identity(r), order.ApproveReturnRequest{
		OrderID:     chi.URLParam(r, "orderID"),
		ItemID:      chi.URLParam(r, "itemID"),
		Approved:    req.Approved,
		Destination: order.RefundDestination(req.Destination),
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	msg := "Return rejected"
	if req.Approved {
		msg = "Return approved"
	}
	respond(w, http.StatusOK, msg, encodeOrder(o))
}

func (h *Handler) processRefund(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.ProcessRefund(r.Context(), identity(r), chi.URLParam(r, "orderID"), chi.URLParam(r, "itemID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Refund processed", encodeOrder(o))
}
