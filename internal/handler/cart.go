package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/cart"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), identity(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Cart retrieved", encodeCart(c))
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := h.bind(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.carts.AddItem(r.Context(), cart.AddItemRequest{
		UserID:    identity(r).UserID,
		ProductID: req.ProductID,
		Size:      req.Size,
		Quantity:  req.Quantity,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Item added to cart", encodeCart(c))
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := h.bind(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.carts.UpdateItem(r.Context(), cart.UpdateItemRequest{
		UserID:   identity(r).UserID,
		ItemID:   chi.URLParam(r, "itemID"),
		Size:     req.Size,
		Quantity: req.Quantity,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Cart item updated", encodeCart(c))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveItem(r.Context(), identity(r).UserID, chi.URLParam(r, "itemID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Item removed from cart", encodeCart(c))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Clear(r.Context(), identity(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Cart cleared", encodeCart(c))
}
