// Package handler exposes the storefront services over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/wallet"
	"github.com/xenking/storefront/internal/idempotency"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// APIKeyPepper is the HMAC key API keys are hashed with.
	APIKeyPepper []byte
	// Authenticated run after the caller identity is known.
	Authenticated []httpmiddleware.Middleware
}

// Handler serves the storefront API.
type Handler struct {
	carts    *cart.Service
	coupons  coupon.Validator
	orders   *order.Service
	wallets  *wallet.Service
	apikeys  auth.Repository
	idem     idempotency.Store
	pepper   []byte
	authed   []httpmiddleware.Middleware
	validate *validator.Validate
}

// New constructs a Handler with its domain dependencies.
func New(
	cfg Config,
	carts *cart.Service,
	coupons coupon.Validator,
	orders *order.Service,
	wallets *wallet.Service,
	apikeys auth.Repository,
	idem idempotency.Store,
) *Handler {
	return &Handler{
		carts:    carts,
		coupons:  coupons,
		orders:   orders,
		wallets:  wallets,
		apikeys:  apikeys,
		idem:     idem,
		pepper:   cfg.APIKeyPepper,
		authed:   cfg.Authenticated,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Router returns the API routes. Middlewares run inside the router so that
// request logs carry the matched route pattern.
func (h *Handler) Router(middlewares ...httpmiddleware.Middleware) http.Handler {
	r := chi.NewRouter()
	for _, m := range middlewares {
		r.Use(m)
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusMethodNotAllowed, "validation", "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(h.Authenticate)
		for _, m := range h.authed {
			r.Use(m)
		}

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.getCart)
			r.Delete("/", h.clearCart)
			r.Post("/items", h.addCartItem)
			r.Patch("/items/{itemID}", h.updateCartItem)
			r.Delete("/items/{itemID}", h.removeCartItem)
		})

		r.Post("/coupons/validate", h.validateCoupon)
		r.Post("/coupons/apply", h.applyCoupon)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.placeOrder)
			r.Get("/", h.listOrders)
			r.Get("/{orderID}", h.getOrder)
			r.Post("/{orderID}/cancel", h.cancelOrder)
			r.Post("/{orderID}/items/{itemID}/cancel", h.cancelOrderItem)
			r.Post("/{orderID}/items/{itemID}/return", h.requestReturn)
		})

		r.Post("/payments/verify", h.verifyPayment)

		r.Get("/wallet", h.getWallet)
		r.Post("/wallet/debit", h.debitWallet)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Post("/wallets/{userID}/credit", h.creditWallet)
			r.Patch("/orders/{orderID}/status", h.updateOrderStatus)
			r.Post("/orders/{orderID}/items/{itemID}/return", h.approveReturn)
			r.Post("/orders/{orderID}/items/{itemID}/refund", h.processRefund)
		})
	})
	return r
}
