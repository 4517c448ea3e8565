package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/wallet"
)

func (h *Handler) getWallet(w http.ResponseWriter, r *http.Request) {
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
	l, err := h.wallets.Ledger(r.Context(), identity(r).UserID, page, limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Wallet retrieved", encodeLedger(l))
}

func (h *Handler) debitWallet(w http.ResponseWriter, r *http.Request) {
	var req walletEntryRequest
	if err := h.bind(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	tx, err := h.wallets.Debit(r.Context(), wallet.Entry{
		UserID:      identity(r).UserID,
		Amount:      req.Amount,
		OrderID:     req.OrderID,
		Description: req.Description,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Wallet debited", encodeTransaction(tx))
}

func (h *Handler) creditWallet(w http.ResponseWriter, r *http.Request) {
	var req walletEntryRequest
	if err := h.bind(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	tx, err := h.wallets.Credit(r.Context(), wallet.Entry{
		UserID:      chi.URLParam(r, "userID"),
		Amount:      req.Amount,
		OrderID:     req.OrderID,
		Description: req.Description,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Wallet credited", encodeTransaction(tx))
}
