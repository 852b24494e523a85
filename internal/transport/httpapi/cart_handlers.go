package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *handler) getCart(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	if err := requireOwner(r.Context(), customerID); err != nil {
		h.writeError(w, r, err)
		return
	}
	items, err := h.cfg.Carts.Get(r.Context(), customerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(items))
}

func (h *handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var req cartAddRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	line, err := h.cfg.Carts.Add(r.Context(), subject(r.Context()), req.ProductID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cartLineResponse{ID: line.ID, ProductID: line.ProductID, Quantity: line.Quantity})
}

func (h *handler) updateCartLine(w http.ResponseWriter, r *http.Request) {
	var req cartUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	line, err := h.cfg.Carts.UpdateQuantity(r.Context(), subject(r.Context()), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartLineResponse{ID: line.ID, ProductID: line.ProductID, Quantity: line.Quantity})
}

func (h *handler) removeCartLine(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Carts.Remove(r.Context(), subject(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) checkout(w http.ResponseWriter, r *http.Request) {
	order, err := h.cfg.Carts.Checkout(r.Context(), subject(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}
