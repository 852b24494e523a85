package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func (h *handler) ship(w http.ResponseWriter, r *http.Request) {
	var req shipRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.ownedOrder(r.Context(), req.OrderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.cfg.Shipments.Ship(r.Context(), order.ID, req.Carrier, req.TrackingNumber)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShipmentResponse(s))
}

func (h *handler) getTracking(w http.ResponseWriter, r *http.Request) {
	order, err := h.ownedOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.cfg.Shipments.GetByOrder(r.Context(), order.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentResponse(s))
}

func (h *handler) updateTracking(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.cfg.Shipments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.ownedOrder(r.Context(), s.OrderID); err != nil {
		h.writeError(w, r, err)
		return
	}
	updated, err := h.cfg.Shipments.UpdateStatus(r.Context(), s.ID, domain.ShipmentStatus(req.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentResponse(updated))
}
