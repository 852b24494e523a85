package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/money"
)

func (h *handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		h.writeError(w, r, domain.NewInvalidArgument("amount", err.Error()))
		return
	}

	p, err := h.cfg.Payments.Create(r.Context(), subject(r.Context()), req.OrderID, domain.PaymentMethod(req.Method), amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponse(p))
}

func (h *handler) listPayments(w http.ResponseWriter, r *http.Request) {
	order, err := h.ownedOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	payments, err := h.cfg.Payments.GetByOrder(r.Context(), order.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, toPaymentResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) updatePayment(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.ownedPayment(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	updated, err := h.cfg.Payments.UpdateStatus(r.Context(), p.ID, domain.PaymentStatus(req.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(updated))
}

func (h *handler) deletePayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.ownedPayment(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.cfg.Payments.Delete(r.Context(), p.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) ownedPayment(r *http.Request) (domain.Payment, error) {
	p, err := h.cfg.Payments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return domain.Payment{}, err
	}
	if _, err := h.ownedOrder(r.Context(), p.OrderID); err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}
