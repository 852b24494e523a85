package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const maxOrdersPerPage = 100

func (h *handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	lines := make([]domain.RequestedLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, domain.RequestedLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	order, _, err := h.cfg.Orders.PlaceOrder(r.Context(), subject(r.Context()), lines)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	if err := requireOwner(r.Context(), customerID); err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := intParam(r.URL.Query().Get("limit"), "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if limit <= 0 || limit > maxOrdersPerPage {
		limit = maxOrdersPerPage
	}

	orders, err := h.cfg.Orders.ListCustomerOrders(r.Context(), customerID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.ownedOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *handler) orderTimeline(w http.ResponseWriter, r *http.Request) {
	order, err := h.ownedOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	events, err := h.cfg.Orders.Timeline(r.Context(), order.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]timelineEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, timelineEventResponse{Type: e.Type, Status: string(e.Status), Reason: e.Reason, OccurredAt: e.Occurred})
	}
	writeJSON(w, http.StatusOK, resp)
}

// updateOrderStatus принимает только отмену: оплату, отгрузку и доставку
// двигают платежи и отгрузки.
func (h *handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req orderStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if domain.OrderStatus(req.Status) != domain.OrderStatusCancelled {
		h.writeError(w, r, domain.NewInvalidArgument("status", "only cancelled can be set directly, got "+req.Status))
		return
	}
	order, err := h.ownedOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	updated, err := h.cfg.Orders.Cancel(r.Context(), order.ID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(updated))
}

func (h *handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.ownedOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.cfg.Orders.DeleteOrder(r.Context(), order.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedOrder загружает заказ и проверяет, что он принадлежит субъекту токена.
func (h *handler) ownedOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := h.cfg.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := requireOwner(ctx, order.CustomerID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}
