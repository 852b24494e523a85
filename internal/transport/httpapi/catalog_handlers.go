package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func (h *handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ProductFilter{Category: q.Get("category")}
	var err error
	if filter.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		h.writeError(w, r, err)
		return
	}

	products, err := h.cfg.Catalog.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.cfg.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := req.toDomain()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.cfg.Catalog.Create(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(created))
}

func (h *handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := req.toDomain()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	updated, err := h.cfg.Catalog.Update(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(updated))
}

func (h *handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.cfg.Reviews.ListByProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]reviewResponse, 0, len(reviews))
	for _, rv := range reviews {
		resp = append(resp, toReviewResponse(rv))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) addReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	rv, err := h.cfg.Reviews.Add(r.Context(), subject(r.Context()), req.ProductID, req.Rating, req.Comment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReviewResponse(rv))
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewInvalidArgument(name, "must be an integer")
	}
	return v, nil
}
