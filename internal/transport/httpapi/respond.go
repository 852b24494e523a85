package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Status: "error", Message: msg})
}

// statusFor сопоставляет вид доменной ошибки HTTP-коду.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPartialWrite):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidTransition),
		domain.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError пишет ошибку в формате API. Внутренние детали 5xx не раскрываются.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code < http.StatusInternalServerError {
		writeMessage(w, code, err.Error())
		return
	}

	entry := h.logger.WithError(err).WithFields(log.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	})
	var partial *domain.PartialWriteError
	if errors.As(err, &partial) {
		entry = entry.WithField("order_id", partial.OrderID)
	}
	entry.Error("request failed")
	writeMessage(w, code, "internal server error")
}

// decodeJSON читает ровно один JSON-объект без неизвестных полей.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewInvalidArgument("body", "request body is empty")
		}
		return domain.NewInvalidArgument("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	if dec.More() {
		return domain.NewInvalidArgument("body", "must contain a single JSON object")
	}
	return nil
}
