package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	idempotencyKeyHeader    = "Idempotency-Key"
	idempotencyReplayHeader = "Idempotent-Replayed"
	maxIdempotencyKeyLength = 128
	// idempotencyStoreTimeout отвязывает запись ответа от отмены запроса.
	idempotencyStoreTimeout = 5 * time.Second
)

type idempotency struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

func newIdempotency(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *idempotency {
	return &idempotency{repo: repo, ttl: ttl, logger: logger, now: time.Now}
}

// idempotent выполняет запрос с Idempotency-Key не более одного раза:
// повтор с тем же телом получает сохранённый ответ, с другим телом 409.
func (h *handler) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
		if h.idem == nil || key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			writeMessage(w, http.StatusBadRequest, "idempotency key is too long")
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		scopedKey := domain.ScopeIdempotencyKey(subject(r.Context()), key)
		hash := requestHash(r.Method, r.URL.Path, subject(r.Context()), body)

		record, err := h.idem.repo.CreateProcessing(r.Context(), scopedKey, hash, h.idem.now().UTC().Add(h.idem.ttl))
		if err != nil {
			h.idem.replay(w, r, err, record)
			return
		}

		rec := &capturingWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			// Паника считается 5xx: ключ снимается, recoverer выше ответит клиенту.
			if p := recover(); p != nil {
				rec.status = http.StatusInternalServerError
				h.idem.store(scopedKey, rec)
				panic(p)
			}
		}()
		next.ServeHTTP(rec, r)
		h.idem.store(scopedKey, rec)
	})
}

func (i *idempotency) replay(w http.ResponseWriter, r *http.Request, createErr error, record domain.IdempotencyRecord) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		writeMessage(w, http.StatusConflict, "idempotency key is already used with a different request")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch {
		case record.Status == domain.IdempotencyStatusProcessing:
			writeMessage(w, http.StatusConflict, "request with the same idempotency key is still processing")
		case record.Replayable():
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(idempotencyReplayHeader, "true")
			w.WriteHeader(record.ReplayStatus())
			_, _ = w.Write(record.ResponseBody)
		default:
			writeMessage(w, http.StatusInternalServerError, "unknown idempotency record status")
		}
	default:
		i.logger.WithError(createErr).WithField("path", r.URL.Path).Warn("failed to create idempotency record")
		writeMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

// store сохраняет ответ. 5xx снимает ключ, чтобы клиент мог повторить запрос.
func (i *idempotency) store(key string, rec *capturingWriter) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyStoreTimeout)
	defer cancel()

	var err error
	switch {
	case rec.status >= http.StatusInternalServerError:
		err = i.repo.Delete(ctx, key)
	case rec.status >= http.StatusBadRequest:
		err = i.repo.MarkFailed(ctx, key, rec.body.Bytes(), rec.status)
	default:
		err = i.repo.MarkDone(ctx, key, rec.body.Bytes(), rec.status)
	}
	if err != nil {
		i.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}
}

func requestHash(method, path, customerID string, body []byte) string {
	h := sha256.New()
	for _, part := range []string{method, path, customerID} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// capturingWriter дублирует ответ в буфер для кэша идемпотентности.
type capturingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *capturingWriter) WriteHeader(code int) {
	if !c.wroteHeader {
		c.status = code
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *capturingWriter) Write(p []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}
