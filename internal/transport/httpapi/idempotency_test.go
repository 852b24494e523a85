package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestIdempotentReleasesKeyWhenHandlerPanics(t *testing.T) {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	entry := log.NewEntry(logger)

	repo := memory.NewIdempotencyRepository()
	h := &handler{logger: entry, idem: newIdempotency(repo, time.Hour, entry)}

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": "order-1"})
	})
	withCustomer := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), domain.Principal{CustomerID: "c1", Role: domain.RoleCustomer})))
		})
	}
	chain := recoverer(entry)(withCustomer(h.idempotent(next)))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"items":[]}`))
		req.Header.Set(idempotencyKeyHeader, "key-1")
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusInternalServerError, first.Code)

	_, err := repo.Get(context.Background(), domain.ScopeIdempotencyKey("c1", "key-1"))
	require.True(t, errors.Is(err, domain.ErrIdempotencyKeyNotFound), "panicked request must release its key, got %v", err)

	second := send()
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())
	require.Empty(t, second.Header().Get(idempotencyReplayHeader))
	require.Equal(t, 2, calls)
}
