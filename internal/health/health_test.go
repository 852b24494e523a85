package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name       string
		critical   bool
		err        error
		wantCode   int
		wantStatus Status
	}{
		{name: "healthy", critical: true, wantCode: http.StatusOK, wantStatus: StatusHealthy},
		{name: "critical failure", critical: true, err: errors.New("db down"), wantCode: http.StatusServiceUnavailable, wantStatus: StatusUnhealthy},
		{name: "optional failure", critical: false, err: errors.New("cache down"), wantCode: http.StatusOK, wantStatus: StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler("v1.2.3")
			h.Register("dep", tt.critical, func(context.Context) error { return tt.err })

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if w.Code != tt.wantCode {
				t.Fatalf("expected code %d, got %d", tt.wantCode, w.Code)
			}
			var resp Response
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Fatalf("expected %s, got %s", tt.wantStatus, resp.Status)
			}
			if resp.Version != "v1.2.3" {
				t.Fatalf("unexpected version %q", resp.Version)
			}
			check, ok := resp.Checks["dep"]
			if !ok {
				t.Fatal("check dep is missing")
			}
			if tt.err != nil && check.Message != tt.err.Error() {
				t.Fatalf("unexpected message %q", check.Message)
			}
		})
	}
}

func TestHandler_ReadinessIgnoresOptionalFailures(t *testing.T) {
	h := NewHandler("dev")
	h.Register("postgres", true, func(context.Context) error { return nil })
	h.Register("kafka", false, func(context.Context) error { return errors.New("no brokers") })

	w := httptest.NewRecorder()
	h.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ready" {
		t.Fatalf("expected ready, got %d %q", w.Code, w.Body.String())
	}

	h.Register("redis", true, func(context.Context) error { return errors.New("refused") })
	w = httptest.NewRecorder()
	h.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHandler_ChecksHonourTimeout(t *testing.T) {
	h := NewHandler("dev")
	h.timeout = 20 * time.Millisecond
	h.Register("slow", true, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	resp := h.Evaluate(context.Background())
	if time.Since(start) > time.Second {
		t.Fatal("evaluation must stop at the timeout")
	}
	if resp.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", resp.Status)
	}
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingCheckAndNames(t *testing.T) {
	h := NewHandler("dev")
	h.Register("redis", true, PingCheck(pingerFunc(func(context.Context) error { return nil })))
	h.Register("postgres", true, PingCheck(pingerFunc(func(context.Context) error { return nil })))

	names := h.Names()
	if len(names) != 2 || names[0] != "postgres" || names[1] != "redis" {
		t.Fatalf("unexpected names %v", names)
	}
	if resp := h.Evaluate(context.Background()); resp.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", resp.Status)
	}
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("unexpected liveness response %d %q", w.Code, w.Body.String())
	}
}
