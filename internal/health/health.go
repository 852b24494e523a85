// Package health отдаёт liveness и readiness пробы сервиса.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultCheckTimeout = 2 * time.Second

// Status — состояние компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check — результат проверки одного компонента.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Critical   bool   `json:"critical"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — тело ответа /healthz и /readyz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// CheckFunc проверяет зависимость и возвращает ошибку, если она недоступна.
type CheckFunc func(ctx context.Context) error

// Pinger — любой клиент с Ping, например pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck оборачивает Pinger в CheckFunc.
func PingCheck(p Pinger) CheckFunc {
	return p.Ping
}

type checker struct {
	name     string
	critical bool
	fn       CheckFunc
}

// Handler выполняет зарегистрированные проверки параллельно.
type Handler struct {
	mu        sync.RWMutex
	checkers  []checker
	version   string
	timeout   time.Duration
	startTime time.Time
	now       func() time.Time
}

func NewHandler(version string) *Handler {
	return &Handler{
		version:   version,
		timeout:   defaultCheckTimeout,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Register добавляет проверку. Отказ критичной проверки делает сервис
// неготовым, некритичной только понижает статус до degraded.
func (h *Handler) Register(name string, critical bool, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, checker{name: name, critical: critical, fn: fn})
}

// Evaluate выполняет все проверки и сводит их в общий статус.
func (h *Handler) Evaluate(ctx context.Context) Response {
	h.mu.RLock()
	checkers := append([]checker(nil), h.checkers...)
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make([]Check, len(checkers))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range checkers {
		i, c := i, c
		g.Go(func() error {
			results[i] = run(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	resp := Response{
		Status:        StatusHealthy,
		Timestamp:     h.now().UTC(),
		Checks:        make(map[string]Check, len(results)),
		Version:       h.version,
		UptimeSeconds: int64(h.now().Sub(h.startTime).Seconds()),
	}
	for _, check := range results {
		resp.Checks[check.Name] = check
		switch {
		case check.Status == StatusUnhealthy:
			resp.Status = StatusUnhealthy
		case check.Status == StatusDegraded && resp.Status == StatusHealthy:
			resp.Status = StatusDegraded
		}
	}
	return resp
}

// Names возвращает имена зарегистрированных проверок по алфавиту.
func (h *Handler) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.checkers))
	for _, c := range h.checkers {
		names = append(names, c.name)
	}
	sort.Strings(names)
	return names
}

func run(ctx context.Context, c checker) Check {
	start := time.Now()
	err := c.fn(ctx)
	check := Check{
		Name:       c.name,
		Status:     StatusHealthy,
		Critical:   c.critical,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		check.Message = err.Error()
		check.Status = StatusDegraded
		if c.critical {
			check.Status = StatusUnhealthy
		}
	}
	return check
}

// ServeHTTP отвечает 503, если упала хотя бы одна критичная проверка.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.Evaluate(r.Context())

	code := http.StatusOK
	if resp.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// LivenessHandler всегда отвечает 200, пока процесс обслуживает запросы.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler отвечает текстом ready/not ready для балансировщиков.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.Evaluate(r.Context()).Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
