package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics считает запросы REST API по маршруту и коду ответа.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewHTTPMetrics регистрирует метрики HTTP в registerer (nil означает DefaultRegisterer).
func NewHTTPMetrics(registerer prometheus.Registerer) *HTTPMetrics {
	return &HTTPMetrics{
		requests: register(registerer, "storefront_http_requests_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "Total number of HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"})),
		duration: register(registerer, "storefront_http_request_duration_seconds", prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"})),
		inFlight: register(registerer, "storefront_http_requests_in_flight", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		})),
	}
}

// Started отмечает начало обработки запроса.
func (m *HTTPMetrics) Started() {
	m.inFlight.Inc()
}

// Observe фиксирует завершённый запрос.
func (m *HTTPMetrics) Observe(route, method string, code int, d time.Duration) {
	m.inFlight.Dec()
	m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(route, method).Observe(d.Seconds())
}
