package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины отказа в оформлении заказа, метка reason.
const (
	RejectInvalidArgument   = "invalid_argument"
	RejectNotFound          = "not_found"
	RejectInsufficientStock = "insufficient_stock"
	RejectInternal          = "internal"
)

// OrderMetrics содержит метрики сборки и жизненного цикла заказов.
type OrderMetrics struct {
	ordersPlaced      prometheus.Counter
	ordersRejected    *prometheus.CounterVec
	partialWrites     prometheus.Counter
	transitions       *prometheus.CounterVec
	assemblyDuration  prometheus.Histogram
	placedAmountMinor prometheus.Counter
	timelineEvents    prometheus.Counter
}

// NewOrderMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	return &OrderMetrics{
		ordersPlaced: register(registerer, "storefront_orders_placed_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Total number of orders placed",
		})),
		ordersRejected: register(registerer, "storefront_orders_rejected_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_orders_rejected_total",
			Help: "Total number of order requests rejected during assembly",
		}, []string{"reason"})),
		partialWrites: register(registerer, "storefront_order_partial_writes_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_order_partial_writes_total",
			Help: "Total number of orders whose header was stored without all details",
		})),
		transitions: register(registerer, "storefront_order_transitions_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_order_transitions_total",
			Help: "Total number of order status transitions",
		}, []string{"from", "to"})),
		assemblyDuration: register(registerer, "storefront_order_assembly_duration_seconds", prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_order_assembly_duration_seconds",
			Help:    "Duration of order assembly in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		})),
		placedAmountMinor: register(registerer, "storefront_orders_placed_amount_minor_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_orders_placed_amount_minor_total",
			Help: "Sum of placed order totals in minor currency units",
		})),
		timelineEvents: register(registerer, "storefront_timeline_events_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of order timeline events recorded",
		})),
	}
}

// RecordPlaced учитывает оформленный заказ и его сумму.
func (m *OrderMetrics) RecordPlaced(totalMinor int64) {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
	if totalMinor > 0 {
		m.placedAmountMinor.Add(float64(totalMinor))
	}
}

// RecordRejected учитывает отказ с причиной reason.
func (m *OrderMetrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.ordersRejected.WithLabelValues(reason).Inc()
}

func (m *OrderMetrics) RecordPartialWrite() {
	if m == nil {
		return
	}
	m.partialWrites.Inc()
}

// RecordTransition учитывает смену статуса заказа.
func (m *OrderMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordAssemblyDuration записывает время сборки заказа.
func (m *OrderMetrics) RecordAssemblyDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.assemblyDuration.Observe(d.Seconds())
}

func (m *OrderMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}
