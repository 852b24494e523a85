package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestOrderMetrics_RecordsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetricsWithRegisterer(reg)

	m.RecordPlaced(2500)
	m.RecordPlaced(0)
	m.RecordRejected(RejectInsufficientStock)
	m.RecordRejected(RejectInsufficientStock)
	m.RecordRejected(RejectNotFound)
	m.RecordPartialWrite()
	m.RecordTransition("pending", "paid")
	m.RecordTimelineEvent()

	if got := metricValue(t, m.ordersPlaced); got != 2 {
		t.Fatalf("expected 2 placed orders, got %v", got)
	}
	if got := metricValue(t, m.placedAmountMinor); got != 2500 {
		t.Fatalf("expected placed amount 2500, got %v", got)
	}
	if got := metricValue(t, m.ordersRejected.WithLabelValues(RejectInsufficientStock)); got != 2 {
		t.Fatalf("expected 2 stock rejections, got %v", got)
	}
	if got := metricValue(t, m.ordersRejected.WithLabelValues(RejectNotFound)); got != 1 {
		t.Fatalf("expected 1 not found rejection, got %v", got)
	}
	if got := metricValue(t, m.partialWrites); got != 1 {
		t.Fatalf("expected 1 partial write, got %v", got)
	}
	if got := metricValue(t, m.transitions.WithLabelValues("pending", "paid")); got != 1 {
		t.Fatalf("expected 1 transition, got %v", got)
	}
}

func TestOrderMetrics_AssemblyDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetricsWithRegisterer(reg)

	m.RecordAssemblyDuration(20 * time.Millisecond)
	m.RecordAssemblyDuration(40 * time.Millisecond)

	metric := &dto.Metric{}
	if err := m.assemblyDuration.Write(metric); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	if got := metric.GetHistogram().GetSampleCount(); got != 2 {
		t.Fatalf("expected 2 samples, got %d", got)
	}
}

func TestOrderMetrics_ReRegistrationReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewOrderMetricsWithRegisterer(reg)
	second := NewOrderMetricsWithRegisterer(reg)

	first.RecordPlaced(100)
	if got := metricValue(t, second.ordersPlaced); got != 1 {
		t.Fatalf("second instance must share collector, got %v", got)
	}
}

func TestOrderMetrics_NilSafe(t *testing.T) {
	var m *OrderMetrics
	m.RecordPlaced(1)
	m.RecordRejected(RejectInternal)
	m.RecordPartialWrite()
	m.RecordTransition("a", "b")
	m.RecordAssemblyDuration(time.Second)
	m.RecordTimelineEvent()
}

func TestHTTPMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.Started()
	if got := metricValue(t, m.inFlight); got != 1 {
		t.Fatalf("expected 1 in flight, got %v", got)
	}
	m.Observe("/api/orders", "POST", 201, 10*time.Millisecond)

	if got := metricValue(t, m.inFlight); got != 0 {
		t.Fatalf("expected 0 in flight, got %v", got)
	}
	if got := metricValue(t, m.requests.WithLabelValues("/api/orders", "POST", "201")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
}

func metricValue(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()

	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case metric.GetCounter() != nil:
		return metric.GetCounter().GetValue()
	case metric.GetGauge() != nil:
		return metric.GetGauge().GetValue()
	default:
		t.Fatalf("unsupported metric type")
		return 0
	}
}
