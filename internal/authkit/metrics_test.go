package authkit

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCounterMetricsSnapshotIsCopy(t *testing.T) {
	metrics := NewCounterMetrics()
	metrics.Increment(metricAuthLoginSuccess)
	metrics.Increment(metricAuthLoginSuccess)

	snapshot := metrics.Snapshot()
	snapshot[metricAuthLoginSuccess] = 100
	if metrics.Count(metricAuthLoginSuccess) != 2 {
		t.Fatalf("expected snapshot mutation to leave counters intact")
	}
}

func TestPrometheusMetricsCountsByEvent(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)
	metrics.Increment(metricAuthGateSuccess)
	metrics.Increment(metricAuthGateSuccess)
	metrics.Increment("auth.gate.expired")

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) != 1 || families[0].GetName() != "followgate_events_total" {
		t.Fatalf("expected a single followgate_events_total family, got %d", len(families))
	}
	values := make(map[string]float64)
	for _, series := range families[0].GetMetric() {
		for _, label := range series.GetLabel() {
			if label.GetName() == "event" {
				values[label.GetValue()] = series.GetCounter().GetValue()
			}
		}
	}
	if len(values) != 2 || values[metricAuthGateSuccess] != 2 || values["auth.gate.expired"] != 1 {
		t.Fatalf("unexpected counter values: %v", values)
	}
}
