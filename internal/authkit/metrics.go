package authkit

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricAuthLoginSuccess  = "auth.login.success"
	metricAuthLoginFailure  = "auth.login.failure"
	metricAuthGoogleSuccess = "auth.google.success"
	metricAuthGoogleFailure = "auth.google.failure"
	metricAuthGateSuccess   = "auth.gate.success"
	metricAuthGateError     = "auth.gate.lookup_error"
)

// MetricsRecorder increments counters for auth and relationship events.
type MetricsRecorder interface {
	Increment(event string)
}

// NopMetrics discards all events.
type NopMetrics struct{}

// Increment does nothing.
func (NopMetrics) Increment(string) {}

// CounterMetrics implements MetricsRecorder with in-memory counts.
type CounterMetrics struct {
	mutex  sync.Mutex
	counts map[string]int64
}

// NewCounterMetrics constructs an in-memory metrics recorder.
func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{counts: make(map[string]int64)}
}

// Increment increases the counter for the given event.
func (recorder *CounterMetrics) Increment(event string) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.counts[event]++
}

// Count returns the current value for the given event.
func (recorder *CounterMetrics) Count(event string) int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return recorder.counts[event]
}

// Snapshot returns a copy of all recorded counters.
func (recorder *CounterMetrics) Snapshot() map[string]int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	clone := make(map[string]int64, len(recorder.counts))
	for key, value := range recorder.counts {
		clone[key] = value
	}
	return clone
}

// PrometheusMetrics exposes events as a labelled Prometheus counter.
type PrometheusMetrics struct {
	events *prometheus.CounterVec
}

// NewPrometheusMetrics registers the event counter on the given registerer.
func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "followgate_events_total",
		Help: "Authentication and follow relationship events by name.",
	}, []string{"event"})
	registerer.MustRegister(events)
	return &PrometheusMetrics{events: events}
}

// Increment increases the counter labelled with event.
func (recorder *PrometheusMetrics) Increment(event string) {
	recorder.events.WithLabelValues(event).Inc()
}
