// Package metrics exposes dotphrase counters to Prometheus.
//
// Every Recorder method is safe on a nil *Metrics, so components can take
// an optional recorder without guarding each call.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "dotphrase"

// Expansion results.
const (
	ResultExpanded    = "expanded"
	ResultUnknown     = "unknown"
	ResultLookupError = "lookup_error"
	ResultInjectError = "inject_error"
)

// Metrics holds all dotphrase collectors.
type Metrics struct {
	registry *prometheus.Registry

	keystrokes *prometheus.CounterVec
	triggers   prometheus.Counter
	expansions *prometheus.CounterVec
	suppressed prometheus.Counter
	injection  prometheus.Histogram
	listening  prometheus.Gauge
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		keystrokes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keystrokes_total",
			Help:      "Key events observed, by source.",
		}, []string{"source"}),
		triggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_total",
			Help:      "Completed triggers.",
		}),
		expansions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expansions_total",
			Help:      "Expansion attempts, by result.",
		}, []string{"result"}),
		suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suppressed_events_total",
			Help:      "Self-generated key events dropped before the accumulator.",
		}),
		injection: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "injection_duration_seconds",
			Help:      "Time spent erasing a trigger and typing its expansion.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		listening: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_listening",
			Help:      "1 while a session is listening for keystrokes.",
		}),
	}

	m.registry.MustRegister(
		m.keystrokes, m.triggers, m.expansions,
		m.suppressed, m.injection, m.listening,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Pre-create label values so they export as zero
	for _, r := range []string{ResultExpanded, ResultUnknown, ResultLookupError, ResultInjectError} {
		m.expansions.WithLabelValues(r)
	}
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Keystroke counts one observed key event.
func (m *Metrics) Keystroke(source string) {
	if m == nil {
		return
	}
	m.keystrokes.WithLabelValues(source).Inc()
}

// Trigger counts one completed trigger.
func (m *Metrics) Trigger() {
	if m == nil {
		return
	}
	m.triggers.Inc()
}

// Expansion counts one expansion attempt with the given result.
func (m *Metrics) Expansion(result string) {
	if m == nil {
		return
	}
	m.expansions.WithLabelValues(result).Inc()
}

// Suppressed counts one dropped self-generated event.
func (m *Metrics) Suppressed() {
	if m == nil {
		return
	}
	m.suppressed.Inc()
}

// ObserveInjection records how long an injection took.
func (m *Metrics) ObserveInjection(d time.Duration) {
	if m == nil {
		return
	}
	m.injection.Observe(d.Seconds())
}

// SetListening sets the session gauge.
func (m *Metrics) SetListening(listening bool) {
	if m == nil {
		return
	}
	if listening {
		m.listening.Set(1)
	} else {
		m.listening.Set(0)
	}
}
