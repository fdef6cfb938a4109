package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for confined evaluation.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Context metrics
	ContextsCreated *prometheus.CounterVec

	// Evaluation metrics
	Evaluations        *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec
	RejectedSources    *prometheus.CounterVec
	Violations         prometheus.Counter

	// Intrinsics pool metrics
	PoolAvailable prometheus.Gauge
	PoolAcquires  *prometheus.CounterVec

	// Snapshot for CLI output - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the command-line report.
type Snapshot struct {
	Contexts      int64   `json:"contexts"`
	Evaluations   int64   `json:"evaluations"`
	Errors        int64   `json:"errors"`
	Rejected      int64   `json:"rejected"`
	Violations    int64   `json:"violations"`
	TotalDuration float64 `json:"total_duration_seconds"`
}

// NewMetrics creates a metrics collector registered on reg. A nil reg
// falls back to the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ContextsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsrealm_contexts_created_total",
				Help: "Total number of sandbox contexts created",
			},
			[]string{"kind"},
		),
		Evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsrealm_evaluations_total",
				Help: "Total number of confined evaluations",
			},
			[]string{"kind", "outcome"},
		),
		EvaluationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jsrealm_evaluation_duration_seconds",
				Help:    "Confined evaluation duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"kind"},
		),
		RejectedSources: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsrealm_rejected_sources_total",
				Help: "Sources rejected by the mandatory transforms",
			},
			[]string{"reason"},
		),
		Violations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "jsrealm_invariant_violations_total",
				Help: "Fatal scope invariant violations",
			},
		),
		PoolAvailable: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "jsrealm_intrinsics_pool_available",
				Help: "Repaired intrinsics sets ready for acquisition",
			},
		),
		PoolAcquires: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsrealm_intrinsics_pool_acquires_total",
				Help: "Intrinsics pool acquisitions by result",
			},
			[]string{"result"},
		),
	}
}

// RecordContext records a created context of the given kind.
func (m *Metrics) RecordContext(kind string) {
	if m == nil {
		return
	}
	m.ContextsCreated.WithLabelValues(kind).Inc()

	m.mu.Lock()
	m.snapshot.Contexts++
	m.mu.Unlock()
}

// RecordEvaluation records one evaluation and its outcome.
func (m *Metrics) RecordEvaluation(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(kind, outcome).Inc()
	m.EvaluationDuration.WithLabelValues(kind).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Evaluations++
	if outcome != OutcomeOK {
		m.snapshot.Errors++
	}
	m.snapshot.TotalDuration += duration.Seconds()
	m.mu.Unlock()
}

// RecordRejection records a source rejected before evaluation.
func (m *Metrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.RejectedSources.WithLabelValues(reason).Inc()

	m.mu.Lock()
	m.snapshot.Rejected++
	m.mu.Unlock()
}

// RecordViolation records a fatal invariant violation.
func (m *Metrics) RecordViolation() {
	if m == nil {
		return
	}
	m.Violations.Inc()

	m.mu.Lock()
	m.snapshot.Violations++
	m.mu.Unlock()
}

// SetPoolAvailable sets the number of ready intrinsics sets.
func (m *Metrics) SetPoolAvailable(count int) {
	if m == nil {
		return
	}
	m.PoolAvailable.Set(float64(count))
}

// RecordPoolAcquire records a pool acquisition result ("ok", "timeout",
// "closed", "canceled").
func (m *Metrics) RecordPoolAcquire(result string) {
	if m == nil {
		return
	}
	m.PoolAcquires.WithLabelValues(result).Inc()
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
