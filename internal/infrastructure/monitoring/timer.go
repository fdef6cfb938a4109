package monitoring

import "time"

// Evaluation outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeRejected  = "rejected"
	OutcomeViolation = "violation"
)

// Timer measures evaluation duration
type Timer struct {
	start   time.Time
	metrics *Metrics
	kind    string
}

// NewTimer creates a new timer for an evaluation in a context of kind.
func NewTimer(metrics *Metrics, kind string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		kind:    kind,
	}
}

// Stop stops the timer and records the duration with outcome.
func (t *Timer) Stop(outcome string) time.Duration {
	duration := time.Since(t.start)
	t.metrics.RecordEvaluation(t.kind, outcome, duration)
	return duration
}
