package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordContext("root")
	m.RecordContext("nested")
	m.RecordEvaluation("root", OutcomeOK, 2*time.Millisecond)
	m.RecordEvaluation("root", OutcomeError, time.Millisecond)
	m.RecordRejection("import-expression")
	m.RecordViolation()
	m.SetPoolAvailable(3)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[mf.GetName()] += metric.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["jsrealm_contexts_created_total"])
	assert.Equal(t, 2.0, values["jsrealm_evaluations_total"])
	assert.Equal(t, 1.0, values["jsrealm_rejected_sources_total"])
	assert.Equal(t, 1.0, values["jsrealm_invariant_violations_total"])
	assert.Equal(t, 3.0, values["jsrealm_intrinsics_pool_available"])

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Contexts)
	assert.Equal(t, int64(2), snap.Evaluations)
	assert.Equal(t, int64(1), snap.Errors)
	assert.Equal(t, int64(1), snap.Rejected)
	assert.Equal(t, int64(1), snap.Violations)
	assert.InDelta(t, 0.003, snap.TotalDuration, 1e-9)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordContext("root")
		m.RecordEvaluation("root", OutcomeOK, time.Millisecond)
		m.RecordRejection("html-comment")
		m.RecordViolation()
		m.SetPoolAvailable(1)
		m.RecordPoolAcquire("ok")
		NewTimer(m, "root").Stop(OutcomeOK)
	})
	assert.Equal(t, Snapshot{}, m.Snapshot())
}
