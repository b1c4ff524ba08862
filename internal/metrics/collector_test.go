package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestCollectorRecordsUnexpectedErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RegisterUnexpectedError()
	c.RegisterUnexpectedError()

	assert.Equal(t, 2.0, counterValue(t, c.unexpectedErrors))
}

func TestCollectorRecordsPickedAndDead(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPicked()
	c.RecordDead()

	assert.Equal(t, 1.0, counterValue(t, c.executionsPicked))
	assert.Equal(t, 1.0, counterValue(t, c.executionsDead))
}

func TestCollectorRecordsCompletedByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCompleted(true, 0.5)
	c.RecordCompleted(false, 1.5)

	okCounter, err := c.executionsCompleted.GetMetricWithLabelValues("ok")
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, okCounter))

	failedCounter, err := c.executionsCompleted.GetMetricWithLabelValues("failed")
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, failedCounter))
}
