package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Enqueued("ACTIVITY_LOGGED", "enqueued")
		m.EventFinished("done")
		m.Decision("r", "feed", "emitted")
		m.ObserveBatch(time.Second)
		m.Unavailable()
		m.Recovered(3)
	})
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Enqueued("ACTIVITY_LOGGED", "enqueued")
	m.Enqueued("ACTIVITY_LOGGED", "duplicate")
	m.Enqueued("ACTIVITY_LOGGED", "duplicate")
	m.EventFinished("dead")
	m.Decision("workout_highlight", "feed", "emitted")
	m.Unavailable()
	m.Recovered(2)
	m.Recovered(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.enqueued.WithLabelValues("ACTIVITY_LOGGED", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("dead")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("workout_highlight", "feed", "emitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unavailable))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recoveredClaims))

	expected := `
# HELP narrator_queue_unavailable_total Operations that found the queue store unavailable.
# TYPE narrator_queue_unavailable_total counter
narrator_queue_unavailable_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "narrator_queue_unavailable_total"))
}

func TestObserveBatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveBatch(200 * time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(m.batchDuration))
}
