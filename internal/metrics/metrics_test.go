package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector() *Collector {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	return NewCollector()
}

func TestNewCollector(t *testing.T) {
	c := newTestCollector()

	assert.NotNil(t, c.tasksSubmitted)
	assert.NotNil(t, c.tasksCompleted)
	assert.NotNil(t, c.tasksErrored)
	assert.NotNil(t, c.workersCrashed)
	assert.NotNil(t, c.taskLatency)
	assert.NotNil(t, c.runningTasks)
	assert.NotNil(t, c.pendingTasks)
}

func TestRecordSubmitted(t *testing.T) {
	c := newTestCollector()
	assert.NotPanics(t, func() {
		c.RecordSubmitted("pool-a")
		c.RecordSubmitted("pool-a")
		c.RecordSubmitted("one-shot")
	})
}

func TestRecordCompleted(t *testing.T) {
	c := newTestCollector()
	for _, latency := range []float64{0.001, 0.01, 0.1, 1.0, 5.0} {
		assert.NotPanics(t, func() {
			c.RecordCompleted("pool-a", latency)
		})
	}
}

func TestRecordErrored(t *testing.T) {
	c := newTestCollector()
	assert.NotPanics(t, func() {
		c.RecordErrored("pool-a")
	})
}

func TestRecordWorkerCrashed(t *testing.T) {
	c := newTestCollector()
	assert.NotPanics(t, func() {
		c.RecordWorkerCrashed("pool-a")
	})
}

func TestSetRunningTasksAndPendingTasks(t *testing.T) {
	c := newTestCollector()
	assert.NotPanics(t, func() {
		c.SetRunningTasks("pool-a", 1234, 3)
		c.SetRunningTasks("pool-a", 1234, 0)
		c.SetPendingTasks(7)
		c.SetPendingTasks(0)
	})
}

func TestConcurrentMetricUpdates(t *testing.T) {
	c := newTestCollector()
	done := make(chan struct{}, 100)
	for i := 0; i < 100; i++ {
		go func(i int) {
			c.RecordSubmitted("pool-a")
			c.RecordCompleted("pool-a", 0.05)
			c.SetRunningTasks("pool-a", i, i%4)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 100; i++ {
		<-done
	}
}

func TestCollectorIsolation(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	c1 := NewCollector()
	require.NotNil(t, c1)

	// a second collector against the same registry panics on duplicate
	// registration; a process should construct exactly one Collector.
	assert.Panics(t, func() {
		NewCollector()
	})
}

func TestMetricOperationSequence(t *testing.T) {
	c := newTestCollector()
	assert.NotPanics(t, func() {
		c.RecordSubmitted("pool-a")
		c.SetPendingTasks(1)

		c.SetRunningTasks("pool-a", 42, 1)
		c.RecordCompleted("pool-a", 0.5)
		c.SetRunningTasks("pool-a", 42, 0)
		c.SetPendingTasks(0)
	})
}

func TestMetricOperationWithFailure(t *testing.T) {
	c := newTestCollector()
	assert.NotPanics(t, func() {
		c.RecordSubmitted("pool-a")
		c.SetRunningTasks("pool-a", 7, 1)
		c.RecordErrored("pool-a")
		c.RecordWorkerCrashed("pool-a")
	})
}

func TestZeroAndNegativeValues(t *testing.T) {
	c := newTestCollector()
	assert.NotPanics(t, func() {
		c.RecordCompleted("pool-a", 0.0)
		c.SetPendingTasks(0)
		c.SetRunningTasks("pool-a", 1, 0)
		c.SetRunningTasks("pool-a", 1, -1) // shouldn't happen, but must not panic
	})
}
