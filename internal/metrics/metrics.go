// Package metrics exposes Prometheus counters, gauges and a histogram for
// the worker pool manager. Renamed from the original job-queue vocabulary
// (jobs_enqueued, jobs_in_flight, ...) to the pool/worker/task vocabulary
// of this manager; the metric shapes (Counter/Histogram/Gauge, /metrics
// over promhttp) are unchanged.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics for the pool manager.
type Collector struct {
	tasksSubmitted *prometheus.CounterVec
	tasksCompleted *prometheus.CounterVec
	tasksErrored   *prometheus.CounterVec
	workersCrashed *prometheus.CounterVec

	taskLatency prometheus.Histogram

	runningTasks *prometheus.GaugeVec
	pendingTasks prometheus.Gauge
}

// NewCollector creates a new metrics collector and registers it against
// the default Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		tasksSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poolmanager_tasks_submitted_total",
			Help: "Total number of tasks submitted, by pool",
		}, []string{"pool"}),
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poolmanager_tasks_completed_total",
			Help: "Total number of tasks completed successfully, by pool",
		}, []string{"pool"}),
		tasksErrored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poolmanager_tasks_errored_total",
			Help: "Total number of tasks that received an ERROR reply, by pool",
		}, []string{"pool"}),
		workersCrashed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poolmanager_workers_crashed_total",
			Help: "Total number of workers that exited abnormally, by pool",
		}, []string{"pool"}),
		taskLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "poolmanager_task_latency_seconds",
			Help:    "Task latency from submission to reply, in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		runningTasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "poolmanager_worker_running_tasks",
			Help: "Current in-flight task count, by pool and pid",
		}, []string{"pool", "pid"}),
		pendingTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "poolmanager_pending_tasks",
			Help: "Current length of the global pending task queue",
		}),
	}

	prometheus.MustRegister(
		c.tasksSubmitted,
		c.tasksCompleted,
		c.tasksErrored,
		c.workersCrashed,
		c.taskLatency,
		c.runningTasks,
		c.pendingTasks,
	)

	return c
}

// RecordSubmitted records a task submission for pool.
func (c *Collector) RecordSubmitted(pool string) {
	c.tasksSubmitted.WithLabelValues(pool).Inc()
}

// RecordCompleted records a successful WORK_DONE reply and its latency.
func (c *Collector) RecordCompleted(pool string, latencySeconds float64) {
	c.tasksCompleted.WithLabelValues(pool).Inc()
	c.taskLatency.Observe(latencySeconds)
}

// RecordErrored records an ERROR reply for pool.
func (c *Collector) RecordErrored(pool string) {
	c.tasksErrored.WithLabelValues(pool).Inc()
}

// RecordWorkerCrashed records an abnormal worker exit for pool.
func (c *Collector) RecordWorkerCrashed(pool string) {
	c.workersCrashed.WithLabelValues(pool).Inc()
}

// SetRunningTasks updates the running-task gauge for one worker.
func (c *Collector) SetRunningTasks(pool string, pid, count int) {
	c.runningTasks.WithLabelValues(pool, fmt.Sprintf("%d", pid)).Set(float64(count))
}

// SetPendingTasks updates the global pending-queue gauge.
func (c *Collector) SetPendingTasks(count int) {
	c.pendingTasks.Set(float64(count))
}

// StartServer serves /metrics on the given port. It blocks; callers
// typically run it in its own goroutine.
func StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), nil)
}
