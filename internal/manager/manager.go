// ============================================================================
// Control Surface
// ============================================================================
//
// Package: internal/manager
// File: manager.go
// Purpose: Manager is the façade spec.md §4.4 calls the "Control Surface":
//          the five public operations (initPools, submitPoolTask,
//          submitOneShotTask, getStats, terminate) plus the periodic
//          stats-sampling loop and process-exit hooks. It is the only
//          type an external HTTP front-end (out of scope here) needs to
//          import.
//
// ============================================================================

package manager

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/chuliyu/poolmanager/internal/dispatcher"
	"github.com/chuliyu/poolmanager/internal/metrics"
	"github.com/chuliyu/poolmanager/pkg/protocol"
)

// Manager is the in-process API consumed by an external HTTP front-end
// (spec.md §1, §6).
type Manager struct {
	d       *dispatcher.Dispatcher
	metrics *metrics.Collector
	logger  *slog.Logger

	statsInterval time.Duration
	statsStop     chan struct{}
	statsWg       sync.WaitGroup
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics overrides the default metrics collector. Pass nil to
// disable metrics recording entirely.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// WithStatsInterval overrides the periodic stats-logging interval.
// Zero disables the loop.
func WithStatsInterval(d time.Duration) Option {
	return func(m *Manager) { m.statsInterval = d }
}

// WithDispatcherOptions passes through options to the underlying
// dispatcher.Dispatcher (e.g. a fake prober or id generator for tests).
func WithDispatcherOptions(opts ...dispatcher.Option) Option {
	return func(m *Manager) {
		m.d = dispatcher.New(opts...)
	}
}

// New constructs a Manager, its Dispatcher, and starts the periodic
// stats-logging loop (spec.md §4.4).
func New(opts ...Option) *Manager {
	m := &Manager{
		logger:        slog.Default(),
		metrics:       metrics.NewCollector(),
		statsInterval: protocol.DefaultStatsInterval,
		statsStop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.d == nil {
		m.d = dispatcher.New(dispatcher.WithLogger(m.logger))
	}
	if m.statsInterval > 0 {
		m.statsWg.Add(1)
		go m.statsLoop()
	}
	return m
}

// InitPools spawns the configured pools.
func (m *Manager) InitPools(configs []dispatcher.PoolConfig) error {
	return m.d.InitPools(configs)
}

// SubmitPoolTask submits a task against a named pool, wrapping the
// caller's callback to record completion/error metrics and latency.
func (m *Manager) SubmitPoolTask(data []byte, poolName string, cb dispatcher.Callback) dispatcher.SubmitResult {
	if m.metrics != nil {
		m.metrics.RecordSubmitted(poolName)
	}
	submittedAt := time.Now()
	wrapped := func(reply protocol.Reply) {
		if m.metrics != nil {
			latency := time.Since(submittedAt).Seconds()
			if reply.Type == protocol.WorkDone && reply.OK {
				m.metrics.RecordCompleted(poolName, latency)
			} else {
				m.metrics.RecordErrored(poolName)
			}
		}
		cb(reply)
	}
	return m.d.SubmitPoolTask(data, poolName, wrapped)
}

// SubmitOneShotTask submits a task to a freshly spawned transient worker.
func (m *Manager) SubmitOneShotTask(script string, data []byte, memoryLimitMB int, cb dispatcher.Callback) error {
	if m.metrics != nil {
		m.metrics.RecordSubmitted(protocol.OneShotPoolName)
	}
	submittedAt := time.Now()
	wrapped := func(reply protocol.Reply) {
		if m.metrics != nil {
			latency := time.Since(submittedAt).Seconds()
			if reply.Type == protocol.WorkDone && reply.OK {
				m.metrics.RecordCompleted(protocol.OneShotPoolName, latency)
			} else {
				m.metrics.RecordErrored(protocol.OneShotPoolName)
			}
		}
		cb(reply)
	}
	return m.d.SubmitOneShotTask(script, data, memoryLimitMB, wrapped)
}

// GetStats returns current per-worker resource usage and load.
func (m *Manager) GetStats(poolName string) dispatcher.StatsResult {
	return m.d.GetStats(poolName)
}

// Terminate sends TERMINATE to every worker in poolName (or all workers).
func (m *Manager) Terminate(poolName string) {
	m.d.Terminate(poolName)
}

// Close stops the stats loop and the underlying dispatcher. The Manager
// is unusable afterward.
func (m *Manager) Close() {
	close(m.statsStop)
	m.statsWg.Wait()
	m.d.Close()
}

// statsLoop is the periodic stats-sampling loop of spec.md §4.4: on a
// configurable interval, sample every worker's resource usage and log
// one structured line per worker, and update the per-worker running-tasks
// gauge. The pending-tasks gauge is not updated here.
func (m *Manager) statsLoop() {
	defer m.statsWg.Done()
	ticker := time.NewTicker(m.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.statsStop:
			return
		case <-ticker.C:
			stats := m.d.GetStats("")
			for _, w := range stats.Workers {
				m.logger.Info("worker stats",
					"pool", w.PoolName,
					"pid", w.PID,
					"runningTasks", w.RunningTasks,
					"cpuPercent", w.Stats.CPUPercent,
					"memoryRSS", w.Stats.MemoryRSS,
				)
				if m.metrics != nil {
					m.metrics.SetRunningTasks(w.PoolName, w.PID, w.RunningTasks)
				}
			}
		}
	}
}

// WaitForShutdownSignal blocks until SIGINT, SIGTERM, or ctx is done,
// then terminates every pool worker (spec.md §4.4 process-exit hooks).
// It does not call Close or exit the process; the caller (typically
// cmd/poolmanagerctl) decides what happens next.
func (m *Manager) WaitForShutdownSignal(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		m.logger.Info("received shutdown signal, terminating all pools")
	case <-ctx.Done():
	}
	m.Terminate("")
}
