// Package dispatcher implements the Pool Registry & Dispatcher: per-pool
// sets of worker handles, the global pending-task queue, the task-id to
// callback map, and the least-loaded dispatch policy. It is the heart of
// the worker pool manager.
package dispatcher

import (
	"github.com/chuliyu/poolmanager/internal/probe"
	"github.com/chuliyu/poolmanager/internal/workerproc"
	"github.com/chuliyu/poolmanager/pkg/protocol"
)

// Callback receives the eventual reply for a submitted task, exactly once.
type Callback func(protocol.Reply)

// PoolConfig describes one pool to initialize, mirroring spec.md §6's pool
// configuration schema.
type PoolConfig struct {
	PoolName          string `yaml:"poolName"`
	WorkerScript      string `yaml:"workerScript"`
	WorkerCount       int    `yaml:"workerCount"`
	WorkerMemoryLimit int    `yaml:"workerMemoryLimit"`
}

// SubmitResult is the synchronous acknowledgement returned by
// SubmitPoolTask, before the callback is invoked asynchronously.
type SubmitResult struct {
	OK      bool
	Message string
	TaskID  protocol.TaskID
}

// WorkerStats is one worker's entry in a GetStats result.
type WorkerStats struct {
	PoolName     string
	PID          int
	RunningTasks int
	Stats        probe.Stats
	ProbeOK      bool
}

// StatsResult is the aggregate response of GetStats.
type StatsResult struct {
	Workers []WorkerStats
}

// pendingTask is one entry of the FIFO pending queue.
type pendingTask struct {
	task protocol.Task
	cb   Callback
}

// poolEntry tracks a named pool's live workers in insertion order (for
// stable least-loaded tie-breaking) plus the config used to restart
// crashed members.
type poolEntry struct {
	config  PoolConfig
	workers []*workerproc.WorkerHandle
}
