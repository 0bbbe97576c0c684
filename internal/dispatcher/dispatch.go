package dispatcher

import (
	"encoding/json"
	"fmt"

	"github.com/chuliyu/poolmanager/internal/workerproc"
	"github.com/chuliyu/poolmanager/pkg/protocol"
)

func errData(msg string) json.RawMessage {
	b, _ := json.Marshal(msg)
	return b
}

// doInitPools spawns each configured pool. Invalid entries are logged and
// skipped (spec.md §4.3 initPools); a later entry with the same poolName
// replaces an earlier one in d.pools, matching the source's
// last-wins-on-map semantics exactly.
func (d *Dispatcher) doInitPools(configs []PoolConfig) error {
	for _, cfg := range configs {
		if cfg.WorkerScript == "" || cfg.PoolName == "" {
			d.logger.Warn("skipping pool config missing poolName or workerScript", "poolName", cfg.PoolName)
			continue
		}
		memLimit := cfg.WorkerMemoryLimit
		if memLimit <= 0 {
			memLimit = protocol.DefaultOneShotMemoryLimitMB
		}

		entry := &poolEntry{config: cfg}
		for i := 0; i < cfg.WorkerCount; i++ {
			h, err := d.spawnWorker(cfg.PoolName, cfg.WorkerScript, memLimit)
			if err != nil {
				d.logger.Error("failed to spawn pool worker", "pool", cfg.PoolName, "error", err)
				continue
			}
			entry.workers = append(entry.workers, h)
		}
		d.pools[cfg.PoolName] = entry
	}
	return nil
}

// doSubmitPoolTask implements spec.md §4.3 submitPoolTask.
func (d *Dispatcher) doSubmitPoolTask(data []byte, poolName string, cb Callback) SubmitResult {
	entry, ok := d.pools[poolName]
	if !ok {
		return SubmitResult{OK: false, Message: fmt.Sprintf("Worker pool %s does not exist", poolName)}
	}
	if len(entry.workers) == 0 {
		return SubmitResult{OK: false, Message: ErrEmptyPool.Error()}
	}

	id := d.idGen.NewTaskID()
	task := protocol.Task{ID: id, Type: protocol.Work, Data: data, PoolName: poolName}
	d.pending = append(d.pending, pendingTask{task: task, cb: cb})
	d.processNextTask()
	return SubmitResult{OK: true, TaskID: id}
}

// doSubmitOneShotTask implements spec.md §4.3 submitOneShotTask: a fresh
// handle tagged with the one-shot sentinel pool, no INIT handshake, a
// single WORK dispatch, and a TERMINATE once the reply arrives.
func (d *Dispatcher) doSubmitOneShotTask(script string, data []byte, memoryLimitMB int, cb Callback) error {
	h, err := workerproc.Spawn(d.ctx, script, protocol.OneShotPoolName, memoryLimitMB, d.limitStrategy, d.logger, d.eventsCh)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	d.allWorkers[h.PID] = h

	id := d.idGen.NewTaskID()
	task := protocol.Task{ID: id, Type: protocol.Work, Data: data}
	d.callbacks[id] = cb
	d.ownership[h.PID] = map[protocol.TaskID]struct{}{id: {}}

	h.Send(task)
	h.RunningTasks++
	return nil
}

// doGetStats implements spec.md §4.3 getStats: concurrently probe each
// target worker's pid, silently excluding probe failures.
func (d *Dispatcher) doGetStats(poolName string) StatsResult {
	targets := d.resolveWorkers(poolName)

	type sample struct {
		idx   int
		stats WorkerStats
	}
	results := make(chan sample, len(targets))
	for i, h := range targets {
		go func(i int, h *workerproc.WorkerHandle) {
			st, err := d.prober.Sample(d.ctx, h.PID)
			results <- sample{idx: i, stats: WorkerStats{
				PoolName:     h.PoolName,
				PID:          h.PID,
				RunningTasks: h.RunningTasks,
				Stats:        st,
				ProbeOK:      err == nil,
			}}
		}(i, h)
	}

	ordered := make([]WorkerStats, len(targets))
	for range targets {
		s := <-results
		ordered[s.idx] = s.stats
	}

	out := StatsResult{}
	for _, ws := range ordered {
		if ws.ProbeOK {
			out.Workers = append(out.Workers, ws)
		}
	}
	return out
}

// doTerminate sends TERMINATE to every target worker without waiting for
// exit (spec.md §4.3 terminate).
func (d *Dispatcher) doTerminate(poolName string) {
	for _, h := range d.resolveWorkers(poolName) {
		h.Send(protocol.Task{ID: d.idGen.NewTaskID(), Type: protocol.Terminate})
	}
}

// resolveWorkers returns the candidate set for poolName, or every known
// worker when poolName is empty.
func (d *Dispatcher) resolveWorkers(poolName string) []*workerproc.WorkerHandle {
	if poolName == "" {
		out := make([]*workerproc.WorkerHandle, 0, len(d.allWorkers))
		for _, h := range d.allWorkers {
			out = append(out, h)
		}
		return out
	}
	entry, ok := d.pools[poolName]
	if !ok {
		return nil
	}
	return entry.workers
}

// processNextTask is the dispatch policy of spec.md §4.3: pop the head of
// pending, resolve its pool's worker set, select the least-loaded member
// (ties broken by insertion order), record the callback, and send WORK.
//
// Unknown-pool-at-dispatch-time (reachable only after a late config edit)
// synthesizes an ERROR reply and drops the task, per the Recommended
// policy in spec.md §9 — no fallback to allWorkers.
func (d *Dispatcher) processNextTask() {
	if len(d.pending) == 0 {
		return
	}
	pt := d.pending[0]
	d.pending = d.pending[1:]

	entry, ok := d.pools[pt.task.PoolName]
	if !ok || len(entry.workers) == 0 {
		pt.cb(protocol.Reply{ID: pt.task.ID, Type: protocol.ErrorReply, OK: false, Data: errData(protocol.UnknownPoolErrorData)})
		return
	}

	chosen := leastLoaded(entry.workers)
	d.callbacks[pt.task.ID] = pt.cb
	if d.ownership[chosen.PID] == nil {
		d.ownership[chosen.PID] = make(map[protocol.TaskID]struct{})
	}
	d.ownership[chosen.PID][pt.task.ID] = struct{}{}

	chosen.Send(pt.task)
	chosen.RunningTasks++
}

// leastLoaded returns the worker with the smallest RunningTasks, ties
// broken by encounter order (first-seen wins): spec.md's glossary entry
// for "Least-loaded".
func leastLoaded(workers []*workerproc.WorkerHandle) *workerproc.WorkerHandle {
	best := workers[0]
	for _, h := range workers[1:] {
		if h.RunningTasks < best.RunningTasks {
			best = h
		}
	}
	return best
}
