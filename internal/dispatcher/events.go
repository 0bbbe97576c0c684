package dispatcher

import (
	"github.com/chuliyu/poolmanager/internal/workerproc"
	"github.com/chuliyu/poolmanager/pkg/protocol"
)

// handleEvent dispatches one inbound workerproc.Event to either the child
// message handler or the child exit handler (spec.md §4.3).
func (d *Dispatcher) handleEvent(ev workerproc.Event) {
	if ev.Reply != nil {
		d.onChildMessage(ev.PID, *ev.Reply)
		return
	}
	if ev.Exit != nil {
		d.onChildExit(ev.PID, *ev.Exit)
	}
}

// onChildMessage implements spec.md §4.3 "on child message".
func (d *Dispatcher) onChildMessage(pid int, reply protocol.Reply) {
	h, ok := d.allWorkers[pid]
	if !ok {
		return
	}

	switch reply.Type {
	case protocol.InitDone:
		if h.State == workerproc.StateStarting {
			h.State = workerproc.StateReady
		}
		d.logger.Info("worker ready", "pid", pid, "pool", h.PoolName)

	case protocol.WorkDone, protocol.ErrorReply:
		if h.RunningTasks > 0 {
			h.RunningTasks--
		}
		d.forgetOwnership(pid, reply.ID)

		cb, ok := d.callbacks[reply.ID]
		if ok {
			delete(d.callbacks, reply.ID)
			cb(reply)
		}

		if h.PoolName == protocol.OneShotPoolName {
			h.Send(protocol.Task{ID: d.idGen.NewTaskID(), Type: protocol.Terminate})
		}

		d.processNextTask()

	default:
		// unrecognized reply type: ignore, matching the child protocol's
		// own "unknown: ignore" rule mirrored on the parent side.
	}
}

// onChildExit implements spec.md §4.3 "on child exit(code, signal)",
// including the required abnormal-exit fix (spec.md §7/§9): every
// task-id owned by the dead worker receives a synthetic ERROR reply
// before the entry is dropped.
func (d *Dispatcher) onChildExit(pid int, info workerproc.ExitInfo) {
	h, ok := d.allWorkers[pid]
	if !ok {
		return
	}
	delete(d.allWorkers, pid)
	if entry, ok := d.pools[h.PoolName]; ok {
		entry.workers = removeHandle(entry.workers, pid)
	}
	h.State = workerproc.StateExited

	d.logger.Warn("worker exited", "pid", pid, "code", info.Code, "signal", info.Signal)

	if owned, ok := d.ownership[pid]; ok {
		for taskID := range owned {
			if cb, ok := d.callbacks[taskID]; ok {
				delete(d.callbacks, taskID)
				cb(protocol.Reply{ID: taskID, Type: protocol.ErrorReply, OK: false, Data: errData(protocol.CrashErrorData)})
			}
		}
		delete(d.ownership, pid)
	}

	if info.Code != 0 && h.PoolName != protocol.OneShotPoolName {
		if entry, ok := d.pools[h.PoolName]; ok {
			replacement, err := d.spawnWorker(h.PoolName, entry.config.WorkerScript, poolMemoryLimit(entry.config))
			if err != nil {
				d.logger.Error("failed to respawn crashed worker", "pool", h.PoolName, "error", err)
			} else {
				entry.workers = append(entry.workers, replacement)
			}
		}
	}

	d.processNextTask()
}

func (d *Dispatcher) forgetOwnership(pid int, taskID protocol.TaskID) {
	if owned, ok := d.ownership[pid]; ok {
		delete(owned, taskID)
		if len(owned) == 0 {
			delete(d.ownership, pid)
		}
	}
}

func removeHandle(workers []*workerproc.WorkerHandle, pid int) []*workerproc.WorkerHandle {
	out := workers[:0]
	for _, h := range workers {
		if h.PID != pid {
			out = append(out, h)
		}
	}
	return out
}

func poolMemoryLimit(cfg PoolConfig) int {
	if cfg.WorkerMemoryLimit <= 0 {
		return protocol.DefaultOneShotMemoryLimitMB
	}
	return cfg.WorkerMemoryLimit
}
