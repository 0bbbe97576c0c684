// Command exampleworker is the reference implementation of the
// child-worker protocol (spec.md §4.1). It is the "arbitrary user
// program" collaborator named out of scope for the core manager,
// provided here only so the manager is exercisable end-to-end.
//
// It reads newline-delimited JSON protocol.Task values from stdin and
// writes newline-delimited JSON protocol.Reply values to stdout. stderr
// carries diagnostic logging only.
//
// Two workloads are selected by task.data.mode:
//   - "cpu-burn":  busy-loop for data.duration_ms, then reply with the
//     actual elapsed time.
//   - "mem-alloc": allocate and touch data.size_mb megabytes, then
//     (if launched with --expose-gc) force a GC cycle.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/chuliyu/poolmanager/pkg/protocol"
)

type workPayload struct {
	Mode       string `json:"mode"`
	DurationMs int    `json:"duration_ms"`
	SizeMB     int    `json:"size_mb"`
}

func main() {
	exposeGC := flag.Bool("expose-gc", false, "allow the worker to force a GC cycle after mem-alloc workloads")
	maxOldSpaceMB := flag.Int("max-old-space-size", 0, "memory ceiling in megabytes, applied via runtime/debug.SetMemoryLimit")
	flag.Parse()

	if *maxOldSpaceMB > 0 {
		debug.SetMemoryLimit(int64(*maxOldSpaceMB) * 1024 * 1024)
	}

	w := &worker{
		exposeGC: *exposeGC,
		out:      json.NewEncoder(os.Stdout),
	}
	w.run(os.Stdin)
}

type worker struct {
	exposeGC bool
	out      *json.Encoder
	replied  map[protocol.TaskID]bool
}

func (w *worker) run(stdin io.Reader) {
	w.replied = make(map[protocol.TaskID]bool)
	dec := json.NewDecoder(bufio.NewReader(stdin))

	for {
		var task protocol.Task
		if err := dec.Decode(&task); err != nil {
			if err != io.EOF {
				fmt.Fprintf(os.Stderr, "exampleworker: decode error: %v\n", err)
			}
			return
		}
		w.handle(task)
	}
}

func (w *worker) handle(task protocol.Task) {
	switch task.Type {
	case protocol.Init:
		w.reply(task.ID, protocol.InitDone, true, mustMarshal(protocol.InitDonePayload{PID: os.Getpid()}))

	case protocol.Work:
		w.handleWork(task)

	case protocol.Terminate:
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "exampleworker: unknown message type %q, ignoring\n", task.Type)
	}
}

func (w *worker) handleWork(task protocol.Task) {
	defer func() {
		if r := recover(); r != nil {
			w.reply(task.ID, protocol.ErrorReply, false, mustMarshal(fmt.Sprintf("panic: %v", r)))
		}
	}()

	var payload workPayload
	if len(task.Data) > 0 {
		if err := json.Unmarshal(task.Data, &payload); err != nil {
			w.reply(task.ID, protocol.ErrorReply, false, mustMarshal(err.Error()))
			return
		}
	}

	switch payload.Mode {
	case "cpu-burn":
		w.reply(task.ID, protocol.WorkDone, true, mustMarshal(cpuBurn(payload.DurationMs)))
	case "mem-alloc":
		w.reply(task.ID, protocol.WorkDone, true, mustMarshal(w.memAlloc(payload.SizeMB)))
	case "":
		// echo workload, used by round-trip tests (spec.md §8): reply
		// with exactly the request's data.
		w.reply(task.ID, protocol.WorkDone, true, task.Data)
	default:
		w.reply(task.ID, protocol.ErrorReply, false, mustMarshal(fmt.Sprintf("unknown mode %q", payload.Mode)))
	}
}

func (w *worker) reply(id protocol.TaskID, msgType protocol.MessageType, ok bool, data json.RawMessage) {
	if w.replied[id] {
		return // at most one reply per incoming id (spec.md §4.1)
	}
	w.replied[id] = true
	_ = w.out.Encode(protocol.Reply{ID: id, Type: msgType, OK: ok, Data: data})
}

type cpuBurnResult struct {
	BurnedMs int64 `json:"burned_ms"`
}

func cpuBurn(durationMs int) cpuBurnResult {
	start := time.Now()
	deadline := start.Add(time.Duration(durationMs) * time.Millisecond)
	for time.Now().Before(deadline) {
		// busy-loop: deliberately not sleeping, to exercise a CPU-bound workload
	}
	return cpuBurnResult{BurnedMs: time.Since(start).Milliseconds()}
}

type memAllocResult struct {
	AllocatedMB int  `json:"allocated_mb"`
	ForcedGC    bool `json:"forced_gc"`
}

func (w *worker) memAlloc(sizeMB int) memAllocResult {
	if sizeMB <= 0 {
		sizeMB = 1
	}
	buf := make([]byte, sizeMB*1024*1024)
	const pageSize = 4096
	for i := 0; i < len(buf); i += pageSize {
		buf[i] = 1
	}

	forced := false
	if w.exposeGC {
		runtime.GC()
		forced = true
	}
	runtime.KeepAlive(buf)
	return memAllocResult{AllocatedMB: sizeMB, ForcedGC: forced}
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`"marshal error"`)
	}
	return b
}
