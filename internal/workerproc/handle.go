// ============================================================================
// Worker Handle - Child Process Bookkeeping
// ============================================================================
//
// Package: internal/workerproc
// File: handle.go
// Function: Spawns a worker script as an isolated OS process and tracks the
//           bookkeeping for a single live child: identity, script path,
//           assigned pool, in-flight task counter, memory limit, and the
//           outbound channel to it.
//
// Replaces the source's pattern of attaching poolName/runningTasks/
// memoryLimit/workerScript post-hoc onto the spawned child object: every
// field here is declared up front on WorkerHandle.
//
// Transport:
//   Parent and child exchange newline-delimited JSON Envelopes over the
//   child's stdin/stdout pipes. stderr is forwarded line-by-line to the
//   handle's logger at debug level (the "unknown type: log to stderr and
//   ignore" rule is a child-side concern; the parent only observes it).
//
// Concurrency:
//   Four goroutines per handle: a stdin writer draining sendCh, a stdout
//   reader decoding replies, a stderr forwarder, and a Wait() goroutine
//   reporting process exit. The reader and the Wait() goroutine report on
//   the shared eventsCh owned by the dispatcher; none of the four mutate
//   WorkerHandle fields, whose state transitions are made by the
//   dispatcher's single actor goroutine.
//
// ============================================================================

package workerproc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/chuliyu/poolmanager/pkg/protocol"
)

// State is the lifecycle state of a WorkerHandle.
type State int

const (
	StateStarting State = iota
	StateReady
	StateExited
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateReady:
		return "READY"
	case StateExited:
		return "EXITED"
	default:
		return "UNKNOWN"
	}
}

// Event is the tagged union of things a WorkerHandle reports back to its
// owner (the dispatcher) on the shared inbound channel.
type Event struct {
	PID   int
	Reply *protocol.Reply // set for a decoded child reply
	Exit  *ExitInfo        // set when the child process has terminated
}

// ExitInfo carries the process exit status, spec.md's "exit(code, signal)".
type ExitInfo struct {
	Code   int
	Signal string
	Err    error
}

// WorkerHandle is the bookkeeping record for one live child process.
//
// Invariant: RunningTasks is mutated only by the dispatcher's actor
// goroutine (dispatch increments it, completion decrements it); it is
// never touched from the reader/writer/wait goroutines below.
type WorkerHandle struct {
	PID           int
	PoolName      string
	Script        string
	MemoryLimitMB int
	RunningTasks  int
	State         State

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	sendCh  chan protocol.Task
	logger  *slog.Logger
	closeWg sync.WaitGroup
}

// Spawn launches script as a child process with the mandatory runtime
// flags (spec.md §4.2 / §9): an equivalent of --expose-gc and a memory
// ceiling expressed as --max-old-space-size=<memoryLimitMB>. A bidirectional
// newline-JSON channel is established over stdin/stdout and four
// goroutines (stdin writer, stdout reader, stderr forwarder, exit waiter)
// are started to service it; events (decoded replies and the
// eventual exit) are delivered on eventsCh, tagged by PID.
func Spawn(ctx context.Context, script, poolName string, memoryLimitMB int, limitStrategy MemoryLimitStrategy, logger *slog.Logger, eventsCh chan<- Event) (*WorkerHandle, error) {
	if logger == nil {
		logger = slog.Default()
	}

	args := []string{"--expose-gc", fmt.Sprintf("--max-old-space-size=%d", memoryLimitMB)}
	cmd := exec.CommandContext(ctx, script, args...)
	if limitStrategy != nil {
		if err := limitStrategy.Apply(cmd, memoryLimitMB); err != nil {
			return nil, fmt.Errorf("apply memory limit strategy: %w", err)
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %q: %w", script, err)
	}

	h := &WorkerHandle{
		PID:           cmd.Process.Pid,
		PoolName:      poolName,
		Script:        script,
		MemoryLimitMB: memoryLimitMB,
		State:         StateStarting,
		cmd:           cmd,
		stdin:         stdin,
		sendCh:        make(chan protocol.Task, 16),
		logger:        logger.With("pid", cmd.Process.Pid, "pool", poolName),
	}

	h.closeWg.Add(3)
	go h.writeLoop()
	go h.readLoop(stdout, eventsCh)
	go h.stderrLoop(stderr)
	go h.waitLoop(eventsCh)

	return h, nil
}

// Send enqueues a task for delivery to the child. It returns at once while
// the 16-task send buffer has room; once the buffer is full it blocks the
// caller (the dispatcher's actor loop) until the writer goroutine drains a
// slot. A full buffer indicates a stuck child and is a caller bug, not a
// state this method tries to paper over.
func (h *WorkerHandle) Send(task protocol.Task) {
	h.sendCh <- task
}

// writeLoop drains sendCh and writes one JSON line per task to the child's
// stdin. It exits (and closes stdin) when sendCh is closed by Close.
func (h *WorkerHandle) writeLoop() {
	defer h.closeWg.Done()
	defer h.stdin.Close()

	enc := json.NewEncoder(h.stdin)
	for task := range h.sendCh {
		if err := enc.Encode(task); err != nil {
			h.logger.Debug("failed to write task to worker", "error", err, "taskID", task.ID)
			return
		}
	}
}

// readLoop decodes newline-JSON Reply records from the child's stdout and
// forwards each as an Event. It returns (and the Wait() goroutine reports
// the exit separately) when the child closes stdout.
func (h *WorkerHandle) readLoop(stdout io.Reader, eventsCh chan<- Event) {
	defer h.closeWg.Done()

	dec := json.NewDecoder(bufio.NewReader(stdout))
	for {
		var reply protocol.Reply
		if err := dec.Decode(&reply); err != nil {
			if err != io.EOF {
				h.logger.Debug("worker reply decode error", "error", err)
			}
			return
		}
		eventsCh <- Event{PID: h.PID, Reply: &reply}
	}
}

// stderrLoop forwards the child's stderr line-by-line to the structured
// logger, matching the child protocol's "unknown type: log to stderr"
// rule from the parent's point of view.
func (h *WorkerHandle) stderrLoop(stderr io.Reader) {
	defer h.closeWg.Done()
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		h.logger.Debug("worker stderr", "line", scanner.Text())
	}
}

// waitLoop blocks on cmd.Wait() and reports the process exit as an Event.
// This is the parent's "on child exit(code, signal)" observation point.
func (h *WorkerHandle) waitLoop(eventsCh chan<- Event) {
	err := h.cmd.Wait()
	info := &ExitInfo{Err: err}
	if h.cmd.ProcessState != nil {
		info.Code = h.cmd.ProcessState.ExitCode()
	}
	info.Signal = exitSignal(h.cmd)
	eventsCh <- Event{PID: h.PID, Exit: info}
}

// Close stops accepting new tasks and releases the writer goroutine. It
// does not itself send TERMINATE nor wait for the process to exit; the
// dispatcher owns that sequencing.
func (h *WorkerHandle) Close() {
	close(h.sendCh)
}

// Wait blocks until all three of the handle's goroutines (writer, reader,
// stderr forwarder) have returned. It does not wait on the process itself
// beyond what readLoop/waitLoop already observe via stdout EOF and
// cmd.Wait(); callers that need the exit event should watch for it on the
// shared events channel instead of calling Wait.
func (h *WorkerHandle) Wait() {
	h.closeWg.Wait()
}
