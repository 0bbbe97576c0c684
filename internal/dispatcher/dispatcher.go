// ============================================================================
// Pool Registry & Dispatcher — the single-owner actor
// ============================================================================
//
// Resolves spec.md §5's requirement ("a single mutex or, preferably, a
// single actor goroutine/task that owns the state") by running exactly one
// goroutine (run) that owns pools, allWorkers, pending, callbacks and the
// ownership index. Every public method is a thin client: build a command
// value, send it on cmdCh, block on a per-call reply channel. No mutex
// guards any of this dispatcher's fields; serialization is free because
// only run ever reads or writes them.
//
// ============================================================================

package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chuliyu/poolmanager/internal/probe"
	"github.com/chuliyu/poolmanager/internal/workerproc"
	"github.com/chuliyu/poolmanager/pkg/protocol"
)

type command interface {
	// marker method, purely nominal
	isDispatcherCommand()
}

type initPoolsCmd struct {
	configs []PoolConfig
	reply   chan error
}

func (initPoolsCmd) isDispatcherCommand() {}

type submitPoolTaskCmd struct {
	data     []byte
	poolName string
	cb       Callback
	reply    chan SubmitResult
}

func (submitPoolTaskCmd) isDispatcherCommand() {}

type submitOneShotTaskCmd struct {
	script        string
	data          []byte
	memoryLimitMB int
	cb            Callback
	reply         chan error
}

func (submitOneShotTaskCmd) isDispatcherCommand() {}

type getStatsCmd struct {
	poolName string
	reply    chan StatsResult
}

func (getStatsCmd) isDispatcherCommand() {}

type terminateCmd struct {
	poolName string
	reply    chan struct{}
}

func (terminateCmd) isDispatcherCommand() {}

type closeCmd struct {
	reply chan struct{}
}

func (closeCmd) isDispatcherCommand() {}

// Dispatcher is the Pool Registry & Dispatcher. Construct with New and
// always call Close when done.
type Dispatcher struct {
	cmdCh    chan command
	eventsCh chan workerproc.Event
	doneCh   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	logger        *slog.Logger
	idGen         protocol.TaskIDGenerator
	prober        probe.Prober
	limitStrategy workerproc.MemoryLimitStrategy

	// actor-owned state; touched only inside run()
	pools      map[string]*poolEntry
	allWorkers map[int]*workerproc.WorkerHandle
	pending    []pendingTask
	callbacks  map[protocol.TaskID]Callback
	ownership  map[int]map[protocol.TaskID]struct{}
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithIDGenerator overrides the default UUID-backed task id generator.
func WithIDGenerator(gen protocol.TaskIDGenerator) Option {
	return func(d *Dispatcher) { d.idGen = gen }
}

// WithProber overrides the default gopsutil-backed resource-usage probe.
func WithProber(p probe.Prober) Option {
	return func(d *Dispatcher) { d.prober = p }
}

// WithMemoryLimitStrategy overrides the default (runtime-flags-only)
// memory limit enforcement strategy (spec.md §9).
func WithMemoryLimitStrategy(s workerproc.MemoryLimitStrategy) Option {
	return func(d *Dispatcher) { d.limitStrategy = s }
}

// New constructs a Dispatcher and starts its actor goroutine.
func New(opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cmdCh:         make(chan command),
		eventsCh:      make(chan workerproc.Event, 64),
		doneCh:        make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
		logger:        slog.Default(),
		idGen:         protocol.UUIDGenerator{},
		prober:        probe.NewGopsutilProber(),
		limitStrategy: workerproc.RuntimeFlagStrategy{},
		pools:         make(map[string]*poolEntry),
		allWorkers:    make(map[int]*workerproc.WorkerHandle),
		callbacks:     make(map[protocol.TaskID]Callback),
		ownership:     make(map[int]map[protocol.TaskID]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.run()
	return d
}

// run is the single actor loop: the only goroutine that ever reads or
// writes pools/allWorkers/pending/callbacks/ownership.
func (d *Dispatcher) run() {
	defer close(d.doneCh)
	for {
		select {
		case ev := <-d.eventsCh:
			d.handleEvent(ev)
		case cmd := <-d.cmdCh:
			if d.handleCommand(cmd) {
				return
			}
		}
	}
}

func (d *Dispatcher) handleCommand(c command) (stop bool) {
	switch cmd := c.(type) {
	case initPoolsCmd:
		cmd.reply <- d.doInitPools(cmd.configs)
	case submitPoolTaskCmd:
		cmd.reply <- d.doSubmitPoolTask(cmd.data, cmd.poolName, cmd.cb)
	case submitOneShotTaskCmd:
		cmd.reply <- d.doSubmitOneShotTask(cmd.script, cmd.data, cmd.memoryLimitMB, cmd.cb)
	case getStatsCmd:
		cmd.reply <- d.doGetStats(cmd.poolName)
	case terminateCmd:
		d.doTerminate(cmd.poolName)
		close(cmd.reply)
	case closeCmd:
		d.doTerminate("")
		d.cancel()
		close(cmd.reply)
		return true
	default:
		d.logger.Warn("dispatcher: unknown command type")
	}
	return false
}

// InitPools spawns the configured pools. See spec.md §4.3 initPools.
func (d *Dispatcher) InitPools(configs []PoolConfig) error {
	reply := make(chan error, 1)
	select {
	case d.cmdCh <- initPoolsCmd{configs: configs, reply: reply}:
	case <-d.doneCh:
		return ErrClosed
	}
	return <-reply
}

// SubmitPoolTask submits a task against a named pool. See spec.md §4.3
// submitPoolTask.
func (d *Dispatcher) SubmitPoolTask(data []byte, poolName string, cb Callback) SubmitResult {
	reply := make(chan SubmitResult, 1)
	select {
	case d.cmdCh <- submitPoolTaskCmd{data: data, poolName: poolName, cb: cb, reply: reply}:
	case <-d.doneCh:
		return SubmitResult{OK: false, Message: ErrClosed.Error()}
	}
	return <-reply
}

// SubmitOneShotTask submits a task to a freshly spawned transient worker.
// See spec.md §4.3 submitOneShotTask.
func (d *Dispatcher) SubmitOneShotTask(script string, data []byte, memoryLimitMB int, cb Callback) error {
	if memoryLimitMB <= 0 {
		memoryLimitMB = protocol.DefaultOneShotMemoryLimitMB
	}
	reply := make(chan error, 1)
	select {
	case d.cmdCh <- submitOneShotTaskCmd{script: script, data: data, memoryLimitMB: memoryLimitMB, cb: cb, reply: reply}:
	case <-d.doneCh:
		return ErrClosed
	}
	return <-reply
}

// GetStats probes resource usage for every worker in poolName (or every
// worker, if poolName is empty). See spec.md §4.3 getStats.
func (d *Dispatcher) GetStats(poolName string) StatsResult {
	reply := make(chan StatsResult, 1)
	select {
	case d.cmdCh <- getStatsCmd{poolName: poolName, reply: reply}:
	case <-d.doneCh:
		return StatsResult{}
	}
	return <-reply
}

// Terminate sends TERMINATE to every worker in poolName (or all workers,
// if poolName is empty) and does not wait for exit. See spec.md §4.3
// terminate.
func (d *Dispatcher) Terminate(poolName string) {
	reply := make(chan struct{})
	select {
	case d.cmdCh <- terminateCmd{poolName: poolName, reply: reply}:
		<-reply
	case <-d.doneCh:
	}
}

// Close terminates all workers and stops the actor goroutine. The
// Dispatcher is unusable afterward.
func (d *Dispatcher) Close() {
	reply := make(chan struct{})
	select {
	case d.cmdCh <- closeCmd{reply: reply}:
		<-reply
	case <-d.doneCh:
		return
	}
	<-d.doneCh
}

func (d *Dispatcher) spawnWorker(poolName, script string, memoryLimitMB int) (*workerproc.WorkerHandle, error) {
	h, err := workerproc.Spawn(d.ctx, script, poolName, memoryLimitMB, d.limitStrategy, d.logger, d.eventsCh)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	d.allWorkers[h.PID] = h
	d.sendInit(h)
	return h, nil
}

// sendInit sends the INIT message to a freshly spawned pool worker
// (spec.md §4.2: "Immediately after spawn the Dispatcher sends an INIT
// message"). One-shot workers skip this (spec.md §4.3 submitOneShotTask
// step 2).
func (d *Dispatcher) sendInit(h *workerproc.WorkerHandle) {
	h.Send(protocol.Task{
		ID:   d.idGen.NewTaskID(),
		Type: protocol.Init,
	})
}
