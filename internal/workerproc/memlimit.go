// ============================================================================
// Pluggable Memory Limit Enforcement
// ============================================================================
//
// Package: internal/workerproc
// File: memlimit.go
//
// The source enforces a memory ceiling purely through runtime flags passed
// to a single well-known child runtime. A Go worker may be an arbitrary
// binary that never looks at its own argv, so this expansion makes the
// enforcement mechanism itself a pluggable strategy (spec.md §9: "Make it
// a pluggable strategy").
//
// ============================================================================

package workerproc

import (
	"fmt"
	"os/exec"
	"syscall"
)

// MemoryLimitStrategy decides how a worker's memory ceiling is enforced
// beyond the argv flags every child receives unconditionally.
type MemoryLimitStrategy interface {
	// Apply is called once, before cmd.Start(), and may mutate cmd (e.g.
	// rewrap its Path/Args, or set SysProcAttr) to enforce memoryLimitMB.
	Apply(cmd *exec.Cmd, memoryLimitMB int) error
}

// RuntimeFlagStrategy is the default strategy: it trusts the
// --max-old-space-size argv flag already passed to every child and does
// nothing further. This matches the source's behavior exactly.
type RuntimeFlagStrategy struct{}

func (RuntimeFlagStrategy) Apply(cmd *exec.Cmd, memoryLimitMB int) error {
	return nil
}

// RLimitStrategy enforces the ceiling at the OS level by re-wrapping the
// child command with prlimit(1), for workers that ignore runtime flags.
// It requires prlimit to be present on PATH; the ceiling is expressed in
// bytes via --as (address space).
type RLimitStrategy struct {
	// PrlimitPath overrides the resolved path to the prlimit binary,
	// primarily for tests. Empty means "look up prlimit on PATH".
	PrlimitPath string
}

func (s RLimitStrategy) Apply(cmd *exec.Cmd, memoryLimitMB int) error {
	prlimit := s.PrlimitPath
	if prlimit == "" {
		resolved, err := exec.LookPath("prlimit")
		if err != nil {
			return fmt.Errorf("prlimit not available on PATH: %w", err)
		}
		prlimit = resolved
	}

	bytesLimit := int64(memoryLimitMB) * 1024 * 1024
	newArgs := append([]string{
		prlimit,
		fmt.Sprintf("--as=%d", bytesLimit),
		cmd.Path,
	}, cmd.Args[1:]...)

	cmd.Path = prlimit
	cmd.Args = newArgs
	return nil
}

// exitSignal reports the signal name (if any) that terminated cmd, empty
// otherwise. Linux-only build assumption matches the rest of the pack
// (the teacher targets Linux containers exclusively).
func exitSignal(cmd *exec.Cmd) string {
	if cmd.ProcessState == nil {
		return ""
	}
	status, ok := cmd.ProcessState.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return ""
	}
	return status.Signal().String()
}
