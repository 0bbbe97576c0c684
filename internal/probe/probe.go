// Package probe implements the resource-usage probe named as a pluggable
// dependency in spec.md §6 ("UUID generation, clock sources, and the
// resource-usage probe (pluggable dependencies)"). getStats uses a Prober
// to sample CPU and memory usage for a worker's OS pid.
package probe

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// Stats is one worker's sampled resource usage.
type Stats struct {
	CPUPercent float64
	MemoryRSS  uint64 // bytes
}

// Prober samples OS-level resource usage for a running process. getStats
// probes concurrently and silently excludes any pid whose Sample fails
// (spec.md §7 ProbeFailure).
type Prober interface {
	Sample(ctx context.Context, pid int) (Stats, error)
}

// GopsutilProber is the default Prober, backed by
// github.com/shirou/gopsutil/v4.
type GopsutilProber struct{}

// NewGopsutilProber constructs the default Prober.
func NewGopsutilProber() *GopsutilProber {
	return &GopsutilProber{}
}

func (GopsutilProber) Sample(ctx context.Context, pid int) (Stats, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return Stats{}, fmt.Errorf("probe pid %d: %w", pid, err)
	}

	cpuPercent, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("probe cpu pid %d: %w", pid, err)
	}

	memInfo, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("probe memory pid %d: %w", pid, err)
	}

	return Stats{
		CPUPercent: cpuPercent,
		MemoryRSS:  memInfo.RSS,
	}, nil
}
