package probe

import (
	"context"
	"fmt"
)

// FakeProber is a deterministic Prober for tests: it returns a fixed
// Stats value per pid, or an error for pids listed in Fail.
type FakeProber struct {
	Values map[int]Stats
	Fail   map[int]bool
}

// NewFakeProber constructs an empty FakeProber.
func NewFakeProber() *FakeProber {
	return &FakeProber{
		Values: make(map[int]Stats),
		Fail:   make(map[int]bool),
	}
}

func (f *FakeProber) Sample(_ context.Context, pid int) (Stats, error) {
	if f.Fail[pid] {
		return Stats{}, fmt.Errorf("probe pid %d: simulated failure", pid)
	}
	if st, ok := f.Values[pid]; ok {
		return st, nil
	}
	return Stats{}, nil
}
