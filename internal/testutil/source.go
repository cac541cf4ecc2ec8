// Package testutil provides scripted collaborators shared by tests.
package testutil

import (
	"sync"

	"github.com/roach88/asidbench/internal/profiling"
)

// FakeSource is a scripted profiling.Source.
//
// Stats returns the scripted snapshots in order, repeating the last one once
// the script is exhausted. Setting Err makes every call fail, which is how
// tests exercise the diagnostics-unavailable paths.
//
// Thread-safe: the sampler queries it from a background goroutine.
type FakeSource struct {
	mu sync.Mutex

	// Script is the sequence of snapshots Stats serves.
	Script []profiling.Stats

	// Err, when non-nil, fails every call.
	Err error

	// Eff is returned by Efficiency.
	Eff profiling.Efficiency

	StatsCalls int
	ResetCalls int
	PrintCalls int
}

// Stats returns the next scripted snapshot.
func (f *FakeSource) Stats() (profiling.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return profiling.Stats{}, f.Err
	}
	i := f.StatsCalls
	f.StatsCalls++
	if len(f.Script) == 0 {
		return profiling.Stats{}, nil
	}
	if i >= len(f.Script) {
		i = len(f.Script) - 1
	}
	return f.Script[i], nil
}

// Efficiency returns the scripted efficiency metrics.
func (f *FakeSource) Efficiency() (profiling.Efficiency, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return profiling.Efficiency{}, f.Err
	}
	return f.Eff, nil
}

// Reset records the call.
func (f *FakeSource) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.ResetCalls++
	return nil
}

// PrintKernelLog records the call.
func (f *FakeSource) PrintKernelLog() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.PrintCalls++
	return nil
}
