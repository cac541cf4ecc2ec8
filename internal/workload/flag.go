package workload

import "sync/atomic"

// StopFlag is the cooperative stop signal shared by one process's units.
//
// Single-writer / multi-reader: only the local supervisor ever calls Set,
// and the flag only transitions false to true once. Units poll it at cycle
// boundaries; there is no forced cancellation of an in-flight cycle.
type StopFlag struct {
	v atomic.Bool
}

// Set requests a cooperative stop.
func (f *StopFlag) Set() {
	f.v.Store(true)
}

// Stopped reports whether a stop has been requested.
func (f *StopFlag) Stopped() bool {
	return f.v.Load()
}
