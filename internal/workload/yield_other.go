//go:build !linux

package workload

import "runtime"

// osYield surrenders the processor cooperatively. Without sched_yield(2) the
// runtime's own yield is the closest available context-switch hint.
func osYield() {
	runtime.Gosched()
}
