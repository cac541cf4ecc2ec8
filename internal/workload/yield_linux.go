//go:build linux

package workload

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// osYield surrenders the current OS thread's timeslice so the scheduler can
// interleave other isolated contexts. This is the load factor that stresses
// the subsystem under test: every yield is a context-switch opportunity.
func osYield() {
	unix.Syscall(unix.SYS_SCHED_YIELD, 0, 0, 0)
	runtime.Gosched()
}
