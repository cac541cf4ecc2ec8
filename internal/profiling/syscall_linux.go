//go:build linux

package profiling

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// rawProfiling issues the profiling syscall. A nil buffer is legal for
// actions that return nothing (reset, print-log).
func rawProfiling(action uint32, buf []byte) error {
	var ptr, length uintptr
	if len(buf) > 0 {
		ptr = uintptr(unsafe.Pointer(&buf[0]))
		length = uintptr(len(buf))
	}
	_, _, errno := unix.Syscall(profilingSyscall, uintptr(action), ptr, length)
	if errno == unix.ENOSYS {
		return ErrUnavailable
	}
	if errno != 0 {
		return fmt.Errorf("asid profiling action %d: %w", action, errno)
	}
	return nil
}
