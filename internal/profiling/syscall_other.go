//go:build !linux

package profiling

// rawProfiling always reports the interface absent on non-Linux platforms.
// The harness still runs; reporting degrades to basic metrics only.
func rawProfiling(action uint32, buf []byte) error {
	return ErrUnavailable
}
