// Package profiling is the client side of the kernel's ASID profiling
// interface: a single request/response syscall taking an action code and a
// fixed-size buffer.
//
// The interface is an optional diagnostic surface, not a correctness
// dependency. Every call may fail on kernels that do not expose it; callers
// must treat failure as "diagnostics unavailable", never as a correctness
// signal.
package profiling

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Action codes accepted by the profiling syscall.
const (
	ActionGetStats      = 0 // fill buffer with the current counter snapshot
	ActionPrintLog      = 1 // kernel emits a detailed report to its own log
	ActionReset         = 2 // zero all counters
	ActionGetEfficiency = 3 // fill buffer with derived efficiency ratios
)

// profilingSyscall is the syscall number the kernel registers the interface
// under.
const profilingSyscall = 999

// ErrUnavailable indicates the profiling interface does not exist on the
// running kernel.
var ErrUnavailable = errors.New("asid profiling interface unavailable")

// Stats is a point-in-time snapshot of the kernel's ASID counters.
// Immutable once captured.
type Stats struct {
	AllocationsTotal    uint64
	DeallocationsTotal  uint64
	AllocationFailures  uint64
	GenerationRollovers uint64

	BitmapSearches uint64
	MapSearches    uint64
	ReuseCount     uint64

	TLBSingleAddressFlushes uint64
	TLBSingleContextFlushes uint64
	TLBAllContextFlushes    uint64
	TLBFullFlushes          uint64

	ContextSwitches          uint64
	ContextSwitchesWithFlush uint64
	VMSpaceActivations       uint64

	AllocationTimeTotal    uint64
	DeallocationTimeTotal  uint64
	TLBFlushTimeTotal      uint64
	ContextSwitchTimeTotal uint64

	ActiveASIDs       uint32
	CurrentGeneration uint16
	PCIDEnabled       bool
	TotalASIDsUsed    uint32
}

// TotalFlushes sums the four flush classes.
func (s Stats) TotalFlushes() uint64 {
	return s.TLBSingleAddressFlushes + s.TLBSingleContextFlushes +
		s.TLBAllContextFlushes + s.TLBFullFlushes
}

// Efficiency holds the kernel's derived ratios. The rate fields are
// expressed in parts per million.
type Efficiency struct {
	AllocationSuccessPPM      uint64
	ReuseEfficiencyPPM        uint64
	FlushEfficiencyPPM        uint64
	AvgCyclesPerAllocation    uint64
	AvgCyclesPerContextSwitch uint64
}

// Buffer sizes for the fixed wire layouts. The kernel writes the stats
// fields back-to-back from offset 0 (ending at byte 158), but validates the
// buffer against its C-layout struct size, which carries two trailing
// alignment bytes after the u16 generation field. Anything smaller than 160
// is rejected outright.
const (
	statsBufSize      = 160
	efficiencyBufSize = 5 * 8
)

// decodeStats parses the packed little-endian stats buffer.
func decodeStats(buf []byte) (Stats, error) {
	if len(buf) < statsBufSize {
		return Stats{}, fmt.Errorf("stats buffer too small: %d bytes", len(buf))
	}
	u64 := func(off int) uint64 { return binary.LittleEndian.Uint64(buf[off:]) }

	var s Stats
	s.AllocationsTotal = u64(0)
	s.DeallocationsTotal = u64(8)
	s.AllocationFailures = u64(16)
	s.GenerationRollovers = u64(24)
	s.BitmapSearches = u64(32)
	s.MapSearches = u64(40)
	s.ReuseCount = u64(48)
	s.TLBSingleAddressFlushes = u64(56)
	s.TLBSingleContextFlushes = u64(64)
	s.TLBAllContextFlushes = u64(72)
	s.TLBFullFlushes = u64(80)
	s.ContextSwitches = u64(88)
	s.ContextSwitchesWithFlush = u64(96)
	s.VMSpaceActivations = u64(104)
	s.AllocationTimeTotal = u64(112)
	s.DeallocationTimeTotal = u64(120)
	s.TLBFlushTimeTotal = u64(128)
	s.ContextSwitchTimeTotal = u64(136)
	s.ActiveASIDs = binary.LittleEndian.Uint32(buf[144:])
	s.CurrentGeneration = binary.LittleEndian.Uint16(buf[148:])
	s.PCIDEnabled = binary.LittleEndian.Uint32(buf[150:]) != 0
	s.TotalASIDsUsed = binary.LittleEndian.Uint32(buf[154:])
	return s, nil
}

// decodeEfficiency parses the packed little-endian efficiency buffer.
func decodeEfficiency(buf []byte) (Efficiency, error) {
	if len(buf) < efficiencyBufSize {
		return Efficiency{}, fmt.Errorf("efficiency buffer too small: %d bytes", len(buf))
	}
	return Efficiency{
		AllocationSuccessPPM:      binary.LittleEndian.Uint64(buf[0:]),
		ReuseEfficiencyPPM:        binary.LittleEndian.Uint64(buf[8:]),
		FlushEfficiencyPPM:        binary.LittleEndian.Uint64(buf[16:]),
		AvgCyclesPerAllocation:    binary.LittleEndian.Uint64(buf[24:]),
		AvgCyclesPerContextSwitch: binary.LittleEndian.Uint64(buf[32:]),
	}, nil
}

// Source is the counter query surface the sampler and CLI consume.
// KernelSource implements it against the real syscall; tests substitute a
// scripted fake.
type Source interface {
	Stats() (Stats, error)
	Efficiency() (Efficiency, error)
	Reset() error
	PrintKernelLog() error
}

// KernelSource queries the running kernel's profiling interface.
type KernelSource struct{}

// Stats fetches the current counter snapshot.
func (KernelSource) Stats() (Stats, error) {
	buf := make([]byte, statsBufSize)
	if err := rawProfiling(ActionGetStats, buf); err != nil {
		return Stats{}, err
	}
	return decodeStats(buf)
}

// Efficiency fetches the kernel's derived efficiency ratios.
func (KernelSource) Efficiency() (Efficiency, error) {
	buf := make([]byte, efficiencyBufSize)
	if err := rawProfiling(ActionGetEfficiency, buf); err != nil {
		return Efficiency{}, err
	}
	return decodeEfficiency(buf)
}

// Reset zeroes all kernel counters.
func (KernelSource) Reset() error {
	return rawProfiling(ActionReset, nil)
}

// PrintKernelLog asks the kernel to emit its detailed report to the kernel
// log. No output is returned to the caller.
func (KernelSource) PrintKernelLog() error {
	return rawProfiling(ActionPrintLog, nil)
}

// Available probes the interface with a stats query.
func Available(src Source) bool {
	_, err := src.Stats()
	return err == nil
}
