package profiling

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statsBuffer builds a packed wire buffer the way the kernel writes it:
// eighteen 64-bit counters back-to-back, then the four trailing fields with
// no padding.
func statsBuffer(t *testing.T, counters [18]uint64, active uint32, gen uint16, pcid uint32, used uint32) []byte {
	t.Helper()
	buf := make([]byte, statsBufSize)
	for i, v := range counters {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	binary.LittleEndian.PutUint32(buf[144:], active)
	binary.LittleEndian.PutUint16(buf[148:], gen)
	binary.LittleEndian.PutUint32(buf[150:], pcid)
	binary.LittleEndian.PutUint32(buf[154:], used)
	return buf
}

// TestDecodeStats parses a crafted buffer and checks a sample of fields from
// every region of the layout, including the unaligned trailing fields.
func TestDecodeStats(t *testing.T) {
	var counters [18]uint64
	for i := range counters {
		counters[i] = uint64(i+1) * 1000
	}
	buf := statsBuffer(t, counters, 42, 7, 1, 300)

	s, err := decodeStats(buf)
	require.NoError(t, err)

	assert.Equal(t, uint64(1000), s.AllocationsTotal)
	assert.Equal(t, uint64(4000), s.GenerationRollovers)
	assert.Equal(t, uint64(7000), s.ReuseCount)
	assert.Equal(t, uint64(8000), s.TLBSingleAddressFlushes)
	assert.Equal(t, uint64(11000), s.TLBFullFlushes)
	assert.Equal(t, uint64(12000), s.ContextSwitches)
	assert.Equal(t, uint64(14000), s.VMSpaceActivations)
	assert.Equal(t, uint64(18000), s.ContextSwitchTimeTotal)
	assert.Equal(t, uint32(42), s.ActiveASIDs)
	assert.Equal(t, uint16(7), s.CurrentGeneration)
	assert.True(t, s.PCIDEnabled)
	assert.Equal(t, uint32(300), s.TotalASIDsUsed)
}

// TestDecodeStats_PCIDDisabled: a zero flag decodes to false.
func TestDecodeStats_PCIDDisabled(t *testing.T) {
	buf := statsBuffer(t, [18]uint64{}, 0, 0, 0, 0)

	s, err := decodeStats(buf)
	require.NoError(t, err)
	assert.False(t, s.PCIDEnabled)
}

// TestStatsBufferSize pins the request buffer to the kernel's C-layout
// struct size: the packed fields end at byte 158 and two trailing alignment
// bytes bring the struct to 160. The kernel rejects any smaller buffer, so
// shrinking this constant turns every stats query into an error.
func TestStatsBufferSize(t *testing.T) {
	assert.Equal(t, 160, statsBufSize)

	// The trailing padding carries no data: flipping it must not change the
	// decoded snapshot.
	buf := statsBuffer(t, [18]uint64{1}, 2, 3, 0, 4)
	want, err := decodeStats(buf)
	require.NoError(t, err)

	buf[158] = 0xFF
	buf[159] = 0xFF
	got, err := decodeStats(buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// TestDecodeStats_ShortBuffer rejects truncated buffers.
func TestDecodeStats_ShortBuffer(t *testing.T) {
	_, err := decodeStats(make([]byte, statsBufSize-1))
	assert.Error(t, err)
}

// TestStats_TotalFlushes sums the four flush classes.
func TestStats_TotalFlushes(t *testing.T) {
	s := Stats{
		TLBSingleAddressFlushes: 1,
		TLBSingleContextFlushes: 2,
		TLBAllContextFlushes:    3,
		TLBFullFlushes:          4,
	}
	assert.Equal(t, uint64(10), s.TotalFlushes())
}

// TestDecodeEfficiency parses the five-field ratio buffer.
func TestDecodeEfficiency(t *testing.T) {
	buf := make([]byte, efficiencyBufSize)
	want := Efficiency{
		AllocationSuccessPPM:      990000,
		ReuseEfficiencyPPM:        750000,
		FlushEfficiencyPPM:        500000,
		AvgCyclesPerAllocation:    1234,
		AvgCyclesPerContextSwitch: 5678,
	}
	binary.LittleEndian.PutUint64(buf[0:], want.AllocationSuccessPPM)
	binary.LittleEndian.PutUint64(buf[8:], want.ReuseEfficiencyPPM)
	binary.LittleEndian.PutUint64(buf[16:], want.FlushEfficiencyPPM)
	binary.LittleEndian.PutUint64(buf[24:], want.AvgCyclesPerAllocation)
	binary.LittleEndian.PutUint64(buf[32:], want.AvgCyclesPerContextSwitch)

	got, err := decodeEfficiency(buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// TestDecodeEfficiency_ShortBuffer rejects truncated buffers.
func TestDecodeEfficiency_ShortBuffer(t *testing.T) {
	_, err := decodeEfficiency(make([]byte, efficiencyBufSize-8))
	assert.Error(t, err)
}

type stubSource struct {
	stats Stats
	err   error
}

func (s stubSource) Stats() (Stats, error)           { return s.stats, s.err }
func (s stubSource) Efficiency() (Efficiency, error) { return Efficiency{}, s.err }
func (s stubSource) Reset() error                    { return s.err }
func (s stubSource) PrintKernelLog() error           { return s.err }

// TestAvailable probes the source with a stats query.
func TestAvailable(t *testing.T) {
	assert.True(t, Available(stubSource{}))
	assert.False(t, Available(stubSource{err: ErrUnavailable}))
}
