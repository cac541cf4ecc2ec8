package workload

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// wordSize is the granularity of pattern fill and verification.
const wordSize = 4

// Region is a private, exclusively-owned anonymous memory mapping.
//
// Isolation is structural: each unit acquires its own mapping and no other
// unit ever holds a reference to it, so no locking guards access. The region
// is released exactly once, by the owning unit, on every exit path.
type Region struct {
	buf      []byte
	words    int
	released bool
}

// AcquireRegion maps a zero-initialized private anonymous region of the
// requested size.
//
// A zero size yields an empty region with no mapping behind it; the unit
// lifecycle still runs against it and trivially verifies. Acquisition
// failure is terminal for the requesting unit and is not retried.
func AcquireRegion(size int) (*Region, error) {
	if size == 0 {
		return &Region{}, nil
	}
	buf, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}
	return &Region{buf: buf, words: size / wordSize}, nil
}

// Words returns the number of addressable words in the region.
func (r *Region) Words() int {
	return r.words
}

// Word reads the word at the given offset.
func (r *Region) Word(offset int) uint32 {
	return binary.LittleEndian.Uint32(r.buf[offset*wordSize:])
}

// SetWord writes the word at the given offset.
func (r *Region) SetWord(offset int, v uint32) {
	binary.LittleEndian.PutUint32(r.buf[offset*wordSize:], v)
}

// Release unmaps the region. Safe to call on an empty region; calling it
// twice is a programming error and reports one.
func (r *Region) Release() error {
	if r.released {
		return fmt.Errorf("region released twice")
	}
	r.released = true
	if r.buf == nil {
		return nil
	}
	buf := r.buf
	r.buf = nil
	if err := unix.Munmap(buf); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
