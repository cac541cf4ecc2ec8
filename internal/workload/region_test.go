package workload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAcquireRegion_ZeroInitialized confirms the platform hands back a
// zeroed mapping of the requested word count.
func TestAcquireRegion_ZeroInitialized(t *testing.T) {
	r, err := AcquireRegion(64 * 1024)
	require.NoError(t, err)
	defer r.Release()

	assert.Equal(t, 64*1024/4, r.Words())
	for _, off := range []int{0, 1, 100, r.Words() - 1} {
		assert.Zero(t, r.Word(off), "word %d should be zero-initialized", off)
	}
}

// TestRegion_WordRoundTrip writes and reads back words.
func TestRegion_WordRoundTrip(t *testing.T) {
	r, err := AcquireRegion(4096)
	require.NoError(t, err)
	defer r.Release()

	r.SetWord(0, 0xDEADBEEF)
	r.SetWord(r.Words()-1, 0x12345678)

	assert.Equal(t, uint32(0xDEADBEEF), r.Word(0))
	assert.Equal(t, uint32(0x12345678), r.Word(r.Words()-1))
}

// TestRegion_ReleaseOnce enforces the released-exactly-once contract.
func TestRegion_ReleaseOnce(t *testing.T) {
	r, err := AcquireRegion(4096)
	require.NoError(t, err)

	require.NoError(t, r.Release())
	assert.Error(t, r.Release())
}

// TestAcquireRegion_ZeroSize yields an empty region with no mapping.
func TestAcquireRegion_ZeroSize(t *testing.T) {
	r, err := AcquireRegion(0)
	require.NoError(t, err)

	assert.Zero(t, r.Words())
	assert.NoError(t, r.Release())
}
