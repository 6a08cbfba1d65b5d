package gpu_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/prismatik/lumen/engine/core"
	"github.com/prismatik/lumen/engine/renderer/gpu"
	"github.com/prismatik/lumen/engine/renderer/gpu/gputest"
)

const (
	allTypeBits = 0b11
	// chunk is the upper bound on random request sizes in the churn test.
	chunk = 4096
)

func TestAllocatorSubAllocatesFromOneBlock(t *testing.T) {
	device := gputest.NewDevice()
	alloc := gpu.NewAllocator(device, 1<<20)

	a, err := alloc.Allocate(4096, 256, gpu.MemoryDeviceLocal, allTypeBits)
	require.NoError(t, err)
	b, err := alloc.Allocate(4096, 256, gpu.MemoryDeviceLocal, allTypeBits)
	require.NoError(t, err)

	st := alloc.Stats()
	assert.Equal(t, 1, st.Blocks, "both ranges should share one backing block")
	assert.Equal(t, 2, st.Allocations)
	assert.Equal(t, uint64(8192), st.UsedBytes)

	// The ranges must not overlap.
	assert.Equal(t, a.Block, b.Block)
	lo, hi := a, b
	if b.Offset < a.Offset {
		lo, hi = b, a
	}
	assert.GreaterOrEqual(t, hi.Offset, lo.Offset+lo.Size)

	require.NoError(t, alloc.Free(a))
	require.NoError(t, alloc.Free(b))
	assert.Equal(t, uint64(0), alloc.Stats().UsedBytes)

	alloc.Release()
	assert.Zero(t, device.LiveTotal())
}

func TestAllocatorRespectsAlignment(t *testing.T) {
	device := gputest.NewDevice()
	alloc := gpu.NewAllocator(device, 1<<20)

	// Odd-size leading allocation forces the next one to need re-alignment.
	a, err := alloc.Allocate(100, 1, gpu.MemoryDeviceLocal, allTypeBits)
	require.NoError(t, err)
	b, err := alloc.Allocate(512, 4096, gpu.MemoryDeviceLocal, allTypeBits)
	require.NoError(t, err)

	assert.Zero(t, b.Offset%4096)
	assert.GreaterOrEqual(t, b.Offset, a.Offset+a.Size)
}

func TestAllocatorBestFit(t *testing.T) {
	device := gputest.NewDevice()
	alloc := gpu.NewAllocator(device, 16384)

	big, err := alloc.Allocate(4096, 1, gpu.MemoryDeviceLocal, allTypeBits)
	require.NoError(t, err)
	small, err := alloc.Allocate(1024, 1, gpu.MemoryDeviceLocal, allTypeBits)
	require.NoError(t, err)
	// Pin the tail so freeing does not coalesce into one giant span.
	_, err = alloc.Allocate(1024, 1, gpu.MemoryDeviceLocal, allTypeBits)
	require.NoError(t, err)

	require.NoError(t, alloc.Free(big))
	require.NoError(t, alloc.Free(small))

	// A request that fits both free spans should pick the tighter one.
	got, err := alloc.Allocate(1024, 1, gpu.MemoryDeviceLocal, allTypeBits)
	require.NoError(t, err)
	assert.Equal(t, small.Offset, got.Offset)
}

func TestAllocatorCoalescesNeighbors(t *testing.T) {
	device := gputest.NewDevice()
	alloc := gpu.NewAllocator(device, 8192)

	a, err := alloc.Allocate(2048, 1, gpu.MemoryDeviceLocal, allTypeBits)
	require.NoError(t, err)
	b, err := alloc.Allocate(2048, 1, gpu.MemoryDeviceLocal, allTypeBits)
	require.NoError(t, err)
	c, err := alloc.Allocate(2048, 1, gpu.MemoryDeviceLocal, allTypeBits)
	require.NoError(t, err)

	require.NoError(t, alloc.Free(a))
	require.NoError(t, alloc.Free(c))
	require.NoError(t, alloc.Free(b))

	// All three spans coalesced back into one; a block-spanning request
	// must succeed without a second block.
	_, err = alloc.Allocate(6144, 1, gpu.MemoryDeviceLocal, allTypeBits)
	require.NoError(t, err)
	assert.Equal(t, 1, alloc.Stats().Blocks)
}

func TestAllocatorPropagatesDeviceExhaustion(t *testing.T) {
	device := gputest.NewDevice()
	device.BlockBudget = 1 << 20
	alloc := gpu.NewAllocator(device, 1<<20)

	_, err := alloc.Allocate(1024, 1, gpu.MemoryDeviceLocal, allTypeBits)
	require.NoError(t, err)

	// The first block consumed the whole budget; a request needing a new
	// block must surface the device's out-of-memory condition.
	_, err = alloc.Allocate(1<<21, 1, gpu.MemoryDeviceLocal, allTypeBits)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrOutOfDeviceMemory))
}

func TestAllocatorRejectsBadFrees(t *testing.T) {
	device := gputest.NewDevice()
	alloc := gpu.NewAllocator(device, 1<<20)

	a, err := alloc.Allocate(1024, 1, gpu.MemoryDeviceLocal, allTypeBits)
	require.NoError(t, err)

	require.NoError(t, alloc.Free(a))
	assert.Error(t, alloc.Free(a), "double free must be rejected")
	assert.Error(t, alloc.Free(gpu.Allocation{}))

	_, err = alloc.Allocate(0, 1, gpu.MemoryDeviceLocal, allTypeBits)
	assert.Error(t, err)
}

func TestAllocatorSeparatesMemoryClasses(t *testing.T) {
	device := gputest.NewDevice()
	alloc := gpu.NewAllocator(device, 1<<20)

	_, err := alloc.Allocate(1024, 1, gpu.MemoryDeviceLocal, allTypeBits)
	require.NoError(t, err)
	_, err = alloc.Allocate(1024, 1, gpu.MemoryHostVisible|gpu.MemoryHostCoherent, allTypeBits)
	require.NoError(t, err)

	assert.Equal(t, 2, alloc.Stats().Blocks, "different memory classes never share a block")
}

func TestAllocatorRandomChurn(t *testing.T) {
	device := gputest.NewDevice()
	alloc := gpu.NewAllocator(device, chunk<<4)

	rng := rand.New(rand.NewSource(42))
	var live []gpu.Allocation

	for i := 0; i < 2000; i++ {
		if len(live) > 0 && rng.Intn(2) == 0 {
			j := rng.Intn(len(live))
			require.NoError(t, alloc.Free(live[j]))
			live = append(live[:j], live[j+1:]...)
			continue
		}
		size := uint64(rng.Intn(chunk-1) + 1)
		alignment := uint64(1) << rng.Intn(9)
		a, err := alloc.Allocate(size, alignment, gpu.MemoryDeviceLocal, allTypeBits)
		require.NoError(t, err)
		assert.Zero(t, a.Offset%alignment)
		live = append(live, a)
	}

	// No two live ranges in the same block may overlap.
	for i := range live {
		for j := i + 1; j < len(live); j++ {
			a, b := live[i], live[j]
			if a.Block != b.Block {
				continue
			}
			disjoint := a.Offset+a.Size <= b.Offset || b.Offset+b.Size <= a.Offset
			require.True(t, disjoint, "ranges overlap: %+v vs %+v", a, b)
		}
	}

	for _, a := range live {
		require.NoError(t, alloc.Free(a))
	}
	st := alloc.Stats()
	assert.Zero(t, st.Allocations)
	assert.Zero(t, st.UsedBytes)
}
