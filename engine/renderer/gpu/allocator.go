package gpu

import (
	"fmt"
	"sync"

	"github.com/prismatik/lumen/engine/core"
	vmath "github.com/prismatik/lumen/engine/math"
)

// DefaultMinBlockSize is the backing-allocation floor when no configured
// value is supplied. Sub-allocating out of few large blocks keeps the
// underlying allocation count well under device limits.
const DefaultMinBlockSize uint64 = 64 * 1024 * 1024

// Allocator sub-allocates device memory blocks into aligned ranges. Blocks
// are created on demand per memory class; within a block, allocation is
// best-fit over the free spans and freeing coalesces with adjacent free
// spans. Some fragmentation is accepted in exchange for far fewer backing
// allocations.
//
// The allocator never defers anything itself: the registry guarantees that
// Free is only called once no in-flight frame references the range.
type Allocator struct {
	mu           sync.Mutex
	device       Device
	minBlockSize uint64
	blocks       []*memoryBlock
}

type memoryBlock struct {
	handle    BlockHandle
	size      uint64
	props     MemoryPropertyFlags
	typeIndex uint32
	// spans are sorted by offset, non-overlapping, and tile the whole
	// block: used + free sizes always sum to size.
	spans []span
}

type span struct {
	offset uint64
	size   uint64
	free   bool
}

type AllocatorStats struct {
	Blocks      int
	Allocations int
	UsedBytes   uint64
	TotalBytes  uint64
}

func NewAllocator(device Device, minBlockSize uint64) *Allocator {
	if minBlockSize == 0 {
		minBlockSize = DefaultMinBlockSize
	}
	return &Allocator{
		device:       device,
		minBlockSize: minBlockSize,
	}
}

// Allocate reserves size bytes aligned to alignment from a block matching
// props and typeBits, creating a new block when no existing one fits.
// Returns core.ErrOutOfDeviceMemory (wrapped) when the device is exhausted.
func (a *Allocator) Allocate(size, alignment uint64, props MemoryPropertyFlags, typeBits uint32) (Allocation, error) {
	if size == 0 {
		return Allocation{}, fmt.Errorf("zero-size allocation")
	}
	if alignment == 0 {
		alignment = 1
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Best-fit within existing blocks first.
	var (
		bestBlock *memoryBlock
		bestSpan  = -1
		bestWaste = uint64(1<<64 - 1)
	)
	for _, b := range a.blocks {
		if b.props != props || (typeBits>>b.typeIndex)&1 == 0 {
			continue
		}
		for i, s := range b.spans {
			if !s.free {
				continue
			}
			start := vmath.AlignUp(s.offset, alignment)
			if start+size > s.offset+s.size {
				continue
			}
			waste := s.size - size
			if waste < bestWaste {
				bestBlock, bestSpan, bestWaste = b, i, waste
			}
		}
	}

	if bestBlock == nil {
		b, err := a.newBlock(size, alignment, props, typeBits)
		if err != nil {
			return Allocation{}, err
		}
		bestBlock, bestSpan = b, 0
	}

	return bestBlock.carve(bestSpan, size, alignment), nil
}

// Free returns the allocation's range to its block, coalescing with adjacent
// free ranges. Freeing an unknown or already freed range is an error.
func (a *Allocator) Free(alloc Allocation) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	b := alloc.block
	if b == nil {
		return fmt.Errorf("free of allocation with no backing block")
	}
	for i, s := range b.spans {
		if s.offset == alloc.Offset && !s.free {
			b.spans[i].free = true
			b.coalesce(i)
			return nil
		}
	}
	return fmt.Errorf("free of unknown range offset=%d size=%d", alloc.Offset, alloc.Size)
}

// Stats reports block and byte usage. A balanced shutdown ends with zero
// used bytes and zero live allocations.
func (a *Allocator) Stats() AllocatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := AllocatorStats{Blocks: len(a.blocks)}
	for _, b := range a.blocks {
		st.TotalBytes += b.size
		for _, s := range b.spans {
			if !s.free {
				st.Allocations++
				st.UsedBytes += s.size
			}
		}
	}
	return st
}

// Release frees all backing blocks. Only valid after every allocation has
// been freed; leaked ranges are logged and released anyway.
func (a *Allocator) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, b := range a.blocks {
		for _, s := range b.spans {
			if !s.free {
				core.LogWarn("allocator release with live range: block=%d offset=%d size=%d", b.handle, s.offset, s.size)
			}
		}
		a.device.FreeBlock(b.handle)
	}
	a.blocks = nil
}

func (a *Allocator) newBlock(size, alignment uint64, props MemoryPropertyFlags, typeBits uint32) (*memoryBlock, error) {
	blockSize := vmath.Max(vmath.AlignUp(size, alignment), a.minBlockSize)
	handle, typeIndex, err := a.device.AllocateBlock(blockSize, props, typeBits)
	if err != nil {
		return nil, fmt.Errorf("allocating %d byte block: %w", blockSize, err)
	}

	b := &memoryBlock{
		handle:    handle,
		size:      blockSize,
		props:     props,
		typeIndex: typeIndex,
		spans:     []span{{offset: 0, size: blockSize, free: true}},
	}
	a.blocks = append(a.blocks, b)
	core.LogDebug("new %d MiB memory block (type %d)", blockSize/(1024*1024), typeIndex)
	return b, nil
}

// carve splits the free span at index i into (leading free, used, trailing
// free), preserving the tiling invariant.
func (b *memoryBlock) carve(i int, size, alignment uint64) Allocation {
	s := b.spans[i]
	start := vmath.AlignUp(s.offset, alignment)

	out := make([]span, 0, len(b.spans)+2)
	out = append(out, b.spans[:i]...)
	if start > s.offset {
		out = append(out, span{offset: s.offset, size: start - s.offset, free: true})
	}
	out = append(out, span{offset: start, size: size, free: false})
	if end := s.offset + s.size; start+size < end {
		out = append(out, span{offset: start + size, size: end - (start + size), free: true})
	}
	out = append(out, b.spans[i+1:]...)
	b.spans = out

	return Allocation{
		Block:  b.handle,
		Offset: start,
		Size:   size,
		block:  b,
	}
}

// coalesce merges the free span at index i with free neighbors.
func (b *memoryBlock) coalesce(i int) {
	// Merge with the next span first so the index stays valid.
	if i+1 < len(b.spans) && b.spans[i+1].free {
		b.spans[i].size += b.spans[i+1].size
		b.spans = append(b.spans[:i+1], b.spans[i+2:]...)
	}
	if i > 0 && b.spans[i-1].free {
		b.spans[i-1].size += b.spans[i].size
		b.spans = append(b.spans[:i], b.spans[i+1:]...)
	}
}
