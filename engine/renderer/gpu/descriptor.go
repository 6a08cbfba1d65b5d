package gpu

import (
	"fmt"
	"sync"

	"github.com/prismatik/lumen/engine/containers"
	"github.com/prismatik/lumen/engine/core"
)

// DefaultMaxSetsPerPool caps each template's descriptor pool. Pool growth
// when churn outpaces reuse is bounded: once a pool is full the binder
// stalls until an in-flight frame completes and its sets become reusable,
// keeping descriptor memory bounded at the cost of an occasional wait.
const DefaultMaxSetsPerPool = 256

// BoundSet is a descriptor set handed out by the binder. The set behind it
// must not be rewritten until the frame that last bound it has completed;
// the binder enforces that by allocating a fresh instance instead of
// mutating a still-live one.
type BoundSet struct {
	set      DescriptorSet
	pool     *setPool
	lastUsed uint64
}

// DeviceSet exposes the underlying set for command recording.
func (b *BoundSet) DeviceSet() DescriptorSet {
	return b.set
}

type setPool struct {
	template SetTemplate
	count    int
	free     *containers.RingQueue[*BoundSet]
}

// Binder maps resource handles to shader-visible binding slots. Sets are
// pooled per template fingerprint; per-frame data gets a set per cycle from
// the pool, static data can be cached with BindStatic and shared globally.
type Binder struct {
	mu      sync.Mutex
	device  Device
	clock   *FrameClock
	maxSets int
	pools   map[uint64]*setPool
	statics map[uint64]*BoundSet
	// stall waits until at least one more in-flight frame completes. Wired
	// to the frame scheduler's oldest-fence wait.
	stall func() error
}

func NewBinder(device Device, clock *FrameClock, maxSetsPerPool int) *Binder {
	if maxSetsPerPool <= 0 {
		maxSetsPerPool = DefaultMaxSetsPerPool
	}
	return &Binder{
		device:  device,
		clock:   clock,
		maxSets: maxSetsPerPool,
		pools:   make(map[uint64]*setPool),
		statics: make(map[uint64]*BoundSet),
	}
}

// SetStallFunc wires the backpressure hook used when a pool is exhausted.
func (bi *Binder) SetStallFunc(fn func() error) {
	bi.mu.Lock()
	defer bi.mu.Unlock()
	bi.stall = fn
}

// Bind allocates (or reuses) a set shaped like template and writes the given
// resource bindings into it. The returned set is exclusively owned by the
// caller's frame until MarkUsed's frame completes; reuse only happens after
// that point.
func (bi *Binder) Bind(template SetTemplate, writes []DescriptorWrite) (*BoundSet, error) {
	bi.mu.Lock()
	pool := bi.poolFor(template)

	bs, err := bi.takeLocked(pool)
	for err != nil {
		stall := bi.stall
		if stall == nil {
			bi.mu.Unlock()
			return nil, err
		}
		// Pool exhausted: wait for a frame to complete, then retry. The
		// clock advancing is what makes previously used sets reusable.
		bi.mu.Unlock()
		core.LogDebug("descriptor pool full, stalling for frame completion")
		if serr := stall(); serr != nil {
			return nil, serr
		}
		bi.mu.Lock()
		bs, err = bi.takeLocked(pool)
	}
	bi.mu.Unlock()

	if err := bi.device.UpdateDescriptorSet(bs.set, writes); err != nil {
		bi.recycle(bs)
		return nil, fmt.Errorf("writing descriptor set: %w", err)
	}
	return bs, nil
}

// BindStatic returns a globally shared set for bindings that never change
// (a texture atlas, say). Sets are cached by template and write fingerprint
// and are never rewritten, so in-flight rules cannot be violated.
func (bi *Binder) BindStatic(template SetTemplate, writes []DescriptorWrite) (*BoundSet, error) {
	key := staticKey(template, writes)

	bi.mu.Lock()
	if bs, ok := bi.statics[key]; ok {
		bi.mu.Unlock()
		return bs, nil
	}
	bi.mu.Unlock()

	set, err := bi.device.AllocateDescriptorSet(template)
	if err != nil {
		return nil, fmt.Errorf("allocating static descriptor set: %w", err)
	}
	if err := bi.device.UpdateDescriptorSet(set, writes); err != nil {
		bi.device.FreeDescriptorSet(set)
		return nil, fmt.Errorf("writing static descriptor set: %w", err)
	}

	bs := &BoundSet{set: set}
	bi.mu.Lock()
	if prior, ok := bi.statics[key]; ok {
		// Lost a race with a concurrent recorder; keep the first one.
		bi.mu.Unlock()
		bi.device.FreeDescriptorSet(set)
		return prior, nil
	}
	bi.statics[key] = bs
	bi.mu.Unlock()
	return bs, nil
}

// MarkUsed records that the set was bound by the frame with the given
// number and returns it to its pool for reuse once that frame completes.
// Static sets ignore this.
func (bi *Binder) MarkUsed(bs *BoundSet, frame uint64) {
	if bs.pool == nil {
		return
	}
	bi.mu.Lock()
	defer bi.mu.Unlock()
	bs.lastUsed = frame
	if err := bs.pool.free.Enqueue(bs); err != nil {
		core.LogError("descriptor pool overflow on return: %v", err)
	}
}

// Release frees every pooled and static set. Only legal after a full drain.
func (bi *Binder) Release() {
	bi.mu.Lock()
	defer bi.mu.Unlock()

	for _, pool := range bi.pools {
		for {
			bs, err := pool.free.Dequeue()
			if err != nil {
				break
			}
			bi.device.FreeDescriptorSet(bs.set)
		}
		if pool.free.Len() != pool.count {
			core.LogDebug("descriptor pool released with %d sets still owned by slots", pool.count-pool.free.Len())
		}
	}
	bi.pools = make(map[uint64]*setPool)

	for _, bs := range bi.statics {
		bi.device.FreeDescriptorSet(bs.set)
	}
	bi.statics = make(map[uint64]*BoundSet)
}

func (bi *Binder) poolFor(template SetTemplate) *setPool {
	key := template.Fingerprint()
	pool, ok := bi.pools[key]
	if !ok {
		pool = &setPool{
			template: template,
			free:     containers.NewRingQueue[*BoundSet](bi.maxSets),
		}
		bi.pools[key] = pool
	}
	return pool
}

// takeLocked returns a set that is safe to rewrite: either one whose last
// frame has completed, or a fresh allocation while under the cap.
func (bi *Binder) takeLocked(pool *setPool) (*BoundSet, error) {
	completed := bi.clock.Completed()

	if bs, err := pool.free.Peek(); err == nil && bs.lastUsed <= completed {
		pool.free.Dequeue()
		return bs, nil
	}

	if pool.count < bi.maxSets {
		set, err := bi.device.AllocateDescriptorSet(pool.template)
		if err != nil {
			return nil, fmt.Errorf("allocating descriptor set: %w", err)
		}
		pool.count++
		return &BoundSet{set: set, pool: pool}, nil
	}

	return nil, fmt.Errorf("descriptor pool for template %x exhausted (%d sets in flight)", pool.template.Fingerprint(), pool.count)
}

func (bi *Binder) recycle(bs *BoundSet) {
	if bs.pool == nil {
		bi.device.FreeDescriptorSet(bs.set)
		return
	}
	bi.mu.Lock()
	defer bi.mu.Unlock()
	bs.lastUsed = 0
	bs.pool.free.Enqueue(bs)
}

func staticKey(template SetTemplate, writes []DescriptorWrite) uint64 {
	f := newFingerprinter()
	f.u64(template.Fingerprint())
	f.u32(uint32(len(writes)))
	for _, w := range writes {
		f.u32(w.Slot)
		f.u32(uint32(w.Type))
		f.u64(uint64(w.Buffer))
		f.u64(w.Offset)
		f.u64(w.Range)
		f.u64(uint64(w.Image))
		f.u64(uint64(w.Sampler))
	}
	return f.sum()
}
