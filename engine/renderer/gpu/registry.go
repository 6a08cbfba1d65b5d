package gpu

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/prismatik/lumen/engine/core"
)

// Handle is a small stable token for a registry-owned GPU resource: an arena
// index plus a generation that invalidates stale copies once the slot is
// recycled. The zero Handle is never valid.
type Handle struct {
	Index      uint32
	Generation uint32
}

func (h Handle) IsZero() bool {
	return h.Index == 0 && h.Generation == 0
}

type ResourceKind uint8

const (
	ResourceBuffer ResourceKind = iota + 1
	ResourceImage
)

type resourceSlot struct {
	generation uint32
	live       bool

	kind  ResourceKind
	name  string
	size  uint64
	props MemoryPropertyFlags

	buffer BufferHandle
	image  ImageHandle
	desc   ImageDesc
	alloc  Allocation
}

type deferredRelease struct {
	kind   ResourceKind
	buffer BufferHandle
	image  ImageHandle
	alloc  Allocation
	// retireAfter is the frame number that must have completed before the
	// range can be physically reclaimed.
	retireAfter uint64
}

// UploadOp is a staged copy waiting to be recorded into the next submission.
type UploadOp struct {
	Staging BufferHandle
	Buffer  BufferHandle
	Image   ImageHandle
	Extent  Extent2D
	Size    uint64

	stagingHandle Handle
}

// Registry owns every buffer and image built on allocator memory and hands
// out opaque handles for them. Destruction is never immediate: destroyed
// resources sit on a deferred-release list tagged with the submitting frame
// and are only freed once the frame clock shows that frame's fence has
// signaled, so no GPU-in-flight range is ever reclaimed early.
type Registry struct {
	mu     sync.Mutex
	device Device
	alloc  *Allocator
	clock  *FrameClock

	slots   []resourceSlot
	free    []uint32
	pending []deferredRelease
	uploads []UploadOp
}

func NewRegistry(device Device, alloc *Allocator, clock *FrameClock) *Registry {
	return &Registry{
		device: device,
		alloc:  alloc,
		clock:  clock,
		// Slot 0 is reserved so the zero Handle stays invalid.
		slots: make([]resourceSlot, 1),
	}
}

// CreateBuffer builds a buffer of the given size and usage on allocator
// memory. An empty name gets a generated one for logging.
func (r *Registry) CreateBuffer(name string, size uint64, usage BufferUsage, props MemoryPropertyFlags) (Handle, error) {
	buffer, reqs, err := r.device.CreateBuffer(size, usage)
	if err != nil {
		return Handle{}, fmt.Errorf("creating buffer %q: %w", name, err)
	}

	alloc, err := r.alloc.Allocate(reqs.Size, reqs.Alignment, props, reqs.TypeBits)
	if err != nil {
		r.device.DestroyBuffer(buffer)
		return Handle{}, fmt.Errorf("backing buffer %q: %w", name, err)
	}
	if err := r.device.BindBufferMemory(buffer, alloc.Block, alloc.Offset); err != nil {
		r.device.DestroyBuffer(buffer)
		r.alloc.Free(alloc)
		return Handle{}, fmt.Errorf("binding buffer %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.occupy(resourceSlot{
		kind:   ResourceBuffer,
		name:   resourceName(name),
		size:   size,
		props:  props,
		buffer: buffer,
		alloc:  alloc,
	}), nil
}

// CreateImage builds an image on allocator memory.
func (r *Registry) CreateImage(name string, desc ImageDesc, props MemoryPropertyFlags) (Handle, error) {
	image, reqs, err := r.device.CreateImage(desc)
	if err != nil {
		return Handle{}, fmt.Errorf("creating image %q: %w", name, err)
	}

	alloc, err := r.alloc.Allocate(reqs.Size, reqs.Alignment, props, reqs.TypeBits)
	if err != nil {
		r.device.DestroyImage(image)
		return Handle{}, fmt.Errorf("backing image %q: %w", name, err)
	}
	if err := r.device.BindImageMemory(image, alloc.Block, alloc.Offset); err != nil {
		r.device.DestroyImage(image)
		r.alloc.Free(alloc)
		return Handle{}, fmt.Errorf("binding image %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.occupy(resourceSlot{
		kind:  ResourceImage,
		name:  resourceName(name),
		size:  reqs.Size,
		props: props,
		image: image,
		desc:  desc,
		alloc: alloc,
	}), nil
}

// Upload writes data into a resource. Host-visible buffers take a direct
// mapped write; device-local resources stage through a temporary
// host-visible buffer whose copy is recorded at the next submission and
// whose release is deferred like any other destroy.
func (r *Registry) Upload(h Handle, data []byte) error {
	r.mu.Lock()
	slot, err := r.lookup(h)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	target := *slot
	r.mu.Unlock()

	if target.kind == ResourceBuffer && target.props.HostVisible() {
		if uint64(len(data)) > target.size {
			return fmt.Errorf("upload of %d bytes into %d byte buffer %q", len(data), target.size, target.name)
		}
		return r.device.WriteBlock(target.alloc.Block, target.alloc.Offset, data)
	}

	stagingHandle, err := r.CreateBuffer(target.name+".staging", uint64(len(data)), BufferUsageTransferSrc, MemoryHostVisible|MemoryHostCoherent)
	if err != nil {
		return err
	}
	r.mu.Lock()
	staging := r.slots[stagingHandle.Index]
	r.mu.Unlock()
	if err := r.device.WriteBlock(staging.alloc.Block, staging.alloc.Offset, data); err != nil {
		r.Destroy(stagingHandle)
		return err
	}

	op := UploadOp{
		Staging:       staging.buffer,
		Size:          uint64(len(data)),
		stagingHandle: stagingHandle,
	}
	switch target.kind {
	case ResourceBuffer:
		op.Buffer = target.buffer
	case ResourceImage:
		op.Image = target.image
		op.Extent = target.desc.Extent
	}

	r.mu.Lock()
	r.uploads = append(r.uploads, op)
	r.mu.Unlock()
	return nil
}

// Destroy invalidates the handle immediately and queues the underlying
// objects for release once every frame that may reference them completes.
func (r *Registry) Destroy(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, err := r.lookup(h)
	if err != nil {
		return err
	}

	r.pending = append(r.pending, deferredRelease{
		kind:   slot.kind,
		buffer: slot.buffer,
		image:  slot.image,
		alloc:  slot.alloc,
		// The frame currently being recorded submits as Submitted()+1; it
		// is the last one that can legally reference this resource.
		retireAfter: r.clock.Submitted() + 1,
	})

	slot.live = false
	slot.generation++
	slot.buffer = 0
	slot.image = 0
	r.free = append(r.free, h.Index)
	return nil
}

// CollectGarbage frees every deferred release whose retire frame has
// completed. Called by the frame scheduler right after it observes a slot
// fence, and during teardown after the full drain.
func (r *Registry) CollectGarbage() {
	completed := r.clock.Completed()

	r.mu.Lock()
	var retained []deferredRelease
	var due []deferredRelease
	for _, d := range r.pending {
		if d.retireAfter <= completed {
			due = append(due, d)
		} else {
			retained = append(retained, d)
		}
	}
	r.pending = retained
	r.mu.Unlock()

	for _, d := range due {
		switch d.kind {
		case ResourceBuffer:
			r.device.DestroyBuffer(d.buffer)
		case ResourceImage:
			r.device.DestroyImage(d.image)
		}
		if err := r.alloc.Free(d.alloc); err != nil {
			core.LogError("deferred free: %v", err)
		}
	}
}

// DrainUploads hands the staged copies to the frame scheduler and schedules
// the staging buffers for deferred release.
func (r *Registry) DrainUploads() []UploadOp {
	r.mu.Lock()
	ops := r.uploads
	r.uploads = nil
	r.mu.Unlock()

	for _, op := range ops {
		// Safe to queue now: the copy is part of the frame about to submit,
		// so the staging buffer outlives it by the usual N-cycle deferral.
		if err := r.Destroy(op.stagingHandle); err != nil {
			core.LogError("retiring staging buffer: %v", err)
		}
	}
	return ops
}

// PendingReleases reports how many destroys are still waiting on frame
// completion.
func (r *Registry) PendingReleases() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Buffer resolves a handle to the device buffer for command recording.
func (r *Registry) Buffer(h Handle) (BufferHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, err := r.lookup(h)
	if err != nil {
		return 0, err
	}
	if slot.kind != ResourceBuffer {
		return 0, fmt.Errorf("handle %v is not a buffer", h)
	}
	return slot.buffer, nil
}

// Image resolves a handle to the device image.
func (r *Registry) Image(h Handle) (ImageHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, err := r.lookup(h)
	if err != nil {
		return 0, err
	}
	if slot.kind != ResourceImage {
		return 0, fmt.Errorf("handle %v is not an image", h)
	}
	return slot.image, nil
}

// ReleaseAll destroys every live resource and flushes the deferred list.
// Only legal after the frame scheduler has drained all in-flight frames.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	for i := range r.slots {
		slot := &r.slots[i]
		if !slot.live {
			continue
		}
		switch slot.kind {
		case ResourceBuffer:
			r.device.DestroyBuffer(slot.buffer)
		case ResourceImage:
			r.device.DestroyImage(slot.image)
		}
		if err := r.alloc.Free(slot.alloc); err != nil {
			core.LogError("releasing %q: %v", slot.name, err)
		}
		slot.live = false
		slot.generation++
	}
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, d := range pending {
		switch d.kind {
		case ResourceBuffer:
			r.device.DestroyBuffer(d.buffer)
		case ResourceImage:
			r.device.DestroyImage(d.image)
		}
		if err := r.alloc.Free(d.alloc); err != nil {
			core.LogError("flushing deferred release: %v", err)
		}
	}
}

func (r *Registry) occupy(slot resourceSlot) Handle {
	slot.live = true
	var index uint32
	if n := len(r.free); n > 0 {
		index = r.free[n-1]
		r.free = r.free[:n-1]
		slot.generation = r.slots[index].generation
		r.slots[index] = slot
	} else {
		index = uint32(len(r.slots))
		r.slots = append(r.slots, slot)
	}
	return Handle{Index: index, Generation: slot.generation}
}

// lookup must be called with the mutex held.
func (r *Registry) lookup(h Handle) (*resourceSlot, error) {
	if h.Index == 0 || h.Index >= uint32(len(r.slots)) {
		return nil, fmt.Errorf("invalid resource handle %v", h)
	}
	slot := &r.slots[h.Index]
	if !slot.live || slot.generation != h.Generation {
		return nil, fmt.Errorf("stale resource handle %v", h)
	}
	return slot, nil
}

func resourceName(name string) string {
	if name != "" {
		return name
	}
	return uuid.New().String()
}
