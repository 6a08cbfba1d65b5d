package gpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismatik/lumen/engine/renderer/gpu"
	"github.com/prismatik/lumen/engine/renderer/gpu/gputest"
)

func newRegistry(t *testing.T) (*gputest.Device, *gpu.FrameClock, *gpu.Registry) {
	t.Helper()
	device := gputest.NewDevice()
	alloc := gpu.NewAllocator(device, 1<<20)
	clock := gpu.NewFrameClock()
	return device, clock, gpu.NewRegistry(device, alloc, clock)
}

func TestRegistryHandlesResolve(t *testing.T) {
	device, _, reg := newRegistry(t)

	h, err := reg.CreateBuffer("verts", 1024, gpu.BufferUsageVertex, gpu.MemoryDeviceLocal)
	require.NoError(t, err)
	assert.False(t, h.IsZero())

	buffer, err := reg.Buffer(h)
	require.NoError(t, err)
	assert.NotZero(t, buffer)

	_, err = reg.Image(h)
	assert.Error(t, err, "buffer handle must not resolve as an image")
	_, err = reg.Buffer(gpu.Handle{})
	assert.Error(t, err)

	assert.Equal(t, 1, device.Live()["buffers"])
}

func TestRegistryUploadHostVisibleIsDirect(t *testing.T) {
	device, _, reg := newRegistry(t)

	h, err := reg.CreateBuffer("ubo", 256, gpu.BufferUsageUniform, gpu.MemoryHostVisible|gpu.MemoryHostCoherent)
	require.NoError(t, err)

	require.NoError(t, reg.Upload(h, []byte{1, 2, 3, 4}))

	assert.Equal(t, 1, device.Counters().BlockWrites)
	assert.Empty(t, reg.DrainUploads(), "host-visible writes must not stage")
	assert.Equal(t, 1, device.Live()["buffers"], "no staging buffer should exist")
}

func TestRegistryUploadDeviceLocalStages(t *testing.T) {
	device, clock, reg := newRegistry(t)

	h, err := reg.CreateBuffer("verts", 1024, gpu.BufferUsageVertex|gpu.BufferUsageTransferDst, gpu.MemoryDeviceLocal)
	require.NoError(t, err)

	data := make([]byte, 1024)
	require.NoError(t, reg.Upload(h, data))
	assert.Equal(t, 2, device.Live()["buffers"], "staging buffer should be live until the copy retires")

	ops := reg.DrainUploads()
	require.Len(t, ops, 1)
	target, err := reg.Buffer(h)
	require.NoError(t, err)
	assert.Equal(t, target, ops[0].Buffer)
	assert.NotZero(t, ops[0].Staging)
	assert.Equal(t, uint64(1024), ops[0].Size)

	// Draining queued the staging buffer for deferred release; it frees
	// only once the submitting frame completes.
	assert.Equal(t, 1, reg.PendingReleases())
	reg.CollectGarbage()
	assert.Equal(t, 2, device.Live()["buffers"])

	clock.FrameSubmitted()
	clock.FrameCompleted(1)
	reg.CollectGarbage()
	assert.Zero(t, reg.PendingReleases())
	assert.Equal(t, 1, device.Live()["buffers"])
}

func TestRegistryDestroyIsDeferred(t *testing.T) {
	device, clock, reg := newRegistry(t)

	h, err := reg.CreateBuffer("verts", 1024, gpu.BufferUsageVertex, gpu.MemoryDeviceLocal)
	require.NoError(t, err)

	require.NoError(t, reg.Destroy(h))

	// The handle dies immediately even though the object lives on.
	_, err = reg.Buffer(h)
	assert.Error(t, err)
	assert.Error(t, reg.Destroy(h), "double destroy must be rejected")
	assert.Equal(t, 1, device.Live()["buffers"])

	// Not yet: the frame that may reference it has not completed.
	reg.CollectGarbage()
	assert.Equal(t, 1, device.Live()["buffers"])

	clock.FrameSubmitted()
	clock.FrameCompleted(1)
	reg.CollectGarbage()
	assert.Zero(t, device.Live()["buffers"])
	assert.Empty(t, device.Violations())
}

func TestRegistryRecyclesSlotsWithFreshGeneration(t *testing.T) {
	_, clock, reg := newRegistry(t)

	first, err := reg.CreateBuffer("a", 256, gpu.BufferUsageVertex, gpu.MemoryDeviceLocal)
	require.NoError(t, err)
	require.NoError(t, reg.Destroy(first))

	second, err := reg.CreateBuffer("b", 256, gpu.BufferUsageVertex, gpu.MemoryDeviceLocal)
	require.NoError(t, err)

	assert.Equal(t, first.Index, second.Index, "slot should be recycled")
	assert.NotEqual(t, first.Generation, second.Generation)

	_, err = reg.Buffer(first)
	assert.Error(t, err, "stale handle must not resolve")
	_, err = reg.Buffer(second)
	assert.NoError(t, err)

	clock.FrameSubmitted()
	clock.FrameCompleted(1)
	reg.CollectGarbage()
}

func TestRegistryUploadBoundsChecked(t *testing.T) {
	_, _, reg := newRegistry(t)

	h, err := reg.CreateBuffer("ubo", 16, gpu.BufferUsageUniform, gpu.MemoryHostVisible|gpu.MemoryHostCoherent)
	require.NoError(t, err)

	assert.Error(t, reg.Upload(h, make([]byte, 32)))
}

func TestRegistryImageLifecycle(t *testing.T) {
	device, clock, reg := newRegistry(t)

	h, err := reg.CreateImage("tex", gpu.ImageDesc{
		Extent: gpu.Extent2D{Width: 64, Height: 64},
		Format: gpu.FormatR8G8B8A8Srgb,
		Usage:  gpu.ImageUsageSampled | gpu.ImageUsageTransferDst,
	}, gpu.MemoryDeviceLocal)
	require.NoError(t, err)

	pixels := make([]byte, 64*64*4)
	require.NoError(t, reg.Upload(h, pixels))

	ops := reg.DrainUploads()
	require.Len(t, ops, 1)
	image, err := reg.Image(h)
	require.NoError(t, err)
	assert.Equal(t, image, ops[0].Image)
	assert.Equal(t, gpu.Extent2D{Width: 64, Height: 64}, ops[0].Extent)

	require.NoError(t, reg.Destroy(h))
	clock.FrameSubmitted()
	clock.FrameCompleted(1)
	reg.CollectGarbage()
	assert.Zero(t, device.Live()["images"])
}

func TestRegistryReleaseAllFlushesEverything(t *testing.T) {
	device, _, reg := newRegistry(t)

	for i := 0; i < 4; i++ {
		_, err := reg.CreateBuffer("", 256, gpu.BufferUsageVertex, gpu.MemoryDeviceLocal)
		require.NoError(t, err)
	}
	h, err := reg.CreateBuffer("doomed", 256, gpu.BufferUsageVertex, gpu.MemoryDeviceLocal)
	require.NoError(t, err)
	require.NoError(t, reg.Destroy(h))

	reg.ReleaseAll()
	assert.Zero(t, device.Live()["buffers"])
	assert.Zero(t, reg.PendingReleases())
	assert.Empty(t, device.Violations())
}
