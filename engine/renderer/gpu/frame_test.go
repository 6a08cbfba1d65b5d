package gpu_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismatik/lumen/engine/core"
	"github.com/prismatik/lumen/engine/renderer/gpu"
	"github.com/prismatik/lumen/engine/renderer/gpu/gputest"
)

type frameRig struct {
	device    *gputest.Device
	alloc     *gpu.Allocator
	clock     *gpu.FrameClock
	registry  *gpu.Registry
	swapchain *gpu.Swapchain
	scheduler *gpu.FrameScheduler
}

func newFrameRig(t *testing.T, framesInFlight int) *frameRig {
	t.Helper()
	device := gputest.NewDevice()
	alloc := gpu.NewAllocator(device, 1<<20)
	clock := gpu.NewFrameClock()
	registry := gpu.NewRegistry(device, alloc, clock)
	sc, err := gpu.NewSwapchain(device, alloc, gpu.Extent2D{Width: 800, Height: 600}, gpu.PresentModeFIFO)
	require.NoError(t, err)
	fs, err := gpu.NewFrameScheduler(device, clock, sc, registry, framesInFlight)
	require.NoError(t, err)
	return &frameRig{
		device:    device,
		alloc:     alloc,
		clock:     clock,
		registry:  registry,
		swapchain: sc,
		scheduler: fs,
	}
}

func (r *frameRig) teardown(t *testing.T) {
	t.Helper()
	r.scheduler.Destroy()
	r.registry.ReleaseAll()
	r.swapchain.Destroy()
	r.alloc.Release()
	assert.Zero(t, r.device.LiveTotal())
}

func noDraws(cmd gpu.CommandBuffer, slot int, imageIndex uint32) error {
	return nil
}

func TestSchedulerRunsFrames(t *testing.T) {
	for _, depth := range []int{2, 3} {
		rig := newFrameRig(t, depth)

		// Enough cycles that any premature slot reuse would trip the fake
		// device's fence and resubmission checks.
		const frames = 1000
		recorded := 0
		for i := 0; i < frames; i++ {
			err := rig.scheduler.RenderFrame(func(cmd gpu.CommandBuffer, slot int, imageIndex uint32) error {
				recorded++
				assert.Less(t, slot, depth)
				return nil
			})
			require.NoError(t, err)
		}

		assert.Equal(t, frames, recorded)
		c := rig.device.Counters()
		assert.Equal(t, frames, c.Acquires)
		assert.Equal(t, frames, c.Submits)
		assert.Equal(t, frames, c.Presents)
		assert.EqualValues(t, frames, rig.clock.Submitted())
		assert.Empty(t, rig.device.Violations())

		require.NoError(t, rig.scheduler.Drain())
		assert.EqualValues(t, frames, rig.clock.Completed())
		rig.teardown(t)
	}
}

func TestSchedulerRotatesSlots(t *testing.T) {
	rig := newFrameRig(t, 3)
	defer rig.teardown(t)

	var slots []int
	for i := 0; i < 6; i++ {
		require.NoError(t, rig.scheduler.RenderFrame(func(cmd gpu.CommandBuffer, slot int, imageIndex uint32) error {
			slots = append(slots, slot)
			return nil
		}))
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, slots)
}

func TestSchedulerRecreatesOnOutdatedAcquire(t *testing.T) {
	rig := newFrameRig(t, 2)
	defer rig.teardown(t)

	require.NoError(t, rig.scheduler.RenderFrame(noDraws))

	rig.device.AcquireResults = []error{core.ErrSwapchainOutdated}
	require.NoError(t, rig.scheduler.RenderFrame(noDraws), "outdated acquire is handled, not fatal")
	assert.Equal(t, 1, rig.swapchain.Rebuilds())

	// The next frame renders normally against the new swapchain.
	require.NoError(t, rig.scheduler.RenderFrame(noDraws))
	assert.Empty(t, rig.device.Violations())
}

func TestSchedulerRecreatesOnOutdatedPresent(t *testing.T) {
	rig := newFrameRig(t, 2)
	defer rig.teardown(t)

	rig.device.PresentResults = []error{core.ErrSwapchainOutdated}
	require.NoError(t, rig.scheduler.RenderFrame(noDraws))
	assert.Equal(t, 1, rig.swapchain.Rebuilds())

	// The submission itself completed; the clock must reflect it.
	assert.EqualValues(t, 1, rig.clock.Submitted())
	assert.EqualValues(t, 1, rig.clock.Completed())

	require.NoError(t, rig.scheduler.RenderFrame(noDraws))
	assert.Empty(t, rig.device.Violations())
}

func TestSchedulerPropagatesDeviceLossOnSubmit(t *testing.T) {
	rig := newFrameRig(t, 2)

	rig.device.SubmitResults = []error{core.ErrDeviceLost}
	err := rig.scheduler.RenderFrame(noDraws)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDeviceLost))
}

func TestSchedulerPropagatesDeviceLossOnPresent(t *testing.T) {
	rig := newFrameRig(t, 2)

	rig.device.PresentResults = []error{core.ErrDeviceLost}
	err := rig.scheduler.RenderFrame(noDraws)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDeviceLost))
}

func TestSchedulerPropagatesRecordError(t *testing.T) {
	rig := newFrameRig(t, 2)
	defer rig.teardown(t)

	boom := errors.New("bad draw data")
	err := rig.scheduler.RenderFrame(func(cmd gpu.CommandBuffer, slot int, imageIndex uint32) error {
		return boom
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Zero(t, rig.device.Counters().Submits, "a failed recording must not be submitted")
}

func TestSchedulerResizeRequestCoalesces(t *testing.T) {
	rig := newFrameRig(t, 2)
	defer rig.teardown(t)

	rig.scheduler.RequestResize(gpu.Extent2D{Width: 640, Height: 480})
	rig.scheduler.RequestResize(gpu.Extent2D{Width: 1024, Height: 768})

	// The resize frame recreates instead of rendering.
	recorded := false
	require.NoError(t, rig.scheduler.RenderFrame(func(cmd gpu.CommandBuffer, slot int, imageIndex uint32) error {
		recorded = true
		return nil
	}))
	assert.False(t, recorded)
	assert.Zero(t, rig.device.Counters().Acquires)
	assert.Equal(t, 1, rig.swapchain.Rebuilds())
	assert.Equal(t, gpu.Extent2D{Width: 1024, Height: 768}, rig.swapchain.Extent())

	require.NoError(t, rig.scheduler.RenderFrame(noDraws))
	assert.Equal(t, 1, rig.device.Counters().Acquires)
}

func TestSchedulerWaitOldest(t *testing.T) {
	rig := newFrameRig(t, 2)
	defer rig.teardown(t)

	err := rig.scheduler.WaitOldest()
	require.Error(t, err, "nothing in flight to wait for")

	require.NoError(t, rig.scheduler.RenderFrame(noDraws))
	require.NoError(t, rig.scheduler.WaitOldest())
	assert.EqualValues(t, 1, rig.clock.Completed())
}

func TestSchedulerFlushesStagedUploads(t *testing.T) {
	rig := newFrameRig(t, 2)
	defer rig.teardown(t)

	payload := make([]byte, 512)
	mesh, err := rig.registry.CreateBuffer("mesh vertices", 512, gpu.BufferUsageVertex|gpu.BufferUsageTransferDst, gpu.MemoryDeviceLocal)
	require.NoError(t, err)
	require.NoError(t, rig.registry.Upload(mesh, payload))

	var copies int
	require.NoError(t, rig.scheduler.RenderFrame(func(cmd gpu.CommandBuffer, slot int, imageIndex uint32) error {
		copies = cmd.(*gputest.CommandBuffer).Copies
		return nil
	}))
	assert.Equal(t, 1, copies, "staged upload must be recorded before the pass")

	// The staging buffer is reclaimed once the frame's fence signals.
	require.NoError(t, rig.scheduler.Drain())
	require.NoError(t, rig.scheduler.RenderFrame(noDraws))
	require.NoError(t, rig.scheduler.Drain())
	assert.Equal(t, 1, rig.device.Live()["buffers"])

	require.NoError(t, rig.registry.Destroy(mesh))
}

func TestSchedulerDestroyReleasesSlots(t *testing.T) {
	rig := newFrameRig(t, 3)

	for i := 0; i < 4; i++ {
		require.NoError(t, rig.scheduler.RenderFrame(noDraws))
	}
	rig.scheduler.Destroy()

	live := rig.device.Live()
	assert.Zero(t, live["fences"])
	assert.Zero(t, live["semaphores"])
	assert.Zero(t, live["cmdBuffers"])
	assert.Empty(t, rig.device.Violations())
}
