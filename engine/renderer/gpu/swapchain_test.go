package gpu_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismatik/lumen/engine/core"
	"github.com/prismatik/lumen/engine/renderer/gpu"
	"github.com/prismatik/lumen/engine/renderer/gpu/gputest"
)

func newSwapchain(t *testing.T, extent gpu.Extent2D) (*gputest.Device, *gpu.Allocator, *gpu.Swapchain) {
	t.Helper()
	device := gputest.NewDevice()
	alloc := gpu.NewAllocator(device, 1<<20)
	sc, err := gpu.NewSwapchain(device, alloc, extent, gpu.PresentModeFIFO)
	require.NoError(t, err)
	return device, alloc, sc
}

func TestSwapchainCreation(t *testing.T) {
	device, _, sc := newSwapchain(t, gpu.Extent2D{Width: 800, Height: 600})

	assert.Equal(t, gpu.Extent2D{Width: 800, Height: 600}, sc.Extent())
	assert.NotEqual(t, gpu.FormatUndefined, sc.Format())
	assert.Equal(t, 3, sc.ImageCount())
	assert.False(t, sc.Outdated())
	assert.Zero(t, sc.Rebuilds())

	assert.Equal(t, 1, device.Live()["swapchains"])
	assert.Equal(t, 1, device.Live()["renderPasses"])
	assert.Equal(t, 3, device.Live()["framebuffers"])
}

func TestSwapchainRecreateSameExtentIsNoop(t *testing.T) {
	_, _, sc := newSwapchain(t, gpu.Extent2D{Width: 800, Height: 600})

	require.NoError(t, sc.Recreate(gpu.Extent2D{Width: 800, Height: 600}))
	assert.Zero(t, sc.Rebuilds())
}

func TestSwapchainRecreateOnResize(t *testing.T) {
	device, _, sc := newSwapchain(t, gpu.Extent2D{Width: 800, Height: 600})

	require.NoError(t, sc.Recreate(gpu.Extent2D{Width: 1024, Height: 768}))
	assert.Equal(t, 1, sc.Rebuilds())
	assert.Equal(t, gpu.Extent2D{Width: 1024, Height: 768}, sc.Extent())

	// The old ring and its framebuffers must be gone.
	assert.Equal(t, 1, device.Live()["swapchains"])
	assert.Equal(t, 3, device.Live()["framebuffers"])
}

func TestSwapchainMarkOutdatedForcesRebuild(t *testing.T) {
	_, _, sc := newSwapchain(t, gpu.Extent2D{Width: 800, Height: 600})

	sc.MarkOutdated()
	require.NoError(t, sc.Recreate(gpu.Extent2D{Width: 800, Height: 600}))
	assert.Equal(t, 1, sc.Rebuilds())
	assert.False(t, sc.Outdated())
}

func TestSwapchainZeroExtentDefersRebuild(t *testing.T) {
	_, _, sc := newSwapchain(t, gpu.Extent2D{Width: 800, Height: 600})

	// Minimized window: keep the old swapchain alive and wait.
	require.NoError(t, sc.Recreate(gpu.Extent2D{}))
	assert.True(t, sc.Outdated())
	assert.Zero(t, sc.Rebuilds())

	require.NoError(t, sc.Recreate(gpu.Extent2D{Width: 640, Height: 480}))
	assert.False(t, sc.Outdated())
	assert.Equal(t, 1, sc.Rebuilds())
}

func TestSwapchainAcquireDetectsOutdatedSurface(t *testing.T) {
	device, _, sc := newSwapchain(t, gpu.Extent2D{Width: 800, Height: 600})
	signal, err := device.CreateSemaphore()
	require.NoError(t, err)

	device.AcquireResults = []error{core.ErrSwapchainOutdated}
	_, err = sc.AcquireNextImage(time.Second, signal)
	require.ErrorIs(t, err, core.ErrSwapchainOutdated)
	assert.True(t, sc.Outdated())

	// Once marked, acquire refuses without touching the device.
	before := device.Counters().Acquires
	_, err = sc.AcquireNextImage(time.Second, signal)
	require.ErrorIs(t, err, core.ErrSwapchainOutdated)
	assert.Equal(t, before, device.Counters().Acquires)
}

func TestSwapchainPresentDetectsOutdatedSurface(t *testing.T) {
	device, _, sc := newSwapchain(t, gpu.Extent2D{Width: 800, Height: 600})
	wait, err := device.CreateSemaphore()
	require.NoError(t, err)

	device.PresentResults = []error{core.ErrSwapchainOutdated}
	err = sc.Present(0, wait)
	require.ErrorIs(t, err, core.ErrSwapchainOutdated)
	assert.True(t, sc.Outdated())
}

func TestSwapchainDestroyIsBalanced(t *testing.T) {
	device, alloc, sc := newSwapchain(t, gpu.Extent2D{Width: 800, Height: 600})

	sc.Destroy()
	alloc.Release()
	assert.Zero(t, device.LiveTotal())
	assert.Empty(t, device.Violations())
}
