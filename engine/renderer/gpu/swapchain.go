package gpu

import (
	"errors"
	"fmt"
	"time"

	"github.com/prismatik/lumen/engine/core"
)

// Swapchain owns the presentable image ring, the depth attachment, the main
// render pass and one framebuffer per swapchain image. The swapchain itself
// is never mutated in place: resize or an out-of-date signal from the
// presentation engine replaces it wholesale, after the caller has drained
// all in-flight frames.
type Swapchain struct {
	device Device
	alloc  *Allocator

	info        *SwapchainInfo
	presentMode PresentMode

	pass         RenderPassHandle
	depthImage   ImageHandle
	depthAlloc   Allocation
	framebuffers []FramebufferHandle

	outdated bool
	rebuilds int
}

func NewSwapchain(device Device, alloc *Allocator, extent Extent2D, mode PresentMode) (*Swapchain, error) {
	sc := &Swapchain{
		device:      device,
		alloc:       alloc,
		presentMode: mode,
	}
	if err := sc.build(extent, 0); err != nil {
		return nil, err
	}

	pass, err := device.CreateRenderPass(sc.info.Format, device.Info().DepthFormat)
	if err != nil {
		sc.teardownImages()
		return nil, fmt.Errorf("creating main render pass: %w", err)
	}
	sc.pass = pass

	if err := sc.buildFramebuffers(); err != nil {
		sc.device.DestroyRenderPass(sc.pass)
		sc.teardownImages()
		return nil, err
	}

	core.LogInfo("swapchain created: %dx%d, %d images", sc.info.Extent.Width, sc.info.Extent.Height, len(sc.info.Images))
	return sc, nil
}

// AcquireNextImage asks the presentation engine for the next image in the
// ring; signal fires on the GPU once the image is actually available. An
// out-of-date surface returns core.ErrSwapchainOutdated and marks the
// swapchain for recreation.
func (sc *Swapchain) AcquireNextImage(timeout time.Duration, signal SemaphoreHandle) (uint32, error) {
	if sc.outdated {
		return 0, core.ErrSwapchainOutdated
	}
	index, err := sc.device.AcquireNextImage(sc.info.Handle, timeout, signal)
	if err != nil {
		if errors.Is(err, core.ErrSwapchainOutdated) {
			sc.outdated = true
		}
		return 0, err
	}
	return index, nil
}

// Present returns the image to the swapchain, waiting on wait (the frame's
// render-finished signal). Out-of-date results mark the swapchain for
// recreation, same as acquire.
func (sc *Swapchain) Present(imageIndex uint32, wait SemaphoreHandle) error {
	err := sc.device.Present(sc.info.Handle, imageIndex, wait)
	if err != nil && errors.Is(err, core.ErrSwapchainOutdated) {
		sc.outdated = true
	}
	return err
}

// Recreate rebuilds the swapchain at the new extent. Callers must have
// stopped submitting and drained all in-flight frames first. Calling with
// the current extent while the swapchain is still valid is detected as a
// no-op; the outdated flag forces a rebuild regardless of extent.
func (sc *Swapchain) Recreate(extent Extent2D) error {
	if !sc.outdated && extent == sc.info.Extent {
		core.LogDebug("recreate with current extent and valid swapchain, skipping")
		return nil
	}
	if extent.Width == 0 || extent.Height == 0 {
		// Minimized; keep the old swapchain and stay outdated until a
		// usable extent arrives.
		core.LogDebug("recreate with zero extent, deferring")
		sc.outdated = true
		return nil
	}

	if err := sc.device.WaitIdle(); err != nil {
		return fmt.Errorf("draining before swapchain recreate: %w", err)
	}

	for _, fb := range sc.framebuffers {
		sc.device.DestroyFramebuffer(fb)
	}
	sc.framebuffers = nil
	sc.destroyDepth()

	old := sc.info.Handle
	if err := sc.build(extent, old); err != nil {
		return err
	}
	sc.device.DestroySwapchain(old)

	if err := sc.buildFramebuffers(); err != nil {
		return err
	}

	sc.outdated = false
	sc.rebuilds++
	core.LogInfo("swapchain recreated: %dx%d", extent.Width, extent.Height)
	return nil
}

// MarkOutdated forces the next Recreate to rebuild, used when the surface
// layer reports invalidation out of band.
func (sc *Swapchain) MarkOutdated() {
	sc.outdated = true
}

func (sc *Swapchain) Outdated() bool {
	return sc.outdated
}

func (sc *Swapchain) Extent() Extent2D {
	return sc.info.Extent
}

func (sc *Swapchain) Format() Format {
	return sc.info.Format
}

func (sc *Swapchain) RenderPass() RenderPassHandle {
	return sc.pass
}

func (sc *Swapchain) Framebuffer(imageIndex uint32) FramebufferHandle {
	return sc.framebuffers[imageIndex]
}

func (sc *Swapchain) ImageCount() int {
	return len(sc.info.Images)
}

// Rebuilds reports how many times the swapchain has been replaced since
// creation.
func (sc *Swapchain) Rebuilds() int {
	return sc.rebuilds
}

// Destroy tears everything down. Callers must have drained first.
func (sc *Swapchain) Destroy() {
	for _, fb := range sc.framebuffers {
		sc.device.DestroyFramebuffer(fb)
	}
	sc.framebuffers = nil
	sc.device.DestroyRenderPass(sc.pass)
	sc.teardownImages()
}

func (sc *Swapchain) build(extent Extent2D, old SwapchainHandle) error {
	info, err := sc.device.CreateSwapchain(SwapchainDesc{
		Extent:       extent,
		PresentMode:  sc.presentMode,
		OldSwapchain: old,
	})
	if err != nil {
		return fmt.Errorf("creating swapchain: %w", err)
	}
	sc.info = info

	depthFormat := sc.device.Info().DepthFormat
	if depthFormat == FormatUndefined {
		return fmt.Errorf("device reports no usable depth format")
	}
	image, reqs, err := sc.device.CreateImage(ImageDesc{
		Extent: info.Extent,
		Format: depthFormat,
		Usage:  ImageUsageDepthAttachment,
	})
	if err != nil {
		return fmt.Errorf("creating depth attachment: %w", err)
	}
	alloc, err := sc.alloc.Allocate(reqs.Size, reqs.Alignment, MemoryDeviceLocal, reqs.TypeBits)
	if err != nil {
		sc.device.DestroyImage(image)
		return fmt.Errorf("backing depth attachment: %w", err)
	}
	if err := sc.device.BindImageMemory(image, alloc.Block, alloc.Offset); err != nil {
		sc.device.DestroyImage(image)
		sc.alloc.Free(alloc)
		return fmt.Errorf("binding depth attachment: %w", err)
	}
	sc.depthImage = image
	sc.depthAlloc = alloc
	return nil
}

func (sc *Swapchain) buildFramebuffers() error {
	sc.framebuffers = make([]FramebufferHandle, len(sc.info.Images))
	for i, img := range sc.info.Images {
		fb, err := sc.device.CreateFramebuffer(sc.pass, img, sc.depthImage, sc.info.Extent)
		if err != nil {
			return fmt.Errorf("creating framebuffer %d: %w", i, err)
		}
		sc.framebuffers[i] = fb
	}
	return nil
}

func (sc *Swapchain) destroyDepth() {
	if sc.depthImage != 0 {
		sc.device.DestroyImage(sc.depthImage)
		if err := sc.alloc.Free(sc.depthAlloc); err != nil {
			core.LogError("freeing depth attachment: %v", err)
		}
		sc.depthImage = 0
	}
}

func (sc *Swapchain) teardownImages() {
	sc.destroyDepth()
	if sc.info != nil {
		sc.device.DestroySwapchain(sc.info.Handle)
		sc.info = nil
	}
}
