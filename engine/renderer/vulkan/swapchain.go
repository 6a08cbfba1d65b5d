package vulkan

import (
	"fmt"
	"math"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/prismatik/lumen/engine/core"
	"github.com/prismatik/lumen/engine/renderer/gpu"
)

// pickSurfaceFormat prefers 8-bit BGRA sRGB with a nonlinear color space and
// falls back to whatever the surface offers first.
func pickSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Srgb && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return formats[0]
}

func pickPresentMode(requested gpu.PresentMode, available []vk.PresentMode) vk.PresentMode {
	if requested == gpu.PresentModeMailbox {
		for _, m := range available {
			if m == vk.PresentModeMailbox {
				return m
			}
		}
	}
	// FIFO is the only mode every driver supports.
	return vk.PresentModeFifo
}

func clampExtent(requested gpu.Extent2D, caps vk.SurfaceCapabilities) vk.Extent2D {
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	clamp := func(v, lo, hi uint32) uint32 {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
	return vk.Extent2D{
		Width:  clamp(requested.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(requested.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func (d *Device) CreateSwapchain(desc gpu.SwapchainDesc) (*gpu.SwapchainInfo, error) {
	if err := d.ctx.querySwapchainSupport(); err != nil {
		return nil, err
	}
	support := d.ctx.SwapchainSupport
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return nil, fmt.Errorf("surface reports no formats or present modes: %w", core.ErrSwapchainOutdated)
	}

	surfaceFormat := pickSurfaceFormat(support.Formats)
	presentMode := pickPresentMode(desc.PresentMode, support.PresentModes)
	extent := clampExtent(desc.Extent, support.Capabilities)

	imageCount := support.Capabilities.MinImageCount + 1
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.ctx.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}
	if d.ctx.GraphicsQueueIndex != d.ctx.PresentQueueIndex {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{
			uint32(d.ctx.GraphicsQueueIndex),
			uint32(d.ctx.PresentQueueIndex),
		}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	d.mu.Lock()
	if old, ok := d.swapchains[desc.OldSwapchain]; ok {
		createInfo.OldSwapchain = old.handle
	}
	d.mu.Unlock()

	var swapchain vk.Swapchain
	if err := d.locks.SafeCall(swapchainManagement, func() error {
		return resultErr("creating swapchain", vk.CreateSwapchain(d.ctx.LogicalDevice, &createInfo, d.ctx.Allocator, &swapchain))
	}); err != nil {
		return nil, err
	}

	var count uint32
	vk.GetSwapchainImages(d.ctx.LogicalDevice, swapchain, &count, nil)
	vkImages := make([]vk.Image, count)
	if res := vk.GetSwapchainImages(d.ctx.LogicalDevice, swapchain, &count, vkImages); res != vk.Success {
		vk.DestroySwapchain(d.ctx.LogicalDevice, swapchain, d.ctx.Allocator)
		return nil, resultErr("fetching swapchain images", res)
	}

	obj := &swapchainObject{handle: swapchain}
	imageHandles := make([]gpu.ImageHandle, 0, count)
	for _, img := range vkImages {
		view, err := d.createImageView(img, surfaceFormat.Format, false)
		if err != nil {
			vk.DestroySwapchain(d.ctx.LogicalDevice, swapchain, d.ctx.Allocator)
			return nil, err
		}
		d.mu.Lock()
		h := gpu.ImageHandle(d.handle())
		d.images[h] = &imageObject{
			image:  img,
			view:   view,
			format: surfaceFormat.Format,
		}
		d.mu.Unlock()
		imageHandles = append(imageHandles, h)
	}
	obj.images = imageHandles

	d.mu.Lock()
	sc := gpu.SwapchainHandle(d.handle())
	d.swapchains[sc] = obj
	d.mu.Unlock()

	core.LogInfo("swapchain created: %dx%d, %d images, mode %d",
		extent.Width, extent.Height, len(imageHandles), presentMode)

	return &gpu.SwapchainInfo{
		Handle: sc,
		Format: fromVkFormat(surfaceFormat.Format),
		Extent: gpu.Extent2D{Width: extent.Width, Height: extent.Height},
		Images: imageHandles,
	}, nil
}

func (d *Device) DestroySwapchain(sc gpu.SwapchainHandle) {
	d.mu.Lock()
	obj, ok := d.swapchains[sc]
	delete(d.swapchains, sc)
	d.mu.Unlock()
	if !ok {
		return
	}
	// The image handles wrap swapchain-owned images; destroying them only
	// releases the views.
	for _, img := range obj.images {
		d.DestroyImage(img)
	}
	d.locks.SafeCall(swapchainManagement, func() error {
		vk.DestroySwapchain(d.ctx.LogicalDevice, obj.handle, d.ctx.Allocator)
		return nil
	})
}

func (d *Device) AcquireNextImage(sc gpu.SwapchainHandle, timeout time.Duration, signal gpu.SemaphoreHandle) (uint32, error) {
	d.mu.Lock()
	obj, okSc := d.swapchains[sc]
	sem, okSem := d.semaphores[signal]
	d.mu.Unlock()
	if !okSc || !okSem {
		return 0, fmt.Errorf("acquire references unknown swapchain %d or semaphore %d", sc, signal)
	}

	var imageIndex uint32
	result := vk.AcquireNextImage(d.ctx.LogicalDevice, obj.handle, uint64(timeout.Nanoseconds()), sem, vk.NullFence, &imageIndex)
	switch result {
	case vk.Success, vk.Suboptimal:
		// Suboptimal still acquired an image; present will report the
		// mismatch when it matters.
		return imageIndex, nil
	case vk.Timeout, vk.NotReady:
		return 0, fmt.Errorf("image acquire timed out after %s", timeout)
	default:
		return 0, resultErr("acquiring swapchain image", result)
	}
}

func (d *Device) Present(sc gpu.SwapchainHandle, imageIndex uint32, wait gpu.SemaphoreHandle) error {
	d.mu.Lock()
	obj, okSc := d.swapchains[sc]
	sem, okSem := d.semaphores[wait]
	d.mu.Unlock()
	if !okSc || !okSem {
		return fmt.Errorf("present references unknown swapchain %d or semaphore %d", sc, wait)
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{sem},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{obj.handle},
		PImageIndices:      []uint32{imageIndex},
	}
	return d.locks.SafeQueueCall(uint32(d.ctx.PresentQueueIndex), func() error {
		result := vk.QueuePresent(d.ctx.PresentQueue, &presentInfo)
		if result == vk.Suboptimal {
			return fmt.Errorf("presented to suboptimal surface: %w", core.ErrSwapchainOutdated)
		}
		return resultErr("presenting swapchain image", result)
	})
}
