package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/prismatik/lumen/engine/core"
)

// Context holds the per-application Vulkan state: instance, surface and the
// selected physical/logical device with its queues.
type Context struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugMessenger vk.DebugReportCallback

	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	GraphicsQueueIndex int32
	PresentQueueIndex  int32
	TransferQueueIndex int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue
	TransferQueue vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format

	SwapchainSupport swapchainSupportInfo
}

type swapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

// FindMemoryIndex picks a memory type matching the filter bits and property
// flags, or -1 when the device has none.
func (c *Context) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(c.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("unable to find suitable memory type")
	return -1
}

func (c *Context) querySwapchainSupport() error {
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(c.PhysicalDevice, c.Surface, &c.SwapchainSupport.Capabilities); res != vk.Success {
		return resultErr("querying surface capabilities", res)
	}
	c.SwapchainSupport.Capabilities.Deref()

	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(c.PhysicalDevice, c.Surface, &formatCount, nil); res != vk.Success {
		return resultErr("querying surface formats", res)
	}
	if formatCount != 0 {
		c.SwapchainSupport.Formats = make([]vk.SurfaceFormat, formatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(c.PhysicalDevice, c.Surface, &formatCount, c.SwapchainSupport.Formats); res != vk.Success {
			return resultErr("querying surface formats", res)
		}
		for i := range c.SwapchainSupport.Formats {
			c.SwapchainSupport.Formats[i].Deref()
		}
	}

	var modeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(c.PhysicalDevice, c.Surface, &modeCount, nil); res != vk.Success {
		return resultErr("querying present modes", res)
	}
	if modeCount != 0 {
		c.SwapchainSupport.PresentModes = make([]vk.PresentMode, modeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(c.PhysicalDevice, c.Surface, &modeCount, c.SwapchainSupport.PresentModes); res != vk.Success {
			return resultErr("querying present modes", res)
		}
	}
	return nil
}

// detectDepthFormat picks the first supported depth attachment format in
// preference order D32 -> D32S8 -> D24S8.
func (c *Context) detectDepthFormat() bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureDepthStencilAttachmentBit
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(c.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if (vk.FormatFeatureFlagBits(properties.LinearTilingFeatures)&flags) == flags ||
			(vk.FormatFeatureFlagBits(properties.OptimalTilingFeatures)&flags) == flags {
			c.DepthFormat = candidate
			return true
		}
	}
	return false
}
