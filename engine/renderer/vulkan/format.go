package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/prismatik/lumen/engine/renderer/gpu"
)

func toVkFormat(f gpu.Format) vk.Format {
	switch f {
	case gpu.FormatB8G8R8A8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case gpu.FormatB8G8R8A8Srgb:
		return vk.FormatB8g8r8a8Srgb
	case gpu.FormatR8G8B8A8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case gpu.FormatR8G8B8A8Srgb:
		return vk.FormatR8g8b8a8Srgb
	case gpu.FormatR32G32Sfloat:
		return vk.FormatR32g32Sfloat
	case gpu.FormatR32G32B32Sfloat:
		return vk.FormatR32g32b32Sfloat
	case gpu.FormatD32Sfloat:
		return vk.FormatD32Sfloat
	case gpu.FormatD32SfloatS8Uint:
		return vk.FormatD32SfloatS8Uint
	case gpu.FormatD24UnormS8Uint:
		return vk.FormatD24UnormS8Uint
	default:
		return vk.FormatUndefined
	}
}

func fromVkFormat(f vk.Format) gpu.Format {
	switch f {
	case vk.FormatB8g8r8a8Unorm:
		return gpu.FormatB8G8R8A8Unorm
	case vk.FormatB8g8r8a8Srgb:
		return gpu.FormatB8G8R8A8Srgb
	case vk.FormatR8g8b8a8Unorm:
		return gpu.FormatR8G8B8A8Unorm
	case vk.FormatR8g8b8a8Srgb:
		return gpu.FormatR8G8B8A8Srgb
	case vk.FormatR32g32Sfloat:
		return gpu.FormatR32G32Sfloat
	case vk.FormatR32g32b32Sfloat:
		return gpu.FormatR32G32B32Sfloat
	case vk.FormatD32Sfloat:
		return gpu.FormatD32Sfloat
	case vk.FormatD32SfloatS8Uint:
		return gpu.FormatD32SfloatS8Uint
	case vk.FormatD24UnormS8Uint:
		return gpu.FormatD24UnormS8Uint
	default:
		return gpu.FormatUndefined
	}
}

func isDepthFormat(f gpu.Format) bool {
	switch f {
	case gpu.FormatD32Sfloat, gpu.FormatD32SfloatS8Uint, gpu.FormatD24UnormS8Uint:
		return true
	default:
		return false
	}
}

func toVkBufferUsage(usage gpu.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlags
	if usage&gpu.BufferUsageVertex != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if usage&gpu.BufferUsageIndex != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if usage&gpu.BufferUsageUniform != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if usage&gpu.BufferUsageTransferSrc != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}
	if usage&gpu.BufferUsageTransferDst != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	}
	return out
}

func toVkImageUsage(usage gpu.ImageUsage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlags
	if usage&gpu.ImageUsageSampled != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if usage&gpu.ImageUsageColorAttachment != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}
	if usage&gpu.ImageUsageDepthAttachment != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	}
	if usage&gpu.ImageUsageTransferDst != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	}
	return out
}

func toVkMemoryProps(props gpu.MemoryPropertyFlags) vk.MemoryPropertyFlags {
	var out vk.MemoryPropertyFlags
	if props&gpu.MemoryDeviceLocal != 0 {
		out |= vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	}
	if props&gpu.MemoryHostVisible != 0 {
		out |= vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	}
	if props&gpu.MemoryHostCoherent != 0 {
		out |= vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	}
	return out
}

func toVkDescriptorType(t gpu.BindingType) vk.DescriptorType {
	switch t {
	case gpu.BindingCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	default:
		return vk.DescriptorTypeUniformBuffer
	}
}
