package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/prismatik/lumen/engine/core"
	"github.com/prismatik/lumen/engine/renderer/gpu"
)

// commandBuffer wraps a primary command buffer from the graphics pool.
// Recording happens on the submitting goroutine only.
type commandBuffer struct {
	device *Device
	handle vk.CommandBuffer
}

func (d *Device) CreateCommandBuffer() (gpu.CommandBuffer, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.ctx.GraphicsCommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	handles := make([]vk.CommandBuffer, 1)
	var err error
	d.locks.SafeCall(commandBufferManagement, func() error {
		err = resultErr("allocating command buffer", vk.AllocateCommandBuffers(d.ctx.LogicalDevice, &allocInfo, handles))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &commandBuffer{device: d, handle: handles[0]}, nil
}

func (d *Device) DestroyCommandBuffer(cmd gpu.CommandBuffer) {
	cb, ok := cmd.(*commandBuffer)
	if !ok || cb.handle == nil {
		return
	}
	d.locks.SafeCall(commandBufferManagement, func() error {
		vk.FreeCommandBuffers(d.ctx.LogicalDevice, d.ctx.GraphicsCommandPool, 1, []vk.CommandBuffer{cb.handle})
		return nil
	})
	cb.handle = nil
}

func (c *commandBuffer) Begin() error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	return resultErr("beginning command buffer", vk.BeginCommandBuffer(c.handle, &beginInfo))
}

func (c *commandBuffer) End() error {
	return resultErr("ending command buffer", vk.EndCommandBuffer(c.handle))
}

func (c *commandBuffer) Reset() {
	if res := vk.ResetCommandBuffer(c.handle, 0); res != vk.Success {
		core.LogWarn("command buffer reset failed: %s", resultString(res))
	}
}

func (c *commandBuffer) BeginRenderPass(pass gpu.RenderPassHandle, fb gpu.FramebufferHandle, area gpu.Extent2D, clear gpu.ClearColor) {
	d := c.device
	d.mu.Lock()
	vkPass := d.passes[pass]
	vkFb := d.fbs[fb]
	d.mu.Unlock()

	clearValues := make([]vk.ClearValue, 2)
	clearValues[0].SetColor([]float32{clear.R, clear.G, clear.B, clear.A})
	clearValues[1].SetDepthStencil(1, 0)

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vkPass,
		Framebuffer: vkFb,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: area.Width, Height: area.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(c.handle, &beginInfo, vk.SubpassContentsInline)
}

func (c *commandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(c.handle)
}

func (c *commandBuffer) SetViewport(extent gpu.Extent2D) {
	// Negative-height viewport flips clip space so world Y points up,
	// matching the projection convention in engine/math.
	viewport := vk.Viewport{
		X:        0,
		Y:        float32(extent.Height),
		Width:    float32(extent.Width),
		Height:   -float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	vk.CmdSetViewport(c.handle, 0, 1, []vk.Viewport{viewport})
}

func (c *commandBuffer) SetScissor(extent gpu.Extent2D) {
	scissor := vk.Rect2D{
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}
	vk.CmdSetScissor(c.handle, 0, 1, []vk.Rect2D{scissor})
}

func (c *commandBuffer) BindPipeline(pipeline gpu.PipelineHandle) {
	d := c.device
	d.mu.Lock()
	obj, ok := d.pipelines[pipeline]
	d.mu.Unlock()
	if !ok {
		core.LogError("bind of unknown pipeline %d", pipeline)
		return
	}
	vk.CmdBindPipeline(c.handle, vk.PipelineBindPointGraphics, obj.pipeline)
}

func (c *commandBuffer) BindDescriptorSet(pipeline gpu.PipelineHandle, setIndex uint32, set gpu.DescriptorSet) {
	d := c.device
	d.mu.Lock()
	obj, okPipe := d.pipelines[pipeline]
	vkSet, okSet := d.sets[set]
	d.mu.Unlock()
	if !okPipe || !okSet {
		core.LogError("descriptor bind references unknown pipeline %d or set %d", pipeline, set)
		return
	}
	vk.CmdBindDescriptorSets(c.handle, vk.PipelineBindPointGraphics, obj.layout,
		setIndex, 1, []vk.DescriptorSet{vkSet}, 0, nil)
}

func (c *commandBuffer) BindVertexBuffer(buffer gpu.BufferHandle, offset uint64) {
	d := c.device
	d.mu.Lock()
	vkBuffer, ok := d.buffers[buffer]
	d.mu.Unlock()
	if !ok {
		core.LogError("vertex bind of unknown buffer %d", buffer)
		return
	}
	vk.CmdBindVertexBuffers(c.handle, 0, 1, []vk.Buffer{vkBuffer}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (c *commandBuffer) BindIndexBuffer(buffer gpu.BufferHandle, offset uint64) {
	d := c.device
	d.mu.Lock()
	vkBuffer, ok := d.buffers[buffer]
	d.mu.Unlock()
	if !ok {
		core.LogError("index bind of unknown buffer %d", buffer)
		return
	}
	vk.CmdBindIndexBuffer(c.handle, vkBuffer, vk.DeviceSize(offset), vk.IndexTypeUint32)
}

func (c *commandBuffer) PushConstants(pipeline gpu.PipelineHandle, data []byte) {
	d := c.device
	d.mu.Lock()
	obj, ok := d.pipelines[pipeline]
	d.mu.Unlock()
	if !ok {
		core.LogError("push constants for unknown pipeline %d", pipeline)
		return
	}
	stages := vk.ShaderStageFlags(vk.ShaderStageVertexBit) | vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	vk.CmdPushConstants(c.handle, obj.layout, stages, 0, uint32(len(data)), unsafeBytes(data))
}

func (c *commandBuffer) Draw(vertexCount, instanceCount uint32) {
	vk.CmdDraw(c.handle, vertexCount, instanceCount, 0, 0)
}

func (c *commandBuffer) DrawIndexed(indexCount, instanceCount uint32) {
	vk.CmdDrawIndexed(c.handle, indexCount, instanceCount, 0, 0, 0)
}

func (c *commandBuffer) CopyBuffer(src, dst gpu.BufferHandle, srcOffset, dstOffset, size uint64) {
	d := c.device
	d.mu.Lock()
	vkSrc, okSrc := d.buffers[src]
	vkDst, okDst := d.buffers[dst]
	d.mu.Unlock()
	if !okSrc || !okDst {
		core.LogError("copy references unknown buffers %d -> %d", src, dst)
		return
	}
	region := vk.BufferCopy{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}
	vk.CmdCopyBuffer(c.handle, vkSrc, vkDst, 1, []vk.BufferCopy{region})
}

func (c *commandBuffer) CopyBufferToImage(src gpu.BufferHandle, dst gpu.ImageHandle, extent gpu.Extent2D) {
	d := c.device
	d.mu.Lock()
	vkSrc, okSrc := d.buffers[src]
	obj, okDst := d.images[dst]
	d.mu.Unlock()
	if !okSrc || !okDst {
		core.LogError("image copy references unknown buffer %d or image %d", src, dst)
		return
	}

	c.transitionImage(obj.image, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)

	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(c.handle, vkSrc, obj.image, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})

	c.transitionImage(obj.image, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
}

// transitionImage records a layout transition for the full color image.
func (c *commandBuffer) transitionImage(image vk.Image, oldLayout, newLayout vk.ImageLayout) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	var srcStage, dstStage vk.PipelineStageFlags
	switch {
	case oldLayout == vk.ImageLayoutUndefined && newLayout == vk.ImageLayoutTransferDstOptimal:
		barrier.SrcAccessMask = 0
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case oldLayout == vk.ImageLayoutTransferDstOptimal && newLayout == vk.ImageLayoutShaderReadOnlyOptimal:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	default:
		core.LogWarn("unsupported image layout transition %d -> %d", oldLayout, newLayout)
		return
	}

	vk.CmdPipelineBarrier(c.handle, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}
