package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/prismatik/lumen/engine/renderer/gpu"
)

func (d *Device) CreateRenderPass(colorFormat, depthFormat gpu.Format) (gpu.RenderPassHandle, error) {
	attachments := []vk.AttachmentDescription{
		{
			Format:         toVkFormat(colorFormat),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		},
		{
			Format:         toVkFormat(depthFormat),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}

	colorRef := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	depthRef := vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    1,
		PColorAttachments:       colorRef,
		PDepthStencilAttachment: &depthRef,
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var pass vk.RenderPass
	if res := vk.CreateRenderPass(d.ctx.LogicalDevice, &createInfo, d.ctx.Allocator, &pass); res != vk.Success {
		return 0, resultErr("creating render pass", res)
	}

	d.mu.Lock()
	h := gpu.RenderPassHandle(d.handle())
	d.passes[h] = pass
	d.mu.Unlock()
	return h, nil
}

func (d *Device) DestroyRenderPass(pass gpu.RenderPassHandle) {
	d.mu.Lock()
	vkPass, ok := d.passes[pass]
	delete(d.passes, pass)
	d.mu.Unlock()
	if !ok {
		return
	}
	vk.DestroyRenderPass(d.ctx.LogicalDevice, vkPass, d.ctx.Allocator)
}

func (d *Device) CreateFramebuffer(pass gpu.RenderPassHandle, color, depth gpu.ImageHandle, extent gpu.Extent2D) (gpu.FramebufferHandle, error) {
	d.mu.Lock()
	vkPass, okPass := d.passes[pass]
	colorObj, okColor := d.images[color]
	depthObj, okDepth := d.images[depth]
	d.mu.Unlock()
	if !okPass || !okColor || !okDepth {
		return 0, fmt.Errorf("framebuffer references unknown pass %d or attachments %d/%d", pass, color, depth)
	}

	attachments := []vk.ImageView{colorObj.view, depthObj.view}
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      vkPass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if res := vk.CreateFramebuffer(d.ctx.LogicalDevice, &createInfo, d.ctx.Allocator, &fb); res != vk.Success {
		return 0, resultErr("creating framebuffer", res)
	}

	d.mu.Lock()
	h := gpu.FramebufferHandle(d.handle())
	d.fbs[h] = fb
	d.mu.Unlock()
	return h, nil
}

func (d *Device) DestroyFramebuffer(fb gpu.FramebufferHandle) {
	d.mu.Lock()
	vkFb, ok := d.fbs[fb]
	delete(d.fbs, fb)
	d.mu.Unlock()
	if !ok {
		return
	}
	vk.DestroyFramebuffer(d.ctx.LogicalDevice, vkFb, d.ctx.Allocator)
}
