package vulkan

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/prismatik/lumen/engine/core"
	"github.com/prismatik/lumen/engine/renderer/gpu"
)

// Device implements gpu.Device. Opaque gpu handles map to Vulkan objects
// through the tables below; the zero handle is never issued.
type Device struct {
	ctx        *Context
	locks      *lockPool
	validation bool

	mu   sync.Mutex
	next uint64

	memories   map[gpu.BlockHandle]vk.DeviceMemory
	buffers    map[gpu.BufferHandle]vk.Buffer
	images     map[gpu.ImageHandle]*imageObject
	samplers   map[gpu.SamplerHandle]vk.Sampler
	shaders    map[gpu.ShaderModule]vk.ShaderModule
	sets       map[gpu.DescriptorSet]vk.DescriptorSet
	pipelines  map[gpu.PipelineHandle]*pipelineObject
	passes     map[gpu.RenderPassHandle]vk.RenderPass
	fbs        map[gpu.FramebufferHandle]vk.Framebuffer
	fences     map[gpu.FenceHandle]vk.Fence
	semaphores map[gpu.SemaphoreHandle]vk.Semaphore
	swapchains map[gpu.SwapchainHandle]*swapchainObject

	// Descriptor set layouts cached by template fingerprint; shared by
	// descriptor allocation and pipeline layout creation.
	setLayouts     map[uint64]vk.DescriptorSetLayout
	descriptorPool vk.DescriptorPool

	info gpu.DeviceInfo
}

type imageObject struct {
	image  vk.Image
	view   vk.ImageView
	format vk.Format
	depth  bool
	// owned is false for swapchain images, whose lifetime belongs to the
	// swapchain object.
	owned bool
}

type pipelineObject struct {
	pipeline vk.Pipeline
	layout   vk.PipelineLayout
}

type swapchainObject struct {
	handle vk.Swapchain
	images []gpu.ImageHandle
}

func (d *Device) handle() uint64 {
	d.next++
	return d.next
}

func (d *Device) Info() gpu.DeviceInfo {
	return d.info
}

func (d *Device) AllocateBlock(size uint64, props gpu.MemoryPropertyFlags, typeBits uint32) (gpu.BlockHandle, uint32, error) {
	vkProps := toVkMemoryProps(props)
	index := d.ctx.FindMemoryIndex(typeBits, uint32(vkProps))
	if index < 0 {
		return 0, 0, fmt.Errorf("no memory type for bits %#x props %#x: %w", typeBits, props, core.ErrOutOfDeviceMemory)
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: uint32(index),
	}
	var memory vk.DeviceMemory
	if err := d.locks.SafeCall(memoryManagement, func() error {
		return resultErr("allocating device memory", vk.AllocateMemory(d.ctx.LogicalDevice, &allocInfo, d.ctx.Allocator, &memory))
	}); err != nil {
		return 0, 0, err
	}

	d.mu.Lock()
	h := gpu.BlockHandle(d.handle())
	d.memories[h] = memory
	d.mu.Unlock()
	return h, uint32(index), nil
}

func (d *Device) FreeBlock(block gpu.BlockHandle) {
	d.mu.Lock()
	memory, ok := d.memories[block]
	delete(d.memories, block)
	d.mu.Unlock()
	if !ok {
		return
	}
	d.locks.SafeCall(memoryManagement, func() error {
		vk.FreeMemory(d.ctx.LogicalDevice, memory, d.ctx.Allocator)
		return nil
	})
}

func (d *Device) WriteBlock(block gpu.BlockHandle, offset uint64, data []byte) error {
	d.mu.Lock()
	memory, ok := d.memories[block]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("write to unknown block %d", block)
	}
	return d.locks.SafeCall(memoryManagement, func() error {
		var ptr unsafe.Pointer
		if res := vk.MapMemory(d.ctx.LogicalDevice, memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &ptr); res != vk.Success {
			return resultErr("mapping device memory", res)
		}
		vk.Memcopy(ptr, data)
		vk.UnmapMemory(d.ctx.LogicalDevice, memory)
		return nil
	})
}

func (d *Device) CreateBuffer(size uint64, usage gpu.BufferUsage) (gpu.BufferHandle, gpu.MemoryRequirements, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       toVkBufferUsage(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := d.locks.SafeCall(resourceManagement, func() error {
		return resultErr("creating buffer", vk.CreateBuffer(d.ctx.LogicalDevice, &createInfo, d.ctx.Allocator, &buffer))
	}); err != nil {
		return 0, gpu.MemoryRequirements{}, err
	}

	var memReq vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.ctx.LogicalDevice, buffer, &memReq)
	memReq.Deref()

	d.mu.Lock()
	h := gpu.BufferHandle(d.handle())
	d.buffers[h] = buffer
	d.mu.Unlock()
	return h, gpu.MemoryRequirements{
		Size:      uint64(memReq.Size),
		Alignment: uint64(memReq.Alignment),
		TypeBits:  memReq.MemoryTypeBits,
	}, nil
}

func (d *Device) BindBufferMemory(buffer gpu.BufferHandle, block gpu.BlockHandle, offset uint64) error {
	d.mu.Lock()
	vkBuffer, ok := d.buffers[buffer]
	memory, okMem := d.memories[block]
	d.mu.Unlock()
	if !ok || !okMem {
		return fmt.Errorf("bind of unknown buffer %d or block %d", buffer, block)
	}
	return resultErr("binding buffer memory", vk.BindBufferMemory(d.ctx.LogicalDevice, vkBuffer, memory, vk.DeviceSize(offset)))
}

func (d *Device) DestroyBuffer(buffer gpu.BufferHandle) {
	d.mu.Lock()
	vkBuffer, ok := d.buffers[buffer]
	delete(d.buffers, buffer)
	d.mu.Unlock()
	if !ok {
		return
	}
	d.locks.SafeCall(resourceManagement, func() error {
		vk.DestroyBuffer(d.ctx.LogicalDevice, vkBuffer, d.ctx.Allocator)
		return nil
	})
}

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.ImageHandle, gpu.MemoryRequirements, error) {
	format := toVkFormat(desc.Format)
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         toVkImageUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if err := d.locks.SafeCall(resourceManagement, func() error {
		return resultErr("creating image", vk.CreateImage(d.ctx.LogicalDevice, &createInfo, d.ctx.Allocator, &image))
	}); err != nil {
		return 0, gpu.MemoryRequirements{}, err
	}

	var memReq vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.ctx.LogicalDevice, image, &memReq)
	memReq.Deref()

	d.mu.Lock()
	h := gpu.ImageHandle(d.handle())
	d.images[h] = &imageObject{
		image:  image,
		format: format,
		depth:  isDepthFormat(desc.Format),
		owned:  true,
	}
	d.mu.Unlock()
	return h, gpu.MemoryRequirements{
		Size:      uint64(memReq.Size),
		Alignment: uint64(memReq.Alignment),
		TypeBits:  memReq.MemoryTypeBits,
	}, nil
}

func (d *Device) BindImageMemory(image gpu.ImageHandle, block gpu.BlockHandle, offset uint64) error {
	d.mu.Lock()
	obj, ok := d.images[image]
	memory, okMem := d.memories[block]
	d.mu.Unlock()
	if !ok || !okMem {
		return fmt.Errorf("bind of unknown image %d or block %d", image, block)
	}
	if res := vk.BindImageMemory(d.ctx.LogicalDevice, obj.image, memory, vk.DeviceSize(offset)); res != vk.Success {
		return resultErr("binding image memory", res)
	}
	// The view is created after binding so it always sees backed memory.
	view, err := d.createImageView(obj.image, obj.format, obj.depth)
	if err != nil {
		return err
	}
	obj.view = view
	return nil
}

func (d *Device) createImageView(image vk.Image, format vk.Format, depth bool) (vk.ImageView, error) {
	aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	if depth {
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.ctx.LogicalDevice, &viewInfo, d.ctx.Allocator, &view); res != vk.Success {
		return vk.NullImageView, resultErr("creating image view", res)
	}
	return view, nil
}

func (d *Device) DestroyImage(image gpu.ImageHandle) {
	d.mu.Lock()
	obj, ok := d.images[image]
	delete(d.images, image)
	d.mu.Unlock()
	if !ok {
		return
	}
	d.locks.SafeCall(resourceManagement, func() error {
		if obj.view != vk.NullImageView {
			vk.DestroyImageView(d.ctx.LogicalDevice, obj.view, d.ctx.Allocator)
		}
		if obj.owned {
			vk.DestroyImage(d.ctx.LogicalDevice, obj.image, d.ctx.Allocator)
		}
		return nil
	})
}

func (d *Device) CreateSampler(desc gpu.SamplerDesc) (gpu.SamplerHandle, error) {
	filter := vk.FilterNearest
	if desc.LinearFilter {
		filter = vk.FilterLinear
	}
	addressMode := vk.SamplerAddressModeClampToEdge
	if desc.Repeat {
		addressMode = vk.SamplerAddressModeRepeat
	}
	createInfo := vk.SamplerCreateInfo{
		SType:         vk.StructureTypeSamplerCreateInfo,
		MagFilter:     filter,
		MinFilter:     filter,
		AddressModeU:  addressMode,
		AddressModeV:  addressMode,
		AddressModeW:  addressMode,
		MipmapMode:    vk.SamplerMipmapModeLinear,
		MaxLod:        1,
		BorderColor:   vk.BorderColorIntOpaqueBlack,
		MaxAnisotropy: 1,
	}
	if d.ctx.Features.SamplerAnisotropy == vk.True {
		createInfo.AnisotropyEnable = vk.True
		createInfo.MaxAnisotropy = 16
	}
	var sampler vk.Sampler
	if err := d.locks.SafeCall(resourceManagement, func() error {
		return resultErr("creating sampler", vk.CreateSampler(d.ctx.LogicalDevice, &createInfo, d.ctx.Allocator, &sampler))
	}); err != nil {
		return 0, err
	}
	d.mu.Lock()
	h := gpu.SamplerHandle(d.handle())
	d.samplers[h] = sampler
	d.mu.Unlock()
	return h, nil
}

func (d *Device) DestroySampler(sampler gpu.SamplerHandle) {
	d.mu.Lock()
	vkSampler, ok := d.samplers[sampler]
	delete(d.samplers, sampler)
	d.mu.Unlock()
	if !ok {
		return
	}
	vk.DestroySampler(d.ctx.LogicalDevice, vkSampler, d.ctx.Allocator)
}

func (d *Device) CreateShaderModule(code []byte) (gpu.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return 0, fmt.Errorf("shader binary length %d is not a SPIR-V word multiple", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}
	var module vk.ShaderModule
	if err := d.locks.SafeCall(resourceManagement, func() error {
		return resultErr("creating shader module", vk.CreateShaderModule(d.ctx.LogicalDevice, &createInfo, d.ctx.Allocator, &module))
	}); err != nil {
		return 0, err
	}
	d.mu.Lock()
	h := gpu.ShaderModule(d.handle())
	d.shaders[h] = module
	d.mu.Unlock()
	return h, nil
}

func (d *Device) DestroyShaderModule(module gpu.ShaderModule) {
	d.mu.Lock()
	vkModule, ok := d.shaders[module]
	delete(d.shaders, module)
	d.mu.Unlock()
	if !ok {
		return
	}
	vk.DestroyShaderModule(d.ctx.LogicalDevice, vkModule, d.ctx.Allocator)
}

// setLayout returns the cached descriptor set layout for a template,
// creating it on first use.
func (d *Device) setLayout(template gpu.SetTemplate) (vk.DescriptorSetLayout, error) {
	key := template.Fingerprint()
	d.mu.Lock()
	if layout, ok := d.setLayouts[key]; ok {
		d.mu.Unlock()
		return layout, nil
	}
	d.mu.Unlock()

	bindings := make([]vk.DescriptorSetLayoutBinding, len(template.Bindings))
	for i, b := range template.Bindings {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Slot,
			DescriptorType:  toVkDescriptorType(b.Type),
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit) | vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		}
	}
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	if err := d.locks.SafeCall(descriptorManagement, func() error {
		return resultErr("creating set layout", vk.CreateDescriptorSetLayout(d.ctx.LogicalDevice, &createInfo, d.ctx.Allocator, &layout))
	}); err != nil {
		return vk.NullDescriptorSetLayout, err
	}

	d.mu.Lock()
	if existing, ok := d.setLayouts[key]; ok {
		d.mu.Unlock()
		vk.DestroyDescriptorSetLayout(d.ctx.LogicalDevice, layout, d.ctx.Allocator)
		return existing, nil
	}
	d.setLayouts[key] = layout
	d.mu.Unlock()
	return layout, nil
}

func (d *Device) AllocateDescriptorSet(template gpu.SetTemplate) (gpu.DescriptorSet, error) {
	layout, err := d.setLayout(template)
	if err != nil {
		return 0, err
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	var set vk.DescriptorSet
	if err := d.locks.SafeCall(descriptorManagement, func() error {
		return resultErr("allocating descriptor set", vk.AllocateDescriptorSets(d.ctx.LogicalDevice, &allocInfo, &set))
	}); err != nil {
		return 0, err
	}
	d.mu.Lock()
	h := gpu.DescriptorSet(d.handle())
	d.sets[h] = set
	d.mu.Unlock()
	return h, nil
}

func (d *Device) UpdateDescriptorSet(set gpu.DescriptorSet, writes []gpu.DescriptorWrite) error {
	d.mu.Lock()
	vkSet, ok := d.sets[set]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("update of unknown descriptor set %d", set)
	}

	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          vkSet,
			DstBinding:      w.Slot,
			DescriptorCount: 1,
			DescriptorType:  toVkDescriptorType(w.Type),
		}
		switch w.Type {
		case gpu.BindingCombinedImageSampler:
			obj, okImg := d.images[w.Image]
			sampler, okSmp := d.samplers[w.Sampler]
			if !okImg || !okSmp {
				d.mu.Unlock()
				return fmt.Errorf("descriptor write references unknown image %d or sampler %d", w.Image, w.Sampler)
			}
			write.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     sampler,
				ImageView:   obj.view,
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}}
		default:
			buffer, okBuf := d.buffers[w.Buffer]
			if !okBuf {
				d.mu.Unlock()
				return fmt.Errorf("descriptor write references unknown buffer %d", w.Buffer)
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buffer,
				Offset: vk.DeviceSize(w.Offset),
				Range:  vk.DeviceSize(w.Range),
			}}
		}
		vkWrites = append(vkWrites, write)
	}
	d.mu.Unlock()

	return d.locks.SafeCall(descriptorManagement, func() error {
		vk.UpdateDescriptorSets(d.ctx.LogicalDevice, uint32(len(vkWrites)), vkWrites, 0, nil)
		return nil
	})
}

func (d *Device) FreeDescriptorSet(set gpu.DescriptorSet) {
	d.mu.Lock()
	vkSet, ok := d.sets[set]
	delete(d.sets, set)
	d.mu.Unlock()
	if !ok {
		return
	}
	d.locks.SafeCall(descriptorManagement, func() error {
		vk.FreeDescriptorSets(d.ctx.LogicalDevice, d.descriptorPool, 1, &vkSet)
		return nil
	})
}

func (d *Device) CreateFence(signaled bool) (gpu.FenceHandle, error) {
	createInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	// Make sure to signal the fence if required.
	if signaled {
		createInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if res := vk.CreateFence(d.ctx.LogicalDevice, &createInfo, d.ctx.Allocator, &fence); res != vk.Success {
		return 0, resultErr("creating fence", res)
	}
	d.mu.Lock()
	h := gpu.FenceHandle(d.handle())
	d.fences[h] = fence
	d.mu.Unlock()
	return h, nil
}

func (d *Device) WaitFence(fence gpu.FenceHandle, timeout time.Duration) error {
	d.mu.Lock()
	vkFence, ok := d.fences[fence]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("wait on unknown fence %d", fence)
	}
	result := vk.WaitForFences(d.ctx.LogicalDevice, 1, []vk.Fence{vkFence}, vk.True, uint64(timeout.Nanoseconds()))
	if result == vk.Timeout {
		return fmt.Errorf("fence wait timed out after %s", timeout)
	}
	return resultErr("waiting for fence", result)
}

func (d *Device) ResetFence(fence gpu.FenceHandle) error {
	d.mu.Lock()
	vkFence, ok := d.fences[fence]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("reset of unknown fence %d", fence)
	}
	return resultErr("resetting fence", vk.ResetFences(d.ctx.LogicalDevice, 1, []vk.Fence{vkFence}))
}

func (d *Device) DestroyFence(fence gpu.FenceHandle) {
	d.mu.Lock()
	vkFence, ok := d.fences[fence]
	delete(d.fences, fence)
	d.mu.Unlock()
	if !ok {
		return
	}
	vk.DestroyFence(d.ctx.LogicalDevice, vkFence, d.ctx.Allocator)
}

func (d *Device) CreateSemaphore() (gpu.SemaphoreHandle, error) {
	createInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var sem vk.Semaphore
	if res := vk.CreateSemaphore(d.ctx.LogicalDevice, &createInfo, d.ctx.Allocator, &sem); res != vk.Success {
		return 0, resultErr("creating semaphore", res)
	}
	d.mu.Lock()
	h := gpu.SemaphoreHandle(d.handle())
	d.semaphores[h] = sem
	d.mu.Unlock()
	return h, nil
}

func (d *Device) DestroySemaphore(sem gpu.SemaphoreHandle) {
	d.mu.Lock()
	vkSem, ok := d.semaphores[sem]
	delete(d.semaphores, sem)
	d.mu.Unlock()
	if !ok {
		return
	}
	vk.DestroySemaphore(d.ctx.LogicalDevice, vkSem, d.ctx.Allocator)
}

func (d *Device) Submit(info gpu.SubmitInfo) error {
	cmd, ok := info.Commands.(*commandBuffer)
	if !ok {
		return fmt.Errorf("submit of foreign command buffer")
	}
	d.mu.Lock()
	waitSem, okWait := d.semaphores[info.Wait]
	signalSem, okSignal := d.semaphores[info.Signal]
	fence, okFence := d.fences[info.Fence]
	d.mu.Unlock()
	if !okWait || !okSignal || !okFence {
		return fmt.Errorf("submit references unknown sync objects")
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{waitSem},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cmd.handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{signalSem},
	}

	return d.locks.SafeQueueCall(uint32(d.ctx.GraphicsQueueIndex), func() error {
		return resultErr("queue submit", vk.QueueSubmit(d.ctx.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence))
	})
}

func (d *Device) WaitIdle() error {
	return resultErr("device wait idle", vk.DeviceWaitIdle(d.ctx.LogicalDevice))
}

// Destroy tears down every remaining Vulkan object. Call only after
// WaitIdle; live handles left in the tables are destroyed with a warning
// since they indicate a leak in the layers above.
func (d *Device) Destroy() {
	if d.ctx.LogicalDevice != nil {
		vk.DeviceWaitIdle(d.ctx.LogicalDevice)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	leaks := len(d.buffers) + len(d.images) + len(d.memories) + len(d.pipelines) + len(d.sets)
	if leaks > 0 {
		core.LogWarn("device teardown with %d live objects", leaks)
	}

	for _, fb := range d.fbs {
		vk.DestroyFramebuffer(d.ctx.LogicalDevice, fb, d.ctx.Allocator)
	}
	for _, p := range d.pipelines {
		vk.DestroyPipeline(d.ctx.LogicalDevice, p.pipeline, d.ctx.Allocator)
		vk.DestroyPipelineLayout(d.ctx.LogicalDevice, p.layout, d.ctx.Allocator)
	}
	for _, pass := range d.passes {
		vk.DestroyRenderPass(d.ctx.LogicalDevice, pass, d.ctx.Allocator)
	}
	for _, obj := range d.images {
		if obj.view != vk.NullImageView {
			vk.DestroyImageView(d.ctx.LogicalDevice, obj.view, d.ctx.Allocator)
		}
		if obj.owned {
			vk.DestroyImage(d.ctx.LogicalDevice, obj.image, d.ctx.Allocator)
		}
	}
	for _, sc := range d.swapchains {
		vk.DestroySwapchain(d.ctx.LogicalDevice, sc.handle, d.ctx.Allocator)
	}
	for _, buffer := range d.buffers {
		vk.DestroyBuffer(d.ctx.LogicalDevice, buffer, d.ctx.Allocator)
	}
	for _, sampler := range d.samplers {
		vk.DestroySampler(d.ctx.LogicalDevice, sampler, d.ctx.Allocator)
	}
	for _, module := range d.shaders {
		vk.DestroyShaderModule(d.ctx.LogicalDevice, module, d.ctx.Allocator)
	}
	for _, fence := range d.fences {
		vk.DestroyFence(d.ctx.LogicalDevice, fence, d.ctx.Allocator)
	}
	for _, sem := range d.semaphores {
		vk.DestroySemaphore(d.ctx.LogicalDevice, sem, d.ctx.Allocator)
	}
	for _, layout := range d.setLayouts {
		vk.DestroyDescriptorSetLayout(d.ctx.LogicalDevice, layout, d.ctx.Allocator)
	}
	for _, memory := range d.memories {
		vk.FreeMemory(d.ctx.LogicalDevice, memory, d.ctx.Allocator)
	}

	if d.descriptorPool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(d.ctx.LogicalDevice, d.descriptorPool, d.ctx.Allocator)
		d.descriptorPool = vk.NullDescriptorPool
	}
	if d.ctx.GraphicsCommandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(d.ctx.LogicalDevice, d.ctx.GraphicsCommandPool, d.ctx.Allocator)
		d.ctx.GraphicsCommandPool = vk.NullCommandPool
	}
	if d.ctx.LogicalDevice != nil {
		vk.DestroyDevice(d.ctx.LogicalDevice, d.ctx.Allocator)
		d.ctx.LogicalDevice = nil
	}
	if d.ctx.Surface != vk.NullSurface {
		vk.DestroySurface(d.ctx.Instance, d.ctx.Surface, d.ctx.Allocator)
		d.ctx.Surface = vk.NullSurface
	}
	if d.ctx.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(d.ctx.Instance, d.ctx.debugMessenger, d.ctx.Allocator)
		d.ctx.debugMessenger = vk.NullDebugReportCallback
	}
	if d.ctx.Instance != nil {
		vk.DestroyInstance(d.ctx.Instance, d.ctx.Allocator)
		d.ctx.Instance = nil
	}
	core.LogInfo("vulkan device destroyed")
}
