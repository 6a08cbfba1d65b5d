// Package gputest provides an instrumented in-memory gpu.Device for tests.
// It models the device's synchronization contract (fences signal when their
// submission retires, command buffers stay busy until then) and records
// violations instead of crashing, so tests can assert the frame scheduler
// and resource managers never break the rules.
package gputest

import (
	"fmt"
	"sync"
	"time"

	"github.com/prismatik/lumen/engine/core"
	"github.com/prismatik/lumen/engine/renderer/gpu"
)

// Counters aggregates observable device activity.
type Counters struct {
	Acquires       int
	Submits        int
	Presents       int
	PipelineBuilds int
	SetAllocs      int
	SetWrites      int
	BlockWrites    int
}

type fakeBlock struct {
	size  uint64
	props gpu.MemoryPropertyFlags
	data  []byte
}

type fakeBuffer struct {
	size  uint64
	usage gpu.BufferUsage
	bound bool
}

type fakeImage struct {
	desc  gpu.ImageDesc
	bound bool
}

type fakeFence struct {
	signaled bool
	pending  *submission
}

type submission struct {
	cmd *CommandBuffer
}

type fakeSwapchain struct {
	info gpu.SwapchainInfo
	next uint32
}

// Device implements gpu.Device entirely in memory.
//
// Behavior can be scripted before or between frames: push errors onto the
// result queues to make an acquire report an outdated swapchain or a submit
// report device loss, set BlockBudget to force allocation failure, or list
// pipeline names in FailPipelines to make their builds fail.
type Device struct {
	mu sync.Mutex

	next uint64

	blocks      map[gpu.BlockHandle]*fakeBlock
	buffers     map[gpu.BufferHandle]*fakeBuffer
	images      map[gpu.ImageHandle]*fakeImage
	samplers    map[gpu.SamplerHandle]bool
	shaders     map[gpu.ShaderModule]bool
	sets        map[gpu.DescriptorSet]bool
	pipelines   map[gpu.PipelineHandle]string
	passes      map[gpu.RenderPassHandle]bool
	fbs         map[gpu.FramebufferHandle]bool
	fences      map[gpu.FenceHandle]*fakeFence
	semaphores  map[gpu.SemaphoreHandle]bool
	swapchains  map[gpu.SwapchainHandle]*fakeSwapchain
	cmdBuffers  map[*CommandBuffer]bool
	allocatedBy uint64

	counters   Counters
	violations []string

	// Scriptable behavior.
	AcquireResults []error
	PresentResults []error
	SubmitResults  []error
	FailPipelines  map[string]error
	// BlockBudget caps total allocated block bytes; 0 means unlimited.
	BlockBudget uint64
	// FailSetsAfter makes descriptor set allocation fail once this many
	// sets are live; 0 means unlimited.
	FailSetsAfter int
}

func NewDevice() *Device {
	return &Device{
		blocks:     map[gpu.BlockHandle]*fakeBlock{},
		buffers:    map[gpu.BufferHandle]*fakeBuffer{},
		images:     map[gpu.ImageHandle]*fakeImage{},
		samplers:   map[gpu.SamplerHandle]bool{},
		shaders:    map[gpu.ShaderModule]bool{},
		sets:       map[gpu.DescriptorSet]bool{},
		pipelines:  map[gpu.PipelineHandle]string{},
		passes:     map[gpu.RenderPassHandle]bool{},
		fbs:        map[gpu.FramebufferHandle]bool{},
		fences:     map[gpu.FenceHandle]*fakeFence{},
		semaphores: map[gpu.SemaphoreHandle]bool{},
		swapchains: map[gpu.SwapchainHandle]*fakeSwapchain{},
		cmdBuffers: map[*CommandBuffer]bool{},
	}
}

func (d *Device) handle() uint64 {
	d.next++
	return d.next
}

func (d *Device) violate(format string, args ...any) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

// Violations lists every synchronization or usage rule broken so far.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.violations))
	copy(out, d.violations)
	return out
}

func (d *Device) Counters() Counters {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counters
}

// Live reports the number of live objects per kind, for leak assertions.
func (d *Device) Live() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]int{
		"blocks":       len(d.blocks),
		"buffers":      len(d.buffers),
		"images":       len(d.images),
		"samplers":     len(d.samplers),
		"shaders":      len(d.shaders),
		"sets":         len(d.sets),
		"pipelines":    len(d.pipelines),
		"renderPasses": len(d.passes),
		"framebuffers": len(d.fbs),
		"fences":       len(d.fences),
		"semaphores":   len(d.semaphores),
		"swapchains":   len(d.swapchains),
		"cmdBuffers":   len(d.cmdBuffers),
	}
}

// LiveTotal sums Live across kinds. Zero after a clean shutdown.
func (d *Device) LiveTotal() int {
	total := 0
	for _, n := range d.Live() {
		total += n
	}
	return total
}

func (d *Device) Info() gpu.DeviceInfo {
	return gpu.DeviceInfo{
		Name:        "gputest",
		DepthFormat: gpu.FormatD32Sfloat,
		Limits: gpu.DeviceLimits{
			MaxDescriptorSets:               4096,
			MinUniformBufferOffsetAlignment: 256,
			MaxPushConstantSize:             128,
		},
	}
}

func (d *Device) AllocateBlock(size uint64, props gpu.MemoryPropertyFlags, typeBits uint32) (gpu.BlockHandle, uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.BlockBudget > 0 && d.allocatedBy+size > d.BlockBudget {
		return 0, 0, fmt.Errorf("block of %d bytes over budget: %w", size, core.ErrOutOfDeviceMemory)
	}
	var typeIndex uint32
	if props.HostVisible() {
		typeIndex = 1
	}
	if typeBits&(1<<typeIndex) == 0 {
		return 0, 0, fmt.Errorf("no memory type for bits %#x with props %#x", typeBits, props)
	}
	h := gpu.BlockHandle(d.handle())
	fb := &fakeBlock{size: size, props: props}
	if props.HostVisible() {
		fb.data = make([]byte, size)
	}
	d.blocks[h] = fb
	d.allocatedBy += size
	return h, typeIndex, nil
}

func (d *Device) FreeBlock(block gpu.BlockHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fb, ok := d.blocks[block]; ok {
		d.allocatedBy -= fb.size
		delete(d.blocks, block)
	} else {
		d.violate("free of unknown block %d", block)
	}
}

func (d *Device) WriteBlock(block gpu.BlockHandle, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	fb, ok := d.blocks[block]
	if !ok {
		return fmt.Errorf("write to unknown block %d", block)
	}
	if !fb.props.HostVisible() {
		d.violate("write to device-local block %d", block)
		return fmt.Errorf("block %d is not host visible", block)
	}
	if offset+uint64(len(data)) > fb.size {
		return fmt.Errorf("write of %d bytes at %d overruns block of %d", len(data), offset, fb.size)
	}
	copy(fb.data[offset:], data)
	d.counters.BlockWrites++
	return nil
}

// BlockBytes returns a copy of a host-visible block's contents, for
// asserting uploads landed where they should.
func (d *Device) BlockBytes(block gpu.BlockHandle, offset, size uint64) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	fb, ok := d.blocks[block]
	if !ok || fb.data == nil {
		return nil
	}
	out := make([]byte, size)
	copy(out, fb.data[offset:offset+size])
	return out
}

func (d *Device) CreateBuffer(size uint64, usage gpu.BufferUsage) (gpu.BufferHandle, gpu.MemoryRequirements, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpu.BufferHandle(d.handle())
	d.buffers[h] = &fakeBuffer{size: size, usage: usage}
	return h, gpu.MemoryRequirements{Size: size, Alignment: 256, TypeBits: 0b11}, nil
}

func (d *Device) BindBufferMemory(buffer gpu.BufferHandle, block gpu.BlockHandle, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	fb, ok := d.buffers[buffer]
	if !ok {
		return fmt.Errorf("bind of unknown buffer %d", buffer)
	}
	if _, ok := d.blocks[block]; !ok {
		return fmt.Errorf("bind of buffer %d to unknown block %d", buffer, block)
	}
	fb.bound = true
	return nil
}

func (d *Device) DestroyBuffer(buffer gpu.BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.buffers[buffer]; ok {
		delete(d.buffers, buffer)
	} else {
		d.violate("destroy of unknown buffer %d", buffer)
	}
}

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.ImageHandle, gpu.MemoryRequirements, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpu.ImageHandle(d.handle())
	d.images[h] = &fakeImage{desc: desc}
	size := uint64(desc.Extent.Width) * uint64(desc.Extent.Height) * 4
	return h, gpu.MemoryRequirements{Size: size, Alignment: 4096, TypeBits: 0b01}, nil
}

func (d *Device) BindImageMemory(image gpu.ImageHandle, block gpu.BlockHandle, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	fi, ok := d.images[image]
	if !ok {
		return fmt.Errorf("bind of unknown image %d", image)
	}
	if _, ok := d.blocks[block]; !ok {
		return fmt.Errorf("bind of image %d to unknown block %d", image, block)
	}
	fi.bound = true
	return nil
}

func (d *Device) DestroyImage(image gpu.ImageHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.images[image]; ok {
		delete(d.images, image)
	} else {
		d.violate("destroy of unknown image %d", image)
	}
}

func (d *Device) CreateSampler(desc gpu.SamplerDesc) (gpu.SamplerHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpu.SamplerHandle(d.handle())
	d.samplers[h] = true
	return h, nil
}

func (d *Device) DestroySampler(sampler gpu.SamplerHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.samplers, sampler)
}

func (d *Device) CreateShaderModule(code []byte) (gpu.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(code) == 0 {
		return 0, fmt.Errorf("empty shader module")
	}
	h := gpu.ShaderModule(d.handle())
	d.shaders[h] = true
	return h, nil
}

func (d *Device) DestroyShaderModule(module gpu.ShaderModule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.shaders, module)
}

func (d *Device) AllocateDescriptorSet(template gpu.SetTemplate) (gpu.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailSetsAfter > 0 && len(d.sets) >= d.FailSetsAfter {
		return 0, fmt.Errorf("descriptor set allocation: %w", core.ErrOutOfDeviceMemory)
	}
	h := gpu.DescriptorSet(d.handle())
	d.sets[h] = true
	d.counters.SetAllocs++
	return h, nil
}

func (d *Device) UpdateDescriptorSet(set gpu.DescriptorSet, writes []gpu.DescriptorWrite) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.sets[set] {
		return fmt.Errorf("update of unknown descriptor set %d", set)
	}
	d.counters.SetWrites += len(writes)
	return nil
}

func (d *Device) FreeDescriptorSet(set gpu.DescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sets, set)
}

func (d *Device) CreatePipeline(config gpu.PipelineConfig, pass gpu.RenderPassHandle) (gpu.PipelineHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counters.PipelineBuilds++
	if err, ok := d.FailPipelines[config.Name]; ok {
		return 0, err
	}
	h := gpu.PipelineHandle(d.handle())
	d.pipelines[h] = config.Name
	return h, nil
}

func (d *Device) DestroyPipeline(pipeline gpu.PipelineHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipelines, pipeline)
}

func (d *Device) CreateRenderPass(colorFormat, depthFormat gpu.Format) (gpu.RenderPassHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpu.RenderPassHandle(d.handle())
	d.passes[h] = true
	return h, nil
}

func (d *Device) DestroyRenderPass(pass gpu.RenderPassHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.passes, pass)
}

func (d *Device) CreateFramebuffer(pass gpu.RenderPassHandle, color, depth gpu.ImageHandle, extent gpu.Extent2D) (gpu.FramebufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.passes[pass] {
		return 0, fmt.Errorf("framebuffer for unknown render pass %d", pass)
	}
	h := gpu.FramebufferHandle(d.handle())
	d.fbs[h] = true
	return h, nil
}

func (d *Device) DestroyFramebuffer(fb gpu.FramebufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.fbs, fb)
}

func (d *Device) CreateFence(signaled bool) (gpu.FenceHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpu.FenceHandle(d.handle())
	d.fences[h] = &fakeFence{signaled: signaled}
	return h, nil
}

// WaitFence retires the pending submission attached to the fence, modeling
// GPU completion at the wait point.
func (d *Device) WaitFence(fence gpu.FenceHandle, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences[fence]
	if !ok {
		return fmt.Errorf("wait on unknown fence %d", fence)
	}
	if f.pending != nil {
		d.retireLocked(f)
		return nil
	}
	if !f.signaled {
		d.violate("wait on unsignaled fence %d with no pending work", fence)
		return fmt.Errorf("fence %d would never signal", fence)
	}
	return nil
}

func (d *Device) retireLocked(f *fakeFence) {
	f.pending.cmd.inFlight = false
	f.pending = nil
	f.signaled = true
}

func (d *Device) ResetFence(fence gpu.FenceHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences[fence]
	if !ok {
		return fmt.Errorf("reset of unknown fence %d", fence)
	}
	if f.pending != nil {
		d.violate("reset of fence %d with work still pending", fence)
	}
	f.signaled = false
	return nil
}

func (d *Device) DestroyFence(fence gpu.FenceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.fences, fence)
}

func (d *Device) CreateSemaphore() (gpu.SemaphoreHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpu.SemaphoreHandle(d.handle())
	d.semaphores[h] = true
	return h, nil
}

func (d *Device) DestroySemaphore(sem gpu.SemaphoreHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.semaphores, sem)
}

func (d *Device) CreateSwapchain(desc gpu.SwapchainDesc) (*gpu.SwapchainInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpu.SwapchainHandle(d.handle())
	info := gpu.SwapchainInfo{
		Handle: h,
		Format: gpu.FormatB8G8R8A8Srgb,
		Extent: desc.Extent,
	}
	for i := 0; i < 3; i++ {
		img := gpu.ImageHandle(d.handle())
		d.images[img] = &fakeImage{bound: true}
		info.Images = append(info.Images, img)
	}
	d.swapchains[h] = &fakeSwapchain{info: info}
	return &info, nil
}

func (d *Device) DestroySwapchain(sc gpu.SwapchainHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fsc, ok := d.swapchains[sc]
	if !ok {
		d.violate("destroy of unknown swapchain %d", sc)
		return
	}
	for _, img := range fsc.info.Images {
		delete(d.images, img)
	}
	delete(d.swapchains, sc)
}

func (d *Device) AcquireNextImage(sc gpu.SwapchainHandle, timeout time.Duration, signal gpu.SemaphoreHandle) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counters.Acquires++
	if len(d.AcquireResults) > 0 {
		err := d.AcquireResults[0]
		d.AcquireResults = d.AcquireResults[1:]
		if err != nil {
			return 0, err
		}
	}
	fsc, ok := d.swapchains[sc]
	if !ok {
		return 0, fmt.Errorf("acquire from unknown swapchain %d", sc)
	}
	idx := fsc.next
	fsc.next = (fsc.next + 1) % uint32(len(fsc.info.Images))
	return idx, nil
}

func (d *Device) Present(sc gpu.SwapchainHandle, imageIndex uint32, wait gpu.SemaphoreHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counters.Presents++
	if len(d.PresentResults) > 0 {
		err := d.PresentResults[0]
		d.PresentResults = d.PresentResults[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := d.swapchains[sc]; !ok {
		return fmt.Errorf("present to unknown swapchain %d", sc)
	}
	return nil
}

func (d *Device) CreateCommandBuffer() (gpu.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cmd := &CommandBuffer{device: d}
	d.cmdBuffers[cmd] = true
	return cmd, nil
}

func (d *Device) DestroyCommandBuffer(cmd gpu.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fc, ok := cmd.(*CommandBuffer)
	if !ok {
		d.violate("destroy of foreign command buffer")
		return
	}
	if fc.inFlight {
		d.violate("destroy of in-flight command buffer")
	}
	delete(d.cmdBuffers, fc)
}

func (d *Device) Submit(info gpu.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counters.Submits++
	if len(d.SubmitResults) > 0 {
		err := d.SubmitResults[0]
		d.SubmitResults = d.SubmitResults[1:]
		if err != nil {
			return err
		}
	}
	fc, ok := info.Commands.(*CommandBuffer)
	if !ok {
		return fmt.Errorf("submit of foreign command buffer")
	}
	if fc.inFlight {
		d.violate("command buffer resubmitted while still in flight")
	}
	if fc.recording {
		d.violate("submit of command buffer still recording")
	}
	f, ok := d.fences[info.Fence]
	if !ok {
		return fmt.Errorf("submit with unknown fence %d", info.Fence)
	}
	if f.signaled {
		d.violate("submit with fence %d still signaled", info.Fence)
	}
	fc.inFlight = true
	f.pending = &submission{cmd: fc}
	return nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range d.fences {
		if f.pending != nil {
			d.retireLocked(f)
		}
	}
	return nil
}

// CommandBuffer records command counts instead of GPU work.
type CommandBuffer struct {
	device *Device

	recording bool
	inFlight  bool
	inPass    bool

	Begins       int
	Draws        int
	DrawsIndexed int
	Copies       int
	ImageCopies  int
	PushBytes    int
	Pipelines    []gpu.PipelineHandle
	Sets         []gpu.DescriptorSet
}

func (c *CommandBuffer) Begin() error {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	if c.inFlight {
		c.device.violate("begin of command buffer still in flight")
	}
	if c.recording {
		return fmt.Errorf("begin of command buffer already recording")
	}
	c.recording = true
	c.Begins++
	return nil
}

func (c *CommandBuffer) End() error {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	if !c.recording {
		return fmt.Errorf("end of command buffer not recording")
	}
	if c.inPass {
		c.device.violate("end of command buffer inside a render pass")
	}
	c.recording = false
	return nil
}

func (c *CommandBuffer) Reset() {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	if c.inFlight {
		c.device.violate("reset of command buffer still in flight")
	}
	c.recording = false
	c.inPass = false
	c.Draws = 0
	c.DrawsIndexed = 0
	c.Copies = 0
	c.ImageCopies = 0
	c.PushBytes = 0
	c.Pipelines = c.Pipelines[:0]
	c.Sets = c.Sets[:0]
}

func (c *CommandBuffer) BeginRenderPass(pass gpu.RenderPassHandle, fb gpu.FramebufferHandle, area gpu.Extent2D, clear gpu.ClearColor) {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	if !c.recording {
		c.device.violate("render pass begun outside recording")
	}
	c.inPass = true
}

func (c *CommandBuffer) EndRenderPass() {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	c.inPass = false
}

func (c *CommandBuffer) SetViewport(extent gpu.Extent2D) {}
func (c *CommandBuffer) SetScissor(extent gpu.Extent2D)  {}

func (c *CommandBuffer) BindPipeline(pipeline gpu.PipelineHandle) {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	c.Pipelines = append(c.Pipelines, pipeline)
}

func (c *CommandBuffer) BindDescriptorSet(pipeline gpu.PipelineHandle, setIndex uint32, set gpu.DescriptorSet) {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	if !c.device.sets[set] {
		c.device.violate("bind of freed descriptor set %d", set)
	}
	c.Sets = append(c.Sets, set)
}

func (c *CommandBuffer) BindVertexBuffer(buffer gpu.BufferHandle, offset uint64) {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	if _, ok := c.device.buffers[buffer]; !ok {
		c.device.violate("bind of destroyed vertex buffer %d", buffer)
	}
}

func (c *CommandBuffer) BindIndexBuffer(buffer gpu.BufferHandle, offset uint64) {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	if _, ok := c.device.buffers[buffer]; !ok {
		c.device.violate("bind of destroyed index buffer %d", buffer)
	}
}

func (c *CommandBuffer) PushConstants(pipeline gpu.PipelineHandle, data []byte) {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	c.PushBytes += len(data)
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount uint32) {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	if !c.inPass {
		c.device.violate("draw outside a render pass")
	}
	c.Draws++
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount uint32) {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	if !c.inPass {
		c.device.violate("indexed draw outside a render pass")
	}
	c.DrawsIndexed++
}

func (c *CommandBuffer) CopyBuffer(src, dst gpu.BufferHandle, srcOffset, dstOffset, size uint64) {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	if _, ok := c.device.buffers[src]; !ok {
		c.device.violate("copy from destroyed buffer %d", src)
	}
	if _, ok := c.device.buffers[dst]; !ok {
		c.device.violate("copy to destroyed buffer %d", dst)
	}
	c.Copies++
}

func (c *CommandBuffer) CopyBufferToImage(src gpu.BufferHandle, dst gpu.ImageHandle, extent gpu.Extent2D) {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	if _, ok := c.device.buffers[src]; !ok {
		c.device.violate("image copy from destroyed buffer %d", src)
	}
	if _, ok := c.device.images[dst]; !ok {
		c.device.violate("copy to destroyed image %d", dst)
	}
	c.ImageCopies++
}
